package sgkd

import (
	"bytes"
	"testing"

	"github.com/dct-go/sgkd/internal/certstore"
)

func TestKRContentRoundTrip(t *testing.T) {
	var pk [32]byte
	for i := range pk {
		pk[i] = byte(i)
	}
	egkrs := []EGKR{
		{TP: tpFromByte(0x01), Sealed: bytes.Repeat([]byte{0xaa}, sealedLen)},
		{TP: tpFromByte(0x02), Sealed: bytes.Repeat([]byte{0xbb}, sealedLen)},
	}
	content := EncodeKRContent(1699999999000000, pk, egkrs)

	ct, gotPK, gotEGKRs, err := DecodeKRContent(content)
	if err != nil {
		t.Fatalf("DecodeKRContent: %v", err)
	}
	if ct != 1699999999000000 {
		t.Fatalf("ct = %d, want 1699999999000000", ct)
	}
	if gotPK != pk {
		t.Fatalf("pk mismatch")
	}
	if len(gotEGKRs) != 2 {
		t.Fatalf("egkrs len = %d, want 2", len(gotEGKRs))
	}
	for i, e := range gotEGKRs {
		if e.TP != egkrs[i].TP || !bytes.Equal(e.Sealed, egkrs[i].Sealed) {
			t.Fatalf("egkr[%d] mismatch", i)
		}
	}
}

func TestKRContentEmptyEGKRList(t *testing.T) {
	var pk [32]byte
	content := EncodeKRContent(42, pk, nil)
	ct, gotPK, egkrs, err := DecodeKRContent(content)
	if err != nil {
		t.Fatalf("DecodeKRContent: %v", err)
	}
	if ct != 42 || gotPK != pk || len(egkrs) != 0 {
		t.Fatalf("unexpected decode result: ct=%d pk=%v egkrs=%v", ct, gotPK, egkrs)
	}
}

func TestDecodeKRContentRejectsTruncated(t *testing.T) {
	var pk [32]byte
	content := EncodeKRContent(1, pk, nil)
	for i := 1; i < len(content); i++ {
		if _, _, _, err := DecodeKRContent(content[:i]); err != ErrTLVParse {
			t.Fatalf("truncated at %d: expected ErrTLVParse, got %v", i, err)
		}
	}
}

func TestDecodeKRContentRejectsWrongBlockOrder(t *testing.T) {
	var pk [32]byte
	var ctBytes [8]byte
	var buf []byte
	buf = appendTLV(buf, tlvGroupPK, pk[:])
	buf = appendTLV(buf, tlvCreateTime, ctBytes[:])
	buf = appendTLV(buf, tlvEGKRVec, nil)
	if _, _, _, err := DecodeKRContent(buf); err != ErrTLVParse {
		t.Fatalf("expected ErrTLVParse for wrong block order, got %v", err)
	}
}

func tpFromByte(b byte) certstore.ThumbPrint {
	var tp certstore.ThumbPrint
	for i := range tp {
		tp[i] = b
	}
	return tp
}
