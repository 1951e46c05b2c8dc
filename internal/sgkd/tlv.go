package sgkd

import (
	"encoding/binary"
	"errors"
)

// Content block types for a KR publication (spec §6): creation-time
// micros, the group's X25519 public key, and the sorted egkr vector. Block
// order in content is always 36, 150, 130.
const (
	tlvCreateTime uint16 = 36
	tlvGroupPK    uint16 = 150
	tlvEGKRVec    uint16 = 130
)

// ErrTLVParse is the non-fatal disposition for any malformed KR content
// (spec §7: "Missing block, wrong type ... Drop silently").
var ErrTLVParse = errors.New("sgkd: tlv parse failure")

// appendTLVHeader writes a type-length header using the same variable-width
// encoding as the original C++ schema (tlv.hpp TLVhdr): values under 253
// fit in one byte; values of 253 or more are preceded by a 253 marker byte
// and a 2-byte big-endian value.
func appendTLVHeader(buf []byte, typ, length uint16) []byte {
	if typ >= 253 {
		buf = append(buf, 253, byte(typ>>8), byte(typ))
	} else {
		buf = append(buf, byte(typ))
	}
	if length >= 253 {
		buf = append(buf, 253, byte(length>>8), byte(length))
	} else {
		buf = append(buf, byte(length))
	}
	return buf
}

func appendTLV(buf []byte, typ uint16, value []byte) []byte {
	buf = appendTLVHeader(buf, typ, uint16(len(value)))
	return append(buf, value...)
}

type tlvBlock struct {
	Type  uint16
	Value []byte
}

func readTLVHeader(b []byte) (typ, length uint16, consumed int, err error) {
	if len(b) < 1 {
		return 0, 0, 0, ErrTLVParse
	}
	i := 0
	if b[i] == 253 {
		if len(b) < i+3 {
			return 0, 0, 0, ErrTLVParse
		}
		typ = binary.BigEndian.Uint16(b[i+1 : i+3])
		i += 3
	} else {
		typ = uint16(b[i])
		i++
	}
	if len(b) < i+1 {
		return 0, 0, 0, ErrTLVParse
	}
	if b[i] == 253 {
		if len(b) < i+3 {
			return 0, 0, 0, ErrTLVParse
		}
		length = binary.BigEndian.Uint16(b[i+1 : i+3])
		i += 3
	} else {
		length = uint16(b[i])
		i++
	}
	return typ, length, i, nil
}

func parseTLVBlocks(b []byte) ([]tlvBlock, error) {
	var blocks []tlvBlock
	for len(b) > 0 {
		typ, length, hdrLen, err := readTLVHeader(b)
		if err != nil {
			return nil, err
		}
		if len(b) < hdrLen+int(length) {
			return nil, ErrTLVParse
		}
		blocks = append(blocks, tlvBlock{Type: typ, Value: b[hdrLen : hdrLen+int(length)]})
		b = b[hdrLen+int(length):]
	}
	return blocks, nil
}

// EncodeKRContent builds the TLV content of a KR publication: block 36
// (creation time, micros), block 150 (group public key), block 130 (egkr
// vector, assumed already sorted by thumbprint), in that order.
func EncodeKRContent(ct uint64, pk [32]byte, egkrs []EGKR) []byte {
	var ctBytes [8]byte
	binary.BigEndian.PutUint64(ctBytes[:], ct)

	vec := make([]byte, 0, len(egkrs)*(32+sealedLen))
	for _, e := range egkrs {
		vec = append(vec, e.TP[:]...)
		vec = append(vec, e.Sealed...)
	}

	var buf []byte
	buf = appendTLV(buf, tlvCreateTime, ctBytes[:])
	buf = appendTLV(buf, tlvGroupPK, pk[:])
	buf = appendTLV(buf, tlvEGKRVec, vec)
	return buf
}

// DecodeKRContent parses a KR publication's content. Any structural
// problem — wrong block count, wrong type, wrong length, truncated vector
// — returns ErrTLVParse, which callers treat as a silent drop (spec §7).
func DecodeKRContent(content []byte) (ct uint64, pk [32]byte, egkrs []EGKR, err error) {
	blocks, perr := parseTLVBlocks(content)
	if perr != nil {
		return 0, pk, nil, ErrTLVParse
	}
	if len(blocks) != 3 ||
		blocks[0].Type != tlvCreateTime ||
		blocks[1].Type != tlvGroupPK ||
		blocks[2].Type != tlvEGKRVec {
		return 0, pk, nil, ErrTLVParse
	}
	if len(blocks[0].Value) != 8 {
		return 0, pk, nil, ErrTLVParse
	}
	ct = binary.BigEndian.Uint64(blocks[0].Value)

	if len(blocks[1].Value) != 32 {
		return 0, pk, nil, ErrTLVParse
	}
	copy(pk[:], blocks[1].Value)

	vec := blocks[2].Value
	const recLen = 32 + sealedLen
	if len(vec)%recLen != 0 {
		return 0, pk, nil, ErrTLVParse
	}
	for i := 0; i < len(vec); i += recLen {
		var e EGKR
		copy(e.TP[:], vec[i:i+32])
		e.Sealed = append([]byte(nil), vec[i+32:i+recLen]...)
		egkrs = append(egkrs, e)
	}
	return ct, pk, egkrs, nil
}
