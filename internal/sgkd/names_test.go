package sgkd

import "testing"

func TestKRNameRoundTrip(t *testing.T) {
	lo := tpFromByte(0x11)
	hi := tpFromByte(0x99)
	name := krName("/dom/sg1", Epoch(1), lo, hi, 12345)

	fields, err := parseKRName("/dom/sg1", name)
	if err != nil {
		t.Fatalf("parseKRName: %v", err)
	}
	if fields.Epoch != 1 {
		t.Fatalf("epoch = %d, want 1", fields.Epoch)
	}
	if fields.TS != 12345 {
		t.Fatalf("ts = %d, want 12345", fields.TS)
	}
	var wantLo, wantHi [4]byte
	copy(wantLo[:], lo[:4])
	copy(wantHi[:], hi[:4])
	if fields.TPLo != wantLo || fields.TPHi != wantHi {
		t.Fatalf("range mismatch: got lo=%x hi=%x want lo=%x hi=%x", fields.TPLo, fields.TPHi, wantLo, wantHi)
	}
}

func TestParseKRNameRejectsWrongPrefix(t *testing.T) {
	name := krName("/dom/sg1", Epoch(1), tpFromByte(1), tpFromByte(2), 1)
	if _, err := parseKRName("/dom/other", name); err != ErrNameParse {
		t.Fatalf("expected ErrNameParse, got %v", err)
	}
}

func TestCandNameRoundTrip(t *testing.T) {
	tp := tpFromByte(0x42)
	name := candName("/dom/sg1", 5, tp, 999)
	priority, gotTP, ts, err := parseCandName("/dom/sg1", name)
	if err != nil {
		t.Fatalf("parseCandName: %v", err)
	}
	if priority != 5 || gotTP != tp || ts != 999 {
		t.Fatalf("mismatch: priority=%d tp=%x ts=%d", priority, gotTP, ts)
	}
}
