package sgkd

import (
	"bytes"
	"crypto/ed25519"
	"testing"
)

func TestEdToXProducesNonZeroKeys(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	skx, err := EdSKToX(priv)
	if err != nil {
		t.Fatalf("EdSKToX: %v", err)
	}
	pkx, err := EdPKToX(pub)
	if err != nil {
		t.Fatalf("EdPKToX: %v", err)
	}
	if skx == ([32]byte{}) || pkx == ([32]byte{}) {
		t.Fatalf("conversion produced zero key")
	}
}

func TestEdSKToXRejectsWrongLength(t *testing.T) {
	if _, err := EdSKToX(make([]byte, 10)); err != ErrKeyConversion {
		t.Fatalf("expected ErrKeyConversion, got %v", err)
	}
}

func TestEdPKToXRejectsWrongLength(t *testing.T) {
	if _, err := EdPKToX(make([]byte, 10)); err != ErrKeyConversion {
		t.Fatalf("expected ErrKeyConversion, got %v", err)
	}
}

// TestSealedBoxRoundTrip is the spec's Round-trip invariant: sealed_box_open
// (sealed_box_encrypt(sk, pk_r), pk_r, sk_r) == sk for any valid recipient.
func TestSealedBoxRoundTrip(t *testing.T) {
	recipientPK, recipientSK, err := GenerateX25519Keypair()
	if err != nil {
		t.Fatalf("GenerateX25519Keypair: %v", err)
	}
	secret := []byte("0123456789abcdef0123456789abcdef") // 32 bytes, arbitrary
	ct, err := SealedBoxEncrypt(secret, recipientPK)
	if err != nil {
		t.Fatalf("SealedBoxEncrypt: %v", err)
	}
	if len(ct) != len(secret)+sealOverhead {
		t.Fatalf("ciphertext length = %d, want %d", len(ct), len(secret)+sealOverhead)
	}
	got, err := SealedBoxOpen(ct, recipientPK, recipientSK)
	if err != nil {
		t.Fatalf("SealedBoxOpen: %v", err)
	}
	if !bytes.Equal(got, secret) {
		t.Fatalf("round trip mismatch: got %x want %x", got, secret)
	}
}

func TestSealedBoxOpenWrongRecipientFails(t *testing.T) {
	recipientPK, _, err := GenerateX25519Keypair()
	if err != nil {
		t.Fatalf("GenerateX25519Keypair: %v", err)
	}
	_, otherSK, err := GenerateX25519Keypair()
	if err != nil {
		t.Fatalf("GenerateX25519Keypair: %v", err)
	}
	ct, err := SealedBoxEncrypt([]byte("secret"), recipientPK)
	if err != nil {
		t.Fatalf("SealedBoxEncrypt: %v", err)
	}
	if _, err := SealedBoxOpen(ct, recipientPK, otherSK); err != ErrSealedBoxOpen {
		t.Fatalf("expected ErrSealedBoxOpen, got %v", err)
	}
}

func TestSealedBoxOpenCorruptedFails(t *testing.T) {
	recipientPK, recipientSK, err := GenerateX25519Keypair()
	if err != nil {
		t.Fatalf("GenerateX25519Keypair: %v", err)
	}
	ct, err := SealedBoxEncrypt([]byte("secret"), recipientPK)
	if err != nil {
		t.Fatalf("SealedBoxEncrypt: %v", err)
	}
	ct[len(ct)-1] ^= 0xff
	if _, err := SealedBoxOpen(ct, recipientPK, recipientSK); err != ErrSealedBoxOpen {
		t.Fatalf("expected ErrSealedBoxOpen, got %v", err)
	}
}
