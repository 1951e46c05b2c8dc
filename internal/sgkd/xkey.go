package sgkd

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"errors"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

// ErrKeyConversion is the fatal disposition for a malformed identity key
// (spec §7: "Ed25519→X25519 conversion fails ... Fatal at startup").
var ErrKeyConversion = errors.New("sgkd: ed25519 to x25519 key conversion failed")

// EdSKToX converts an Ed25519 private key's seed to an X25519 secret
// scalar: SHA-512 the 32-byte seed, clamp the low-order bits of the first
// 32 output bytes. This reproduces libsodium's
// crypto_sign_ed25519_sk_to_curve25519 bit for bit.
func EdSKToX(sk ed25519.PrivateKey) ([32]byte, error) {
	var out [32]byte
	if len(sk) != ed25519.PrivateKeySize {
		return out, ErrKeyConversion
	}
	h := sha512.Sum512(sk.Seed())
	copy(out[:], h[:32])
	out[0] &= 248
	out[31] &= 127
	out[31] |= 64
	return out, nil
}

// EdPKToX converts an Ed25519 public key (an Edwards point) to its
// Curve25519 Montgomery u-coordinate, reproducing
// crypto_sign_ed25519_pk_to_curve25519.
func EdPKToX(pk ed25519.PublicKey) ([32]byte, error) {
	var out [32]byte
	if len(pk) != ed25519.PublicKeySize {
		return out, ErrKeyConversion
	}
	p, err := new(edwards25519.Point).SetBytes(pk)
	if err != nil {
		return out, ErrKeyConversion
	}
	copy(out[:], p.BytesMontgomery())
	return out, nil
}

// GenerateX25519Keypair generates a fresh X25519 keypair for a new group
// key epoch (spec §4.4 step 1: "Generate (pk, sk) via X25519 keygen").
func GenerateX25519Keypair() (pk, sk [32]byte, err error) {
	if _, err = rand.Read(sk[:]); err != nil {
		return pk, sk, err
	}
	pub, err := curve25519.X25519(sk[:], curve25519.Basepoint)
	if err != nil {
		return pk, sk, err
	}
	copy(pk[:], pub)
	return pk, sk, nil
}

// ErrSealedBoxOpen is the non-fatal disposition for a corrupted or
// wrong-recipient sealed box (spec §7: "drop silently").
var ErrSealedBoxOpen = errors.New("sgkd: sealed box open failed")

// SealedBoxEncrypt reproduces libsodium's crypto_box_seal: an ephemeral
// X25519 keypair, a nonce derived from BLAKE2b-24(ephemeral_pk ||
// recipient_pk), and a NaCl box under the ephemeral/recipient shared
// secret. Output is ephemeral_pk(32) || box(msg), box carrying the usual
// 16-byte Poly1305 overhead — 48 bytes of overhead in total.
func SealedBoxEncrypt(msg []byte, recipientPK [32]byte) ([]byte, error) {
	ephPub, ephPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	nonce, err := sealedBoxNonce(ephPub[:], recipientPK[:])
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 32+len(msg)+box.Overhead)
	out = append(out, ephPub[:]...)
	out = box.Seal(out, msg, &nonce, &recipientPK, ephPriv)
	return out, nil
}

// SealedBoxOpen is the receiver half of SealedBoxEncrypt. Any failure —
// short ciphertext, corrupted MAC, wrong recipient key — returns
// ErrSealedBoxOpen and callers drop the record silently (spec §7).
func SealedBoxOpen(ct []byte, recipientPK, recipientSK [32]byte) ([]byte, error) {
	if len(ct) < 32+box.Overhead {
		return nil, ErrSealedBoxOpen
	}
	var ephPub [32]byte
	copy(ephPub[:], ct[:32])
	nonce, err := sealedBoxNonce(ephPub[:], recipientPK[:])
	if err != nil {
		return nil, ErrSealedBoxOpen
	}
	msg, ok := box.Open(nil, ct[32:], &nonce, &ephPub, &recipientSK)
	if !ok {
		return nil, ErrSealedBoxOpen
	}
	return msg, nil
}

func sealedBoxNonce(ephPK, recipientPK []byte) ([24]byte, error) {
	var nonce [24]byte
	h, err := blake2b.New(24, nil)
	if err != nil {
		return nonce, err
	}
	h.Write(ephPK)
	h.Write(recipientPK)
	copy(nonce[:], h.Sum(nil))
	return nonce, nil
}
