// Package sgkd implements the subscriber-group key distribution core: the
// keymaker election, the sealed-box-encrypted group key records, and the
// membership request/grant protocol that rides on top of an external sync
// collection (internal/synccoll), certstore (internal/certstore), and
// signature manager (internal/sigmgr).
//
// A single Distributor instance corresponds to one C++ dist_sgkey instance:
// it serves exactly one collection (either the domain's public-keys
// collection or one subscriber group's secret-key collection) and is driven
// entirely by its own sync collection's callbacks — no locking is strictly
// required by the concurrency model (spec: "single I/O executor, no shared
// mutable state"), but Distributor keeps an internal mutex anyway so it
// stays safe if wired to a transport (gossipcoll) that delivers callbacks
// from more than one goroutine.
package sgkd

import "github.com/dct-go/sgkd/internal/certstore"

// Epoch identifies a keymaker reign. 0 means "unknown", the value before
// any election has settled.
type Epoch uint32

// Kind distinguishes the two collections a Distributor can serve: the
// domain-wide public-keys collection (KMP priority, 5s election settle) or
// one subscriber group's secret-key collection (KM priority, 500ms
// settle).
type Kind int

const (
	KindGroup Kind = iota
	KindPubKeys
)

const (
	pubKeyLen    = 32
	secretKeyLen = 32
	sealOverhead = 48 // libsodium crypto_box_seal: 32-byte ephemeral pk + 16-byte MAC
	sealedLen    = secretKeyLen + sealOverhead
)

// EGKR is one encrypted group-key record: a member's thumbprint paired with
// the group secret key sealed to that member's X25519 public key.
type EGKR struct {
	TP     certstore.ThumbPrint
	Sealed []byte // sealedLen (80) bytes
}

// AddKeyCb is invoked once per accepted key change (spec §6: "addKeyCb(pk,
// sk_or_empty, ct)"). hasSK is false for publish-only members, who only
// ever learn the group public key.
type AddKeyCb func(pk [pubKeyLen]byte, sk [secretKeyLen]byte, hasSK bool, ct uint64)

// ConnectedCb fires exactly once per Distributor lifetime, the first
// moment this identity reaches operational state for its role (spec §6).
type ConnectedCb func(ok bool)
