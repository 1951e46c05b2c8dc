// Package certstore defines the certificate-store and schema-capability
// interfaces that sgkd treats as external collaborators (spec §6: "the
// certificate store and schema/capability checker"), plus a small in-memory
// implementation used by tests and by cmd/sgkd-demo.
//
// A real DCT deployment loads its trust schema and certificate chains from a
// signed bundle produced by separate CLI tooling (out of scope here, per
// spec §1). What sgkd needs from that machinery is exactly the surface
// below: thumbprint lookup, chain walk, and capability resolution.
package certstore

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"time"
)

// ThumbPrint is the 32-byte digest identifying a signing certificate.
type ThumbPrint [32]byte

// IsZero reports whether tp is the zero thumbprint (used as a sentinel for
// "no keymaker known yet" / "chain root").
func (tp ThumbPrint) IsZero() bool { return tp == ThumbPrint{} }

// Less orders thumbprints lexicographically, used by the election engine's
// priority+thumbprint tiebreak.
func (tp ThumbPrint) Less(other ThumbPrint) bool {
	for i := range tp {
		if tp[i] != other[i] {
			return tp[i] < other[i]
		}
	}
	return false
}

// ComputeThumbPrint hashes a certificate's canonical signing-key bytes.
func ComputeThumbPrint(signingKey ed25519.PublicKey) ThumbPrint {
	return sha256.Sum256(signingKey)
}

// Capability names recognized by the schema, per spec §3.
type Capability string

const (
	CapSG  Capability = "SG"
	CapKM  Capability = "KM"
	CapKMP Capability = "KMP"
)

// Cert is one signed identity in a trust-domain chain.
type Cert struct {
	// Name is the certificate's name, dot/slash-separated components as in
	// an NDN-style name (e.g. "/domain/relay/host3/KEY/..."). Nothing in
	// sgkd reads it; a caller-supplied sgkd.RoleExempt predicate may use it
	// for the relay-role exemption (spec §4.5 step 2, §9).
	Name string

	Thumbprint ThumbPrint
	SigningKey ed25519.PublicKey // the identity's own Ed25519 public key

	// Issuer is the thumbprint of the next certificate up the chain
	// (zero at the trust anchor).
	Issuer ThumbPrint

	ValidFrom  time.Time
	ValidUntil time.Time

	// Capabilities maps a capability name to its argument bytes, as found
	// anywhere in this identity's own certificate (not inherited — the
	// resolver in Resolve walks the chain itself).
	Capabilities map[Capability]string
}

// Expired reports whether the cert is not valid at t.
func (c Cert) Expired(t time.Time) bool {
	return t.After(c.ValidUntil) || (!c.ValidFrom.IsZero() && t.Before(c.ValidFrom))
}

// Store is the certificate-store interface sgkd depends on (spec §6).
type Store interface {
	// Chains returns this identity's own signing-chain thumbprints,
	// Chains()[0] being the leaf (own) certificate.
	Chains() []ThumbPrint
	// Key returns the private signing key for tp. Only ever called for
	// the local identity's own thumbprint.
	Key(tp ThumbPrint) (ed25519.PrivateKey, bool)
	// Cert returns the certificate for tp.
	Cert(tp ThumbPrint) (Cert, bool)
	// Contains reports whether tp is currently known to the store.
	Contains(tp ThumbPrint) bool
}

// ErrNoSuchCert names the "thumbprint not present in the store" condition.
// No function in this package returns it: Resolve and Priority report a
// missing thumbprint through their bool and zero results.
var ErrNoSuchCert = errors.New("certstore: no such certificate")

// Resolve walks the signing chain from tp up to the trust anchor and
// returns the first matching capability's argument bytes. This is C1, the
// capability resolver (spec §4.1).
func Resolve(cs Store, tp ThumbPrint, cap Capability) (string, bool) {
	cur := tp
	seen := map[ThumbPrint]bool{}
	for {
		if seen[cur] {
			return "", false // cycle guard; malformed chain
		}
		seen[cur] = true
		cert, ok := cs.Cert(cur)
		if !ok {
			return "", false
		}
		if v, ok := cert.Capabilities[cap]; ok {
			return v, true
		}
		if cert.Issuer.IsZero() {
			return "", false
		}
		cur = cert.Issuer
	}
}

// Priority resolves a KM/KMP-style single-digit priority capability,
// returning 0 if absent or malformed (spec §4.1: "any non-digit or wrong
// length value maps to 0").
func Priority(cs Store, tp ThumbPrint, cap Capability) int {
	v, ok := Resolve(cs, tp, cap)
	if !ok || len(v) != 1 {
		return 0
	}
	c := v[0]
	if c < '0' || c > '9' {
		return 0
	}
	return int(c - '0')
}

// SGCollection resolves the SG capability's argument, which names the
// collection (subscriber group) this identity may read.
func SGCollection(cs Store, tp ThumbPrint) (string, bool) {
	return Resolve(cs, tp, CapSG)
}
