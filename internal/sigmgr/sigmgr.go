// Package sigmgr provides the signature-manager surface sgkd depends on as
// an external collaborator (spec §6: "sign(pub), updateSigningKey(sk,cert),
// setKeyCb(lookup)"). Two independent instances are used by a distributor,
// one for sync-collection state packets and one for key-collection
// publications, exactly as in the original dist_sgkey.hpp (m_syncSM,
// m_keySM).
//
// This implementation is plain Ed25519 over (name || content); it is
// intentionally the simplest thing that lets the rest of sgkd exercise a
// real sign/verify boundary without pulling in a full NDN signature-type
// registry (sigmgr_by_type.hpp in the original supports several signature
// types — out of scope here per spec §1).
package sigmgr

import (
	"crypto/ed25519"
	"errors"
	"sync"

	"github.com/dct-go/sgkd/internal/certstore"
)

// KeyLookup resolves a signer's thumbprint to its current Ed25519 public
// key, normally backed by the certstore.
type KeyLookup func(tp certstore.ThumbPrint) (ed25519.PublicKey, bool)

// Signable is the minimal shape a publication must present to be signed:
// a stable byte representation to sign over, plus somewhere to record the
// signer thumbprint and signature bytes.
type Signable interface {
	SigningBytes() []byte
	SetSignature(signer certstore.ThumbPrint, sig []byte)
}

// Manager signs outgoing publications and verifies incoming ones.
type Manager struct {
	mu      sync.RWMutex
	sk      ed25519.PrivateKey
	tp      certstore.ThumbPrint
	lookup  KeyLookup
}

// New returns a Manager with no signing key installed yet; UpdateSigningKey
// must be called before Sign can succeed.
func New() *Manager { return &Manager{} }

// UpdateSigningKey installs a new local signing key and its certificate's
// thumbprint, mirroring the original's updateSigningKey(sk, cert) hook.
func (m *Manager) UpdateSigningKey(sk ed25519.PrivateKey, cert certstore.Cert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sk = sk
	m.tp = cert.Thumbprint
}

// SetKeyCb installs the callback used to resolve a signer's public key at
// verification time.
func (m *Manager) SetKeyCb(lookup KeyLookup) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookup = lookup
}

// ErrNoSigningKey is returned by Sign when UpdateSigningKey hasn't run yet.
var ErrNoSigningKey = errors.New("sigmgr: no signing key installed")

// Sign signs p's name||content and stamps it with the local thumbprint,
// "putting my thumbprint into the Publication" as the original comment
// puts it.
func (m *Manager) Sign(p Signable) error {
	m.mu.RLock()
	sk, tp := m.sk, m.tp
	m.mu.RUnlock()
	if sk == nil {
		return ErrNoSigningKey
	}
	sig := ed25519.Sign(sk, p.SigningBytes())
	p.SetSignature(tp, sig)
	return nil
}

// ErrUnknownSigner is returned by Verify when the key lookup can't resolve
// the claimed signer.
var ErrUnknownSigner = errors.New("sigmgr: unknown signer")

// ErrBadSignature is returned by Verify on a cryptographic mismatch.
var ErrBadSignature = errors.New("sigmgr: signature verification failed")

// Verify checks a publication's signature against the installed key
// lookup. Callers treat any returned error as a silent-drop disposition
// (spec §7: TLV/sealed-box/authorization failures never propagate).
func (m *Manager) Verify(p Signable, signer certstore.ThumbPrint, sig []byte) error {
	m.mu.RLock()
	lookup := m.lookup
	m.mu.RUnlock()
	if lookup == nil {
		return ErrUnknownSigner
	}
	pub, ok := lookup(signer)
	if !ok {
		return ErrUnknownSigner
	}
	if !ed25519.Verify(pub, p.SigningBytes(), sig) {
		return ErrBadSignature
	}
	return nil
}
