package certstore

import (
	"crypto/ed25519"
	"sync"
)

// MemStore is an in-memory certstore.Store, good enough for tests and for
// cmd/sgkd-demo's local multi-identity simulation. It holds every cert
// handed to it via Add plus, optionally, the private signing key
// for its own identity (the first entry of Chains()).
type MemStore struct {
	mu      sync.RWMutex
	certs   map[ThumbPrint]Cert
	privKey map[ThumbPrint]ed25519.PrivateKey
	chain   []ThumbPrint // own chain, leaf first
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		certs:   make(map[ThumbPrint]Cert),
		privKey: make(map[ThumbPrint]ed25519.PrivateKey),
	}
}

// Add registers a cert (anyone's — own, a peer's, an issuer's) in the store.
func (m *MemStore) Add(c Cert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.certs[c.Thumbprint] = c
}

// Remove deletes a cert, e.g. to simulate expiry/pruning out of band.
func (m *MemStore) Remove(tp ThumbPrint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.certs, tp)
}

// SetOwnChain sets this store's own identity chain (leaf first) and the
// leaf's private signing key.
func (m *MemStore) SetOwnChain(chain []ThumbPrint, leafKey ed25519.PrivateKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chain = append([]ThumbPrint(nil), chain...)
	if len(chain) > 0 {
		m.privKey[chain[0]] = leafKey
	}
}

func (m *MemStore) Chains() []ThumbPrint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ThumbPrint(nil), m.chain...)
}

func (m *MemStore) Key(tp ThumbPrint) (ed25519.PrivateKey, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.privKey[tp]
	return k, ok
}

func (m *MemStore) Cert(tp ThumbPrint) (Cert, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.certs[tp]
	return c, ok
}

func (m *MemStore) Contains(tp ThumbPrint) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.certs[tp]
	return ok
}
