package sgkd

import (
	"crypto/ed25519"
	"sync"
	"testing"
	"time"

	"github.com/dct-go/sgkd/internal/certstore"
	"github.com/dct-go/sgkd/internal/synccoll"
)

type testIdentity struct {
	priv ed25519.PrivateKey
	cert certstore.Cert
}

func newTestIdentity(t *testing.T, caps map[certstore.Capability]string) testIdentity {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	tp := certstore.ComputeThumbPrint(pub)
	return testIdentity{
		priv: priv,
		cert: certstore.Cert{
			Name:         "/dom/id",
			Thumbprint:   tp,
			SigningKey:   pub,
			ValidFrom:    time.Now().Add(-time.Hour),
			ValidUntil:   time.Now().Add(time.Hour),
			Capabilities: caps,
		},
	}
}

func newTestStore(self testIdentity, others ...testIdentity) *certstore.MemStore {
	cs := certstore.NewMemStore()
	cs.Add(self.cert)
	for _, o := range others {
		cs.Add(o.cert)
	}
	cs.SetOwnChain([]certstore.ThumbPrint{self.cert.Thumbprint}, self.priv)
	return cs
}

// TestSoloKeymaker is scenario 1 of spec §8: one SG+KM peer boots, elects
// itself, publishes an empty KR, and connectedCb fires.
func TestSoloKeymaker(t *testing.T) {
	idA := newTestIdentity(t, map[certstore.Capability]string{certstore.CapSG: "sg1", certstore.CapKM: "5"})
	csA := newTestStore(idA)

	hub := synccoll.NewHub()
	collA := hub.NewCollection()
	defer collA.Close()

	d := New(Config{
		Prefix:        "/dom/sg1",
		Kind:          KindGroup,
		Collection:    collA,
		CertStore:     csA,
		ReKeyInterval: time.Hour,
	})

	connected := make(chan struct{})
	var once sync.Once
	var mu sync.Mutex
	var gotKey bool
	var hasSKOut bool

	err := d.Setup(idA.priv, idA.cert,
		func(pk, sk [32]byte, hasSK bool, ct uint64) {
			mu.Lock()
			gotKey = true
			hasSKOut = hasSK
			mu.Unlock()
		},
		func(ok bool) {
			if ok {
				once.Do(func() { close(connected) })
			}
		},
	)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatalf("connectedCb did not fire in time")
	}

	if d.Role() != RoleKeymaker {
		t.Fatalf("role = %v, want RoleKeymaker", d.Role())
	}
	mu.Lock()
	defer mu.Unlock()
	if !gotKey || !hasSKOut {
		t.Fatalf("expected addKeyCb with a secret key, got gotKey=%v hasSK=%v", gotKey, hasSKOut)
	}
	_, _, hasSK, ct := d.CurrentKey()
	if !hasSK || ct == 0 {
		t.Fatalf("CurrentKey: hasSK=%v ct=%d", hasSK, ct)
	}
}

// TestKeymakerAndSubscriber is scenario 2 of spec §8: after A is elected,
// B publishes an MR; A inserts B and issues a single-recipient KR; B opens
// the sealed box and both peers converge on the same (pk, sk, ct).
func TestKeymakerAndSubscriber(t *testing.T) {
	idA := newTestIdentity(t, map[certstore.Capability]string{certstore.CapSG: "sg1", certstore.CapKM: "5"})
	idB := newTestIdentity(t, map[certstore.Capability]string{certstore.CapSG: "sg1"})

	csA := newTestStore(idA, idB)
	csB := newTestStore(idB, idA)

	hub := synccoll.NewHub()
	collA := hub.NewCollection()
	collB := hub.NewCollection()
	defer collA.Close()
	defer collB.Close()

	dA := New(Config{Prefix: "/dom/sg1", Kind: KindGroup, Collection: collA, CertStore: csA, ReKeyInterval: time.Hour})
	dB := New(Config{Prefix: "/dom/sg1", Kind: KindGroup, Collection: collB, CertStore: csB, ReKeyInterval: time.Hour})

	var mu sync.Mutex
	var pkA, skA, pkB, skB [32]byte
	var hasSKA, hasSKB bool
	var ctA, ctB uint64

	connectedA := make(chan struct{})
	connectedB := make(chan struct{})
	var onceA, onceB sync.Once

	if err := dA.Setup(idA.priv, idA.cert,
		func(pk, sk [32]byte, hasSK bool, ct uint64) {
			mu.Lock()
			pkA, skA, hasSKA, ctA = pk, sk, hasSK, ct
			mu.Unlock()
		},
		func(ok bool) {
			if ok {
				onceA.Do(func() { close(connectedA) })
			}
		},
	); err != nil {
		t.Fatalf("Setup A: %v", err)
	}

	if err := dB.Setup(idB.priv, idB.cert,
		func(pk, sk [32]byte, hasSK bool, ct uint64) {
			mu.Lock()
			pkB, skB, hasSKB, ctB = pk, sk, hasSK, ct
			mu.Unlock()
		},
		func(ok bool) {
			if ok {
				onceB.Do(func() { close(connectedB) })
			}
		},
	); err != nil {
		t.Fatalf("Setup B: %v", err)
	}

	select {
	case <-connectedA:
	case <-time.After(2 * time.Second):
		t.Fatalf("A did not connect")
	}
	select {
	case <-connectedB:
	case <-time.After(3 * time.Second):
		t.Fatalf("B did not connect")
	}

	mu.Lock()
	defer mu.Unlock()
	if !hasSKA || !hasSKB {
		t.Fatalf("both A and B should hold the secret key: hasSKA=%v hasSKB=%v", hasSKA, hasSKB)
	}
	if pkA != pkB {
		t.Fatalf("pk mismatch")
	}
	if skA != skB {
		t.Fatalf("sk mismatch")
	}
	if ctA != ctB {
		t.Fatalf("ct mismatch: %d vs %d", ctA, ctB)
	}
}

// TestPublishOnlyPeer is scenario 3 of spec §8: a peer with no SG
// capability receives the group public key but never the secret half, and
// never issues an MR.
func TestPublishOnlyPeer(t *testing.T) {
	idA := newTestIdentity(t, map[certstore.Capability]string{certstore.CapSG: "sg1", certstore.CapKM: "5"})
	idC := newTestIdentity(t, nil)

	csA := newTestStore(idA, idC)
	csC := newTestStore(idC, idA)

	hub := synccoll.NewHub()
	collA := hub.NewCollection()
	collC := hub.NewCollection()
	defer collA.Close()
	defer collC.Close()

	dA := New(Config{Prefix: "/dom/sg1", Kind: KindGroup, Collection: collA, CertStore: csA, ReKeyInterval: time.Hour})
	dC := New(Config{Prefix: "/dom/sg1", Kind: KindGroup, Collection: collC, CertStore: csC, ReKeyInterval: time.Hour})

	if err := dA.Setup(idA.priv, idA.cert, func([32]byte, [32]byte, bool, uint64) {}, func(bool) {}); err != nil {
		t.Fatalf("Setup A: %v", err)
	}

	var mu sync.Mutex
	var gotPK bool
	var hasSKC bool
	connectedC := make(chan struct{})
	var onceC sync.Once

	if err := dC.Setup(idC.priv, idC.cert,
		func(pk, sk [32]byte, hasSK bool, ct uint64) {
			mu.Lock()
			gotPK = true
			hasSKC = hasSK
			mu.Unlock()
		},
		func(ok bool) {
			if ok {
				onceC.Do(func() { close(connectedC) })
			}
		},
	); err != nil {
		t.Fatalf("Setup C: %v", err)
	}

	select {
	case <-connectedC:
	case <-time.After(2 * time.Second):
		t.Fatalf("C did not connect")
	}

	mu.Lock()
	defer mu.Unlock()
	if !gotPK {
		t.Fatalf("publish-only peer never received the group key")
	}
	if hasSKC {
		t.Fatalf("publish-only peer should never receive the secret half")
	}
}
