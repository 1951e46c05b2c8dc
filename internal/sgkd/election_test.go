package sgkd

import (
	"testing"
	"time"

	"github.com/dct-go/sgkd/internal/synccoll"
)

func TestElectionSoloWins(t *testing.T) {
	hub := synccoll.NewHub()
	coll := hub.NewCollection()
	defer coll.Close()

	self := tpFromByte(0x10)
	el := NewElection("/dom/sg1", coll, nil, self, 3, KindGroup)

	done := make(chan struct{})
	var elected bool
	var epoch Epoch
	el.Start(func(e bool, ep Epoch) {
		elected = e
		epoch = ep
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("election did not settle in time")
	}
	if !elected {
		t.Fatalf("solo candidate should be elected")
	}
	if epoch != 1 {
		t.Fatalf("epoch = %d, want 1", epoch)
	}
}

// TestElectionHigherThumbprintWins is the core of I-ConflictConverge: two
// concurrent candidates, the strictly greater thumbprint wins.
func TestElectionHigherThumbprintWins(t *testing.T) {
	hub := synccoll.NewHub()
	collA := hub.NewCollection()
	collB := hub.NewCollection()
	defer collA.Close()
	defer collB.Close()

	tpA := tpFromByte(0x11)
	tpB := tpFromByte(0x22)

	elA := NewElection("/dom/sg1", collA, nil, tpA, 3, KindGroup)
	elB := NewElection("/dom/sg1", collB, nil, tpB, 3, KindGroup)

	doneA := make(chan bool, 1)
	doneB := make(chan bool, 1)
	elA.Start(func(e bool, _ Epoch) { doneA <- e })
	elB.Start(func(e bool, _ Epoch) { doneB <- e })

	var electedA, electedB bool
	select {
	case electedA = <-doneA:
	case <-time.After(2 * time.Second):
		t.Fatalf("A did not settle")
	}
	select {
	case electedB = <-doneB:
	case <-time.After(2 * time.Second):
		t.Fatalf("B did not settle")
	}
	if electedA {
		t.Fatalf("lower thumbprint A should not win")
	}
	if !electedB {
		t.Fatalf("higher thumbprint B should win")
	}
}
