// Package bus is a small fan-out channel used to hand key-change and
// connectivity notifications from the sgkd distributor out to whatever in
// the owning process wants to observe them (a demo CLI, a metrics scraper,
// an upper-layer signature manager that isn't wired in-process).
package bus

import (
	"context"

	"github.com/dct-go/sgkd/pkg/trace"
)

// Kind identifies the category of an Event.
type Kind string

const (
	// KindKeyChange is published whenever addKeyCb fires: a new subscriber
	// group key pair (or, for publish-only peers, just the public half)
	// has been accepted.
	KindKeyChange Kind = "key_change"
	// KindConnected is published exactly once per distributor lifetime,
	// when connectedCb(true) fires.
	KindConnected Kind = "connected"
)

// Event is one notification carried on the bus.
type Event struct {
	Kind    Kind
	Body    any
	TraceID string
}

// Subscriber is a read-only view of the bus's channel.
type Subscriber <-chan Event

// Bus is a single-producer, best-effort fan-out channel: Publish never
// blocks, dropping the event if the buffer is full.
type Bus struct {
	ch chan Event
}

// New returns a Bus with the given buffer size; a size of zero or less
// yields a buffer of 128.
func New(size int) *Bus {
	if size <= 0 {
		size = 128
	}
	return &Bus{ch: make(chan Event, size)}
}

// Publish enqueues ev, dropping it silently on backpressure. If ev.TraceID
// is unset, it is backfilled from ctx (pkg/trace), so a caller that ran
// trace.New earlier in the call chain doesn't need to thread the id through
// by hand.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	if ev.TraceID == "" {
		if id, ok := trace.FromContext(ctx); ok {
			ev.TraceID = id
		}
	}
	select {
	case b.ch <- ev:
	default:
	}
}

// Subscribe returns the bus's receive end.
func (b *Bus) Subscribe() Subscriber { return b.ch }
