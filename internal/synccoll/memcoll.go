package synccoll

import (
	"strings"
	"sync"
	"time"
)

// Hub is a shared in-process "network": every Collection created from the
// same Hub can see every other Collection's publications, filtered by
// subscription prefix, the way a set of DCT peers on the same syncps
// collection would. It exists so tests and single-binary demos can wire up
// several simulated identities without a real transport.
type Hub struct {
	mu   sync.Mutex
	subs map[*memCollection]struct{}
	log  map[Name]Publication
}

// NewHub returns an empty, ready-to-use Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*memCollection]struct{}), log: make(map[Name]Publication)}
}

func (h *Hub) register(c *memCollection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[c] = struct{}{}
}

func (h *Hub) unregister(c *memCollection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, c)
}

func (h *Hub) fanout(p Publication) {
	h.mu.Lock()
	h.log[p.Name] = p
	targets := make([]*memCollection, 0, len(h.subs))
	for c := range h.subs {
		targets = append(targets, c)
	}
	h.mu.Unlock()
	for _, c := range targets {
		c.deliver(p)
	}
}

// snapshot returns every retained publication matching prefix, standing in
// for a real syncps collection's reconciliation: a peer that subscribes
// after a publication went out still catches up on it via state
// reconciliation, not just on future live traffic.
func (h *Hub) snapshot(prefix Name) []Publication {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Publication
	for _, p := range h.log {
		if isPrefix(prefix, p.Name) {
			out = append(out, p)
		}
	}
	return out
}

// job is one unit of work run serially on a memCollection's own executor
// goroutine, standing in for spec §5's single I/O executor per peer.
type job func()

// memCollection is an in-process Collection bound to a Hub. Every callback
// it invokes — publication delivery, timers — runs on the collection's own
// goroutine, one at a time, so a distributor built on top never observes
// concurrent callback invocations.
type memCollection struct {
	hub *Hub

	inbox  chan job
	done   chan struct{}
	closed sync.Once

	mu             sync.Mutex
	subsByPrefix   map[Name]func(Publication)
	cStateLifetime time.Duration
	pubLifetime    time.Duration
	lifetimeCb     LifetimeFunc
}

// NewCollection returns a Collection registered on hub.
func (h *Hub) NewCollection() *memCollection {
	c := &memCollection{
		hub:          h,
		inbox:        make(chan job, 256),
		done:         make(chan struct{}),
		subsByPrefix: make(map[Name]func(Publication)),
	}
	h.register(c)
	go c.run()
	return c
}

func (c *memCollection) run() {
	for {
		select {
		case j := <-c.inbox:
			j()
		case <-c.done:
			return
		}
	}
}

// Close stops the collection's executor and removes it from its hub.
// Not part of the Collection interface; used by tests to shut down
// cleanly (spec §5: "dropping the SGKD instance implicitly cancels all its
// pending timers and subscriptions").
func (c *memCollection) Close() {
	c.closed.Do(func() {
		c.hub.unregister(c)
		close(c.done)
	})
}

func isPrefix(prefix, name Name) bool {
	return strings.HasPrefix(string(name), string(prefix))
}

func (c *memCollection) deliver(p Publication) {
	c.mu.Lock()
	var matched []func(Publication)
	for prefix, cb := range c.subsByPrefix {
		if isPrefix(prefix, p.Name) {
			matched = append(matched, cb)
		}
	}
	c.mu.Unlock()
	for _, cb := range matched {
		cb := cb
		select {
		case c.inbox <- func() { cb(p) }:
		case <-c.done:
			return
		}
	}
}

func (c *memCollection) Publish(p Publication) error {
	c.hub.fanout(p)
	return nil
}

func (c *memCollection) PublishConfirm(p Publication, cb ConfirmFunc) error {
	c.hub.fanout(p)
	// The in-memory hub delivers synchronously to every registered
	// subscriber's inbox before fanout returns, so "confirmed" here means
	// "handed to every currently-registered peer".
	if cb != nil {
		select {
		case c.inbox <- func() { cb(p, true) }:
		case <-c.done:
		}
	}
	return nil
}

func (c *memCollection) Subscribe(prefix Name, cb func(Publication)) error {
	c.mu.Lock()
	c.subsByPrefix[prefix] = cb
	c.mu.Unlock()

	for _, p := range c.hub.snapshot(prefix) {
		p := p
		select {
		case c.inbox <- func() { cb(p) }:
		case <-c.done:
			return nil
		}
	}
	return nil
}

func (c *memCollection) Unsubscribe(prefix Name) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subsByPrefix, prefix)
	return nil
}

type memTimer struct {
	t *time.Timer
}

func (h *memTimer) Cancel() { h.t.Stop() }

func (c *memCollection) scheduleJob(d time.Duration, cb func()) TimerHandle {
	t := time.AfterFunc(d, func() {
		select {
		case c.inbox <- cb:
		case <-c.done:
		}
	})
	return &memTimer{t: t}
}

func (c *memCollection) OneTime(d time.Duration, cb func()) TimerHandle {
	return c.scheduleJob(d, cb)
}

func (c *memCollection) Schedule(d time.Duration, cb func()) TimerHandle {
	return c.scheduleJob(d, cb)
}

func (c *memCollection) CStateLifetime(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cStateLifetime = d
}

func (c *memCollection) PubLifetime(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pubLifetime = d
}

func (c *memCollection) GetLifetimeCb(f LifetimeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lifetimeCb = f
}

var _ Collection = (*memCollection)(nil)
