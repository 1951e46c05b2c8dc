package main

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/dct-go/sgkd/internal/sgkd"
	"github.com/dct-go/sgkd/internal/synccoll"
	"github.com/dct-go/sgkd/pkg/bus"
	"github.com/dct-go/sgkd/pkg/logger"
)

// memDemo runs several simulated identities in one process over an
// in-memory synccoll.Hub, exercising all three spec §8 scenarios at once
// (keymaker, subscriber, publish-only).
type memDemo struct {
	prefix      string
	rekey       time.Duration
	rekeyJitter time.Duration
	n           int
	bus         *bus.Bus

	ctx    context.Context
	hub    *synccoll.Hub
	closes []func()
}

func newMemDemo(prefix string, rekey, jitter time.Duration, n int, b *bus.Bus) *memDemo {
	if n < 1 {
		n = 1
	}
	return &memDemo{prefix: prefix, rekey: rekey, rekeyJitter: jitter, n: n, bus: b}
}

func (d *memDemo) Start(ctx context.Context) error {
	d.ctx = ctx
	roster := make([]rosterEntry, d.n)
	for i := range roster {
		_, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			return err
		}
		e := rosterEntry{Name: fmt.Sprintf("peer%d", i), Seed: fmt.Sprintf("%x", priv.Seed())}
		switch {
		case i == 0:
			e.SG, e.KM = "sg1", 5
		case i == d.n-1 && d.n > 2:
			// publish-only
		default:
			e.SG = "sg1"
		}
		roster[i] = e
	}

	hub := synccoll.NewHub()
	d.hub = hub

	for i := range roster {
		cs, priv, cert, err := rosterStore(roster, i)
		if err != nil {
			return err
		}
		coll := hub.NewCollection()
		d.closes = append(d.closes, coll.Close)

		dist := sgkd.New(sgkd.Config{
			Prefix:         d.prefix,
			Kind:           sgkd.KindGroup,
			Collection:     coll,
			CertStore:      cs,
			ReKeyInterval:  d.rekey,
			ReKeyRandomize: d.rekeyJitter,
		})
		name := roster[i].Name
		if err := dist.Setup(priv, cert, d.addKeyCb(name), d.connectedCb(name)); err != nil {
			return fmt.Errorf("sgkd-demo: setup %s: %w", name, err)
		}
	}
	logger.InfoJ("sgkd_demo_started", map[string]any{"mode": "memory", "identities": d.n, "prefix": d.prefix})
	return nil
}

func (d *memDemo) Stop(_ context.Context) error {
	for _, c := range d.closes {
		c()
	}
	return nil
}

func (d *memDemo) addKeyCb(name string) sgkd.AddKeyCb {
	return func(pk, _ [32]byte, hasSK bool, ct uint64) {
		logger.InfoJ("sgkd_demo_key", map[string]any{"peer": name, "has_secret": hasSK, "ct": ct, "pk_prefix": fmt.Sprintf("%x", pk[:4])})
		d.bus.Publish(d.ctx, bus.Event{Kind: bus.KindKeyChange, Body: name})
	}
}

func (d *memDemo) connectedCb(name string) sgkd.ConnectedCb {
	return func(ok bool) {
		logger.InfoJ("sgkd_demo_connected", map[string]any{"peer": name, "ok": ok})
		if ok {
			d.bus.Publish(d.ctx, bus.Event{Kind: bus.KindConnected, Body: name})
		}
	}
}

// gossipDemo runs exactly one identity from a shared roster over the real
// libp2p+gossipsub transport, for a genuine multi-process demo.
type gossipDemo struct {
	prefix      string
	rekey       time.Duration
	rekeyJitter time.Duration
	roster      []rosterEntry
	self        int
	gossipCfg   synccoll.GossipConfig
	bus         *bus.Bus

	ctx  context.Context
	dist *sgkd.Distributor
	coll synccoll.Collection
}

func newGossipDemo(prefix string, rekey, jitter time.Duration, roster []rosterEntry, self int, cfg synccoll.GossipConfig, b *bus.Bus) (*gossipDemo, error) {
	return &gossipDemo{prefix: prefix, rekey: rekey, rekeyJitter: jitter, roster: roster, self: self, gossipCfg: cfg, bus: b}, nil
}

func (d *gossipDemo) Start(ctx context.Context) error {
	d.ctx = ctx
	coll, err := synccoll.BuildGossipCollection(d.gossipCfg)
	if err != nil {
		return err
	}
	d.coll = coll

	cs, priv, cert, err := rosterStore(d.roster, d.self)
	if err != nil {
		return err
	}

	d.dist = sgkd.New(sgkd.Config{
		Prefix:         d.prefix,
		Kind:           sgkd.KindGroup,
		Collection:     coll,
		CertStore:      cs,
		ReKeyInterval:  d.rekey,
		ReKeyRandomize: d.rekeyJitter,
	})
	name := d.roster[d.self].Name
	if err := d.dist.Setup(priv, cert, d.gossipAddKeyCb(name), d.gossipConnectedCb(name)); err != nil {
		return fmt.Errorf("sgkd-demo: setup %s: %w", name, err)
	}
	logger.InfoJ("sgkd_demo_started", map[string]any{"mode": "gossip", "self": name, "prefix": d.prefix})
	return nil
}

func (d *gossipDemo) Stop(_ context.Context) error {
	if closer, ok := d.coll.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func (d *gossipDemo) gossipAddKeyCb(name string) sgkd.AddKeyCb {
	return func(pk, _ [32]byte, hasSK bool, ct uint64) {
		logger.InfoJ("sgkd_demo_key", map[string]any{"peer": name, "has_secret": hasSK, "ct": ct, "pk_prefix": fmt.Sprintf("%x", pk[:4])})
		d.bus.Publish(d.ctx, bus.Event{Kind: bus.KindKeyChange, Body: name})
	}
}

func (d *gossipDemo) gossipConnectedCb(name string) sgkd.ConnectedCb {
	return func(ok bool) {
		logger.InfoJ("sgkd_demo_connected", map[string]any{"peer": name, "ok": ok})
		if ok {
			d.bus.Publish(d.ctx, bus.Event{Kind: bus.KindConnected, Body: name})
		}
	}
}
