//go:build gossip

package synccoll

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	p2phost "github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dct-go/sgkd/internal/certstore"
	"github.com/dct-go/sgkd/pkg/logger"
	"github.com/dct-go/sgkd/pkg/metrics"
)

type wireMsg struct {
	Name      string `json:"name"`
	Content   []byte `json:"content"`
	Signer    []byte `json:"signer"`
	Signature []byte `json:"signature"`
}

// gossipCollection implements Collection on top of libp2p + gossipsub.
type gossipCollection struct {
	host   p2phost.Host
	ps     *pubsub.PubSub
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	subsByPrefix   map[Name]func(Publication)
	cStateLifetime time.Duration
	pubLifetime    time.Duration
	lifetimeCb     LifetimeFunc
}

// NewGossipCollection brings up a libp2p host, joins cfg.Topic over
// gossipsub, dials each of cfg.Bootnodes (a failed dial is logged, not
// fatal), and starts the receive loop.
func NewGossipCollection(cfg GossipConfig) (*gossipCollection, error) {
	opts := []libp2p.Option{}
	var addrs []ma.Multiaddr
	for _, s := range cfg.Listen {
		if strings.TrimSpace(s) == "" {
			continue
		}
		a, err := ma.NewMultiaddr(s)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, a)
	}
	if len(addrs) > 0 {
		opts = append(opts, libp2p.ListenAddrs(addrs...))
	}
	if cfg.NAT {
		opts = append(opts, libp2p.NATPortMap())
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		cancel()
		return nil, err
	}
	topic, err := ps.Join(cfg.Topic)
	if err != nil {
		cancel()
		return nil, err
	}
	sub, err := topic.Subscribe()
	if err != nil {
		cancel()
		return nil, err
	}
	for _, s := range cfg.Bootnodes {
		ai, err := peer.AddrInfoFromString(s)
		if err != nil {
			cancel()
			return nil, err
		}
		if err := h.Connect(ctx, *ai); err != nil {
			logger.ErrorJ("synccoll_gossip_bootnode_failed", map[string]any{"addr": s, "err": err.Error()})
		}
	}
	g := &gossipCollection{
		host: h, ps: ps, topic: topic, sub: sub, ctx: ctx, cancel: cancel,
		subsByPrefix: make(map[Name]func(Publication)),
	}
	go g.loop()
	logger.InfoJ("synccoll_gossip_start", map[string]any{"topic": cfg.Topic, "self": h.ID().String()})
	return g, nil
}

func (g *gossipCollection) loop() {
	for {
		m, err := g.sub.Next(g.ctx)
		if err != nil {
			return
		}
		var w wireMsg
		if err := json.Unmarshal(m.Data, &w); err != nil {
			metrics.Inc("sgkd_synccoll_decode_errors_total", map[string]string{"topic": g.topic.String()})
			continue
		}
		var signer certstore.ThumbPrint
		copy(signer[:], w.Signer)
		p := Publication{Name: Name(w.Name), Content: w.Content, Signer: signer, Signature: w.Signature}
		g.dispatch(p)
	}
}

func (g *gossipCollection) dispatch(p Publication) {
	g.mu.Lock()
	var matched []func(Publication)
	for prefix, cb := range g.subsByPrefix {
		if strings.HasPrefix(string(p.Name), string(prefix)) {
			matched = append(matched, cb)
		}
	}
	g.mu.Unlock()
	for _, cb := range matched {
		cb(p)
	}
}

func (g *gossipCollection) Publish(p Publication) error {
	w := wireMsg{Name: string(p.Name), Content: p.Content, Signer: p.Signer[:], Signature: p.Signature}
	b, err := json.Marshal(w)
	if err != nil {
		return err
	}
	return g.topic.Publish(g.ctx, b)
}

func (g *gossipCollection) PublishConfirm(p Publication, cb ConfirmFunc) error {
	err := g.Publish(p)
	if cb != nil {
		cb(p, err == nil)
	}
	return err
}

func (g *gossipCollection) Subscribe(prefix Name, cb func(Publication)) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subsByPrefix[prefix] = cb
	return nil
}

func (g *gossipCollection) Unsubscribe(prefix Name) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.subsByPrefix, prefix)
	return nil
}

type gossipTimer struct{ t *time.Timer }

func (h *gossipTimer) Cancel() { h.t.Stop() }

func (g *gossipCollection) OneTime(d time.Duration, cb func()) TimerHandle {
	return &gossipTimer{t: time.AfterFunc(d, cb)}
}

func (g *gossipCollection) Schedule(d time.Duration, cb func()) TimerHandle {
	return &gossipTimer{t: time.AfterFunc(d, cb)}
}

func (g *gossipCollection) CStateLifetime(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cStateLifetime = d
}

func (g *gossipCollection) PubLifetime(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pubLifetime = d
}

func (g *gossipCollection) GetLifetimeCb(f LifetimeFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lifetimeCb = f
}

// Close tears down the gossipsub subscription, topic, and host.
func (g *gossipCollection) Close() error {
	g.cancel()
	g.sub.Cancel()
	if err := g.topic.Close(); err != nil {
		return err
	}
	return g.host.Close()
}

var _ Collection = (*gossipCollection)(nil)
