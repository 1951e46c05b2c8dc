// Package synccoll defines the "sync collection" sgkd rides on top of
// (spec §6): a reconciled set of named, signed publications shared by a
// group of peers, modeled after DCT's syncps set-reconciliation transport.
// The set-reconciliation algorithm itself (IBLT-based in the original) is
// out of scope (spec §1); what sgkd needs is the interface below, which
// this package provides two implementations of:
//
//   - memcoll: an in-process, deterministic fan-out used by tests and by
//     single-binary demos with multiple simulated identities.
//   - gossipcoll (build tag "gossip"): a github.com/libp2p/go-libp2p-pubsub
//     gossipsub topic per collection, for an actual multi-process demo.
package synccoll

import (
	"time"

	"github.com/dct-go/sgkd/internal/certstore"
)

// Name is an opaque, slash-separated publication name, e.g.
// "/root/kr/1/aabbccdd/11223344/1699999999000000".
type Name string

// Publication is one named, signed, content-bearing unit of data riding the
// sync collection.
type Publication struct {
	Name      Name
	Content   []byte
	Signer    certstore.ThumbPrint
	Signature []byte
}

// SigningBytes implements sigmgr.Signable.
func (p *Publication) SigningBytes() []byte {
	b := make([]byte, 0, len(p.Name)+len(p.Content))
	b = append(b, []byte(p.Name)...)
	b = append(b, p.Content...)
	return b
}

// SetSignature implements sigmgr.Signable.
func (p *Publication) SetSignature(signer certstore.ThumbPrint, sig []byte) {
	p.Signer = signer
	p.Signature = sig
}

// ConfirmFunc is invoked once a published publication either reaches
// confirmed delivery or is given up on, matching DistSGKey's
// publish(pub, confirmCb) contract (spec §6). The bool reports success.
type ConfirmFunc func(p Publication, ok bool)

// TimerHandle is a cancellable scheduled callback (spec §5: "All timer
// handles must be cancellable").
type TimerHandle interface {
	Cancel()
}

// LifetimeFunc computes how long a given publication name should survive
// in the collection's reconciliation state, mirroring getLifetimeCb.
type LifetimeFunc func(Name) time.Duration

// GossipConfig configures a gossipsub-backed Collection. One Collection
// corresponds to one DCT sync collection (e.g. the public-keys collection
// or one subscriber group's secret-key collection) and is carried over a
// single gossipsub topic; sgkd's own Subscribe/Unsubscribe prefixes are
// filtered locally against every message received on that topic, the same
// way the in-memory implementation does — a real syncps reconciles many
// sub-prefixes within one collection, it does not map each prefix to its
// own transport topic. Declared here (untagged) rather than in gossipcoll.go
// so callers can reference it regardless of the 'gossip' build tag.
type GossipConfig struct {
	Listen    []string
	Bootnodes []string
	NAT       bool
	Topic     string
}

// Collection is the external sync-collection surface (spec §6).
type Collection interface {
	// Publish submits p for distribution with no confirmation callback.
	Publish(p Publication) error
	// PublishConfirm submits p and invokes cb once delivery succeeds or is
	// abandoned.
	PublishConfirm(p Publication, cb ConfirmFunc) error
	// Subscribe registers cb for every publication whose name has prefix.
	// Subscribing the same prefix twice replaces the previous callback.
	Subscribe(prefix Name, cb func(Publication)) error
	// Unsubscribe removes a subscription registered on prefix.
	Unsubscribe(prefix Name) error
	// OneTime schedules cb to run once after d.
	OneTime(d time.Duration, cb func()) TimerHandle
	// Schedule is OneTime's alias used for self-rescheduling timers
	// (rekey, MR refresh) — kept as a distinct method name to mirror the
	// original API surface (m_sync.schedule vs m_sync.oneTime) even though
	// the two behave identically here.
	Schedule(d time.Duration, cb func()) TimerHandle
	// CStateLifetime sets the reconciliation-state advertisement lifetime.
	CStateLifetime(d time.Duration)
	// PubLifetime sets the default publication lifetime.
	PubLifetime(d time.Duration)
	// GetLifetimeCb installs a per-name lifetime override.
	GetLifetimeCb(f LifetimeFunc)
}
