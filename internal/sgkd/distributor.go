package sgkd

import (
	"crypto/ed25519"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dct-go/sgkd/internal/certstore"
	"github.com/dct-go/sgkd/internal/sigmgr"
	"github.com/dct-go/sgkd/internal/synccoll"
	"github.com/dct-go/sgkd/pkg/logger"
)

// Role is the distributor's tagged state (design note: "a tagged state,
// not a subclass"), not a derived type — every method below switches on it
// rather than dispatching through an interface.
type Role int

const (
	RoleInit Role = iota
	RoleKeymaker
	RoleSubscriber
)

// ErrCertChainMismatch is fatal: updateSigningKey's cert doesn't match
// this identity's own chain root (spec §7).
var ErrCertChainMismatch = errors.New("sgkd: updateSigningKey cert does not match own chain")

// ErrRoleChanged is fatal: SG or KM capability changed across a key
// rotation for the same identity (spec §7: "schema violation").
var ErrRoleChanged = errors.New("sgkd: SG/KM role changed across key rotation")

// Config configures one Distributor. Exactly one Distributor exists per
// collection served (the domain public-keys collection, or one subscriber
// group's secret-key collection).
type Config struct {
	Prefix     string
	Kind       Kind
	Collection synccoll.Collection
	CertStore  certstore.Store

	// CollectionName is the value an identity's SG capability must carry to
	// be admitted to this collection's membership manager (spec §3: "SG ...
	// value = collection name"). Defaults to Prefix's last slash-separated
	// component.
	CollectionName string

	// RoleExempt optionally excludes a signer from the public-keys
	// collection's membership manager (spec §4.5 step 2, §9 open
	// question).
	RoleExempt RoleExempt

	// MaxPubSize bounds a single KR publication's size; defaults to 1024
	// (spec §8 scenario 6).
	MaxPubSize int

	ReKeyInterval   time.Duration
	ReKeyRandomize  time.Duration
	ExpirationGuard time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxPubSize <= 0 {
		c.MaxPubSize = 1024
	}
	if c.ReKeyInterval <= 0 {
		c.ReKeyInterval = time.Hour
	}
	if c.ExpirationGuard <= 0 {
		c.ExpirationGuard = time.Minute
	}
	if c.CollectionName == "" {
		if i := strings.LastIndex(c.Prefix, "/"); i >= 0 {
			c.CollectionName = c.Prefix[i+1:]
		} else {
			c.CollectionName = c.Prefix
		}
	}
	return c
}

// Distributor is the keymaker/subscriber/publish-only state machine for
// one collection (C1-C6 combined, as dist_sgkey.hpp is one class in the
// original).
type Distributor struct {
	mu sync.Mutex

	kind           Kind
	prefix         string
	collectionName string
	coll           synccoll.Collection
	cs             certstore.Store
	roleExempt     RoleExempt

	syncSM *sigmgr.Manager
	keySM  *sigmgr.Manager

	ownTP  certstore.ThumbPrint
	ownSK  ed25519.PrivateKey
	ownPKx [32]byte
	ownSKx [32]byte

	hasSG      bool
	kmPriority int

	role     Role
	initDone bool

	epoch    Epoch
	kmtp     certstore.ThumbPrint
	curKeyCT uint64

	groupPK    [32]byte
	groupSK    [32]byte
	hasGroupSK bool

	mbrList map[certstore.ThumbPrint][32]byte

	maxKR int

	reKeyInterval   time.Duration
	reKeyRandomize  time.Duration
	expirationGuard time.Duration

	mrTimer   synccoll.TimerHandle
	mrPending bool

	election *Election

	addKeyCb       AddKeyCb
	connectedCb    ConnectedCb
	connectedFired bool
}

// New constructs a Distributor for one collection. Setup must be called
// once, with the identity's signing key and certificate, to bring it up.
func New(cfg Config) *Distributor {
	cfg = cfg.withDefaults()
	return &Distributor{
		kind:            cfg.Kind,
		prefix:          cfg.Prefix,
		collectionName:  cfg.CollectionName,
		coll:            cfg.Collection,
		cs:              cfg.CertStore,
		roleExempt:      cfg.RoleExempt,
		syncSM:          sigmgr.New(),
		keySM:           sigmgr.New(),
		mbrList:         make(map[certstore.ThumbPrint][32]byte),
		maxKR:           computeMaxKR(cfg.MaxPubSize),
		reKeyInterval:   cfg.ReKeyInterval,
		reKeyRandomize:  cfg.ReKeyRandomize,
		expirationGuard: cfg.ExpirationGuard,
	}
}

// computeMaxKR derives K, the maximum number of egkr records per KR shard
// (spec §3): floor((maxPubSize - pkLen(32) - ctLen(8) - headroom(96)) /
// (tpLen(32) + sealedLen(80))).
func computeMaxKR(maxPubSize int) int {
	k := (maxPubSize - 32 - 8 - 96) / (32 + sealedLen)
	if k < 1 {
		k = 1
	}
	return k
}

func (d *Distributor) kmCapability() certstore.Capability {
	if d.kind == KindPubKeys {
		return certstore.CapKMP
	}
	return certstore.CapKM
}

// Setup installs the signing identity and callbacks, then starts the
// election or passive subscription as appropriate. It must be called
// exactly once, before any other method.
func (d *Distributor) Setup(sk ed25519.PrivateKey, cert certstore.Cert, addKeyCb AddKeyCb, connectedCb ConnectedCb) error {
	d.mu.Lock()
	d.addKeyCb = addKeyCb
	d.connectedCb = connectedCb
	d.mu.Unlock()
	return d.updateSigningKey(sk, cert, true)
}

// updateSigningKey implements the signing-key update hook of spec §4.6:
// verify the chain, reseat both signature managers, recompute SG/KM
// membership (a role change across rotation is fatal), recompute the
// X25519 conversions, and — once already initialized and not keymaker —
// republish an MR so the keymaker re-seals under the new thumbprint.
func (d *Distributor) updateSigningKey(sk ed25519.PrivateKey, cert certstore.Cert, initial bool) error {
	chains := d.cs.Chains()
	if len(chains) == 0 || chains[0] != cert.Thumbprint {
		return ErrCertChainMismatch
	}

	skx, err := EdSKToX(sk)
	if err != nil {
		return ErrKeyConversion
	}
	pkx, err := EdPKToX(cert.SigningKey)
	if err != nil {
		return ErrKeyConversion
	}

	sgName, _ := certstore.SGCollection(d.cs, cert.Thumbprint)
	hasSG := sgName != ""
	kmPriority := certstore.Priority(d.cs, cert.Thumbprint, d.kmCapability())

	d.mu.Lock()
	if !initial && (d.hasSG != hasSG || (d.kmPriority > 0) != (kmPriority > 0)) {
		d.mu.Unlock()
		return ErrRoleChanged
	}
	d.ownTP = cert.Thumbprint
	d.ownSK = sk
	d.ownSKx = skx
	d.ownPKx = pkx
	d.hasSG = hasSG
	d.kmPriority = kmPriority
	d.syncSM.UpdateSigningKey(sk, cert)
	d.keySM.UpdateSigningKey(sk, cert)
	role := d.role
	initDone := d.initDone
	d.mu.Unlock()

	if initial {
		d.startElection()
		return nil
	}
	if initDone && role != RoleKeymaker && hasSG {
		d.publishMembershipReq()
	}
	return nil
}

// startElection kicks off the role decision (spec §2 data flow: "election
// → role decision → keymaker branch ... non-keymaker branch"). Identities
// without KM/KMP priority never run an election; they go straight to
// subscribing to KRs, requesting membership if they hold SG.
func (d *Distributor) startElection() {
	d.mu.Lock()
	coll := d.coll
	kmPriority := d.kmPriority
	ownTP := d.ownTP
	hasSG := d.hasSG
	kind := d.kind
	d.mu.Unlock()

	_ = coll.Subscribe(krPrefix(d.prefix), d.onKeyRecord)

	if kmPriority <= 0 {
		d.mu.Lock()
		d.role = RoleSubscriber
		d.mu.Unlock()
		if hasSG {
			d.publishMembershipReq()
		}
		return
	}

	el := NewElection(d.prefix, coll, d.syncSM, ownTP, kmPriority, kind)
	d.mu.Lock()
	d.election = el
	d.mu.Unlock()
	el.Start(d.onElectionDone)
}

func (d *Distributor) onElectionDone(elected bool, epoch Epoch) {
	if !elected {
		d.mu.Lock()
		d.role = RoleSubscriber
		hasSG := d.hasSG
		d.mu.Unlock()
		if hasSG {
			d.publishMembershipReq()
		}
		return
	}

	d.mu.Lock()
	d.role = RoleKeymaker
	d.epoch = epoch
	d.kmtp = d.ownTP
	coll := d.coll
	d.mu.Unlock()

	_ = coll.Subscribe(mrPrefix(d.prefix), d.onMembershipReq)
	d.makeSGKey()
}

// maybeFireConnected fires ConnectedCb exactly once per Distributor
// lifetime (spec §6).
func (d *Distributor) maybeFireConnected() {
	d.mu.Lock()
	if d.connectedFired {
		d.mu.Unlock()
		return
	}
	d.connectedFired = true
	d.initDone = true
	cb := d.connectedCb
	d.mu.Unlock()
	if cb != nil {
		cb(true)
	}
}

func (d *Distributor) signKeyPub(p *synccoll.Publication) {
	d.mu.Lock()
	sm := d.keySM
	d.mu.Unlock()
	if err := sm.Sign(p); err != nil {
		logger.ErrorJ("sgkd_sign_failed", map[string]any{"err": err.Error()})
	}
}

// Role reports the current tagged state, for tests and diagnostics.
func (d *Distributor) Role() Role {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.role
}

// CurrentKey returns the most recently accepted group key, and whether the
// secret half is held (false for publish-only members).
func (d *Distributor) CurrentKey() (pk, sk [32]byte, hasSK bool, ct uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.groupPK, d.groupSK, d.hasGroupSK, d.curKeyCT
}
