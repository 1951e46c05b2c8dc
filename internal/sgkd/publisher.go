package sgkd

import (
	"encoding/hex"
	"math/rand"
	"sort"
	"time"

	"github.com/dct-go/sgkd/internal/certstore"
	"github.com/dct-go/sgkd/internal/synccoll"
	"github.com/dct-go/sgkd/pkg/logger"
	"github.com/dct-go/sgkd/pkg/metrics"
)

// makeSGKey is C4's operation (spec §4.4): generate a fresh group keypair,
// purge expired members, seal the new secret for every current member,
// shard into size-bounded KR publications, and schedule the next rekey.
// Invoked at keymaker election, at every rekey timer fire, and whenever
// RemoveGroupMem is called with reKey=true.
func (d *Distributor) makeSGKey() {
	pk, sk, err := GenerateX25519Keypair()
	if err != nil {
		logger.ErrorJ("sgkd_makesgkey_keygen_failed", map[string]any{"err": err.Error()})
		return
	}
	ct := uint64(time.Now().UnixMicro())

	d.mu.Lock()
	d.purgeExpiredMembersLocked(time.Now())
	members := make([]certstore.ThumbPrint, 0, len(d.mbrList))
	for tp := range d.mbrList {
		members = append(members, tp)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Less(members[j]) })

	egkrs := make([]EGKR, 0, len(members))
	for _, tp := range members {
		pkx := d.mbrList[tp]
		sealed, serr := SealedBoxEncrypt(sk[:], pkx)
		if serr != nil {
			logger.ErrorJ("sgkd_seal_failed", map[string]any{"tp": hex.EncodeToString(tp[:])})
			continue
		}
		egkrs = append(egkrs, EGKR{TP: tp, Sealed: sealed})
	}

	d.groupPK = pk
	d.groupSK = sk
	d.hasGroupSK = true
	d.curKeyCT = ct

	epoch := d.epoch
	prefix := d.prefix
	coll := d.coll
	ownTP := d.ownTP
	maxKR := d.maxKR
	addKeyCb := d.addKeyCb
	d.mu.Unlock()

	// The keymaker uses the new key before confirming delivery (spec §4.4
	// step 4).
	if addKeyCb != nil {
		addKeyCb(pk, sk, true, ct)
	}

	ts := ct
	if len(egkrs) == 0 {
		// Empty mbrList: publish a single KR with an empty egkr list,
		// confirmation transitions init -> ready (spec §4.4 step 6).
		name := krName(prefix, epoch, ownTP, ownTP, ts)
		content := EncodeKRContent(ct, pk, nil)
		pub := synccoll.Publication{Name: name, Content: content}
		d.signKeyPub(&pub)
		if err := coll.PublishConfirm(pub, func(_ synccoll.Publication, ok bool) {
			if ok {
				d.maybeFireConnected()
			}
		}); err != nil {
			logger.ErrorJ("sgkd_kr_publish_failed", map[string]any{"err": err.Error()})
		}
		metrics.Inc("sgkd_kr_published_total", map[string]string{"role": "keymaker"})
		d.scheduleRekey()
		return
	}

	for i := 0; i < len(egkrs); i += maxKR {
		end := i + maxKR
		if end > len(egkrs) {
			end = len(egkrs)
		}
		shard := egkrs[i:end]
		lo, hi := shard[0].TP, shard[len(shard)-1].TP
		name := krName(prefix, epoch, lo, hi, ts)
		content := EncodeKRContent(ct, pk, shard)
		pub := synccoll.Publication{Name: name, Content: content}
		d.signKeyPub(&pub)
		if err := coll.Publish(pub); err != nil {
			logger.ErrorJ("sgkd_kr_publish_failed", map[string]any{"err": err.Error()})
			continue
		}
		metrics.Inc("sgkd_kr_published_total", map[string]string{"role": "keymaker"})
	}
	d.maybeFireConnected()
	d.scheduleRekey()
}

// purgeExpiredMembersLocked drops any member whose cert has expired or
// disappeared from the certstore (spec §4.4 step 2). Caller holds d.mu.
func (d *Distributor) purgeExpiredMembersLocked(now time.Time) {
	for tp := range d.mbrList {
		cert, ok := d.cs.Cert(tp)
		if !ok || cert.Expired(now) {
			delete(d.mbrList, tp)
			metrics.Inc("sgkd_members_total", map[string]string{"op": "expire"})
		}
	}
}

// scheduleRekey arms the single-shot rekey timer; it re-invokes makeSGKey
// after reKeyInterval (plus up to reKeyRandomize of jitter), self-gated on
// keymaker status rather than cancellable (spec §5).
func (d *Distributor) scheduleRekey() {
	d.mu.Lock()
	coll := d.coll
	delay := d.reKeyInterval
	if d.reKeyRandomize > 0 {
		delay += time.Duration(rand.Int63n(int64(d.reKeyRandomize)))
	}
	d.mu.Unlock()
	coll.Schedule(delay, d.onRekeyTimer)
}

func (d *Distributor) onRekeyTimer() {
	d.mu.Lock()
	isKM := d.role == RoleKeymaker
	d.mu.Unlock()
	if !isKM {
		return
	}
	metrics.Inc("sgkd_rekey_total", nil)
	d.makeSGKey()
}
