package sgkd

import (
	"time"

	"github.com/dct-go/sgkd/internal/certstore"
	"github.com/dct-go/sgkd/internal/synccoll"
	"github.com/dct-go/sgkd/pkg/logger"
	"github.com/dct-go/sgkd/pkg/metrics"
)

// onKeyRecord is C6's operation (spec §4.6): the full ten-step
// authorization / conflict / epoch / freshness / decrypt pipeline run for
// every inbound KR publication.
func (d *Distributor) onKeyRecord(p synccoll.Publication) {
	signer := p.Signer

	// 1. Authorization.
	if certstore.Priority(d.cs, signer, d.kmCapability()) <= 0 {
		logger.ErrorJ("sgkd_kr_dropped", map[string]any{"reason": "unauthorized"})
		metrics.Inc("sgkd_kr_dropped_total", map[string]string{"reason": "unauthorized"})
		return
	}

	d.mu.Lock()
	isKeymaker := d.role == RoleKeymaker
	ownTP := d.ownTP
	d.mu.Unlock()

	// 2. Keymaker conflict.
	if isKeymaker {
		if ownTP.Less(signer) {
			d.relinquishKeymaker(signer)
		}
		// signer < ownTP: ignore, the sender yields on seeing our own KR.
		return
	}

	// 3. Initialization kick.
	d.mu.Lock()
	needsKick := !d.initDone && d.hasSG && !d.mrPending
	d.mu.Unlock()
	if needsKick {
		d.publishMembershipReq()
		return
	}

	// 4. Epoch check. While re-elections are unsupported, only epoch == 1
	// is ever accepted as a transition; anything else drops.
	fields, err := parseKRName(d.prefix, p.Name)
	if err != nil {
		logger.ErrorJ("sgkd_kr_dropped", map[string]any{"reason": "bad_name"})
		return
	}
	d.mu.Lock()
	curEpoch := d.epoch
	d.mu.Unlock()
	if fields.Epoch != curEpoch {
		if fields.Epoch != 1 {
			logger.ErrorJ("sgkd_kr_dropped", map[string]any{"reason": "bad_epoch"})
			metrics.Inc("sgkd_kr_dropped_total", map[string]string{"reason": "bad_epoch"})
			return
		}
		d.mu.Lock()
		d.epoch = 1
		d.mu.Unlock()
	}

	// 5. Keymaker tracking. Clearing curKeyCT on a new, greater keymaker
	// forces acceptance of its next key even if its ct is older than ours
	// (spec §9: "prioritizes convergence over key freshness").
	d.mu.Lock()
	if d.kmtp.IsZero() || d.kmtp.Less(signer) {
		d.kmtp = signer
		d.curKeyCT = 0
	}
	d.mu.Unlock()

	// 6. Range test. Only a subscriber (SG holder) is ever a member of a
	// shard's range; a publish-only peer is never inside [TPlo,TPhi] and
	// must fall through to step 9 to pick up the public key (spec §4.4 step
	// 6, dist_sgkey.hpp: "if(m_subr && (less(tpId, tpl) || less(tph, tpId)))").
	d.mu.Lock()
	hasSG := d.hasSG
	d.mu.Unlock()
	var tpID [4]byte
	copy(tpID[:], ownTP[:4])
	if hasSG && (bytesLess(tpID, fields.TPLo) || bytesLess(fields.TPHi, tpID)) {
		d.mu.Lock()
		curCT := d.curKeyCT
		pending := d.mrPending
		d.mu.Unlock()
		if ct, _, _, perr := DecodeKRContent(p.Content); perr == nil && ct > curCT && !pending {
			d.scheduleMRIn(2 * time.Second)
		}
		return
	}

	// 7. Parse content.
	newCT, pk, egkrs, err := DecodeKRContent(p.Content)
	if err != nil {
		logger.ErrorJ("sgkd_kr_dropped", map[string]any{"reason": "tlv_parse"})
		return
	}

	// 8. Freshness.
	d.mu.Lock()
	curCT := d.curKeyCT
	d.mu.Unlock()
	if newCT <= curCT {
		return
	}

	// 9. Publish-only path.
	if !hasSG {
		d.mu.Lock()
		d.curKeyCT = newCT
		d.groupPK = pk
		d.hasGroupSK = false
		addKeyCb := d.addKeyCb
		d.mu.Unlock()
		var zero [32]byte
		if addKeyCb != nil {
			addKeyCb(pk, zero, false, newCT)
		}
		d.maybeFireConnected()
		return
	}

	// 10. Subscriber path.
	var ownRec *EGKR
	for i := range egkrs {
		if egkrs[i].TP == ownTP {
			ownRec = &egkrs[i]
			break
		}
	}
	if ownRec == nil {
		return
	}
	d.mu.Lock()
	ownPKx, ownSKx := d.ownPKx, d.ownSKx
	d.mu.Unlock()
	sk, err := SealedBoxOpen(ownRec.Sealed, ownPKx, ownSKx)
	if err != nil {
		logger.ErrorJ("sgkd_kr_dropped", map[string]any{"reason": "seal_open_failed"})
		return
	}
	var skArr [32]byte
	copy(skArr[:], sk)

	d.mu.Lock()
	d.curKeyCT = newCT
	d.groupPK = pk
	d.groupSK = skArr
	d.hasGroupSK = true
	addKeyCb := d.addKeyCb
	d.mu.Unlock()

	d.cancelMRRefresh()
	if addKeyCb != nil {
		addKeyCb(pk, skArr, true, newCT)
	}
	d.maybeFireConnected()
}

func bytesLess(a, b [4]byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// relinquishKeymaker gives up the keymaker role on losing a conflict (spec
// §4.6 step 2): unsubscribe from MR, record the new keymaker, and publish
// an MR of our own (the former keymaker becomes a member under the new
// one).
func (d *Distributor) relinquishKeymaker(newKM certstore.ThumbPrint) {
	d.mu.Lock()
	d.role = RoleSubscriber
	d.kmtp = newKM
	coll := d.coll
	prefix := d.prefix
	d.mu.Unlock()

	_ = coll.Unsubscribe(mrPrefix(prefix))
	logger.InfoJ("sgkd_keymaker_relinquish", map[string]any{"new_keymaker": newKM})
	d.publishMembershipReq()
}

// publishMembershipReq is the non-keymaker SG-holder's refresh loop (spec
// §4.6 "Membership request loop"): cancel any outstanding refresh, publish
// a signed MR, mark it pending, and self-reschedule after keyLifetime.
func (d *Distributor) publishMembershipReq() {
	d.cancelMRRefresh()

	d.mu.Lock()
	prefix := d.prefix
	coll := d.coll
	keyLifetime := d.reKeyInterval + d.reKeyRandomize
	d.mu.Unlock()

	ts := uint64(time.Now().UnixMicro())
	pub := synccoll.Publication{Name: mrName(prefix, ts)}
	d.signKeyPub(&pub)
	if err := coll.Publish(pub); err != nil {
		logger.ErrorJ("sgkd_mr_publish_failed", map[string]any{"err": err.Error()})
	}
	metrics.Inc("sgkd_mr_published_total", nil)

	d.mu.Lock()
	d.mrPending = true
	d.mrTimer = coll.Schedule(keyLifetime, d.publishMembershipReq)
	d.mu.Unlock()
}

// scheduleMRIn arms a one-shot MR refresh after delay, used when the range
// test (step 6) finds the keymaker evidently unaware of this peer.
func (d *Distributor) scheduleMRIn(delay time.Duration) {
	d.mu.Lock()
	pending := d.mrPending
	coll := d.coll
	d.mu.Unlock()
	if pending {
		return
	}
	d.mu.Lock()
	d.mrPending = true
	d.mrTimer = coll.Schedule(delay, func() {
		d.mu.Lock()
		d.mrPending = false
		d.mu.Unlock()
		d.publishMembershipReq()
	})
	d.mu.Unlock()
}

// cancelMRRefresh cancels any pending MR refresh timer, e.g. on
// successful KR receipt (spec §5: "cancellation is required on every MR
// success").
func (d *Distributor) cancelMRRefresh() {
	d.mu.Lock()
	t := d.mrTimer
	d.mrTimer = nil
	d.mrPending = false
	d.mu.Unlock()
	if t != nil {
		t.Cancel()
	}
}
