package sgkd

import (
	"time"

	"github.com/dct-go/sgkd/internal/certstore"
	"github.com/dct-go/sgkd/internal/synccoll"
	"github.com/dct-go/sgkd/pkg/logger"
	"github.com/dct-go/sgkd/pkg/metrics"
)

// RoleExempt reports whether tp's identity is exempt from the membership
// manager — the original hard-codes a check on the cert name's second
// component equaling "relay" for the public-keys collection; this
// signature lets the wiring edge supply that check without baking schema
// knowledge into Distributor itself (spec §9 open question). A nil
// predicate exempts no one; cmd/sgkd-demo serves only subscriber-group
// collections and sets none.
type RoleExempt func(tp certstore.ThumbPrint) bool

// onMembershipReq is C5's operation (spec §4.5): validate the requester,
// insert into mbrList, and — if a group key already exists — issue a
// single-recipient KR so the new member doesn't wait for the next bulk
// rekey.
func (d *Distributor) onMembershipReq(p synccoll.Publication) {
	signer := p.Signer

	d.mu.Lock()
	collectionName := d.collectionName
	d.mu.Unlock()

	// 1. Validate the MR's signer has SG capability for this collection
	// (spec §4.5 step 1: "for this collection", not merely some SG value).
	sgName, ok := certstore.SGCollection(d.cs, signer)
	if !ok || sgName == "" || sgName != collectionName {
		logger.ErrorJ("sgkd_mr_rejected", map[string]any{"reason": "no_sg_capability"})
		return
	}

	d.mu.Lock()
	exempt := d.roleExempt
	kind := d.kind
	atCap := len(d.mbrList) >= 80*d.maxKR
	d.mu.Unlock()

	if kind == KindPubKeys && exempt != nil && exempt(signer) {
		logger.ErrorJ("sgkd_mr_rejected", map[string]any{"reason": "relay_role_exempt"})
		return
	}
	if atCap {
		logger.ErrorJ("sgkd_mr_rejected", map[string]any{"reason": "mbrlist_full"})
		return
	}

	cert, ok := d.cs.Cert(signer)
	if !ok {
		logger.ErrorJ("sgkd_mr_rejected", map[string]any{"reason": "no_cert"})
		return
	}
	pkx, err := EdPKToX(cert.SigningKey)
	if err != nil {
		logger.ErrorJ("sgkd_mr_rejected", map[string]any{"reason": "key_conversion_failed"})
		return
	}

	d.mu.Lock()
	d.mbrList[signer] = pkx
	ct := d.curKeyCT
	groupSK := d.groupSK
	groupPK := d.groupPK
	epoch := d.epoch
	prefix := d.prefix
	coll := d.coll
	d.mu.Unlock()

	metrics.Inc("sgkd_members_total", map[string]string{"op": "add"})

	if ct == 0 {
		// No group key generated yet; this member receives one at the
		// first makeSGKey (spec §4.5 step 6: "If a current group key
		// exists").
		return
	}

	sealed, err := SealedBoxEncrypt(groupSK[:], pkx)
	if err != nil {
		logger.ErrorJ("sgkd_seal_failed", map[string]any{"reason": "single_recipient"})
		return
	}
	content := EncodeKRContent(ct, groupPK, []EGKR{{TP: signer, Sealed: sealed}})
	name := krName(prefix, epoch, signer, signer, uint64(time.Now().UnixMicro()))
	pub := synccoll.Publication{Name: name, Content: content}
	d.signKeyPub(&pub)
	if err := coll.Publish(pub); err != nil {
		logger.ErrorJ("sgkd_kr_publish_failed", map[string]any{"err": err.Error()})
		return
	}
	metrics.Inc("sgkd_kr_published_total", map[string]string{"role": "keymaker"})
}

// RemoveGroupMem erases tp from the member list (spec §4.5). If reKey,
// makeSGKey runs immediately, without disturbing the periodic rekey
// timer.
func (d *Distributor) RemoveGroupMem(tp certstore.ThumbPrint, reKey bool) {
	d.mu.Lock()
	_, existed := d.mbrList[tp]
	delete(d.mbrList, tp)
	d.mu.Unlock()
	if existed {
		metrics.Inc("sgkd_members_total", map[string]string{"op": "remove"})
	}
	if reKey {
		d.makeSGKey()
	}
}
