package sgkd

import (
	"strconv"
	"sync"
	"time"

	"github.com/dct-go/sgkd/internal/certstore"
	"github.com/dct-go/sgkd/internal/sigmgr"
	"github.com/dct-go/sgkd/internal/synccoll"
	"github.com/dct-go/sgkd/pkg/logger"
	"github.com/dct-go/sgkd/pkg/metrics"
)

// ElectionDone is invoked exactly once, with (elected, epoch), when an
// election settles (spec §4.3).
type ElectionDone func(elected bool, epoch Epoch)

type candidate struct {
	priority int
	tp       certstore.ThumbPrint
}

// candidateLess orders candidates by (priority, thumbprint), larger wins
// (spec §3: "tiebreak: larger thumbprint wins").
func candidateLess(a, b candidate) bool {
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	return a.tp.Less(b.tp)
}

type electionPhase string

const (
	electionRunning electionPhase = "running"
	electionDone    electionPhase = "done"
)

// Election runs the candidacy protocol of spec §4.3: candidates
// periodically publish a short-lived candidacy record; each observes the
// others; after a settling window the candidate with the greatest
// (priority, thumbprint) wins.
type Election struct {
	mu    sync.Mutex
	phase electionPhase

	prefix string
	coll   synccoll.Collection
	sm     *sigmgr.Manager

	self candidate
	best candidate

	settleWindow time.Duration
	candInterval time.Duration

	candTimer   synccoll.TimerHandle
	settleTimer synccoll.TimerHandle

	done ElectionDone
}

// NewElection constructs an election for one collection. kind selects the
// settling window: 5s for the public-keys collection, 500ms for a
// subscriber-group collection.
func NewElection(prefix string, coll synccoll.Collection, sm *sigmgr.Manager, selfTP certstore.ThumbPrint, priority int, kind Kind) *Election {
	settle := 500 * time.Millisecond
	if kind == KindPubKeys {
		settle = 5 * time.Second
	}
	return &Election{
		prefix:       prefix,
		coll:         coll,
		sm:           sm,
		self:         candidate{priority: priority, tp: selfTP},
		settleWindow: settle,
		candInterval: 300 * time.Millisecond,
	}
}

// Start begins the candidacy protocol. done is invoked exactly once, when
// the settling window elapses.
func (e *Election) Start(done ElectionDone) {
	e.mu.Lock()
	e.phase = electionRunning
	e.best = e.self
	e.done = done
	e.mu.Unlock()

	_ = e.coll.Subscribe(candPrefix(e.prefix), e.onCandidacy)
	e.publishCandidacy()
	e.candTimer = e.coll.Schedule(e.candInterval, e.tickCandidacy)
	e.settleTimer = e.coll.OneTime(e.settleWindow, e.settle)
}

func (e *Election) tickCandidacy() {
	e.mu.Lock()
	running := e.phase == electionRunning
	e.mu.Unlock()
	if !running {
		return
	}
	e.publishCandidacy()
	e.candTimer = e.coll.Schedule(e.candInterval, e.tickCandidacy)
}

func (e *Election) publishCandidacy() {
	ts := uint64(time.Now().UnixMicro())
	name := candName(e.prefix, e.self.priority, e.self.tp, ts)
	pub := synccoll.Publication{Name: name}
	if e.sm != nil {
		_ = e.sm.Sign(&pub)
	}
	if err := e.coll.Publish(pub); err != nil {
		logger.ErrorJ("sgkd_election_publish_failed", map[string]any{"err": err.Error()})
	}
}

func (e *Election) onCandidacy(p synccoll.Publication) {
	priority, tp, _, err := parseCandName(e.prefix, p.Name)
	if err != nil {
		return
	}
	cand := candidate{priority: priority, tp: tp}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != electionRunning {
		return
	}
	if candidateLess(e.best, cand) {
		e.best = cand
	}
}

func (e *Election) settle() {
	e.mu.Lock()
	if e.phase != electionRunning {
		e.mu.Unlock()
		return
	}
	e.phase = electionDone
	elected := e.best.tp == e.self.tp
	done := e.done
	candTimer := e.candTimer
	e.mu.Unlock()

	if candTimer != nil {
		candTimer.Cancel()
	}
	metrics.Inc("sgkd_election_settled_total", map[string]string{"elected": strconv.FormatBool(elected)})
	logger.InfoJ("sgkd_election_settled", map[string]any{"elected": elected, "prefix": e.prefix})
	if done != nil {
		done(elected, Epoch(1))
	}
}
