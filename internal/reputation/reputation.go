// Package reputation implements the coordinator's reputation engine:
// an event-driven score per node, clamped to a floor, persisted to
// SQLite, with a weekly decay sweep.
//
// The Engine is the single authority that mutates the score store —
// the Registry only mirrors scores read through Score/Scores.
package reputation

import (
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/iris-network/coordinator/internal/config"
	"github.com/iris-network/coordinator/internal/shared"
	"github.com/iris-network/coordinator/internal/store"
)

// Deltas are the fixed point values applied per reputation event.
const (
	deltaTaskCompleted  = 10
	deltaFastCompletion = 5
	deltaTimeout        = -20
	deltaInvalid        = -50
	deltaUptimeHour     = 1
	deltaBrokenPromise  = -5
)

// Engine is the reputation store. All operations are serialised per
// node-id through a per-node mutex, never a single global lock, so
// concurrent nodes don't contend with each other.
type Engine struct {
	cfg config.ReputationConfig
	db  *store.DB
	log *log.Logger

	mu     sync.Mutex // protects the locks map and scores map
	locks  map[string]*sync.Mutex
	scores map[string]int
	decay  map[string]time.Time
}

// New creates a reputation Engine and warms it from persisted snapshots.
func New(cfg config.ReputationConfig, db *store.DB, logger *log.Logger) (*Engine, error) {
	if logger == nil {
		logger = log.New(os.Stdout, "[Reputation] ", log.LstdFlags)
	}
	e := &Engine{
		cfg:    cfg,
		db:     db,
		log:    logger,
		locks:  make(map[string]*sync.Mutex),
		scores: make(map[string]int),
		decay:  make(map[string]time.Time),
	}
	snap, err := db.LoadReputationSnapshots()
	if err != nil {
		return nil, err
	}
	for id, score := range snap {
		e.scores[id] = score
		e.decay[id] = time.Now()
	}
	return e, nil
}

func (e *Engine) lockFor(nodeID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[nodeID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[nodeID] = l
	}
	return l
}

// Record appends a reputation event and mutates the node's score by
// points, which the caller supplies; kind only labels the event. The
// Record* helpers below pair each kind with its fixed delta and handle
// the extra inputs (observed completion time for FAST_COMPLETION,
// hours unreachable for BROKEN_PROMISE). A node with no score yet
// starts from the floor.
func (e *Engine) Record(nodeID string, kind shared.ReputationKind, points int) {
	lock := e.lockFor(nodeID)
	lock.Lock()
	defer lock.Unlock()

	floor := e.cfg.Floor
	if floor == 0 {
		floor = 10
	}

	e.mu.Lock()
	current, known := e.scores[nodeID]
	e.mu.Unlock()
	if !known {
		current = floor
	}

	next := current + points
	if next < floor {
		next = floor
	}
	if e.cfg.Ceiling > 0 && next > e.cfg.Ceiling {
		next = e.cfg.Ceiling
	}

	e.mu.Lock()
	e.scores[nodeID] = next
	lastDecay := e.decay[nodeID]
	if lastDecay.IsZero() {
		lastDecay = time.Now()
		e.decay[nodeID] = lastDecay
	}
	e.mu.Unlock()

	event := shared.ReputationEvent{NodeID: nodeID, Kind: kind, Points: points, Timestamp: time.Now()}
	if err := e.db.AppendReputationEvent(event); err != nil {
		e.log.Printf("append event for %s failed: %v", nodeID, err)
	}
	if err := e.db.UpsertReputationSnapshot(nodeID, next, lastDecay); err != nil {
		e.log.Printf("snapshot for %s failed: %v", nodeID, err)
	}
	e.log.Printf("%s %s %+d -> %d", nodeID, kind, points, next)
}

// RecordTaskCompleted records a TASK_COMPLETED event, plus
// FAST_COMPLETION if elapsed is under half the difficulty timeout.
func (e *Engine) RecordTaskCompleted(nodeID string, elapsed, difficultyTimeout time.Duration) {
	e.Record(nodeID, shared.EventTaskCompleted, deltaTaskCompleted)
	ratio := e.cfg.FastCompletionRatio
	if ratio == 0 {
		ratio = 0.5
	}
	if difficultyTimeout > 0 && elapsed < time.Duration(float64(difficultyTimeout)*ratio) {
		e.Record(nodeID, shared.EventFastCompletion, deltaFastCompletion)
	}
}

// RecordTimeout records a TIMEOUT event (-20).
func (e *Engine) RecordTimeout(nodeID string) {
	e.Record(nodeID, shared.EventTimeout, deltaTimeout)
}

// RecordInvalidResponse records an INVALID_RESPONSE event (-50).
func (e *Engine) RecordInvalidResponse(nodeID string) {
	e.Record(nodeID, shared.EventInvalidResponse, deltaInvalid)
}

// RecordUptimeHour records one UPTIME_HOUR event (+1).
func (e *Engine) RecordUptimeHour(nodeID string) {
	e.Record(nodeID, shared.EventUptimeHour, deltaUptimeHour)
}

// RecordBrokenPromiseHours records BROKEN_PROMISE for each hour a
// registered node was unreachable (-5 per hour).
func (e *Engine) RecordBrokenPromiseHours(nodeID string, hours int) {
	for i := 0; i < hours; i++ {
		e.Record(nodeID, shared.EventBrokenPromise, deltaBrokenPromise)
	}
}

// Score returns a node's current clamped score.
func (e *Engine) Score(nodeID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.scores[nodeID]; ok {
		return s
	}
	floor := e.cfg.Floor
	if floor == 0 {
		floor = 10
	}
	return floor
}

// Scores returns a snapshot of every known score, for the leaderboard.
func (e *Engine) Scores() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]int, len(e.scores))
	for k, v := range e.scores {
		out[k] = v
	}
	return out
}

// Leaderboard returns the top n nodes by score, highest first, ties
// broken by node-id so the ordering is deterministic.
func (e *Engine) Leaderboard(n int) []shared.LeaderboardEntry {
	scores := e.Scores()
	entries := make([]shared.LeaderboardEntry, 0, len(scores))
	for id, score := range scores {
		entries = append(entries, shared.LeaderboardEntry{NodeID: id, ReputationScore: score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ReputationScore != entries[j].ReputationScore {
			return entries[i].ReputationScore > entries[j].ReputationScore
		}
		return entries[i].NodeID < entries[j].NodeID
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

// Decay multiplies every node's stored score by the configured weekly
// decay factor, once per week per node. Called by a periodic sweeper;
// now is the caller's clock so tests can drive it deterministically.
func (e *Engine) Decay(now time.Time) {
	factor := e.cfg.WeeklyDecayFactor
	if factor == 0 {
		factor = 0.99
	}
	e.mu.Lock()
	ids := make([]string, 0, len(e.scores))
	for id := range e.scores {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		lock := e.lockFor(id)
		lock.Lock()
		e.mu.Lock()
		last := e.decay[id]
		due := now.Sub(last) >= 7*24*time.Hour
		score := e.scores[id]
		e.mu.Unlock()

		if due {
			floor := e.cfg.Floor
			if floor == 0 {
				floor = 10
			}
			next := int(float64(score) * factor)
			if next < floor {
				next = floor
			}
			e.mu.Lock()
			e.scores[id] = next
			e.decay[id] = now
			e.mu.Unlock()
			if err := e.db.AppendReputationEvent(shared.ReputationEvent{
				NodeID: id, Kind: shared.EventWeeklyDecay, Points: next - score, Timestamp: now,
			}); err != nil {
				e.log.Printf("append decay event for %s failed: %v", id, err)
			}
			if err := e.db.UpsertReputationSnapshot(id, next, now); err != nil {
				e.log.Printf("snapshot for %s failed: %v", id, err)
			}
		}
		lock.Unlock()
	}
}

// RunDecayLoop runs Decay on a daily tick until stop is closed. The
// tick is deliberately coarser than the weekly cadence the decay
// itself enforces — it just needs to run often enough not to miss a
// week boundary.
func (e *Engine) RunDecayLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			e.Decay(now)
		}
	}
}
