// Package registry implements the Node Registry: the
// set of connected workers, their heartbeats, tier, load and
// reputation, and the routing-facing Snapshot query.
//
// The Registry is the sole authority translating a node-id to a live
// connection handle — subtasks and
// the orchestrator only ever carry node-ids.
package registry

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sony/gobreaker"

	"github.com/iris-network/coordinator/internal/config"
	"github.com/iris-network/coordinator/internal/ierr"
	"github.com/iris-network/coordinator/internal/shared"
	"github.com/iris-network/coordinator/internal/store"
)

// Connection is the minimal surface the registry needs from a
// worker's bidirectional channel. internal/protocol implements it;
// the registry never imports internal/protocol, avoiding a cycle.
type Connection interface {
	// Send enqueues raw frame bytes for delivery. It must return
	// promptly — internal/protocol.Conn treats a full send queue as a
	// signal to start the backpressure grace period.
	Send(data []byte) error
	// Close tears down the connection.
	Close(reason string) error
}

// Handshake carries what a worker presents at registration.
type Handshake struct {
	NodeID         string
	AccountProof   string
	AccountRef     string
	Capabilities   shared.Capabilities
	ArtificialLoad int
	Conn           Connection
}

// node is the registry's private entry. Only Registry methods mutate
// it, under r.mu; callers only ever see a shared.NodeSnapshot.
type node struct {
	id               string
	accountRef       string
	conn             Connection
	capabilities     shared.Capabilities
	tier             shared.Tier
	currentLoad      int
	artificialLoad   int
	lastHeartbeat    time.Time
	registeredAt     time.Time
	lastUptimeCredit time.Time
	breaker          *gobreaker.CircuitBreaker
}

// LostSubtask identifies a subtask whose node just went away, so the
// orchestrator can react.
type LostSubtask struct {
	NodeID string
}

// Registry tracks all connected workers.
type Registry struct {
	mu    sync.RWMutex
	nodes map[string]*node

	cfg config.WorkerConfig
	db  *store.DB
	log *log.Logger

	// lostSubs receives a notification every time a node is removed
	// (disconnect, auth displacement, or reaping) so the orchestrator
	// can fail any subtasks still assigned to it.
	lostSubs chan LostSubtask

	// verifyProof authenticates a handshake's account proof against
	// the external account-key service. Out of scope here;
	// injected so callers can plug in the real verifier.
	verifyProof func(accountProof string) (accountRef string, ok bool)

	scoreSource       ScoreSource
	uptimeHook        func(nodeID string)
	brokenPromiseHook func(nodeID string, hours int)
}

// New creates a Registry and starts its heartbeat reaper.
func New(cfg config.WorkerConfig, db *store.DB, verify func(string) (string, bool), logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.New(os.Stdout, "[Registry] ", log.LstdFlags)
	}
	if verify == nil {
		verify = func(proof string) (string, bool) { return proof, proof != "" }
	}
	r := &Registry{
		nodes:       make(map[string]*node),
		cfg:         cfg,
		db:          db,
		log:         logger,
		lostSubs:    make(chan LostSubtask, 256),
		verifyProof: verify,
	}
	go r.evictLoop()
	return r
}

// LostSubtasks returns the channel of node-loss notifications the
// orchestrator should drain.
func (r *Registry) LostSubtasks() <-chan LostSubtask {
	return r.lostSubs
}

func newBreaker(nodeID string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        nodeID,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
	})
}

// ─── Registration ──────────────────────────────────────────────────────────────

// Register performs the worker handshake. It
// displaces an existing live connection for the same node-id when the
// new proof matches the incumbent's account; otherwise a live id is
// rejected as DUPLICATE_ID.
func (r *Registry) Register(h Handshake) error {
	accountRef, ok := r.verifyProof(h.AccountProof)
	if !ok {
		return ierr.ErrAuth
	}
	if h.AccountRef == "" {
		h.AccountRef = accountRef
	}

	r.mu.Lock()
	existing, isLive := r.nodes[h.NodeID]
	if isLive {
		if existing.accountRef != h.AccountRef {
			r.mu.Unlock()
			return ierr.ErrDuplicateID
		}
		// Same account re-registering under a live id: displace the
		// old connection cleanly and fail its in-flight subtasks.
		existing.conn.Close("displaced by re-registration")
		r.emitLost(h.NodeID)
	}

	now := time.Now()
	tier := shared.DeriveTier(h.Capabilities)
	r.nodes[h.NodeID] = &node{
		id:               h.NodeID,
		accountRef:       h.AccountRef,
		conn:             h.Conn,
		capabilities:     h.Capabilities,
		tier:             tier,
		currentLoad:      0,
		artificialLoad:   h.ArtificialLoad,
		lastHeartbeat:    now,
		registeredAt:     now,
		lastUptimeCredit: now,
		breaker:          newBreaker(h.NodeID),
	}
	r.mu.Unlock()

	if r.db != nil {
		capJSON := fmt.Sprintf("%+v", h.Capabilities)
		if err := r.db.UpsertNodeMetadata(h.NodeID, h.AccountRef, capJSON); err != nil {
			r.log.Printf("persist metadata for %s failed: %v", h.NodeID, err)
		}
	}

	r.log.Printf("registered %s tier=%s model=%s vram=%s tps=%.1f",
		h.NodeID, tier, h.Capabilities.ModelName,
		humanize.Bytes(uint64(maxInt64(h.Capabilities.VRAMBytes, 0))), h.Capabilities.TokensPerSecond)
	return nil
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// ─── Heartbeat ──────────────────────────────────────────────────────────────────

// Heartbeat updates a node's last-seen time and load, and credits
// UPTIME_HOUR for each full hour elapsed since it was last credited.
// uptimeSeconds is the worker's self-reported continuous uptime; only
// the elapsed-since-last-credit delta is used, so a worker's own clock
// skew can't inflate its score. Returns false if the node isn't
// registered — the worker should re-register.
func (r *Registry) Heartbeat(nodeID string, load int, uptimeSeconds int64) bool {
	r.mu.Lock()
	n, ok := r.nodes[nodeID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	n.lastHeartbeat = time.Now()
	n.currentLoad = load

	hours := 0
	if uptimeSeconds > 0 {
		elapsed := time.Since(n.lastUptimeCredit)
		hours = int(elapsed / time.Hour)
		if hours > 0 {
			n.lastUptimeCredit = n.lastUptimeCredit.Add(time.Duration(hours) * time.Hour)
		}
	}
	hook := r.uptimeHook
	r.mu.Unlock()

	if hook != nil {
		for i := 0; i < hours; i++ {
			hook(nodeID)
		}
	}
	return true
}

// ─── Disconnect ─────────────────────────────────────────────────────────────────

// Disconnect idempotently removes a node and notifies the orchestrator
// of any subtasks that were assigned to it.
func (r *Registry) Disconnect(nodeID, reason string) {
	r.mu.Lock()
	n, ok := r.nodes[nodeID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.nodes, nodeID)
	r.mu.Unlock()

	n.conn.Close(reason)
	r.log.Printf("disconnected %s: %s", nodeID, reason)
	r.emitLost(nodeID)
}

func (r *Registry) emitLost(nodeID string) {
	select {
	case r.lostSubs <- LostSubtask{NodeID: nodeID}:
	default:
		r.log.Printf("lost-subtask queue full, dropping notification for %s", nodeID)
	}
}

// ─── Load tracking ──────────────────────────────────────────────────────────────

// IncrementLoad bumps a node's in-flight subtask counter (invariant:
// never negative.
func (r *Registry) IncrementLoad(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.nodes[nodeID]; ok {
		n.currentLoad++
	}
}

// DecrementLoad lowers a node's in-flight subtask counter, floored at 0.
func (r *Registry) DecrementLoad(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.nodes[nodeID]; ok && n.currentLoad > 0 {
		n.currentLoad--
	}
}

// ─── Send with backpressure ─────────────────────────────────────────────────────

// Send forwards data to a node's connection through its circuit
// breaker. Any failure — the connection's own grace-period timeout on
// a full send queue, a closed connection, or the breaker refusing the
// call while open — is returned wrapped in ierr.ErrNodeLost.
func (r *Registry) Send(nodeID string, data []byte) error {
	r.mu.RLock()
	n, ok := r.nodes[nodeID]
	r.mu.RUnlock()
	if !ok {
		return ierr.ErrNodeLost
	}

	_, err := n.breaker.Execute(func() (any, error) {
		return nil, n.conn.Send(data)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ierr.ErrNodeLost, err)
	}
	return nil
}

// ─── Snapshot ───────────────────────────────────────────────────────────────────

// ScoreSource is injected by the reputation engine via SetScoreSource so
// Snapshot can mirror up-to-date scores without the registry owning
// the score store.
type ScoreSource func(nodeID string) int

// SetScoreSource wires the reputation engine's Score function in.
func (r *Registry) SetScoreSource(src ScoreSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scoreSource = src
}

// SetReputationHooks wires the reputation engine's UPTIME_HOUR and
// BROKEN_PROMISE accounting in. uptime is called once per full hour a
// node reports having stayed up across heartbeats; brokenPromise is
// called when a node is reaped for missing its heartbeat, with the
// number of full hours it went unreachable before eviction.
func (r *Registry) SetReputationHooks(uptime func(nodeID string), brokenPromise func(nodeID string, hours int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uptimeHook = uptime
	r.brokenPromiseHook = brokenPromise
}

// Snapshot returns an immutable view of every known node, used by
// selection and external monitoring.
func (r *Registry) Snapshot() []shared.NodeSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]shared.NodeSnapshot, 0, len(r.nodes))
	for _, n := range r.nodes {
		score := 10
		if r.scoreSource != nil {
			score = r.scoreSource(n.id)
		}
		out = append(out, shared.NodeSnapshot{
			NodeID:          n.id,
			Tier:            n.tier,
			Capabilities:    n.capabilities,
			CurrentLoad:     n.currentLoad,
			ArtificialLoad:  n.artificialLoad,
			ReputationScore: score,
			IsOnline:        r.isAliveLocked(n),
			LastHeartbeat:   n.lastHeartbeat,
			RegisteredAt:    n.registeredAt,
		})
	}
	return out
}

func (r *Registry) isAliveLocked(n *node) bool {
	return time.Since(n.lastHeartbeat) < r.cfg.ReaperTimeout()
}

// ─── Heartbeat reaper ───────────────────────────────────────────────────────────

// evictLoop periodically removes nodes whose last heartbeat is older
// than the configured reaper timeout.
func (r *Registry) evictLoop() {
	interval := r.cfg.HeartbeatInterval()
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		type staleNode struct {
			id    string
			since time.Time
		}
		var stale []staleNode
		r.mu.RLock()
		for id, n := range r.nodes {
			if !r.isAliveLocked(n) {
				stale = append(stale, staleNode{id: id, since: n.lastHeartbeat})
			}
		}
		hook := r.brokenPromiseHook
		r.mu.RUnlock()

		for _, s := range stale {
			if hook != nil {
				if hours := int(time.Since(s.since) / time.Hour); hours > 0 {
					hook(s.id, hours)
				}
			}
			r.Disconnect(s.id, "heartbeat timeout")
		}
	}
}
