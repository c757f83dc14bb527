// Package shared holds the wire and domain types used across the
// coordinator: nodes, tasks, subtasks, streams and reputation events.
// Nothing in this package owns state — it is data only.
package shared

import "time"

// ─── Difficulty & Tier ────────────────────────────────────────────────────────

// Difficulty is the coarse prompt classification driving deadlines and
// tier eligibility.
type Difficulty string

const (
	DifficultySimple   Difficulty = "SIMPLE"
	DifficultyComplex  Difficulty = "COMPLEX"
	DifficultyAdvanced Difficulty = "ADVANCED"
)

// Tier is a coarse hardware classification derived from capabilities.
type Tier string

const (
	TierBasic Tier = "BASIC"
	TierMid   Tier = "MID"
	TierPro   Tier = "PRO"
)

// TiersForDifficulty returns the set of tiers allowed to serve a given
// difficulty.
func TiersForDifficulty(d Difficulty) map[Tier]bool {
	switch d {
	case DifficultySimple:
		return map[Tier]bool{TierBasic: true, TierMid: true, TierPro: true}
	case DifficultyComplex:
		return map[Tier]bool{TierMid: true, TierPro: true}
	case DifficultyAdvanced:
		return map[Tier]bool{TierPro: true}
	default:
		return map[Tier]bool{}
	}
}

// ─── Capabilities ─────────────────────────────────────────────────────────────

// Quantization is the worker's declared quantization level, used to
// compute an effective parameter count for tier derivation.
type Quantization string

const (
	QuantQ4   Quantization = "Q4"
	QuantQ5   Quantization = "Q5"
	QuantQ6   Quantization = "Q6"
	QuantQ8   Quantization = "Q8"
	QuantFP16 Quantization = "FP16"
)

// QuantizationMultiplier implements the effective-parameter
// multiplier table. Unknown quantizations are treated as Q4 (1.0x).
func QuantizationMultiplier(q Quantization) float64 {
	switch q {
	case QuantQ4:
		return 1.0
	case QuantQ5:
		return 1.1
	case QuantQ6:
		return 1.2
	case QuantQ8:
		return 1.4
	case QuantFP16:
		return 1.6
	default:
		return 1.0
	}
}

// Capabilities is the snapshot a worker declares at registration.
type Capabilities struct {
	ModelName       string       `json:"model_name"`
	ParamsBillions  float64      `json:"params_billions"`
	Quantization    Quantization `json:"quantization"`
	VRAMBytes       int64        `json:"vram_bytes"`
	TokensPerSecond float64      `json:"tokens_per_second"`
	VisionCapable   bool         `json:"vision_capable"`
}

// EffectiveParams applies the quantization multiplier to ParamsBillions.
func (c Capabilities) EffectiveParams() float64 {
	return c.ParamsBillions * QuantizationMultiplier(c.Quantization)
}

// DeriveTier is the pure tier-derivation function.
// Same input always yields the same output.
func DeriveTier(c Capabilities) Tier {
	eff := c.EffectiveParams()
	if eff < 7 || c.TokensPerSecond < 10 {
		return TierBasic
	}
	if eff > 20 || c.TokensPerSecond > 30 {
		return TierPro
	}
	return TierMid
}

// ─── Node ──────────────────────────────────────────────────────────────────────

// NodeSnapshot is an immutable, read-only view of a registry entry,
// returned by Registry.Snapshot and consumed by selection and
// monitoring. It never aliases registry-owned memory.
type NodeSnapshot struct {
	NodeID          string       `json:"node_id"`
	Tier            Tier         `json:"tier"`
	Capabilities    Capabilities `json:"capabilities"`
	CurrentLoad     int          `json:"current_load"`
	ArtificialLoad  int          `json:"artificial_load"`
	ReputationScore int          `json:"reputation_score"`
	IsOnline        bool         `json:"is_online"`
	LastHeartbeat   time.Time    `json:"last_heartbeat"`
	RegisteredAt    time.Time    `json:"registered_at"`
}

// EffectiveLoad is current-load plus the configured artificial-load
// offset.
func (n NodeSnapshot) EffectiveLoad() int {
	return n.CurrentLoad + n.ArtificialLoad
}

// ─── Division mode ─────────────────────────────────────────────────────────────

// DivisionMode selects how a task is split into subtasks.
type DivisionMode string

const (
	ModeSubtasks  DivisionMode = "SUBTASKS"
	ModeConsensus DivisionMode = "CONSENSUS"
	ModeContext   DivisionMode = "CONTEXT"
	ModeDirect    DivisionMode = "DIRECT"
)

// ─── Task status ───────────────────────────────────────────────────────────────

// TaskStatus is the Task's lifecycle state.
type TaskStatus string

const (
	StatusPending     TaskStatus = "PENDING"
	StatusClassifying TaskStatus = "CLASSIFYING"
	StatusDispatched  TaskStatus = "DISPATCHED"
	StatusStreaming   TaskStatus = "STREAMING"
	StatusCompleted   TaskStatus = "COMPLETED"
	StatusPartial     TaskStatus = "PARTIAL"
	StatusFailed      TaskStatus = "FAILED"
	StatusTimedOut    TaskStatus = "TIMED_OUT"
	StatusCancelled   TaskStatus = "CANCELLED"
)

// IsTerminal reports whether status is one a Task can only reach once.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusPartial, StatusFailed, StatusTimedOut, StatusCancelled:
		return true
	default:
		return false
	}
}

// ─── Subtask status ─────────────────────────────────────────────────────────────

// SubtaskStatus is a Subtask's lifecycle state.
type SubtaskStatus string

const (
	SubtaskPending    SubtaskStatus = "PENDING"
	SubtaskAssigned   SubtaskStatus = "ASSIGNED"
	SubtaskStreaming  SubtaskStatus = "STREAMING"
	SubtaskCompleted  SubtaskStatus = "COMPLETED"
	SubtaskFailed     SubtaskStatus = "FAILED"
	SubtaskReassigned SubtaskStatus = "REASSIGNED"
	SubtaskCancelled  SubtaskStatus = "CANCELLED"
)

// ─── File attachment ────────────────────────────────────────────────────────────

// AttachedFile is a user-supplied file alongside a prompt.
type AttachedFile struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Bytes    []byte `json:"-"`
}

// DirectBypassFormats lists attachment MIME types that switch a task
// to DIRECT mode: classification is skipped and the whole prompt goes
// out as a single subtask. That subtask is still dispatched to a
// registered worker; no external document service is called.
var DirectBypassFormats = map[string]bool{
	"application/pdf": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// HasDirectBypassAttachment reports whether any file requires the
// direct-process bypass.
func HasDirectBypassAttachment(files []AttachedFile) bool {
	for _, f := range files {
		if DirectBypassFormats[f.MimeType] {
			return true
		}
	}
	return false
}

// ─── Task / Subtask ─────────────────────────────────────────────────────────────

// Subtask is one unit of work dispatched to exactly one worker at a time.
type Subtask struct {
	TaskID       string          `json:"task_id"`
	Index        int             `json:"index"`
	Prompt       string          `json:"prompt"`
	AssignedNode string          `json:"assigned_node,omitempty"`
	TriedNodes   map[string]bool `json:"-"`
	Attempts     int             `json:"attempts"`
	Status       SubtaskStatus   `json:"status"`
	Buffer       string          `json:"buffer"`
	AttemptStart time.Time       `json:"attempt_start"`
}

// Task is one user request and everything the orchestrator tracks
// about it for its lifetime.
type Task struct {
	TaskID      string         `json:"task_id"`
	Prompt      string         `json:"prompt"`
	Files       []AttachedFile `json:"-"`
	Mode        DivisionMode   `json:"mode"`
	Streaming   bool           `json:"streaming"`
	CreatedAt   time.Time      `json:"created_at"`
	Difficulty  Difficulty     `json:"difficulty"`
	Timeout     time.Duration  `json:"-"`
	AccountRef  string         `json:"account_ref"`
	Status      TaskStatus     `json:"status"`
	Subtasks    []*Subtask     `json:"subtasks"`
	FinalOutput string         `json:"final_output,omitempty"`
	ReasonCode  string         `json:"reason_code,omitempty"`
}

// NetworkStats is the aggregate network-health egress: online node
// count, in-flight task count, task counts by terminal status, and a
// reputation leaderboard.
type NetworkStats struct {
	OnlineNodes   int                `json:"online_nodes"`
	InFlightTasks int                `json:"in_flight_tasks"`
	TasksByStatus map[TaskStatus]int `json:"tasks_by_status"`
	Leaderboard   []LeaderboardEntry `json:"leaderboard"`
}

// LeaderboardEntry is one node's rank on the reputation leaderboard.
type LeaderboardEntry struct {
	NodeID          string `json:"node_id"`
	ReputationScore int    `json:"reputation_score"`
}

// ─── Reputation events ───────────────────────────────────────────────────────────

// ReputationKind is the event kind recorded against a node.
type ReputationKind string

const (
	EventTaskCompleted   ReputationKind = "TASK_COMPLETED"
	EventFastCompletion  ReputationKind = "FAST_COMPLETION"
	EventTimeout         ReputationKind = "TIMEOUT"
	EventInvalidResponse ReputationKind = "INVALID_RESPONSE"
	EventUptimeHour      ReputationKind = "UPTIME_HOUR"
	EventBrokenPromise   ReputationKind = "BROKEN_PROMISE"
	EventWeeklyDecay     ReputationKind = "WEEKLY_DECAY"
)

// ReputationEvent is an append-only record of a reputation delta.
type ReputationEvent struct {
	NodeID    string         `json:"node_id"`
	Kind      ReputationKind `json:"kind"`
	Points    int            `json:"points"`
	Timestamp time.Time      `json:"timestamp"`
}

// ─── Stream frames ────────────────────────────────────────────────────────────

// StreamFrame is one entry in a Task's multiplexed output queue.
type StreamFrame struct {
	SubtaskIndex int    `json:"subtask_index"`
	Sequence     int    `json:"sequence"`
	Payload      string `json:"payload"`
	IsTerminal   bool   `json:"is_terminal"`
	Marker       string `json:"marker,omitempty"` // DROPPED | ATTEMPT_RESTART | ABORTED | ERROR
}
