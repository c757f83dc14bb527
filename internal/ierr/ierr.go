// Package ierr defines the coordinator's error taxonomy:
// a small set of sentinel and typed errors that every component wraps
// its failures into, so the HTTP boundary can turn them into a
// machine-readable reason code without string-matching.
package ierr

import (
	"errors"
	"fmt"
)

// Sentinel errors — one per taxonomy kind that isn't parameterized.
var (
	ErrAuth        = errors.New("auth: invalid account proof")
	ErrDuplicateID = errors.New("auth: duplicate node id without matching proof")
	ErrProtocol    = errors.New("protocol: malformed or out-of-sequence frame")
	ErrNoNodes     = errors.New("capacity: no eligible node for required tier")
	ErrExhausted   = errors.New("capacity: all dispatch attempts exhausted")
	ErrTimeout     = errors.New("timeout: deadline exceeded")
	ErrIntegrity   = errors.New("integrity: result failed validation")
	ErrNodeLost    = errors.New("transport: connection lost")
)

// WorkerKind enumerates the TASK_ERROR sub-kinds a worker can report.
type WorkerKind string

const (
	WorkerModelRefused      WorkerKind = "MODEL_REFUSED"
	WorkerInternal          WorkerKind = "INTERNAL"
	WorkerOutOfMemory       WorkerKind = "OUT_OF_MEMORY"
	WorkerVisionUnsupported WorkerKind = "VISION_UNSUPPORTED"
)

// WorkerError wraps a worker-reported TASK_ERROR.
type WorkerError struct {
	Kind   WorkerKind
	Detail string
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker error %s: %s", e.Kind, e.Detail)
}

// ReasonCode maps an error to the machine-readable string the HTTP
// boundary returns for PARTIAL/FAILED tasks.
func ReasonCode(err error) string {
	if err == nil {
		return ""
	}
	var we *WorkerError
	switch {
	case errors.As(err, &we):
		return string(we.Kind)
	case errors.Is(err, ErrNoNodes):
		return "NO_NODES"
	case errors.Is(err, ErrExhausted):
		return "ATTEMPTS_EXHAUSTED"
	case errors.Is(err, ErrTimeout):
		return "TIMEOUT"
	case errors.Is(err, ErrIntegrity):
		return "INVALID_RESPONSE"
	case errors.Is(err, ErrNodeLost):
		return "NODE_LOST"
	case errors.Is(err, ErrAuth):
		return "AUTH"
	case errors.Is(err, ErrDuplicateID):
		return "DUPLICATE_ID"
	case errors.Is(err, ErrProtocol):
		return "PROTOCOL"
	default:
		return "INTERNAL"
	}
}
