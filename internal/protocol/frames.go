// Package protocol implements the worker connection protocol: the
// discriminated frame set exchanged over each worker's bidirectional
// WebSocket channel, and the Conn type that implements registry.Connection.
package protocol

import "github.com/iris-network/coordinator/internal/shared"

// FrameType discriminates the wire frames exchanged over a worker connection.
type FrameType string

const (
	FrameRegister     FrameType = "REGISTER"
	FrameRegisterAck  FrameType = "REGISTER_ACK"
	FrameHeartbeat    FrameType = "HEARTBEAT"
	FrameHeartbeatAck FrameType = "HEARTBEAT_ACK"
	FrameDispatch     FrameType = "DISPATCH"
	FrameChunk        FrameType = "CHUNK"
	FrameComplete     FrameType = "COMPLETE"
	FrameError        FrameType = "ERROR"
	FrameCancel       FrameType = "CANCEL"
)

// Frame is the envelope every wire message is marshalled as.
type Frame struct {
	Type FrameType `json:"type"`

	// REGISTER / REGISTER_ACK
	NodeID       string              `json:"node_id,omitempty"`
	AccountProof string              `json:"account_proof,omitempty"`
	Capabilities shared.Capabilities `json:"capabilities,omitempty"`
	Accepted     bool                `json:"accepted,omitempty"`
	Reason       string              `json:"reason,omitempty"`

	// HEARTBEAT
	Load   int   `json:"load,omitempty"`
	Uptime int64 `json:"uptime_seconds,omitempty"`

	// DISPATCH
	TaskID   string `json:"task_id,omitempty"`
	Subtask  int    `json:"subtask_index,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
	Deadline int64  `json:"deadline_unix_ms,omitempty"`

	// CHUNK / COMPLETE / ERROR
	Payload string `json:"payload,omitempty"`
	Code    string `json:"code,omitempty"`
}
