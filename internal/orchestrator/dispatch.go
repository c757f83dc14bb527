package orchestrator

import (
	"context"
	"time"

	"github.com/iris-network/coordinator/internal/ierr"
	"github.com/iris-network/coordinator/internal/protocol"
	"github.com/iris-network/coordinator/internal/shared"
)

// signalKind discriminates what woke up a subtask's waiter.
type signalKind string

const (
	signalChunk    signalKind = "chunk"
	signalComplete signalKind = "complete"
	signalError    signalKind = "error"
	signalTimeout  signalKind = "timeout"
	signalLost     signalKind = "lost"
)

type signal struct {
	kind    signalKind
	payload string
	code    string
}

// waiterKey identifies one subtask's in-flight wait.
type waiterKey struct {
	taskID string
	index  int
}

func (o *Orchestrator) registerWaiter(taskID string, index int) chan signal {
	ch := make(chan signal, 32)
	o.mu.Lock()
	if o.waiters == nil {
		o.waiters = make(map[waiterKey]chan signal)
	}
	o.waiters[waiterKey{taskID, index}] = ch
	o.mu.Unlock()
	return ch
}

func (o *Orchestrator) unregisterWaiter(taskID string, index int) {
	o.mu.Lock()
	delete(o.waiters, waiterKey{taskID, index})
	o.mu.Unlock()
}

// HandleFrame routes an inbound CHUNK/COMPLETE/ERROR frame from a
// worker to the subtask waiting on it. Wired as protocol.Hub.OnFrame.
func (o *Orchestrator) HandleFrame(nodeID string, f protocol.Frame) {
	o.mu.RLock()
	ch, ok := o.waiters[waiterKey{f.TaskID, f.Subtask}]
	o.mu.RUnlock()
	if !ok {
		return
	}

	switch f.Type {
	case protocol.FrameChunk:
		ch <- signal{kind: signalChunk, payload: f.Payload}
	case protocol.FrameComplete:
		ch <- signal{kind: signalComplete, payload: f.Payload}
	case protocol.FrameError:
		ch <- signal{kind: signalError, code: f.Code, payload: f.Payload}
	}
}

// dispatchAndWait drives one subtask through selection, send, and
// collection, retrying on timeout/NODE_LOST up to the configured
// attempt cap.
func (o *Orchestrator) dispatchAndWait(ctx context.Context, t *shared.Task, s *shared.Subtask) {
	maxAttempts := o.cfg.Difficulty.MaxAttemptsPerSubtask
	if maxAttempts <= 0 {
		maxAttempts = 2
	}
	perSubtaskTimeout := o.cfg.Difficulty.PerSubtaskTimeout()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		node, ok := o.pickNode(t, s)
		if !ok {
			s.Status = shared.SubtaskFailed
			o.mu.Lock()
			if t.ReasonCode == "" {
				t.ReasonCode = ierr.ReasonCode(ierr.ErrNoNodes)
			}
			o.mu.Unlock()
			if t.Streaming {
				o.mux.PushMarker(t.TaskID, s.Index, "ERROR")
			}
			return
		}

		s.AssignedNode = node
		s.Attempts++
		s.Status = shared.SubtaskAssigned
		s.AttemptStart = time.Now()
		s.TriedNodes[node] = true
		o.registry.IncrementLoad(node)

		ch := o.registerWaiter(t.TaskID, s.Index)
		outcome := o.runAttempt(ctx, t, s, node, ch, perSubtaskTimeout)
		o.unregisterWaiter(t.TaskID, s.Index)
		o.registry.DecrementLoad(node)

		switch outcome {
		case signalComplete:
			s.Status = shared.SubtaskCompleted
			o.reputation.RecordTaskCompleted(node, time.Since(s.AttemptStart), t.Timeout)
			return
		case signalError:
			o.reputation.RecordInvalidResponse(node)
			s.Status = shared.SubtaskReassigned
			if t.Streaming {
				o.mux.PushMarker(t.TaskID, s.Index, "ATTEMPT_RESTART")
			}
			continue
		default: // signalTimeout or signalLost
			o.reputation.RecordTimeout(node)
			s.Status = shared.SubtaskReassigned
			if t.Streaming {
				o.mux.PushMarker(t.TaskID, s.Index, "ATTEMPT_RESTART")
			}
			continue
		}
	}
	s.Status = shared.SubtaskFailed
	o.mu.Lock()
	if t.ReasonCode == "" {
		t.ReasonCode = ierr.ReasonCode(ierr.ErrExhausted)
	}
	o.mu.Unlock()
	if t.Streaming {
		o.mux.PushMarker(t.TaskID, s.Index, "ERROR")
	}
}

// runAttempt sends the DISPATCH frame and blocks until the subtask
// completes, errors, times out, or the node is lost. It returns the
// signal kind that ended the wait.
func (o *Orchestrator) runAttempt(ctx context.Context, t *shared.Task, s *shared.Subtask, node string, ch chan signal, timeout time.Duration) signalKind {
	frame := protocol.Frame{
		Type:     protocol.FrameDispatch,
		TaskID:   t.TaskID,
		Subtask:  s.Index,
		Prompt:   s.Prompt,
		Deadline: time.Now().Add(timeout).UnixMilli(),
	}
	data, err := jsonMarshal(frame)
	if err != nil {
		return signalError
	}
	if err := o.sender.Send(node, data); err != nil {
		return signalLost
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case sig := <-ch:
			switch sig.kind {
			case signalChunk:
				s.Buffer += sig.payload
				if t.Streaming {
					o.mux.Push(t.TaskID, s.Index, sig.payload, false)
				}
			case signalComplete:
				s.Buffer += sig.payload
				if t.Streaming {
					o.mux.Push(t.TaskID, s.Index, sig.payload, true)
				}
				return signalComplete
			case signalError:
				return signalError
			case signalLost:
				return signalLost
			}
		case <-deadline.C:
			return signalTimeout
		case <-ctx.Done():
			return signalLost
		}
	}
}

// pickNode asks the selection policy for one eligible node, excluding
// any node already tried for this subtask.
func (o *Orchestrator) pickNode(t *shared.Task, s *shared.Subtask) (string, bool) {
	snapshot := o.registry.Snapshot()
	picked := o.selector.Select(snapshot, t.Difficulty, 1, s.TriedNodes)
	if len(picked) == 0 {
		return "", false
	}
	return picked[0].NodeID, true
}

// reassignForNode signals every waiter tied to nodeID within t so
// dispatchAndWait's retry loop picks a replacement node.
func (o *Orchestrator) reassignForNode(t *shared.Task, nodeID string) {
	o.mu.RLock()
	var keys []waiterKey
	for k := range o.waiters {
		if k.taskID != t.TaskID {
			continue
		}
		for _, s := range t.Subtasks {
			if s.Index == k.index && s.AssignedNode == nodeID {
				keys = append(keys, k)
			}
		}
	}
	chans := make([]chan signal, 0, len(keys))
	for _, k := range keys {
		chans = append(chans, o.waiters[k])
	}
	o.mu.RUnlock()

	for _, ch := range chans {
		select {
		case ch <- signal{kind: signalLost}:
		default:
		}
	}
}
