package orchestrator

import (
	"context"

	"github.com/iris-network/coordinator/internal/shared"
)

// ceilHalf returns ⌈n/2⌉.
func ceilHalf(n int) int {
	return (n + 1) / 2
}

// run carries a task through its full lifecycle: classify, divide,
// dispatch every subtask concurrently, aggregate, and finish.
func (o *Orchestrator) run(ctx context.Context, t *shared.Task) {
	o.setStatus(t, shared.StatusClassifying)

	if !shared.HasDirectBypassAttachment(t.Files) {
		t.Difficulty = o.classifier.Classify(ctx, t.Prompt, t.Files)
	} else {
		t.Difficulty = shared.DifficultyComplex
	}
	t.Timeout = o.cfg.Difficulty.TimeoutFor(string(t.Difficulty))

	o.divide(t)

	taskCtx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()
	o.mu.Lock()
	o.cancels[t.TaskID] = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.cancels, t.TaskID)
		o.mu.Unlock()
	}()

	o.setStatus(t, shared.StatusDispatched)
	if t.Streaming {
		o.setStatus(t, shared.StatusStreaming)
	}

	o.runSubtasks(taskCtx, t)

	o.mu.RLock()
	alreadyTerminal := t.Status.IsTerminal()
	o.mu.RUnlock()
	if alreadyTerminal {
		// A concurrent Cancel already finalized the task.
		return
	}

	t.FinalOutput = o.aggregator.Aggregate(t, o.reputation.Score)
	status := o.terminalStatus(t)
	o.mu.Lock()
	if (status == shared.StatusFailed || status == shared.StatusPartial) && t.ReasonCode == "" {
		t.ReasonCode = "ATTEMPTS_EXHAUSTED"
	}
	o.mu.Unlock()
	o.setStatus(t, status)
	o.finish(t)
}

// runSubtasks dispatches every subtask concurrently and blocks until
// all have reached a terminal subtask status or the task deadline
// fires.
func (o *Orchestrator) runSubtasks(ctx context.Context, t *shared.Task) {
	p := poolWithPanicSafety(len(t.Subtasks))
	for _, s := range t.Subtasks {
		s := s
		p.Go(func() {
			o.dispatchAndWait(ctx, t, s)
		})
	}
	p.Wait()
}

// terminalStatus derives the task's final status from its subtasks'
// outcomes.
func (o *Orchestrator) terminalStatus(t *shared.Task) shared.TaskStatus {
	completed, failed := 0, 0
	for _, s := range t.Subtasks {
		switch s.Status {
		case shared.SubtaskCompleted:
			completed++
		default:
			failed++
		}
	}
	switch {
	case failed == 0:
		return shared.StatusCompleted
	case t.Mode == shared.ModeConsensus && completed >= ceilHalf(len(t.Subtasks)):
		return shared.StatusCompleted
	case completed == 0:
		return shared.StatusFailed
	default:
		return shared.StatusPartial
	}
}

// setStatus moves t to status unless t is already terminal, so a
// concurrent Cancel's CANCELLED is never overwritten.
func (o *Orchestrator) setStatus(t *shared.Task, status shared.TaskStatus) {
	o.mu.Lock()
	if !t.Status.IsTerminal() {
		t.Status = status
	}
	o.mu.Unlock()
}
