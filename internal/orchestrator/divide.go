package orchestrator

import (
	"strings"

	"github.com/iris-network/coordinator/internal/shared"
)

// divide splits a task's prompt into subtasks according to its
// division mode. A direct-bypass attachment forces DIRECT, which
// always yields a single subtask holding the whole prompt regardless
// of the requested mode. That subtask goes through the same selection
// and dispatch as any other, to a registered worker; no external
// document service is called.
func (o *Orchestrator) divide(t *shared.Task) {
	if shared.HasDirectBypassAttachment(t.Files) {
		t.Mode = shared.ModeDirect
	}

	switch t.Mode {
	case shared.ModeConsensus:
		t.Subtasks = o.divideConsensus(t)
	case shared.ModeContext:
		t.Subtasks = o.divideContext(t)
	case shared.ModeDirect:
		t.Subtasks = []*shared.Subtask{{TaskID: t.TaskID, Index: 0, Prompt: t.Prompt, Status: shared.SubtaskPending, TriedNodes: map[string]bool{}}}
	default:
		t.Mode = shared.ModeSubtasks
		t.Subtasks = o.divideSubtasks(t)
	}
}

// divideSubtasks splits on blank-line-delimited paragraphs, capped at
// the configured max, falling back to a single subtask for a prompt
// that doesn't naturally decompose.
func (o *Orchestrator) divideSubtasks(t *shared.Task) []*shared.Subtask {
	max := o.cfg.Division.MaxSubtasksPerTask
	if max <= 0 {
		max = 8
	}
	parts := splitParagraphs(t.Prompt)
	if len(parts) > max {
		merged := parts[:max-1]
		merged = append(merged, strings.Join(parts[max-1:], "\n\n"))
		parts = merged
	}
	if len(parts) == 0 {
		parts = []string{t.Prompt}
	}
	out := make([]*shared.Subtask, len(parts))
	for i, p := range parts {
		out[i] = &shared.Subtask{TaskID: t.TaskID, Index: i, Prompt: p, Status: shared.SubtaskPending, TriedNodes: map[string]bool{}}
	}
	return out
}

// divideConsensus replicates the whole prompt N times so independent
// workers each answer it in full.
func (o *Orchestrator) divideConsensus(t *shared.Task) []*shared.Subtask {
	n := o.cfg.Division.ConsensusReplicas
	if n <= 0 {
		n = 3
	}
	out := make([]*shared.Subtask, n)
	for i := 0; i < n; i++ {
		out[i] = &shared.Subtask{TaskID: t.TaskID, Index: i, Prompt: t.Prompt, Status: shared.SubtaskPending, TriedNodes: map[string]bool{}}
	}
	return out
}

// divideContext splits long input into overlapping windows so each
// worker sees enough surrounding text to stay coherent at the seams.
func (o *Orchestrator) divideContext(t *shared.Task) []*shared.Subtask {
	window := o.cfg.Division.ContextWindowTokens
	overlap := o.cfg.Division.ContextOverlapTokens
	if window <= 0 {
		window = 2048
	}
	words := strings.Fields(t.Prompt)
	if len(words) <= window {
		return []*shared.Subtask{{TaskID: t.TaskID, Index: 0, Prompt: t.Prompt, Status: shared.SubtaskPending, TriedNodes: map[string]bool{}}}
	}

	var chunks []string
	stride := window - overlap
	if stride <= 0 {
		stride = window
	}
	for start := 0; start < len(words); start += stride {
		end := start + window
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}

	out := make([]*shared.Subtask, len(chunks))
	for i, c := range chunks {
		out[i] = &shared.Subtask{TaskID: t.TaskID, Index: i, Prompt: c, Status: shared.SubtaskPending, TriedNodes: map[string]bool{}}
	}
	return out
}

func splitParagraphs(prompt string) []string {
	raw := strings.Split(prompt, "\n\n")
	var out []string
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
