// Package aggregator implements the Response Aggregator: combining
// per-subtask outputs into one final answer, with a different merge
// strategy per division mode.
package aggregator

import (
	"sort"
	"strconv"
	"strings"

	"github.com/iris-network/coordinator/internal/config"
	"github.com/iris-network/coordinator/internal/shared"
)

// Aggregator merges a task's completed subtasks into a final output.
type Aggregator struct {
	consensus config.ConsensusConfig
	division  config.DivisionConfig
}

// New creates an Aggregator.
func New(consensus config.ConsensusConfig, division config.DivisionConfig) *Aggregator {
	return &Aggregator{consensus: consensus, division: division}
}

// ScoreSource resolves a node's reputation score, used to break
// consensus ties.
type ScoreSource func(nodeID string) int

// Aggregate produces the final output string for a task, given its
// mode and its subtasks in index order. It never mutates the task.
func (a *Aggregator) Aggregate(t *shared.Task, scores ScoreSource) string {
	switch t.Mode {
	case shared.ModeSubtasks:
		return a.aggregateSubtasks(t)
	case shared.ModeConsensus:
		return a.aggregateConsensus(t, scores)
	case shared.ModeContext:
		return a.aggregateContext(t)
	case shared.ModeDirect:
		return a.aggregateDirect(t)
	default:
		return a.aggregateSubtasks(t)
	}
}

// aggregateSubtasks concatenates each subtask's buffer in index order,
// substituting a placeholder for any subtask that never completed.
func (a *Aggregator) aggregateSubtasks(t *shared.Task) string {
	ordered := append([]*shared.Subtask(nil), t.Subtasks...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	var b strings.Builder
	for i, s := range ordered {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if s.Status == shared.SubtaskCompleted {
			b.WriteString(s.Buffer)
		} else {
			b.WriteString("[missing: subtask ")
			b.WriteString(strconv.Itoa(s.Index))
			b.WriteString(" did not complete]")
		}
	}
	return b.String()
}

// aggregateConsensus picks the modal answer among completed replicas
// by token-overlap similarity, falling back to the highest-reputation
// replica among the largest cluster on a tie.
func (a *Aggregator) aggregateConsensus(t *shared.Task, scores ScoreSource) string {
	var completed []*shared.Subtask
	for _, s := range t.Subtasks {
		if s.Status == shared.SubtaskCompleted {
			completed = append(completed, s)
		}
	}
	if len(completed) == 0 {
		return ""
	}
	if len(completed) == 1 {
		return completed[0].Buffer
	}

	threshold := a.consensus.SimilarityThreshold
	if threshold <= 0 {
		threshold = 0.8
	}

	type cluster struct {
		members []*shared.Subtask
	}
	var clusters []*cluster
	for _, s := range completed {
		placed := false
		for _, c := range clusters {
			if similarity(s.Buffer, c.members[0].Buffer) >= threshold {
				c.members = append(c.members, s)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, &cluster{members: []*shared.Subtask{s}})
		}
	}

	best := clusters[0]
	for _, c := range clusters[1:] {
		if len(c.members) > len(best.members) {
			best = c
		}
	}

	winner := best.members[0]
	if scores != nil {
		bestScore := scores(winner.AssignedNode)
		for _, m := range best.members[1:] {
			if s := scores(m.AssignedNode); s > bestScore {
				winner, bestScore = m, s
			}
		}
	}
	return winner.Buffer
}

// aggregateContext stitches CONTEXT-mode chunks back together,
// trimming the configured overlap window between adjacent pieces so
// the seam doesn't duplicate text.
func (a *Aggregator) aggregateContext(t *shared.Task) string {
	ordered := append([]*shared.Subtask(nil), t.Subtasks...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	overlapWords := a.division.ContextOverlapTokens
	var b strings.Builder
	for i, s := range ordered {
		if s.Status != shared.SubtaskCompleted {
			continue
		}
		chunk := s.Buffer
		if i > 0 && overlapWords > 0 {
			chunk = trimLeadingOverlap(chunk, overlapWords)
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(chunk)
	}
	return b.String()
}

// aggregateDirect passes through the single DIRECT-mode subtask's
// output unchanged, without voting or concatenation.
func (a *Aggregator) aggregateDirect(t *shared.Task) string {
	for _, s := range t.Subtasks {
		if s.Status == shared.SubtaskCompleted {
			return s.Buffer
		}
	}
	return ""
}

// trimLeadingOverlap drops up to n leading words from s, approximating
// the overlap the preceding chunk already covered.
func trimLeadingOverlap(s string, n int) string {
	words := strings.Fields(s)
	if n >= len(words) {
		return ""
	}
	return strings.Join(words[n:], " ")
}

// similarity is a bag-of-words Jaccard index over whitespace tokens —
// cheap and license-free, adequate for clustering near-duplicate LLM
// replicas without pulling in an embeddings dependency.
func similarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[w] = true
	}
	return out
}
