// Package selection implements the Selection Policy:
// scoring and picking up to k distinct online, tier-eligible workers.
package selection

import (
	"sort"

	"github.com/iris-network/coordinator/internal/config"
	"github.com/iris-network/coordinator/internal/shared"
)

const epsilon = 1e-6

// Policy scores and selects nodes from a registry snapshot. It holds
// no state of its own — every call is a pure function of the snapshot
// passed in, so it never needs a lock.
type Policy struct {
	weights config.SelectionConfig
}

// New creates a Policy with the given scoring weights.
func New(weights config.SelectionConfig) *Policy {
	return &Policy{weights: weights}
}

// candidate is a scored node, kept alongside the fields needed to
// break ties deterministically.
type candidate struct {
	node  shared.NodeSnapshot
	score float64
}

// Select returns up to k distinct eligible nodes for difficulty d,
// ranked by score descending. If fewer than k nodes
// are eligible, it returns all of them — the caller decides whether
// to proceed.
func (p *Policy) Select(nodes []shared.NodeSnapshot, d shared.Difficulty, k int, exclude map[string]bool) []shared.NodeSnapshot {
	allowedTiers := shared.TiersForDifficulty(d)

	var eligible []shared.NodeSnapshot
	for _, n := range nodes {
		if !n.IsOnline {
			continue
		}
		if !allowedTiers[n.Tier] {
			continue
		}
		if exclude != nil && exclude[n.NodeID] {
			continue
		}
		eligible = append(eligible, n)
	}
	if len(eligible) == 0 {
		return nil
	}

	maxRep, maxTPS := 0.0, 0.0
	for _, n := range eligible {
		if r := float64(n.ReputationScore); r > maxRep {
			maxRep = r
		}
		if n.Capabilities.TokensPerSecond > maxTPS {
			maxTPS = n.Capabilities.TokensPerSecond
		}
	}

	candidates := make([]candidate, 0, len(eligible))
	for _, n := range eligible {
		candidates = append(candidates, candidate{node: n, score: p.score(n, maxRep, maxTPS)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return less(candidates[i], candidates[j])
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	out := make([]shared.NodeSnapshot, 0, k)
	for i := 0; i < k; i++ {
		out = append(out, candidates[i].node)
	}
	return out
}

// score implements the weighted selection formula.
func (p *Policy) score(n shared.NodeSnapshot, maxRep, maxTPS float64) float64 {
	rep := norm(float64(n.ReputationScore), maxRep)
	tps := norm(n.Capabilities.TokensPerSecond, maxTPS)
	load := float64(n.EffectiveLoad())
	wait := expectedQueueDelay(n)

	return p.weights.WeightReputation*rep +
		p.weights.WeightTPS*tps -
		p.weights.WeightLoad*load -
		p.weights.WeightWait*wait
}

func norm(v, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return v / max
}

func expectedQueueDelay(n shared.NodeSnapshot) float64 {
	tps := n.Capabilities.TokensPerSecond
	if tps < epsilon {
		tps = epsilon
	}
	return float64(n.EffectiveLoad()) / tps
}

// less ranks candidates: score descending, then reputation descending,
// then load ascending, then node-id lexicographic — fully deterministic.
func less(a, b candidate) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if a.node.ReputationScore != b.node.ReputationScore {
		return a.node.ReputationScore > b.node.ReputationScore
	}
	if a.node.EffectiveLoad() != b.node.EffectiveLoad() {
		return a.node.EffectiveLoad() < b.node.EffectiveLoad()
	}
	return a.node.NodeID < b.node.NodeID
}
