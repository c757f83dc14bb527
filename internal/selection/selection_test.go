package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iris-network/coordinator/internal/config"
	"github.com/iris-network/coordinator/internal/shared"
)

func defaultWeights() config.SelectionConfig {
	return config.SelectionConfig{WeightReputation: 0.4, WeightTPS: 0.3, WeightLoad: 0.2, WeightWait: 0.1}
}

func node(id string, tier shared.Tier, rep int, load int, tps float64) shared.NodeSnapshot {
	return shared.NodeSnapshot{
		NodeID:          id,
		Tier:            tier,
		IsOnline:        true,
		ReputationScore: rep,
		CurrentLoad:     load,
		Capabilities:    shared.Capabilities{TokensPerSecond: tps},
	}
}

func TestSelectFiltersByTierAndOnline(t *testing.T) {
	p := New(defaultWeights())
	nodes := []shared.NodeSnapshot{
		node("basic-1", shared.TierBasic, 10, 0, 15),
		node("pro-1", shared.TierPro, 10, 0, 40),
		{NodeID: "pro-offline", Tier: shared.TierPro, IsOnline: false},
	}

	picked := p.Select(nodes, shared.DifficultyAdvanced, 5, nil)
	require.Len(t, picked, 1)
	assert.Equal(t, "pro-1", picked[0].NodeID)
}

func TestSelectExcludesTriedNodes(t *testing.T) {
	p := New(defaultWeights())
	nodes := []shared.NodeSnapshot{
		node("a", shared.TierBasic, 10, 0, 15),
		node("b", shared.TierBasic, 10, 0, 15),
	}
	picked := p.Select(nodes, shared.DifficultySimple, 1, map[string]bool{"a": true})
	require.Len(t, picked, 1)
	assert.Equal(t, "b", picked[0].NodeID)
}

func TestSelectPrefersHigherReputation(t *testing.T) {
	p := New(defaultWeights())
	nodes := []shared.NodeSnapshot{
		node("low-rep", shared.TierBasic, 10, 0, 15),
		node("high-rep", shared.TierBasic, 100, 0, 15),
	}
	picked := p.Select(nodes, shared.DifficultySimple, 1, nil)
	require.Len(t, picked, 1)
	assert.Equal(t, "high-rep", picked[0].NodeID)
}

func TestSelectDeterministicTieBreak(t *testing.T) {
	p := New(config.SelectionConfig{}) // all weights zero -> every score is 0
	nodes := []shared.NodeSnapshot{
		node("zzz", shared.TierBasic, 10, 0, 15),
		node("aaa", shared.TierBasic, 10, 0, 15),
	}
	picked := p.Select(nodes, shared.DifficultySimple, 1, nil)
	require.Len(t, picked, 1)
	assert.Equal(t, "aaa", picked[0].NodeID, "equal scores should break ties lexicographically by node-id")
}

func TestSelectReturnsAllWhenFewerThanK(t *testing.T) {
	p := New(defaultWeights())
	nodes := []shared.NodeSnapshot{node("only", shared.TierBasic, 10, 0, 15)}
	picked := p.Select(nodes, shared.DifficultySimple, 5, nil)
	assert.Len(t, picked, 1)
}

func TestSelectReturnsNilWhenNoneEligible(t *testing.T) {
	p := New(defaultWeights())
	picked := p.Select(nil, shared.DifficultySimple, 5, nil)
	assert.Nil(t, picked)
}
