package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/iris-network/coordinator/internal/aggregator"
	"github.com/iris-network/coordinator/internal/classifier"
	"github.com/iris-network/coordinator/internal/config"
	"github.com/iris-network/coordinator/internal/orchestrator"
	"github.com/iris-network/coordinator/internal/protocol"
	"github.com/iris-network/coordinator/internal/registry"
	"github.com/iris-network/coordinator/internal/reputation"
	"github.com/iris-network/coordinator/internal/selection"
	"github.com/iris-network/coordinator/internal/shared"
	"github.com/iris-network/coordinator/internal/store"
	"github.com/iris-network/coordinator/internal/stream"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()

	db, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repEngine, err := reputation.New(cfg.Reputation, db, nil)
	if err != nil {
		t.Fatalf("new reputation engine: %v", err)
	}

	reg := registry.New(cfg.Worker, db, nil, nil)
	reg.SetScoreSource(repEngine.Score)
	reg.Register(registry.Handshake{
		NodeID:       "worker-1",
		AccountProof: "acct",
		Capabilities: shared.Capabilities{ParamsBillions: 70, Quantization: shared.QuantFP16, TokensPerSecond: 50},
		Conn:         &noopConn{},
	})
	repEngine.RecordTaskCompleted("worker-1", 0, 0)

	mux := stream.New(cfg.Stream.QueueCapacity)
	orch := orchestrator.New(orchestrator.Deps{
		Config:     cfg,
		Registry:   reg,
		Selector:   selection.New(cfg.Selection),
		Classifier: classifier.New(cfg.Classifier, nil, nil),
		Aggregator: aggregator.New(cfg.Consensus, cfg.Division),
		Reputation: repEngine,
		Mux:        mux,
		DB:         db,
	})

	hub := protocol.NewHub(cfg.Worker, nil)
	return New(orch, reg, repEngine, mux, hub, cfg.Reputation.LeaderboardSize)
}

type noopConn struct{}

func (noopConn) Send(data []byte) error    { return nil }
func (noopConn) Close(reason string) error { return nil }

func TestHandleNetworkStatsReportsOnlineNodesAndLeaderboard(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var stats shared.NetworkStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if stats.OnlineNodes != 1 {
		t.Errorf("OnlineNodes = %d, want 1", stats.OnlineNodes)
	}
	if len(stats.Leaderboard) != 1 || stats.Leaderboard[0].NodeID != "worker-1" {
		t.Errorf("Leaderboard = %+v, want a single worker-1 entry", stats.Leaderboard)
	}
}
