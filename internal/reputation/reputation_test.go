package reputation

import (
	"testing"
	"time"

	"github.com/iris-network/coordinator/internal/config"
	"github.com/iris-network/coordinator/internal/shared"
	"github.com/iris-network/coordinator/internal/store"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	db, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	e, err := New(config.ReputationConfig{Floor: 10, Ceiling: 1000, WeeklyDecayFactor: 0.99, FastCompletionRatio: 0.5}, db, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func TestNewNodeStartsAtFloor(t *testing.T) {
	e := newTestEngine(t)
	if got := e.Score("fresh-node"); got != 10 {
		t.Errorf("Score() = %d, want floor 10", got)
	}
}

func TestRecordTaskCompletedAddsPoints(t *testing.T) {
	e := newTestEngine(t)
	e.Record("n1", shared.EventTaskCompleted, 10)
	if got := e.Score("n1"); got != 20 {
		t.Errorf("Score() = %d, want 20", got)
	}
}

func TestScoreNeverGoesBelowFloor(t *testing.T) {
	e := newTestEngine(t)
	for i := 0; i < 10; i++ {
		e.Record("n1", shared.EventInvalidResponse, -50)
	}
	if got := e.Score("n1"); got < 10 {
		t.Errorf("Score() = %d, should never drop below floor 10", got)
	}
}

func TestScoreNeverExceedsCeiling(t *testing.T) {
	e := newTestEngine(t)
	for i := 0; i < 1000; i++ {
		e.Record("n1", shared.EventUptimeHour, 1)
	}
	if got := e.Score("n1"); got > 1000 {
		t.Errorf("Score() = %d, should never exceed ceiling 1000", got)
	}
}

func TestRecordTaskCompletedGrantsFastCompletionBonus(t *testing.T) {
	e := newTestEngine(t)
	e.RecordTaskCompleted("n1", 10*time.Second, 100*time.Second)
	// 10 (TASK_COMPLETED) + 5 (FAST_COMPLETION, since 10s < 50s half-timeout)
	if got := e.Score("n1"); got != 25 {
		t.Errorf("Score() = %d, want 25 (10 floor + 10 + 5)", got)
	}
}

func TestRecordTaskCompletedNoBonusWhenSlow(t *testing.T) {
	e := newTestEngine(t)
	e.RecordTaskCompleted("n1", 90*time.Second, 100*time.Second)
	if got := e.Score("n1"); got != 20 {
		t.Errorf("Score() = %d, want 20 (10 floor + 10, no fast-completion bonus)", got)
	}
}

func TestDecayAppliesWeeklyFactorOnlyAfterAWeek(t *testing.T) {
	e := newTestEngine(t)
	e.Record("n1", shared.EventUptimeHour, 90) // score -> 100

	now := time.Now()
	e.Decay(now) // not due yet, last decay timestamp was just set
	if got := e.Score("n1"); got != 100 {
		t.Errorf("Score() = %d, decay should not apply before a week elapses", got)
	}

	e.Decay(now.Add(8 * 24 * time.Hour))
	if got := e.Score("n1"); got != 99 {
		t.Errorf("Score() = %d, want 99 after one weekly decay of 0.99", got)
	}
}

func TestScoresReturnsSnapshotOfAllNodes(t *testing.T) {
	e := newTestEngine(t)
	e.Record("n1", shared.EventTaskCompleted, 10)
	e.Record("n2", shared.EventTaskCompleted, 10)

	all := e.Scores()
	if len(all) != 2 {
		t.Fatalf("expected 2 tracked nodes, got %d", len(all))
	}
	if all["n1"] != 20 || all["n2"] != 20 {
		t.Errorf("unexpected scores: %+v", all)
	}
}

func TestLeaderboardOrdersByScoreDescendingWithNodeIDTieBreak(t *testing.T) {
	e := newTestEngine(t)
	e.Record("b", shared.EventTaskCompleted, 10) // 20
	e.Record("a", shared.EventTaskCompleted, 10) // 20, ties with b
	e.Record("c", shared.EventTaskCompleted, 90) // 100

	board := e.Leaderboard(0)
	if len(board) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(board))
	}
	want := []string{"c", "a", "b"}
	for i, id := range want {
		if board[i].NodeID != id {
			t.Errorf("board[%d].NodeID = %s, want %s", i, board[i].NodeID, id)
		}
	}
}

func TestLeaderboardTruncatesToN(t *testing.T) {
	e := newTestEngine(t)
	e.Record("a", shared.EventTaskCompleted, 10)
	e.Record("b", shared.EventTaskCompleted, 10)
	e.Record("c", shared.EventTaskCompleted, 10)

	if got := e.Leaderboard(2); len(got) != 2 {
		t.Errorf("Leaderboard(2) returned %d entries, want 2", len(got))
	}
}
