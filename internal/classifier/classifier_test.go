package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/iris-network/coordinator/internal/config"
	"github.com/iris-network/coordinator/internal/shared"
)

func TestHeuristicShortYesNoIsSimple(t *testing.T) {
	got := Heuristic("Is it true that water boils at 100C?", nil)
	if got != shared.DifficultySimple {
		t.Errorf("got %s, want SIMPLE", got)
	}
}

func TestHeuristicCodeKeywordIsAdvanced(t *testing.T) {
	got := Heuristic("please implement a function that reverses a linked list", nil)
	if got != shared.DifficultyAdvanced {
		t.Errorf("got %s, want ADVANCED", got)
	}
}

func TestHeuristicAttachmentWithAnalysisIsAdvanced(t *testing.T) {
	files := []shared.AttachedFile{{Name: "report.pdf", MimeType: "application/pdf"}}
	got := Heuristic("please analyze this document and compare its claims", files)
	if got != shared.DifficultyAdvanced {
		t.Errorf("got %s, want ADVANCED", got)
	}
}

func TestHeuristicPlainAttachmentIsComplex(t *testing.T) {
	files := []shared.AttachedFile{{Name: "notes.txt", MimeType: "text/plain"}}
	got := Heuristic("what does this say", files)
	if got != shared.DifficultyComplex {
		t.Errorf("got %s, want COMPLEX", got)
	}
}

type stubExternal struct {
	difficulty shared.Difficulty
	err        error
}

func (s stubExternal) Classify(ctx context.Context, prompt string) (shared.Difficulty, error) {
	return s.difficulty, s.err
}

func TestClassifyUsesExternalWhenItSucceeds(t *testing.T) {
	c := New(config.ClassifierConfig{TimeoutSeconds: 1}, stubExternal{difficulty: shared.DifficultyAdvanced}, nil)
	got := c.Classify(context.Background(), "short prompt", nil)
	if got != shared.DifficultyAdvanced {
		t.Errorf("got %s, want ADVANCED from external classifier", got)
	}
}

func TestClassifyFallsBackOnExternalError(t *testing.T) {
	c := New(config.ClassifierConfig{TimeoutSeconds: 1}, stubExternal{err: errors.New("boom")}, nil)
	got := c.Classify(context.Background(), "is it true that the sky is blue?", nil)
	if got != shared.DifficultySimple {
		t.Errorf("got %s, want SIMPLE from heuristic fallback", got)
	}
}

func TestClassifyWithNoExternalUsesHeuristic(t *testing.T) {
	c := New(config.ClassifierConfig{}, nil, nil)
	got := c.Classify(context.Background(), "implement a sorting algorithm", nil)
	if got != shared.DifficultyAdvanced {
		t.Errorf("got %s, want ADVANCED", got)
	}
}
