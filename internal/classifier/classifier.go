// Package classifier implements the Difficulty Classifier: an
// external-LLM call with a bounded deadline, falling back to a local
// heuristic on timeout or error.
package classifier

import (
	"context"
	"log"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/iris-network/coordinator/internal/config"
	"github.com/iris-network/coordinator/internal/shared"
)

// External is the pluggable text-classification service contract.
// Callers inject a real client; tests inject a stub.
type External interface {
	Classify(ctx context.Context, prompt string) (shared.Difficulty, error)
}

// Classifier classifies a prompt's difficulty.
type Classifier struct {
	cfg      config.ClassifierConfig
	external External
	log      *log.Logger
}

// New creates a Classifier. external may be nil, in which case every
// call falls straight to the local heuristic.
func New(cfg config.ClassifierConfig, external External, logger *log.Logger) *Classifier {
	if logger == nil {
		logger = log.New(os.Stdout, "[Classifier] ", log.LstdFlags)
	}
	return &Classifier{cfg: cfg, external: external, log: logger}
}

// Classify returns the prompt's difficulty within the configured
// deadline. If attachments require the direct-process bypass, the
// caller should skip Classify entirely.
func (c *Classifier) Classify(ctx context.Context, prompt string, files []shared.AttachedFile) shared.Difficulty {
	if c.external != nil {
		timeout := c.cfg.Timeout()
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		d, err := c.external.Classify(cctx, prompt)
		if err == nil {
			return d
		}
		c.log.Printf("external classifier failed (%v) — falling back to heuristic", err)
	}
	return Heuristic(prompt, files)
}

var (
	codeWords     = regexp.MustCompile(`(?i)\b(code|function|bug|compile|implement|refactor|algorithm)\b`)
	analysisWords = regexp.MustCompile(`(?i)\b(prove|proof|analyse|analyze|compare|summarise|summarize|translate|define)\b`)
	yesNoWords    = regexp.MustCompile(`(?i)\b(yes or no|true or false|is it true)\b`)
)

// Heuristic is the local fallback classifier: word count, keyword
// presence, and attachment presence.
func Heuristic(prompt string, files []shared.AttachedFile) shared.Difficulty {
	words := len(strings.Fields(prompt))
	hasAttachment := len(files) > 0
	hasCode := codeWords.MatchString(prompt)
	hasAnalysis := analysisWords.MatchString(prompt)
	hasYesNo := yesNoWords.MatchString(prompt)

	switch {
	case hasYesNo && words < 20 && !hasAttachment:
		return shared.DifficultySimple
	case hasCode || (hasAnalysis && hasAttachment) || words > 400:
		return shared.DifficultyAdvanced
	case hasAnalysis || hasAttachment || words > 80:
		return shared.DifficultyComplex
	default:
		return shared.DifficultySimple
	}
}
