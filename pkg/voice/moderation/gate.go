package moderation

import (
	"context"
	"log/slog"
	"strings"
)

// Verdict is the outcome of one moderation check.
type Verdict struct {
	Flagged    bool
	Categories map[string]bool
	Scores     map[string]float64
}

// Checker is the moderation capability. Implementations may fail; the
// Gate absorbs that.
type Checker interface {
	Moderate(ctx context.Context, text string) (Verdict, error)
}

// Gate wraps a Checker with the fail-open policy: a checker error is
// logged and treated as "not flagged" so a degraded moderation backend
// never stalls a healthy conversation.
type Gate struct {
	checker Checker
	logger  *slog.Logger
}

func NewGate(checker Checker, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{checker: checker, logger: logger}
}

// Check never returns an error. An unset checker or empty text passes.
func (g *Gate) Check(ctx context.Context, text string) Verdict {
	if g == nil || g.checker == nil || strings.TrimSpace(text) == "" {
		return Verdict{}
	}
	verdict, err := g.checker.Moderate(ctx, text)
	if err != nil {
		g.logger.Warn("moderation check failed, continuing open", "error", err)
		return Verdict{}
	}
	return verdict
}
