// Package coach assembles the instruction text sent to the realtime
// provider at session start: a static coaching script plus whatever
// per-user context is available. Context assembly is best effort; a
// session never fails because history could not be loaded.
package coach

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ponohq/pono/pkg/store"
)

// History provides the per-user context woven into the coaching prompt.
type History interface {
	RecentSummaries(ctx context.Context, userID int64, limit int) ([]string, error)
	OpenActionItems(ctx context.Context, userID int64) ([]store.ActionItem, error)
}

// Decrypter reverses at-rest encryption of stored summaries.
type Decrypter interface {
	Decrypt(encoded string) (string, error)
}

type Builder struct {
	history History
	crypt   Decrypter
	logger  *slog.Logger
}

func NewBuilder(history History, crypt Decrypter, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{history: history, crypt: crypt, logger: logger}
}

const recentSummaryLimit = 5

// Instructions returns the session instruction text. Onboarding sessions
// get the consultation script with no user context. Regular sessions get
// the coaching script plus profile, recent conversation summaries, and
// open action items where available.
func (b *Builder) Instructions(ctx context.Context, user *store.User, onboarding bool) string {
	if onboarding {
		return onboardingPrompt
	}

	var sb strings.Builder
	sb.WriteString(coachPrompt)

	if user.ProfileSummary != "" {
		fmt.Fprintf(&sb, "\n\nUSER PROFILE:\n%s\n\nUse this context naturally in your coaching.", user.ProfileSummary)
	}

	if summaries := b.recentSummaries(ctx, user.ID); len(summaries) > 0 {
		sb.WriteString("\n\nRECENT SESSIONS (newest first):\n")
		for _, s := range summaries {
			fmt.Fprintf(&sb, "- %s\n", s)
		}
	}

	if items := b.openActionItems(ctx, user.ID); len(items) > 0 {
		sb.WriteString("\nOPEN ACTION PLANS:\n")
		for _, item := range items {
			if item.Description != "" {
				fmt.Fprintf(&sb, "- %s: %s\n", item.Title, item.Description)
			} else {
				fmt.Fprintf(&sb, "- %s\n", item.Title)
			}
		}
		sb.WriteString("\nAsk about progress on these plans during the session.")
	}

	return sb.String()
}

func (b *Builder) recentSummaries(ctx context.Context, userID int64) []string {
	if b.history == nil {
		return nil
	}
	encrypted, err := b.history.RecentSummaries(ctx, userID, recentSummaryLimit)
	if err != nil {
		b.logger.Warn("load recent summaries", "user_id", userID, "error", err)
		return nil
	}

	out := make([]string, 0, len(encrypted))
	for _, enc := range encrypted {
		if b.crypt == nil {
			continue
		}
		plain, err := b.crypt.Decrypt(enc)
		if err != nil {
			// Undecryptable rows are skipped, not fatal.
			continue
		}
		out = append(out, plain)
	}
	return out
}

func (b *Builder) openActionItems(ctx context.Context, userID int64) []store.ActionItem {
	if b.history == nil {
		return nil
	}
	items, err := b.history.OpenActionItems(ctx, userID)
	if err != nil {
		b.logger.Warn("load open action items", "user_id", userID, "error", err)
		return nil
	}
	return items
}
