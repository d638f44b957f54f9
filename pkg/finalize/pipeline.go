// Package finalize turns a finished voice session into durable records:
// the conversation and its messages, a summary with extracted action
// items, an embedding, a vocal sentiment score, and, for onboarding
// sessions, the user's coaching profile. Every step is best effort and
// independent; one failure never aborts the others, and nothing here can
// reach the client.
package finalize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ponohq/pono/pkg/ai/hume"
	"github.com/ponohq/pono/pkg/audio"
	"github.com/ponohq/pono/pkg/store"
	"github.com/ponohq/pono/pkg/voice"
)

const (
	untitledConversation = "Untitled conversation"
	titleMaxRunes        = 50

	// Emotion analysis uses only the opening seconds of the session.
	emotionPrefixSeconds = 5
)

// Result is everything the relay accumulated for one session.
type Result struct {
	SessionID  string
	UserID     int64
	Onboarding bool
	StartedAt  time.Time
	EndedAt    time.Time
	Transcript []voice.Turn
	Audio      []byte
}

// Intelligence covers the text capabilities of the pipeline.
type Intelligence interface {
	Summarize(ctx context.Context, transcriptText string) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
	ProfileSummary(ctx context.Context, transcriptText string) (string, error)
}

// EmotionAnalyzer scores vocal emotion from a WAV payload.
type EmotionAnalyzer interface {
	AnalyzeAudio(ctx context.Context, wav []byte) (map[string]float64, error)
}

type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

// Storage is the subset of the store the pipeline writes through.
type Storage interface {
	CreateConversation(ctx context.Context, conv *store.Conversation, messages []store.Message) (int64, error)
	UpdateConversationSummary(ctx context.Context, id int64, encryptedSummary string) error
	UpdateConversationEmbedding(ctx context.Context, id int64, embedding []float32) error
	UpdateConversationSentiment(ctx context.Context, id int64, score float64) error
	InsertActionItems(ctx context.Context, items []store.ActionItem) error
	CompleteOnboarding(ctx context.Context, userID int64, profileSummary string) error
}

type Pipeline struct {
	store   Storage
	ai      Intelligence
	emotion EmotionAnalyzer
	crypt   Encrypter
	logger  *slog.Logger
}

func NewPipeline(st Storage, ai Intelligence, emotion EmotionAnalyzer, crypt Encrypter, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{store: st, ai: ai, emotion: emotion, crypt: crypt, logger: logger}
}

// Run executes the pipeline. A session with an empty transcript leaves
// no trace: no rows, no capability calls. Persistence failure of the
// conversation itself skips the conversation-scoped writes but the
// onboarding profile update still runs.
func (p *Pipeline) Run(ctx context.Context, res Result) {
	if len(res.Transcript) == 0 {
		p.logger.Info("session ended with empty transcript, skipping finalization",
			"session_id", res.SessionID)
		return
	}

	logger := p.logger.With("session_id", res.SessionID, "user_id", res.UserID)
	transcriptText := joinTranscript(res.Transcript)

	convID, err := p.persistConversation(ctx, res)
	if err != nil {
		logger.Error("persist conversation", "error", err)
		convID = 0
	} else {
		logger.Info("conversation persisted", "conversation_id", convID)
	}

	p.embed(ctx, logger, convID, transcriptText)
	p.summarize(ctx, logger, convID, res.UserID, transcriptText)
	p.analyzeEmotion(ctx, logger, convID, res.Audio)

	if res.Onboarding {
		p.completeOnboarding(ctx, logger, res.UserID, transcriptText)
	}
}

func (p *Pipeline) persistConversation(ctx context.Context, res Result) (int64, error) {
	conv := &store.Conversation{
		UserID:          res.UserID,
		Title:           conversationTitle(res.Transcript),
		DurationSeconds: int(res.EndedAt.Sub(res.StartedAt).Seconds()),
	}

	messages := make([]store.Message, 0, len(res.Transcript))
	for _, turn := range res.Transcript {
		content, err := p.crypt.Encrypt(turn.Text)
		if err != nil {
			return 0, fmt.Errorf("encrypt message: %w", err)
		}
		messages = append(messages, store.Message{Role: turn.Role, Content: content})
	}

	return p.store.CreateConversation(ctx, conv, messages)
}

func (p *Pipeline) embed(ctx context.Context, logger *slog.Logger, convID int64, transcriptText string) {
	embedding, err := p.ai.Embed(ctx, transcriptText)
	if err != nil {
		logger.Warn("generate embedding", "error", err)
		return
	}
	if convID == 0 {
		return
	}
	if err := p.store.UpdateConversationEmbedding(ctx, convID, embedding); err != nil {
		logger.Warn("store embedding", "error", err)
	}
}

// summarize generates the summary and, only when that succeeds, extracts
// and stores the action items it carries.
func (p *Pipeline) summarize(ctx context.Context, logger *slog.Logger, convID, userID int64, transcriptText string) {
	summary, err := p.ai.Summarize(ctx, transcriptText)
	if err != nil {
		logger.Warn("generate summary", "error", err)
		return
	}

	if convID != 0 {
		encrypted, err := p.crypt.Encrypt(summary)
		if err != nil {
			logger.Warn("encrypt summary", "error", err)
		} else if err := p.store.UpdateConversationSummary(ctx, convID, encrypted); err != nil {
			logger.Warn("store summary", "error", err)
		}
	}

	parsed := ParseActionItems(summary)
	if len(parsed) == 0 || convID == 0 {
		return
	}
	items := make([]store.ActionItem, 0, len(parsed))
	for _, it := range parsed {
		items = append(items, store.ActionItem{
			UserID:         userID,
			ConversationID: convID,
			Title:          it.Title,
			Status:         it.Status,
			Description:    it.Description,
		})
	}
	if err := p.store.InsertActionItems(ctx, items); err != nil {
		logger.Warn("store action items", "error", err)
	} else {
		logger.Info("action items stored", "count", len(items))
	}
}

func (p *Pipeline) analyzeEmotion(ctx context.Context, logger *slog.Logger, convID int64, pcm []byte) {
	if len(pcm) == 0 || p.emotion == nil {
		return
	}

	wav := audio.WrapPCM16(audio.Prefix(pcm, emotionPrefixSeconds))
	emotions, err := p.emotion.AnalyzeAudio(ctx, wav)
	if err != nil {
		logger.Warn("analyze emotion", "error", err)
		return
	}

	score := hume.SentimentScore(emotions)
	if convID == 0 {
		return
	}
	if err := p.store.UpdateConversationSentiment(ctx, convID, score); err != nil {
		logger.Warn("store sentiment", "error", err)
	} else {
		logger.Info("sentiment stored", "score", score)
	}
}

func (p *Pipeline) completeOnboarding(ctx context.Context, logger *slog.Logger, userID int64, transcriptText string) {
	profile, err := p.ai.ProfileSummary(ctx, transcriptText)
	if err != nil {
		logger.Warn("generate profile summary", "error", err)
		return
	}
	if err := p.store.CompleteOnboarding(ctx, userID, profile); err != nil {
		logger.Warn("complete onboarding", "error", err)
	} else {
		logger.Info("onboarding completed")
	}
}

// conversationTitle is the first user turn truncated to a display
// length, or a fixed fallback when the user never spoke.
func conversationTitle(transcript []voice.Turn) string {
	for _, turn := range transcript {
		if turn.Role != voice.RoleUser {
			continue
		}
		runes := []rune(turn.Text)
		if len(runes) > titleMaxRunes {
			return string(runes[:titleMaxRunes])
		}
		return turn.Text
	}
	return untitledConversation
}

func joinTranscript(transcript []voice.Turn) string {
	parts := make([]string, 0, len(transcript))
	for _, turn := range transcript {
		parts = append(parts, turn.Role+": "+turn.Text)
	}
	return strings.Join(parts, "\n")
}
