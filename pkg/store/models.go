package store

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("store: not found")

type User struct {
	ID                  int64
	Email               string
	Name                string
	ProfileSummary      string
	OnboardingCompleted bool
	CreatedAt           time.Time
}

// Conversation is one finished voice session. Summary and message
// content are stored encrypted; SentimentScore is nil until the emotion
// step has run.
type Conversation struct {
	ID              int64
	UserID          int64
	Title           string
	DurationSeconds int
	Summary         string
	SentimentScore  *float64
	Embedding       []float32
	CreatedAt       time.Time
}

type Message struct {
	ID             int64
	ConversationID int64
	Role           string
	Content        string
	Position       int
}

const (
	ActionItemStatusOpen   = "open"
	ActionItemStatusClosed = "closed"
)

type ActionItem struct {
	ID             int64
	UserID         int64
	ConversationID int64
	Title          string
	Description    string
	Status         string
	CreatedAt      time.Time
}
