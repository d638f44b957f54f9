// Package store is the postgres persistence layer: users, finished
// conversations with their encrypted messages, and action items.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	config.MaxConns = 20
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// RunMigrations applies the embedded schema migrations. It opens its own
// database/sql connection because goose does not drive pgx natively.
func RunMigrations(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	version, err := goose.GetDBVersion(db)
	if err == nil {
		slog.Info("migrations applied", "version", version)
	}
	return nil
}

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) UserByID(ctx context.Context, id int64) (*User, error) {
	var u User
	err := s.db.QueryRow(ctx, `
		SELECT id, email, name, COALESCE(profile_summary, ''), onboarding_completed, created_at
		FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.Name, &u.ProfileSummary, &u.OnboardingCompleted, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// CreateConversation inserts the conversation row and its messages in
// one transaction and returns the new conversation id. Message positions
// follow slice order.
func (s *Store) CreateConversation(ctx context.Context, conv *Conversation, messages []Message) (int64, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO conversations (user_id, title, duration_seconds)
		VALUES ($1, $2, $3)
		RETURNING id`,
		conv.UserID, conv.Title, conv.DurationSeconds).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert conversation: %w", err)
	}

	for i, m := range messages {
		_, err := tx.Exec(ctx, `
			INSERT INTO messages (conversation_id, role, content, position)
			VALUES ($1, $2, $3, $4)`,
			id, m.Role, m.Content, i)
		if err != nil {
			return 0, fmt.Errorf("insert message %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

func (s *Store) UpdateConversationSummary(ctx context.Context, id int64, encryptedSummary string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE conversations SET summary = $2 WHERE id = $1`, id, encryptedSummary)
	if err != nil {
		return fmt.Errorf("update summary: %w", err)
	}
	return nil
}

func (s *Store) UpdateConversationEmbedding(ctx context.Context, id int64, embedding []float32) error {
	_, err := s.db.Exec(ctx,
		`UPDATE conversations SET embedding = $2 WHERE id = $1`, id, embedding)
	if err != nil {
		return fmt.Errorf("update embedding: %w", err)
	}
	return nil
}

func (s *Store) UpdateConversationSentiment(ctx context.Context, id int64, score float64) error {
	_, err := s.db.Exec(ctx,
		`UPDATE conversations SET sentiment_score = $2 WHERE id = $1`, id, score)
	if err != nil {
		return fmt.Errorf("update sentiment: %w", err)
	}
	return nil
}

func (s *Store) InsertActionItems(ctx context.Context, items []ActionItem) error {
	for _, item := range items {
		status := item.Status
		if status == "" {
			status = ActionItemStatusOpen
		}
		_, err := s.db.Exec(ctx, `
			INSERT INTO action_items (user_id, conversation_id, title, description, status)
			VALUES ($1, $2, $3, $4, $5)`,
			item.UserID, item.ConversationID, item.Title, item.Description, status)
		if err != nil {
			return fmt.Errorf("insert action item %q: %w", item.Title, err)
		}
	}
	return nil
}

// RecentSummaries returns the encrypted summaries of the user's
// conversations from the last 90 days, newest first.
func (s *Store) RecentSummaries(ctx context.Context, userID int64, limit int) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT summary FROM conversations
		WHERE user_id = $1
		  AND summary IS NOT NULL AND summary <> ''
		  AND created_at > $2
		ORDER BY created_at DESC
		LIMIT $3`,
		userID, time.Now().AddDate(0, 0, -90), limit)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var summary string
		if err := rows.Scan(&summary); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

func (s *Store) OpenActionItems(ctx context.Context, userID int64) ([]ActionItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, conversation_id, title, COALESCE(description, ''), status, created_at
		FROM action_items
		WHERE user_id = $1 AND status = $2
		ORDER BY created_at DESC`,
		userID, ActionItemStatusOpen)
	if err != nil {
		return nil, fmt.Errorf("list action items: %w", err)
	}
	defer rows.Close()

	var out []ActionItem
	for rows.Next() {
		var item ActionItem
		if err := rows.Scan(&item.ID, &item.UserID, &item.ConversationID,
			&item.Title, &item.Description, &item.Status, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan action item: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// CompleteOnboarding records the generated profile summary and marks the
// user as onboarded.
func (s *Store) CompleteOnboarding(ctx context.Context, userID int64, profileSummary string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE users SET profile_summary = $2, onboarding_completed = TRUE
		WHERE id = $1`, userID, profileSummary)
	if err != nil {
		return fmt.Errorf("complete onboarding: %w", err)
	}
	return nil
}
