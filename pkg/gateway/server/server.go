// Package server wires the voice gateway together: storage, capability
// clients, the session tracker, routes, and the middleware chain.
package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ponohq/pono/pkg/ai/hume"
	"github.com/ponohq/pono/pkg/ai/openai"
	"github.com/ponohq/pono/pkg/cipher"
	"github.com/ponohq/pono/pkg/coach"
	"github.com/ponohq/pono/pkg/finalize"
	"github.com/ponohq/pono/pkg/gateway/auth"
	"github.com/ponohq/pono/pkg/gateway/config"
	"github.com/ponohq/pono/pkg/gateway/handlers"
	"github.com/ponohq/pono/pkg/gateway/mw"
	"github.com/ponohq/pono/pkg/store"
	"github.com/ponohq/pono/pkg/voice/moderation"
	"github.com/ponohq/pono/pkg/voice/sessions"
	"github.com/ponohq/pono/pkg/voice/upstream"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux
	db     *pgxpool.Pool

	tracker *sessions.Tracker
}

func New(cfg config.Config, db *pgxpool.Pool, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	verifier, err := auth.NewVerifier(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("build token verifier: %w", err)
	}
	box, err := cipher.New(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("build cipher: %w", err)
	}

	st := store.New(db)
	aiClient := openai.New(cfg.OpenAIAPIKey)

	var emotions finalize.EmotionAnalyzer
	if cfg.HumeAPIKey != "" {
		emotions = hume.New(cfg.HumeAPIKey)
	} else {
		logger.Warn("emotion analysis disabled, no api key configured")
	}

	var moderator moderation.Checker = aiClient

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		mux:     http.NewServeMux(),
		db:      db,
		tracker: sessions.NewTracker(),
	}

	s.routes(handlers.VoiceHandler{
		Config:    cfg,
		Verifier:  verifier,
		Store:     st,
		Prompts:   coach.NewBuilder(st, box, logger),
		Moderator: moderator,
		Dialer:    &upstream.Dialer{},
		Finalizer: finalize.NewPipeline(st, aiClient, emotions, box, logger),
		Sessions:  s.tracker,
		Logger:    logger,
	})
	return s, nil
}

func (s *Server) routes(voice handlers.VoiceHandler) {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{DB: s.db, Sessions: s.tracker})
	s.mux.Handle("/ws/voice", voice)
	s.mux.Handle("/", handlers.NotFoundHandler{})
}

// Sessions exposes the live session tracker for shutdown draining.
func (s *Server) Sessions() *sessions.Tracker {
	return s.tracker
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}
