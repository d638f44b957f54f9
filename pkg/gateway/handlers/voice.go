package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ponohq/pono/pkg/coach"
	"github.com/ponohq/pono/pkg/gateway/auth"
	"github.com/ponohq/pono/pkg/gateway/config"
	"github.com/ponohq/pono/pkg/gateway/mw"
	"github.com/ponohq/pono/pkg/store"
	"github.com/ponohq/pono/pkg/voice/moderation"
	"github.com/ponohq/pono/pkg/voice/protocol"
	"github.com/ponohq/pono/pkg/voice/session"
	"github.com/ponohq/pono/pkg/voice/sessions"
	"github.com/ponohq/pono/pkg/voice/upstream"
)

// VoiceHandler owns /ws/voice. The websocket is always accepted first;
// authentication and every later failure are reported through close
// frames on the socket, never as HTTP statuses.
type VoiceHandler struct {
	Config    config.Config
	Verifier  *auth.Verifier
	Store     *store.Store
	Prompts   *coach.Builder
	Moderator moderation.Checker
	Dialer    *upstream.Dialer
	Finalizer session.Finalizer
	Sessions  *sessions.Tracker
	Logger    *slog.Logger
}

func (h VoiceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reqID, _ := mw.RequestIDFrom(r.Context())

	token := r.URL.Query().Get("token")
	onboarding, _ := strconv.ParseBool(r.URL.Query().Get("onboarding"))

	upgrader := websocket.Upgrader{
		CheckOrigin: func(req *http.Request) bool {
			return h.Config.AllowedOrigin(req.Header.Get("Origin"))
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	sessionID := "sess_" + uuid.NewString()
	logger = logger.With("session_id", sessionID, "request_id", reqID)

	s, err := session.New(session.Config{
		SessionID:          sessionID,
		Token:              token,
		Onboarding:         onboarding,
		TranscriptionModel: h.Config.TranscriptionModel,
		VAD: protocol.TurnDetection{
			Threshold:         h.Config.VADThreshold,
			PrefixPaddingMS:   h.Config.VADPrefixPadding,
			SilenceDurationMS: h.Config.VADSilenceDuration,
		},
		CapabilityTimeout: h.Config.CapabilityTimeout,
		FinalizeTimeout:   h.Config.FinalizeTimeout,
	}, session.Dependencies{
		Client:    conn,
		Verifier:  h.Verifier,
		Users:     h.Store,
		Dial:      h.dialUpstream,
		Gate:      moderation.NewGate(h.Moderator, logger),
		Prompts:   h.Prompts,
		Finalizer: h.Finalizer,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("build session", "error", err)
		return
	}

	unregister := h.Sessions.Register(sessionID, s.Cancel)
	defer unregister()

	logger.Info("voice session started", "onboarding", onboarding)
	if err := s.Run(); err != nil {
		logger.Warn("voice session ended", "error", err)
		return
	}
	logger.Info("voice session ended")
}

func (h VoiceHandler) dialUpstream(ctx context.Context) (session.UpstreamConn, error) {
	conn, err := h.Dialer.Dial(ctx, upstream.Config{
		URL:            h.Config.RealtimeURL,
		Model:          h.Config.RealtimeModel,
		APIKey:         h.Config.OpenAIAPIKey,
		ConnectTimeout: h.Config.UpstreamConnectTimeout,
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}
