// Package session implements the per-connection voice session engine:
// the state machine that authenticates a client, relays frames between
// the client and the upstream realtime provider, moderates transcript
// content in flight, and hands the accumulated conversation to the
// finalization pipeline when the relay stops.
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ponohq/pono/pkg/finalize"
	"github.com/ponohq/pono/pkg/store"
	"github.com/ponohq/pono/pkg/voice"
	"github.com/ponohq/pono/pkg/voice/moderation"
	"github.com/ponohq/pono/pkg/voice/protocol"
)

// State is the lifecycle position of one session. Transitions only move
// forward; ERROR marks the state it interrupted and always drains into
// FINALIZING then CLOSED.
type State string

const (
	StateInit               State = "init"
	StateAuthenticating     State = "authenticating"
	StateAuthenticated      State = "authenticated"
	StateUpstreamConnecting State = "upstream_connecting"
	StateRelaying           State = "relaying"
	StateFinalizing         State = "finalizing"
	StateClosed             State = "closed"
)

const (
	closeReasonInvalidToken  = "invalid token"
	closeReasonUserNotFound  = "user not found"
	closeReasonContentPolicy = "content policy violation"
	closeReasonSessionEnded  = "session ended"
)

var errModerationBlocked = errors.New("session blocked by moderation")

// ClientConn is the subset of *websocket.Conn the engine needs.
type ClientConn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// UpstreamConn is the duplex endpoint returned by the upstream dialer.
type UpstreamConn interface {
	Send(data []byte) error
	SendJSON(v any) error
	Receive() ([]byte, error)
	Close() error
}

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Verify(token string) (int64, error)
}

// UserResolver looks up the authenticated user.
type UserResolver interface {
	UserByID(ctx context.Context, id int64) (*store.User, error)
}

// InstructionSource assembles the upstream instruction text for a user.
// It must not fail: missing context degrades to the static template.
type InstructionSource interface {
	Instructions(ctx context.Context, user *store.User, onboarding bool) string
}

// Finalizer runs the post-session pipeline. It owns all of its own error
// handling; nothing it does can reach the client.
type Finalizer interface {
	Run(ctx context.Context, res finalize.Result)
}

type Config struct {
	SessionID          string
	Token              string
	Onboarding         bool
	TranscriptionModel string
	VAD                protocol.TurnDetection
	CapabilityTimeout  time.Duration
	FinalizeTimeout    time.Duration
}

type Dependencies struct {
	Client    ClientConn
	Verifier  TokenVerifier
	Users     UserResolver
	Dial      func(ctx context.Context) (UpstreamConn, error)
	Gate      *moderation.Gate
	Prompts   InstructionSource
	Finalizer Finalizer
	Logger    *slog.Logger
	Now       func() time.Time
}

// Session owns one client connection for its whole lifetime. The
// transcript aggregator and audio buffer are mutated only by the relay
// loops; the finalizer reads them only after both loops have stopped, so
// access is time-sliced by state rather than locked.
type Session struct {
	cfg  Config
	deps Dependencies

	ctx    context.Context
	cancel context.CancelFunc

	state State

	agg   voice.Aggregator
	audio []byte

	upMu sync.Mutex
	up   UpstreamConn
}

func New(cfg Config, deps Dependencies) (*Session, error) {
	if deps.Client == nil {
		return nil, fmt.Errorf("client connection is required")
	}
	if deps.Verifier == nil {
		return nil, fmt.Errorf("token verifier is required")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("user resolver is required")
	}
	if deps.Dial == nil {
		return nil, fmt.Errorf("upstream dialer is required")
	}
	if deps.Prompts == nil {
		return nil, fmt.Errorf("instruction source is required")
	}
	if deps.Finalizer == nil {
		return nil, fmt.Errorf("finalizer is required")
	}
	if deps.Gate == nil {
		deps.Gate = moderation.NewGate(nil, deps.Logger)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.CapabilityTimeout <= 0 {
		cfg.CapabilityTimeout = 20 * time.Second
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = 90 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		cfg:    cfg,
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
		state:  StateInit,
	}, nil
}

// Run drives the session from accept to CLOSED. It always reaches
// CLOSED: every early return path either skips finalization legitimately
// (auth failure, nothing accumulated) or flows through it.
func (s *Session) Run() error {
	defer s.cancel()
	defer s.setState(StateClosed)

	s.setState(StateAuthenticating)
	userID, err := s.deps.Verifier.Verify(s.cfg.Token)
	if err != nil {
		s.closeClient(closeReasonInvalidToken)
		return fmt.Errorf("authenticate: %w", err)
	}

	user, err := s.deps.Users.UserByID(s.ctx, userID)
	if err != nil || user == nil {
		s.closeClient(closeReasonUserNotFound)
		if err == nil {
			err = store.ErrNotFound
		}
		return fmt.Errorf("resolve user %d: %w", userID, err)
	}
	s.setState(StateAuthenticated)

	s.setState(StateUpstreamConnecting)
	up, err := s.deps.Dial(s.ctx)
	if err != nil {
		// No transcript yet; finalization is a guaranteed no-op but the
		// state machine still passes through it on the way down.
		s.finalize(user)
		s.closeClient(closeReasonSessionEnded)
		return fmt.Errorf("dial upstream: %w", err)
	}
	s.setUpstream(up)
	defer up.Close()

	instructions := s.deps.Prompts.Instructions(s.ctx, user, s.cfg.Onboarding)
	if err := up.SendJSON(protocol.NewSessionUpdate(instructions, s.cfg.TranscriptionModel, s.cfg.VAD)); err != nil {
		s.finalize(user)
		s.closeClient(closeReasonSessionEnded)
		return fmt.Errorf("send session configuration: %w", err)
	}

	s.setState(StateRelaying)
	relayStart := s.deps.Now()
	relayErr := s.relay(up)

	s.finalizeAt(user, relayStart)

	if relayErr != nil && !errors.Is(relayErr, errModerationBlocked) {
		return relayErr
	}
	return nil
}

// relay runs both forwarding loops and returns once both have stopped.
// Termination of either loop tears down the shared connections, which
// unblocks the other loop's pending read within one scheduling step.
func (s *Session) relay(up UpstreamConn) error {
	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		errCh <- s.relayClientToUpstream(up)
		s.cancel()
		_ = up.Close()
	}()
	go func() {
		defer wg.Done()
		err := s.relayUpstreamToClient(up)
		errCh <- err
		s.cancel()
		_ = up.Close()
		if !errors.Is(err, errModerationBlocked) {
			s.closeClient(closeReasonSessionEnded)
		}
	}()
	wg.Wait()

	close(errCh)
	for err := range errCh {
		if errors.Is(err, errModerationBlocked) {
			return err
		}
	}
	return nil
}

// relayClientToUpstream forwards client frames upstream verbatim. Frame
// parsing is observational only: malformed frames are forwarded anyway,
// and audio-append frames additionally feed the raw audio buffer used by
// the emotion step.
func (s *Session) relayClientToUpstream(up UpstreamConn) error {
	for {
		_, data, err := s.deps.Client.ReadMessage()
		if err != nil {
			// Expected path: the client hung up.
			return nil
		}

		if ev := protocol.DecodeClientEvent(data); ev.Kind == protocol.KindAudioAppend {
			if pcm, decErr := base64.StdEncoding.DecodeString(ev.AudioB64); decErr == nil {
				s.audio = append(s.audio, pcm...)
			}
		}

		if err := up.Send(data); err != nil {
			return nil
		}
	}
}

// relayUpstreamToClient forwards upstream events to the client and feeds
// the aggregator and moderation gate. A failed client send is ignored:
// the client may be gone while the upstream is still flushing.
func (s *Session) relayUpstreamToClient(up UpstreamConn) error {
	for {
		data, err := up.Receive()
		if err != nil {
			return nil
		}

		_ = s.deps.Client.WriteMessage(websocket.TextMessage, data)

		switch ev := protocol.DecodeServerEvent(data); ev.Kind {
		case protocol.KindUserTranscriptCompleted:
			s.agg.AppendUserFragment(ev.Transcript)
			if s.checkModeration() {
				s.blockForModeration(up)
				return errModerationBlocked
			}
		case protocol.KindAssistantTranscriptDone:
			s.agg.OnAssistantTurnComplete(ev.Transcript)
		}
	}
}

// checkModeration runs the gate against the pending user text so far.
// The check is per fragment, not per turn boundary, so a violation can
// suppress further relay before the assistant responds.
func (s *Session) checkModeration() bool {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.CapabilityTimeout)
	defer cancel()

	verdict := s.deps.Gate.Check(ctx, s.agg.PendingText())
	if verdict.Flagged {
		s.deps.Logger.Warn("moderation flagged user speech",
			"session_id", s.cfg.SessionID,
			"categories", flaggedCategories(verdict))
		return true
	}
	return false
}

// blockForModeration executes the block-and-terminate sequence: warning
// frame to the client, policy close, upstream close. No frame in either
// direction is forwarded after this.
func (s *Session) blockForModeration(up UpstreamConn) {
	warning := protocol.NewContentPolicyWarning()
	if data, err := json.Marshal(warning); err == nil {
		_ = s.deps.Client.WriteMessage(websocket.TextMessage, data)
	}
	s.closeClient(closeReasonContentPolicy)
	_ = up.Close()
}

func (s *Session) finalize(user *store.User) {
	s.finalizeAt(user, s.deps.Now())
}

// finalizeAt runs the post-session pipeline after both relay loops have
// fully stopped. Pipeline failures never propagate: the state machine
// reaches CLOSED regardless.
func (s *Session) finalizeAt(user *store.User, relayStart time.Time) {
	s.setState(StateFinalizing)

	// The session context is canceled by now; finalization gets its own
	// bounded lifetime.
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FinalizeTimeout)
	defer cancel()

	s.deps.Finalizer.Run(ctx, finalize.Result{
		SessionID:  s.cfg.SessionID,
		UserID:     user.ID,
		Onboarding: s.cfg.Onboarding,
		StartedAt:  relayStart,
		EndedAt:    s.deps.Now(),
		Transcript: s.agg.Transcript(),
		Audio:      s.audio,
	})
}

// Cancel aborts the session from outside (shutdown drain). Closing the
// connections unblocks both relay loops.
func (s *Session) Cancel() {
	s.cancel()
	s.upMu.Lock()
	up := s.up
	s.upMu.Unlock()
	if up != nil {
		_ = up.Close()
	}
	_ = s.deps.Client.Close()
}

func (s *Session) setUpstream(up UpstreamConn) {
	s.upMu.Lock()
	s.up = up
	s.upMu.Unlock()
}

func (s *Session) setState(to State) {
	if s.state == to {
		return
	}
	s.deps.Logger.Debug("session state",
		"session_id", s.cfg.SessionID,
		"from", string(s.state),
		"to", string(to))
	s.state = to
}

// closeClient sends a policy-class close frame then closes the socket.
// All abnormal closures share the 1008 code and differ by reason string.
func (s *Session) closeClient(reason string) {
	code := websocket.ClosePolicyViolation
	if reason == closeReasonSessionEnded {
		code = websocket.CloseNormalClosure
	}
	_ = s.deps.Client.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		s.deps.Now().Add(2*time.Second))
	_ = s.deps.Client.Close()
}

func flaggedCategories(v moderation.Verdict) []string {
	out := make([]string, 0, len(v.Categories))
	for name, flagged := range v.Categories {
		if flagged {
			out = append(out, name)
		}
	}
	return out
}
