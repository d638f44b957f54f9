package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ponohq/pono/pkg/finalize"
	"github.com/ponohq/pono/pkg/gateway/auth"
	"github.com/ponohq/pono/pkg/gateway/config"
	"github.com/ponohq/pono/pkg/voice/sessions"
	"github.com/ponohq/pono/pkg/voice/upstream"
)

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthHandler{}.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Body.String(); got != "ok\n" {
		t.Fatalf("body = %q", got)
	}
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestReady(t *testing.T) {
	tracker := sessions.NewTracker()
	tracker.Register("s1", nil)

	rec := httptest.NewRecorder()
	ReadyHandler{DB: fakePinger{}, Sessions: tracker}.ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		OK           bool `json:"ok"`
		LiveSessions int  `json:"live_sessions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.OK || resp.LiveSessions != 1 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestReadyDatabaseDown(t *testing.T) {
	rec := httptest.NewRecorder()
	ReadyHandler{DB: fakePinger{err: errors.New("refused")}}.ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestNotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	NotFoundHandler{}.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "not_found") {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

type noopFinalizer struct{}

func (noopFinalizer) Run(context.Context, finalize.Result) {}

func testVoiceHandler(t *testing.T) VoiceHandler {
	t.Helper()
	verifier, err := auth.NewVerifier("test-secret")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return VoiceHandler{
		Config:    config.Config{},
		Verifier:  verifier,
		Dialer:    &upstream.Dialer{},
		Finalizer: noopFinalizer{},
		Sessions:  sessions.NewTracker(),
	}
}

func TestVoiceRejectsNonGet(t *testing.T) {
	rec := httptest.NewRecorder()
	testVoiceHandler(t).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ws/voice", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestVoiceAcceptsThenClosesOnBadToken(t *testing.T) {
	h := testVoiceHandler(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/voice?token=garbage"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v (resp=%v)", err, resp)
	}
	defer conn.Close()

	// The handshake succeeded; the rejection arrives as a close frame.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("read error = %v, want close error", err)
	}
	if closeErr.Code != websocket.ClosePolicyViolation {
		t.Fatalf("close code = %d, want %d", closeErr.Code, websocket.ClosePolicyViolation)
	}
	if closeErr.Text != "invalid token" {
		t.Fatalf("close reason = %q", closeErr.Text)
	}
}
