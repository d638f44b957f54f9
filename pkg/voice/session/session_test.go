package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ponohq/pono/pkg/finalize"
	"github.com/ponohq/pono/pkg/store"
	"github.com/ponohq/pono/pkg/voice"
	"github.com/ponohq/pono/pkg/voice/moderation"
	"github.com/ponohq/pono/pkg/voice/protocol"
)

type fakeClient struct {
	in chan []byte

	mu       sync.Mutex
	writes   [][]byte
	controls [][]byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		in:     make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeClient) ReadMessage() (int, []byte, error) {
	// Drain queued frames before honoring close so delivery order is
	// deterministic in tests.
	select {
	case data := <-f.in:
		return 1, data, nil
	default:
	}
	select {
	case data := <-f.in:
		return 1, data, nil
	case <-f.closed:
		return 0, nil, errors.New("client connection closed")
	}
}

func (f *fakeClient) WriteMessage(_ int, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("client connection closed")
	default:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, append([]byte(nil), data...))
	return nil
}

func (f *fakeClient) WriteControl(_ int, data []byte, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, append([]byte(nil), data...))
	return nil
}

func (f *fakeClient) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeClient) controlText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sb strings.Builder
	for _, c := range f.controls {
		sb.Write(c)
	}
	return sb.String()
}

func (f *fakeClient) writtenText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sb strings.Builder
	for _, w := range f.writes {
		sb.Write(w)
		sb.WriteByte('\n')
	}
	return sb.String()
}

type fakeUpstream struct {
	events chan []byte

	// hangAfterDrain keeps Receive blocking once the scripted events are
	// exhausted instead of simulating an upstream disconnect.
	hangAfterDrain bool

	mu       sync.Mutex
	sent     [][]byte
	sentJSON []any

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeUpstream(events ...[]byte) *fakeUpstream {
	f := &fakeUpstream{
		events: make(chan []byte, len(events)+1),
		closed: make(chan struct{}),
	}
	for _, ev := range events {
		f.events <- ev
	}
	return f
}

func (f *fakeUpstream) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

func (f *fakeUpstream) SendJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentJSON = append(f.sentJSON, v)
	return nil
}

func (f *fakeUpstream) Receive() ([]byte, error) {
	select {
	case ev := <-f.events:
		return ev, nil
	default:
	}
	if !f.hangAfterDrain {
		return nil, errors.New("upstream connection closed")
	}
	select {
	case ev := <-f.events:
		return ev, nil
	case <-f.closed:
		return nil, errors.New("upstream connection closed")
	}
}

func (f *fakeUpstream) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

type staticVerifier struct {
	userID int64
	err    error
}

func (s staticVerifier) Verify(string) (int64, error) { return s.userID, s.err }

type staticUsers struct {
	user *store.User
	err  error
}

func (s staticUsers) UserByID(context.Context, int64) (*store.User, error) { return s.user, s.err }

type staticPrompts struct{ text string }

func (s staticPrompts) Instructions(context.Context, *store.User, bool) string { return s.text }

type recordingFinalizer struct {
	mu  sync.Mutex
	res *finalize.Result
}

func (r *recordingFinalizer) Run(_ context.Context, res finalize.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.res = &res
}

func (r *recordingFinalizer) result() *finalize.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.res
}

type flagChecker struct{ flag bool }

func (f flagChecker) Moderate(_ context.Context, _ string) (moderation.Verdict, error) {
	return moderation.Verdict{Flagged: f.flag, Categories: map[string]bool{"violence": f.flag}}, nil
}

func serverEvent(eventType, transcript string) []byte {
	data, _ := json.Marshal(map[string]string{"type": eventType, "transcript": transcript})
	return data
}

func audioAppendFrame(pcm []byte) []byte {
	data, _ := json.Marshal(map[string]string{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(pcm),
	})
	return data
}

func newTestSession(t *testing.T, deps Dependencies) *Session {
	t.Helper()
	if deps.Verifier == nil {
		deps.Verifier = staticVerifier{userID: 7}
	}
	if deps.Users == nil {
		deps.Users = staticUsers{user: &store.User{ID: 7}}
	}
	if deps.Prompts == nil {
		deps.Prompts = staticPrompts{text: "be helpful"}
	}
	if deps.Finalizer == nil {
		deps.Finalizer = &recordingFinalizer{}
	}
	if deps.Dial == nil {
		deps.Dial = func(context.Context) (UpstreamConn, error) {
			return nil, fmt.Errorf("no dialer configured")
		}
	}
	s, err := New(Config{SessionID: "sess_test", Token: "tok"}, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestRunRejectsInvalidToken(t *testing.T) {
	client := newFakeClient()
	fin := &recordingFinalizer{}
	s := newTestSession(t, Dependencies{
		Client:    client,
		Verifier:  staticVerifier{err: errors.New("bad signature")},
		Finalizer: fin,
	})

	if err := s.Run(); err == nil {
		t.Fatal("Run should fail on invalid token")
	}
	if got := client.controlText(); !strings.Contains(got, "invalid token") {
		t.Fatalf("close frame = %q, want invalid token reason", got)
	}
	if fin.result() != nil {
		t.Fatal("finalizer must not run for unauthenticated sessions")
	}
}

func TestRunRejectsUnknownUser(t *testing.T) {
	client := newFakeClient()
	s := newTestSession(t, Dependencies{
		Client: client,
		Users:  staticUsers{err: store.ErrNotFound},
	})

	if err := s.Run(); err == nil {
		t.Fatal("Run should fail on unknown user")
	}
	if got := client.controlText(); !strings.Contains(got, "user not found") {
		t.Fatalf("close frame = %q, want user not found reason", got)
	}
}

func TestRunRelaysAndFinalizes(t *testing.T) {
	pcm := []byte{10, 20, 30, 40}
	up := newFakeUpstream(
		serverEvent("conversation.item.input_audio_transcription.completed", "I feel stuck lately."),
		serverEvent("response.audio_transcript.done", "Tell me more about that."),
	)

	client := newFakeClient()
	client.in <- audioAppendFrame(pcm)

	fin := &recordingFinalizer{}
	s := newTestSession(t, Dependencies{
		Client:    client,
		Dial:      func(context.Context) (UpstreamConn, error) { return up, nil },
		Finalizer: fin,
		Prompts:   staticPrompts{text: "be helpful"},
	})

	if err := s.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	up.mu.Lock()
	if len(up.sentJSON) != 1 {
		t.Fatalf("configuration frames sent = %d, want 1", len(up.sentJSON))
	}
	update, ok := up.sentJSON[0].(protocol.SessionUpdate)
	if !ok {
		t.Fatalf("configuration frame type = %T", up.sentJSON[0])
	}
	if update.Session.Instructions != "be helpful" {
		t.Fatalf("instructions = %q", update.Session.Instructions)
	}
	if len(up.sent) != 1 {
		t.Fatalf("client frames forwarded upstream = %d, want 1", len(up.sent))
	}
	up.mu.Unlock()

	if got := client.writtenText(); !strings.Contains(got, "I feel stuck lately.") ||
		!strings.Contains(got, "Tell me more about that.") {
		t.Fatalf("upstream events not forwarded to client: %q", got)
	}

	res := fin.result()
	if res == nil {
		t.Fatal("finalizer did not run")
	}
	want := []voice.Turn{
		{Role: voice.RoleUser, Text: "I feel stuck lately."},
		{Role: voice.RoleAssistant, Text: "Tell me more about that."},
	}
	if len(res.Transcript) != 2 || res.Transcript[0] != want[0] || res.Transcript[1] != want[1] {
		t.Fatalf("transcript = %+v, want %+v", res.Transcript, want)
	}
	if string(res.Audio) != string(pcm) {
		t.Fatalf("audio = %v, want %v", res.Audio, pcm)
	}
	if res.UserID != 7 || res.SessionID != "sess_test" {
		t.Fatalf("result identity = user %d session %q", res.UserID, res.SessionID)
	}
}

func TestRunBlocksOnModeration(t *testing.T) {
	up := newFakeUpstream(
		serverEvent("conversation.item.input_audio_transcription.completed", "something hateful"),
	)
	client := newFakeClient()
	fin := &recordingFinalizer{}

	deps := Dependencies{
		Client:    client,
		Dial:      func(context.Context) (UpstreamConn, error) { return up, nil },
		Gate:      moderation.NewGate(flagChecker{flag: true}, nil),
		Finalizer: fin,
	}
	s := newTestSession(t, deps)

	if err := s.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := client.writtenText(); !strings.Contains(got, protocol.WarningCodeContentPolicy) {
		t.Fatalf("client did not receive the policy warning frame: %q", got)
	}
	if got := client.controlText(); !strings.Contains(got, "content policy violation") {
		t.Fatalf("close frame = %q, want content policy reason", got)
	}
	select {
	case <-up.closed:
	default:
		t.Fatal("upstream connection not closed after block")
	}

	// The flagged fragment never became a completed turn, so the
	// finalizer sees an empty transcript.
	res := fin.result()
	if res == nil {
		t.Fatal("finalizer did not run")
	}
	if len(res.Transcript) != 0 {
		t.Fatalf("transcript = %+v, want empty", res.Transcript)
	}
}

func TestRunUpstreamDialFailure(t *testing.T) {
	client := newFakeClient()
	fin := &recordingFinalizer{}
	s := newTestSession(t, Dependencies{
		Client:    client,
		Dial:      func(context.Context) (UpstreamConn, error) { return nil, errors.New("connection refused") },
		Finalizer: fin,
	})

	if err := s.Run(); err == nil {
		t.Fatal("Run should surface dial failure")
	}
	res := fin.result()
	if res == nil {
		t.Fatal("finalization should still pass through on dial failure")
	}
	if len(res.Transcript) != 0 {
		t.Fatalf("transcript = %+v, want empty", res.Transcript)
	}
}

func TestCancelUnblocksRun(t *testing.T) {
	up := newFakeUpstream()
	up.hangAfterDrain = true
	client := newFakeClient()
	s := newTestSession(t, Dependencies{
		Client: client,
		Dial:   func(context.Context) (UpstreamConn, error) { return up, nil },
	})

	done := make(chan error, 1)
	go func() { done <- s.Run() }()

	time.Sleep(20 * time.Millisecond)
	s.Cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run after Cancel: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Cancel")
	}
}
