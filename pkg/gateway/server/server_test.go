package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ponohq/pono/pkg/gateway/config"
)

func testConfig() config.Config {
	return config.Config{
		JWTSecret:     "secret",
		EncryptionKey: "key",
		OpenAIAPIKey:  "sk-test",
	}
}

func TestRoutes(t *testing.T) {
	s, err := New(testConfig(), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/healthz status = %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("request id header missing")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/does-not-exist", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown path status = %d", rec.Code)
	}
}

func TestNewRejectsMissingSecrets(t *testing.T) {
	cfg := testConfig()
	cfg.EncryptionKey = ""
	if _, err := New(cfg, nil, nil); err == nil {
		t.Fatal("New should fail without an encryption key")
	}
}
