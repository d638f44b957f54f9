package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable for the server, parsed from the environment.
type Config struct {
	Addr string `env:"PONO_ADDR" envDefault:":8080"`

	DatabaseURL string `env:"DATABASE_URL,required"`

	// Secrets.
	JWTSecret     string `env:"PONO_JWT_SECRET,required"`
	EncryptionKey string `env:"PONO_ENCRYPTION_KEY,required"`
	OpenAIAPIKey  string `env:"OPENAI_API_KEY,required"`
	HumeAPIKey    string `env:"HUME_API_KEY"`

	// Upstream realtime endpoint.
	RealtimeURL   string `env:"PONO_REALTIME_URL" envDefault:"wss://api.openai.com/v1/realtime"`
	RealtimeModel string `env:"PONO_REALTIME_MODEL" envDefault:"gpt-4o-realtime-preview-2024-12-17"`

	// Voice-activity-detection tunables sent in the session configuration frame.
	TranscriptionModel string  `env:"PONO_TRANSCRIPTION_MODEL" envDefault:"gpt-4o-mini-transcribe"`
	VADThreshold       float64 `env:"PONO_VAD_THRESHOLD" envDefault:"0.5"`
	VADPrefixPadding   int     `env:"PONO_VAD_PREFIX_PADDING_MS" envDefault:"300"`
	VADSilenceDuration int     `env:"PONO_VAD_SILENCE_DURATION_MS" envDefault:"500"`

	// Timeouts.
	UpstreamConnectTimeout time.Duration `env:"PONO_UPSTREAM_CONNECT_TIMEOUT" envDefault:"10s"`
	CapabilityTimeout      time.Duration `env:"PONO_CAPABILITY_TIMEOUT" envDefault:"20s"`
	FinalizeTimeout        time.Duration `env:"PONO_FINALIZE_TIMEOUT" envDefault:"90s"`
	ReadHeaderTimeout      time.Duration `env:"PONO_READ_HEADER_TIMEOUT" envDefault:"10s"`
	ShutdownGracePeriod    time.Duration `env:"PONO_SHUTDOWN_GRACE_PERIOD" envDefault:"30s"`

	// CORS allowlist; empty disables CORS entirely.
	CORSOrigins []string `env:"PONO_CORS_ORIGINS" envSeparator:","`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("PONO_ADDR must not be empty")
	}
	if !strings.HasPrefix(c.RealtimeURL, "ws://") && !strings.HasPrefix(c.RealtimeURL, "wss://") {
		return fmt.Errorf("PONO_REALTIME_URL must be a ws:// or wss:// URL")
	}
	if strings.TrimSpace(c.RealtimeModel) == "" {
		return fmt.Errorf("PONO_REALTIME_MODEL must not be empty")
	}
	if strings.TrimSpace(c.TranscriptionModel) == "" {
		return fmt.Errorf("PONO_TRANSCRIPTION_MODEL must not be empty")
	}
	if c.VADThreshold <= 0 || c.VADThreshold > 1 {
		return fmt.Errorf("PONO_VAD_THRESHOLD must be in (0, 1]")
	}
	if c.VADPrefixPadding < 0 {
		return fmt.Errorf("PONO_VAD_PREFIX_PADDING_MS must be >= 0")
	}
	if c.VADSilenceDuration <= 0 {
		return fmt.Errorf("PONO_VAD_SILENCE_DURATION_MS must be > 0")
	}
	if c.UpstreamConnectTimeout <= 0 {
		return fmt.Errorf("PONO_UPSTREAM_CONNECT_TIMEOUT must be > 0")
	}
	if c.CapabilityTimeout <= 0 {
		return fmt.Errorf("PONO_CAPABILITY_TIMEOUT must be > 0")
	}
	if c.FinalizeTimeout <= 0 {
		return fmt.Errorf("PONO_FINALIZE_TIMEOUT must be > 0")
	}
	if c.ReadHeaderTimeout <= 0 {
		return fmt.Errorf("PONO_READ_HEADER_TIMEOUT must be > 0")
	}
	if c.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("PONO_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	return nil
}

// AllowedOrigin reports whether origin is allowlisted for CORS and the
// websocket upgrade check. An empty allowlist rejects all cross-origin
// callers; same-origin requests carry no Origin header and always pass.
func (c Config) AllowedOrigin(origin string) bool {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return true
	}
	for _, allowed := range c.CORSOrigins {
		if strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return true
		}
	}
	return false
}
