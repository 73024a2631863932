package config

import (
	"os"
	"time"
)

// Server captures process-level configuration for the trust core.
type Server struct {
	Addr string

	// VaultSecret keys the symmetric encryption of private key material at
	// rest. The vault derives its AES key from it one-way; the process must
	// refuse to start without it unless DevMode is set.
	VaultSecret string

	// ChannelSigningKey signs the bearer tokens that transports (chat bot,
	// web form) present on behalf of acting identities.
	ChannelSigningKey string
	ChannelTokenTTL   time.Duration

	DatabaseURL string
	RedisAddr   string

	TokenTTL        time.Duration
	SessionTTL      time.Duration
	CleanupInterval time.Duration

	// DevMode seeds sample identities and tolerates a generated vault secret.
	DevMode bool
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:              envOr("BEANTRACE_ADDR", ":8080"),
		VaultSecret:       os.Getenv("BEANTRACE_VAULT_SECRET"),
		ChannelSigningKey: os.Getenv("BEANTRACE_CHANNEL_SIGNING_KEY"),
		ChannelTokenTTL:   durationOr("BEANTRACE_CHANNEL_TOKEN_TTL", 1*time.Hour),
		DatabaseURL:       os.Getenv("BEANTRACE_DATABASE_URL"),
		RedisAddr:         os.Getenv("BEANTRACE_REDIS_ADDR"),
		TokenTTL:          durationOr("BEANTRACE_TOKEN_TTL", 48*time.Hour),
		SessionTTL:        durationOr("BEANTRACE_SESSION_TTL", 30*time.Minute),
		CleanupInterval:   durationOr("BEANTRACE_CLEANUP_INTERVAL", 5*time.Minute),
		DevMode:           os.Getenv("BEANTRACE_DEV_MODE") == "true",
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
