package config

import (
	"os"
	"time"
)

type AuthConfig interface {
	GetTokenSecret() string
	GetBotToken() string
	GetSessionTTL() time.Duration
	GetTokenTTL() time.Duration
	GetSweepInterval() time.Duration
}

type Auth struct{}

var _ AuthConfig = Auth{}

// GetTokenSecret returns the HMAC signing secret for issued tokens. An empty
// value is a fatal startup condition, enforced where the codec is built.
func (Auth) GetTokenSecret() string {
	return GetEnv("AUTH_TOKEN_SECRET", "")
}

// GetBotToken returns the Telegram bot token. When empty the bot transport
// and init-data verification are disabled.
func (Auth) GetBotToken() string {
	return GetEnv("TELEGRAM_BOT_TOKEN", "")
}

// GetSessionTTL returns how long a pending login session stays approvable.
func (Auth) GetSessionTTL() time.Duration {
	return durationEnv("SESSION_TTL", 5*time.Minute)
}

// GetTokenTTL returns how long issued bearer tokens stay valid.
func (Auth) GetTokenTTL() time.Duration {
	return durationEnv("TOKEN_TTL", 7*24*time.Hour)
}

// GetSweepInterval returns how often expired sessions are swept.
func (Auth) GetSweepInterval() time.Duration {
	return durationEnv("SWEEP_INTERVAL", time.Minute)
}

// durationEnv reads a Go duration string (e.g. "300s", "5m") from the
// environment, falling back to the default on absence or a parse failure.
func durationEnv(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
