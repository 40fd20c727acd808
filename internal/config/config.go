package config

import (
	"fmt"
	"log/slog"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port             int        `envconfig:"PORT" default:"8080"`
	AllowedOrigins   []string   `envconfig:"ALLOWED_ORIGINS" default:"localhost:3000,localhost:5173"`
	JWTSecret        string     `envconfig:"JWT_SECRET"`
	DatabaseURL      string     `envconfig:"DATABASE_URL"`
	RedisURL         string     `envconfig:"REDIS_URL"`
	PresenceChannel  string     `envconfig:"PRESENCE_CHANNEL" default:"collab:presence"`
	LogLevel         slog.Level `envconfig:"LOG_LEVEL" default:"info"`
	SendBuffer       int        `envconfig:"SEND_BUFFER" default:"256"`
	MaxDocumentIDLen int        `envconfig:"MAX_DOCUMENT_ID_LEN" default:"256"`
	RejoinPolicy     string     `envconfig:"REJOIN_POLICY" default:"auto-leave"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("SEND_BUFFER must be positive, got %d", c.SendBuffer)
	}
	if c.MaxDocumentIDLen <= 0 {
		return fmt.Errorf("MAX_DOCUMENT_ID_LEN must be positive, got %d", c.MaxDocumentIDLen)
	}
	if c.RedisURL != "" && c.PresenceChannel == "" {
		return fmt.Errorf("PRESENCE_CHANNEL is required when REDIS_URL is set")
	}
	return nil
}
