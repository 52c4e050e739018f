package config

import (
	"encoding/base64"
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the runtime settings for the kopa backend. Values are read
// from the environment via envconfig; main may override individual fields
// from command line flags before calling Finalize.
type Config struct {
	ServerAddr     string   `envconfig:"KOPA_SERVER_ADDR" default:":8000"`
	DatabaseDSN    string   `envconfig:"KOPA_DATABASE_DSN"`
	SigningSecret  string   `envconfig:"KOPA_SIGNING_SECRET"`
	AllowedOrigins []string `envconfig:"KOPA_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	// PlatoonRooms maps state codes to platoon room ids, as CODE=room pairs.
	PlatoonRooms []string `envconfig:"KOPA_PLATOON_ROOMS"`
	RoomCapacity int      `envconfig:"KOPA_ROOM_CAPACITY" default:"0"`
	HistoryLimit int      `envconfig:"KOPA_HISTORY_LIMIT" default:"50"`

	// SigningKey is the decoded form of SigningSecret, populated by Finalize.
	SigningKey []byte `ignored:"true"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	return &cfg, nil
}

// Finalize validates the config and decodes the base64 signing secret. It
// must be called after any flag overrides have been applied.
func (c *Config) Finalize() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("database DSN cannot be empty")
	}
	if c.SigningSecret == "" {
		return fmt.Errorf("signing secret cannot be empty")
	}
	if c.RoomCapacity < 0 {
		return fmt.Errorf("room capacity cannot be negative")
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("history limit cannot be negative")
	}

	signingKey, err := base64.StdEncoding.DecodeString(c.SigningSecret)
	if err != nil {
		return fmt.Errorf("decode signing secret: %w", err)
	}
	c.SigningKey = signingKey

	return nil
}
