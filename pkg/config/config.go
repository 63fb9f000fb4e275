// Package config loads runtime configuration from the environment,
// layered over the conventional dotenv files.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/afrosatoshi1/flux-companion/internal/dotenv"
)

// Config is the resolved runtime configuration.
type Config struct {
	// APIKey authenticates against the generative language service.
	APIKey string
	// LiveModel overrides the default live session model when set.
	LiveModel string
	// Voice overrides the default prebuilt voice when set.
	Voice string
	// CompanionName is the display name the companion answers to.
	CompanionName string
	// DatabaseURL enables persistence when set.
	DatabaseURL string
	// Debug enables verbose logging.
	Debug bool
}

// Load reads dotenv files and the environment. It does not validate;
// callers decide which fields they need.
func Load() (*Config, error) {
	if err := dotenv.Load(); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}

	cfg := &Config{
		APIKey:        firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY", "API_KEY"),
		LiveModel:     os.Getenv("FLUX_LIVE_MODEL"),
		Voice:         os.Getenv("FLUX_VOICE"),
		CompanionName: os.Getenv("FLUX_COMPANION_NAME"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
	}
	if cfg.CompanionName == "" {
		cfg.CompanionName = "Nova"
	}
	if raw := os.Getenv("FLUX_DEBUG"); raw != "" {
		debug, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("parse FLUX_DEBUG: %w", err)
		}
		cfg.Debug = debug
	}
	return cfg, nil
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}
