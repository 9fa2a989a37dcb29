package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"

	"github.com/nextlevelbuilder/roomcast/internal/store"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:         "0.0.0.0",
			Port:         18890,
			RateLimitRPM: 30,
		},
		Engine: EngineConfig{
			BaseURL:            "https://api.openai.com/v1",
			Model:              "gpt-4o-mini",
			MaxTokens:          4096,
			Temperature:        0.7,
			TurnTimeoutSeconds: 120,
		},
		Database: DatabaseConfig{
			SQLitePath: "~/.roomcast/roomcast.db",
		},
		Rooms: store.RoomSettings{
			CooldownSeconds:       30,
			AutoRelevance:         true,
			ResponseMode:          "parallel",
			RoutingStrategy:       "keyword",
			DebateRounds:          2,
			InterviewHandoff:      "auto",
			InterviewMaxQuestions: 5,
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("ROOMCAST_GATEWAY_TOKEN", &c.Gateway.Token)
	envStr("ROOMCAST_ENGINE_BASE_URL", &c.Engine.BaseURL)
	envStr("ROOMCAST_ENGINE_API_KEY", &c.Engine.APIKey)
	envStr("ROOMCAST_ENGINE_MODEL", &c.Engine.Model)
	envStr("ROOMCAST_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("ROOMCAST_SQLITE_PATH", &c.Database.SQLitePath)
	envStr("ROOMCAST_OTLP_ENDPOINT", &c.Tracing.Endpoint)

	if v := os.Getenv("ROOMCAST_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Gateway.Port = port
		}
	}
	if v := os.Getenv("ROOMCAST_TURN_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.Engine.TurnTimeoutSeconds = secs
		}
	}
}

// ExpandHome replaces a leading ~ with the user home directory.
func ExpandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return home + path[1:]
		}
	}
	return path
}
