package config

import (
	"github.com/nextlevelbuilder/roomcast/internal/store"
)

// Config is the full roomcast configuration, loaded from a JSON5 file with
// env overrides (ROOMCAST_*).
type Config struct {
	Gateway  GatewayConfig  `json:"gateway"`
	Engine   EngineConfig   `json:"engine"`
	Database DatabaseConfig `json:"database"`
	Tracing  TracingConfig  `json:"tracing"`

	// Rooms holds defaults applied to rooms that have no persisted settings.
	Rooms store.RoomSettings `json:"rooms"`
}

// GatewayConfig configures the WebSocket/HTTP gateway.
type GatewayConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	Token          string   `json:"token,omitempty"` // optional shared secret for connect
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
	RateLimitRPM   int      `json:"rate_limit_rpm"` // 0 = disabled
}

// EngineConfig configures the external turn-execution engine
// (OpenAI-compatible chat completions endpoint).
type EngineConfig struct {
	BaseURL            string  `json:"base_url"`
	APIKey             string  `json:"api_key,omitempty"`
	Model              string  `json:"model"` // default when a bot has none
	MaxTokens          int     `json:"max_tokens"`
	Temperature        float64 `json:"temperature"`
	TurnTimeoutSeconds int     `json:"turn_timeout_seconds"` // wall-clock ceiling per bot turn
}

// DatabaseConfig selects the backing store. PostgresDSN wins when set;
// otherwise a local SQLite file is used.
type DatabaseConfig struct {
	PostgresDSN string `json:"postgres_dsn,omitempty"` // secret: env only
	SQLitePath  string `json:"sqlite_path,omitempty"`
}

// TracingConfig configures the OTLP trace exporter. Empty endpoint = off.
type TracingConfig struct {
	Endpoint string `json:"endpoint,omitempty"`
	Protocol string `json:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure bool   `json:"insecure,omitempty"`
}
