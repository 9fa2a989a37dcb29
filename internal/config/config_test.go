package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Port != 18890 {
		t.Errorf("default port = %d", cfg.Gateway.Port)
	}
	if cfg.Rooms.ResponseMode != "parallel" || cfg.Rooms.CooldownSeconds != 30 {
		t.Errorf("room defaults = %+v", cfg.Rooms)
	}
}

func TestLoadJSON5(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	// JSON5: comments and trailing commas are fine.
	data := `{
		// local override
		gateway: { port: 9999 },
		rooms: {
			response_mode: "debate",
			debate_rounds: 3,
		},
	}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Port != 9999 {
		t.Errorf("port = %d", cfg.Gateway.Port)
	}
	if cfg.Rooms.ResponseMode != "debate" || cfg.Rooms.DebateRounds != 3 {
		t.Errorf("rooms = %+v", cfg.Rooms)
	}
	// Untouched sections keep defaults.
	if cfg.Engine.BaseURL == "" {
		t.Error("engine defaults lost")
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte("{nope"), 0o600)

	if _, err := Load(path); err == nil {
		t.Fatal("malformed config must error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ROOMCAST_GATEWAY_TOKEN", "secret")
	t.Setenv("ROOMCAST_GATEWAY_PORT", "7777")
	t.Setenv("ROOMCAST_ENGINE_MODEL", "env-model")
	t.Setenv("ROOMCAST_TURN_TIMEOUT_SECONDS", "45")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Token != "secret" || cfg.Gateway.Port != 7777 {
		t.Errorf("gateway env override failed: %+v", cfg.Gateway)
	}
	if cfg.Engine.Model != "env-model" || cfg.Engine.TurnTimeoutSeconds != 45 {
		t.Errorf("engine env override failed: %+v", cfg.Engine)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	if got := ExpandHome("~/x.db"); got != filepath.Join(home, "x.db") {
		t.Errorf("ExpandHome = %q", got)
	}
	if got := ExpandHome("/abs/x.db"); got != "/abs/x.db" {
		t.Errorf("absolute path mangled: %q", got)
	}
}
