package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/roomcast/internal/config"
	"github.com/nextlevelbuilder/roomcast/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("roomcast doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, defaults apply)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Database:")
	if cfg.Database.PostgresDSN != "" {
		checkPostgres(cfg.Database.PostgresDSN)
	} else {
		path := config.ExpandHome(cfg.Database.SQLitePath)
		fmt.Printf("    %-12s sqlite\n", "Backend:")
		fmt.Printf("    %-12s %s\n", "Path:", path)
	}

	fmt.Println()
	fmt.Println("  Engine:")
	fmt.Printf("    %-12s %s\n", "Base URL:", cfg.Engine.BaseURL)
	fmt.Printf("    %-12s %s\n", "Model:", cfg.Engine.Model)
	if cfg.Engine.APIKey == "" {
		fmt.Printf("    %-12s NOT SET (set ROOMCAST_ENGINE_API_KEY)\n", "API key:")
	} else {
		fmt.Printf("    %-12s configured\n", "API key:")
		checkEngine(cfg)
	}

	fmt.Println()
	fmt.Println("  Gateway:")
	fmt.Printf("    %-12s %s:%d\n", "Listen:", cfg.Gateway.Host, cfg.Gateway.Port)
	if cfg.Gateway.Token == "" {
		fmt.Printf("    %-12s disabled (set ROOMCAST_GATEWAY_TOKEN to require auth)\n", "Auth:")
	} else {
		fmt.Printf("    %-12s token\n", "Auth:")
	}

	if cfg.Tracing.Endpoint != "" {
		fmt.Println()
		fmt.Printf("  Tracing:  %s (%s)\n", cfg.Tracing.Endpoint, tracingProtocol(cfg))
	}
}

func tracingProtocol(cfg *config.Config) string {
	if cfg.Tracing.Protocol == "" {
		return "grpc"
	}
	return cfg.Tracing.Protocol
}

func checkPostgres(dsn string) {
	fmt.Printf("    %-12s postgres\n", "Backend:")
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		fmt.Printf("    %-12s OPEN FAILED (%s)\n", "Status:", err)
		return
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}
	fmt.Printf("    %-12s OK\n", "Status:")
}

// checkEngine probes the models endpoint, which is cheap and present on
// every OpenAI-compatible server.
func checkEngine(cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.Engine.BaseURL+"/models", nil)
	if err != nil {
		fmt.Printf("    %-12s CHECK FAILED (%s)\n", "Status:", err)
		return
	}
	req.Header.Set("Authorization", "Bearer "+cfg.Engine.APIKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("    %-12s UNREACHABLE (%s)\n", "Status:", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("    %-12s HTTP %d\n", "Status:", resp.StatusCode)
		return
	}
	fmt.Printf("    %-12s OK\n", "Status:")
}
