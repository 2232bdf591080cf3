// Package main provides the CLI entry point for the sidecar agent runtime.
//
// The sidecar hosts a ReAct LLM+tool loop behind an HTTP API, with
// human-in-the-loop pause/resume, a post-tool verifier pipeline, and an
// admin plane for agent/prompt/config management.
//
// # Basic Usage
//
// Start the server:
//
//	sidecar serve --config sidecar.yaml
//
// # Environment Variables
//
//   - SIDECAR_CONFIG: path to the configuration file (default: sidecar.yaml)
//   - ANTHROPIC_API_KEY, OPENAI_API_KEY, GOOGLE_API_KEY: LLM provider credentials
//   - FORGE_ADMIN_KEY: bearer key required for /forge-admin/* routes (read
//     when the config file's admin.key is empty)
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/forgehq/sidecar/internal/admin"
	"github.com/forgehq/sidecar/internal/audit"
	"github.com/forgehq/sidecar/internal/auth"
	"github.com/forgehq/sidecar/internal/chat"
	"github.com/forgehq/sidecar/internal/config"
	"github.com/forgehq/sidecar/internal/convstore"
	"github.com/forgehq/sidecar/internal/hitl"
	"github.com/forgehq/sidecar/internal/ratelimit"
	"github.com/forgehq/sidecar/internal/react"
	"github.com/forgehq/sidecar/internal/storage"
	"github.com/forgehq/sidecar/internal/verify"
	"github.com/forgehq/sidecar/pkg/models"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := &cobra.Command{
		Use:   "sidecar",
		Short: "Agent runtime sidecar: ReAct loop, HITL, verifiers, admin plane",
	}

	var configPath string
	var debug bool
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}
	serveCmd.Flags().StringVar(&configPath, "config", envOr("SIDECAR_CONFIG", "sidecar.yaml"), "path to configuration file")
	serveCmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("sidecar %s (commit %s, built %s)\n", version, commit, date)
			return nil
		},
	})

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// runServe loads configuration, assembles every collaborator, and blocks
// serving HTTP until a shutdown signal arrives.
func runServe(ctx context.Context, configPath string, debug bool) error {
	if debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	slog.Info("starting sidecar", "version", version, "commit", commit, "config", configPath, "debug", debug)

	cfg, err := config.LoadSidecar(configPath)
	if err != nil {
		slog.Warn("failed to load config file, using defaults", "error", err, "path", configPath)
		cfg = config.DefaultSidecarConfig()
	}

	deps, err := buildDependencies(cfg)
	if err != nil {
		return fmt.Errorf("build dependencies: %w", err)
	}
	defer func() {
		if err := deps.stores.Close(); err != nil {
			slog.Warn("error closing stores", "error", err)
		}
	}()

	mux := buildMux(deps)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.Addr, err)
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()
	slog.Info("sidecar listening", "addr", cfg.Server.Addr)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, initiating graceful shutdown")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http server shutdown error", "error", err)
	}

	slog.Info("sidecar stopped gracefully")
	return nil
}

// dependencies bundles every collaborator built from SidecarConfig, so
// buildMux and tests can wire them without threading config everywhere.
type dependencies struct {
	chat   *chat.Handler
	admin  *admin.Handler
	stores storage.StoreSet
}

func buildDependencies(cfg *config.SidecarConfig) (*dependencies, error) {
	authenticator := auth.NewAuthenticator(auth.Mode(cfg.Auth.Mode), cfg.Auth.Secret, cfg.Auth.ClaimPath)
	adminKey := cfg.Admin.Key
	if adminKey == "" {
		adminKey = os.Getenv("FORGE_ADMIN_KEY")
	}
	var adminAuth *auth.AdminAuthenticator
	if adminKey != "" {
		adminAuth = auth.NewAdminAuthenticator(adminKey)
	}

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		WindowMs:    cfg.RateLimit.WindowMs,
		MaxRequests: cfg.RateLimit.MaxRequests,
		Enabled:     cfg.RateLimit.Enabled,
	}, nil)

	hitlStore, err := hitl.NewStore(hitl.BackendConfig{
		RedisURL:    cfg.Storage.RedisURL,
		PostgresDSN: cfg.Storage.PostgresDSN,
		SQLitePath:  cfg.Storage.SQLitePath,
	})
	if err != nil {
		return nil, fmt.Errorf("build hitl store: %w", err)
	}
	ttl := cfg.HitlTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	hitlEngine := hitl.NewEngine(hitlStore, ttl)

	convStore, err := convstore.NewStore(convstore.BackendConfig{
		RedisURL:    cfg.Storage.RedisURL,
		PostgresDSN: cfg.Storage.PostgresDSN,
		SQLitePath:  cfg.Storage.SQLitePath,
	})
	if err != nil {
		return nil, fmt.Errorf("build conversation store: %w", err)
	}

	var stores storage.StoreSet
	if cfg.Storage.PostgresDSN != "" {
		stores, err = storage.NewCockroachStoresFromDSN(cfg.Storage.PostgresDSN, nil)
		if err != nil {
			return nil, fmt.Errorf("build cockroach stores: %w", err)
		}
	} else {
		stores = storage.NewMemoryStores()
	}

	registry := verify.NewRegistry(nil)
	workerPool := verify.NewWorkerPool(4, 10*time.Second, 64)
	customRunner := verify.NewCustomRunner("verifiers", nil, workerPool)
	verifier := verify.NewRunner(registry, customRunner, nil)

	providers := map[string]react.LLMProvider{}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		p, err := react.NewAnthropicProvider(react.AnthropicConfig{APIKey: key, DefaultModel: "claude-sonnet-4-20250514"})
		if err != nil {
			slog.Warn("anthropic provider unavailable", "error", err)
		} else {
			providers[p.Name()] = p
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		p, err := react.NewOpenAIProvider(key, "gpt-4o")
		if err != nil {
			slog.Warn("openai provider unavailable", "error", err)
		} else {
			providers[p.Name()] = p
		}
	}
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		p, err := react.NewGoogleProvider(react.GoogleConfig{APIKey: key, DefaultModel: "gemini-2.0-flash"})
		if err != nil {
			slog.Warn("google provider unavailable", "error", err)
		} else {
			providers[p.Name()] = p
		}
	}

	dispatcher := react.NewDispatcher(cfg.Tools.McpBaseURL, http.DefaultClient)

	auditStore := audit.Store(audit.NewMemoryStore())
	if cfg.Storage.PostgresDSN != "" {
		if db, err := openAuditDB(cfg.Storage.PostgresDSN); err == nil {
			auditStore = audit.NewSQLStore(db)
		} else {
			slog.Warn("audit SQL store unavailable, falling back to memory", "error", err)
		}
	}

	configStore, err := admin.NewConfigStore(cfg.Admin.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("build admin config store: %w", err)
	}

	chatHandler := &chat.Handler{
		Auth:             authenticator,
		Limiter:          limiter,
		Agents:           stores.Agents,
		Prompts:          stores.Prompts,
		Prefs:            stores.Preferences,
		Tools:            stores.Tools,
		Conv:             convStore,
		Hitl:             hitlEngine,
		Verifier:         verifier,
		Providers:        providers,
		Dispatch:         dispatcher,
		Audit:            auditStore,
		BaseModel:        "claude-sonnet-4-20250514",
		BaseHitlLevel:    models.HitlCautious,
		BaseMaxTurns:     react.DefaultMaxTurns,
		BaseMaxTokens:    4096,
		BaseSystemPrompt: "You are a helpful assistant.",
		HistoryWindow:    25,
	}

	adminHandler := &admin.Handler{
		Auth:    adminAuth,
		Agents:  stores.Agents,
		Prompts: stores.Prompts,
		Config:  configStore,
	}

	return &dependencies{chat: chatHandler, admin: adminHandler, stores: stores}, nil
}

func openAuditDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func buildMux(deps *dependencies) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", handleHealth)

	mux.HandleFunc("/agent-api/chat", deps.chat.ServeChat)
	mux.HandleFunc("/agent-api/chat-sync", deps.chat.ServeChatSync)
	mux.HandleFunc("/agent-api/chat/resume", deps.chat.ServeResume)
	mux.HandleFunc("/agent-api/user/preferences", deps.chat.ServePreferences)
	mux.HandleFunc("/agent-api/conversations", deps.chat.ServeConversations)
	mux.HandleFunc("/agent-api/conversations/", deps.chat.ServeConversations)
	mux.HandleFunc("/agent-api/tools", deps.chat.ServeTools)

	mux.HandleFunc("/forge-admin/agents", deps.admin.ServeAgents)
	mux.HandleFunc("/forge-admin/agents/", deps.admin.ServeAgents)
	mux.HandleFunc("/forge-admin/prompts", deps.admin.ServePrompts)
	mux.HandleFunc("/forge-admin/prompts/", deps.admin.ServePrompts)
	mux.HandleFunc("/forge-admin/config", deps.admin.ServeConfig)
	mux.HandleFunc("/forge-admin/config/", deps.admin.ServeConfig)

	return mux
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
