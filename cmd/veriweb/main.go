// VeriWeb server — provides the HTTP API, manages queue workers, and
// drives query sessions through research, verification, and synthesis.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/veriweb/veriweb/pkg/api"
	"github.com/veriweb/veriweb/pkg/claims"
	"github.com/veriweb/veriweb/pkg/config"
	"github.com/veriweb/veriweb/pkg/database"
	"github.com/veriweb/veriweb/pkg/llm"
	"github.com/veriweb/veriweb/pkg/planner"
	"github.com/veriweb/veriweb/pkg/queue"
	"github.com/veriweb/veriweb/pkg/research"
	"github.com/veriweb/veriweb/pkg/search"
	"github.com/veriweb/veriweb/pkg/storage"
	"github.com/veriweb/veriweb/pkg/synthesis"
	"github.com/veriweb/veriweb/pkg/verify"
	"github.com/veriweb/veriweb/pkg/version"
	"github.com/veriweb/veriweb/pkg/webenv"
)

// perURLFetchTimeout bounds one page fetch inside the environment's
// wall-clock budget.
const perURLFetchTimeout = 8 * time.Second

// resolvePodID determines the pod identifier for multi-replica
// coordination. Priority: POD_ID env > HOSTNAME env > "local".
func resolvePodID() string {
	if id := os.Getenv("POD_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "local"
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	podID := resolvePodID()
	slog.Info("Starting VeriWeb",
		"version", version.Full(),
		"http_port", cfg.HTTPPort,
		"pod_id", podID)

	ctx := context.Background()

	// Database: migrate, then open the shared pool.
	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()
	slog.Info("Connected to PostgreSQL database")

	store := storage.NewDB(dbClient.Pool())

	// Search: Google Custom Search behind the process-wide limiter.
	googleClient := search.NewGoogleClient(cfg.Search.APIKey, cfg.Search.EngineID, cfg.Search.Endpoint)
	provider := search.NewRateLimitedProvider(googleClient,
		cfg.Search.RatePerSecond, cfg.Search.Burst, cfg.Search.RateWait)

	// LLM: one client shared by extraction, reframing, and synthesis.
	llmClient, err := llm.NewOpenAIClient(llm.Config{
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		CallTimeout: cfg.Budgets.LLMCallTimeout,
	})
	if err != nil {
		slog.Error("Failed to initialize LLM client", "error", err)
		os.Exit(1)
	}

	// Pipeline wiring: environment → extractor → verifier → planner.
	env := webenv.New(provider, webenv.NewHTTPFetcher(perURLFetchTimeout), webenv.Options{})
	agent := research.NewAgent(env, claims.NewExtractor(llmClient), verify.NewEngine())
	synth := synthesis.New(llmClient)
	plan := planner.New(store, agent, synth, llmClient, cfg.Budgets, nil)

	// Worker pool claims queued sessions and runs the planner.
	workerPool := queue.NewWorkerPool(podID, store, &cfg.Queue, plan, cfg.Budgets.SessionTimeout)
	if err := workerPool.Start(ctx); err != nil {
		slog.Error("Failed to start worker pool", "error", err)
		os.Exit(1)
	}

	// HTTP server.
	server := api.NewServer(store, dbClient, workerPool, cfg.InternalTraceToken)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("VeriWeb started successfully",
		"pod_id", podID,
		"workers", cfg.Queue.WorkerCount)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// Graceful shutdown: let active sessions finish, then stop HTTP.
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Queue.GracefulShutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		workerPool.Stop()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-shutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded, incomplete sessions will be orphan-recovered")
	}

	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
