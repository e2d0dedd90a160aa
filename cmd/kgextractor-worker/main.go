// Package main is the entry point for the knowledge-graph extraction
// worker: it wires configuration, observability, the graph client, an LLM
// provider, the check-create engine, and the job API into one runnable
// server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arke-institute/kgextractor/internal/config"
	"github.com/arke-institute/kgextractor/internal/extract"
	"github.com/arke-institute/kgextractor/internal/graphclient"
	"github.com/arke-institute/kgextractor/internal/jobapi"
	"github.com/arke-institute/kgextractor/internal/jobstore"
	"github.com/arke-institute/kgextractor/internal/observability"
)

var (
	// Version is set at build time.
	Version = "dev"
	// BuildTime is set at build time.
	BuildTime = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "kgextractor-worker",
		Short:   "Knowledge-graph extraction worker",
		Long:    `kgextractor-worker accepts extraction job requests over HTTP, runs the check-create and update-builder pipeline against a graph service, and reports each job's outcome.`,
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
		RunE:    run,
	}

	rootCmd.Flags().String("addr", "", "HTTP bind address (default from config)")
	rootCmd.Flags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.Flags().String("log-format", "json", "Log format: json, console")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	logLevel, _ := cmd.Flags().GetString("log-level")
	logFormat, _ := cmd.Flags().GetString("log-format")
	observability.SetupLogging(logLevel, logFormat, os.Stderr)

	logger := observability.Logger("main")

	store, err := jobstore.Open(jobstore.Config{DSN: cfg.JobStore.DSN})
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer store.Close()

	provider, err := buildProvider(cfg.LLM)
	if err != nil {
		return fmt.Errorf("build LLM provider: %w", err)
	}

	graph := graphclient.New(graphclient.Config{
		APIBase:        cfg.Graph.APIBase,
		RequestTimeout: cfg.Graph.RequestTimeout,
	}, "")

	var cache *extract.ResolutionCache
	if cfg.Cache.Enabled {
		cache = extract.NewResolutionCache(extract.ResolutionCacheConfig{
			Addr: cfg.Cache.RedisAddr,
			TTL:  time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		})
		defer cache.Close()
	}

	timing := extract.CheckCreateTiming{
		SettleBase:     time.Duration(cfg.CheckCreate.SettleMillis) * time.Millisecond,
		SettleJitter:   time.Duration(cfg.CheckCreate.JitterMillis) * time.Millisecond,
		RetryBase:      time.Duration(cfg.CheckCreate.RetryDelayMillis) * time.Millisecond,
		RetryJitter:    time.Duration(cfg.CheckCreate.JitterMillis) * time.Millisecond,
		LookupNLimit:   10,
		LookupNRetries: 2,
	}
	engine := extract.NewCheckCreateEngine(graph, timing, cfg.CheckCreate.ConcurrencyCeiling, cache)
	orchestrator := extract.NewPipelineOrchestrator(graph, provider, engine)

	server := jobapi.New(orchestrator, store)
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		observability.LogEvent(logger, observability.EventHealthCheck, map[string]interface{}{"addr": cfg.Server.Addr})
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
	case <-sigCh:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(ctx)
	}
	return nil
}

func buildProvider(cfg config.LLMConfig) (extract.Provider, error) {
	switch cfg.Provider {
	case "ollama":
		return extract.NewOllamaProvider(extract.OllamaConfig{
			Host:    cfg.Endpoint,
			Model:   cfg.Model,
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		})
	case "gemini":
		return extract.NewGeminiProvider(extract.GeminiConfig{
			Endpoint: cfg.Endpoint,
			APIKey:   cfg.APIKey,
			Model:    cfg.Model,
			Timeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.Provider)
	}
}
