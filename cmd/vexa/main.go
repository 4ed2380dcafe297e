// Command vexa runs the bot-orchestration control plane: the HTTP API, the
// Bot Lifecycle Manager, and the background task runner, in one process.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vexa-ai/vexa/pkg/api"
	"github.com/vexa-ai/vexa/pkg/bus"
	"github.com/vexa-ai/vexa/pkg/config"
	"github.com/vexa-ai/vexa/pkg/database"
	"github.com/vexa-ai/vexa/pkg/lifecycle"
	"github.com/vexa-ai/vexa/pkg/orchestrator"
	"github.com/vexa-ai/vexa/pkg/recordings"
	"github.com/vexa-ai/vexa/pkg/registry"
	"github.com/vexa-ai/vexa/pkg/tasks"
	"github.com/vexa-ai/vexa/pkg/webhook"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("warning: could not load %s: %v", envPath, err)
		log.Printf("continuing with existing environment variables")
	} else {
		log.Printf("loaded environment from %s", envPath)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	setupLogging(cfg.LogLevel)

	ctx := context.Background()

	if cfg.SkipTranscriptionCheck {
		slog.Info("skipping transcription sink reachability probe", "reason", "SKIP_TRANSCRIPTION_CHECK=true")
	} else if err := probeTranscriptionSink(ctx, cfg.TranscriberURL); err != nil {
		log.Fatalf("transcription sink unreachable at startup (set SKIP_TRANSCRIPTION_CHECK=true to bypass): %v", err)
	}

	dbConfig, err := database.ConfigFromURL(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to parse DATABASE_URL: %v", err)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.Printf("error closing database client: %v", err)
		}
	}()
	slog.Info("connected to postgres and applied migrations")

	commandBus, err := bus.NewFromURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer commandBus.Close()

	reg := registry.New(dbClient.DB())

	orch, err := buildOrchestrator(cfg)
	if err != nil {
		log.Fatalf("failed to build worker orchestrator: %v", err)
	}

	webhookStore := webhook.NewStore(dbClient.DB())
	secretLookup := func(ctx context.Context, meetingID string) (string, error) {
		meeting, err := reg.Get(ctx, meetingID)
		if err != nil {
			return "", err
		}
		owner, err := reg.GetUser(ctx, meeting.Owner)
		if err != nil {
			return "", err
		}
		return owner.WebhookSecret, nil
	}
	dispatcher := webhook.NewDispatcher(webhookStore, secretLookup, cfg.WebhookWorkerCount)
	defer dispatcher.Close()

	manager := lifecycle.New(reg, orch, commandBus, dispatcher, cfg.Timeouts)

	store, err := buildObjectStore(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to build recording object store: %v", err)
	}

	runner := tasks.New(tasks.DefaultConfig(), reg, manager, webhookStore, dispatcher)
	if candidates, err := reg.ListOrphanCandidates(ctx); err != nil {
		slog.Error("failed to list orphan candidates for startup reconciliation", "error", err)
	} else if err := manager.ReconcileOnRestart(ctx, candidates); err != nil {
		slog.Error("startup reconciliation failed", "error", err)
	}
	runner.Start(ctx)
	defer runner.Stop()

	server := api.NewServer(cfg, dbClient, reg, manager, store, commandBus)
	if err := server.ValidateWiring(); err != nil {
		log.Fatalf("server wiring incomplete: %v", err)
	}

	addr := ":" + cfg.HTTPPort
	go func() {
		slog.Info("http server listening", "addr", addr)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}

// probeTranscriptionSink confirms the transcription sink is reachable before
// the control plane starts dispatching workers that depend on it, per base
// spec §6's SKIP_TRANSCRIPTION_CHECK. A HEAD request is enough: the sink's
// WebSocket audio protocol lives behind the same host, and the orchestrator
// only needs to know the host answers at all, not that this exact path does.
func probeTranscriptionSink(ctx context.Context, transcriberURL string) error {
	if transcriberURL == "" {
		return fmt.Errorf("TRANSCRIBER_URL is not configured")
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, transcriberURL, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("dial transcription sink: %w", err)
	}
	defer resp.Body.Close()
	return nil
}

func buildOrchestrator(cfg *config.Config) (orchestrator.Orchestrator, error) {
	switch cfg.Orchestrator {
	case config.OrchestratorContainer:
		return orchestrator.NewContainerOrchestrator(cfg.BotWorkerImage), nil
	default:
		return orchestrator.NewProcessOrchestrator(cfg.BotWorkerBinPath), nil
	}
}

func buildObjectStore(ctx context.Context, cfg *config.Config) (recordings.ObjectStore, error) {
	switch cfg.StorageBackend {
	case config.StorageS3, config.StorageMinio:
		return recordings.NewS3Store(ctx, recordings.S3StoreConfig{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UsePathStyle:    cfg.StorageBackend == config.StorageMinio,
		})
	default:
		return recordings.NewLocalStore(cfg.StorageLocalDir)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}
