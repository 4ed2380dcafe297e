package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/vexa")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, OrchestratorProcess, cfg.Orchestrator)
	require.Equal(t, StorageLocal, cfg.StorageBackend)
	require.Equal(t, "vexa/bot-worker:latest", cfg.BotWorkerImage)
	require.Equal(t, "./bin/vexa-bot", cfg.BotWorkerBinPath)
	require.Equal(t, "us-east-1", cfg.S3Region)
	require.Equal(t, 4, cfg.WebhookWorkerCount)
	require.Equal(t, DefaultTimeouts(), cfg.Timeouts)
}

func TestLoad_RejectsUnknownOrchestrator(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/vexa")
	t.Setenv("ORCHESTRATOR", "kubernetes")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RejectsUnknownStorageBackend(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/vexa")
	t.Setenv("STORAGE_BACKEND", "tape")

	_, err := Load()
	require.Error(t, err)
}

func TestGetEnvInt_FallsBackOnInvalidValue(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/vexa")
	t.Setenv("WEBHOOK_WORKER_COUNT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 4, cfg.WebhookWorkerCount)
}

func TestGetEnvInt_UsesParsedValue(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/vexa")
	t.Setenv("WEBHOOK_WORKER_COUNT", "9")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 9, cfg.WebhookWorkerCount)
}
