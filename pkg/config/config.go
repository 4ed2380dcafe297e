// Package config loads Vexa's environment-driven configuration, following
// the same getenv-with-defaults discipline the teacher project applies to
// its own database settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// OrchestratorBackend selects which Worker Orchestrator implementation runs.
type OrchestratorBackend string

const (
	OrchestratorContainer OrchestratorBackend = "container"
	OrchestratorProcess   OrchestratorBackend = "process"
)

// StorageBackend selects the recording ObjectStore implementation.
type StorageBackend string

const (
	StorageLocal StorageBackend = "local"
	StorageMinio StorageBackend = "minio"
	StorageS3    StorageBackend = "s3"
)

// Timeouts groups every timer the Bot Lifecycle Manager owns. Defaults match
// base spec §5.
type Timeouts struct {
	SpawnDeadline           time.Duration // hard deadline on dispatch
	AdmissionTimeout        time.Duration // platform-specific, 5-10 min typical
	AdmissionGrace          time.Duration // fallback hard kill after soft leave
	AloneSinceStartup       time.Duration // default 20 minutes
	AloneSincePostSpeaker   time.Duration // default 10 seconds
	HeartbeatWatchdog       time.Duration // default 60 seconds without heartbeat
	WebhookRetryBudget      time.Duration // bounded by ~30s total
}

// DefaultTimeouts returns the base-spec defaults.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		SpawnDeadline:         10 * time.Second,
		AdmissionTimeout:      7 * time.Minute,
		AdmissionGrace:        30 * time.Second,
		AloneSinceStartup:     20 * time.Minute,
		AloneSincePostSpeaker: 10 * time.Second,
		HeartbeatWatchdog:     60 * time.Second,
		WebhookRetryBudget:    30 * time.Second,
	}
}

// Config is the top-level process configuration, loaded once at startup.
type Config struct {
	DatabaseURL            string
	RedisURL               string
	AdminAPIToken          string
	TranscriberURL         string
	TranscriberAPIKey      string
	Orchestrator           OrchestratorBackend
	StorageBackend         StorageBackend
	StorageLocalDir        string
	WhisperModelSize       string
	LogLevel               string
	SkipTranscriptionCheck bool

	HTTPPort string

	// PublicBaseURL is where this process's own /internal/callbacks endpoint
	// is reachable from a spawned worker. Not named in base spec §6's closed
	// env-var list (it's an orchestrator-internal wiring detail, not a
	// user-facing option), but required for the Worker Orchestrator to build
	// a worker's CallbackURL.
	PublicBaseURL string

	// BotWorkerImage is the container image run per meeting when
	// Orchestrator == container.
	BotWorkerImage string
	// BotWorkerBinPath is the child-process binary run per meeting when
	// Orchestrator == process.
	BotWorkerBinPath string

	// S3* configure the recording object store when StorageBackend is s3 or
	// minio; StorageBackend=minio additionally requires S3Endpoint.
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string

	WebhookWorkerCount int

	Timeouts Timeouts
}

// Load reads configuration from the process environment. It does not read
// a .env file itself; callers that want .env support load one first via
// godotenv and then call Load.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisURL:               os.Getenv("REDIS_URL"),
		AdminAPIToken:          os.Getenv("ADMIN_API_TOKEN"),
		TranscriberURL:         os.Getenv("TRANSCRIBER_URL"),
		TranscriberAPIKey:      os.Getenv("TRANSCRIBER_API_KEY"),
		Orchestrator:           OrchestratorBackend(getEnvOrDefault("ORCHESTRATOR", string(OrchestratorProcess))),
		StorageBackend:         StorageBackend(getEnvOrDefault("STORAGE_BACKEND", string(StorageLocal))),
		StorageLocalDir:        getEnvOrDefault("STORAGE_LOCAL_DIR", "./data/recordings"),
		WhisperModelSize:       getEnvOrDefault("WHISPER_MODEL_SIZE", "base"),
		LogLevel:               getEnvOrDefault("LOG_LEVEL", "info"),
		SkipTranscriptionCheck: getEnvBool("SKIP_TRANSCRIPTION_CHECK", false),
		HTTPPort:               getEnvOrDefault("PORT", "8080"),
		PublicBaseURL:          getEnvOrDefault("PUBLIC_BASE_URL", "http://localhost:8080"),
		BotWorkerImage:         getEnvOrDefault("BOT_WORKER_IMAGE", "vexa/bot-worker:latest"),
		BotWorkerBinPath:       getEnvOrDefault("BOT_WORKER_BIN", "./bin/vexa-bot"),
		S3Bucket:               os.Getenv("S3_BUCKET"),
		S3Region:               getEnvOrDefault("S3_REGION", "us-east-1"),
		S3Endpoint:             os.Getenv("S3_ENDPOINT"),
		S3AccessKeyID:          os.Getenv("S3_ACCESS_KEY_ID"),
		S3SecretAccessKey:      os.Getenv("S3_SECRET_ACCESS_KEY"),
		WebhookWorkerCount:     getEnvInt("WEBHOOK_WORKER_COUNT", 4),
		Timeouts:               DefaultTimeouts(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required settings are present and consistent.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Orchestrator != OrchestratorContainer && c.Orchestrator != OrchestratorProcess {
		return fmt.Errorf("ORCHESTRATOR must be %q or %q, got %q", OrchestratorContainer, OrchestratorProcess, c.Orchestrator)
	}
	switch c.StorageBackend {
	case StorageLocal, StorageMinio, StorageS3:
	default:
		return fmt.Errorf("STORAGE_BACKEND must be one of local|minio|s3, got %q", c.StorageBackend)
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}
