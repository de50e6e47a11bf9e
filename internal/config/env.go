package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Unprefixed keys (PORT, GOOGLE_CLOUD_PROJECT, PUBSUB_TOPIC) are picked up through envconfig's
// fallback to the bare tag name, so the services run unchanged on Cloud Run.

type BaseEnv struct {
	Env                string   `envconfig:"ENV" default:"local"`
	HTTPHost           string   `envconfig:"HTTP_HOST" default:""`
	HTTPPort           string   `envconfig:"PORT" default:"8080"`
	LogLevel           string   `envconfig:"LOG_LEVEL" default:"debug"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"https://sureshwizard.github.io,http://localhost:8000,http://127.0.0.1:8000"`
}

type StorageEnv struct {
	// Type is one of firestore, local, s3, sqlite or none.
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".twinagents/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"twinagents/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
	// SQLitePath is the database file (used when Type == "sqlite").
	SQLitePath string `envconfig:"SQLITE_PATH" default:".twinagents/plans.db"`
	// FirestoreCollection is the collection plans are written to (used when Type == "firestore").
	FirestoreCollection string `envconfig:"FIRESTORE_COLLECTION" default:"plans"`
}

type ChannelEnv struct {
	// Type is one of pubsub, local or none.
	Type           string        `envconfig:"CHANNEL_TYPE" default:"local"`
	ProjectID      string        `envconfig:"GOOGLE_CLOUD_PROJECT"`
	Topic          string        `envconfig:"PUBSUB_TOPIC" default:"planner-to-executor"`
	PublishTimeout time.Duration `envconfig:"PUBLISH_TIMEOUT" default:"10s"`
	// Push subscription emulation (used when Type == "local").
	PushSubscription string        `envconfig:"PUSH_SUBSCRIPTION" default:"executor-push"`
	PushEndpoint     string        `envconfig:"PUSH_ENDPOINT" default:"http://localhost:8081/run-task"`
	PushAckDeadline  time.Duration `envconfig:"PUSH_ACK_DEADLINE" default:"10s"`
	PushRetryDelay   time.Duration `envconfig:"PUSH_RETRY_DELAY" default:"1s"`
	PushMaxAttempts  int           `envconfig:"PUSH_MAX_ATTEMPTS" default:"5"`
}

type PlannerEnv struct {
	BaseEnv
	StorageEnv
	ChannelEnv
}

type ExecutorEnv struct {
	BaseEnv
}

const (
	plannerNamespace  = "PLANNER"
	executorNamespace = "EXECUTOR"
)

func LoadPlannerEnv() (*PlannerEnv, error) {
	var env PlannerEnv
	if err := envconfig.Process(plannerNamespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load planner env: %w", err)
	}
	return &env, nil
}

func LoadExecutorEnv() (*ExecutorEnv, error) {
	var env ExecutorEnv
	if err := envconfig.Process(executorNamespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load executor env: %w", err)
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return level
}

// PublishEnabled reports whether a channel backend is selected and has a topic. An empty
// ProjectID does not disable pubsub; the client detects it from the runtime credentials.
func (e *ChannelEnv) PublishEnabled() bool {
	switch e.Type {
	case "", "none":
		return false
	default:
		return e.Topic != ""
	}
}
