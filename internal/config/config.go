// Package config reads the process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator"

	"github.com/OFFIS-RIT/macrokg/internal/storage"
	"github.com/OFFIS-RIT/macrokg/internal/util"
	"github.com/OFFIS-RIT/macrokg/pkg/analytics"
	"github.com/OFFIS-RIT/macrokg/pkg/extract"
	"github.com/OFFIS-RIT/macrokg/pkg/graph"
	"github.com/OFFIS-RIT/macrokg/pkg/graphdb"
	"github.com/OFFIS-RIT/macrokg/pkg/nel"
)

type AIConfig struct {
	Adapter       string `validate:"oneof=openai ollama"`
	ChatURL       string
	ChatKey       string
	ExtractModel  string
	AnswerModel   string
	AllowedModels []string
	Timeout       time.Duration
	ParallelReq   int64 `validate:"min=1"`
}

type ExtractConfig struct {
	Version          string
	MinNELConfidence float64 `validate:"min=0,max=1"`
	Backlog          graph.BacklogOptions
}

type AnalyticsConfig struct {
	Correlation analytics.CorrelationOptions
	Impact      analytics.ImpactOptions
	Recalibrate analytics.RecalibrateOptions
	Stories     analytics.StoryOptions
	MacroState  analytics.MacroStateOptions
	// SyncLookback bounds the first news sync and every observation sync.
	SyncLookback time.Duration
}

type QueueConfig struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string `validate:"required"`
	// RetryDelay is how long a failed job waits in the retry queue.
	RetryDelay time.Duration
	MaxRetries int
}

// URL is the amqp connection url.
func (q QueueConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", q.User, q.Password, q.Host, q.Port)
}

type FileConfig struct {
	Normalization string
	Alias         string
	Golden        string
}

type SourceConfig struct {
	NewsTable        string
	ObservationTable string
}

type Config struct {
	Port  string `validate:"required"`
	Debug bool
	// LogJSON writes one JSON object per log line.
	LogJSON     bool
	DatabaseURL string `validate:"required"`
	Neo4j       graphdb.Neo4jConfig
	AI          AIConfig
	Extract     ExtractConfig
	Analytics   AnalyticsConfig
	Queue       QueueConfig
	S3          storage.S3Config
	// Cron maps job names to cron specs. An empty spec disables the job.
	Cron   map[string]string
	Files  FileConfig
	Source SourceConfig
}

// DefaultCron schedules every batch job once a day, sync and extraction
// more often.
var DefaultCron = map[string]string{
	"sync":             "*/15 * * * *",
	"extract_backlog":  "*/30 * * * *",
	"derived_features": "0 1 * * *",
	"event_impact":     "15 1 * * *",
	"recalibrate":      "30 1 * * *",
	"correlations":     "0 2 * * *",
	"stories":          "30 2 * * *",
	"macro_state":      "0 3 * * *",
	"regression":       "0 4 * * 1",
}

// CronEnv is the variable that overrides the schedule of job.
func CronEnv(job string) string {
	return "CRON_" + strings.ToUpper(job)
}

// Load reads the environment. Call util.LoadEnv first to pick up a .env
// file.
func Load() (Config, error) {
	cfg := Config{
		Port:        util.GetEnvString("PORT", "8080"),
		Debug:       util.GetEnvBool("DEBUG", false),
		LogJSON:     util.GetEnvString("LOG_FORMAT", "text") == "json",
		DatabaseURL: util.GetEnv("DATABASE_URL"),
		Neo4j: graphdb.Neo4jConfig{
			URI:      util.GetEnvString("NEO4J_URI", "neo4j://localhost:7687"),
			Username: util.GetEnvString("NEO4J_USER", "neo4j"),
			Password: util.GetEnv("NEO4J_PASSWORD"),
			Database: util.GetEnvString("NEO4J_DATABASE", "neo4j"),
		},
		AI: AIConfig{
			Adapter:       util.GetEnvString("AI_ADAPTER", "openai"),
			ChatURL:       util.GetEnv("AI_CHAT_URL"),
			ChatKey:       util.GetEnv("AI_CHAT_KEY"),
			ExtractModel:  util.GetEnvString("AI_CHAT_EXTRACT_MODEL", extract.DefaultModel),
			AnswerModel:   util.GetEnvString("AI_CHAT_ANSWER_MODEL", extract.DefaultModel),
			AllowedModels: util.GetEnvList("AI_ALLOWED_MODELS", extract.DefaultAllowedModels),
			Timeout:       util.GetEnvDuration("AI_TIMEOUT", extract.DefaultTimeout),
			ParallelReq:   int64(util.GetEnvInt("AI_PARALLEL_REQ", 1)),
		},
		Extract: ExtractConfig{
			Version:          util.GetEnvString("EXTRACTOR_VERSION", extract.DefaultVersion),
			MinNELConfidence: util.GetEnvNumeric("NEL_MIN_CONFIDENCE", nel.DefaultMinConfidence),
			Backlog: graph.BacklogOptions{
				BatchSize:  util.GetEnvInt("EXTRACT_BATCH_SIZE", graph.DefaultBatchSize),
				MaxBatches: util.GetEnvInt("EXTRACT_MAX_BATCHES", graph.DefaultMaxBatches),
				RetryAfter: time.Duration(util.GetEnvInt("EXTRACT_RETRY_AFTER_MINUTES", int(graph.DefaultRetryAfter/time.Minute))) * time.Minute,
			},
		},
		Analytics: AnalyticsConfig{
			Correlation: analytics.CorrelationOptions{
				WindowDays:    util.GetEnvInt("CORRELATION_WINDOW_DAYS", analytics.DefaultCorrelationWindow),
				MinOverlap:    util.GetEnvInt("CORRELATION_MIN_OVERLAP", analytics.DefaultMinOverlap),
				Threshold:     util.GetEnvNumeric("CORRELATION_THRESHOLD", analytics.DefaultCorrThreshold),
				MinEdges:      util.GetEnvInt("CORRELATION_MIN_EDGES", analytics.DefaultMinEdges),
				MaxLag:        util.GetEnvInt("CORRELATION_MAX_LAG", analytics.DefaultMaxLag),
				LeadThreshold: util.GetEnvNumeric("CORRELATION_LEAD_THRESHOLD", analytics.DefaultLeadThreshold),
			},
			Impact: analytics.ImpactOptions{
				WindowDays: util.GetEnvInt("IMPACT_WINDOW_DAYS", analytics.DefaultImpactWindow),
				MaxGapDays: util.GetEnvInt("IMPACT_MAX_GAP_DAYS", analytics.DefaultImpactMaxGap),
			},
			Recalibrate: analytics.RecalibrateOptions{
				WindowDays: util.GetEnvInt("RECALIBRATE_WINDOW_DAYS", analytics.DefaultRecalibrationWindow),
				MinSupport: util.GetEnvInt("RECALIBRATE_MIN_SUPPORT", analytics.DefaultMinSupport),
			},
			Stories: analytics.StoryOptions{
				WindowDays:  util.GetEnvInt("STORY_WINDOW_DAYS", analytics.DefaultStoryWindow),
				BucketDays:  util.GetEnvInt("STORY_BUCKET_DAYS", analytics.DefaultStoryBucket),
				MinDocs:     util.GetEnvInt("STORY_MIN_DOCS", analytics.DefaultStoryMinDocs),
				MinStories:  util.GetEnvInt("STORY_MIN_STORIES", analytics.DefaultStoryMinStories),
				MaxAttempts: util.GetEnvInt("STORY_MAX_ATTEMPTS", analytics.DefaultStoryMaxAttempts),
			},
			MacroState: analytics.MacroStateOptions{
				LookbackDays: util.GetEnvInt("MACRO_STATE_LOOKBACK_DAYS", analytics.DefaultStateLookback),
			},
			SyncLookback: util.GetEnvDuration("SYNC_LOOKBACK", 30*24*time.Hour),
		},
		Queue: QueueConfig{
			User:       util.GetEnvString("RABBITMQ_USER", "guest"),
			Password:   util.GetEnvString("RABBITMQ_PASSWORD", "guest"),
			Host:       util.GetEnvString("RABBITMQ_HOST", "localhost"),
			Port:       util.GetEnvString("RABBITMQ_PORT", "5672"),
			Name:       util.GetEnvString("RABBITMQ_JOBS_QUEUE", "jobs_queue"),
			RetryDelay: util.GetEnvDuration("RABBITMQ_RETRY_DELAY", 30*time.Second),
			MaxRetries: util.GetEnvInt("RABBITMQ_MAX_RETRIES", 3),
		},
		S3: storage.S3Config{
			Region:    util.GetEnvString("AWS_REGION", "us-east-1"),
			Endpoint:  util.GetEnv("AWS_ENDPOINT"),
			AccessKey: util.GetEnv("AWS_ACCESS_KEY"),
			SecretKey: util.GetEnv("AWS_SECRET_KEY"),
			Bucket:    util.GetEnv("AWS_BUCKET"),
		},
		Cron: map[string]string{},
		Files: FileConfig{
			Normalization: util.GetEnv("NORMALIZATION_FILE"),
			Alias:         util.GetEnv("ALIAS_FILE"),
			Golden:        util.GetEnvString("GOLDEN_FILE", "data/golden.yaml"),
		},
		Source: SourceConfig{
			NewsTable:        util.GetEnv("SOURCE_NEWS_TABLE"),
			ObservationTable: util.GetEnv("SOURCE_OBSERVATION_TABLE"),
		},
	}
	for job, spec := range DefaultCron {
		if v, ok := os.LookupEnv(CronEnv(job)); ok {
			spec = v
		}
		cfg.Cron[job] = spec
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
