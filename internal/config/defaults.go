package config

import (
	"time"

	"github.com/turtacn/AgriBot-NLU/internal/intelligence/agri_extractor"
	"github.com/turtacn/AgriBot-NLU/internal/intelligence/phobert"
)

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerPort = 8080
	DefaultServerMode = "release"

	DefaultModelBackend   = BackendHugot
	DefaultModelDir       = "./models/phobert-ner"
	DefaultIntentModelDir = "./models/phobert-intent"
	DefaultArtifactPrefix = "ner/latest/"

	DefaultMaxTextLength = 2000
	DefaultMaxBatchSize  = 32
	DefaultTopK          = 3
	DefaultCacheTTL      = 10 * time.Minute

	DefaultRedisAddr = "localhost:6379"

	DefaultDBHost = "localhost"
	DefaultDBPort = 5432
	DefaultDBName = "agribot_nlu"

	DefaultKafkaBroker          = "localhost:9092"
	DefaultKafkaGroupID         = "agribot-nlu-worker"
	DefaultKafkaInputTopic      = "agribot.chat.message.received"
	DefaultKafkaOutputTopic     = "agribot.nlu.analysis.completed"
	DefaultKafkaExtractionTopic = "agribot.nlu.entities.extracted"

	DefaultMinIOEndpoint = "localhost:9000"

	DefaultRateLimitRPS   = 20
	DefaultRateLimitBurst = 40

	DefaultMetricsNamespace = "agrinlu"
	DefaultMetricsPath      = "/metrics"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultGRPCPort            = 9090
	DefaultGRPCMaxRecvMsgSize  = 4 << 20
	DefaultGRPCGracefulTimeout = 10 * time.Second
	DefaultGRPCHealthInterval  = 10 * time.Second

	DefaultWorkerConcurrency = 4
	DefaultWorkerHealthPort  = 8081
	DefaultWorkerTimeout     = 30 * time.Second
)

// Defaults returns a Config populated with every default, including the
// boolean switches that ApplyDefaults cannot infer from zero values.
func Defaults() *Config {
	cfg := &Config{}
	cfg.Model.Sidecar = phobert.DefaultSidecarConfig()
	cfg.NLU.Extractor = agri_extractor.DefaultExtractorConfig()
	cfg.NLU.CacheEnabled = true
	cfg.Redis.Enabled = true
	cfg.RateLimit.Enabled = true
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableGoMetrics = true
	cfg.Metrics.EnableProcessMetrics = true
	cfg.Database.AutoMigrate = true
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every zero-value field in cfg with the default. Fields
// that have already been set (non-zero values) are left unchanged so that
// explicit configuration always wins.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = 1 << 20
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	// ── Model ─────────────────────────────────────────────────────────────────
	if cfg.Model.Backend == "" {
		cfg.Model.Backend = DefaultModelBackend
	}
	if cfg.Model.ModelDir == "" {
		cfg.Model.ModelDir = DefaultModelDir
	}
	if cfg.Model.IntentModelDir == "" {
		cfg.Model.IntentModelDir = DefaultIntentModelDir
	}
	if cfg.Model.ArtifactPrefix == "" {
		cfg.Model.ArtifactPrefix = DefaultArtifactPrefix
	}
	if cfg.Model.Sidecar.Timeout == 0 {
		cfg.Model.Sidecar.Timeout = 5 * time.Second
	}
	if cfg.Model.Sidecar.ModelName == "" {
		cfg.Model.Sidecar.ModelName = "phobert-sidecar"
	}

	// ── NLU ───────────────────────────────────────────────────────────────────
	if cfg.NLU.MaxTextLength == 0 {
		cfg.NLU.MaxTextLength = DefaultMaxTextLength
	}
	if cfg.NLU.MaxBatchSize == 0 {
		cfg.NLU.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.NLU.DefaultTopK == 0 {
		cfg.NLU.DefaultTopK = DefaultTopK
	}
	if cfg.NLU.CacheTTL == 0 {
		cfg.NLU.CacheTTL = DefaultCacheTTL
	}
	if cfg.NLU.Extractor.BatchConcurrency == 0 {
		cfg.NLU.Extractor.BatchConcurrency = agri_extractor.DefaultExtractorConfig().BatchConcurrency
	}
	if cfg.NLU.Extractor.ModelTimeout == 0 {
		cfg.NLU.Extractor.ModelTimeout = agri_extractor.DefaultExtractorConfig().ModelTimeout
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Mode == "" {
		cfg.Redis.Mode = "standalone"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	// DB is an int; 0 is a valid explicit value and also the default.

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.Database == "" {
		cfg.Database.Database = DefaultDBName
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.InputTopic == "" {
		cfg.Kafka.InputTopic = DefaultKafkaInputTopic
	}
	if cfg.Kafka.OutputTopic == "" {
		cfg.Kafka.OutputTopic = DefaultKafkaOutputTopic
	}
	if cfg.Kafka.ExtractionTopic == "" {
		cfg.Kafka.ExtractionTopic = DefaultKafkaExtractionTopic
	}
	if cfg.Kafka.AutoOffsetReset == "" {
		cfg.Kafka.AutoOffsetReset = "earliest"
	}
	if cfg.Kafka.MaxRetries == 0 {
		cfg.Kafka.MaxRetries = 3
	}
	if cfg.Kafka.RetryBackoff == 0 {
		cfg.Kafka.RetryBackoff = 200 * time.Millisecond
	}
	if cfg.Kafka.MaxRetryBackoff == 0 {
		cfg.Kafka.MaxRetryBackoff = 5 * time.Second
	}
	if cfg.Kafka.BatchTimeout == 0 {
		cfg.Kafka.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.Kafka.WriteTimeout == 0 {
		cfg.Kafka.WriteTimeout = 10 * time.Second
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}

	// ── Rate limit ────────────────────────────────────────────────────────────
	if cfg.RateLimit.RequestsPerSecond == 0 {
		cfg.RateLimit.RequestsPerSecond = DefaultRateLimitRPS
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = DefaultRateLimitBurst
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	// ── gRPC ──────────────────────────────────────────────────────────────────
	if cfg.GRPC.Host == "" {
		cfg.GRPC.Host = cfg.Server.Host
	}
	if cfg.GRPC.Port == 0 {
		cfg.GRPC.Port = DefaultGRPCPort
	}
	if cfg.GRPC.MaxRecvMsgSize == 0 {
		cfg.GRPC.MaxRecvMsgSize = DefaultGRPCMaxRecvMsgSize
	}
	if cfg.GRPC.GracefulTimeout == 0 {
		cfg.GRPC.GracefulTimeout = DefaultGRPCGracefulTimeout
	}
	if cfg.GRPC.HealthInterval == 0 {
		cfg.GRPC.HealthInterval = DefaultGRPCHealthInterval
	}

	// ── Worker ────────────────────────────────────────────────────────────────
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = DefaultWorkerConcurrency
	}
	if cfg.Worker.DedupClaimTTL == 0 {
		cfg.Worker.DedupClaimTTL = 2 * time.Minute
	}
	if cfg.Worker.DedupDoneTTL == 0 {
		cfg.Worker.DedupDoneTTL = 24 * time.Hour
	}
	if cfg.Worker.DefaultTopK == 0 {
		cfg.Worker.DefaultTopK = DefaultTopK
	}
	if cfg.Worker.Timeout == 0 {
		cfg.Worker.Timeout = DefaultWorkerTimeout
	}
	if cfg.Worker.HealthPort == 0 {
		cfg.Worker.HealthPort = DefaultWorkerHealthPort
	}
	if cfg.Worker.TopicReplication == 0 {
		cfg.Worker.TopicReplication = 1
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

//Personal.AI order the ending
