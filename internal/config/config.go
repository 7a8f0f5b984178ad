// Package config defines all configuration structures for the AgriBot NLU
// service.  No I/O or parsing logic lives here, only plain data types and
// validation.
package config

import (
	"fmt"
	"time"

	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/database/postgres"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/database/redis"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/storage/minio"
	"github.com/turtacn/AgriBot-NLU/internal/intelligence/agri_extractor"
	"github.com/turtacn/AgriBot-NLU/internal/intelligence/phobert"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// APIKeys, when set, are required in X-API-Key on /api/v1.
	APIKeys     []string `mapstructure:"api_keys"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// Addr returns host:port for net/http.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Model backends.
const (
	BackendHugot   = "hugot"
	BackendSidecar = "sidecar"
	BackendNone    = "none"
)

// ModelConfig selects and locates the token and intent classifiers.
type ModelConfig struct {
	// Backend: "hugot" runs ONNX in process, "sidecar" calls the Python
	// service, "none" answers from rules and keywords only.
	Backend string `mapstructure:"backend"`

	// ModelDir holds model.onnx, tokenizer.json and label_mapping.json of
	// the NER model.
	ModelDir         string `mapstructure:"model_dir"`
	IntentModelDir   string `mapstructure:"intent_model_dir"`
	LabelMappingPath string `mapstructure:"label_mapping_path"`
	Version          string `mapstructure:"version"`

	// SyncOnStart mirrors ArtifactPrefix from the model bucket into
	// ModelDir before the pipelines load.
	SyncOnStart          bool   `mapstructure:"sync_on_start"`
	ArtifactPrefix       string `mapstructure:"artifact_prefix"`
	IntentArtifactPrefix string `mapstructure:"intent_artifact_prefix"`

	Sidecar phobert.SidecarConfig `mapstructure:"sidecar"`
}

// NLUConfig bounds the public operations.
type NLUConfig struct {
	MaxTextLength int           `mapstructure:"max_text_length"`
	MaxBatchSize  int           `mapstructure:"max_batch_size"`
	DefaultTopK   int           `mapstructure:"default_top_k"`
	CacheEnabled  bool          `mapstructure:"cache_enabled"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	AuditEnabled  bool          `mapstructure:"audit_enabled"`
	PublishEvents bool          `mapstructure:"publish_events"`

	Extractor agri_extractor.ExtractorConfig `mapstructure:"extractor"`
}

// DatabaseConfig holds the audit-log PostgreSQL settings.
type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
	MigrationsPath string `mapstructure:"migrations_path"` // empty: embedded migrations

	postgres.PostgresConfig `mapstructure:",squash"`
}

// KafkaConfig holds event-bus settings shared by the producer and the worker.
type KafkaConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Brokers         []string      `mapstructure:"brokers"`
	GroupID         string        `mapstructure:"group_id"`
	InputTopic      string        `mapstructure:"input_topic"`
	OutputTopic     string        `mapstructure:"output_topic"`
	ExtractionTopic string        `mapstructure:"extraction_topic"`
	AutoOffsetReset string        `mapstructure:"auto_offset_reset"` // "earliest" | "latest"
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
	BatchTimeout    time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	Compression     string        `mapstructure:"compression"`

	// SASLMechanism is empty, PLAIN, SCRAM-SHA-256 or SCRAM-SHA-512.
	SASLMechanism string `mapstructure:"sasl_mechanism"`
	SASLUsername  string `mapstructure:"sasl_username"`
	SASLPassword  string `mapstructure:"sasl_password"`
	TLSEnabled    bool   `mapstructure:"tls_enabled"`
	TLSCAPath     string `mapstructure:"tls_ca_path"`
}

// MinIOConfig holds model-artifact storage settings.
type MinIOConfig struct {
	Enabled bool `mapstructure:"enabled"`

	minio.MinIOConfig `mapstructure:",squash"`
}

// GRPCConfig holds the optional gRPC listener of the API server.
type GRPCConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`

	// Reflection registers the reflection service for grpcurl.
	Reflection      bool          `mapstructure:"reflection"`
	MaxRecvMsgSize  int           `mapstructure:"max_recv_msg_size"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`

	// HealthInterval is how often readiness is pushed into grpc.health.v1.
	HealthInterval time.Duration `mapstructure:"health_interval"`
}

// Addr returns the listen address in host:port form.
func (g GRPCConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// RateLimitConfig holds per-client token-bucket settings.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`

	prometheus.CollectorConfig `mapstructure:",squash"`
}

// WorkerConfig holds chat-message worker settings.
type WorkerConfig struct {
	Concurrency   int           `mapstructure:"concurrency"`
	DedupClaimTTL time.Duration `mapstructure:"dedup_claim_ttl"`
	DedupDoneTTL  time.Duration `mapstructure:"dedup_done_ttl"`
	DefaultTopK   int           `mapstructure:"default_top_k"`

	// Timeout bounds one message analysis.
	Timeout time.Duration `mapstructure:"timeout"`

	// HealthPort serves /healthz, /readyz and /metrics.
	HealthPort int `mapstructure:"health_port"`

	EnsureTopics     bool `mapstructure:"ensure_topics"`
	TopicReplication int  `mapstructure:"topic_replication"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure. Every infrastructure component
// and application service reads its settings from the relevant sub-struct.
type Config struct {
	Server    ServerConfig      `mapstructure:"server"`
	GRPC      GRPCConfig        `mapstructure:"grpc"`
	Log       logging.LogConfig `mapstructure:"log"`
	Model     ModelConfig       `mapstructure:"model"`
	NLU       NLUConfig         `mapstructure:"nlu"`
	Redis     redis.RedisConfig `mapstructure:"redis"`
	Database  DatabaseConfig    `mapstructure:"database"`
	Kafka     KafkaConfig       `mapstructure:"kafka"`
	MinIO     MinIOConfig       `mapstructure:"minio"`
	RateLimit RateLimitConfig   `mapstructure:"ratelimit"`
	Metrics   MetricsConfig     `mapstructure:"metrics"`
	Worker    WorkerConfig      `mapstructure:"worker"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered; callers should treat any error as
// fatal and refuse to start.
func (c *Config) Validate() error {
	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}
	for i, k := range c.Server.APIKeys {
		if len(k) < 16 {
			return fmt.Errorf("config: server.api_keys[%d] must be at least 16 characters", i)
		}
	}

	// Model
	switch c.Model.Backend {
	case BackendHugot:
		if c.Model.ModelDir == "" {
			return fmt.Errorf("config: model.model_dir is required for the hugot backend")
		}
	case BackendSidecar:
		if c.Model.Sidecar.BaseURL == "" {
			return fmt.Errorf("config: model.sidecar.base_url is required for the sidecar backend")
		}
	case BackendNone:
	default:
		return fmt.Errorf("config: model.backend %q is invalid; expected hugot|sidecar|none", c.Model.Backend)
	}
	if c.Model.SyncOnStart {
		if !c.MinIO.Enabled {
			return fmt.Errorf("config: model.sync_on_start requires minio.enabled")
		}
		if c.Model.ArtifactPrefix == "" {
			return fmt.Errorf("config: model.artifact_prefix is required when model.sync_on_start is set")
		}
	}

	// NLU
	if c.NLU.MaxTextLength < 1 {
		return fmt.Errorf("config: nlu.max_text_length must be ≥ 1, got %d", c.NLU.MaxTextLength)
	}
	if c.NLU.MaxBatchSize < 1 {
		return fmt.Errorf("config: nlu.max_batch_size must be ≥ 1, got %d", c.NLU.MaxBatchSize)
	}
	if c.NLU.DefaultTopK < 1 {
		return fmt.Errorf("config: nlu.default_top_k must be ≥ 1, got %d", c.NLU.DefaultTopK)
	}
	if c.NLU.Extractor.BatchConcurrency < 1 {
		return fmt.Errorf("config: nlu.extractor.batch_concurrency must be ≥ 1, got %d", c.NLU.Extractor.BatchConcurrency)
	}
	if c.NLU.CacheEnabled && !c.Redis.Enabled {
		return fmt.Errorf("config: nlu.cache_enabled requires redis.enabled")
	}
	if c.NLU.AuditEnabled && !c.Database.Enabled {
		return fmt.Errorf("config: nlu.audit_enabled requires database.enabled")
	}
	if c.NLU.PublishEvents && !c.Kafka.Enabled {
		return fmt.Errorf("config: nlu.publish_events requires kafka.enabled")
	}

	// Redis
	if c.Redis.Enabled {
		switch c.Redis.Mode {
		case "standalone":
			if c.Redis.Addr == "" {
				return fmt.Errorf("config: redis.addr is required")
			}
		case "sentinel":
			if c.Redis.MasterName == "" || len(c.Redis.SentinelAddrs) == 0 {
				return fmt.Errorf("config: redis.master_name and redis.sentinel_addrs are required in sentinel mode")
			}
		case "cluster":
			if len(c.Redis.ClusterAddrs) == 0 {
				return fmt.Errorf("config: redis.cluster_addrs is required in cluster mode")
			}
		default:
			return fmt.Errorf("config: redis.mode %q is invalid; expected standalone|sentinel|cluster", c.Redis.Mode)
		}
		if c.Redis.DB < 0 {
			return fmt.Errorf("config: redis.db must be ≥ 0, got %d", c.Redis.DB)
		}
	}

	// Database
	if c.Database.Enabled {
		if c.Database.Host == "" {
			return fmt.Errorf("config: database.host is required")
		}
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
		}
		if c.Database.Username == "" {
			return fmt.Errorf("config: database.username is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("config: database.database is required")
		}
	}

	// Kafka
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
		}
		if c.Kafka.GroupID == "" {
			return fmt.Errorf("config: kafka.group_id is required")
		}
		switch c.Kafka.AutoOffsetReset {
		case "earliest", "latest":
		default:
			return fmt.Errorf("config: kafka.auto_offset_reset %q is invalid; expected earliest|latest", c.Kafka.AutoOffsetReset)
		}
		switch c.Kafka.SASLMechanism {
		case "":
		case "PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512":
			if c.Kafka.SASLUsername == "" || c.Kafka.SASLPassword == "" {
				return fmt.Errorf("config: kafka.sasl_username and kafka.sasl_password are required for %s", c.Kafka.SASLMechanism)
			}
		default:
			return fmt.Errorf("config: kafka.sasl_mechanism %q is invalid; expected PLAIN|SCRAM-SHA-256|SCRAM-SHA-512", c.Kafka.SASLMechanism)
		}
	}

	// MinIO
	if c.MinIO.Enabled && c.MinIO.Endpoint == "" {
		return fmt.Errorf("config: minio.endpoint is required")
	}

	// Rate limit
	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("config: ratelimit.requests_per_second must be > 0")
		}
		if c.RateLimit.Burst < 1 {
			return fmt.Errorf("config: ratelimit.burst must be ≥ 1, got %d", c.RateLimit.Burst)
		}
	}

	// Metrics
	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		return fmt.Errorf("config: metrics.namespace is required")
	}

	// gRPC
	if c.GRPC.Enabled {
		if c.GRPC.Port < 1 || c.GRPC.Port > 65535 {
			return fmt.Errorf("config: grpc.port %d is out of range [1, 65535]", c.GRPC.Port)
		}
		if c.GRPC.Port == c.Server.Port && c.GRPC.Host == c.Server.Host {
			return fmt.Errorf("config: grpc.port %d collides with server.port", c.GRPC.Port)
		}
	}

	// Worker
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("config: worker.concurrency must be ≥ 1, got %d", c.Worker.Concurrency)
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}

//Personal.AI order the ending
