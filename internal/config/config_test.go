package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/AgriBot-NLU/internal/config"
)

func validConfig() *config.Config {
	return config.Defaults()
}

func TestConfig_Validate_Defaults(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestConfig_Validate_Invalid(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(c *config.Config)
		wantMsg string
	}{
		{"port zero", func(c *config.Config) { c.Server.Port = 0 }, "server.port"},
		{"port too large", func(c *config.Config) { c.Server.Port = 70000 }, "server.port"},
		{"server mode", func(c *config.Config) { c.Server.Mode = "prod" }, "server.mode"},
		{"short api key", func(c *config.Config) { c.Server.APIKeys = []string{"secret"} }, "server.api_keys[0]"},
		{"unknown backend", func(c *config.Config) { c.Model.Backend = "triton" }, "model.backend"},
		{"hugot without dir", func(c *config.Config) { c.Model.ModelDir = "" }, "model.model_dir"},
		{"sidecar without url", func(c *config.Config) {
			c.Model.Backend = config.BackendSidecar
			c.Model.Sidecar.BaseURL = ""
		}, "model.sidecar.base_url"},
		{"sync without minio", func(c *config.Config) { c.Model.SyncOnStart = true }, "minio.enabled"},
		{"max text length", func(c *config.Config) { c.NLU.MaxTextLength = 0 }, "nlu.max_text_length"},
		{"max batch size", func(c *config.Config) { c.NLU.MaxBatchSize = -1 }, "nlu.max_batch_size"},
		{"top k", func(c *config.Config) { c.NLU.DefaultTopK = 0 }, "nlu.default_top_k"},
		{"batch concurrency", func(c *config.Config) { c.NLU.Extractor.BatchConcurrency = 0 }, "batch_concurrency"},
		{"cache without redis", func(c *config.Config) { c.Redis.Enabled = false }, "redis.enabled"},
		{"audit without database", func(c *config.Config) { c.NLU.AuditEnabled = true }, "database.enabled"},
		{"events without kafka", func(c *config.Config) { c.NLU.PublishEvents = true }, "kafka.enabled"},
		{"redis mode", func(c *config.Config) { c.Redis.Mode = "ring" }, "redis.mode"},
		{"sentinel without master", func(c *config.Config) { c.Redis.Mode = "sentinel" }, "sentinel"},
		{"cluster without addrs", func(c *config.Config) { c.Redis.Mode = "cluster" }, "redis.cluster_addrs"},
		{"database user", func(c *config.Config) { c.Database.Enabled = true }, "database.username"},
		{"kafka brokers", func(c *config.Config) {
			c.Kafka.Enabled = true
			c.Kafka.Brokers = nil
		}, "kafka.brokers"},
		{"kafka offset reset", func(c *config.Config) {
			c.Kafka.Enabled = true
			c.Kafka.AutoOffsetReset = "middle"
		}, "auto_offset_reset"},
		{"kafka sasl mechanism", func(c *config.Config) {
			c.Kafka.Enabled = true
			c.Kafka.SASLMechanism = "GSSAPI"
		}, "kafka.sasl_mechanism"},
		{"kafka sasl credentials", func(c *config.Config) {
			c.Kafka.Enabled = true
			c.Kafka.SASLMechanism = "PLAIN"
		}, "kafka.sasl_username"},
		{"rate limit rps", func(c *config.Config) { c.RateLimit.RequestsPerSecond = 0 }, "ratelimit.requests_per_second"},
		{"rate limit burst", func(c *config.Config) { c.RateLimit.Burst = 0 }, "ratelimit.burst"},
		{"metrics namespace", func(c *config.Config) { c.Metrics.Namespace = "" }, "metrics.namespace"},
		{"worker concurrency", func(c *config.Config) { c.Worker.Concurrency = 0 }, "worker.concurrency"},
		{"grpc port", func(c *config.Config) {
			c.GRPC.Enabled = true
			c.GRPC.Port = 70000
		}, "grpc.port"},
		{"grpc port collision", func(c *config.Config) {
			c.GRPC.Enabled = true
			c.GRPC.Port = c.Server.Port
		}, "collides with server.port"},
		{"log level", func(c *config.Config) { c.Log.Level = "verbose" }, "log.level"},
		{"log format", func(c *config.Config) { c.Log.Format = "text" }, "log.format"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestConfig_Validate_DisabledSectionsSkipped(t *testing.T) {
	cfg := validConfig()
	cfg.NLU.CacheEnabled = false
	cfg.Redis.Enabled = false
	cfg.Redis.Mode = "bogus"
	cfg.Kafka.Brokers = nil
	cfg.RateLimit.Enabled = false
	cfg.RateLimit.Burst = 0
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_DatabaseEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Enabled = true
	cfg.Database.Username = "agribot"
	cfg.NLU.AuditEnabled = true
	assert.NoError(t, cfg.Validate())
}

func TestServerConfig_Addr(t *testing.T) {
	s := config.ServerConfig{Host: "0.0.0.0", Port: 8080}
	assert.Equal(t, "0.0.0.0:8080", s.Addr())
}

func TestGRPCConfig_Defaults(t *testing.T) {
	cfg := config.Defaults()
	assert.False(t, cfg.GRPC.Enabled)
	assert.Equal(t, config.DefaultGRPCPort, cfg.GRPC.Port)
	assert.Equal(t, cfg.Server.Host, cfg.GRPC.Host)
	assert.Equal(t, cfg.Server.Host+":9090", cfg.GRPC.Addr())
	assert.Equal(t, config.DefaultGRPCHealthInterval, cfg.GRPC.HealthInterval)
}

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)

	assert.Equal(t, config.DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, config.BackendHugot, cfg.Model.Backend)
	assert.Equal(t, 2000, cfg.NLU.MaxTextLength)
	assert.Equal(t, 32, cfg.NLU.MaxBatchSize)
	assert.Equal(t, 3, cfg.NLU.DefaultTopK)
	assert.Equal(t, "standalone", cfg.Redis.Mode)
	assert.Equal(t, []string{config.DefaultKafkaBroker}, cfg.Kafka.Brokers)
	assert.Equal(t, "agribot.chat.message.received", cfg.Kafka.InputTopic)
	assert.Equal(t, "agrinlu", cfg.Metrics.Namespace)
	assert.Equal(t, "info", cfg.Log.Level)

	// Boolean switches are not inferred from zero values.
	assert.False(t, cfg.NLU.Extractor.NormalizeUnicode)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestApplyDefaults_PreserveExistingValues(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Port = 9090
	cfg.NLU.MaxTextLength = 500
	cfg.Kafka.Brokers = []string{"kafka-1:9092", "kafka-2:9092"}

	config.ApplyDefaults(cfg)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 500, cfg.NLU.MaxTextLength)
	assert.Len(t, cfg.Kafka.Brokers, 2)
}

func TestApplyDefaults_Nil(t *testing.T) {
	assert.NotPanics(t, func() { config.ApplyDefaults(nil) })
}

func TestDefaults_Switches(t *testing.T) {
	cfg := config.Defaults()
	assert.True(t, cfg.NLU.Extractor.NormalizeUnicode)
	assert.True(t, cfg.NLU.CacheEnabled)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Database.Enabled)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, "http://localhost:8000", cfg.Model.Sidecar.BaseURL)
}

//Personal.AI order the ending
