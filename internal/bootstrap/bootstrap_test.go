package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/AgriBot-NLU/internal/config"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/AgriBot-NLU/internal/intelligence/agri_extractor"
	"github.com/turtacn/AgriBot-NLU/internal/intelligence/common"
)

func offlineConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Model.Backend = config.BackendNone
	return cfg
}

func TestBuild_OfflineRulesOnly(t *testing.T) {
	rt, err := Build(context.Background(), offlineConfig(), nil, Options{Offline: true})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, rt.Close()) })

	assert.Nil(t, rt.Redis)
	assert.Nil(t, rt.DB)
	assert.Nil(t, rt.Producer)
	assert.Nil(t, rt.Metrics)

	res, err := rt.Service.ExtractEntities(context.Background(), "Lúa bị đạo ôn cần phun thuốc trong 3 ngày")
	require.NoError(t, err)
	assert.Equal(t, agri_extractor.PathRulesOnly, res.DecodePath)

	report := rt.Service.Readiness(context.Background())
	assert.True(t, report.Ready)
	assert.Empty(t, report.Components)
}

func TestBuild_KeywordIntentWithoutModel(t *testing.T) {
	rt, err := Build(context.Background(), offlineConfig(), nil, Options{Offline: true, RulesOnly: true})
	require.NoError(t, err)
	defer rt.Close()

	pred, err := rt.Service.ClassifyIntent(context.Background(), "bật máy bơm giúp tôi", 2)
	require.NoError(t, err)
	assert.Equal(t, common.IntentDeviceControl, pred.Intent)
}

func TestBuild_WithCollectorRecordsMetrics(t *testing.T) {
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "test"}, logging.NewNopLogger())
	require.NoError(t, err)

	rt, err := Build(context.Background(), offlineConfig(), nil, Options{Offline: true, Collector: collector})
	require.NoError(t, err)
	defer rt.Close()
	require.NotNil(t, rt.Metrics)

	_, err = rt.Service.Analyze(context.Background(), "giá lúa hôm nay bao nhiêu tiền", 0)
	require.NoError(t, err)
}

func TestBuild_ExplicitLabelMappingMustLoad(t *testing.T) {
	cfg := offlineConfig()
	cfg.Model.LabelMappingPath = filepath.Join(t.TempDir(), "missing.json")

	_, err := Build(context.Background(), cfg, nil, Options{Offline: true})
	assert.Error(t, err)
}

func TestBuild_ExplicitLabelMapping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "label_mapping.json")
	data := `{"label_to_id":{"O":0,"B-CROP":1,"I-CROP":2}}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg := offlineConfig()
	cfg.Model.LabelMappingPath = path
	rt, err := Build(context.Background(), cfg, nil, Options{Offline: true})
	require.NoError(t, err)
	defer rt.Close()

	assert.Len(t, rt.Service.Labels().Labels, 3)
}

func TestBuild_SidecarHealthIsCritical(t *testing.T) {
	cfg := offlineConfig()
	cfg.Model.Backend = config.BackendSidecar
	cfg.Model.Sidecar.BaseURL = "http://127.0.0.1:1"
	cfg.Model.Sidecar.Timeout = 200 * time.Millisecond

	rt, err := Build(context.Background(), cfg, nil, Options{Offline: true})
	require.NoError(t, err)
	defer rt.Close()

	report := rt.Service.Readiness(context.Background())
	assert.False(t, report.Ready)
	require.Contains(t, report.Components, "model")
	assert.True(t, report.Components["model"].Critical)
}

func TestKafkaConfigMapping(t *testing.T) {
	k := config.KafkaConfig{
		Brokers:         []string{"b1:9092"},
		GroupID:         "nlu",
		InputTopic:      "in",
		AutoOffsetReset: "earliest",
		MaxRetries:      3,
		RetryBackoff:    time.Second,
		Compression:     "snappy",
		SASLMechanism:   "PLAIN",
		SASLUsername:    "u",
		SASLPassword:    "p",
	}

	pc := ProducerConfig(k)
	assert.Equal(t, "all", pc.Acks)
	assert.Equal(t, "snappy", pc.CompressionCodec)
	assert.Equal(t, "PLAIN", pc.Security.SASLMechanism)

	cc := ConsumerConfig(k)
	assert.Equal(t, []string{"in"}, cc.Topics)
	assert.Equal(t, "nlu", cc.GroupID)
	assert.Equal(t, 3, cc.RetryConfig.MaxRetries)
	assert.Equal(t, time.Second, cc.RetryConfig.RetryBackoff)
}

//Personal.AI order the ending
