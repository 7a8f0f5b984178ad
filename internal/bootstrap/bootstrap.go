// Package bootstrap wires configuration into a ready NLU runtime shared by
// the API server, the worker and the CLI.
package bootstrap

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/turtacn/AgriBot-NLU/internal/application/nlu"
	"github.com/turtacn/AgriBot-NLU/internal/config"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/database/postgres"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/database/redis"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/storage/minio"
	"github.com/turtacn/AgriBot-NLU/internal/intelligence/agri_extractor"
	"github.com/turtacn/AgriBot-NLU/internal/intelligence/common"
	"github.com/turtacn/AgriBot-NLU/internal/intelligence/phobert"
)

// Options adjust what Build connects to.
type Options struct {
	// RulesOnly skips the configured model backend.
	RulesOnly bool

	// Offline skips Redis, PostgreSQL and Kafka; the service runs without
	// cache, audit log or events. MinIO is still used for model sync.
	Offline bool

	// Collector receives the service and model metrics. Nil disables them.
	Collector prometheus.MetricsCollector

	// ModelMetrics replaces the model metrics derived from Collector.
	ModelMetrics common.ModelMetrics
}

// Runtime holds the built service and the clients it owns.
type Runtime struct {
	Config    *config.Config
	Logger    logging.Logger
	Service   nlu.Service
	Extractor *agri_extractor.Extractor
	Metrics   *prometheus.NLUMetrics

	Redis    *redis.Client
	DB       *postgres.Connection
	Producer *kafka.Producer
	Store    *minio.ModelStore
	Fetcher  *phobert.ModelFetcher

	checks  []nlu.HealthCheck
	closers []func() error
}

// Build connects every enabled component and assembles the NLU service. On
// error everything opened so far is closed.
func Build(ctx context.Context, cfg *config.Config, logger logging.Logger, opts Options) (rt *Runtime, err error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	rt = &Runtime{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = rt.Close()
			rt = nil
		}
	}()

	modelMetrics := opts.ModelMetrics
	if opts.Collector != nil {
		rt.Metrics = prometheus.NewNLUMetrics(opts.Collector)
		if modelMetrics == nil {
			if modelMetrics, err = common.NewPrometheusModelMetrics(opts.Collector.Registerer()); err != nil {
				return nil, fmt.Errorf("model metrics: %w", err)
			}
		}
	}
	if modelMetrics == nil {
		modelMetrics = common.NewNoopModelMetrics()
	}
	kv := logging.NewKVAdapter(logger.Named("model"))

	if cfg.MinIO.Enabled {
		if err = rt.connectMinIO(ctx, modelMetrics, kv); err != nil {
			return nil, err
		}
		if cfg.Model.SyncOnStart && !opts.RulesOnly && cfg.Model.Backend == config.BackendHugot {
			if err = rt.syncModels(ctx); err != nil {
				return nil, err
			}
		}
	}

	vocab, err := loadVocabulary(cfg.Model, opts.RulesOnly)
	if err != nil {
		return nil, err
	}

	tokens, intentModel, err := rt.buildModels(cfg.Model, vocab, opts.RulesOnly, modelMetrics, kv)
	if err != nil {
		return nil, err
	}

	intent := phobert.NewFallbackIntentClassifier(intentModel, kv)
	if rt.Metrics != nil {
		intent.OnFallback(rt.Metrics.RecordIntentFallback)
	}
	rt.closers = append(rt.closers, intent.Close)

	var extractorMetrics agri_extractor.Metrics
	if rt.Metrics != nil {
		extractorMetrics = rt.Metrics
	}
	engine := agri_extractor.NewEngine(agri_extractor.WithVocabulary(vocab))
	rt.Extractor = agri_extractor.NewExtractor(engine, tokens, cfg.NLU.Extractor, extractorMetrics, kv)

	if tokens != nil {
		rt.checks = append(rt.checks, nlu.HealthCheck{Name: "model", Critical: true, Check: tokens.Healthy})
	}

	deps := nlu.Deps{
		Extractor: rt.Extractor,
		Intent:    intent,
		Logger:    logger,
	}
	if rt.Metrics != nil {
		deps.Metrics = rt.Metrics
	}
	if !opts.Offline {
		if err = rt.connectInfra(ctx, &deps); err != nil {
			return nil, err
		}
	}
	deps.Checks = rt.checks

	rt.Service, err = nlu.NewService(nlu.Config{
		MaxTextLength:    cfg.NLU.MaxTextLength,
		MaxBatchSize:     cfg.NLU.MaxBatchSize,
		DefaultTopK:      cfg.NLU.DefaultTopK,
		CacheTTL:         cfg.NLU.CacheTTL,
		BatchConcurrency: cfg.NLU.Extractor.BatchConcurrency,
		ExtractionTopic:  cfg.Kafka.ExtractionTopic,
		ModelName:        modelName(cfg.Model, tokens),
	}, deps)
	if err != nil {
		return nil, err
	}

	logger.Info("NLU runtime ready",
		logging.String("backend", backendName(cfg.Model, opts.RulesOnly)),
		logging.Int("labels", vocab.Len()),
		logging.Bool("cache", deps.Cache != nil),
		logging.Bool("audit", deps.Audit != nil),
		logging.Bool("events", deps.Events != nil))
	return rt, nil
}

// Close releases every client in reverse order of creation.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return stderrors.Join(errs...)
}

// Readiness runs the service probes and mirrors each result into the health
// gauge when metrics are enabled.
func (rt *Runtime) Readiness(ctx context.Context) *nlu.ReadinessReport {
	report := rt.Service.Readiness(ctx)
	if rt.Metrics != nil {
		for name, c := range report.Components {
			rt.Metrics.SetHealth(name, c.Status == "up")
		}
	}
	return report
}

func (rt *Runtime) connectMinIO(ctx context.Context, metrics common.ModelMetrics, kv common.Logger) error {
	client, err := minio.NewMinIOClient(&rt.Config.MinIO.MinIOConfig, rt.Logger)
	if err != nil {
		return fmt.Errorf("minio: %w", err)
	}
	rt.closers = append(rt.closers, client.Close)
	if err := client.EnsureBuckets(ctx); err != nil {
		return fmt.Errorf("minio buckets: %w", err)
	}
	rt.Store = minio.NewModelStore(client, rt.Logger)
	rt.Fetcher = phobert.NewModelFetcher(rt.Store, metrics, kv)
	rt.checks = append(rt.checks, nlu.HealthCheck{Name: "minio", Check: func(ctx context.Context) error {
		_, err := client.HealthCheck(ctx)
		return err
	}})
	return nil
}

// syncModels mirrors the configured artifact prefixes into the model
// directories.
func (rt *Runtime) syncModels(ctx context.Context) error {
	m := rt.Config.Model
	if _, err := rt.Fetcher.Sync(ctx, m.ArtifactPrefix, m.ModelDir); err != nil {
		return err
	}
	if m.IntentArtifactPrefix != "" && m.IntentModelDir != "" {
		if _, err := rt.Fetcher.Sync(ctx, m.IntentArtifactPrefix, m.IntentModelDir); err != nil {
			return err
		}
	}
	return nil
}

func (rt *Runtime) buildModels(m config.ModelConfig, vocab *agri_extractor.LabelVocabulary, rulesOnly bool,
	metrics common.ModelMetrics, kv common.Logger) (common.TokenClassifier, common.IntentClassifier, error) {
	if rulesOnly {
		return nil, nil, nil
	}
	switch m.Backend {
	case config.BackendHugot:
		session, err := phobert.NewSession()
		if err != nil {
			return nil, nil, err
		}
		rt.closers = append(rt.closers, session.Close)

		tokens, err := phobert.NewHugotTokenClassifier(session,
			phobert.HugotConfig{Name: "ner", ModelPath: m.ModelDir, Version: m.Version}, vocab, metrics, kv)
		if err != nil {
			return nil, nil, err
		}
		rt.closers = append(rt.closers, tokens.Close)

		if m.IntentModelDir == "" || !dirExists(m.IntentModelDir) {
			rt.Logger.Warn("No intent model directory, intents come from keywords",
				logging.String("dir", m.IntentModelDir))
			return tokens, nil, nil
		}
		intent, err := phobert.NewHugotIntentClassifier(session,
			phobert.HugotConfig{Name: "intent", ModelPath: m.IntentModelDir, Version: m.Version}, nil, metrics)
		if err != nil {
			return nil, nil, err
		}
		return tokens, intent, nil

	case config.BackendSidecar:
		client, err := phobert.NewSidecarClient(m.Sidecar, nil, metrics, kv)
		if err != nil {
			return nil, nil, err
		}
		rt.closers = append(rt.closers, client.Close)
		return client, client, nil
	}
	return nil, nil, nil
}

// connectInfra opens Redis, PostgreSQL and the Kafka producer as enabled and
// fills the optional service dependencies.
func (rt *Runtime) connectInfra(ctx context.Context, deps *nlu.Deps) error {
	cfg := rt.Config

	if cfg.Redis.Enabled {
		client, err := redis.NewClient(&cfg.Redis, rt.Logger)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		rt.Redis = client
		rt.closers = append(rt.closers, client.Close)
		rt.checks = append(rt.checks, nlu.HealthCheck{Name: "redis", Check: client.Ping})
		if cfg.NLU.CacheEnabled {
			deps.Cache = redis.NewRedisCache(client, rt.Logger)
		}
	}

	if cfg.Database.Enabled {
		conn, err := postgres.NewConnection(ctx, cfg.Database.PostgresConfig, rt.Logger)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		rt.DB = conn
		rt.closers = append(rt.closers, conn.Close)
		rt.checks = append(rt.checks, nlu.HealthCheck{Name: "postgres", Check: conn.HealthCheck})
		if cfg.Database.AutoMigrate {
			if err := postgres.RunMigrations(postgres.DSN(cfg.Database.PostgresConfig), cfg.Database.MigrationsPath); err != nil {
				return fmt.Errorf("postgres migrations: %w", err)
			}
		}
		if cfg.NLU.AuditEnabled {
			deps.Audit = repositories.NewExtractionLogRepository(conn, rt.Logger)
		}
	}

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(ProducerConfig(cfg.Kafka), rt.Logger)
		if err != nil {
			return fmt.Errorf("kafka producer: %w", err)
		}
		rt.Producer = producer
		rt.closers = append(rt.closers, producer.Close)
		if cfg.NLU.PublishEvents {
			deps.Events = producer
		}
	}
	return nil
}

// loadVocabulary reads label_mapping.json. An explicit path must load; the
// hugot backend needs the file next to the model; otherwise the built-in
// vocabulary is used.
func loadVocabulary(m config.ModelConfig, rulesOnly bool) (*agri_extractor.LabelVocabulary, error) {
	path := m.LabelMappingPath
	if path == "" && m.Backend == config.BackendHugot && !rulesOnly {
		path = filepath.Join(m.ModelDir, phobert.LabelMappingFile)
	}
	if path == "" {
		return agri_extractor.DefaultLabelVocabulary(), nil
	}
	return agri_extractor.LoadLabelMappingFile(path)
}

func modelName(m config.ModelConfig, tokens common.TokenClassifier) string {
	switch {
	case tokens == nil:
		return "rules"
	case m.Backend == config.BackendSidecar:
		return m.Sidecar.ModelName
	case m.Version != "":
		return "phobert-ner@" + m.Version
	}
	return "phobert-ner"
}

func backendName(m config.ModelConfig, rulesOnly bool) string {
	if rulesOnly {
		return config.BackendNone
	}
	return m.Backend
}

func dirExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

//Personal.AI order the ending
