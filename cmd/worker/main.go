// Command worker consumes chat messages from Kafka, analyses them and
// publishes the NLU results.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/turtacn/AgriBot-NLU/internal/application/nlu"
	"github.com/turtacn/AgriBot-NLU/internal/bootstrap"
	"github.com/turtacn/AgriBot-NLU/internal/config"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/database/redis"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/prometheus"
	httpserver "github.com/turtacn/AgriBot-NLU/internal/interfaces/http"
	"github.com/turtacn/AgriBot-NLU/internal/interfaces/http/handlers"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

const (
	startupTimeout = 2 * time.Minute
	topicTimeout   = 30 * time.Second
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: AGRINLU_* environment)")
	workerCount := flag.Int("workers", 0, "number of consumers in the group (overrides worker.concurrency)")
	flag.Parse()

	cfg, err := config.LoadOrEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *workerCount > 0 {
		cfg.Worker.Concurrency = *workerCount
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger = logger.With(logging.String("service", "worker"))

	logger.Info("starting AgriBot NLU worker",
		logging.String("version", version),
		logging.String("commit", commit),
		logging.Int("workers", cfg.Worker.Concurrency),
		logging.String("input_topic", cfg.Kafka.InputTopic),
		logging.String("output_topic", cfg.Kafka.OutputTopic))

	if err := run(cfg, logger); err != nil {
		logger.Error("worker failed", logging.Err(err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

func run(cfg *config.Config, logger logging.Logger) error {
	if !cfg.Kafka.Enabled {
		return fmt.Errorf("kafka.enabled must be set for the worker")
	}

	var collector prometheus.MetricsCollector
	if cfg.Metrics.Enabled {
		c, err := prometheus.NewMetricsCollector(cfg.Metrics.CollectorConfig, logger)
		if err != nil {
			return fmt.Errorf("metrics collector: %w", err)
		}
		collector = c
	}

	startCtx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	rt, err := bootstrap.Build(startCtx, cfg, logger, bootstrap.Options{Collector: collector})
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("runtime close failed", logging.Err(err))
		}
	}()

	if cfg.Worker.EnsureTopics {
		if err := ensureTopics(cfg, logger); err != nil {
			return err
		}
	}

	var dedup nlu.Deduplicator
	if rt.Redis != nil {
		dedup = redis.NewDeduplicator(rt.Redis, cfg.Worker.DedupClaimTTL, cfg.Worker.DedupDoneTTL, logger)
	} else {
		logger.Warn("redis disabled, redelivered messages will be analysed again")
	}

	processor := nlu.NewChatMessageProcessor(rt.Service, rt.Producer, dedup, nlu.ProcessorConfig{
		OutputTopic: cfg.Kafka.OutputTopic,
		DefaultTopK: cfg.Worker.DefaultTopK,
		Timeout:     cfg.Worker.Timeout,
	}, logger)

	var recorder kafka.MessageRecorder
	if rt.Metrics != nil {
		recorder = rt.Metrics
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// The consumers share one group; the producer also carries dead letters.
	consumers := make([]*kafka.Consumer, 0, cfg.Worker.Concurrency)
	defer func() {
		for _, c := range consumers {
			if err := c.Close(); err != nil {
				logger.Warn("consumer close failed", logging.Err(err))
			}
		}
	}()
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		c, err := kafka.NewConsumer(bootstrap.ConsumerConfig(cfg.Kafka), rt.Producer, recorder,
			logger.With(logging.Int("consumer", i)))
		if err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		consumers = append(consumers, c)
		if err := c.Subscribe(cfg.Kafka.InputTopic, processor.Handle); err != nil {
			return err
		}
		if err := c.Start(ctx); err != nil {
			return err
		}
	}

	healthCfg := config.ServerConfig{Port: cfg.Worker.HealthPort, ShutdownTimeout: 5 * time.Second}
	routerCfg := httpserver.RouterConfig{
		HealthHandler: handlers.NewHealthHandler(version, rt),
		Logger:        logger,
	}
	if collector != nil {
		routerCfg.MetricsHandler = collector.Handler()
	}
	health := httpserver.NewServer(healthCfg, httpserver.NewRouter(routerCfg), logger)
	errCh := make(chan error, 1)
	go func() { errCh <- health.Start() }()

	logger.Info("worker pool started",
		logging.Int("consumers", len(consumers)),
		logging.Bool("dedup", dedup != nil),
		logging.Int("health_port", cfg.Worker.HealthPort))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", logging.String("signal", sig.String()))
	case err := <-errCh:
		return err
	}

	// Consumers finish their in-flight message before the producer closes.
	stop()
	if err := health.Stop(context.Background()); err != nil {
		logger.Warn("health server shutdown failed", logging.Err(err))
	}
	return nil
}

// ensureTopics creates the service topics and the input dead-letter topic.
func ensureTopics(cfg *config.Config, logger logging.Logger) error {
	tm, err := kafka.NewTopicManager(cfg.Kafka.Brokers, logger)
	if err != nil {
		return fmt.Errorf("kafka topic manager: %w", err)
	}
	defer tm.Close()

	ctx, cancel := context.WithTimeout(context.Background(), topicTimeout)
	defer cancel()
	topics := kafka.ServiceTopics(cfg.Kafka.InputTopic, cfg.Kafka.OutputTopic, cfg.Kafka.ExtractionTopic, cfg.Worker.TopicReplication)
	if err := tm.EnsureTopics(ctx, topics); err != nil {
		return fmt.Errorf("ensure topics: %w", err)
	}
	return nil
}

//Personal.AI order the ending
