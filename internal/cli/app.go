package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/ooddaa/mango-sub002/config"
	"github.com/ooddaa/mango-sub002/pkg/candidate"
	"github.com/ooddaa/mango-sub002/pkg/engine"
	"github.com/ooddaa/mango-sub002/pkg/events"
	"github.com/ooddaa/mango-sub002/pkg/kafka"
	"github.com/ooddaa/mango-sub002/pkg/redis"
	"github.com/ooddaa/mango-sub002/pkg/startup"
	"github.com/ooddaa/mango-sub002/pkg/store"
	"github.com/ooddaa/mango-sub002/pkg/template"
	"github.com/ooddaa/mango-sub002/pkg/tracing"
	"github.com/ooddaa/mango-sub002/pkg/tracing/exporters"
)

// app holds the wired service. Connections are opened by start and closed
// by stop.
type app struct {
	cfg      *config.Config
	logger   ectologger.Logger
	graph    *store.Client
	redis    *redis.Client
	producer *kafka.Producer
	registry *template.Registry
	builder  *candidate.Builder
	engine   *engine.Engine
	startup  *startup.Startup
	shutdown func(context.Context) error
}

// newApp wires every component from cfg without connecting anything.
func newApp(ctx context.Context, cfg *config.Config, logger ectologger.Logger) (*app, error) {
	shutdown, err := tracing.Setup(ctx, tracing.Config{
		ServiceName: cfg.AppName,
		Exporter:    cfg.TraceExporter,
		OTLP: exporters.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: cfg.OTLPProtocol,
			Insecure: cfg.OTLPInsecure,
			Timeout:  10 * time.Second,
		},
	})
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		startup:  startup.NewStartup(logger, cfg.StartupMaxAttempts),
		shutdown: shutdown,
	}

	a.graph, err = store.NewClient(store.Config{
		URI:      cfg.GraphDBURI,
		Username: cfg.GraphDBUser,
		Password: cfg.GraphDBPassword,
		Database: cfg.GraphDBDatabase,
	}, logger)
	if err != nil {
		return nil, err
	}
	a.startup.AddDependency(a.graph)

	var source template.Source
	if cfg.RedisRequired() {
		a.redis = newRedis(cfg, logger)
		a.startup.AddDependency(a.redis)
		if cfg.TemplatesRedisEnabled {
			source = template.NewRedisStore(a.redis.Redis(), cfg.TemplatesRedisPrefix)
		}
	}
	a.registry = template.NewRegistry(logger, source)
	a.builder = candidate.NewBuilder(a.registry, logger)

	opts := []engine.Option{
		engine.WithConcurrency(cfg.GraphMergeConcurrency),
		engine.WithHops(cfg.GraphEnhanceHops),
	}
	if cfg.EventsEnabled {
		a.producer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		a.startup.AddDependency(a.producer)
		opts = append(opts, engine.WithPublisher(events.NewEmitter(a.producer, logger)))
	}
	if cfg.VersionLockEnabled {
		opts = append(opts, engine.WithVersionLock(redis.NewLocker(a.redis, "", cfg.VersionLockTTL, cfg.VersionLockWait)))
	}
	a.engine = engine.New(a.graph, a.builder, logger, opts...)

	return a, nil
}

func newRedis(cfg *config.Config, logger ectologger.Logger) *redis.Client {
	return redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
}

func (a *app) start(ctx context.Context) error {
	if err := a.startup.Start(ctx); err != nil {
		return fmt.Errorf("failed to start %s: %w", a.cfg.AppName, err)
	}
	return nil
}

func (a *app) stop(ctx context.Context) {
	if err := a.startup.Stop(ctx); err != nil {
		a.logger.WithContext(ctx).WithError(err).Warn("Failed to stop dependencies")
	}
	if err := a.shutdown(ctx); err != nil {
		a.logger.WithContext(ctx).WithError(err).Warn("Failed to flush traces")
	}
}
