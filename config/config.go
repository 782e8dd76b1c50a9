package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"mango"`
	Version                       string   `env:"APP_VERSION" env-default:"dev"`
	Port                          int      `env:"PORT" env-default:"3010"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"30"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"60"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	BodyLimit                     string   `env:"HTTP_SERVER_BODY_LIMIT" env-default:"8M"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// Graph Database (Neo4j / Memgraph)
	GraphDBURI      string `env:"GRAPH_DB_URI" env-default:"bolt://localhost:7687"`
	GraphDBUser     string `env:"GRAPH_DB_USER" env-default:""`
	GraphDBPassword string `env:"GRAPH_DB_PASSWORD" env-default:""`
	GraphDBDatabase string `env:"GRAPH_DB_DATABASE" env-default:""`

	// Engine
	GraphMergeConcurrency int `env:"GRAPH_MERGE_CONCURRENCY" env-default:"8"`
	GraphEnhanceHops      int `env:"GRAPH_ENHANCE_HOPS" env-default:"1"`

	// Kafka Producer (sync events)
	EventsEnabled     bool     `env:"EVENTS_ENABLED" env-default:"false"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaOutputTopic  string   `env:"KAFKA_OUTPUT_TOPIC" env-default:"mango.sync"`
	KafkaBatchSize    int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Redis (templates and version lock)
	RedisEnabled          bool          `env:"REDIS_ENABLED" env-default:"false"`
	RedisHost             string        `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort             int           `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword         string        `env:"REDIS_PASSWORD" env-default:""`
	RedisDB               int           `env:"REDIS_DB" env-default:"0"`
	TemplatesRedisEnabled bool          `env:"TEMPLATES_REDIS_ENABLED" env-default:"false"`
	TemplatesRedisPrefix  string        `env:"TEMPLATES_REDIS_PREFIX" env-default:"mango:template:"`
	VersionLockEnabled    bool          `env:"VERSION_LOCK_ENABLED" env-default:"false"`
	VersionLockTTL        time.Duration `env:"VERSION_LOCK_TTL" env-default:"30s"`
	VersionLockWait       time.Duration `env:"VERSION_LOCK_WAIT" env-default:"5s"`

	// Tracing
	TraceExporter string `env:"TRACE_EXPORTER" env-default:"none"`
	OTLPEndpoint  string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:"localhost:4317"`
	OTLPProtocol  string `env:"OTEL_EXPORTER_OTLP_PROTOCOL" env-default:"grpc"`
	OTLPInsecure  bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" env-default:"true"`
}

// Load reads an optional .env file, then the environment.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if cfg.VersionLockEnabled || cfg.TemplatesRedisEnabled {
		cfg.RedisEnabled = true
	}
	return &cfg, nil
}

// RedisRequired reports whether any feature needs Redis.
func (c *Config) RedisRequired() bool {
	return c.RedisEnabled || c.TemplatesRedisEnabled || c.VersionLockEnabled
}
