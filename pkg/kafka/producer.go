// Package kafka publishes graph sync events.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	appctx "github.com/ooddaa/mango-sub002/pkg/context"
	"github.com/ooddaa/mango-sub002/pkg/metrics"
	"github.com/ooddaa/mango-sub002/pkg/tracing"
)

// MessageWriter is the part of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer handles Kafka event emission
type Producer struct {
	writer MessageWriter
	logger ectologger.Logger
	topic  string
	now    func() time.Time
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return NewProducerWithWriter(writer, cfg.Topic, logger)
}

// NewProducerWithWriter creates a producer over an existing writer.
func NewProducerWithWriter(writer MessageWriter, topic string, logger ectologger.Logger) *Producer {
	return &Producer{
		writer: writer,
		logger: logger,
		topic:  topic,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// GetName implements startup.StartupDependency.
func (p *Producer) GetName() string { return "kafka" }

// DependsOn implements startup.StartupDependency.
func (p *Producer) DependsOn() []string { return nil }

// Start is a no-op; the writer connects lazily.
func (p *Producer) Start(context.Context) error { return nil }

// Stop closes the producer.
func (p *Producer) Stop(context.Context) error { return p.Close() }

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// NodeEvent represents an event about a node
type NodeEvent struct {
	EventType     string          `json:"event_type"`
	SchemaVersion string          `json:"schema_version"`
	Hash          string          `json:"hash"`
	UUID          string          `json:"uuid,omitempty"`
	ID            string          `json:"id,omitempty"`
	Labels        []string        `json:"labels"`
	Properties    json.RawMessage `json:"properties,omitempty"`
	UpdaterHash   string          `json:"updater_hash,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// RelationshipEvent represents an event about a relationship
type RelationshipEvent struct {
	EventType        string          `json:"event_type"`
	SchemaVersion    string          `json:"schema_version"`
	Hash             string          `json:"hash"`
	UUID             string          `json:"uuid,omitempty"`
	ID               string          `json:"id,omitempty"`
	RelationshipType string          `json:"relationship_type"`
	StartHash        string          `json:"start_hash"`
	EndHash          string          `json:"end_hash"`
	Properties       json.RawMessage `json:"properties,omitempty"`
	Timestamp        time.Time       `json:"timestamp"`
}

// PublishNodeEvents publishes node events in one batch, keyed by hash so
// every event of one node lands on one partition.
func (p *Producer) PublishNodeEvents(ctx context.Context, events []*NodeEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishNodeEvents")
	defer span.End()

	if len(events) == 0 {
		return nil
	}

	messages := make([]kafka.Message, len(events))
	for i, event := range events {
		if event.Timestamp.IsZero() {
			event.Timestamp = p.now()
		}

		data, err := json.Marshal(event)
		if err != nil {
			return err
		}

		messages[i] = kafka.Message{
			Topic: p.topic,
			Key:   []byte(event.Hash),
			Value: data,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(event.EventType)},
				{Key: "entity", Value: []byte("node")},
				{Key: "schema_version", Value: []byte(event.SchemaVersion)},
			},
		}
	}

	return p.write(ctx, "node", messages)
}

// PublishRelationshipEvents publishes relationship events in one batch.
func (p *Producer) PublishRelationshipEvents(ctx context.Context, events []*RelationshipEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishRelationshipEvents")
	defer span.End()

	if len(events) == 0 {
		return nil
	}

	messages := make([]kafka.Message, len(events))
	for i, event := range events {
		if event.Timestamp.IsZero() {
			event.Timestamp = p.now()
		}

		data, err := json.Marshal(event)
		if err != nil {
			return err
		}

		messages[i] = kafka.Message{
			Topic: p.topic,
			Key:   []byte(event.Hash),
			Value: data,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(event.EventType)},
				{Key: "entity", Value: []byte("relationship")},
				{Key: "relationship_type", Value: []byte(event.RelationshipType)},
				{Key: "schema_version", Value: []byte(event.SchemaVersion)},
			},
		}
	}

	return p.write(ctx, "relationship", messages)
}

func (p *Producer) write(ctx context.Context, entity string, messages []kafka.Message) error {
	if headers := contextHeaders(ctx); len(headers) > 0 {
		for i := range messages {
			messages[i].Headers = append(messages[i].Headers, headers...)
		}
	}

	start := time.Now()
	err := p.writer.WriteMessages(ctx, messages...)
	metrics.RecordEvent(p.topic, start, err)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_size": len(messages),
			"entity":     entity,
		}).Error("Failed to publish events batch")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(messages),
		"entity":     entity,
	}).Debug("Published events batch")
	return nil
}

// contextHeaders copies the request id, origin and trace parent of the
// request that caused the change.
func contextHeaders(ctx context.Context) []kafka.Header {
	var headers []kafka.Header
	add := func(key, value string) {
		if value != "" {
			headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
		}
	}
	add("request_id", appctx.GetRequestID(ctx))
	add("origin", appctx.GetOrigin(ctx))
	add("traceparent", tracing.GetTraceParent(ctx))
	return headers
}
