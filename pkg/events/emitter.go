// Package events handles event emission for graph sync operations
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/ooddaa/mango-sub002/pkg/graph"
	"github.com/ooddaa/mango-sub002/pkg/kafka"
	"github.com/ooddaa/mango-sub002/pkg/tracing"
)

// Producer publishes event batches.
type Producer interface {
	PublishNodeEvents(ctx context.Context, events []*kafka.NodeEvent) error
	PublishRelationshipEvents(ctx context.Context, events []*kafka.RelationshipEvent) error
}

// Emitter turns engine outcomes into sync events
type Emitter struct {
	producer Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitNodesMerged emits one node.merged event per node
func (e *Emitter) EmitNodesMerged(ctx context.Context, nodes []*graph.Node) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitNodesMerged")
	defer span.End()

	events := make([]*kafka.NodeEvent, 0, len(nodes))
	for _, n := range nodes {
		events = append(events, nodeEvent(EventTypeNodeMerged, n))
	}

	if err := e.producer.PublishNodeEvents(ctx, events); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit node.merged events")
		return err
	}
	return nil
}

// EmitRelationshipsMerged emits one relationship.merged event per relationship
func (e *Emitter) EmitRelationshipsMerged(ctx context.Context, rels []*graph.Relationship) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRelationshipsMerged")
	defer span.End()

	events := make([]*kafka.RelationshipEvent, 0, len(rels))
	for _, r := range rels {
		events = append(events, relationshipEvent(EventTypeRelationshipMerged, r))
	}

	if err := e.producer.PublishRelationshipEvents(ctx, events); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit relationship.merged events")
		return err
	}
	return nil
}

// EmitNodeUpdated emits a node.updated event for the superseded node,
// pointing at its updater
func (e *Emitter) EmitNodeUpdated(ctx context.Context, previous, updater *graph.Node) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitNodeUpdated")
	defer span.End()

	event := nodeEvent(EventTypeNodeUpdated, previous)
	event.UpdaterHash = updater.Hash()

	if err := e.producer.PublishNodeEvents(ctx, []*kafka.NodeEvent{event}); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit node.updated event")
		return err
	}
	return nil
}

// EmitNodesDeleted emits one node.deleted event per node
func (e *Emitter) EmitNodesDeleted(ctx context.Context, nodes []*graph.Node) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitNodesDeleted")
	defer span.End()

	events := make([]*kafka.NodeEvent, 0, len(nodes))
	for _, n := range nodes {
		events = append(events, nodeEvent(EventTypeNodeDeleted, n))
	}

	if err := e.producer.PublishNodeEvents(ctx, events); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit node.deleted events")
		return err
	}
	return nil
}

// EmitRelationshipsDeleted emits one relationship.deleted event per relationship
func (e *Emitter) EmitRelationshipsDeleted(ctx context.Context, rels []*graph.Relationship) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRelationshipsDeleted")
	defer span.End()

	events := make([]*kafka.RelationshipEvent, 0, len(rels))
	for _, r := range rels {
		events = append(events, relationshipEvent(EventTypeRelationshipDeleted, r))
	}

	if err := e.producer.PublishRelationshipEvents(ctx, events); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit relationship.deleted events")
		return err
	}
	return nil
}

func nodeEvent(t EventType, n *graph.Node) *kafka.NodeEvent {
	props, _ := json.Marshal(map[string]any(n.Properties))
	return &kafka.NodeEvent{
		EventType:     string(t),
		SchemaVersion: SchemaVersion,
		Hash:          n.Hash(),
		UUID:          n.UUID(),
		ID:            n.Identity,
		Labels:        n.Labels,
		Properties:    props,
	}
}

func relationshipEvent(t EventType, r *graph.Relationship) *kafka.RelationshipEvent {
	props, _ := json.Marshal(map[string]any(r.Properties))
	return &kafka.RelationshipEvent{
		EventType:        string(t),
		SchemaVersion:    SchemaVersion,
		Hash:             r.Hash(),
		UUID:             r.UUID(),
		ID:               r.Identity,
		RelationshipType: r.Label,
		StartHash:        r.StartHash(),
		EndHash:          r.EndHash(),
		Properties:       props,
	}
}
