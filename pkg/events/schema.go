package events

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// EventType defines the type of event
type EventType string

const (
	// Node events
	EventTypeNodeMerged  EventType = "node.merged"
	EventTypeNodeUpdated EventType = "node.updated"
	EventTypeNodeDeleted EventType = "node.deleted"

	// Relationship events
	EventTypeRelationshipMerged  EventType = "relationship.merged"
	EventTypeRelationshipDeleted EventType = "relationship.deleted"
)
