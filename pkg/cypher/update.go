package cypher

import (
	"fmt"

	"github.com/ooddaa/mango-sub002/pkg/graph"
)

// HasUpdate is the relationship type linking a node to its updater.
const HasUpdate = "HAS_UPDATE"

// NodeUpdate describes one append-only update.
type NodeUpdate struct {
	// PreviousID is the element id of the node being superseded.
	PreviousID string
	Updater    *graph.Node
	UpdaterID  string
	// LinkHash and LinkUUID identify the HAS_UPDATE relationship.
	LinkHash string
	LinkUUID string
	// When is the update date array.
	When []any
}

// UpdateNode supersedes a current node: it is flagged as updated, the
// updater is merged as a current node, the two are linked by HAS_UPDATE and
// every other open relationship of the old node gets _date_ended. Nothing is
// returned when the old node is missing or no longer current. Records carry
// `old`, `u`, `new` and `ended`.
func UpdateNode(u NodeUpdate) Statement {
	labels := u.Updater.Labels
	var extra string
	if len(labels) > 1 {
		extra = ", new" + labelExpr(labels[1:])
	}
	props := storable(u.Updater.Properties)
	props[graph.KeyIsCurrent] = true

	query := fmt.Sprintf(`MATCH (old) WHERE elementId(old) = $id AND coalesce(old.%[1]s, true) = true
SET old.%[1]s = false, old.%[2]s = true, old.%[3]s = $when, old.%[4]s = $hash
WITH old
MERGE (new%[5]s {_hash: $hash, %[1]s: true})
ON CREATE SET new = $properties, new._uuid = $uuid%[6]s
WITH old, new
MERGE (old)-[u:%[7]s {_hash: $linkHash}]->(new)
ON CREATE SET u._uuid = $linkUUID, u._date_created = $when
WITH old, new, u
OPTIONAL MATCH (old)-[r]-()
WHERE type(r) <> '%[7]s' AND r.%[8]s IS NULL
SET r.%[8]s = $when
WITH old, new, u, count(r) AS ended
RETURN old, u, new, ended`,
		graph.KeyIsCurrent,
		graph.KeyHasBeenUpdated,
		graph.KeyWhenWasUpdated,
		graph.KeyUpdaterHash,
		labelExpr(labels[:1]),
		extra,
		HasUpdate,
		graph.KeyDateEnded,
	)

	return Statement{
		Name:   NameUpdateNode,
		Cypher: query,
		Params: map[string]any{
			"id":         u.PreviousID,
			"hash":       u.Updater.Hash(),
			"properties": props,
			"uuid":       u.UpdaterID,
			"linkHash":   u.LinkHash,
			"linkUUID":   u.LinkUUID,
			"when":       u.When,
		},
	}
}

// EditNode overwrites properties of a node found by element id. Null values
// remove properties. Records carry `n`.
func EditNode(id string, props map[string]any) Statement {
	return Statement{
		Name:   NameEditNode,
		Cypher: "MATCH (n) WHERE elementId(n) = $id SET n += $props RETURN n",
		Params: map[string]any{"id": id, "props": props},
	}
}

// EditRelationship overwrites properties of a relationship found by element
// id. Records carry `s`, `r` and `e`.
func EditRelationship(id string, props map[string]any) Statement {
	return Statement{
		Name:   NameEditRelationship,
		Cypher: "MATCH (s)-[r]->(e) WHERE elementId(r) = $id SET r += $props RETURN s, r, e",
		Params: map[string]any{"id": id, "props": props},
	}
}

// DeleteNode detaches and deletes a node by element id. Records carry
// `deleted`.
func DeleteNode(id string) Statement {
	return Statement{
		Name:   NameDeleteNode,
		Cypher: "MATCH (n) WHERE elementId(n) = $id DETACH DELETE n RETURN count(*) AS deleted",
		Params: map[string]any{"id": id},
	}
}

// DeleteRelationship deletes a relationship by element id. Records carry
// `deleted`.
func DeleteRelationship(id string) Statement {
	return Statement{
		Name:   NameDeleteRelationship,
		Cypher: "MATCH ()-[r]->() WHERE elementId(r) = $id DELETE r RETURN count(*) AS deleted",
		Params: map[string]any{"id": id},
	}
}
