package cypher

import (
	"fmt"
	"strings"

	"github.com/ooddaa/mango-sub002/pkg/graph"
)

// Statement names, used for logging and by test doubles.
const (
	NameMergeNodes         = "merge_nodes"
	NameMergeRelationships = "merge_relationships"
	NameMatchNodes         = "match_nodes"
	NameMatchNodeByID      = "match_node_by_id"
	NameMatchRelationships = "match_relationships"
	NameMatchRelByID       = "match_relationship_by_id"
	NameMatchPartialNodes  = "match_partial_nodes"
	NameNeighbourhood      = "neighbourhood"
	NameUpdateNode         = "update_node"
	NameEditNode           = "edit_node"
	NameEditRelationship   = "edit_relationship"
	NameDeleteNode         = "delete_node"
	NameDeleteRelationship = "delete_relationship"
)

// NodeRow is one node in a batched merge. Index correlates the returned
// record with the caller's input.
type NodeRow struct {
	Index int
	Node  *graph.Node
	// UUID is assigned only if the stored node has none.
	UUID string
}

func (r NodeRow) params() map[string]any {
	props := storable(r.Node.Properties)
	props[graph.KeyIsCurrent] = true
	return map[string]any{
		"index":      int64(r.Index),
		"hash":       r.Node.Hash(),
		"properties": props,
		"uuid":       r.UUID,
	}
}

// storable copies properties into a plain map the driver can pack. The
// identity-bearing _uuid is assigned by the query instead.
func storable(props graph.Properties) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if k == graph.KeyUUID {
			continue
		}
		out[k] = v
	}
	return out
}

// GroupKey is the label set key MergeNodes batches by.
func GroupKey(labels []string) string {
	return labelKey(labels)
}

// MergeNodes upserts nodes sharing one label set, keyed on (primary label,
// _hash) among current nodes. Superseded versions of an updated node share
// its hash but are never matched. Existing nodes keep their properties; only
// a missing _uuid is set. Records carry `index` and `n`.
func MergeNodes(labels []string, rows []NodeRow) Statement {
	primary := labelExpr(labels[:1])
	var extra string
	if len(labels) > 1 {
		extra = ", n" + labelExpr(labels[1:])
	}

	params := make([]any, len(rows))
	for i, r := range rows {
		params[i] = r.params()
	}

	query := fmt.Sprintf(`UNWIND $rows AS row
MERGE (n%s {_hash: row.hash, _isCurrent: true})
ON CREATE SET n = row.properties, n._uuid = row.uuid%s
SET n._uuid = coalesce(n._uuid, row.uuid)
RETURN row.index AS index, n`, primary, extra)

	return Statement{
		Name:   NameMergeNodes,
		Cypher: query,
		Params: map[string]any{"rows": params},
	}
}

// RelationshipRow is one relationship in a batched merge.
type RelationshipRow struct {
	Index        int
	Relationship *graph.Relationship
	UUID         string
	StartUUID    string
	EndUUID      string
}

// RelationshipGroupKey is the key MergeRelationships batches by: type plus
// both endpoint label sets.
func RelationshipGroupKey(r *graph.Relationship) string {
	return strings.Join([]string{
		SanitizeLabel(r.Label),
		labelKey(r.StartNode.Core().Labels),
		labelKey(r.EndNode.Core().Labels),
	}, "|")
}

// MergeRelationships upserts relationships sharing one type and endpoint
// label sets. Each endpoint is created as a stub from its properties when no
// current node carries its hash; the relationship itself is keyed on _hash.
// Records carry `index`, `s`, `r` and `e`.
func MergeRelationships(rows []RelationshipRow) Statement {
	first := rows[0].Relationship
	start := labelExpr(first.StartNode.Core().Labels[:1])
	end := labelExpr(first.EndNode.Core().Labels[:1])

	params := make([]any, len(rows))
	for i, r := range rows {
		rel := r.Relationship
		params[i] = map[string]any{
			"index":      int64(r.Index),
			"hash":       rel.Hash(),
			"properties": storable(rel.Properties),
			"uuid":       r.UUID,
			"start":      NodeRow{Node: rel.StartNode.Core(), UUID: r.StartUUID}.params(),
			"end":        NodeRow{Node: rel.EndNode.Core(), UUID: r.EndUUID}.params(),
		}
	}

	query := fmt.Sprintf(`UNWIND $rows AS row
MERGE (s%s {_hash: row.start.hash, _isCurrent: true})
ON CREATE SET s = row.start.properties, s._uuid = row.start.uuid
SET s._uuid = coalesce(s._uuid, row.start.uuid)
MERGE (e%s {_hash: row.end.hash, _isCurrent: true})
ON CREATE SET e = row.end.properties, e._uuid = row.end.uuid
SET e._uuid = coalesce(e._uuid, row.end.uuid)
MERGE (s)-[r:%s {_hash: row.hash}]->(e)
ON CREATE SET r = row.properties, r._uuid = row.uuid
SET r._uuid = coalesce(r._uuid, row.uuid)
RETURN row.index AS index, s, r, e`, start, end, "`"+SanitizeLabel(first.Label)+"`")

	return Statement{
		Name:   NameMergeRelationships,
		Cypher: query,
		Params: map[string]any{"rows": params},
	}
}
