package store

import (
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ooddaa/mango-sub002/pkg/graph"
)

// Node converts a driver node. Identity is the store's element id.
func Node(n neo4j.Node) *graph.Node {
	props := make(graph.Properties, len(n.Props))
	for k, v := range n.Props {
		props[k] = v
	}
	node := graph.NewNode(n.Labels, props)
	node.Identity = n.ElementId
	return node
}

// Relationship converts a driver relationship between two decoded nodes. The
// direction is outbound, relative to start.
func Relationship(r neo4j.Relationship, start, end graph.Vertex) *graph.Relationship {
	props := make(graph.Properties, len(r.Props))
	for k, v := range r.Props {
		props[k] = v
	}
	rel := graph.NewRelationship(r.Type, props, start, end, graph.Outbound, graph.Optional)
	rel.Identity = r.ElementId
	return rel
}

// NodeAt decodes the node stored under key. ok is false when the column is
// absent or null.
func NodeAt(rec *neo4j.Record, key string) (*graph.Node, bool, error) {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return nil, false, nil
	}
	n, isNode := v.(neo4j.Node)
	if !isNode {
		return nil, false, fmt.Errorf("column %s holds %T, not a node", key, v)
	}
	return Node(n), true, nil
}

// StringAt returns the string stored under key.
func StringAt(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// IntAt returns the integer stored under key.
func IntAt(rec *neo4j.Record, key string) int64 {
	v, ok := rec.Get(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

// Triples decodes records of the form (start node, relationship, end node).
// Endpoints are shared by element id, so a node appearing in several rows is
// decoded once.
func Triples(records []*neo4j.Record, startKey, relKey, endKey string) ([]*graph.Relationship, error) {
	nodes := map[string]*graph.Node{}
	node := func(rec *neo4j.Record, key string) (*graph.Node, error) {
		n, ok, err := NodeAt(rec, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("column %s is empty", key)
		}
		if seen, dup := nodes[n.Identity]; dup {
			return seen, nil
		}
		nodes[n.Identity] = n
		return n, nil
	}

	seen := map[string]bool{}
	out := make([]*graph.Relationship, 0, len(records))
	for _, rec := range records {
		v, ok := rec.Get(relKey)
		if !ok || v == nil {
			continue
		}
		r, isRel := v.(neo4j.Relationship)
		if !isRel {
			return nil, fmt.Errorf("column %s holds %T, not a relationship", relKey, v)
		}
		if seen[r.ElementId] {
			continue
		}
		seen[r.ElementId] = true

		start, err := node(rec, startKey)
		if err != nil {
			return nil, err
		}
		end, err := node(rec, endKey)
		if err != nil {
			return nil, err
		}
		out = append(out, Relationship(r, start, end))
	}
	return out, nil
}

// TripleAt decodes one (start node, relationship, end node) record. ok is
// false when the relationship column is absent or null.
func TripleAt(rec *neo4j.Record, startKey, relKey, endKey string) (*graph.Relationship, bool, error) {
	v, ok := rec.Get(relKey)
	if !ok || v == nil {
		return nil, false, nil
	}
	r, isRel := v.(neo4j.Relationship)
	if !isRel {
		return nil, false, fmt.Errorf("column %s holds %T, not a relationship", relKey, v)
	}
	start, ok, err := NodeAt(rec, startKey)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, fmt.Errorf("column %s is empty", startKey)
	}
	end, ok, err := NodeAt(rec, endKey)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, fmt.Errorf("column %s is empty", endKey)
	}
	return Relationship(r, start, end), true, nil
}
