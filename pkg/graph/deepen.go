package graph

import (
	"errors"
	"fmt"
)

// ErrRootNotMatched is returned by Deepen when none of the given
// relationships touches the root node.
var ErrRootNotMatched = errors.New("root node not found among relationship endpoints")

// Deepen rebuilds e's embedded subgraph from a flat relationship list, the
// inverse of ParticipatingRelationships. Relationships are deduplicated and
// their endpoints are collected into one instance per node, so a node
// reachable over several paths is shared. Starting at e, every pooled
// relationship touching the current node is attached to it (direction
// inferred from which endpoint matched) and removed from the pool, then the
// walk descends into the partner. Relationships outside e's component are
// left unattached.
//
// Endpoints are told apart by store identity when e and every endpoint carry
// one, and by hash otherwise. Versions of an updated node share a hash, so
// only identities keep them apart.
//
// An empty list leaves e unchanged. A non-empty list that never touches e
// yields ErrRootNotMatched.
func (e *EnhancedNode) Deepen(rels []*Relationship) (*EnhancedNode, error) {
	if e.Hash() == "" {
		return nil, fmt.Errorf("deepen: %w", ErrUnhashed)
	}

	byIdentity := e.Identity != ""
	given := make([]*Relationship, 0, len(rels))
	for _, r := range rels {
		if r == nil {
			continue
		}
		if r.Hash() == "" || r.StartHash() == "" || r.EndHash() == "" {
			return nil, fmt.Errorf("deepen: relationship %s: %w", r.Label, ErrUnhashed)
		}
		if r.StartNode.Core().Identity == "" || r.EndNode.Core().Identity == "" {
			byIdentity = false
		}
		given = append(given, r)
	}

	nodeKey := func(n *Node) string {
		if byIdentity {
			return n.Identity
		}
		return n.Hash()
	}
	relKey := func(r *Relationship) string {
		if byIdentity && r.Identity != "" {
			return r.Identity
		}
		return r.Hash()
	}

	attached := make(map[string]bool)
	for _, r := range e.Relationships() {
		if r.Hash() != "" {
			attached[relKey(r)] = true
		}
	}

	pool := make([]*Relationship, 0, len(given))
	seen := make(map[string]int)
	for _, r := range given {
		key := relKey(r)
		if attached[key] {
			continue
		}
		if i, ok := seen[key]; ok {
			if len(r.Properties) > len(pool[i].Properties) {
				pool[i] = r
			}
			continue
		}
		seen[key] = len(pool)
		pool = append(pool, r)
	}
	if len(pool) == 0 {
		return e, nil
	}

	arena := make(map[string]*EnhancedNode)
	collect := func(v Vertex) {
		core := v.Core()
		key := nodeKey(core)
		existing, ok := arena[key]
		if !ok {
			arena[key] = &EnhancedNode{Node: core.Clone()}
			return
		}
		if len(core.Properties) > len(existing.Properties) {
			keepIdentity := existing.Identity
			existing.Node = core.Clone()
			if existing.Identity == "" {
				existing.Identity = keepIdentity
			}
		}
	}
	for _, r := range pool {
		collect(r.StartNode)
		collect(r.EndNode)
	}

	rootKey := nodeKey(e.Node)
	matched, ok := arena[rootKey]
	if !ok {
		return nil, fmt.Errorf("deepen %s: %w", e.Hash(), ErrRootNotMatched)
	}
	e.Absorb(matched.Node)
	arena[rootKey] = e

	visited := make(map[string]bool)
	var visit func(n *EnhancedNode)
	visit = func(n *EnhancedNode) {
		key := nodeKey(n.Node)
		visited[key] = true

		var partners []*EnhancedNode
		remaining := make([]*Relationship, 0, len(pool))
		for _, r := range pool {
			start, end := nodeKey(r.StartNode.Core()), nodeKey(r.EndNode.Core())
			switch key {
			case start:
				rel := r.Clone()
				rel.EndNode = arena[end]
				n.AddOutbound(rel)
				partners = append(partners, arena[end])
			case end:
				rel := r.Clone()
				rel.StartNode = arena[start]
				n.AddInbound(rel)
				partners = append(partners, arena[start])
			default:
				remaining = append(remaining, r)
			}
		}
		pool = remaining

		for _, p := range partners {
			if !visited[nodeKey(p.Node)] {
				visit(p)
			}
		}
	}
	visit(e)

	return e, nil
}
