package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrIncompleteMerge is returned when a reachable entity's hash is missing
	// from a post-merge hash map.
	ErrIncompleteMerge = errors.New("entity missing from merge result")
	// ErrUnhashed is returned when an algorithm needs a hash that is absent.
	ErrUnhashed = errors.New("entity has no hash")
)

// EnhancedNode is a node together with its locally-known relationships.
// Partners may themselves be enhanced nodes, so an EnhancedNode is a rooted
// snapshot of an arbitrary subgraph. Every inbound relationship ends at this
// instance and every outbound relationship starts at it.
type EnhancedNode struct {
	*Node
	inbound  []*Relationship
	outbound []*Relationship
}

// NewEnhancedNode wraps core and attaches the given relationships.
func NewEnhancedNode(core *Node, inbound, outbound []*Relationship) *EnhancedNode {
	if core == nil {
		core = &Node{Properties: Properties{}}
	}
	e := &EnhancedNode{Node: core}
	e.AddInbound(inbound...)
	e.AddOutbound(outbound...)
	return e
}

// Core returns the wrapped node.
func (e *EnhancedNode) Core() *Node {
	if e == nil {
		return nil
	}
	return e.Node
}

// Inbound returns the inbound relationships.
func (e *EnhancedNode) Inbound() []*Relationship { return e.inbound }

// Outbound returns the outbound relationships.
func (e *EnhancedNode) Outbound() []*Relationship { return e.outbound }

// Relationships returns inbound followed by outbound relationships.
func (e *EnhancedNode) Relationships() []*Relationship {
	out := make([]*Relationship, 0, len(e.inbound)+len(e.outbound))
	out = append(out, e.inbound...)
	return append(out, e.outbound...)
}

// AddInbound attaches relationships ending at e.
func (e *EnhancedNode) AddInbound(rels ...*Relationship) {
	for _, r := range rels {
		if r == nil {
			continue
		}
		r.EndNode = e
		r.Direction = Inbound
		e.inbound = append(e.inbound, r)
	}
}

// AddOutbound attaches relationships starting at e.
func (e *EnhancedNode) AddOutbound(rels ...*Relationship) {
	for _, r := range rels {
		if r == nil {
			continue
		}
		r.StartNode = e
		r.Direction = Outbound
		e.outbound = append(e.outbound, r)
	}
}

// walk visits every reachable vertex occurrence and relationship once per
// enhanced node instance. Plain partner nodes are visited every time they
// are reached.
func (e *EnhancedNode) walk(onNode func(*Node), onRel func(*Relationship)) {
	visited := make(map[*EnhancedNode]bool)
	var visit func(n *EnhancedNode)
	visit = func(n *EnhancedNode) {
		if visited[n] {
			return
		}
		visited[n] = true
		onNode(n.Node)
		for _, r := range n.Relationships() {
			onRel(r)
			partner := r.StartNode
			if r.Direction == Outbound || partner == Vertex(n) {
				partner = r.EndNode
			}
			if partner == nil {
				continue
			}
			if pe, ok := partner.(*EnhancedNode); ok && pe != nil {
				visit(pe)
				continue
			}
			if core := partner.Core(); core != nil {
				onNode(core)
			}
		}
	}
	visit(e)
}

type keyed interface {
	Hash() string
}

// dedupe keeps one entry per hash, preferring the variant with more
// property keys. Unhashed entries are kept by pointer. Written entries that
// share a hash but carry different identities are distinct versions and are
// kept under hash@identity.
type dedupe[T keyed] struct {
	order    []string
	items    map[string]T
	keys     func(T) int
	identity func(T) string
}

func newDedupe[T keyed](keys func(T) int, identity func(T) string) *dedupe[T] {
	return &dedupe[T]{items: make(map[string]T), keys: keys, identity: identity}
}

func (d *dedupe[T]) add(item T) {
	key := item.Hash()
	if key == "" {
		key = fmt.Sprintf("%p", any(item))
	}
	if existing, ok := d.items[key]; ok {
		have, got := d.identity(existing), d.identity(item)
		if have != "" && got != "" && have != got {
			key += "@" + got
		}
	}
	existing, ok := d.items[key]
	if !ok {
		d.order = append(d.order, key)
		d.items[key] = item
		return
	}
	if d.keys(item) > d.keys(existing) {
		d.items[key] = item
	}
}

func (d *dedupe[T]) list() []T {
	out := make([]T, 0, len(d.order))
	for _, k := range d.order {
		out = append(out, d.items[k])
	}
	return out
}

func nodeKeys(n *Node) int        { return len(n.Properties) }
func nodeIdentity(n *Node) string { return n.Identity }

// ParticipatingNodes returns every distinct node reachable from e,
// including e, deduplicated by hash. On a hash collision the variant with
// more property keys wins.
func (e *EnhancedNode) ParticipatingNodes() []*Node {
	d := newDedupe(nodeKeys, nodeIdentity)
	e.walk(d.add, func(*Relationship) {})
	return d.list()
}

// ParticipatingNodeMap is ParticipatingNodes keyed by hash. Further written
// versions sharing a hash are keyed hash@identity.
func (e *EnhancedNode) ParticipatingNodeMap() map[string]*Node {
	d := newDedupe(nodeKeys, nodeIdentity)
	e.walk(d.add, func(*Relationship) {})
	return d.items
}

// ParticipatingRelationships returns every distinct relationship reachable
// from e. With short set, endpoints are flattened to plain nodes.
func (e *EnhancedNode) ParticipatingRelationships(short bool) []*Relationship {
	d := newDedupe(
		func(r *Relationship) int { return len(r.Properties) },
		func(r *Relationship) string { return r.Identity },
	)
	e.walk(func(*Node) {}, d.add)
	rels := d.list()
	if short {
		for i, r := range rels {
			rels[i] = r.Short()
		}
	}
	return rels
}

// ParticipatingRelationshipMap is ParticipatingRelationships keyed by hash.
func (e *EnhancedNode) ParticipatingRelationshipMap(short bool) map[string]*Relationship {
	out := make(map[string]*Relationship)
	for _, r := range e.ParticipatingRelationships(short) {
		key := r.Hash()
		if key == "" {
			key = fmt.Sprintf("%p", r)
		}
		out[key] = r
	}
	return out
}

// IdentifyParticipatingNodes stamps identity, generated id and newly-known
// optional properties onto every reachable node occurrence from the merged
// nodes in byHash. Any reachable node missing from byHash is an error.
func (e *EnhancedNode) IdentifyParticipatingNodes(byHash map[string]*Node) error {
	var errs []error
	seen := make(map[string]bool)
	e.walk(func(n *Node) {
		hash := n.Hash()
		if hash == "" {
			errs = append(errs, fmt.Errorf("node %v: %w", n.Labels, ErrUnhashed))
			return
		}
		src, ok := byHash[hash]
		if !ok {
			if !seen[hash] {
				errs = append(errs, fmt.Errorf("node %s: %w", hash, ErrIncompleteMerge))
			}
			seen[hash] = true
			return
		}
		n.Absorb(src)
	}, func(*Relationship) {})
	return errors.Join(errs...)
}

// IdentifyParticipatingRelationships does for relationships what
// IdentifyParticipatingNodes does for nodes.
func (e *EnhancedNode) IdentifyParticipatingRelationships(byHash map[string]*Relationship) error {
	var errs []error
	seen := make(map[string]bool)
	e.walk(func(*Node) {}, func(r *Relationship) {
		hash := r.Hash()
		if hash == "" {
			errs = append(errs, fmt.Errorf("relationship %s: %w", r.Label, ErrUnhashed))
			return
		}
		src, ok := byHash[hash]
		if !ok {
			if !seen[hash] {
				errs = append(errs, fmt.Errorf("relationship %s: %w", hash, ErrIncompleteMerge))
			}
			seen[hash] = true
			return
		}
		r.Absorb(src)
	})
	return errors.Join(errs...)
}

// IsWritable reports whether e is hashed and every reachable relationship is
// writable.
func (e *EnhancedNode) IsWritable() bool {
	if e.Hash() == "" {
		return false
	}
	ok := true
	e.walk(func(*Node) {}, func(r *Relationship) {
		if !r.IsWritable() {
			ok = false
		}
	})
	return ok
}

// IsWritten reports whether e has a hash and identity and every reachable
// relationship is written.
func (e *EnhancedNode) IsWritten() bool {
	if !e.Node.IsWritten() {
		return false
	}
	ok := true
	e.walk(func(*Node) {}, func(r *Relationship) {
		if !r.IsWritten() {
			ok = false
		}
	})
	return ok
}

// State reports the lifecycle stage of the whole subgraph.
func (e *EnhancedNode) State() State {
	switch {
	case e.IsWritten():
		return StateWritten
	case e.IsWritable():
		return StateValidated
	default:
		return StateCandidate
	}
}
