package graph

import (
	"fmt"

	"github.com/ooddaa/mango-sub002/pkg/hashing"
)

// Direction is relative to whichever endpoint is the traversal's main node.
type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool { return d == Inbound || d == Outbound }

// Necessity marks whether a relationship must exist for its main node to be
// complete.
type Necessity string

const (
	Required Necessity = "required"
	Optional Necessity = "optional"
)

// Relationship is a typed, directed edge between two vertices.
type Relationship struct {
	Label      string
	Properties Properties
	StartNode  Vertex
	EndNode    Vertex
	Direction  Direction
	Necessity  Necessity
	Identity   string
}

// NewRelationship creates a relationship. Properties are copied.
func NewRelationship(label string, props Properties, start, end Vertex, direction Direction, necessity Necessity) *Relationship {
	if necessity == "" {
		necessity = Optional
	}
	return &Relationship{
		Label:      label,
		Properties: props.Clone(),
		StartNode:  start,
		EndNode:    end,
		Direction:  direction,
		Necessity:  necessity,
	}
}

// Hash returns the stamped content hash, if any.
func (r *Relationship) Hash() string { return r.Properties.String(KeyHash) }

// UUID returns the generated id assigned on first write, if any.
func (r *Relationship) UUID() string { return r.Properties.String(KeyUUID) }

// StartHash returns the start endpoint's hash or "".
func (r *Relationship) StartHash() string { return vertexHash(r.StartNode) }

// EndHash returns the end endpoint's hash or "".
func (r *Relationship) EndHash() string { return vertexHash(r.EndNode) }

// ComputeHash derives the content hash. It is empty while either endpoint is
// unhashed.
func (r *Relationship) ComputeHash() string {
	return hashing.Relationship(r.Label, r.Properties.Required(), r.StartHash(), r.EndHash())
}

// IsWritable reports whether the relationship and both endpoints are hashed.
func (r *Relationship) IsWritable() bool {
	return r.Hash() != "" && r.StartHash() != "" && r.EndHash() != ""
}

// IsWritten additionally requires identities on both endpoints and on the
// relationship itself.
func (r *Relationship) IsWritten() bool {
	if !r.IsWritable() || r.Identity == "" {
		return false
	}
	return r.StartNode.Core().Identity != "" && r.EndNode.Core().Identity != ""
}

// State reports the lifecycle stage.
func (r *Relationship) State() State {
	switch {
	case r.IsWritten():
		return StateWritten
	case r.IsWritable():
		return StateValidated
	default:
		return StateCandidate
	}
}

// Partner returns the endpoint opposite to the node with the given hash.
func (r *Relationship) Partner(hash string) (Vertex, error) {
	switch hash {
	case r.StartHash():
		return r.EndNode, nil
	case r.EndHash():
		return r.StartNode, nil
	}
	return nil, fmt.Errorf("relationship %s does not touch node %s", r.Label, hash)
}

// Short returns a copy whose endpoints are plain nodes, which is what the
// store needs to write the relationship.
func (r *Relationship) Short() *Relationship {
	out := r.Clone()
	if r.StartNode != nil {
		out.StartNode = r.StartNode.Core()
	}
	if r.EndNode != nil {
		out.EndNode = r.EndNode.Core()
	}
	return out
}

// Clone copies the relationship. Endpoints are shared.
func (r *Relationship) Clone() *Relationship {
	return &Relationship{
		Label:      r.Label,
		Properties: r.Properties.Clone(),
		StartNode:  r.StartNode,
		EndNode:    r.EndNode,
		Direction:  r.Direction,
		Necessity:  r.Necessity,
		Identity:   r.Identity,
	}
}

// Absorb copies identity, generated id and newly-known optional properties
// from the store's view of the same relationship.
func (r *Relationship) Absorb(src *Relationship) {
	if src == nil {
		return
	}
	if src.Identity != "" {
		r.Identity = src.Identity
	}
	absorbProperties(&r.Properties, src.Properties)
}

func vertexHash(v Vertex) string {
	if v == nil {
		return ""
	}
	core := v.Core()
	if core == nil {
		return ""
	}
	return core.Hash()
}
