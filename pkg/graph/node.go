// Package graph holds the content-addressed graph model: nodes,
// relationships and enhanced nodes (a node plus the subgraph embedded around
// it), along with the traversals that flatten and rebuild that subgraph.
package graph

import (
	"slices"

	"github.com/ooddaa/mango-sub002/pkg/hashing"
)

// State is the lifecycle stage of an entity.
type State int

const (
	// StateCandidate has not been validated or hashed.
	StateCandidate State = iota
	// StateValidated carries a content hash but no store identity.
	StateValidated
	// StateWritten carries both a content hash and a store identity.
	StateWritten
)

func (s State) String() string {
	switch s {
	case StateValidated:
		return "validated"
	case StateWritten:
		return "written"
	default:
		return "candidate"
	}
}

// Vertex is anything that can sit at either end of a relationship: a plain
// *Node or an *EnhancedNode.
type Vertex interface {
	Core() *Node
}

// Node is a labelled bag of properties. Identity is the store-native element
// id and stays empty until the node has been written.
type Node struct {
	Labels     []string
	Properties Properties
	Identity   string
}

// NewNode creates a node. Properties are copied.
func NewNode(labels []string, props Properties) *Node {
	return &Node{
		Labels:     slices.Clone(labels),
		Properties: props.Clone(),
	}
}

// Core returns n itself.
func (n *Node) Core() *Node { return n }

// Label returns the primary label.
func (n *Node) Label() string {
	if len(n.Labels) == 0 {
		return n.Properties.String(KeyLabel)
	}
	return n.Labels[0]
}

// Hash returns the stamped content hash, if any.
func (n *Node) Hash() string { return n.Properties.String(KeyHash) }

// UUID returns the generated id assigned on first write, if any.
func (n *Node) UUID() string { return n.Properties.String(KeyUUID) }

// ComputeHash derives the content hash from the primary label and the
// required properties. It does not stamp it.
func (n *Node) ComputeHash() string {
	return hashing.Node(n.Label(), n.Properties.Required())
}

// IsWritable reports whether the node is hashed.
func (n *Node) IsWritable() bool { return n.Hash() != "" }

// IsWritten reports whether the node is hashed and carries a store identity.
func (n *Node) IsWritten() bool { return n.Hash() != "" && n.Identity != "" }

// State reports the lifecycle stage.
func (n *Node) State() State {
	switch {
	case n.IsWritten():
		return StateWritten
	case n.IsWritable():
		return StateValidated
	default:
		return StateCandidate
	}
}

// Clone returns a deep enough copy to be mutated independently.
func (n *Node) Clone() *Node {
	return &Node{
		Labels:     slices.Clone(n.Labels),
		Properties: n.Properties.Clone(),
		Identity:   n.Identity,
	}
}

// Absorb copies what the store knows about the same logical node into n:
// identity, generated id and any optional property n does not have yet.
// Properties n already carries are kept even when src disagrees.
func (n *Node) Absorb(src *Node) {
	if src == nil {
		return
	}
	if src.Identity != "" {
		n.Identity = src.Identity
	}
	absorbProperties(&n.Properties, src.Properties)
}

func absorbProperties(dst *Properties, src Properties) {
	if *dst == nil {
		*dst = Properties{}
	}
	if id := src.String(KeyUUID); id != "" {
		(*dst)[KeyUUID] = id
	}
	for k, v := range src {
		if !IsOptional(k) {
			continue
		}
		if _, ok := (*dst)[k]; !ok {
			(*dst)[k] = v
		}
	}
}
