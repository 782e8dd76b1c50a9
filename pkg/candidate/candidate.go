// Package candidate holds the mutable staging objects callers describe graph
// fragments with, and the Builder that validates and promotes them into
// hashed graph entities.
package candidate

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/ooddaa/mango-sub002/pkg/graph"
)

var (
	// ErrMissingStartNode is returned when an inbound relationship candidate
	// has no start (partner) node.
	ErrMissingStartNode = errors.New("inbound relationship candidate requires a start node")
	// ErrMissingEndNode is returned when an outbound relationship candidate
	// has no end (partner) node.
	ErrMissingEndNode = errors.New("outbound relationship candidate requires an end node")
	// ErrInvalidDirection is returned for directions other than inbound and
	// outbound.
	ErrInvalidDirection = errors.New("relationship candidate direction must be inbound or outbound")
	// ErrMissingLabel is returned for candidates without a label.
	ErrMissingLabel = errors.New("candidate requires a label")
)

// Endpoint is a relationship endpoint before promotion: a *NodeCandidate, an
// *EnhancedNodeCandidate, an already promoted vertex wrapped with Existing, or
// Self.
type Endpoint interface {
	endpoint()
}

type existing struct {
	vertex graph.Vertex
}

func (existing) endpoint() {}

// Existing uses an already promoted node or enhanced node as an endpoint.
func Existing(v graph.Vertex) Endpoint {
	return existing{vertex: v}
}

type self struct{}

func (self) endpoint() {}

// Self marks a relationship whose partner is the main node itself.
var Self Endpoint = self{}

// NodeCandidate stages a node. Required keys are ALL-CAPS and form the
// node's identity; optional keys are lower case.
type NodeCandidate struct {
	Labels   []string
	Required map[string]any
	Optional map[string]any
	// Template overrides the primary label when looking up the template.
	Template string
}

func (*NodeCandidate) endpoint() {}

// NewNodeCandidate creates a node candidate. Maps are copied.
func NewNodeCandidate(labels []string, required, optional map[string]any) *NodeCandidate {
	return &NodeCandidate{
		Labels:   slices.Clone(labels),
		Required: cloneMap(required),
		Optional: cloneMap(optional),
	}
}

// FromProperties splits a flat property map by naming convention. Private
// keys are dropped.
func FromProperties(labels []string, props map[string]any) *NodeCandidate {
	p := graph.Properties(props)
	return NewNodeCandidate(labels, p.Required(), p.Optional())
}

// Label returns the primary label.
func (c *NodeCandidate) Label() string {
	if len(c.Labels) == 0 {
		return ""
	}
	return c.Labels[0]
}

// TemplateName is the label used for template lookup.
func (c *NodeCandidate) TemplateName() string {
	if c.Template != "" {
		return c.Template
	}
	return c.Label()
}

// State is always StateCandidate.
func (c *NodeCandidate) State() graph.State { return graph.StateCandidate }

// SetRequired sets a required property.
func (c *NodeCandidate) SetRequired(key string, value any) *NodeCandidate {
	if c.Required == nil {
		c.Required = map[string]any{}
	}
	c.Required[key] = value
	return c
}

// SetOptional sets an optional property.
func (c *NodeCandidate) SetOptional(key string, value any) *NodeCandidate {
	if c.Optional == nil {
		c.Optional = map[string]any{}
	}
	c.Optional[key] = value
	return c
}

// RelationshipCandidate stages a relationship between a main node and a
// partner. Direction is relative to the main node: for inbound the partner
// is StartNode, for outbound it is EndNode. The main side may be left empty
// and filled in at promotion.
type RelationshipCandidate struct {
	Label     string
	Required  map[string]any
	Optional  map[string]any
	Direction graph.Direction
	Necessity graph.Necessity
	StartNode Endpoint
	EndNode   Endpoint
}

// NewRelationshipCandidate creates a relationship candidate, rejecting one
// that lacks the partner implied by its direction.
func NewRelationshipCandidate(label string, direction graph.Direction, start, end Endpoint) (*RelationshipCandidate, error) {
	c := &RelationshipCandidate{
		Label:     label,
		Direction: direction,
		Necessity: graph.Optional,
		StartNode: start,
		EndNode:   end,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the construction invariants.
func (c *RelationshipCandidate) Validate() error {
	if c.Label == "" {
		return ErrMissingLabel
	}
	switch c.Direction {
	case graph.Inbound:
		if c.StartNode == nil {
			return ErrMissingStartNode
		}
	case graph.Outbound:
		if c.EndNode == nil {
			return ErrMissingEndNode
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDirection, c.Direction)
	}
	return nil
}

// Partner returns the endpoint opposite the main node.
func (c *RelationshipCandidate) Partner() Endpoint {
	if c.Direction == graph.Inbound {
		return c.StartNode
	}
	return c.EndNode
}

// Main returns the main-node endpoint, which may be nil.
func (c *RelationshipCandidate) Main() Endpoint {
	if c.Direction == graph.Inbound {
		return c.EndNode
	}
	return c.StartNode
}

// WithProperties sets required and optional properties.
func (c *RelationshipCandidate) WithProperties(required, optional map[string]any) *RelationshipCandidate {
	c.Required = cloneMap(required)
	c.Optional = cloneMap(optional)
	return c
}

// WithNecessity sets the necessity.
func (c *RelationshipCandidate) WithNecessity(n graph.Necessity) *RelationshipCandidate {
	c.Necessity = n
	return c
}

// State is always StateCandidate.
func (c *RelationshipCandidate) State() graph.State { return graph.StateCandidate }

// EnhancedNodeCandidate stages a node together with relationships to
// partners that may themselves be enhanced node candidates.
type EnhancedNodeCandidate struct {
	// Core is a *NodeCandidate or an Existing vertex.
	Core     Endpoint
	Inbound  []*RelationshipCandidate
	Outbound []*RelationshipCandidate
}

func (*EnhancedNodeCandidate) endpoint() {}

// NewEnhancedNodeCandidate creates an enhanced node candidate and files each
// relationship by its direction.
func NewEnhancedNodeCandidate(core Endpoint, rels ...*RelationshipCandidate) (*EnhancedNodeCandidate, error) {
	c := &EnhancedNodeCandidate{Core: core}
	if err := c.AddRelationships(rels...); err != nil {
		return nil, err
	}
	return c, nil
}

// AddRelationships files relationships by direction.
func (c *EnhancedNodeCandidate) AddRelationships(rels ...*RelationshipCandidate) error {
	for _, r := range rels {
		if r == nil {
			continue
		}
		if err := r.Validate(); err != nil {
			return err
		}
		if r.Direction == graph.Inbound {
			c.Inbound = append(c.Inbound, r)
		} else {
			c.Outbound = append(c.Outbound, r)
		}
	}
	return nil
}

// Relationships returns inbound followed by outbound candidates.
func (c *EnhancedNodeCandidate) Relationships() []*RelationshipCandidate {
	return append(slices.Clone(c.Inbound), c.Outbound...)
}

// State is always StateCandidate.
func (c *EnhancedNodeCandidate) State() graph.State { return graph.StateCandidate }

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	maps.Copy(out, m)
	return out
}
