package candidate

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/ooddaa/mango-sub002/pkg/graph"
)

// PropertiesDocument splits properties into required and optional maps.
type PropertiesDocument struct {
	Required map[string]any `json:"required,omitempty" yaml:"required,omitempty"`
	Optional map[string]any `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// NodeDocument is the wire form of a node candidate, e.g.
// {labels: [Person], properties: {required: {NAME: Jon}}}.
type NodeDocument struct {
	Labels     []string           `json:"labels" yaml:"labels"`
	Properties PropertiesDocument `json:"properties" yaml:"properties"`
	Template   string             `json:"template,omitempty" yaml:"template,omitempty"`
}

// Candidate converts d.
func (d NodeDocument) Candidate() *NodeCandidate {
	c := NewNodeCandidate(d.Labels, d.Properties.Required, d.Properties.Optional)
	c.Template = d.Template
	return c
}

// RelationshipDocument is the wire form of a relationship candidate. Inside
// an enhanced node document only the partner side is given; Self marks a
// relationship back to the enclosing node.
type RelationshipDocument struct {
	Label      string                `json:"label" yaml:"label"`
	Direction  graph.Direction       `json:"direction" yaml:"direction"`
	Necessity  graph.Necessity       `json:"necessity,omitempty" yaml:"necessity,omitempty"`
	Properties PropertiesDocument    `json:"properties" yaml:"properties"`
	StartNode  *EnhancedNodeDocument `json:"startNode,omitempty" yaml:"startNode,omitempty"`
	EndNode    *EnhancedNodeDocument `json:"endNode,omitempty" yaml:"endNode,omitempty"`
	Self       bool                  `json:"self,omitempty" yaml:"self,omitempty"`
}

// Candidate converts d.
func (d RelationshipDocument) Candidate() (*RelationshipCandidate, error) {
	start, err := d.StartNode.endpoint()
	if err != nil {
		return nil, err
	}
	end, err := d.EndNode.endpoint()
	if err != nil {
		return nil, err
	}
	if d.Self {
		if d.Direction == graph.Inbound && start == nil {
			start = Self
		}
		if d.Direction == graph.Outbound && end == nil {
			end = Self
		}
	}
	c, err := NewRelationshipCandidate(d.Label, d.Direction, start, end)
	if err != nil {
		return nil, err
	}
	c.WithProperties(d.Properties.Required, d.Properties.Optional)
	if d.Necessity != "" {
		c.WithNecessity(d.Necessity)
	}
	return c, nil
}

// EnhancedNodeDocument is a node document with nested relationships.
type EnhancedNodeDocument struct {
	NodeDocument `yaml:",inline"`
	Inbound      []RelationshipDocument `json:"inbound,omitempty" yaml:"inbound,omitempty"`
	Outbound     []RelationshipDocument `json:"outbound,omitempty" yaml:"outbound,omitempty"`
}

// IsEnhanced reports whether d carries relationships.
func (d *EnhancedNodeDocument) IsEnhanced() bool {
	return len(d.Inbound)+len(d.Outbound) > 0
}

func (d *EnhancedNodeDocument) endpoint() (Endpoint, error) {
	if d == nil {
		return nil, nil
	}
	if !d.IsEnhanced() {
		return d.NodeDocument.Candidate(), nil
	}
	return d.Candidate()
}

// Candidate converts d. Directions are taken from the list each
// relationship appears in.
func (d *EnhancedNodeDocument) Candidate() (*EnhancedNodeCandidate, error) {
	c := &EnhancedNodeCandidate{Core: d.NodeDocument.Candidate()}
	for i, rd := range d.Inbound {
		rd.Direction = graph.Inbound
		rc, err := rd.Candidate()
		if err != nil {
			return nil, fmt.Errorf("inbound[%d]: %w", i, err)
		}
		c.Inbound = append(c.Inbound, rc)
	}
	for i, rd := range d.Outbound {
		rd.Direction = graph.Outbound
		rc, err := rd.Candidate()
		if err != nil {
			return nil, fmt.Errorf("outbound[%d]: %w", i, err)
		}
		c.Outbound = append(c.Outbound, rc)
	}
	return c, nil
}

// Batch is a document holding any mix of candidates, as read by the CLI and
// the HTTP API.
type Batch struct {
	Nodes         []NodeDocument         `json:"nodes,omitempty" yaml:"nodes,omitempty"`
	Relationships []RelationshipDocument `json:"relationships,omitempty" yaml:"relationships,omitempty"`
	EnhancedNodes []EnhancedNodeDocument `json:"enhancedNodes,omitempty" yaml:"enhancedNodes,omitempty"`
}

// ReadBatch decodes a YAML or JSON batch document.
func ReadBatch(r io.Reader) (*Batch, error) {
	var b Batch
	if err := yaml.NewDecoder(r).Decode(&b); err != nil {
		if errors.Is(err, io.EOF) {
			return &b, nil
		}
		return nil, fmt.Errorf("failed to decode batch: %w", err)
	}
	return &b, nil
}

// NodeCandidates converts every node document.
func (b *Batch) NodeCandidates() []*NodeCandidate {
	out := make([]*NodeCandidate, len(b.Nodes))
	for i, d := range b.Nodes {
		out[i] = d.Candidate()
	}
	return out
}

// RelationshipCandidates converts every relationship document. Standalone
// relationships must name both endpoints.
func (b *Batch) RelationshipCandidates() ([]*RelationshipCandidate, error) {
	out := make([]*RelationshipCandidate, len(b.Relationships))
	for i, d := range b.Relationships {
		if d.StartNode == nil || d.EndNode == nil {
			return nil, fmt.Errorf("relationships[%d]: standalone relationship needs startNode and endNode", i)
		}
		c, err := d.Candidate()
		if err != nil {
			return nil, fmt.Errorf("relationships[%d]: %w", i, err)
		}
		out[i] = c
	}
	return out, nil
}

// EnhancedNodeCandidates converts every enhanced node document.
func (b *Batch) EnhancedNodeCandidates() ([]*EnhancedNodeCandidate, error) {
	out := make([]*EnhancedNodeCandidate, len(b.EnhancedNodes))
	for i := range b.EnhancedNodes {
		c, err := b.EnhancedNodes[i].Candidate()
		if err != nil {
			return nil, fmt.Errorf("enhancedNodes[%d]: %w", i, err)
		}
		out[i] = c
	}
	return out, nil
}
