package graph

import "encoding/json"

// NodeDocument is the serialized form of a node.
type NodeDocument struct {
	Labels     []string               `json:"labels" yaml:"labels"`
	Properties map[string]any         `json:"properties" yaml:"properties"`
	Identity   string                 `json:"identity,omitempty" yaml:"identity,omitempty"`
	Inbound    []RelationshipDocument `json:"inbound,omitempty" yaml:"inbound,omitempty"`
	Outbound   []RelationshipDocument `json:"outbound,omitempty" yaml:"outbound,omitempty"`
}

// RelationshipDocument is the serialized form of a relationship. Inside an
// enhanced node only the partner endpoint is embedded; the main endpoint is
// the enclosing document.
type RelationshipDocument struct {
	Label      string         `json:"label" yaml:"label"`
	Properties map[string]any `json:"properties" yaml:"properties"`
	Identity   string         `json:"identity,omitempty" yaml:"identity,omitempty"`
	Direction  Direction      `json:"direction,omitempty" yaml:"direction,omitempty"`
	Necessity  Necessity      `json:"necessity,omitempty" yaml:"necessity,omitempty"`
	StartNode  *NodeDocument  `json:"startNode,omitempty" yaml:"startNode,omitempty"`
	EndNode    *NodeDocument  `json:"endNode,omitempty" yaml:"endNode,omitempty"`
}

func nodeDocument(n *Node) *NodeDocument {
	if n == nil {
		return nil
	}
	return &NodeDocument{
		Labels:     n.Labels,
		Properties: n.Properties,
		Identity:   n.Identity,
	}
}

// Document renders n.
func (n *Node) Document() *NodeDocument { return nodeDocument(n) }

// MarshalJSON renders n as a NodeDocument.
func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(nodeDocument(n))
}

// Document renders r with both endpoints as plain nodes.
func (r *Relationship) Document() RelationshipDocument {
	doc := RelationshipDocument{
		Label:      r.Label,
		Properties: r.Properties,
		Identity:   r.Identity,
		Direction:  r.Direction,
		Necessity:  r.Necessity,
	}
	if r.StartNode != nil {
		doc.StartNode = nodeDocument(r.StartNode.Core())
	}
	if r.EndNode != nil {
		doc.EndNode = nodeDocument(r.EndNode.Core())
	}
	return doc
}

// MarshalJSON renders r as a RelationshipDocument.
func (r *Relationship) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Document())
}

// Document renders e with its partners embedded. Enhanced partners reached a
// second time are rendered as plain nodes so shared or cyclic structures
// serialize finitely.
func (e *EnhancedNode) Document() *NodeDocument {
	return e.document(make(map[*EnhancedNode]bool))
}

func (e *EnhancedNode) document(visited map[*EnhancedNode]bool) *NodeDocument {
	visited[e] = true
	doc := nodeDocument(e.Node)

	partnerDoc := func(v Vertex) *NodeDocument {
		if pe, ok := v.(*EnhancedNode); ok && pe != nil && !visited[pe] {
			return pe.document(visited)
		}
		if v == nil {
			return nil
		}
		return nodeDocument(v.Core())
	}

	for _, r := range e.inbound {
		rd := RelationshipDocument{
			Label: r.Label, Properties: r.Properties, Identity: r.Identity,
			Direction: Inbound, Necessity: r.Necessity,
		}
		rd.StartNode = partnerDoc(r.StartNode)
		doc.Inbound = append(doc.Inbound, rd)
	}
	for _, r := range e.outbound {
		rd := RelationshipDocument{
			Label: r.Label, Properties: r.Properties, Identity: r.Identity,
			Direction: Outbound, Necessity: r.Necessity,
		}
		rd.EndNode = partnerDoc(r.EndNode)
		doc.Outbound = append(doc.Outbound, rd)
	}
	return doc
}

// MarshalJSON renders e as a nested NodeDocument.
func (e *EnhancedNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Document())
}
