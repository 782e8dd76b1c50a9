package engine

import (
	"context"
	"fmt"

	"github.com/ooddaa/mango-sub002/pkg/candidate"
	"github.com/ooddaa/mango-sub002/pkg/graph"
	"github.com/ooddaa/mango-sub002/pkg/result"
	"github.com/ooddaa/mango-sub002/pkg/tracing"
)

// BatchResults holds one result per document of a candidate.Batch, in
// document order.
type BatchResults struct {
	Nodes         []result.Result `json:"nodes,omitempty"`
	Relationships []result.Result `json:"relationships,omitempty"`
	EnhancedNodes []result.Result `json:"enhancedNodes,omitempty"`
}

// Failed counts the failures across the three lists.
func (b *BatchResults) Failed() int {
	return len(result.Failures(b.Nodes)) + len(result.Failures(b.Relationships)) + len(result.Failures(b.EnhancedNodes))
}

// MergeNodeCandidates promotes the candidates and merges those that
// promote. Candidates that do not promote keep their Validation or Promotion
// failure in their slot.
func (e *Engine) MergeNodeCandidates(ctx context.Context, cs []*candidate.NodeCandidate) []result.Result {
	return splice(e.builder.Nodes(ctx, cs), func(nodes []*graph.Node) []result.Result {
		return e.MergeNodes(ctx, nodes)
	})
}

// MergeRelationshipCandidates promotes and merges relationship candidates.
func (e *Engine) MergeRelationshipCandidates(ctx context.Context, cs []*candidate.RelationshipCandidate) []result.Result {
	return splice(e.builder.Relationships(ctx, cs), func(rels []*graph.Relationship) []result.Result {
		return e.MergeRelationships(ctx, rels)
	})
}

// MergeEnhancedNodeCandidates promotes and merges enhanced node candidates.
// The enhanced merge is all-or-nothing over the candidates that promoted.
func (e *Engine) MergeEnhancedNodeCandidates(ctx context.Context, cs []*candidate.EnhancedNodeCandidate) []result.Result {
	return splice(e.builder.EnhancedNodes(ctx, cs), func(enodes []*graph.EnhancedNode) []result.Result {
		return e.MergeEnhancedNodes(ctx, enodes)
	})
}

// MergeBatch merges every document of b: plain nodes first, then
// relationships, then enhanced nodes. An error means a document could not
// be turned into a candidate and nothing was written.
func (e *Engine) MergeBatch(ctx context.Context, b *candidate.Batch) (*BatchResults, error) {
	ctx, span := tracing.StartSpan(ctx, "engine.Engine.MergeBatch")
	defer span.End()

	rels, err := b.RelationshipCandidates()
	if err != nil {
		return nil, err
	}
	enodes, err := b.EnhancedNodeCandidates()
	if err != nil {
		return nil, err
	}

	out := &BatchResults{}
	if len(b.Nodes) > 0 {
		out.Nodes = e.MergeNodeCandidates(ctx, b.NodeCandidates())
	}
	if len(rels) > 0 {
		out.Relationships = e.MergeRelationshipCandidates(ctx, rels)
	}
	if len(enodes) > 0 {
		out.EnhancedNodes = e.MergeEnhancedNodeCandidates(ctx, enodes)
	}
	return out, nil
}

// splice feeds the successfully promoted values to merge and writes its
// results back into the slots the values came from.
func splice[T any](promoted []result.Result, merge func([]T) []result.Result) []result.Result {
	out := make([]result.Result, len(promoted))
	values := make([]T, 0, len(promoted))
	slots := make([]int, 0, len(promoted))
	for i, r := range promoted {
		if r.Failure != nil {
			out[i] = r
			continue
		}
		v, ok := result.DataAs[T](r)
		if !ok {
			out[i] = result.Fail(result.Promotion(fmt.Sprintf("promotion returned %T", r.Data()), r.Data()))
			continue
		}
		values = append(values, v)
		slots = append(slots, i)
	}
	if len(values) == 0 {
		return out
	}

	merged := merge(values)
	for j, slot := range slots {
		out[slot] = merged[j]
	}
	return out
}
