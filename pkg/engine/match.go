package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ooddaa/mango-sub002/pkg/criteria"
	"github.com/ooddaa/mango-sub002/pkg/cypher"
	"github.com/ooddaa/mango-sub002/pkg/graph"
	"github.com/ooddaa/mango-sub002/pkg/result"
	"github.com/ooddaa/mango-sub002/pkg/store"
	"github.com/ooddaa/mango-sub002/pkg/tracing"
)

// MatchNodes looks each node up by hash, or by its non-private properties
// when it has none. Data is a []*graph.Node, empty when nothing matched.
func (e *Engine) MatchNodes(ctx context.Context, nodes []*graph.Node) []result.Result {
	ctx, span := tracing.StartSpan(ctx, "engine.Engine.MatchNodes")
	defer span.End()
	start := time.Now()

	out := make([]result.Result, len(nodes))
	e.fanOut(ctx, len(nodes), func(ctx context.Context, i int) {
		n := nodes[i]
		if n == nil || len(n.Labels) == 0 {
			out[i] = result.Fail(result.Promotion("node to match needs a label", n))
			return
		}
		out[i] = e.readNodes(ctx, cypher.MatchNodes(n))
	})

	e.finish(ctx, "match_nodes", start, out)
	return out
}

// MatchNodesByID looks nodes up by element id. Data is a []*graph.Node with
// zero or one entry.
func (e *Engine) MatchNodesByID(ctx context.Context, ids []string) []result.Result {
	ctx, span := tracing.StartSpan(ctx, "engine.Engine.MatchNodesByID")
	defer span.End()
	start := time.Now()

	out := make([]result.Result, len(ids))
	e.fanOut(ctx, len(ids), func(ctx context.Context, i int) {
		if ids[i] == "" {
			out[i] = result.Fail(result.Promotion("empty node id", nil))
			return
		}
		out[i] = e.readNodes(ctx, cypher.MatchNodeByID(ids[i]))
	})

	e.finish(ctx, "match_nodes_by_id", start, out)
	return out
}

// MatchRelationships looks each relationship up by hash, or by type,
// endpoint hashes and non-private properties. Data is a
// []*graph.Relationship.
func (e *Engine) MatchRelationships(ctx context.Context, rels []*graph.Relationship) []result.Result {
	ctx, span := tracing.StartSpan(ctx, "engine.Engine.MatchRelationships")
	defer span.End()
	start := time.Now()

	out := make([]result.Result, len(rels))
	e.fanOut(ctx, len(rels), func(ctx context.Context, i int) {
		r := rels[i]
		if r == nil || r.Label == "" {
			out[i] = result.Fail(result.Promotion("relationship to match needs a type", r))
			return
		}
		out[i] = e.readRelationships(ctx, cypher.MatchRelationships(r))
	})

	e.finish(ctx, "match_relationships", start, out)
	return out
}

// MatchRelationshipsByID looks relationships up by element id.
func (e *Engine) MatchRelationshipsByID(ctx context.Context, ids []string) []result.Result {
	ctx, span := tracing.StartSpan(ctx, "engine.Engine.MatchRelationshipsByID")
	defer span.End()
	start := time.Now()

	out := make([]result.Result, len(ids))
	e.fanOut(ctx, len(ids), func(ctx context.Context, i int) {
		if ids[i] == "" {
			out[i] = result.Fail(result.Promotion("empty relationship id", nil))
			return
		}
		out[i] = e.readRelationships(ctx, cypher.MatchRelationshipByID(ids[i]))
	})

	e.finish(ctx, "match_relationships_by_id", start, out)
	return out
}

// MatchPartialNodes runs one criteria match per partial node. A partial node
// that does not compile is a Promotion failure.
func (e *Engine) MatchPartialNodes(ctx context.Context, partials []criteria.PartialNode) []result.Result {
	ctx, span := tracing.StartSpan(ctx, "engine.Engine.MatchPartialNodes")
	defer span.End()
	start := time.Now()

	out := make([]result.Result, len(partials))
	e.fanOut(ctx, len(partials), func(ctx context.Context, i int) {
		p := partials[i]
		if len(p.Labels) == 0 {
			out[i] = result.Fail(result.Promotion("partial node needs a label", p))
			return
		}
		st, err := cypher.MatchPartialNodes(p)
		if err != nil {
			out[i] = result.Fail(&result.Failure{Kind: result.KindPromotion, Reason: err.Error(), Data: p, Err: err})
			return
		}
		out[i] = e.readNodes(ctx, st)
	})

	e.finish(ctx, "match_partial_nodes", start, out)
	return out
}

// EnhanceNodes rebuilds each node's neighbourhood up to hops steps away as an
// EnhancedNode. hops below 1 uses the engine default. Data is a
// *graph.EnhancedNode, or nil when the node is not in the store.
func (e *Engine) EnhanceNodes(ctx context.Context, nodes []*graph.Node, hops int) []result.Result {
	ctx, span := tracing.StartSpan(ctx, "engine.Engine.EnhanceNodes")
	defer span.End()
	start := time.Now()

	if hops < 1 {
		hops = e.hops
	}

	out := make([]result.Result, len(nodes))
	e.fanOut(ctx, len(nodes), func(ctx context.Context, i int) {
		en, res := e.enhance(ctx, nodes[i], hops)
		if res.Failure != nil {
			out[i] = res
			return
		}
		out[i] = result.OK(en, res.Success.Parameters, res.Success.Query, res.Success.Summary)
	})

	e.finish(ctx, "enhance_nodes", start, out)
	return out
}

// enhance returns the rebuilt node, or nil if it was not found, together with
// a result carrying the query or the failure.
func (e *Engine) enhance(ctx context.Context, n *graph.Node, hops int) (*graph.EnhancedNode, result.Result) {
	if n == nil || (n.Identity == "" && n.Hash() == "") {
		return nil, result.Fail(result.Promotion("node to enhance needs an id or a hash", n))
	}

	st := cypher.Neighbourhood(n, hops)
	outcome, err := single(ctx, e.runner.Read, st)
	if err != nil {
		return nil, result.Fail(result.Store(err, n, st.Params))
	}
	ok := result.OK(nil, st.Params, st.Cypher, summarize(st, outcome))
	if len(outcome.Records) == 0 {
		return nil, ok
	}

	root, found, err := store.NodeAt(outcome.Records[0], "root")
	if err != nil || !found {
		return nil, result.Fail(result.Consistency(fmt.Sprintf("neighbourhood of %s has no root", n.Hash()), n, st.Params))
	}
	rels, err := store.Triples(outcome.Records, "s", "r", "e")
	if err != nil {
		return nil, result.Fail(result.Consistency(err.Error(), n, st.Params))
	}

	en, err := graph.NewEnhancedNode(root, nil, nil).Deepen(rels)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("node", root.Identity).Warn("Failed to rebuild neighbourhood")
		return nil, result.Fail(result.Consistency(err.Error(), root, st.Params))
	}
	return en, ok
}

func (e *Engine) readNodes(ctx context.Context, st cypher.Statement) result.Result {
	outcome, err := single(ctx, e.runner.Read, st)
	if err != nil {
		return result.Fail(result.Store(err, nil, st.Params))
	}
	nodes, err := decodeNodes(outcome.Records, "n")
	if err != nil {
		return result.Fail(result.Consistency(err.Error(), nil, st.Params))
	}
	return result.OK(nodes, st.Params, st.Cypher, summarize(st, outcome))
}

func (e *Engine) readRelationships(ctx context.Context, st cypher.Statement) result.Result {
	outcome, err := single(ctx, e.runner.Read, st)
	if err != nil {
		return result.Fail(result.Store(err, nil, st.Params))
	}
	rels, err := store.Triples(outcome.Records, "s", "r", "e")
	if err != nil {
		return result.Fail(result.Consistency(err.Error(), nil, st.Params))
	}
	return result.OK(rels, st.Params, st.Cypher, summarize(st, outcome))
}

func decodeNodes(records []*neo4j.Record, key string) ([]*graph.Node, error) {
	nodes := make([]*graph.Node, 0, len(records))
	for _, rec := range records {
		n, ok, err := store.NodeAt(rec, key)
		if err != nil {
			return nil, err
		}
		if ok {
			nodes = append(nodes, n)
		}
	}
	return nodes, nil
}
