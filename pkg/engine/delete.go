package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ooddaa/mango-sub002/pkg/cypher"
	"github.com/ooddaa/mango-sub002/pkg/graph"
	"github.com/ooddaa/mango-sub002/pkg/result"
	"github.com/ooddaa/mango-sub002/pkg/store"
	"github.com/ooddaa/mango-sub002/pkg/tracing"
)

// DeleteNodes detaches and deletes nodes. The store keeps nothing, so each
// result carries the node's one-hop neighbourhood as it was just before
// deletion, flagged with `_hasBeenDeleted` and `_whenWasDeleted`.
func (e *Engine) DeleteNodes(ctx context.Context, nodes []*graph.Node) []result.Result {
	ctx, span := tracing.StartSpan(ctx, "engine.Engine.DeleteNodes")
	defer span.End()
	start := time.Now()

	out := make([]result.Result, len(nodes))
	e.fanOut(ctx, len(nodes), func(ctx context.Context, i int) {
		out[i] = e.deleteNode(ctx, nodes[i])
	})

	e.finish(ctx, "delete_nodes", start, out)
	return out
}

func (e *Engine) deleteNode(ctx context.Context, n *graph.Node) result.Result {
	snapshot, res := e.enhance(ctx, n, 1)
	if res.Failure != nil {
		return res
	}
	if snapshot == nil {
		return result.Fail(result.Consistency("node to delete not found", n, res.Success.Parameters))
	}

	st := cypher.DeleteNode(snapshot.Identity)
	outcome, err := single(ctx, e.runner.Write, st)
	if err != nil {
		return result.Fail(result.Store(err, snapshot, st.Params))
	}
	if deleted := deletedCount(outcome); deleted == 0 {
		return result.Fail(result.Consistency(fmt.Sprintf("node %s was not deleted", snapshot.Identity), snapshot, st.Params))
	}

	markDeleted(snapshot.Properties, e.now())
	rels := snapshot.Relationships()
	for _, r := range rels {
		markDeleted(r.Properties, e.now())
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"node":          snapshot.Identity,
		"relationships": len(rels),
	}).Info("Node deleted")
	e.publish(ctx, func(p Publisher) error {
		if err := p.EmitNodesDeleted(ctx, []*graph.Node{snapshot.Node}); err != nil {
			return err
		}
		if len(rels) == 0 {
			return nil
		}
		return p.EmitRelationshipsDeleted(ctx, rels)
	})

	return result.OK(snapshot, st.Params, st.Cypher, summarize(st, outcome))
}

// DeleteRelationships deletes relationships found by element id, or by hash
// when they have none. Each result carries the deleted relationship, flagged
// like DeleteNodes flags nodes.
func (e *Engine) DeleteRelationships(ctx context.Context, rels []*graph.Relationship) []result.Result {
	ctx, span := tracing.StartSpan(ctx, "engine.Engine.DeleteRelationships")
	defer span.End()
	start := time.Now()

	out := make([]result.Result, len(rels))
	e.fanOut(ctx, len(rels), func(ctx context.Context, i int) {
		out[i] = e.deleteRelationship(ctx, rels[i])
	})

	e.finish(ctx, "delete_relationships", start, out)
	return out
}

func (e *Engine) deleteRelationship(ctx context.Context, r *graph.Relationship) result.Result {
	var lookup cypher.Statement
	switch {
	case r == nil:
		return result.Fail(result.Promotion("nil relationship", nil))
	case r.Identity != "":
		lookup = cypher.MatchRelationshipByID(r.Identity)
	case r.Hash() != "" && r.Label != "":
		lookup = cypher.MatchRelationships(r)
	default:
		return result.Fail(result.Promotion("relationship to delete needs an id or a hash", r))
	}

	res := e.readRelationships(ctx, lookup)
	if res.Failure != nil {
		return res
	}
	found, _ := result.DataAs[[]*graph.Relationship](res)
	if len(found) == 0 {
		return result.Fail(result.Consistency("relationship to delete not found", r, lookup.Params))
	}
	snapshot := found[0]

	st := cypher.DeleteRelationship(snapshot.Identity)
	outcome, err := single(ctx, e.runner.Write, st)
	if err != nil {
		return result.Fail(result.Store(err, snapshot, st.Params))
	}
	if deletedCount(outcome) == 0 {
		return result.Fail(result.Consistency(fmt.Sprintf("relationship %s was not deleted", snapshot.Identity), snapshot, st.Params))
	}

	markDeleted(snapshot.Properties, e.now())
	e.publish(ctx, func(p Publisher) error {
		return p.EmitRelationshipsDeleted(ctx, []*graph.Relationship{snapshot})
	})

	return result.OK(snapshot, st.Params, st.Cypher, summarize(st, outcome))
}

func deletedCount(o store.Outcome) int64 {
	if len(o.Records) == 0 {
		return 0
	}
	return store.IntAt(o.Records[0], "deleted")
}

func markDeleted(props graph.Properties, when time.Time) {
	props[graph.KeyHasBeenDeleted] = true
	props[graph.KeyWhenWasDeleted] = graph.DateArray(when)
}
