package engine

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/Gobusters/ectolinq"

	"github.com/ooddaa/mango-sub002/pkg/cypher"
	"github.com/ooddaa/mango-sub002/pkg/graph"
	"github.com/ooddaa/mango-sub002/pkg/result"
	"github.com/ooddaa/mango-sub002/pkg/store"
	"github.com/ooddaa/mango-sub002/pkg/tracing"
)

// batch is a group of input indexes written by one statement.
type batch struct {
	key     string
	indexes []int
}

func groupBy(n int, key func(i int) (string, bool)) []*batch {
	var order []*batch
	byKey := map[string]*batch{}
	for i := range n {
		k, ok := key(i)
		if !ok {
			continue
		}
		b, seen := byKey[k]
		if !seen {
			b = &batch{key: k}
			byKey[k] = b
			order = append(order, b)
		}
		b.indexes = append(b.indexes, i)
	}
	return order
}

// MergeNodes upserts nodes by (label, hash), one batched statement per label
// set. Inputs must be promoted. On success each input is stamped with its
// identity and `_uuid`, and the result carries the stored node. A re-merge
// does not overwrite stored optional properties, and the input keeps any
// conflicting values of its own; the node in the result is authoritative.
func (e *Engine) MergeNodes(ctx context.Context, nodes []*graph.Node) []result.Result {
	ctx, span := tracing.StartSpan(ctx, "engine.Engine.MergeNodes")
	defer span.End()
	start := time.Now()

	out := make([]result.Result, len(nodes))
	stored := make([]*graph.Node, len(nodes))

	batches := groupBy(len(nodes), func(i int) (string, bool) {
		n := nodes[i]
		switch {
		case n == nil:
			out[i] = result.Fail(result.Promotion("nil node", nil))
			return "", false
		case len(n.Labels) == 0:
			out[i] = result.Fail(result.Promotion("node has no label", n))
			return "", false
		case !n.IsWritable():
			out[i] = result.Fail(result.Promotion("node has no hash", n))
			return "", false
		}
		return cypher.GroupKey(n.Labels), true
	})

	e.fanOut(ctx, len(batches), func(ctx context.Context, b int) {
		indexes := batches[b].indexes
		rows := ectolinq.Map(indexes, func(i int) cypher.NodeRow {
			return cypher.NodeRow{Index: i, Node: nodes[i], UUID: e.newUUID()}
		})
		st := cypher.MergeNodes(nodes[indexes[0]].Labels, rows)

		outcome, err := single(ctx, e.runner.Write, st)
		if err != nil {
			for _, i := range indexes {
				out[i] = result.Fail(result.Store(err, nodes[i], st.Params))
			}
			return
		}

		byIndex := map[int]*graph.Node{}
		for _, rec := range outcome.Records {
			n, ok, err := store.NodeAt(rec, "n")
			if err != nil || !ok {
				continue
			}
			byIndex[int(store.IntAt(rec, "index"))] = n
		}

		summary := summarize(st, outcome)
		for _, i := range indexes {
			n, ok := byIndex[i]
			switch {
			case !ok:
				out[i] = result.Fail(result.Consistency(fmt.Sprintf("node %s missing from merge result", nodes[i].Hash()), nodes[i], nil))
			case !n.IsWritten() || n.Hash() != nodes[i].Hash():
				out[i] = result.Fail(result.Consistency(fmt.Sprintf("node %s is not written", nodes[i].Hash()), n, nil))
			default:
				stored[i] = n
				out[i] = result.OK(n, nil, st.Cypher, summary)
			}
		}
	})

	var merged []*graph.Node
	for i, n := range stored {
		if n == nil {
			continue
		}
		nodes[i].Absorb(n)
		merged = append(merged, n)
	}
	if len(merged) > 0 {
		e.publish(ctx, func(p Publisher) error { return p.EmitNodesMerged(ctx, merged) })
	}

	e.finish(ctx, "merge_nodes", start, out)
	return out
}

// MergeRelationships upserts relationships by hash, creating stub endpoints
// for any endpoint hash the store does not know yet. One statement is
// issued per (type, start labels, end labels). A relationship that does not
// come back fully written is a Consistency failure.
func (e *Engine) MergeRelationships(ctx context.Context, rels []*graph.Relationship) []result.Result {
	ctx, span := tracing.StartSpan(ctx, "engine.Engine.MergeRelationships")
	defer span.End()
	start := time.Now()

	out := make([]result.Result, len(rels))
	stored := make([]*graph.Relationship, len(rels))

	batches := groupBy(len(rels), func(i int) (string, bool) {
		r := rels[i]
		switch {
		case r == nil:
			out[i] = result.Fail(result.Promotion("nil relationship", nil))
			return "", false
		case !r.IsWritable():
			out[i] = result.Fail(result.Promotion(fmt.Sprintf("relationship %s is not writable", r.Label), r))
			return "", false
		case len(r.StartNode.Core().Labels) == 0 || len(r.EndNode.Core().Labels) == 0:
			out[i] = result.Fail(result.Promotion(fmt.Sprintf("relationship %s endpoint has no label", r.Label), r))
			return "", false
		}
		return cypher.RelationshipGroupKey(r), true
	})

	e.fanOut(ctx, len(batches), func(ctx context.Context, b int) {
		indexes := batches[b].indexes
		rows := ectolinq.Map(indexes, func(i int) cypher.RelationshipRow {
			return cypher.RelationshipRow{
				Index:        i,
				Relationship: rels[i],
				UUID:         e.newUUID(),
				StartUUID:    e.newUUID(),
				EndUUID:      e.newUUID(),
			}
		})
		st := cypher.MergeRelationships(rows)

		outcome, err := single(ctx, e.runner.Write, st)
		if err != nil {
			for _, i := range indexes {
				out[i] = result.Fail(result.Store(err, rels[i], st.Params))
			}
			return
		}

		byIndex := map[int]*graph.Relationship{}
		for _, rec := range outcome.Records {
			r, ok, err := store.TripleAt(rec, "s", "r", "e")
			if err != nil || !ok {
				continue
			}
			byIndex[int(store.IntAt(rec, "index"))] = r
		}

		summary := summarize(st, outcome)
		for _, i := range indexes {
			r, ok := byIndex[i]
			if !ok {
				out[i] = result.Fail(result.Consistency(fmt.Sprintf("relationship %s missing from merge result", rels[i].Hash()), rels[i], nil))
				continue
			}
			r.Direction = rels[i].Direction
			r.Necessity = rels[i].Necessity
			if !r.IsWritten() || r.Hash() != rels[i].Hash() {
				out[i] = result.Fail(result.Consistency(fmt.Sprintf("relationship %s is not written", rels[i].Hash()), r, nil))
				continue
			}
			stored[i] = r
			out[i] = result.OK(r, nil, st.Cypher, summary)
		}
	})

	// Endpoints may be shared between inputs, so they are stamped after the
	// join.
	var merged []*graph.Relationship
	for i, r := range stored {
		if r == nil {
			continue
		}
		rels[i].Absorb(r)
		rels[i].StartNode.Core().Absorb(r.StartNode.Core())
		rels[i].EndNode.Core().Absorb(r.EndNode.Core())
		merged = append(merged, r)
	}
	if len(merged) > 0 {
		e.publish(ctx, func(p Publisher) error { return p.EmitRelationshipsMerged(ctx, merged) })
	}

	e.finish(ctx, "merge_relationships", start, out)
	return out
}

// MergeEnhancedNodes writes whole subgraphs: every participating node of
// every input is merged first, identities are propagated back, then every
// participating relationship is merged and propagated. A failure in either
// phase fails every input, even though the store may keep what the node
// phase wrote.
func (e *Engine) MergeEnhancedNodes(ctx context.Context, enodes []*graph.EnhancedNode) []result.Result {
	ctx, span := tracing.StartSpan(ctx, "engine.Engine.MergeEnhancedNodes")
	defer span.End()
	start := time.Now()

	out := make([]result.Result, len(enodes))
	var valid []int
	for i, en := range enodes {
		switch {
		case en == nil || en.Node == nil:
			out[i] = result.Fail(result.Promotion("nil enhanced node", nil))
		case !en.IsWritable():
			out[i] = result.Fail(result.Promotion("enhanced node is not writable", en))
		default:
			valid = append(valid, i)
		}
	}
	if len(valid) == 0 {
		e.finish(ctx, "merge_enhanced_nodes", start, out)
		return out
	}

	abort := func(phase string, f *result.Failure) []result.Result {
		e.logger.WithContext(ctx).WithFields(map[string]any{
			"phase":  phase,
			"kind":   f.Kind,
			"inputs": len(valid),
		}).Error("Enhanced node merge aborted")
		for _, i := range valid {
			out[i] = result.Fail(&result.Failure{
				Kind:       f.Kind,
				Reason:     fmt.Sprintf("%s phase failed: %s", phase, f.Reason),
				Data:       enodes[i],
				Parameters: f.Parameters,
				Err:        f,
			})
		}
		e.finish(ctx, "merge_enhanced_nodes", start, out)
		return out
	}

	// (1) one node per hash across all inputs
	nodeMap := map[string]*graph.Node{}
	for _, i := range valid {
		for hash, n := range enodes[i].ParticipatingNodeMap() {
			if existing, ok := nodeMap[hash]; !ok || len(n.Properties) > len(existing.Properties) {
				nodeMap[hash] = n
			}
		}
	}
	nodeHashes := slices.Sorted(maps.Keys(nodeMap))
	nodes := ectolinq.Map(nodeHashes, func(h string) *graph.Node { return nodeMap[h].Clone() })

	// (2)
	nodeResults := e.MergeNodes(ctx, nodes)
	if failures := result.Failures(nodeResults); len(failures) > 0 {
		return abort("node", failures[0].Failure)
	}

	// (3)
	storedNodes := map[string]*graph.Node{}
	for _, r := range nodeResults {
		n, _ := result.DataAs[*graph.Node](r)
		storedNodes[n.Hash()] = n
	}
	for _, i := range valid {
		if err := enodes[i].IdentifyParticipatingNodes(storedNodes); err != nil {
			return abort("node", result.Consistency(err.Error(), enodes[i], nil))
		}
	}

	// (4)
	relMap := map[string]*graph.Relationship{}
	for _, i := range valid {
		maps.Copy(relMap, enodes[i].ParticipatingRelationshipMap(true))
	}
	relHashes := slices.Sorted(maps.Keys(relMap))
	rels := ectolinq.Map(relHashes, func(h string) *graph.Relationship { return relMap[h] })

	// (5)
	relResults := e.MergeRelationships(ctx, rels)
	if failures := result.Failures(relResults); len(failures) > 0 {
		return abort("relationship", failures[0].Failure)
	}

	// (6)
	storedRels := map[string]*graph.Relationship{}
	for _, r := range relResults {
		rel, _ := result.DataAs[*graph.Relationship](r)
		storedRels[rel.Hash()] = rel
	}
	for _, i := range valid {
		en := enodes[i]
		if err := en.IdentifyParticipatingRelationships(storedRels); err != nil {
			out[i] = result.Fail(result.Consistency(err.Error(), en, nil))
			continue
		}
		if !en.IsWritten() {
			out[i] = result.Fail(result.Consistency("enhanced node is not written after merge", en, nil))
			continue
		}
		out[i] = result.OK(en, nil, "", nil)
	}

	e.finish(ctx, "merge_enhanced_nodes", start, out)
	return out
}
