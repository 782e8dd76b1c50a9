package engine

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/ooddaa/mango-sub002/pkg/candidate"
	"github.com/ooddaa/mango-sub002/pkg/cypher"
	"github.com/ooddaa/mango-sub002/pkg/graph"
	"github.com/ooddaa/mango-sub002/pkg/hashing"
	"github.com/ooddaa/mango-sub002/pkg/result"
	"github.com/ooddaa/mango-sub002/pkg/store"
	"github.com/ooddaa/mango-sub002/pkg/tracing"
)

// NodeUpdate describes a new version of a written node. Keys in Required and
// Optional overwrite the node's current values; a nil value removes the key.
type NodeUpdate struct {
	Node     *graph.Node
	Required map[string]any
	Optional map[string]any
}

// Update is the data of a successful UpdateNodes result.
type Update struct {
	Previous *graph.Node `json:"previous"`
	Current  *graph.Node `json:"current"`
	// Link is the HAS_UPDATE relationship from Previous to Current.
	Link *graph.Relationship `json:"link"`
	// EndedRelationships counts the relationships of Previous that were
	// stamped with `_date_ended`.
	EndedRelationships int64 `json:"endedRelationships"`
}

// Edit overwrites properties of the entity with the given element id. A nil
// value removes the property.
type Edit struct {
	ID         string         `json:"id" yaml:"id"`
	Properties map[string]any `json:"properties" yaml:"properties"`
}

var immutableKeys = []string{graph.KeyHash, graph.KeyUUID, graph.KeyLabel}

// UpdateNodes versions nodes without touching their content: each update
// promotes a new current node from the old properties plus the changes,
// links old to new with HAS_UPDATE, ends the old node's other relationships
// and flags the old node as no longer current. Data is an *Update.
func (e *Engine) UpdateNodes(ctx context.Context, updates []NodeUpdate) []result.Result {
	ctx, span := tracing.StartSpan(ctx, "engine.Engine.UpdateNodes")
	defer span.End()
	start := time.Now()

	out := make([]result.Result, len(updates))
	e.fanOut(ctx, len(updates), func(ctx context.Context, i int) {
		out[i] = e.update(ctx, updates[i])
	})

	e.finish(ctx, "update_nodes", start, out)
	return out
}

func (e *Engine) update(ctx context.Context, u NodeUpdate) result.Result {
	old := u.Node
	switch {
	case old == nil || !old.IsWritten():
		return result.Fail(result.Promotion("node to update must be written", old))
	case len(u.Required) == 0 && len(u.Optional) == 0:
		return result.Fail(result.Promotion("update has no changes", old))
	}

	// The updater is built from what the store holds, not from the caller's
	// copy.
	res := e.readNodes(ctx, cypher.MatchNodeByID(old.Identity))
	if res.Failure != nil {
		return res
	}
	found, _ := result.DataAs[[]*graph.Node](res)
	if len(found) == 0 {
		return result.Fail(result.Consistency(fmt.Sprintf("node %s not found", old.Identity), old, nil))
	}
	if current, ok := found[0].Properties[graph.KeyIsCurrent].(bool); ok && !current {
		return result.Fail(result.Consistency(fmt.Sprintf("node %s is no longer current", old.Hash()), found[0], nil))
	}

	c, err := updaterCandidate(found[0], u)
	if err != nil {
		return result.Fail(result.Promotion(err.Error(), u))
	}
	updater, err := e.builder.Node(ctx, c)
	if err != nil {
		return toFailure(err)
	}

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"previous": old.Hash(),
		"updater":  updater.Hash(),
	})

	if e.locker != nil {
		release, err := e.locker.Hold(ctx, old.Hash())
		if err != nil {
			log.WithError(err).Warn("Failed to acquire version lock")
			return result.Fail(result.Store(fmt.Errorf("version lock: %w", err), old, nil))
		}
		defer func() {
			if err := release(ctx); err != nil {
				log.WithError(err).Warn("Failed to release version lock")
			}
		}()
	}

	st := cypher.UpdateNode(cypher.NodeUpdate{
		PreviousID: old.Identity,
		Updater:    updater,
		UpdaterID:  e.newUUID(),
		LinkHash:   hashing.Relationship(cypher.HasUpdate, nil, old.Hash(), updater.Hash()),
		LinkUUID:   e.newUUID(),
		When:       graph.DateArray(e.now()),
	})
	outcome, err := single(ctx, e.runner.Write, st)
	if err != nil {
		return result.Fail(result.Store(err, old, st.Params))
	}
	if len(outcome.Records) == 0 {
		return result.Fail(result.Consistency(fmt.Sprintf("node %s is missing or no longer current", old.Hash()), old, st.Params))
	}

	rec := outcome.Records[0]
	link, ok, err := store.TripleAt(rec, "old", "u", "new")
	if err != nil || !ok {
		return result.Fail(result.Consistency(fmt.Sprintf("update of %s returned no link", old.Hash()), old, st.Params))
	}
	data := &Update{
		Previous:           link.StartNode.Core(),
		Current:            link.EndNode.Core(),
		Link:               link,
		EndedRelationships: store.IntAt(rec, "ended"),
	}
	if !link.IsWritten() {
		return result.Fail(result.Consistency(fmt.Sprintf("update of %s is not written", old.Hash()), data, st.Params))
	}

	old.Absorb(data.Previous)
	old.Properties[graph.KeyIsCurrent] = false
	old.Properties[graph.KeyHasBeenUpdated] = true
	old.Properties[graph.KeyUpdaterHash] = updater.Hash()

	log.WithField("ended", data.EndedRelationships).Info("Node updated")
	e.publish(ctx, func(p Publisher) error { return p.EmitNodeUpdated(ctx, data.Previous, data.Current) })

	return result.OK(data, st.Params, st.Cypher, summarize(st, outcome))
}

// updaterCandidate rebuilds a candidate from old's public properties and
// applies the changes. The updater keeps old's labels and template.
func updaterCandidate(old *graph.Node, u NodeUpdate) (*candidate.NodeCandidate, error) {
	c := candidate.FromProperties(old.Labels, old.Properties)
	c.Template = old.Properties.String(graph.KeyTemplate)

	for k, v := range u.Required {
		if graph.IsPrivate(k) {
			return nil, fmt.Errorf("key %q is reserved", k)
		}
		k = strings.ToUpper(k)
		if v == nil {
			delete(c.Required, k)
			continue
		}
		c.SetRequired(k, v)
	}
	for k, v := range u.Optional {
		if graph.IsPrivate(k) {
			return nil, fmt.Errorf("key %q is reserved", k)
		}
		if v == nil {
			delete(c.Optional, k)
			continue
		}
		c.SetOptional(k, v)
	}
	return c, nil
}

// EditNodesByID overwrites node properties in place, without versioning.
// Changing a required property recomputes `_hash`. Data is the edited node.
func (e *Engine) EditNodesByID(ctx context.Context, edits []Edit) []result.Result {
	ctx, span := tracing.StartSpan(ctx, "engine.Engine.EditNodesByID")
	defer span.End()
	start := time.Now()

	out := make([]result.Result, len(edits))
	e.fanOut(ctx, len(edits), func(ctx context.Context, i int) {
		out[i] = e.editNode(ctx, edits[i])
	})

	e.finish(ctx, "edit_nodes", start, out)
	return out
}

func (e *Engine) editNode(ctx context.Context, ed Edit) result.Result {
	if f := checkEdit(ed); f != nil {
		return result.Fail(f)
	}

	res := e.readNodes(ctx, cypher.MatchNodeByID(ed.ID))
	if res.Failure != nil {
		return res
	}
	nodes, _ := result.DataAs[[]*graph.Node](res)
	if len(nodes) == 0 {
		return result.Fail(result.Consistency(fmt.Sprintf("node %s not found", ed.ID), ed, nil))
	}

	edited := graph.NewNode(nodes[0].Labels, applyEdit(nodes[0].Properties, ed.Properties))
	props := maps.Clone(ed.Properties)
	if nodes[0].Hash() != "" {
		if hash := edited.ComputeHash(); hash != nodes[0].Hash() {
			props[graph.KeyHash] = hash
		}
	}

	st := cypher.EditNode(ed.ID, props)
	outcome, err := single(ctx, e.runner.Write, st)
	if err != nil {
		return result.Fail(result.Store(err, ed, st.Params))
	}
	written, err := decodeNodes(outcome.Records, "n")
	if err != nil || len(written) == 0 {
		return result.Fail(result.Consistency(fmt.Sprintf("node %s vanished during edit", ed.ID), ed, st.Params))
	}
	return result.OK(written[0], st.Params, st.Cypher, summarize(st, outcome))
}

// EditRelationships overwrites relationship properties in place. Changing a
// required property recomputes `_hash`. Data is the edited relationship.
func (e *Engine) EditRelationships(ctx context.Context, edits []Edit) []result.Result {
	ctx, span := tracing.StartSpan(ctx, "engine.Engine.EditRelationships")
	defer span.End()
	start := time.Now()

	out := make([]result.Result, len(edits))
	e.fanOut(ctx, len(edits), func(ctx context.Context, i int) {
		out[i] = e.editRelationship(ctx, edits[i])
	})

	e.finish(ctx, "edit_relationships", start, out)
	return out
}

func (e *Engine) editRelationship(ctx context.Context, ed Edit) result.Result {
	if f := checkEdit(ed); f != nil {
		return result.Fail(f)
	}

	res := e.readRelationships(ctx, cypher.MatchRelationshipByID(ed.ID))
	if res.Failure != nil {
		return res
	}
	rels, _ := result.DataAs[[]*graph.Relationship](res)
	if len(rels) == 0 {
		return result.Fail(result.Consistency(fmt.Sprintf("relationship %s not found", ed.ID), ed, nil))
	}

	current := rels[0]
	edited := graph.NewRelationship(current.Label, applyEdit(current.Properties, ed.Properties), current.StartNode, current.EndNode, current.Direction, current.Necessity)
	props := maps.Clone(ed.Properties)
	if current.Hash() != "" {
		if hash := edited.ComputeHash(); hash != "" && hash != current.Hash() {
			props[graph.KeyHash] = hash
		}
	}

	st := cypher.EditRelationship(ed.ID, props)
	outcome, err := single(ctx, e.runner.Write, st)
	if err != nil {
		return result.Fail(result.Store(err, ed, st.Params))
	}
	if len(outcome.Records) == 0 {
		return result.Fail(result.Consistency(fmt.Sprintf("relationship %s vanished during edit", ed.ID), ed, st.Params))
	}
	written, ok, err := store.TripleAt(outcome.Records[0], "s", "r", "e")
	if err != nil || !ok {
		return result.Fail(result.Consistency(fmt.Sprintf("relationship %s vanished during edit", ed.ID), ed, st.Params))
	}
	return result.OK(written, st.Params, st.Cypher, summarize(st, outcome))
}

func checkEdit(ed Edit) *result.Failure {
	if ed.ID == "" {
		return result.Promotion("edit needs an element id", ed)
	}
	if len(ed.Properties) == 0 {
		return result.Promotion("edit has no properties", ed)
	}
	for _, k := range immutableKeys {
		if _, ok := ed.Properties[k]; ok {
			return result.Promotion(fmt.Sprintf("property %s cannot be edited", k), ed)
		}
	}
	return nil
}

func applyEdit(current graph.Properties, edit map[string]any) graph.Properties {
	props := current.Clone()
	for k, v := range edit {
		if v == nil {
			delete(props, k)
			continue
		}
		props[k] = v
	}
	return props
}

func toFailure(err error) result.Result {
	if f, ok := err.(*result.Failure); ok {
		return result.Fail(f)
	}
	return result.Fail(&result.Failure{Kind: result.KindPromotion, Reason: err.Error(), Err: err})
}
