package engine_test

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ooddaa/mango-sub002/pkg/cypher"
	"github.com/ooddaa/mango-sub002/pkg/store"
)

type fakeNode struct {
	id     string
	labels []string
	props  map[string]any
}

type fakeRel struct {
	id    string
	typ   string
	start string
	end   string
	props map[string]any
}

// fakeRunner is an in-memory graph that answers the engine's statements by
// name.
type fakeRunner struct {
	mu       sync.Mutex
	nodes    map[string]*fakeNode
	rels     map[string]*fakeRel
	order    []string
	seq      int
	errs     map[string]error
	rewrites map[string]func(*store.Outcome)
	calls    map[string]int
	writes   int
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		nodes:    map[string]*fakeNode{},
		rels:     map[string]*fakeRel{},
		errs:     map[string]error{},
		rewrites: map[string]func(*store.Outcome){},
		calls:    map[string]int{},
	}
}

func (f *fakeRunner) failOn(name string, err error) { f.errs[name] = err }

// rewrite lets a test alter what the store answers to a statement after
// the fake graph has applied it.
func (f *fakeRunner) rewrite(name string, fn func(*store.Outcome)) { f.rewrites[name] = fn }

func (f *fakeRunner) Write(ctx context.Context, statements ...cypher.Statement) ([]store.Outcome, error) {
	f.mu.Lock()
	f.writes++
	f.mu.Unlock()
	return f.run(ctx, statements)
}

func (f *fakeRunner) Read(ctx context.Context, statements ...cypher.Statement) ([]store.Outcome, error) {
	return f.run(ctx, statements)
}

func (f *fakeRunner) run(_ context.Context, statements []cypher.Statement) ([]store.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]store.Outcome, 0, len(statements))
	for _, st := range statements {
		f.calls[st.Name]++
		if err := f.errs[st.Name]; err != nil {
			return nil, err
		}
		o, err := f.answer(st)
		if err != nil {
			return nil, err
		}
		if fn := f.rewrites[st.Name]; fn != nil {
			fn(&o)
		}
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeRunner) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s:%d", prefix, f.seq)
}

// nodeByHash finds the current node carrying hash.
func (f *fakeRunner) nodeByHash(hash string) *fakeNode {
	for _, id := range f.order {
		if n, ok := f.nodes[id]; ok && n.props["_hash"] == hash && isCurrent(n) {
			return n
		}
	}
	return nil
}

func isCurrent(n *fakeNode) bool { return n.props["_isCurrent"] != false }

func (f *fakeRunner) mergeNode(labels []string, row map[string]any, counters *store.Counters) *fakeNode {
	hash := row["hash"].(string)
	if n := f.nodeByHash(hash); n != nil {
		if n.props["_uuid"] == nil {
			n.props["_uuid"] = row["uuid"]
		}
		return n
	}
	props := maps.Clone(row["properties"].(map[string]any))
	props["_uuid"] = row["uuid"]
	n := &fakeNode{id: f.nextID("4"), labels: labels, props: props}
	f.nodes[n.id] = n
	f.order = append(f.order, n.id)
	counters.NodesCreated++
	return n
}

func (f *fakeRunner) relByHash(hash string) *fakeRel {
	for _, r := range f.rels {
		if r.props["_hash"] == hash {
			return r
		}
	}
	return nil
}

func (f *fakeRunner) answer(st cypher.Statement) (store.Outcome, error) {
	var o store.Outcome
	p := st.Params
	switch st.Name {
	case cypher.NameMergeNodes:
		for _, raw := range p["rows"].([]any) {
			row := raw.(map[string]any)
			n := f.mergeNode(labelsOf(row), row, &o.Counters)
			o.Records = append(o.Records, record([]string{"index", "n"}, row["index"], f.node(n)))
		}
	case cypher.NameMergeRelationships:
		for _, raw := range p["rows"].([]any) {
			row := raw.(map[string]any)
			start := row["start"].(map[string]any)
			end := row["end"].(map[string]any)
			s := f.mergeNode(labelsOf(start), start, &o.Counters)
			e := f.mergeNode(labelsOf(end), end, &o.Counters)
			r := f.relByHash(row["hash"].(string))
			if r == nil {
				props := maps.Clone(row["properties"].(map[string]any))
				props["_uuid"] = row["uuid"]
				r = &fakeRel{id: f.nextID("5"), typ: relType(st.Cypher), start: s.id, end: e.id, props: props}
				f.rels[r.id] = r
				o.Counters.RelationshipsCreated++
			}
			o.Records = append(o.Records, record([]string{"index", "s", "r", "e"}, row["index"], f.node(s), f.rel(r), f.node(e)))
		}
	case cypher.NameMatchNodes:
		for _, id := range f.order {
			n, ok := f.nodes[id]
			if !ok || !isCurrent(n) {
				continue
			}
			if hash, ok := p["hash"]; ok && n.props["_hash"] != hash {
				continue
			}
			if props, ok := p["props"].(map[string]any); ok && !subset(props, n.props) {
				continue
			}
			o.Records = append(o.Records, record([]string{"n"}, f.node(n)))
		}
	case cypher.NameMatchNodeByID:
		if n, ok := f.nodes[p["id"].(string)]; ok {
			o.Records = append(o.Records, record([]string{"n"}, f.node(n)))
		}
	case cypher.NameMatchPartialNodes:
		for _, id := range f.order {
			if n, ok := f.nodes[id]; ok {
				o.Records = append(o.Records, record([]string{"n"}, f.node(n)))
			}
		}
	case cypher.NameMatchRelationships:
		for _, r := range f.rels {
			if hash, ok := p["hash"]; ok && r.props["_hash"] != hash {
				continue
			}
			o.Records = append(o.Records, f.triple(r))
		}
	case cypher.NameMatchRelByID:
		if r, ok := f.rels[p["id"].(string)]; ok {
			o.Records = append(o.Records, f.triple(r))
		}
	case cypher.NameNeighbourhood:
		var root *fakeNode
		if id, ok := p["id"].(string); ok {
			root = f.nodes[id]
		} else {
			root = f.nodeByHash(p["hash"].(string))
		}
		if root == nil {
			break
		}
		keys := []string{"root", "s", "r", "e"}
		for _, r := range f.rels {
			if r.start == root.id || r.end == root.id {
				o.Records = append(o.Records, record(keys, f.node(root), f.node(f.nodes[r.start]), f.rel(r), f.node(f.nodes[r.end])))
			}
		}
		if len(o.Records) == 0 {
			o.Records = append(o.Records, record(keys, f.node(root), nil, nil, nil))
		}
	case cypher.NameUpdateNode:
		old, ok := f.nodes[p["id"].(string)]
		if !ok || old.props["_isCurrent"] == false {
			break
		}
		old.props["_isCurrent"] = false
		old.props["_hasBeenUpdated"] = true
		old.props["_whenWasUpdated"] = p["when"]
		old.props["_updaterHash"] = p["hash"]

		props := maps.Clone(p["properties"].(map[string]any))
		props["_uuid"] = p["uuid"]
		updater := &fakeNode{id: f.nextID("4"), labels: old.labels, props: props}
		f.nodes[updater.id] = updater
		f.order = append(f.order, updater.id)

		link := &fakeRel{id: f.nextID("5"), typ: cypher.HasUpdate, start: old.id, end: updater.id, props: map[string]any{
			"_hash": p["linkHash"], "_uuid": p["linkUUID"], "_date_created": p["when"],
		}}
		ended := int64(0)
		for _, r := range f.rels {
			if r.typ != cypher.HasUpdate && (r.start == old.id || r.end == old.id) && r.props["_date_ended"] == nil {
				r.props["_date_ended"] = p["when"]
				ended++
			}
		}
		f.rels[link.id] = link
		o.Records = append(o.Records, record([]string{"old", "u", "new", "ended"}, f.node(old), f.rel(link), f.node(updater), ended))
	case cypher.NameEditNode:
		if n, ok := f.nodes[p["id"].(string)]; ok {
			apply(n.props, p["props"].(map[string]any))
			o.Records = append(o.Records, record([]string{"n"}, f.node(n)))
		}
	case cypher.NameEditRelationship:
		if r, ok := f.rels[p["id"].(string)]; ok {
			apply(r.props, p["props"].(map[string]any))
			o.Records = append(o.Records, f.triple(r))
		}
	case cypher.NameDeleteNode:
		id := p["id"].(string)
		deleted := int64(0)
		if _, ok := f.nodes[id]; ok {
			delete(f.nodes, id)
			deleted = 1
			for rid, r := range f.rels {
				if r.start == id || r.end == id {
					delete(f.rels, rid)
					o.Counters.RelationshipsDeleted++
				}
			}
			o.Counters.NodesDeleted++
		}
		o.Records = append(o.Records, record([]string{"deleted"}, deleted))
	case cypher.NameDeleteRelationship:
		id := p["id"].(string)
		deleted := int64(0)
		if _, ok := f.rels[id]; ok {
			delete(f.rels, id)
			deleted = 1
			o.Counters.RelationshipsDeleted++
		}
		o.Records = append(o.Records, record([]string{"deleted"}, deleted))
	default:
		return o, fmt.Errorf("fake runner: unexpected statement %s", st.Name)
	}
	return o, nil
}

func (f *fakeRunner) node(n *fakeNode) neo4j.Node {
	return neo4j.Node{ElementId: n.id, Labels: n.labels, Props: maps.Clone(n.props)}
}

func (f *fakeRunner) rel(r *fakeRel) neo4j.Relationship {
	return neo4j.Relationship{
		ElementId:      r.id,
		StartElementId: r.start,
		EndElementId:   r.end,
		Type:           r.typ,
		Props:          maps.Clone(r.props),
	}
}

func (f *fakeRunner) triple(r *fakeRel) *neo4j.Record {
	return record([]string{"s", "r", "e"}, f.node(f.nodes[r.start]), f.rel(r), f.node(f.nodes[r.end]))
}

func (f *fakeRunner) nodeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.nodes)
}

func (f *fakeRunner) relCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rels)
}

func record(keys []string, values ...any) *neo4j.Record {
	return &neo4j.Record{Keys: keys, Values: values}
}

func dropRecords(o *store.Outcome) { o.Records = nil }

// withoutElementID blanks the element id of the entity under key, as if the
// store answered with something it never persisted.
func withoutElementID(key string) func(*store.Outcome) {
	return func(o *store.Outcome) {
		for _, rec := range o.Records {
			for i, k := range rec.Keys {
				if k != key {
					continue
				}
				switch v := rec.Values[i].(type) {
				case neo4j.Node:
					v.ElementId = ""
					rec.Values[i] = v
				case neo4j.Relationship:
					v.ElementId = ""
					rec.Values[i] = v
				}
			}
		}
	}
}

func labelsOf(row map[string]any) []string {
	props := row["properties"].(map[string]any)
	if l, ok := props["_label"].(string); ok {
		return []string{l}
	}
	return []string{"Entity"}
}

// relType pulls the relationship type out of a merge statement.
func relType(query string) string {
	var typ string
	for i := 0; i+3 < len(query); i++ {
		if query[i:i+3] == "[r:" {
			rest := query[i+4:]
			for j := range len(rest) {
				if rest[j] == '`' {
					typ = rest[:j]
					break
				}
			}
			break
		}
	}
	return typ
}

func subset(want, have map[string]any) bool {
	for k, v := range want {
		if fmt.Sprint(have[k]) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

func apply(props, changes map[string]any) {
	for k, v := range changes {
		if v == nil {
			delete(props, k)
			continue
		}
		props[k] = v
	}
}
