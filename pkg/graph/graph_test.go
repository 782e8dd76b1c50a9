package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hashed(label string, props Properties) *Node {
	n := NewNode([]string{label}, props)
	n.Properties[KeyHash] = n.ComputeHash()
	return n
}

func link(label string, start, end Vertex) *Relationship {
	r := NewRelationship(label, nil, start, end, Outbound, Optional)
	r.Properties[KeyHash] = r.ComputeHash()
	return r
}

func written(n *Node, id string) *Node {
	n.Identity = id
	return n
}

type nodeView struct {
	Labels   []string
	Props    map[string]any
	Identity string
}

type relView struct {
	Label      string
	Props      map[string]any
	Identity   string
	Start, End string
}

func viewNodes(e *EnhancedNode) map[string]nodeView {
	out := map[string]nodeView{}
	for h, n := range e.ParticipatingNodeMap() {
		out[h] = nodeView{n.Labels, n.Properties, n.Identity}
	}
	return out
}

func viewRels(e *EnhancedNode) map[string]relView {
	out := map[string]relView{}
	for h, r := range e.ParticipatingRelationshipMap(true) {
		out[h] = relView{r.Label, r.Properties, r.Identity, r.StartHash(), r.EndHash()}
	}
	return out
}

// person(A) -KNOWS-> person(B) -LIVES_IN-> city(C), parent(D) -PARENT_OF-> A
func sampleGraph() *EnhancedNode {
	a := written(hashed("Person", Properties{"NAME": "Jon", "age": 30}), "4:a")
	b := written(hashed("Person", Properties{"NAME": "Ann"}), "4:b")
	c := written(hashed("City", Properties{"NAME": "Oslo"}), "4:c")
	d := written(hashed("Person", Properties{"NAME": "Bob"}), "4:d")

	livesIn := link("LIVES_IN", b, c)
	livesIn.Identity = "5:bc"
	eb := NewEnhancedNode(b, nil, []*Relationship{livesIn})

	knows := link("KNOWS", a, eb)
	knows.Identity = "5:ab"
	parent := link("PARENT_OF", d, a)
	parent.Identity = "5:da"

	return NewEnhancedNode(a, []*Relationship{parent}, []*Relationship{knows})
}

func TestPropertyPartition(t *testing.T) {
	p := Properties{"NAME": "Jon", "SURNAME_2": "Doe", "age": 3, "nickName": "j", "_hash": "x", "42": 1}
	assert.Equal(t, map[string]any{"NAME": "Jon", "SURNAME_2": "Doe"}, p.Required())
	assert.Equal(t, map[string]any{"age": 3, "nickName": "j", "42": 1}, p.Optional())
	assert.Equal(t, map[string]any{"_hash": "x"}, p.Private())
}

func TestDateArray(t *testing.T) {
	ts := time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC)
	arr := DateArray(ts)
	require.Len(t, arr, 5)
	assert.Equal(t, int64(2024), arr[0])
	assert.Equal(t, int64(3), arr[1])
	assert.Equal(t, int64(5), arr[2])
	assert.Equal(t, int64(time.Tuesday), arr[3])

	back, ok := ParseDateArray(arr)
	require.True(t, ok)
	assert.True(t, back.Equal(ts))

	_, ok = ParseDateArray([]any{1, 2})
	assert.False(t, ok)
}

func TestNodeHash(t *testing.T) {
	t.Run("ignores optional and private properties", func(t *testing.T) {
		a := NewNode([]string{"Person"}, Properties{"NAME": "Jon", "age": 1, "_uuid": "x"})
		b := NewNode([]string{"Person", "Human"}, Properties{"NAME": "Jon", "age": 2})
		assert.Equal(t, a.ComputeHash(), b.ComputeHash())
	})

	t.Run("changes with required properties", func(t *testing.T) {
		a := NewNode([]string{"Person"}, Properties{"NAME": "Jon"})
		b := NewNode([]string{"Person"}, Properties{"NAME": "Jon", "SURNAME": "Doe"})
		assert.NotEqual(t, a.ComputeHash(), b.ComputeHash())
	})
}

func TestNodeState(t *testing.T) {
	n := NewNode([]string{"Person"}, Properties{"NAME": "Jon"})
	assert.Equal(t, StateCandidate, n.State())
	n.Properties[KeyHash] = n.ComputeHash()
	assert.Equal(t, StateValidated, n.State())
	n.Identity = "4:1"
	assert.Equal(t, StateWritten, n.State())
	assert.Equal(t, "written", n.State().String())
}

func TestRelationship(t *testing.T) {
	a := hashed("Person", Properties{"NAME": "Jon"})
	b := hashed("Person", Properties{"NAME": "Ann"})

	t.Run("unhashed endpoint is not writable", func(t *testing.T) {
		r := NewRelationship("KNOWS", nil, a, NewNode([]string{"Person"}, nil), Outbound, "")
		assert.Empty(t, r.ComputeHash())
		assert.False(t, r.IsWritable())
		assert.Equal(t, Optional, r.Necessity)
	})

	t.Run("partner", func(t *testing.T) {
		r := link("KNOWS", a, b)
		p, err := r.Partner(a.Hash())
		require.NoError(t, err)
		assert.Same(t, b, p.Core())

		_, err = r.Partner("nope")
		assert.Error(t, err)
	})

	t.Run("short flattens enhanced endpoints", func(t *testing.T) {
		eb := NewEnhancedNode(b, nil, nil)
		r := link("KNOWS", a, eb)
		short := r.Short()
		_, isEnhanced := short.EndNode.(*EnhancedNode)
		assert.False(t, isEnhanced)
		assert.Same(t, b, short.EndNode.Core())
		assert.Equal(t, r.Hash(), short.Hash())
	})
}

func TestEnhancedNodeInvariant(t *testing.T) {
	a := hashed("Person", Properties{"NAME": "Jon"})
	b := hashed("Person", Properties{"NAME": "Ann"})
	in := link("KNOWS", b, a)
	out := link("KNOWS", a, b)
	e := NewEnhancedNode(a, []*Relationship{in}, []*Relationship{out})

	assert.Same(t, e, in.EndNode)
	assert.Same(t, e, out.StartNode)
	assert.Equal(t, Inbound, in.Direction)
	assert.Equal(t, Outbound, out.Direction)
	assert.Len(t, e.Relationships(), 2)
}

func TestParticipatingNodes(t *testing.T) {
	t.Run("collects every reachable node once", func(t *testing.T) {
		e := sampleGraph()
		nodes := e.ParticipatingNodes()
		assert.Len(t, nodes, 4)
		assert.Same(t, e.Node, nodes[0])
	})

	t.Run("keeps the variant with more keys on duplicate hash", func(t *testing.T) {
		a := hashed("Person", Properties{"NAME": "Jon"})
		thin := hashed("Person", Properties{"NAME": "Ann"})
		rich := hashed("Person", Properties{"NAME": "Ann", "age": 40, "city": "Oslo"})
		require.Equal(t, thin.Hash(), rich.Hash())

		e := NewEnhancedNode(a, nil, []*Relationship{
			link("KNOWS", a, thin),
			link("LIKES", a, rich),
		})
		nodes := e.ParticipatingNodeMap()
		assert.Len(t, nodes, 2)
		assert.Same(t, rich, nodes[rich.Hash()])
	})

	t.Run("terminates on cycles", func(t *testing.T) {
		a := hashed("Person", Properties{"NAME": "Jon"})
		b := hashed("Person", Properties{"NAME": "Ann"})
		ea := NewEnhancedNode(a, nil, nil)
		eb := NewEnhancedNode(b, nil, nil)
		ea.AddOutbound(link("KNOWS", a, eb))
		eb.AddOutbound(link("KNOWS", b, ea))

		assert.Len(t, ea.ParticipatingNodes(), 2)
		assert.Len(t, ea.ParticipatingRelationships(false), 2)
	})
}

func TestParticipatingRelationships(t *testing.T) {
	e := sampleGraph()

	rels := e.ParticipatingRelationships(false)
	assert.Len(t, rels, 3)

	short := e.ParticipatingRelationships(true)
	require.Len(t, short, 3)
	for _, r := range short {
		_, enhanced := r.StartNode.(*EnhancedNode)
		assert.False(t, enhanced)
		_, enhanced = r.EndNode.(*EnhancedNode)
		assert.False(t, enhanced)
	}

	byHash := e.ParticipatingRelationshipMap(true)
	for _, r := range rels {
		assert.Contains(t, byHash, r.Hash())
	}
}

func TestDeepen(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		e := sampleGraph()
		root := NewEnhancedNode(e.Node.Clone(), nil, nil)

		got, err := root.Deepen(e.ParticipatingRelationships(true))
		require.NoError(t, err)
		assert.Equal(t, viewNodes(e), viewNodes(got))
		assert.Equal(t, viewRels(e), viewRels(got))
		assert.True(t, got.IsWritten())
	})

	t.Run("ignores relationships outside the component", func(t *testing.T) {
		e := sampleGraph()
		x := written(hashed("Thing", Properties{"ID": 1}), "4:x")
		y := written(hashed("Thing", Properties{"ID": 2}), "4:y")
		stray := link("NEAR", x, y)

		rels := append(e.ParticipatingRelationships(true), stray)
		root := NewEnhancedNode(e.Node.Clone(), nil, nil)
		got, err := root.Deepen(rels)
		require.NoError(t, err)
		assert.Equal(t, viewNodes(e), viewNodes(got))
		assert.Equal(t, viewRels(e), viewRels(got))
	})

	t.Run("shares one instance per hash", func(t *testing.T) {
		a := hashed("Person", Properties{"NAME": "Jon"})
		b := hashed("Person", Properties{"NAME": "Ann"})
		c := hashed("Person", Properties{"NAME": "Cid"})
		rels := []*Relationship{link("KNOWS", a, b), link("KNOWS", a, c), link("KNOWS", b, c)}

		got, err := NewEnhancedNode(a.Clone(), nil, nil).Deepen(rels)
		require.NoError(t, err)
		require.Len(t, got.Outbound(), 2)

		var viaA, viaB Vertex
		for _, r := range got.Outbound() {
			if r.EndHash() == c.Hash() {
				viaA = r.EndNode
			}
			if r.EndHash() == b.Hash() {
				eb := r.EndNode.(*EnhancedNode)
				require.Len(t, eb.Outbound(), 1)
				viaB = eb.Outbound()[0].EndNode
			}
		}
		assert.Same(t, viaA, viaB)
	})

	t.Run("duplicate relationships collapse", func(t *testing.T) {
		a := hashed("Person", Properties{"NAME": "Jon"})
		b := hashed("Person", Properties{"NAME": "Ann"})
		r := link("KNOWS", a, b)

		got, err := NewEnhancedNode(a.Clone(), nil, nil).Deepen([]*Relationship{r, r.Clone()})
		require.NoError(t, err)
		assert.Len(t, got.Relationships(), 1)
	})

	t.Run("unmatched root is an explicit error", func(t *testing.T) {
		x := hashed("Thing", Properties{"ID": 1})
		y := hashed("Thing", Properties{"ID": 2})
		z := hashed("Thing", Properties{"ID": 3})

		_, err := NewEnhancedNode(z, nil, nil).Deepen([]*Relationship{link("NEAR", x, y)})
		assert.True(t, errors.Is(err, ErrRootNotMatched))
	})

	t.Run("empty input is a no-op", func(t *testing.T) {
		z := NewEnhancedNode(hashed("Thing", Properties{"ID": 3}), nil, nil)
		got, err := z.Deepen(nil)
		require.NoError(t, err)
		assert.Same(t, z, got)
	})

	t.Run("written versions sharing a hash stay apart", func(t *testing.T) {
		previous := written(hashed("Person", Properties{"NAME": "Arya", "age": 10}), "4:1")
		current := written(hashed("Person", Properties{"NAME": "Arya", "age": 11}), "4:2")
		require.Equal(t, previous.Hash(), current.Hash())
		update := link("HAS_UPDATE", previous, current)
		update.Identity = "5:1"

		got, err := NewEnhancedNode(previous.Clone(), nil, nil).Deepen([]*Relationship{update})
		require.NoError(t, err)
		require.Len(t, got.Outbound(), 1)
		assert.Empty(t, got.Inbound())
		assert.Equal(t, "4:2", got.Outbound()[0].EndNode.Core().Identity)
		assert.Len(t, got.ParticipatingNodes(), 2)

		nodes := got.ParticipatingNodeMap()
		assert.Equal(t, "4:1", nodes[previous.Hash()].Identity)
		assert.Equal(t, "4:2", nodes[previous.Hash()+"@4:2"].Identity)
	})

	t.Run("unwritten endpoints fall back to hashes", func(t *testing.T) {
		a := written(hashed("Person", Properties{"NAME": "Jon"}), "4:a")
		b := hashed("Person", Properties{"NAME": "Ann"})

		got, err := NewEnhancedNode(a.Clone(), nil, nil).Deepen([]*Relationship{link("KNOWS", hashed("Person", Properties{"NAME": "Jon"}), b)})
		require.NoError(t, err)
		require.Len(t, got.Outbound(), 1)
		assert.Equal(t, b.Hash(), got.Outbound()[0].EndHash())
	})

	t.Run("self loop attaches once", func(t *testing.T) {
		a := hashed("Person", Properties{"NAME": "Jon"})
		got, err := NewEnhancedNode(a.Clone(), nil, nil).Deepen([]*Relationship{link("LIKES", a, a)})
		require.NoError(t, err)
		assert.Len(t, got.Outbound(), 1)
		assert.Empty(t, got.Inbound())
	})
}

func TestIdentifyParticipating(t *testing.T) {
	build := func() *EnhancedNode {
		a := hashed("Person", Properties{"NAME": "Jon"})
		b := hashed("Person", Properties{"NAME": "Ann"})
		bAgain := hashed("Person", Properties{"NAME": "Ann"})
		return NewEnhancedNode(a, nil, []*Relationship{link("KNOWS", a, b), link("LIKES", a, bAgain)})
	}

	t.Run("stamps every occurrence", func(t *testing.T) {
		e := build()
		merged := map[string]*Node{}
		for i, n := range e.ParticipatingNodes() {
			m := n.Clone()
			m.Identity = fmt.Sprintf("4:%d", i)
			m.Properties[KeyUUID] = fmt.Sprintf("uuid-%d", i)
			m.Properties["fromStore"] = true
			merged[n.Hash()] = m
		}
		require.NoError(t, e.IdentifyParticipatingNodes(merged))

		for _, r := range e.Outbound() {
			end := r.EndNode.Core()
			assert.NotEmpty(t, end.Identity)
			assert.NotEmpty(t, end.UUID())
			assert.Equal(t, true, end.Properties["fromStore"])
		}
	})

	t.Run("fails loudly on missing hash", func(t *testing.T) {
		e := build()
		err := e.IdentifyParticipatingNodes(map[string]*Node{e.Hash(): e.Node.Clone()})
		assert.ErrorIs(t, err, ErrIncompleteMerge)
	})

	t.Run("relationships", func(t *testing.T) {
		e := build()
		merged := map[string]*Relationship{}
		for i, r := range e.ParticipatingRelationships(true) {
			m := r.Clone()
			m.Identity = fmt.Sprintf("5:%d", i)
			merged[r.Hash()] = m
		}
		require.NoError(t, e.IdentifyParticipatingRelationships(merged))
		for _, r := range e.Relationships() {
			assert.NotEmpty(t, r.Identity)
		}

		delete(merged, e.Outbound()[0].Hash())
		assert.ErrorIs(t, e.IdentifyParticipatingRelationships(merged), ErrIncompleteMerge)
	})
}

func TestWritableWritten(t *testing.T) {
	e := sampleGraph()
	assert.True(t, e.IsWritable())
	assert.True(t, e.IsWritten())
	assert.Equal(t, StateWritten, e.State())

	nested := e.Outbound()[0].EndNode.(*EnhancedNode).Outbound()[0]
	nested.Identity = ""
	assert.False(t, e.IsWritten())
	assert.True(t, e.IsWritable())
	assert.Equal(t, StateValidated, e.State())

	delete(nested.Properties, KeyHash)
	assert.False(t, e.IsWritable())
	assert.False(t, e.IsWritten())
}

func TestDocument(t *testing.T) {
	a := hashed("Person", Properties{"NAME": "Jon"})
	b := hashed("Person", Properties{"NAME": "Ann"})
	ea := NewEnhancedNode(a, nil, nil)
	eb := NewEnhancedNode(b, nil, nil)
	ea.AddOutbound(link("KNOWS", a, eb))
	eb.AddOutbound(link("KNOWS", b, ea))

	raw, err := json.Marshal(ea)
	require.NoError(t, err)

	var doc NodeDocument
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Len(t, doc.Outbound, 1)
	partner := doc.Outbound[0].EndNode
	require.NotNil(t, partner)
	assert.Equal(t, "Ann", partner.Properties["NAME"])
	require.Len(t, partner.Outbound, 1)
	assert.Empty(t, partner.Outbound[0].EndNode.Outbound)
}
