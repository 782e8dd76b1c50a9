package engine_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ooddaa/mango-sub002/pkg/candidate"
	"github.com/ooddaa/mango-sub002/pkg/graph"
	"github.com/ooddaa/mango-sub002/pkg/result"
)

const westerosBatch = `
nodes:
  - labels: [Person]
    properties:
      required: {NAME: Arya}
  - labels: []
    properties:
      required: {NAME: Nobody}
relationships:
  - label: KNOWS
    direction: outbound
    startNode:
      labels: [Person]
      properties:
        required: {NAME: Arya}
    endNode:
      labels: [Person]
      properties:
        required: {NAME: Jaqen}
enhancedNodes:
  - labels: [Person]
    properties:
      required: {NAME: Jon}
    outbound:
      - label: LIVES_IN
        endNode:
          labels: [Castle]
          properties:
            required: {NAME: Castle Black}
`

func TestMergeBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	batch, err := candidate.ReadBatch(strings.NewReader(westerosBatch))
	require.NoError(t, err)

	out, err := f.engine.MergeBatch(ctx, batch)
	require.NoError(t, err)

	require.Len(t, out.Nodes, 2)
	requireSuccess(t, out.Nodes[0])
	requireKind(t, out.Nodes[1], result.KindPromotion)
	assert.Equal(t, 1, out.Failed())

	arya, ok := result.DataAs[*graph.Node](out.Nodes[0])
	require.True(t, ok)
	assert.True(t, arya.IsWritten())

	require.Len(t, out.Relationships, 1)
	requireSuccess(t, out.Relationships[0])
	knows, ok := result.DataAs[*graph.Relationship](out.Relationships[0])
	require.True(t, ok)
	assert.Equal(t, arya.Hash(), knows.StartHash(), "relationship endpoint reuses the merged node")

	require.Len(t, out.EnhancedNodes, 1)
	requireSuccess(t, out.EnhancedNodes[0])
	jon, ok := result.DataAs[*graph.EnhancedNode](out.EnhancedNodes[0])
	require.True(t, ok)
	assert.True(t, jon.IsWritten())

	// Arya, Jaqen, Jon, Castle Black
	assert.Equal(t, 4, f.runner.nodeCount())
	assert.Equal(t, 2, f.runner.relCount())
}

func TestMergeNodeCandidates_AllFail(t *testing.T) {
	f := newFixture(t)

	out := f.engine.MergeNodeCandidates(context.Background(), []*candidate.NodeCandidate{
		candidate.NewNodeCandidate(nil, map[string]any{"NAME": "Nobody"}, nil),
	})
	require.Len(t, out, 1)
	requireKind(t, out[0], result.KindPromotion)
	assert.Zero(t, f.runner.writes, "nothing promoted, nothing written")
}

func TestMergeBatch_BadDocument(t *testing.T) {
	f := newFixture(t)

	batch, err := candidate.ReadBatch(strings.NewReader(`
relationships:
  - label: KNOWS
    direction: inbound
    endNode:
      labels: [Person]
      properties:
        required: {NAME: Arya}
`))
	require.NoError(t, err)

	_, err = f.engine.MergeBatch(context.Background(), batch)
	assert.Error(t, err)
}
