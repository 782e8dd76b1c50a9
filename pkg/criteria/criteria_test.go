package criteria

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCriteria(t *testing.T) {
	conds, err := ParseCriteria(map[string]any{
		"NAME": "Jon",
		"age":  map[string]any{"$gte": 18, "$lt": 65},
		"tags": map[string]any{"$not": map[string]any{"$contains": "wildling"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []Condition{
		{Field: "NAME", Operator: OpEquals, Value: "Jon"},
		{Field: "age", Operator: OpGte, Value: 18},
		{Field: "age", Operator: OpLt, Value: 65},
		{Field: "tags", Operator: OpContains, Value: "wildling", Negate: true},
	}, conds)

	t.Run("double negation", func(t *testing.T) {
		conds, err := ParseCriteria(map[string]any{
			"x": map[string]any{"$not": map[string]any{"$not": map[string]any{"$ne": 1}}},
		})
		require.NoError(t, err)
		require.Len(t, conds, 1)
		assert.False(t, conds[0].Negate)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := ParseCriteria(map[string]any{"x": map[string]any{"$regex": "a"}})
		assert.ErrorIs(t, err, ErrUnknownOperator)

		_, err = ParseCriteria(map[string]any{"x": map[string]any{"$exists": "yes"}})
		assert.Error(t, err)

		_, err = ParseCriteria(map[string]any{"x": map[string]any{"$not": 3}})
		assert.Error(t, err)

		_, err = ParseCriteria(map[string]any{"": 1})
		assert.Error(t, err)
	})
}

func TestCondition_Cypher(t *testing.T) {
	tests := []struct {
		name string
		cond Condition
		want string
		val  any
	}{
		{name: "equals", cond: Condition{Field: "NAME", Value: "Jon"}, want: "n.`NAME` = $c0", val: "Jon"},
		{name: "equals null", cond: Condition{Field: "NAME"}, want: "n.`NAME` IS NULL"},
		{name: "not equal", cond: Condition{Field: "age", Operator: OpNe, Value: 3}, want: "(n.`age` IS NULL OR n.`age` <> $c0)", val: 3},
		{name: "exists", cond: Condition{Field: "age", Operator: OpExists, Value: true}, want: "n.`age` IS NOT NULL"},
		{name: "not exists", cond: Condition{Field: "age", Operator: OpExists, Value: false}, want: "n.`age` IS NULL"},
		{name: "contains", cond: Condition{Field: "tags", Operator: OpContains, Value: "a"}, want: "$c0 IN coalesce(n.`tags`, [])", val: "a"},
		{name: "in", cond: Condition{Field: "NAME", Operator: OpIn, Value: []string{"a", "b"}}, want: "n.`NAME` IN $c0", val: []any{"a", "b"}},
		{name: "gt", cond: Condition{Field: "age", Operator: OpGt, Value: 1}, want: "n.`age` > $c0", val: 1},
		{name: "negated", cond: Condition{Field: "age", Operator: OpLte, Value: 1, Negate: true}, want: "NOT (n.`age` <= $c0)", val: 1},
		{name: "quoted key", cond: Condition{Field: "we`ird", Value: 1}, want: "n.`we``ird` = $c0", val: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := NewParams("c")
			got, err := tt.cond.Cypher("n", params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if tt.val != nil {
				assert.Equal(t, tt.val, params.Values()["c0"])
			} else {
				assert.Empty(t, params.Values())
			}
		})
	}

	t.Run("in needs a list", func(t *testing.T) {
		_, err := Condition{Field: "x", Operator: OpIn, Value: "a"}.Cypher("n", NewParams("c"))
		assert.Error(t, err)
	})
}

func TestCompile(t *testing.T) {
	t.Run("conditions and day", func(t *testing.T) {
		params := NewParams("p")
		where, err := Compile(PartialNode{
			Labels:     []string{"Person"},
			Conditions: map[string]any{"NAME": "Jon", "age": map[string]any{"$gt": 10}},
			Range:      &Range{Day: "2024-03-05"},
		}, "n", params)
		require.NoError(t, err)
		assert.Equal(t, "n.`NAME` = $p0 AND n.`age` > $p1 AND n.`_date_created`[4] >= $p2 AND n.`_date_created`[4] <= $p3", where)

		day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, day.UnixMilli(), params.Values()["p2"])
		assert.Equal(t, day.Add(24*time.Hour).UnixMilli()-1, params.Values()["p3"])
	})

	t.Run("numeric range", func(t *testing.T) {
		params := NewParams("p")
		where, err := Compile(PartialNode{Range: &Range{Key: "age", From: 18}}, "n", params)
		require.NoError(t, err)
		assert.Equal(t, "n.`age` >= $p0", where)
	})

	t.Run("time bounds", func(t *testing.T) {
		params := NewParams("p")
		to := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		where, err := Compile(PartialNode{Range: &Range{Key: "_born", From: "2023-01-01", To: to}}, "n", params)
		require.NoError(t, err)
		assert.Equal(t, "n.`_born`[4] >= $p0 AND n.`_born`[4] <= $p1", where)
		assert.Equal(t, to.UnixMilli(), params.Values()["p1"])
	})

	t.Run("empty", func(t *testing.T) {
		where, err := Compile(PartialNode{Labels: []string{"Person"}}, "n", NewParams("p"))
		require.NoError(t, err)
		assert.Equal(t, "true", where)
	})

	t.Run("invalid ranges", func(t *testing.T) {
		_, err := Compile(PartialNode{Range: &Range{Key: "age"}}, "n", NewParams("p"))
		assert.Error(t, err)
		_, err = Compile(PartialNode{Range: &Range{From: 1}}, "n", NewParams("p"))
		assert.Error(t, err)
		_, err = Compile(PartialNode{Range: &Range{Day: "March"}}, "n", NewParams("p"))
		assert.Error(t, err)
		_, err = Compile(PartialNode{Range: &Range{Key: "x", From: "soon"}}, "n", NewParams("p"))
		assert.Error(t, err)
	})
}
