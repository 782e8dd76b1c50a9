package template

import (
	"context"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ooddaa/mango-sub002/pkg/graph"
)

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func personDefinition() Definition {
	return Definition{
		Label:  "Person",
		Strict: true,
		Required: map[string]FieldDefinition{
			"NAME":    {Example: "Jon", Rule: "required,alpha"},
			"SURNAME": {Example: "Doe", Rule: "required"},
		},
		Optional: map[string]FieldDefinition{
			"age": {Example: 30, Rule: "gte=0,lte=150"},
		},
		Implied: []ImpliedDefinition{{
			Label:     "IS_A",
			Direction: graph.Outbound,
			Necessity: graph.Required,
			Partner:   PartnerDefinition{Labels: []string{"Category"}, Properties: map[string]any{"NAME": "Human"}},
		}},
	}
}

func findCheck(r Report, key string, typ CheckType) (Check, bool) {
	for _, c := range r.Checks {
		if c.Key == key && c.Type == typ {
			return c, true
		}
	}
	return Check{}, false
}

func TestValidate(t *testing.T) {
	tmpl, err := NewCompiler().Compile(personDefinition())
	require.NoError(t, err)

	t.Run("valid candidate", func(t *testing.T) {
		r := tmpl.Validate(map[string]any{"NAME": "Jon", "SURNAME": "Doe"}, map[string]any{"age": 30})
		assert.True(t, r.Valid)
		assert.Empty(t, r.Failed())
		c, ok := findCheck(r, "NAME", CheckRequired)
		require.True(t, ok)
		assert.Equal(t, "Jon", c.Expected)
		assert.Equal(t, "Jon", c.Received)
	})

	t.Run("missing required key", func(t *testing.T) {
		r := tmpl.Validate(map[string]any{"NAME": "Jon"}, nil)
		assert.False(t, r.Valid)
		c, ok := findCheck(r, "SURNAME", CheckRequired)
		require.True(t, ok)
		assert.False(t, c.Valid)
	})

	t.Run("predicate failure", func(t *testing.T) {
		r := tmpl.Validate(map[string]any{"NAME": "J0n", "SURNAME": "Doe"}, nil)
		assert.False(t, r.Valid)
		require.Len(t, r.Failed(), 1)
		assert.Equal(t, "NAME", r.Failed()[0].Key)
	})

	t.Run("undeclared required key is not_required", func(t *testing.T) {
		r := tmpl.Validate(map[string]any{"NAME": "Jon", "SURNAME": "Doe", "SSN": "1"}, nil)
		assert.False(t, r.Valid)
		c, ok := findCheck(r, "SSN", CheckNotRequired)
		require.True(t, ok)
		assert.False(t, c.Valid)
	})

	t.Run("optional predicate", func(t *testing.T) {
		r := tmpl.Validate(map[string]any{"NAME": "Jon", "SURNAME": "Doe"}, map[string]any{"age": 200})
		assert.False(t, r.Valid)
		_, ok := findCheck(r, "age", CheckOptional)
		assert.True(t, ok)
	})

	t.Run("value check rejects nested maps", func(t *testing.T) {
		r := Permissive("Thing").Validate(map[string]any{"ID": 1}, map[string]any{"meta": map[string]any{"a": 1}})
		assert.False(t, r.Valid)
		c, ok := findCheck(r, "meta", CheckValue)
		require.True(t, ok)
		assert.False(t, c.Valid)
	})
}

func TestPermissive(t *testing.T) {
	r := Permissive("Person").Validate(map[string]any{"NAME": "Jon", "ANYTHING": true}, map[string]any{"x": 1.5})
	assert.True(t, r.Valid)
	assert.Len(t, r.Checks, 3)
	assert.Nil(t, Permissive("Person").BuildImpliedRelationships(graph.NewNode([]string{"Person"}, nil)))
}

func TestStorableValue(t *testing.T) {
	cases := []struct {
		name  string
		value any
		want  bool
	}{
		{"string", "a", true},
		{"int", 3, true},
		{"float", 1.5, true},
		{"bool", false, true},
		{"nil", nil, false},
		{"string slice", []string{"a", "b"}, true},
		{"mixed numbers", []any{1, 2.5, int64(3)}, true},
		{"mixed kinds", []any{1, "a"}, false},
		{"nested list", []any{[]any{1}}, false},
		{"map", map[string]any{}, false},
		{"empty list", []any{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StorableValue(tc.value))
		})
	}
}

func TestCompile(t *testing.T) {
	c := NewCompiler()

	t.Run("implied relationships", func(t *testing.T) {
		tmpl, err := c.Compile(personDefinition())
		require.NoError(t, err)
		implied := tmpl.BuildImpliedRelationships(graph.NewNode([]string{"Person"}, nil))
		require.Len(t, implied, 1)
		assert.Equal(t, "IS_A", implied[0].Label)
		assert.Equal(t, []string{"Category"}, implied[0].PartnerLabels)
		assert.Equal(t, "Human", implied[0].PartnerProperties["NAME"])
	})

	t.Run("rejects bad definitions", func(t *testing.T) {
		bad := []Definition{
			{},
			{Label: "X", Required: map[string]FieldDefinition{"name": {}}},
			{Label: "X", Optional: map[string]FieldDefinition{"NAME": {}}},
			{Label: "X", Required: map[string]FieldDefinition{"NAME": {Example: "Jon", Rule: "no_such_rule"}}},
			{Label: "X", Required: map[string]FieldDefinition{"AGE": {Example: -1, Rule: "gte=0"}}},
			{Label: "X", Implied: []ImpliedDefinition{{Label: "R", Direction: "sideways", Partner: PartnerDefinition{Labels: []string{"Y"}}}}},
			{Label: "X", Implied: []ImpliedDefinition{{Label: "R", Direction: graph.Inbound}}},
		}
		for i, d := range bad {
			_, err := c.Compile(d)
			assert.Error(t, err, "definition %d", i)
		}
	})
}

func TestReadDefinitions(t *testing.T) {
	doc := `
templates:
  - label: Person
    strict: true
    required:
      NAME: {example: Jon, rule: "required,alpha"}
    optional:
      age: {example: 30, rule: "gte=0"}
    implied:
      - label: IS_A
        direction: outbound
        partner:
          labels: [Category]
          properties: {NAME: Human}
`
	defs, err := ReadDefinitions(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "Person", defs[0].Label)
	assert.Equal(t, "required,alpha", defs[0].Required["NAME"].Rule)
	assert.Equal(t, graph.Outbound, defs[0].Implied[0].Direction)

	_, err = NewCompiler().Compile(defs[0])
	require.NoError(t, err)

	empty, err := ReadDefinitions(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()

	t.Run("falls back to permissive", func(t *testing.T) {
		r := NewRegistry(noopLogger(), nil)
		_, ok := r.Lookup(ctx, "Unknown")
		assert.False(t, ok)
		assert.Equal(t, "Unknown", r.Get(ctx, "Unknown").Label)
	})

	t.Run("registered definitions", func(t *testing.T) {
		r := NewRegistry(noopLogger(), nil)
		require.NoError(t, r.RegisterDefinitions(personDefinition()))
		tmpl, ok := r.Lookup(ctx, "Person")
		require.True(t, ok)
		assert.True(t, tmpl.Strict)

		r.Invalidate("Person")
		_, ok = r.Lookup(ctx, "Person")
		assert.False(t, ok)
	})

	t.Run("redis source", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })

		store := NewRedisStore(rdb, "")
		require.NoError(t, store.Save(ctx, personDefinition()))
		require.NoError(t, store.Save(ctx, Definition{Label: "City"}))

		labels, err := store.Labels(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"City", "Person"}, labels)

		r := NewRegistry(noopLogger(), store)
		tmpl, ok := r.Lookup(ctx, "Person")
		require.True(t, ok)
		assert.Contains(t, tmpl.Required, "NAME")
		assert.True(t, tmpl.Validate(map[string]any{"NAME": "Jon", "SURNAME": "Doe"}, map[string]any{"age": 30}).Valid)

		missing, err := store.Load(ctx, "Nope")
		require.NoError(t, err)
		assert.Nil(t, missing)

		require.NoError(t, store.Delete(ctx, "City"))
		labels, err = store.Labels(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"Person"}, labels)
	})
}
