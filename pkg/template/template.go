// Package template describes the per-label schemas that candidates are
// validated against: required and optional keys with an example value and a
// predicate, plus a factory for relationships every node of the label implies.
package template

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/ooddaa/mango-sub002/pkg/graph"
)

// Predicate reports whether a property value is acceptable.
type Predicate func(value any) bool

// Field declares one property key.
type Field struct {
	Example   any
	Predicate Predicate
	// Rule is the validator tag the predicate was compiled from, if any.
	Rule string
}

func (f Field) accepts(value any) bool {
	if value == nil {
		return false
	}
	if f.Predicate == nil {
		return true
	}
	return f.Predicate(value)
}

// ImpliedRelationship is a relationship every node of a label carries. The
// partner is described as plain data and promoted alongside the main node.
type ImpliedRelationship struct {
	Label             string
	Properties        graph.Properties
	Direction         graph.Direction
	Necessity         graph.Necessity
	PartnerLabels     []string
	PartnerProperties graph.Properties
}

// ImpliedFunc builds implied relationships for a (not yet hashed) node.
type ImpliedFunc func(node *graph.Node) []ImpliedRelationship

// Template is the schema for one label.
type Template struct {
	Label    string
	Required map[string]Field
	Optional map[string]Field
	Implied  ImpliedFunc
	// Strict templates flag required keys they do not declare.
	Strict bool
}

// Permissive returns the template used when a label has none: any required
// or optional key is accepted as long as its value can be stored.
func Permissive(label string) *Template {
	return &Template{Label: label}
}

// BuildImpliedRelationships runs the implied-relationship factory, if any.
func (t *Template) BuildImpliedRelationships(node *graph.Node) []ImpliedRelationship {
	if t == nil || t.Implied == nil {
		return nil
	}
	return t.Implied(node)
}

// CheckType classifies one entry of a validation report.
type CheckType string

const (
	CheckRequired    CheckType = "required"
	CheckOptional    CheckType = "optional"
	CheckNotRequired CheckType = "not_required"
	CheckValue       CheckType = "value"
)

// Check is one entry of a validation report.
type Check struct {
	Key      string    `json:"key"`
	Valid    bool      `json:"valid"`
	Expected any       `json:"expected,omitempty"`
	Received any       `json:"received,omitempty"`
	Type     CheckType `json:"type"`
}

// Report is the outcome of validating a candidate's properties.
type Report struct {
	Label    string  `json:"label"`
	Template string  `json:"template"`
	Valid    bool    `json:"valid"`
	Checks   []Check `json:"checks"`
}

// Failed returns the checks that did not pass.
func (r Report) Failed() []Check {
	var out []Check
	for _, c := range r.Checks {
		if !c.Valid {
			out = append(out, c)
		}
	}
	return out
}

// Validate checks required and optional properties against t.
func (t *Template) Validate(required, optional map[string]any) Report {
	report := Report{Label: t.Label, Template: t.Label, Valid: true}
	add := func(c Check) {
		if !c.Valid {
			report.Valid = false
		}
		report.Checks = append(report.Checks, c)
	}

	for _, key := range sortedKeys(t.Required) {
		field := t.Required[key]
		value, ok := required[key]
		add(Check{
			Key:      key,
			Valid:    ok && field.accepts(value),
			Expected: field.Example,
			Received: value,
			Type:     CheckRequired,
		})
	}

	if t.Strict {
		for _, key := range sortedKeys(required) {
			if _, declared := t.Required[key]; declared {
				continue
			}
			add(Check{
				Key:      key,
				Valid:    false,
				Received: required[key],
				Type:     CheckNotRequired,
			})
		}
	}

	for _, key := range sortedKeys(t.Optional) {
		value, ok := optional[key]
		if !ok {
			continue
		}
		field := t.Optional[key]
		add(Check{
			Key:      key,
			Valid:    field.accepts(value),
			Expected: field.Example,
			Received: value,
			Type:     CheckOptional,
		})
	}

	for _, props := range []map[string]any{required, optional} {
		for _, key := range sortedKeys(props) {
			value := props[key]
			add(Check{
				Key:      key,
				Valid:    StorableValue(value),
				Expected: "scalar or homogeneous list of scalars",
				Received: fmt.Sprintf("%T", value),
				Type:     CheckValue,
			})
		}
	}

	return report
}

// StorableValue reports whether v can be persisted as a property: a scalar
// or a homogeneous list of scalars. nil is not storable.
func StorableValue(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return isScalar(rv.Kind())
	}
	var kind reflect.Kind
	for i := 0; i < rv.Len(); i++ {
		item := rv.Index(i)
		for item.Kind() == reflect.Interface && !item.IsNil() {
			item = item.Elem()
		}
		k := scalarFamily(item.Kind())
		if !isScalar(item.Kind()) {
			return false
		}
		if i == 0 {
			kind = k
			continue
		}
		if k != kind {
			return false
		}
	}
	return true
}

func isScalar(k reflect.Kind) bool {
	switch k {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// scalarFamily folds numeric kinds together so [1, 2.5] counts as homogeneous.
func scalarFamily(k reflect.Kind) reflect.Kind {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return reflect.Float64
	}
	return k
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
