// Package criteria compiles partial-node conditions into Cypher WHERE
// fragments. It supports both simple equality checks and operator-based
// conditions.
package criteria

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Supported operators
const (
	OpEquals   = ""          // default, no prefix - simple equality
	OpContains = "$contains" // array contains value
	OpIn       = "$in"       // value is in array of options
	OpGte      = "$gte"      // greater than or equal
	OpGt       = "$gt"       // greater than
	OpLte      = "$lte"      // less than or equal
	OpLt       = "$lt"       // less than
	OpExists   = "$exists"   // field exists (value should be bool)
	OpNe       = "$ne"       // not equal
	OpNot      = "$not"      // negates a nested operator map
)

// ErrUnknownOperator is returned for operators outside the supported set.
var ErrUnknownOperator = errors.New("unknown criteria operator")

// Condition represents a single field condition
type Condition struct {
	Field    string
	Operator string
	Value    any
	Negate   bool
}

// ParseCriteria converts a criteria map to structured conditions.
// Format: {"field": "value"} for equality, {"field": {"$op": "value"}} for
// operators, {"field": {"$not": {"$op": "value"}}} for negation. Conditions
// are ordered by field then operator.
func ParseCriteria(criteria map[string]any) ([]Condition, error) {
	var conditions []Condition

	for _, field := range sortedKeys(criteria) {
		if field == "" {
			return nil, errors.New("criteria field is empty")
		}
		switch v := criteria[field].(type) {
		case map[string]any:
			conds, err := parseOperators(field, v, false)
			if err != nil {
				return nil, err
			}
			conditions = append(conditions, conds...)
		default:
			conditions = append(conditions, Condition{
				Field:    field,
				Operator: OpEquals,
				Value:    v,
			})
		}
	}

	return conditions, nil
}

func parseOperators(field string, ops map[string]any, negate bool) ([]Condition, error) {
	var conditions []Condition
	for _, op := range sortedKeys(ops) {
		value := ops[op]
		switch op {
		case OpNot:
			nested, ok := value.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("field %s: %s expects an operator map", field, OpNot)
			}
			conds, err := parseOperators(field, nested, !negate)
			if err != nil {
				return nil, err
			}
			conditions = append(conditions, conds...)
		case OpContains, OpIn, OpGte, OpGt, OpLte, OpLt, OpNe:
			conditions = append(conditions, Condition{Field: field, Operator: op, Value: value, Negate: negate})
		case OpExists:
			if _, ok := value.(bool); !ok {
				return nil, fmt.Errorf("field %s: %s expects a boolean", field, OpExists)
			}
			conditions = append(conditions, Condition{Field: field, Operator: op, Value: value, Negate: negate})
		default:
			return nil, fmt.Errorf("field %s: %w %q", field, ErrUnknownOperator, op)
		}
	}
	return conditions, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Params collects query parameters under generated names.
type Params struct {
	prefix string
	values map[string]any
}

// NewParams creates a parameter set whose names start with prefix.
func NewParams(prefix string) *Params {
	return &Params{prefix: prefix, values: map[string]any{}}
}

// Add stores v and returns its placeholder, e.g. "$c0".
func (p *Params) Add(v any) string {
	name := fmt.Sprintf("%s%d", p.prefix, len(p.values))
	p.values[name] = v
	return "$" + name
}

// Values returns the collected parameters.
func (p *Params) Values() map[string]any {
	return p.values
}

// Property renders a backtick-quoted property access on variable.
func Property(variable, key string) string {
	return fmt.Sprintf("%s.`%s`", variable, strings.ReplaceAll(key, "`", "``"))
}

// Cypher renders the condition against variable.
func (c Condition) Cypher(variable string, params *Params) (string, error) {
	prop := Property(variable, c.Field)

	var expr string
	switch c.Operator {
	case OpEquals:
		if c.Value == nil {
			expr = prop + " IS NULL"
		} else {
			expr = fmt.Sprintf("%s = %s", prop, params.Add(c.Value))
		}
	case OpNe:
		expr = fmt.Sprintf("(%s IS NULL OR %s <> %s)", prop, prop, params.Add(c.Value))
	case OpExists:
		if c.Value.(bool) {
			expr = prop + " IS NOT NULL"
		} else {
			expr = prop + " IS NULL"
		}
	case OpContains:
		expr = fmt.Sprintf("%s IN coalesce(%s, [])", params.Add(c.Value), prop)
	case OpIn:
		list, ok := toSlice(c.Value)
		if !ok {
			return "", fmt.Errorf("field %s: %s expects a list", c.Field, OpIn)
		}
		expr = fmt.Sprintf("%s IN %s", prop, params.Add(list))
	case OpGte, OpGt, OpLte, OpLt:
		expr = fmt.Sprintf("%s %s %s", prop, comparators[c.Operator], params.Add(c.Value))
	default:
		return "", fmt.Errorf("field %s: %w %q", c.Field, ErrUnknownOperator, c.Operator)
	}

	if c.Negate {
		return "NOT (" + expr + ")", nil
	}
	return expr, nil
}

var comparators = map[string]string{
	OpGte: ">=",
	OpGt:  ">",
	OpLte: "<=",
	OpLt:  "<",
}

// toSlice converts typed slices to []any
func toSlice(v any) ([]any, bool) {
	switch arr := v.(type) {
	case []any:
		return arr, true
	case []string:
		out := make([]any, len(arr))
		for i, s := range arr {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]any, len(arr))
		for i, n := range arr {
			out[i] = int64(n)
		}
		return out, true
	case []int64:
		out := make([]any, len(arr))
		for i, n := range arr {
			out[i] = n
		}
		return out, true
	case []float64:
		out := make([]any, len(arr))
		for i, n := range arr {
			out[i] = n
		}
		return out, true
	default:
		return nil, false
	}
}
