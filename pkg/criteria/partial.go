package criteria

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ooddaa/mango-sub002/pkg/graph"
)

// dateIndex is the epoch-millis element of a date array property.
const dateIndex = 4

// Range is the single optional date-or-range clause of a partial node. When
// Day is set, or From/To are times, the clause compares the epoch-millis
// element of a date array property (Key defaults to _date_created).
// Otherwise it bounds a plain property inclusively.
type Range struct {
	Key  string `json:"key,omitempty" yaml:"key,omitempty"`
	From any    `json:"from,omitempty" yaml:"from,omitempty"`
	To   any    `json:"to,omitempty" yaml:"to,omitempty"`
	// Day is a calendar day, YYYY-MM-DD, in UTC.
	Day string `json:"day,omitempty" yaml:"day,omitempty"`
}

// PartialNode describes nodes by labels, property conditions and an optional
// range, e.g. {labels: [Person], conditions: {AGE: {$gte: 18}}}.
type PartialNode struct {
	Labels     []string       `json:"labels" yaml:"labels"`
	Conditions map[string]any `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Range      *Range         `json:"range,omitempty" yaml:"range,omitempty"`
}

// Compile renders the WHERE fragment for p against variable. A partial node
// without conditions compiles to "true".
func Compile(p PartialNode, variable string, params *Params) (string, error) {
	conditions, err := ParseCriteria(p.Conditions)
	if err != nil {
		return "", err
	}

	clauses := make([]string, 0, len(conditions)+2)
	for _, c := range conditions {
		expr, err := c.Cypher(variable, params)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, expr)
	}

	if p.Range != nil {
		exprs, err := p.Range.cypher(variable, params)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, exprs...)
	}

	if len(clauses) == 0 {
		return "true", nil
	}
	return strings.Join(clauses, " AND "), nil
}

func (r *Range) cypher(variable string, params *Params) ([]string, error) {
	from, to := r.From, r.To
	date := r.Day != ""
	if date {
		day, err := time.Parse(time.DateOnly, r.Day)
		if err != nil {
			return nil, fmt.Errorf("range day %q: %w", r.Day, err)
		}
		from = day
		to = day.Add(24*time.Hour - time.Millisecond)
	}

	fromMillis, fromIsTime, err := asMillis(from)
	if err != nil {
		return nil, err
	}
	toMillis, toIsTime, err := asMillis(to)
	if err != nil {
		return nil, err
	}
	date = date || fromIsTime || toIsTime

	key := r.Key
	var target string
	if date {
		if key == "" {
			key = graph.KeyDateCreated
		}
		target = fmt.Sprintf("%s[%d]", Property(variable, key), dateIndex)
		if fromIsTime {
			from = fromMillis
		}
		if toIsTime {
			to = toMillis
		}
	} else {
		if key == "" {
			return nil, errors.New("range needs a key")
		}
		target = Property(variable, key)
	}

	if from == nil && to == nil {
		return nil, errors.New("range needs from, to or day")
	}
	var out []string
	if from != nil {
		out = append(out, fmt.Sprintf("%s >= %s", target, params.Add(from)))
	}
	if to != nil {
		out = append(out, fmt.Sprintf("%s <= %s", target, params.Add(to)))
	}
	return out, nil
}

// asMillis converts times and RFC 3339 or YYYY-MM-DD strings to epoch
// milliseconds. Other values are left to the caller.
func asMillis(v any) (int64, bool, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UnixMilli(), true, nil
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed.UnixMilli(), true, nil
		}
		if parsed, err := time.Parse(time.DateOnly, t); err == nil {
			return parsed.UnixMilli(), true, nil
		}
		return 0, false, fmt.Errorf("range bound %q is not a date", t)
	default:
		return 0, false, nil
	}
}
