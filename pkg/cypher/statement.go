// Package cypher builds the parameterized Cypher statements the engine sends
// to the graph store. Every batch write follows the UNWIND pattern: one
// statement per group, one parameter row per entity.
package cypher

import (
	"fmt"
	"regexp"
	"strings"
)

// Statement is one parameterized query.
type Statement struct {
	// Name identifies the query shape, e.g. "merge_nodes".
	Name   string
	Cypher string
	Params map[string]any
}

// String returns the query text.
func (s Statement) String() string {
	return s.Cypher
}

var labelPattern = regexp.MustCompile(`[^A-Za-z0-9_]`)

// SanitizeLabel strips everything but letters, digits and underscores from a
// label or relationship type.
func SanitizeLabel(label string) string {
	clean := labelPattern.ReplaceAllString(label, "")
	if clean == "" {
		return "Entity"
	}
	return clean
}

// labelExpr renders ":`A`:`B`" for a label set.
func labelExpr(labels []string) string {
	var b strings.Builder
	for _, l := range labels {
		fmt.Fprintf(&b, ":`%s`", SanitizeLabel(l))
	}
	return b.String()
}

// labelKey groups label sets; order matters because the first label is the
// primary one.
func labelKey(labels []string) string {
	clean := make([]string, len(labels))
	for i, l := range labels {
		clean[i] = SanitizeLabel(l)
	}
	return strings.Join(clean, ":")
}
