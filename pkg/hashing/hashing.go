// Package hashing derives the content hashes that identify nodes and
// relationships before they are ever written to the store.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Node returns the content hash of a node: sha256 over the canonical form of
// its primary label and required properties.
func Node(label string, required map[string]any) string {
	return Generate(map[string]any{
		"label":    label,
		"required": normalize(required),
	})
}

// Relationship returns the content hash of a relationship. The hash folds in
// the type label, the required properties and both endpoint hashes. It is
// empty when either endpoint has no hash yet, which callers treat as
// "not writable".
func Relationship(label string, required map[string]any, startHash, endHash string) string {
	if startHash == "" || endHash == "" {
		return ""
	}
	return Generate(map[string]any{
		"label":    label,
		"required": normalize(required),
		"start":    startHash,
		"end":      endHash,
	})
}

// Generate hashes arbitrary data through its canonical JSON form.
func Generate(data map[string]any) string {
	sum := sha256.Sum256([]byte(Canonicalize(data)))
	return hex.EncodeToString(sum[:])
}

// IsDigest reports whether s looks like a hash produced by this package.
func IsDigest(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// Canonicalize renders data with sorted map keys so equal content always
// serializes to the same bytes.
func Canonicalize(data any) string {
	var b strings.Builder
	canonicalize(&b, data)
	return b.String()
}

func canonicalize(b *strings.Builder, data any) {
	switch v := data.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			keyJSON, _ := json.Marshal(k)
			b.Write(keyJSON)
			b.WriteByte(':')
			canonicalize(b, v[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				b.WriteByte(',')
			}
			canonicalize(b, item)
		}
		b.WriteByte(']')
	default:
		raw, _ := json.Marshal(v)
		b.Write(raw)
	}
}

// normalize converts typed slices ([]string, []int64, ...) into []any so that
// a value decoded from YAML, JSON or the store hashes identically.
func normalize(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalizeValue(item)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = item
		}
		return out
	case []int:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = item
		}
		return out
	case []int64:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = item
		}
		return out
	case []float64:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = item
		}
		return out
	case []bool:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = item
		}
		return out
	case map[string]any:
		return normalize(t)
	default:
		return v
	}
}
