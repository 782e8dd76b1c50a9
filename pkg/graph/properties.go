package graph

import (
	"maps"
	"strings"
	"time"
	"unicode"
)

// System property keys. Everything prefixed with an underscore is private
// metadata and never part of a content hash.
const (
	KeyHash           = "_hash"
	KeyUUID           = "_uuid"
	KeyLabel          = "_label"
	KeyDateCreated    = "_date_created"
	KeyTemplate       = "_template"
	KeyIsCurrent      = "_isCurrent"
	KeyHasBeenUpdated = "_hasBeenUpdated"
	KeyWhenWasUpdated = "_whenWasUpdated"
	KeyUpdaterHash    = "_updaterHash"
	KeyDateEnded      = "_date_ended"
	KeyHasBeenDeleted = "_hasBeenDeleted"
	KeyWhenWasDeleted = "_whenWasDeleted"
)

// Properties holds node or relationship properties. Keys are partitioned by
// naming convention: ALL-CAPS keys are required, underscore-prefixed keys are
// private, everything else is optional.
type Properties map[string]any

// IsPrivate reports whether key is system metadata.
func IsPrivate(key string) bool {
	return strings.HasPrefix(key, "_")
}

// IsRequired reports whether key names a required (identity-bearing) property.
func IsRequired(key string) bool {
	if key == "" || IsPrivate(key) {
		return false
	}
	hasLetter := false
	for _, r := range key {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

// IsOptional reports whether key names an optional property.
func IsOptional(key string) bool {
	return key != "" && !IsPrivate(key) && !IsRequired(key)
}

func (p Properties) filter(keep func(string) bool) map[string]any {
	out := make(map[string]any)
	for k, v := range p {
		if keep(k) {
			out[k] = v
		}
	}
	return out
}

// Required returns the required subset.
func (p Properties) Required() map[string]any { return p.filter(IsRequired) }

// Optional returns the optional subset.
func (p Properties) Optional() map[string]any { return p.filter(IsOptional) }

// Private returns the private subset.
func (p Properties) Private() map[string]any { return p.filter(IsPrivate) }

// String returns the value at key when it is a string.
func (p Properties) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Bool returns the value at key when it is a bool.
func (p Properties) Bool(key string) bool {
	b, _ := p[key].(bool)
	return b
}

// Clone returns a shallow copy; nil stays nil-safe as an empty map.
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	maps.Copy(out, p)
	return out
}

// DateArray encodes t the way `_date_created` and friends are persisted:
// [year, month, day, weekday, epoch millis].
func DateArray(t time.Time) []any {
	t = t.UTC()
	return []any{
		int64(t.Year()),
		int64(t.Month()),
		int64(t.Day()),
		int64(t.Weekday()),
		t.UnixMilli(),
	}
}

// ParseDateArray reverses DateArray. ok is false for anything that is not a
// five element numeric list.
func ParseDateArray(v any) (time.Time, bool) {
	arr, ok := v.([]any)
	if !ok || len(arr) != 5 {
		return time.Time{}, false
	}
	switch ms := arr[4].(type) {
	case int64:
		return time.UnixMilli(ms).UTC(), true
	case int:
		return time.UnixMilli(int64(ms)).UTC(), true
	case float64:
		return time.UnixMilli(int64(ms)).UTC(), true
	}
	return time.Time{}, false
}
