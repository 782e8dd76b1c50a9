// Package result defines the per-input outcome every public operation
// returns: a Success carrying data, or a Failure carrying a reason.
package result

import (
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

// Kind classifies a Failure.
type Kind string

const (
	// KindValidation means a candidate failed its template checks.
	KindValidation Kind = "validation"
	// KindPromotion means a candidate was structurally incomplete.
	KindPromotion Kind = "promotion"
	// KindStore means the query transport returned an error.
	KindStore Kind = "store"
	// KindConsistency means the round-trip succeeded but the entity is not
	// fully written.
	KindConsistency Kind = "consistency"
)

// StatusCode maps a kind to the HTTP status used when it crosses the API.
func (k Kind) StatusCode() int {
	switch k {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindPromotion:
		return http.StatusBadRequest
	case KindStore:
		return http.StatusBadGateway
	case KindConsistency:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Summary describes what a store round-trip did.
type Summary struct {
	Query                string `json:"query,omitempty"`
	NodesCreated         int    `json:"nodesCreated"`
	NodesDeleted         int    `json:"nodesDeleted"`
	RelationshipsCreated int    `json:"relationshipsCreated"`
	RelationshipsDeleted int    `json:"relationshipsDeleted"`
	PropertiesSet        int    `json:"propertiesSet"`
	Retried              bool   `json:"retried,omitempty"`
	AvailableAfterMs     int64  `json:"resultAvailableAfterMs,omitempty"`
}

// Success is a positive outcome.
type Success struct {
	Data       any            `json:"data"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Query      string         `json:"query,omitempty"`
	Summary    *Summary       `json:"summary,omitempty"`
}

// Failure is a negative outcome. It implements error so it can travel
// through ordinary error returns.
type Failure struct {
	Kind       Kind           `json:"kind"`
	Reason     string         `json:"reason"`
	Data       any            `json:"data,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Err        error          `json:"-"`
}

// Error implements error.
func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s failure: %s: %v", f.Kind, f.Reason, f.Err)
	}
	return fmt.Sprintf("%s failure: %s", f.Kind, f.Reason)
}

// Unwrap exposes the underlying error.
func (f *Failure) Unwrap() error { return f.Err }

// HTTPError converts f for the API error middleware.
func (f *Failure) HTTPError() *httperror.HTTPError {
	he := httperror.NewHTTPError(f.Kind.StatusCode(), f.Reason).
		AddMetaValue("kind", string(f.Kind))
	if f.Data != nil {
		he = he.AddMetaValue("data", f.Data)
	}
	if f.Err != nil {
		he = he.AddMetaValue("cause", f.Err.Error())
	}
	return he
}

// Result holds exactly one of Success or Failure.
type Result struct {
	Success *Success `json:"success,omitempty"`
	Failure *Failure `json:"failure,omitempty"`
}

// OK builds a successful result.
func OK(data any, params map[string]any, query string, summary *Summary) Result {
	return Result{Success: &Success{Data: data, Parameters: params, Query: query, Summary: summary}}
}

// Fail wraps a failure.
func Fail(f *Failure) Result {
	return Result{Failure: f}
}

// Validation builds a validation failure.
func Validation(reason string, data any) *Failure {
	return &Failure{Kind: KindValidation, Reason: reason, Data: data}
}

// Promotion builds a promotion failure.
func Promotion(reason string, data any) *Failure {
	return &Failure{Kind: KindPromotion, Reason: reason, Data: data}
}

// Store builds a store failure carrying the transport error.
func Store(err error, data any, params map[string]any) *Failure {
	reason := "store request failed"
	if err != nil {
		reason = err.Error()
	}
	return &Failure{Kind: KindStore, Reason: reason, Data: data, Parameters: params, Err: err}
}

// Consistency builds a consistency failure.
func Consistency(reason string, data any, params map[string]any) *Failure {
	return &Failure{Kind: KindConsistency, Reason: reason, Data: data, Parameters: params}
}

// IsSuccess reports whether r is a success.
func (r Result) IsSuccess() bool { return r.Success != nil && r.Failure == nil }

// Data returns the success data or the failure data.
func (r Result) Data() any {
	if r.Success != nil {
		return r.Success.Data
	}
	if r.Failure != nil {
		return r.Failure.Data
	}
	return nil
}

// Err returns the failure as an error, or nil.
func (r Result) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure
}

// Successes filters successful results.
func Successes(rs []Result) []Result {
	var out []Result
	for _, r := range rs {
		if r.IsSuccess() {
			out = append(out, r)
		}
	}
	return out
}

// Failures filters failed results.
func Failures(rs []Result) []Result {
	var out []Result
	for _, r := range rs {
		if !r.IsSuccess() {
			out = append(out, r)
		}
	}
	return out
}

// DataAs extracts typed data from a successful result.
func DataAs[T any](r Result) (T, bool) {
	var zero T
	if !r.IsSuccess() {
		return zero, false
	}
	v, ok := r.Success.Data.(T)
	return v, ok
}
