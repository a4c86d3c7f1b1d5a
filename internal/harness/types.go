package harness

import "github.com/roach88/querykit/internal/ir"

// TraceEvent records one executed step.
// Only backend-independent facts are kept so the same trace is produced by
// every backend: error codes rather than messages, and record keys rather
// than whole records.
type TraceEvent struct {
	Seq int `json:"seq"`

	// Op is the step operation.
	Op string `json:"op"`

	// Query is the rendered fetch the step ran.
	Query string `json:"query"`

	// Count is set by count and delete.
	Count *int `json:"count,omitempty"`

	// Found is set by first, last, at and exists.
	Found *bool `json:"found,omitempty"`

	// Keys holds the key field of each returned record, in order.
	Keys []ir.IRValue `json:"keys,omitempty"`

	// Error is the QueryError code when the step failed.
	Error string `json:"error,omitempty"`

	records []ir.IRObject
}

// Records returns the records the step returned.
func (e TraceEvent) Records() []ir.IRObject { return e.records }

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses and assertions match.
	Pass bool `json:"pass"`

	// Trace contains one event per flow step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// snapshot is the canonical form of an event, as written to golden files.
func (e TraceEvent) snapshot() map[string]any {
	m := map[string]any{
		"seq":   e.Seq,
		"op":    e.Op,
		"query": e.Query,
	}
	if e.Count != nil {
		m["count"] = *e.Count
	}
	if e.Found != nil {
		m["found"] = *e.Found
	}
	if e.Keys != nil {
		keys := make([]any, len(e.Keys))
		for i, k := range e.Keys {
			keys[i] = k
		}
		m["keys"] = keys
	}
	if e.Error != "" {
		m["error"] = e.Error
	}
	return m
}
