package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/querykit/internal/backend"
	"github.com/roach88/querykit/internal/ir"
	"github.com/roach88/querykit/internal/querydoc"
	"github.com/roach88/querykit/internal/queryset"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s", event.Seq, event.Op, event.Query)
			if event.Error != "" {
				fmt.Fprintf(&buf, " -> %s", event.Error)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// AssertionContext carries what final_state needs to query the backend.
type AssertionContext struct {
	Ctx    context.Context
	Target backend.Target

	// Entity is the default entity for final_state.
	Entity string

	Options []queryset.Option
}

// EvaluateAssertions runs every assertion and returns the failure messages.
// final_state assertions are skipped when actx is nil.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertFinalState:
			if actx == nil {
				continue
			}
			err = assertFinalState(actx, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

// assertTraceOrder checks that ops appear in the specified order.
// They don't need to be consecutive (intervening steps are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	next := 0
	for _, event := range trace {
		if next < len(assertion.Ops) && event.Op == assertion.Ops[next] {
			next++
		}
	}
	if next == len(assertion.Ops) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("ops in order: %v", assertion.Ops),
		Actual:   fmt.Sprintf("%s not found after position %d", assertion.Ops[next], next),
		Trace:    trace,
	}
}

// assertTraceCount checks that the op appears exactly the specified number
// of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Op == assertion.Op {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Op),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState counts the records of an entity matching Where once the
// flow has run.
func assertFinalState(actx *AssertionContext, assertion Assertion) error {
	entity := assertion.Entity
	if entity == "" {
		entity = actx.Entity
	}
	doc := querydoc.Document{Entity: entity, Where: assertion.Where}
	f, err := doc.Fetch()
	if err != nil {
		return err
	}

	qs := queryset.NewWithState[ir.IRObject](actx.Target, doc.Descriptor(), f.Predicate, nil, f.Range, actx.Options...)
	n, err := qs.Count(actx.Ctx)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("count %s", qs),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	if n != assertion.Count {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%d records in %s", assertion.Count, qs),
			Actual:   fmt.Sprintf("%d records", n),
		}
	}
	return nil
}
