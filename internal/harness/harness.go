package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/querykit/internal/backend"
	"github.com/roach88/querykit/internal/config"
	"github.com/roach88/querykit/internal/ir"
	"github.com/roach88/querykit/internal/querydoc"
	"github.com/roach88/querykit/internal/queryset"
)

// Harness runs scenario steps against one backend.
type Harness struct {
	target backend.Target
	key    string
	logger *slog.Logger
	ids    queryset.IDGenerator
}

// Run executes a scenario against target and returns the result.
//
// Execution flow:
// 1. Apply seed files, then inline setup
// 2. Execute flow steps, checking each expect clause
// 3. Evaluate assertions against the trace and the final backend state
//
// Expectation mismatches are reported in the result. An error is returned
// only when the scenario cannot run at all.
func Run(ctx context.Context, scenario *Scenario, target backend.Target) (*Result, error) {
	h := &Harness{
		target: target,
		key:    scenario.Key,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
		ids:    queryset.NewFixedGenerator("harness"),
	}
	if h.key == "" {
		h.key = DefaultKey
	}

	if err := h.executeSetup(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Flow {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	actx := &AssertionContext{Ctx: ctx, Target: target, Entity: scenario.Entity, Options: h.options()}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

// RunWith opens a fresh backend from cfg, runs the scenario and closes the
// backend. cfg.Seed is applied before the scenario's own seeds.
func RunWith(ctx context.Context, scenario *Scenario, cfg config.BackendConfig) (*Result, error) {
	target, err := backend.Open(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return nil, err
	}
	defer target.Close()
	return Run(ctx, scenario, target)
}

func (h *Harness) options() []queryset.Option {
	return []queryset.Option{queryset.WithLogger(h.logger), queryset.WithIDGenerator(h.ids)}
}

func (h *Harness) executeSetup(ctx context.Context, scenario *Scenario) error {
	for _, path := range scenario.Seeds {
		seed, err := backend.LoadSeed(path)
		if err != nil {
			return err
		}
		if _, err := seed.Apply(ctx, h.target); err != nil {
			return fmt.Errorf("seed %s: %w", path, err)
		}
	}
	if len(scenario.Setup) == 0 {
		return nil
	}
	_, err := backend.Seed{Entities: scenario.Setup}.Apply(ctx, h.target)
	return err
}

func (h *Harness) querySet(step Step) (queryset.QuerySet[ir.IRObject], error) {
	f, err := step.Query.Fetch()
	if err != nil {
		return queryset.QuerySet[ir.IRObject]{}, err
	}
	opts := h.options()
	if step.CountPolicy != "" {
		p, err := queryset.ParseCountPolicy(step.CountPolicy)
		if err != nil {
			return queryset.QuerySet[ir.IRObject]{}, err
		}
		opts = append(opts, queryset.WithCountPolicy(p))
	}
	return queryset.NewWithState[ir.IRObject](h.target, step.Query.Descriptor(), f.Predicate, f.Sort, f.Range, opts...), nil
}

// executeStep runs one step, appends its trace event and checks its expect
// clause.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	qs, err := h.querySet(step)
	if err != nil {
		return err
	}

	event := TraceEvent{Seq: i + 1, Op: step.Op, Query: qs.String()}
	var records []ir.IRObject
	var single ir.IRObject
	var found bool

	switch step.Op {
	case OpList:
		records, err = qs.All(ctx)
	case OpUnique:
		records, err = qs.Unique(ctx)
	case OpCount, OpDelete:
		var n int
		if step.Op == OpCount {
			n, err = qs.Count(ctx)
		} else {
			n, err = qs.Delete(ctx)
		}
		if err == nil {
			event.Count = &n
		}
	case OpFirst:
		single, found, err = qs.First(ctx)
	case OpLast:
		single, found, err = qs.Last(ctx)
	case OpAt:
		single, found, err = qs.At(ctx, step.Index)
	case OpExists:
		found, err = qs.Exists(ctx)
	case OpOne:
		single, err = qs.One(ctx)
		found = err == nil
	}

	if err != nil {
		code, ok := queryset.CodeOf(err)
		if !ok {
			return err
		}
		event.Error = string(code)
	} else {
		switch step.Op {
		case OpFirst, OpLast, OpAt, OpExists:
			event.Found = &found
		}
		switch step.Op {
		case OpFirst, OpLast, OpAt, OpOne:
			if found {
				records = []ir.IRObject{single}
			} else {
				records = []ir.IRObject{}
			}
		}
		if records != nil {
			event.records = records
			event.Keys = make([]ir.IRValue, len(records))
			for j, r := range records {
				k, ok := r.Lookup(h.key)
				if !ok {
					k = ir.IRNull{}
				}
				event.Keys[j] = k
			}
		}
	}

	result.Trace = append(result.Trace, event)
	for _, msg := range checkExpect(step, event) {
		result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Op, msg))
	}
	return nil
}

// checkExpect compares a step's event with its expect clause. A step
// without an expect clause must succeed.
func checkExpect(step Step, event TraceEvent) []string {
	exp := step.Expect
	if exp == nil {
		exp = &ExpectClause{}
	}

	if exp.Error != event.Error {
		switch {
		case event.Error == "":
			return []string{fmt.Sprintf("expected error %s, got success", exp.Error)}
		case exp.Error == "":
			return []string{fmt.Sprintf("unexpected error %s", event.Error)}
		default:
			return []string{fmt.Sprintf("expected error %s, got %s", exp.Error, event.Error)}
		}
	}
	if event.Error != "" {
		return nil
	}

	var errs []string
	if exp.Count != nil {
		got := len(event.records)
		if event.Count != nil {
			got = *event.Count
		}
		if got != *exp.Count {
			errs = append(errs, fmt.Sprintf("expected count %d, got %d", *exp.Count, got))
		}
	}
	if exp.Found != nil {
		got := event.Found != nil && *event.Found
		if got != *exp.Found {
			errs = append(errs, fmt.Sprintf("expected found %v, got %v", *exp.Found, got))
		}
	}
	if exp.Records != nil {
		errs = append(errs, matchRecords(exp.Records, event.records)...)
	}
	return errs
}

// matchRecords checks records in order with subset semantics: only the
// fields named in each expected record are compared.
func matchRecords(want []map[string]any, got []ir.IRObject) []string {
	if len(want) != len(got) {
		return []string{fmt.Sprintf("expected %d records, got %d", len(want), len(got))}
	}
	var errs []string
	for i, w := range want {
		for field, raw := range w {
			expected, err := querydoc.Literal(raw)
			if err != nil {
				errs = append(errs, fmt.Sprintf("records[%d].%s: %v", i, field, err))
				continue
			}
			actual, ok := got[i].Lookup(field)
			if !ok {
				actual = ir.IRNull{}
			}
			if !ir.Equal(expected, actual) {
				errs = append(errs, fmt.Sprintf("records[%d].%s: expected %v, got %v", i, field, expected, actual))
			}
		}
	}
	return errs
}
