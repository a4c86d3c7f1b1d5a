package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/querykit/internal/backend"
	"github.com/roach88/querykit/internal/querydoc"
)

// Scenario defines a conformance test scenario.
// Scenarios load records, run a flow of query set operations against a
// backend and assert on the resulting trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Entity is the default entity for queries that do not name one.
	Entity string `yaml:"entity,omitempty"`

	// Key names the field recorded in the trace for each returned record.
	// Defaults to "id".
	Key string `yaml:"key,omitempty"`

	// Seeds lists seed files to apply before Setup.
	// Paths are relative to the scenario file location.
	Seeds []string `yaml:"seeds,omitempty"`

	// Setup declares entities and records inline.
	Setup []backend.EntitySeed `yaml:"setup,omitempty"`

	// Flow contains the operations to execute, in order.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and state.
	// Supported types: trace_count, trace_order, final_state
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step runs one operation over the query set built from Query.
type Step struct {
	// Op is one of the Op* constants.
	Op string `yaml:"op"`

	Query querydoc.Document `yaml:"query"`

	// Index is the position read by "at".
	Index int `yaml:"index,omitempty"`

	// CountPolicy overrides the count policy for this step: "matches" or
	// "window".
	CountPolicy string `yaml:"count_policy,omitempty"`

	// Expect specifies the expected outcome.
	// If nil, the step only has to succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Error is the expected QueryError code, e.g. NO_MATCH.
	Error string `yaml:"error,omitempty"`

	// Count is the expected count (count, delete) or number of records.
	Count *int `yaml:"count,omitempty"`

	// Found is the expected found flag of first, last, at and exists.
	Found *bool `yaml:"found,omitempty"`

	// Records lists the expected records in order. Each entry is a subset
	// match: only the listed fields are compared.
	Records []map[string]any `yaml:"records,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_count": Check op appears exactly Count times
	// - "trace_order": Check ops appear in order
	// - "final_state": Count records matching Where after the flow
	Type string `yaml:"type"`

	// Op is the operation name (used by trace_count).
	Op string `yaml:"op,omitempty"`

	// Ops is the expected operation order (used by trace_order).
	Ops []string `yaml:"ops,omitempty"`

	// Entity is the entity to inspect (used by final_state). Defaults to
	// the scenario entity.
	Entity string `yaml:"entity,omitempty"`

	// Where filters the records counted by final_state.
	Where *querydoc.Node `yaml:"where,omitempty"`

	// Count is the expected number of occurrences or matching records.
	Count int `yaml:"count"`
}

// DefaultKey is the record field traced when a scenario names no key.
const DefaultKey = "id"

// Operations a step can run.
const (
	OpList   = "list"
	OpUnique = "unique"
	OpCount  = "count"
	OpFirst  = "first"
	OpLast   = "last"
	OpAt     = "at"
	OpOne    = "one"
	OpExists = "exists"
	OpDelete = "delete"
)

var ops = map[string]bool{
	OpList: true, OpUnique: true, OpCount: true, OpFirst: true, OpLast: true,
	OpAt: true, OpOne: true, OpExists: true, OpDelete: true,
}

// Assertion type constants.
const (
	AssertTraceCount = "trace_count"
	AssertTraceOrder = "trace_order"
	AssertFinalState = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// Seed paths are resolved relative to the file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	for i, p := range scenario.Seeds {
		if !filepath.IsAbs(p) {
			scenario.Seeds[i] = filepath.Join(base, p)
		}
	}
	for _, p := range scenario.Seeds {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: seed file not found: %s", p)
		}
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML with strict field validation (catches
// typos like "assertion:" vs "assertions:").
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Key == "" {
		scenario.Key = DefaultKey
	}
	for i := range scenario.Flow {
		if scenario.Flow[i].Query.Entity == "" {
			scenario.Flow[i].Query.Entity = scenario.Entity
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, e := range s.Setup {
		if _, err := e.Schema(); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}

	for i, step := range s.Flow {
		if !ops[step.Op] {
			return fmt.Errorf("flow[%d]: unknown op %q", i, step.Op)
		}
		if step.Query.Entity == "" {
			return fmt.Errorf("flow[%d]: query entity is required (set it on the query or the scenario)", i)
		}
		if _, err := step.Query.Fetch(); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
		if step.CountPolicy != "" && step.Op != OpCount {
			return fmt.Errorf("flow[%d]: count_policy only applies to count", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, s.Entity); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion, entity string) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceCount:
		if !ops[a.Op] {
			return fmt.Errorf("assertions[%d]: trace_count needs a known op, got %q", index, a.Op)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertFinalState:
		if a.Entity == "" && entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
