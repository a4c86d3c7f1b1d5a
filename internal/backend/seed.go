package backend

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/querykit/internal/ir"
	"github.com/roach88/querykit/internal/querydoc"
	"github.com/roach88/querykit/internal/queryir"
)

// Seed declares entities and their initial records:
//
//	entities:
//	  - entity: Person
//	    columns:
//	      - {name: id, kind: int}
//	      - {name: age, kind: int, nullable: true}
//	    records:
//	      - {id: 1, age: 31}
type Seed struct {
	Entities []EntitySeed `yaml:"entities"`
}

// EntitySeed is one entity of a seed file.
type EntitySeed struct {
	Entity  string           `yaml:"entity"`
	Columns []ColumnSeed     `yaml:"columns"`
	Records []map[string]any `yaml:"records,omitempty"`
}

// ColumnSeed declares one column. Kind accepts the names queryir.ParseKind
// does.
type ColumnSeed struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	Nullable bool   `yaml:"nullable,omitempty"`
}

// LoadSeed reads a seed file. Unknown keys are rejected.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("failed to read seed file: %w", err)
	}
	var s Seed
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return Seed{}, fmt.Errorf("failed to parse seed %s: %w", path, err)
	}
	return s, nil
}

// Schema builds and validates the entity's schema.
func (e EntitySeed) Schema() (queryir.Schema, error) {
	s := queryir.Schema{Entity: e.Entity, Columns: make([]queryir.Column, len(e.Columns))}
	for i, c := range e.Columns {
		kind, err := queryir.ParseKind(c.Kind)
		if err != nil {
			return queryir.Schema{}, fmt.Errorf("%s.%s: %w", e.Entity, c.Name, err)
		}
		s.Columns[i] = queryir.Column{Name: c.Name, Kind: kind, Nullable: c.Nullable}
	}
	if err := s.Validate(); err != nil {
		return queryir.Schema{}, err
	}
	return s, nil
}

// Rows converts the seed records into IR records shaped for schema.
func (e EntitySeed) Rows(schema queryir.Schema) ([]ir.IRObject, error) {
	out := make([]ir.IRObject, len(e.Records))
	for i, raw := range e.Records {
		v, err := querydoc.Literal(raw)
		if err != nil {
			return nil, fmt.Errorf("%s record %d: %w", e.Entity, i, err)
		}
		obj, ok := v.(ir.IRObject)
		if !ok {
			return nil, fmt.Errorf("%s record %d: not an object", e.Entity, i)
		}
		rec, err := Coerce(schema, obj)
		if err != nil {
			return nil, fmt.Errorf("%s record %d: %w", e.Entity, i, err)
		}
		out[i] = rec
	}
	return out, nil
}

// Coerce adapts loosely typed values to schema: integers in float columns
// become floats and RFC 3339 strings in time columns become instants.
// Missing columns are filled with null so every backend returns the same
// record shape.
func Coerce(schema queryir.Schema, rec ir.IRObject) (ir.IRObject, error) {
	out := make(ir.IRObject, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	for _, c := range schema.Columns {
		v, ok := out[c.Name]
		if !ok {
			out[c.Name] = ir.IRNull{}
			continue
		}
		switch val := v.(type) {
		case ir.IRInt:
			if c.Kind == ir.KindFloat {
				out[c.Name] = ir.IRFloat(val)
			}
		case ir.IRString:
			if c.Kind == ir.KindTime {
				t, err := time.Parse(time.RFC3339Nano, string(val))
				if err != nil {
					return nil, fmt.Errorf("column %s: %w", c.Name, err)
				}
				out[c.Name] = ir.NewIRTime(t)
			}
		}
	}
	return out, nil
}

// Apply defines every entity and inserts its records, in file order. It
// returns the number of records inserted.
func (s Seed) Apply(ctx context.Context, t Target) (int, error) {
	n := 0
	for _, e := range s.Entities {
		schema, err := e.Schema()
		if err != nil {
			return n, err
		}
		if err := t.Define(ctx, schema); err != nil {
			return n, fmt.Errorf("define %s: %w", e.Entity, err)
		}
		rows, err := e.Rows(schema)
		if err != nil {
			return n, err
		}
		if len(rows) == 0 {
			continue
		}
		if err := t.Insert(ctx, e.Entity, rows...); err != nil {
			return n, fmt.Errorf("insert %s: %w", e.Entity, err)
		}
		n += len(rows)
	}
	return n, nil
}
