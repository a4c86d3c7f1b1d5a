package querysql

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/querykit/internal/ir"
	"github.com/roach88/querykit/internal/queryir"
)

// Storage layout shared by the SQL backends. One table per entity, one
// column per schema column:
//
//	kind     sqlite   postgres
//	string   TEXT     TEXT COLLATE "C"
//	int      INTEGER  BIGINT
//	float    REAL     DOUBLE PRECISION
//	bool     INTEGER  BOOLEAN
//	time     TEXT     TIMESTAMPTZ
//	array    TEXT     JSONB
//	object   TEXT     JSONB
//
// SQLite times use TimeLayout; JSON columns hold canonical JSON. Postgres
// strings use the C collation so they order bytewise, as SQLite does.

// ColumnType returns the declared SQL type of c.
func (d Dialect) ColumnType(c queryir.Column) string {
	pg := d == Postgres
	switch c.Kind {
	case ir.KindInt:
		if pg {
			return "BIGINT"
		}
		return "INTEGER"
	case ir.KindFloat:
		if pg {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	case ir.KindBool:
		if pg {
			return "BOOLEAN"
		}
		return "INTEGER"
	case ir.KindTime:
		if pg {
			return "TIMESTAMPTZ"
		}
		return "TEXT"
	case ir.KindArray, ir.KindObject:
		if pg {
			return "JSONB"
		}
		return "TEXT"
	}
	if pg {
		return `TEXT COLLATE "C"`
	}
	return "TEXT"
}

// CreateTable renders the DDL for schema's table. It is a no-op when the
// table already exists.
func (d Dialect) CreateTable(table string, schema queryir.Schema) string {
	defs := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		defs[i] = QuoteIdent(c.Name) + " " + d.ColumnType(c)
		if !c.Nullable {
			defs[i] += " NOT NULL"
		}
	}
	return "CREATE TABLE IF NOT EXISTS " + QuoteIdent(table) + " (" + strings.Join(defs, ", ") + ")"
}

// Insert renders a single-row INSERT of every schema column.
func (d Dialect) Insert(table string, schema queryir.Schema) string {
	cols := make([]string, len(schema.Columns))
	marks := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		cols[i] = QuoteIdent(c.Name)
		marks[i] = d.placeholder(i + 1)
	}
	return "INSERT INTO " + QuoteIdent(table) + " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
}

// Columns returns the select list that reads schema's columns in order.
// Postgres JSON columns are read as text so numbers keep their kind.
func (d Dialect) Columns(schema queryir.Schema) []string {
	out := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		out[i] = QuoteIdent(c.Name)
		if d == Postgres && c.IsJSON() {
			out[i] += "::text"
		}
	}
	return out
}

// EncodeRecord converts rec into driver arguments for Insert. Missing keys
// are null; keys outside the schema are rejected.
func (d Dialect) EncodeRecord(schema queryir.Schema, rec ir.IRObject) ([]any, error) {
	for k := range rec {
		if _, ok := schema.Column(k); !ok {
			return nil, fmt.Errorf("%s: unknown field %q", schema.Entity, k)
		}
	}
	args := make([]any, len(schema.Columns))
	for i, c := range schema.Columns {
		v, err := d.Encode(c, rec[c.Name])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", schema.Entity, c.Name, err)
		}
		args[i] = v
	}
	return args, nil
}

// Encode converts v into the driver argument stored in column c.
func (d Dialect) Encode(c queryir.Column, v ir.IRValue) (any, error) {
	if ir.IsNull(v) {
		if !c.Nullable {
			return nil, fmt.Errorf("null in non-nullable column")
		}
		return nil, nil
	}

	switch c.Kind {
	case ir.KindString:
		if s, ok := v.(ir.IRString); ok {
			return string(s), nil
		}
	case ir.KindInt:
		if n, ok := v.(ir.IRInt); ok {
			return int64(n), nil
		}
	case ir.KindFloat:
		switch n := v.(type) {
		case ir.IRFloat:
			return float64(n), nil
		case ir.IRInt:
			return float64(n), nil
		}
	case ir.KindBool:
		if b, ok := v.(ir.IRBool); ok {
			if d == Postgres {
				return bool(b), nil
			}
			if b {
				return int64(1), nil
			}
			return int64(0), nil
		}
	case ir.KindTime:
		if t, ok := v.(ir.IRTime); ok {
			if d == Postgres {
				return t.Time(), nil
			}
			return t.Time().UTC().Format(TimeLayout), nil
		}
	case ir.KindArray, ir.KindObject:
		if v.Kind() == c.Kind {
			data, err := ir.MarshalCanonical(v)
			if err != nil {
				return nil, err
			}
			return string(data), nil
		}
	}
	return nil, fmt.Errorf("%s value in %s column", v.Kind(), c.Kind)
}

// Decode converts a scanned driver value of column c back into an IRValue.
func (d Dialect) Decode(c queryir.Column, raw any) (ir.IRValue, error) {
	if raw == nil {
		return ir.IRNull{}, nil
	}

	switch c.Kind {
	case ir.KindString:
		if s, ok := text(raw); ok {
			return ir.IRString(s), nil
		}
	case ir.KindInt:
		switch n := raw.(type) {
		case int64:
			return ir.IRInt(n), nil
		case int32:
			return ir.IRInt(n), nil
		case float64:
			return ir.IRInt(int64(n)), nil
		}
	case ir.KindFloat:
		switch n := raw.(type) {
		case float64:
			return ir.IRFloat(n), nil
		case float32:
			return ir.IRFloat(n), nil
		case int64:
			return ir.IRFloat(n), nil
		}
	case ir.KindBool:
		switch b := raw.(type) {
		case bool:
			return ir.IRBool(b), nil
		case int64:
			return ir.IRBool(b != 0), nil
		}
	case ir.KindTime:
		if t, ok := raw.(time.Time); ok {
			return ir.NewIRTime(t), nil
		}
		if s, ok := text(raw); ok {
			t, err := time.Parse(TimeLayout, s)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", c.Name, err)
			}
			return ir.NewIRTime(t), nil
		}
	case ir.KindArray, ir.KindObject:
		if s, ok := text(raw); ok {
			v, err := ir.UnmarshalCanonical([]byte(s))
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", c.Name, err)
			}
			return v, nil
		}
	}
	return nil, fmt.Errorf("column %s: cannot decode %T as %s", c.Name, raw, c.Kind)
}

// DecodeRow builds a record from values scanned in Columns order.
func (d Dialect) DecodeRow(schema queryir.Schema, raw []any) (ir.IRObject, error) {
	rec := make(ir.IRObject, len(schema.Columns))
	for i, c := range schema.Columns {
		v, err := d.Decode(c, raw[i])
		if err != nil {
			return nil, err
		}
		rec[c.Name] = v
	}
	return rec, nil
}

func text(raw any) (string, bool) {
	switch s := raw.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}
	return "", false
}
