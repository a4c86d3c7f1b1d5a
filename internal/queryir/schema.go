package queryir

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/querykit/internal/ir"
)

// Column declares one top-level field of an entity and the kind of value
// it holds. KindArray and KindObject columns are stored as JSON by the SQL
// backends; nested paths address into them.
type Column struct {
	Name     string
	Kind     ir.Kind
	Nullable bool
}

// Schema is the column layout of one entity.
type Schema struct {
	Entity  string
	Columns []Column
}

// Column looks up a column by name.
func (s Schema) Column(name string) (Column, bool) {
	i := slices.IndexFunc(s.Columns, func(c Column) bool { return c.Name == name })
	if i < 0 {
		return Column{}, false
	}
	return s.Columns[i], true
}

// Names returns the column names in declaration order.
func (s Schema) Names() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// Validate checks that the schema has an entity name, at least one column,
// no duplicate or dotted column names and only storable kinds.
func (s Schema) Validate() error {
	if s.Entity == "" {
		return fmt.Errorf("schema: empty entity name")
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("schema %s: no columns", s.Entity)
	}
	seen := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		switch {
		case c.Name == "":
			return fmt.Errorf("schema %s: empty column name", s.Entity)
		case strings.Contains(c.Name, "."):
			return fmt.Errorf("schema %s: column %q contains '.'", s.Entity, c.Name)
		case seen[c.Name]:
			return fmt.Errorf("schema %s: duplicate column %q", s.Entity, c.Name)
		case c.Kind == ir.KindNull || c.Kind == ir.KindKeyPath:
			return fmt.Errorf("schema %s: column %q has unstorable kind %s", s.Entity, c.Name, c.Kind)
		}
		seen[c.Name] = true
	}
	return nil
}

// ParseKind is the inverse of ir.Kind.String for storable kinds.
func ParseKind(s string) (ir.Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "text":
		return ir.KindString, nil
	case "int", "integer":
		return ir.KindInt, nil
	case "float", "real", "number":
		return ir.KindFloat, nil
	case "bool", "boolean":
		return ir.KindBool, nil
	case "time", "timestamp":
		return ir.KindTime, nil
	case "array", "list":
		return ir.KindArray, nil
	case "object", "json":
		return ir.KindObject, nil
	}
	return 0, fmt.Errorf("unknown column kind %q", s)
}

// IsJSON reports whether the column is stored as encoded JSON.
func (c Column) IsJSON() bool {
	return c.Kind == ir.KindArray || c.Kind == ir.KindObject
}
