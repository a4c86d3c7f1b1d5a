package store

import (
	"database/sql"
	"fmt"

	"github.com/roach88/querykit/internal/ir"
	"github.com/roach88/querykit/internal/queryir"
	"github.com/roach88/querykit/internal/querysql"
)

// catalogRow is one querykit_columns row.
type catalogRow struct {
	Entity   string
	Name     string
	Kind     string
	Nullable bool
	Position int
}

// marshalSchema flattens schema into catalog rows in column order.
func marshalSchema(schema queryir.Schema) []catalogRow {
	rows := make([]catalogRow, len(schema.Columns))
	for i, c := range schema.Columns {
		rows[i] = catalogRow{
			Entity:   schema.Entity,
			Name:     c.Name,
			Kind:     c.Kind.String(),
			Nullable: c.Nullable,
			Position: i,
		}
	}
	return rows
}

// unmarshalSchemas groups catalog rows, already sorted by entity and
// position, back into schemas.
func unmarshalSchemas(rows []catalogRow) (map[string]queryir.Schema, error) {
	out := make(map[string]queryir.Schema)
	for _, r := range rows {
		kind, err := queryir.ParseKind(r.Kind)
		if err != nil {
			return nil, fmt.Errorf("catalog %s.%s: %w", r.Entity, r.Name, err)
		}
		s := out[r.Entity]
		s.Entity = r.Entity
		s.Columns = append(s.Columns, queryir.Column{Name: r.Name, Kind: kind, Nullable: r.Nullable})
		out[r.Entity] = s
	}
	return out, nil
}

// scanRecords decodes every row of rows, read in querysql.SQLite.Columns
// order, into a record.
func scanRecords(rows *sql.Rows, schema queryir.Schema) ([]ir.IRObject, error) {
	raw := make([]any, len(schema.Columns))
	dest := make([]any, len(raw))
	for i := range raw {
		dest[i] = &raw[i]
	}

	var out []ir.IRObject
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", schema.Entity, err)
		}
		rec, err := querysql.SQLite.DecodeRow(schema, raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", schema.Entity, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows %s: %w", schema.Entity, err)
	}
	return out, nil
}
