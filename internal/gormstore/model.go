package gormstore

import "github.com/roach88/querykit/internal/queryir"

// Column is a catalog row: one declared column of one entity.
type Column struct {
	Entity   string `gorm:"primaryKey;type:text"`
	Name     string `gorm:"primaryKey;type:text"`
	Kind     string `gorm:"type:text;not null"`
	Nullable bool   `gorm:"not null;default:false"`
	Position int    `gorm:"not null;index:idx_querykit_columns_position"`
}

// TableName keeps the catalog table name shared with package store.
func (Column) TableName() string { return "querykit_columns" }

func columnsOf(schema queryir.Schema) []Column {
	out := make([]Column, len(schema.Columns))
	for i, c := range schema.Columns {
		out[i] = Column{Entity: schema.Entity, Name: c.Name, Kind: c.Kind.String(), Nullable: c.Nullable, Position: i}
	}
	return out
}

func schemasOf(rows []Column) (map[string]queryir.Schema, error) {
	out := make(map[string]queryir.Schema)
	for _, r := range rows {
		kind, err := queryir.ParseKind(r.Kind)
		if err != nil {
			return nil, err
		}
		s := out[r.Entity]
		s.Entity = r.Entity
		s.Columns = append(s.Columns, queryir.Column{Name: r.Name, Kind: kind, Nullable: r.Nullable})
		out[r.Entity] = s
	}
	return out, nil
}
