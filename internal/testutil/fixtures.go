// Package testutil provides shared datasets and a conformance suite that
// every queryset backend runs in its own tests.
package testutil

import (
	"time"

	"github.com/roach88/querykit/internal/ir"
	"github.com/roach88/querykit/internal/queryir"
)

// Dataset is a schema plus the records to load into it, in insertion order.
type Dataset struct {
	Schema  queryir.Schema
	Records []ir.IRObject
}

// Descriptor returns the descriptor for the dataset's entity.
func (d Dataset) Descriptor() queryir.Descriptor {
	return queryir.Descriptor{Entity: d.Schema.Entity}
}

func day(y int, m time.Month, d int) ir.IRTime {
	return ir.NewIRTime(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

func strs(ss ...string) ir.IRArray {
	out := make(ir.IRArray, len(ss))
	for i, s := range ss {
		out[i] = ir.IRString(s)
	}
	return out
}

// People is the five-record Person dataset used by the conformance suite.
//
//	id name   age  nick    active team   score tags        owner.name born
//	1  ann    31   null    true   red    7.5   [go sql]    Ada        1993-01-01
//	2  bob    25   bobby   false  blue   6     [go]        ada        1999-05-05
//	3  cara   42   null    true   red    9.25  []          Zoë        1982-02-02
//	4  dan    null D       false  green  5.5   [rust]      Bo         2001-03-03
//	5  Éva    25   eve     true   blue   8     [sql]       Zoe        1999-09-09
func People() Dataset {
	return Dataset{
		Schema: queryir.Schema{Entity: "Person", Columns: []queryir.Column{
			{Name: "id", Kind: ir.KindInt},
			{Name: "name", Kind: ir.KindString},
			{Name: "age", Kind: ir.KindInt, Nullable: true},
			{Name: "nick", Kind: ir.KindString, Nullable: true},
			{Name: "active", Kind: ir.KindBool},
			{Name: "team", Kind: ir.KindString},
			{Name: "score", Kind: ir.KindFloat},
			{Name: "tags", Kind: ir.KindArray},
			{Name: "owner", Kind: ir.KindObject},
			{Name: "born", Kind: ir.KindTime},
		}},
		Records: []ir.IRObject{
			person(1, "ann", ir.IRInt(31), ir.IRNull{}, true, "red", 7.5, strs("go", "sql"), "Ada", day(1993, time.January, 1)),
			person(2, "bob", ir.IRInt(25), ir.IRString("bobby"), false, "blue", 6, strs("go"), "ada", day(1999, time.May, 5)),
			person(3, "cara", ir.IRInt(42), ir.IRNull{}, true, "red", 9.25, strs(), "Zoë", day(1982, time.February, 2)),
			person(4, "dan", ir.IRNull{}, ir.IRString("D"), false, "green", 5.5, strs("rust"), "Bo", day(2001, time.March, 3)),
			person(5, "Éva", ir.IRInt(25), ir.IRString("eve"), true, "blue", 8, strs("sql"), "Zoe", day(1999, time.September, 9)),
		},
	}
}

func person(id int64, name string, age, nick ir.IRValue, active bool, team string, score float64, tags ir.IRArray, owner string, born ir.IRTime) ir.IRObject {
	return ir.IRObject{
		"id":     ir.IRInt(id),
		"name":   ir.IRString(name),
		"age":    age,
		"nick":   nick,
		"active": ir.IRBool(active),
		"team":   ir.IRString(team),
		"score":  ir.IRFloat(score),
		"tags":   tags,
		"owner":  ir.IRObject{"name": ir.IRString(owner)},
		"born":   born,
	}
}

// Letters is the three-record dataset {a:1, b:2, c:3}.
func Letters() Dataset {
	rec := func(id int64, name string) ir.IRObject {
		return ir.IRObject{"id": ir.IRInt(id), "name": ir.IRString(name), "age": ir.IRInt(id)}
	}
	return Dataset{
		Schema: queryir.Schema{Entity: "Letter", Columns: []queryir.Column{
			{Name: "id", Kind: ir.KindInt},
			{Name: "name", Kind: ir.KindString},
			{Name: "age", Kind: ir.KindInt},
		}},
		Records: []ir.IRObject{rec(1, "a"), rec(2, "b"), rec(3, "c")},
	}
}

// Names extracts the "name" field of each record, in order.
func Names(records []ir.IRObject) []string {
	out := make([]string, len(records))
	for i, r := range records {
		if s, ok := r["name"].(ir.IRString); ok {
			out[i] = string(s)
		}
	}
	return out
}
