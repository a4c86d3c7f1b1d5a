// Package querydoc reads and writes queries stored as YAML, JSON or CUE
// documents.
//
// # Document Format
//
//	entity: Person
//	where:
//	  all:
//	    - field: age
//	      op: gte
//	      value: 18
//	    - not:
//	        field: team
//	        op: in
//	        value: [red, green]
//	    - field: name
//	      op: begins_with
//	      value: e
//	      options: cd
//	order: [-age, name]
//	offset: 0
//	limit: 10
//
// A where node is exactly one of all, any, not or a leaf comparison. Leaf
// ops are the operator names of queryir ("eq", "between", "is_null", ...)
// or the symbols ==, !=, <, <=, >, >=; a missing op means eq. between
// takes a two-element list and in takes a list. Options are "c" (case
// insensitive), "d" (diacritic insensitive) or "cd".
//
// Values that JSON cannot express use the canonical tags: {$time: RFC 3339}
// for instants and {$keypath: other.field} to compare against another
// field. Unquoted YAML timestamps are read as instants too.
//
// Order entries name a field, prefixed with "-" for descending.
package querydoc
