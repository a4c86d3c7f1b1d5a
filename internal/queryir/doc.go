// Package queryir provides the backend-neutral query intermediate
// representation used by querykit.
//
// The IR is the abstraction boundary between the attribute builder and the
// query set on one side and the storage backends on the other:
//
//	[attribute factories] → [Predicate tree] ─┐
//	[sort directives]                          ├→ Fetch → [Backend.Compile]
//	[range window]                            ─┘
//
// A Fetch is the complete, immutable description of one query: the record
// type (Entity), a predicate tree, an ordered list of sort directives and a
// result window. Backends lower a Fetch into their native form (SQL text and
// arguments, an in-memory plan) and never see builder types.
//
// SEALED INTERFACES:
//
// Predicate is a sealed interface using the marker method pattern. Only
// Comparison, And, Or and Not implement it, so backends can switch over it
// exhaustively:
//
//	switch p := pred.(type) {
//	case Comparison:
//	case And:
//	case Or:
//	case Not:
//	}
//
// A nil Predicate means "match every record". An empty And is also true and
// an empty Or is false.
//
// VALUES:
//
// Comparison values are ir.IRValue. ir.IRKeyPath values reference another
// field of the same record, which lets callers compare two fields.
//
// STRUCTURAL EQUALITY:
//
// Two predicates are equal when their canonical encodings (see EncodePredicate)
// are byte-identical. Fingerprint hashes the same encoding with domain
// separation, so equal queries share a fingerprint across processes.
package queryir
