// Package ir provides the closed value variant used by querykit.
//
// Every literal that appears in a comparison (and every field of a record
// returned by the bundled backends) is an IRValue. The variant is sealed:
// only the types in this package implement it, so backends can switch over
// it exhaustively instead of dispatching on untyped values.
//
// This package imports nothing internal. All other internal packages import
// ir; ir is the foundational layer.
//
// Key design constraints:
//   - Values are immutable once built; IRArray and IRObject are never mutated
//     by the packages that receive them
//   - Canonical encoding (MarshalCanonical) is the only serialization used
//     for structural equality and fingerprints
//   - Strings are NFC normalized at the canonical encoding boundary
//   - Time values are always held in UTC
package ir
