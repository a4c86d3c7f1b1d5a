// Package store is the SQLite queryset backend.
//
// Each entity is a table with one column per schema column; arrays and
// objects are stored as canonical JSON text and times as fixed-width UTC
// text, so SQLite's native ordering matches the in-memory evaluator.
// Declared schemas are kept in the querykit_columns catalog and reloaded
// on Open.
//
// # Query Functions
//
// Connections are opened through a driver that registers two functions
// used by querysql.SQLite:
//
//   - qk_fold(value, options): case and diacritic folding, as eval.Fold
//   - regexp(pattern, subject): Go regular expressions behind REGEXP
//
// # Ordering
//
// Every SELECT ends its ORDER BY with rowid, so records that tie on the
// sort keys come back in insertion order and windows are deterministic.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait up to 5s for locks
//   - One open connection: SQLite allows a single writer
package store
