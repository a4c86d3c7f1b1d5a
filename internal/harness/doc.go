// Package harness runs YAML conformance scenarios against a queryset
// backend.
//
// A scenario seeds a backend, runs a flow of query set operations and
// checks each step's expect clause. After the flow, assertions inspect the
// trace (trace_count, trace_order) and the backend's final state
// (final_state).
//
//	name: delete-blue
//	description: Deleting one team leaves the others
//	entity: Person
//	seeds: [../seeds/people.yaml]
//	flow:
//	  - op: delete
//	    query: {where: {field: team, value: blue}}
//	    expect: {count: 2}
//	assertions:
//	  - type: final_state
//	    count: 3
//
// The trace records only facts every backend agrees on: error codes and the
// key field of returned records. The same golden file therefore covers the
// in-memory reference and each SQL backend.
package harness
