// Package execution implements the streaming tuple operators that sit on
// top of the buffer pool: sequential scan, filter, aggregate, and insert
// (SPEC_FULL.md §4.4). Every operator presents the same shape and none
// are thread-safe — each is a single-producer stream consumed by exactly
// one caller.
package execution

import "github.com/relational-go/coredb/storage"

// Operator is the common interface every tuple-producing node
// implements. This departs from the teacher's Executor interface, which
// carries a PlanNode back-reference into the (excluded) planner package;
// the contract here is the bare open/scan/rewind/close cycle the
// specification requires.
type Operator interface {
	// Open prepares the operator to produce tuples, recursively opening
	// any children. Must be called before HasNext/Next.
	Open() error

	// HasNext reports whether another tuple is available without
	// consuming it.
	HasNext() (bool, error)

	// Next returns the next tuple and advances the stream. Callers must
	// check HasNext first; calling Next past the end of the stream is a
	// programming error.
	Next() (storage.Tuple, error)

	// Rewind resets the operator to produce its stream again from the
	// start, without requiring a new Open.
	Rewind() error

	// Close releases any resources the operator holds, recursively
	// closing children.
	Close() error

	// GetTupleDesc returns the schema of tuples this operator produces.
	GetTupleDesc() *storage.TupleDesc
}
