package execution

import "github.com/relational-go/coredb/common"

// groupTable is a generic grouping map keyed by a tuple's serialized
// field values, adapted from the teacher's ExecutionHashTable[T] to this
// module's Value type. Unlike the teacher's version it does not use
// unsafe string-to-byte aliasing to reconstruct keys on iteration — it
// keeps the original key values alongside the aggregation state, which
// for a bounded number of groups costs nothing worth avoiding unsafe for.
type groupTable[T any] struct {
	entries map[string]*groupEntry[T]
}

type groupEntry[T any] struct {
	key   []common.Value
	state T
}

func newGroupTable[T any]() *groupTable[T] {
	return &groupTable[T]{entries: make(map[string]*groupEntry[T])}
}

func groupKey(values []common.Value) string {
	buf := make([]byte, 0, len(values)*8)
	for _, v := range values {
		sized := make([]byte, v.SizeInBytes())
		v.WriteTo(sized)
		buf = append(buf, sized...)
	}
	return string(buf)
}

// getOrInsert returns the state for values, calling zero to create it on
// first sight of this key.
func (g *groupTable[T]) getOrInsert(values []common.Value, zero func() T) T {
	key := groupKey(values)
	entry, ok := g.entries[key]
	if !ok {
		entry = &groupEntry[T]{key: append([]common.Value(nil), values...), state: zero()}
		g.entries[key] = entry
	}
	return entry.state
}

// iterate calls fn once per group in unspecified order.
func (g *groupTable[T]) iterate(fn func(key []common.Value, state T)) {
	for _, entry := range g.entries {
		fn(entry.key, entry.state)
	}
}
