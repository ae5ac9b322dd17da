package execution

import (
	"fmt"

	"github.com/relational-go/coredb/common"
	"github.com/relational-go/coredb/storage"
)

// AggOp is a supported grouped aggregate operator (SPEC_FULL.md §4.4).
type AggOp int

const (
	Min AggOp = iota
	Max
	Sum
	Count
	Avg
)

func (op AggOp) String() string {
	switch op {
	case Min:
		return "min"
	case Max:
		return "max"
	case Sum:
		return "sum"
	case Count:
		return "count"
	case Avg:
		return "avg"
	}
	return "?"
}

// NoGrouping is the sentinel field index meaning "aggregate the whole
// input into a single group," used instead of a pointer-to-int optional
// field (SPEC_FULL.md §7, consistent with this module's general
// preference for sentinels over *int).
const NoGrouping = -1

type aggState struct {
	sum     int64
	count   int64
	min     int64
	max     int64
	started bool
}

// Aggregate consumes its entire child at Open and materializes one
// output row per distinct value of the (optional) group field. Over
// string fields only Count is supported; everything else requires an
// integer aggregate field (SPEC_FULL.md §4.4, §8 invalid-argument case).
type Aggregate struct {
	child      Operator
	aggOp      AggOp
	aggField   int
	groupField int

	desc    *storage.TupleDesc
	results []storage.Tuple
	pos     int
}

// NewAggregate builds an aggregate of aggOp over aggField, grouped by
// groupField (or NoGrouping for a single global group).
func NewAggregate(child Operator, aggOp AggOp, aggField int, groupField int) (*Aggregate, error) {
	childDesc := child.GetTupleDesc()
	if childDesc.FieldType(aggField) == common.StringType && aggOp != Count {
		return nil, common.NewError(common.InvalidArgument, "aggregate %s is not supported over string field %q", aggOp, childDesc.FieldName(aggField))
	}

	names := []string{}
	types := []common.Type{}
	if groupField != NoGrouping {
		names = append(names, childDesc.FieldName(groupField))
		types = append(types, childDesc.FieldType(groupField))
	}
	names = append(names, fmt.Sprintf("%s(%s)", aggOp, childDesc.FieldName(aggField)))
	types = append(types, common.IntType)

	return &Aggregate{
		child:      child,
		aggOp:      aggOp,
		aggField:   aggField,
		groupField: groupField,
		desc:       storage.NewTupleDesc(names, types),
	}, nil
}

func (a *Aggregate) Open() error {
	if err := a.child.Open(); err != nil {
		return err
	}
	return a.materialize()
}

func (a *Aggregate) materialize() error {
	table := newGroupTable[*aggState]()

	for {
		hasNext, err := a.child.HasNext()
		if err != nil {
			return err
		}
		if !hasNext {
			break
		}
		t, err := a.child.Next()
		if err != nil {
			return err
		}

		var key []common.Value
		if a.groupField != NoGrouping {
			key = []common.Value{t.GetValue(a.groupField)}
		}
		state := table.getOrInsert(key, func() *aggState { return &aggState{} })
		a.accumulate(state, t.GetValue(a.aggField))
	}

	a.results = a.results[:0]
	a.pos = 0
	table.iterate(func(key []common.Value, state *aggState) {
		values := append([]common.Value(nil), key...)
		values = append(values, common.NewIntValue(a.emit(state)))
		a.results = append(a.results, storage.FromValues(a.desc, values...))
	})
	return nil
}

func (a *Aggregate) accumulate(state *aggState, val common.Value) {
	state.count++
	if val.Type() == common.StringType {
		return // Count is the only string aggregate; count already advanced above.
	}
	n := val.IntValue()
	if !state.started {
		state.sum, state.min, state.max, state.started = n, n, n, true
	} else {
		state.sum += n
		if n < state.min {
			state.min = n
		}
		if n > state.max {
			state.max = n
		}
	}
}

func (a *Aggregate) emit(state *aggState) int64 {
	switch a.aggOp {
	case Min:
		return state.min
	case Max:
		return state.max
	case Sum:
		return state.sum
	case Count:
		return state.count
	case Avg:
		if state.count == 0 {
			return 0
		}
		return state.sum / state.count
	}
	common.Assert(false, "unknown aggregate operator %v", a.aggOp)
	return 0
}

func (a *Aggregate) HasNext() (bool, error) {
	return a.pos < len(a.results), nil
}

func (a *Aggregate) Next() (storage.Tuple, error) {
	common.Assert(a.pos < len(a.results), "Aggregate.Next called with no remaining result")
	t := a.results[a.pos]
	a.pos++
	return t, nil
}

func (a *Aggregate) Rewind() error {
	a.pos = 0
	return nil
}

func (a *Aggregate) Close() error {
	a.results = nil
	return a.child.Close()
}

func (a *Aggregate) GetTupleDesc() *storage.TupleDesc {
	return a.desc
}
