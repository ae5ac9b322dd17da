package execution

import "github.com/relational-go/coredb/storage"

// Predicate is the opaque (tuple) -> bool contract Filter consumes
// (SPEC_FULL.md §4.4).
type Predicate interface {
	Eval(t storage.Tuple) bool
}

// Filter forwards only the child tuples for which predicate is true.
type Filter struct {
	child     Operator
	predicate Predicate

	next    storage.Tuple
	pending bool
}

// NewFilter wraps child with predicate.
func NewFilter(child Operator, predicate Predicate) *Filter {
	return &Filter{child: child, predicate: predicate}
}

func (f *Filter) Open() error {
	if err := f.child.Open(); err != nil {
		return err
	}
	return f.advance()
}

func (f *Filter) advance() error {
	for {
		hasNext, err := f.child.HasNext()
		if err != nil {
			return err
		}
		if !hasNext {
			f.pending = false
			return nil
		}
		t, err := f.child.Next()
		if err != nil {
			return err
		}
		if f.predicate.Eval(t) {
			f.next, f.pending = t, true
			return nil
		}
	}
}

func (f *Filter) HasNext() (bool, error) {
	return f.pending, nil
}

func (f *Filter) Next() (storage.Tuple, error) {
	t := f.next
	if err := f.advance(); err != nil {
		return storage.Tuple{}, err
	}
	return t, nil
}

func (f *Filter) Rewind() error {
	if err := f.child.Rewind(); err != nil {
		return err
	}
	return f.advance()
}

func (f *Filter) Close() error {
	return f.child.Close()
}

func (f *Filter) GetTupleDesc() *storage.TupleDesc {
	return f.child.GetTupleDesc()
}
