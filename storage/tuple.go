package storage

import (
	"fmt"
	"strings"

	"github.com/relational-go/coredb/common"
)

// TupleDesc describes the physical schema of a fixed-width tuple: an
// ordered list of (field name, type) pairs, plus the byte offsets needed
// to read and write individual fields within a packed row.
//
// Field names carry a table alias prefix once SeqScan has qualified them
// (SPEC_FULL.md §7, grounded in SimpleDB's TupleDesc.fieldName), which is
// what lets downstream operators resolve "t.a" against the right column.
type TupleDesc struct {
	names   []string
	types   []common.Type
	offsets []int
	rowSize int
}

// NewTupleDesc builds a TupleDesc for the given fields, computing byte
// offsets in order. names and types must be the same length.
func NewTupleDesc(names []string, types []common.Type) *TupleDesc {
	common.Assert(len(names) == len(types), "field name/type count mismatch: %d names, %d types", len(names), len(types))
	offsets := make([]int, len(types))
	size := 0
	for i, t := range types {
		offsets[i] = size
		size += t.Size()
	}
	return &TupleDesc{names: append([]string(nil), names...), types: append([]common.Type(nil), types...), offsets: offsets, rowSize: size}
}

// NumFields returns the number of fields in the schema.
func (d *TupleDesc) NumFields() int { return len(d.types) }

// FieldName returns the (possibly alias-qualified) name of field i.
func (d *TupleDesc) FieldName(i int) string { return d.names[i] }

// FieldType returns the type of field i.
func (d *TupleDesc) FieldType(i int) common.Type { return d.types[i] }

// BytesPerTuple returns the fixed on-disk size of one tuple under this
// schema, in bytes.
func (d *TupleDesc) BytesPerTuple() int { return d.rowSize }

// FieldIndex returns the index of the field with the given name, or -1.
func (d *TupleDesc) FieldIndex(name string) int {
	for i, n := range d.names {
		if n == name {
			return i
		}
	}
	return -1
}

// GetValue deserializes field i from a packed row.
func (d *TupleDesc) GetValue(row []byte, i int) common.Value {
	return common.ReadValue(d.types[i], row[d.offsets[i]:])
}

// SetValue serializes val into field i of a packed row.
func (d *TupleDesc) SetValue(row []byte, i int, val common.Value) {
	common.Assert(val.Type() == d.types[i], "type mismatch setting field %d (%s): got %s", i, d.types[i], val.Type())
	val.WriteTo(row[d.offsets[i]:])
}

// Qualify returns a new TupleDesc with every field name prefixed by
// "alias.", used by SeqScan (SPEC_FULL.md §4.4) so downstream operators
// can resolve "alias.field" unambiguously.
func (d *TupleDesc) Qualify(alias string) *TupleDesc {
	qualified := make([]string, len(d.names))
	for i, n := range d.names {
		qualified[i] = alias + "." + n
	}
	return NewTupleDesc(qualified, d.types)
}

// Combine concatenates two schemas into one, field-for-field: first's
// fields followed by second's.
func Combine(first, second *TupleDesc) *TupleDesc {
	names := append(append([]string(nil), first.names...), second.names...)
	types := append(append([]common.Type(nil), first.types...), second.types...)
	return NewTupleDesc(names, types)
}

func (d *TupleDesc) String() string {
	parts := make([]string, len(d.names))
	for i := range d.names {
		parts[i] = fmt.Sprintf("%s(%s)", d.names[i], d.types[i])
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Tuple is the logical view of a row exchanged between operators. It is
// either backed by a packed row of bytes living in a cached page (a
// "physical" tuple, carrying a valid RecordID) or by a bare slice of
// Values computed by an operator (a "virtual" tuple, e.g. an aggregate
// result, with a nil RecordID).
type Tuple struct {
	desc   *TupleDesc
	row    []byte
	values []common.Value
	rid    common.RecordID
}

// FromRow creates a physical Tuple backed by a packed row of bytes
// belonging to a cached page. The row slice is NOT copied — callers must
// hold the appropriate page lock for as long as the Tuple is read.
func FromRow(row []byte, desc *TupleDesc, rid common.RecordID) Tuple {
	return Tuple{desc: desc, row: row, rid: rid}
}

// FromValues creates a virtual Tuple out of already-computed values.
func FromValues(desc *TupleDesc, values ...common.Value) Tuple {
	common.Assert(len(values) == desc.NumFields(), "tuple value count %d does not match schema field count %d", len(values), desc.NumFields())
	return Tuple{desc: desc, values: values}
}

// RID returns the tuple's record id, or the zero RecordID for a virtual
// tuple.
func (t Tuple) RID() common.RecordID { return t.rid }

// Desc returns the tuple's schema.
func (t Tuple) Desc() *TupleDesc { return t.desc }

// GetValue returns the value of field i.
func (t Tuple) GetValue(i int) common.Value {
	if t.row != nil {
		return t.desc.GetValue(t.row, i)
	}
	return t.values[i]
}

// WriteTo serializes every field of t into buf, which must be at least
// desc.BytesPerTuple() bytes. Used by Insert to materialize a row before
// handing it to the heap file.
func (t Tuple) WriteTo(buf []byte, desc *TupleDesc) {
	common.Assert(len(buf) >= desc.BytesPerTuple(), "buffer too small for tuple")
	for i := 0; i < desc.NumFields(); i++ {
		desc.SetValue(buf, i, t.GetValue(i))
	}
}

func (t Tuple) String() string {
	parts := make([]string, t.desc.NumFields())
	for i := range parts {
		parts[i] = t.GetValue(i).String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
