package common

import (
	"encoding/binary"
	"fmt"
)

const (
	// PageSize is the number of bytes per page. Configurable once, before
	// any heap file is opened; see Config.
	PageSize int = 4096
	// IntSize is the fixed-width storage size of an integer field, in bytes.
	IntSize int = 4
	// StringLength is the fixed capacity of a string field, in bytes
	// (excluding its 4-byte length prefix).
	StringLength int = 32
)

// Type is the physical type of a tuple field. GoDB supports a fixed,
// small set of scalar types: integers and bounded strings.
type Type int8

const (
	// DefaultType marks an uninitialized field; never written to disk.
	DefaultType Type = iota
	IntType
	StringType
)

// Size returns the fixed-width on-disk storage size of the type, in bytes.
func (t Type) Size() int {
	switch t {
	case IntType:
		return IntSize
	case StringType:
		return StringLength + 4 // length prefix + fixed capacity
	default:
		panic("unknown type")
	}
}

func (t Type) String() string {
	switch t {
	case IntType:
		return "int"
	case StringType:
		return "string"
	}
	return "unknown"
}

// TableID uniquely identifies a table within the catalog. Zero is reserved
// as the invalid id.
type TableID uint32

const InvalidTableID TableID = 0

// PageID identifies a page by the table it belongs to and its page number
// within that table's heap file. Page numbers are contiguous from zero.
// PageID is comparable and hashable via Go's built-in struct equality, so
// it can be used directly as a map key (including xsync.MapOf keys).
type PageID struct {
	TableID TableID
	PageNum int32
}

func (p PageID) String() string {
	return fmt.Sprintf("Page(%d, %d)", p.TableID, p.PageNum)
}

// IsNil reports whether p is the zero PageID.
func (p PageID) IsNil() bool {
	return p.TableID == InvalidTableID
}

// Less gives PageID a total order: first by table, then by page number.
func (p PageID) Less(other PageID) bool {
	if p.TableID != other.TableID {
		return p.TableID < other.TableID
	}
	return p.PageNum < other.PageNum
}

// RecordID is the stable address of a tuple while it remains in its slot:
// the page it lives on, plus the slot index within that page. Deletion
// invalidates any RecordID referring to the freed slot.
type RecordID struct {
	PageID
	Slot int32
}

func (r RecordID) String() string {
	return fmt.Sprintf("rid(%s, %d)", r.PageID.String(), r.Slot)
}

// IsNil reports whether r refers to no page (and hence no tuple).
func (r RecordID) IsNil() bool {
	return r.PageID.IsNil()
}

// TransactionID is a monotonically increasing, process-unique transaction
// identifier. Equality is by value.
type TransactionID uint64

const InvalidTransactionID TransactionID = 0

// Value is a single deserialized field of a tuple: either an integer or a
// bounded string. Values are small enough to be passed and compared by
// value throughout the execution layer.
type Value struct {
	t Type
	i int64
	s string
}

// NewIntValue creates an integer Value.
func NewIntValue(v int64) Value {
	return Value{t: IntType, i: v}
}

// NewStringValue creates a string Value. Panics if v exceeds StringLength.
func NewStringValue(v string) Value {
	if len(v) > StringLength {
		panic(fmt.Sprintf("string value %q exceeds max length %d", v, StringLength))
	}
	return Value{t: StringType, s: v}
}

// Type returns the dynamic type of the value.
func (v Value) Type() Type {
	return v.t
}

// IntValue returns the underlying integer. Panics if v is not an IntType.
func (v Value) IntValue() int64 {
	Assert(v.t == IntType, "type mismatch in IntValue: %s", v.t)
	return v.i
}

// StringValue returns the underlying string. Panics if v is not a StringType.
func (v Value) StringValue() string {
	Assert(v.t == StringType, "type mismatch in StringValue: %s", v.t)
	return v.s
}

// SizeInBytes returns the on-disk serialization size of the value's type.
func (v Value) SizeInBytes() int {
	return v.t.Size()
}

// WriteTo serializes v into the start of data in the storage format
// described in SPEC_FULL.md §6: integers as big-endian signed 32-bit,
// strings as a big-endian 32-bit length prefix followed by StringLength
// zero-padded bytes.
func (v Value) WriteTo(data []byte) {
	Assert(len(data) >= v.SizeInBytes(), "buffer too small for value")
	switch v.t {
	case IntType:
		binary.BigEndian.PutUint32(data, uint32(v.i))
	case StringType:
		binary.BigEndian.PutUint32(data, uint32(len(v.s)))
		n := copy(data[4:4+StringLength], v.s)
		for i := 4 + n; i < 4+StringLength; i++ {
			data[i] = 0
		}
	default:
		panic("cannot serialize DefaultType value")
	}
}

// ReadValue deserializes a Value of the given type from the start of data.
func ReadValue(t Type, data []byte) Value {
	switch t {
	case IntType:
		return Value{t: IntType, i: int64(int32(binary.BigEndian.Uint32(data)))}
	case StringType:
		n := binary.BigEndian.Uint32(data)
		Assert(int(n) <= StringLength, "corrupt string length prefix %d", n)
		return Value{t: StringType, s: string(data[4 : 4+n])}
	default:
		panic("cannot deserialize DefaultType value")
	}
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater than
// other. Panics if the two values have different types.
func (v Value) Compare(other Value) int {
	Assert(v.t == other.t, "type mismatch in comparison: %s vs %s", v.t, other.t)
	switch v.t {
	case IntType:
		switch {
		case v.i < other.i:
			return -1
		case v.i > other.i:
			return 1
		default:
			return 0
		}
	case StringType:
		switch {
		case v.s < other.s:
			return -1
		case v.s > other.s:
			return 1
		default:
			return 0
		}
	}
	panic("unreachable")
}

func (v Value) String() string {
	switch v.t {
	case IntType:
		return fmt.Sprintf("%d", v.i)
	case StringType:
		return v.s
	default:
		return "<nil>"
	}
}
