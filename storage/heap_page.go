package storage

import "github.com/relational-go/coredb/common"

// HeapLayout describes the slotted-page geometry derived from a
// TupleDesc: how many slots fit in a page, how large the occupancy
// header is, and where the slot array begins. Every page of a given
// table shares one HeapLayout (SPEC_FULL.md §4.1).
//
// numSlots = floor((PageSize*8) / (rowBits + 1)): one header bit plus the
// tuple body per slot.
type HeapLayout struct {
	desc       *TupleDesc
	numSlots   int
	headerSize int // bytes
	dataStart  int // byte offset where the slot array begins
}

// NewHeapLayout computes the slot geometry for rows of the given schema
// within a page of common.PageSize bytes.
func NewHeapLayout(desc *TupleDesc) HeapLayout {
	rowBits := desc.BytesPerTuple() * 8
	numSlots := (common.PageSize * 8) / (rowBits + 1)
	common.Assert(numSlots > 0, "tuple of %d bytes does not fit in a %d byte page", desc.BytesPerTuple(), common.PageSize)
	headerSize := (numSlots + 7) / 8
	return HeapLayout{desc: desc, numSlots: numSlots, headerSize: headerSize, dataStart: headerSize}
}

// NumSlots returns the number of tuple slots a page can hold.
func (l HeapLayout) NumSlots() int { return l.numSlots }

// HeapPage is a slotted-page view over a cached Page: a header bitmap of
// occupied slots followed by the packed slot array (SPEC_FULL.md §6 "On
// disk heap file format"). It does not own the bytes — it's a lens over
// *Page, mirroring the teacher's HeapPage-wraps-PageFrame split.
type HeapPage struct {
	*Page
	layout HeapLayout
}

// AsHeapPage views page through the given layout.
func AsHeapPage(page *Page, layout HeapLayout) HeapPage {
	return HeapPage{Page: page, layout: layout}
}

func (hp HeapPage) header() Bitmap {
	return AsBitmap(hp.Bytes()[:hp.layout.headerSize], hp.layout.numSlots)
}

// IsOccupied reports whether slot currently holds a live tuple.
func (hp HeapPage) IsOccupied(slot int) bool {
	h := hp.header()
	return h.LoadBit(slot)
}

// NumSlots returns the page's total slot capacity.
func (hp HeapPage) NumSlots() int { return hp.layout.numSlots }

// slotOffset returns the byte offset of slot within the page.
func (hp HeapPage) slotOffset(slot int) int {
	return hp.layout.dataStart + slot*hp.layout.desc.BytesPerTuple()
}

// TupleBytes returns the raw row bytes for an occupied slot. The
// returned slice aliases the page's backing array.
func (hp HeapPage) TupleBytes(slot int) []byte {
	common.Assert(hp.IsOccupied(slot), "slot %d is not occupied", slot)
	off := hp.slotOffset(slot)
	return hp.Bytes()[off : off+hp.layout.desc.BytesPerTuple()]
}

// FindFreeSlot returns the index of the lowest unoccupied slot, or -1 if
// the page is full. SPEC_FULL.md §4.1: "inserted tuples take the lowest
// free slot index."
func (hp HeapPage) FindFreeSlot() int {
	h := hp.header()
	for i := 0; i < hp.layout.numSlots; i++ {
		if !h.LoadBit(i) {
			return i
		}
	}
	return -1
}

// InsertAt writes row into the given (currently free) slot, marks it
// occupied in the header bitmap, and returns the slot's record id. The
// caller is responsible for calling MarkDirty beforehand.
func (hp HeapPage) InsertAt(slot int, row []byte) common.RecordID {
	common.Assert(!hp.IsOccupied(slot), "slot %d already occupied", slot)
	common.Assert(len(row) == hp.layout.desc.BytesPerTuple(), "row size %d does not match schema row size %d", len(row), hp.layout.desc.BytesPerTuple())
	h := hp.header()
	h.SetBit(slot, true)
	off := hp.slotOffset(slot)
	copy(hp.Bytes()[off:off+len(row)], row)
	return common.RecordID{PageID: hp.ID(), Slot: int32(slot)}
}

// DeleteSlot clears the occupancy bit for slot, freeing it for reuse.
// SPEC_FULL.md §4.1: "Deleted slots zero the header bit." The slot's
// bytes are left as-is; they become unreadable once unoccupied and will
// be overwritten by the next insert into that slot.
func (hp HeapPage) DeleteSlot(slot int) {
	common.Assert(hp.IsOccupied(slot), "cannot delete unoccupied slot %d", slot)
	h := hp.header()
	h.SetBit(slot, false)
}

// NumOccupied returns the count of live tuples currently on the page.
func (hp HeapPage) NumOccupied() int {
	h := hp.header()
	return h.CountSet()
}

// IsEmpty reports whether the page currently holds no live tuples.
// Iterators skip empty pages per SPEC_FULL.md §4.1.
func (hp HeapPage) IsEmpty() bool {
	return hp.NumOccupied() == 0
}

// Tuples returns the (slot, record id, raw bytes) of every occupied slot,
// in increasing slot order.
func (hp HeapPage) Tuples() []TupleSlot {
	var out []TupleSlot
	h := hp.header()
	for i := 0; i < hp.layout.numSlots; i++ {
		if h.LoadBit(i) {
			out = append(out, TupleSlot{
				Slot: i,
				RID:  common.RecordID{PageID: hp.ID(), Slot: int32(i)},
				Row:  hp.TupleBytes(i),
			})
		}
	}
	return out
}

// TupleSlot bundles an occupied slot's position, record id, and row
// bytes, as returned by HeapPage.Tuples.
type TupleSlot struct {
	Slot int
	RID  common.RecordID
	Row  []byte
}
