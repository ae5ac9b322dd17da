package storage

import "github.com/relational-go/coredb/common"

// Bitmap is a structured view over a byte slice used as the slot-occupancy
// header of a HeapPage (SPEC_FULL.md §6): bit i lives in byte i/8, packed
// MSB-first within that byte, so bit 0 is the high bit of byte 0.
//
// It does not own the underlying bytes — it is a view, the same way the
// teacher's Bitmap is a view over a page's header region, so mutations are
// visible immediately through the backing Page.
type Bitmap struct {
	bytes   []byte
	numBits int
}

// AsBitmap creates a Bitmap view over data, covering numBits bits.
// data must contain at least ceil(numBits/8) bytes.
func AsBitmap(data []byte, numBits int) Bitmap {
	numBytes := (numBits + 7) / 8
	common.Assert(len(data) >= numBytes, "bitmap buffer too small: have %d bytes, need %d", len(data), numBytes)
	return Bitmap{bytes: data[:numBytes], numBits: numBits}
}

func byteAndMask(i int) (int, byte) {
	return i / 8, 1 << (7 - uint(i%8))
}

// SetBit sets or clears bit i and returns its previous value.
func (b *Bitmap) SetBit(i int, on bool) (previous bool) {
	common.Assert(i >= 0 && i < b.numBits, "bitmap index %d out of bounds [0,%d)", i, b.numBits)
	byteIdx, mask := byteAndMask(i)
	previous = b.bytes[byteIdx]&mask != 0
	if on {
		b.bytes[byteIdx] |= mask
	} else {
		b.bytes[byteIdx] &^= mask
	}
	return previous
}

// LoadBit returns the value of bit i.
func (b *Bitmap) LoadBit(i int) bool {
	common.Assert(i >= 0 && i < b.numBits, "bitmap index %d out of bounds [0,%d)", i, b.numBits)
	byteIdx, mask := byteAndMask(i)
	return b.bytes[byteIdx]&mask != 0
}

// FindFirstZero returns the index of the first unset bit, starting the scan
// at startHint and wrapping around to the beginning. Returns -1 if every
// bit is set.
func (b *Bitmap) FindFirstZero(startHint int) int {
	if r := b.findFirstZeroInRange(startHint, b.numBits); r != -1 {
		return r
	}
	return b.findFirstZeroInRange(0, startHint)
}

func (b *Bitmap) findFirstZeroInRange(start, end int) int {
	common.Assert(start >= 0 && start <= end && end <= b.numBits, "invalid bitmap range [%d,%d)", start, end)
	for i := start; i < end; i++ {
		if !b.LoadBit(i) {
			return i
		}
	}
	return -1
}

// CountSet returns the number of set bits among the first numBits bits.
func (b *Bitmap) CountSet() int {
	n := 0
	for i := 0; i < b.numBits; i++ {
		if b.LoadBit(i) {
			n++
		}
	}
	return n
}
