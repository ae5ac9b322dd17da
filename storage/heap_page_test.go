package storage

import (
	"fmt"
	"testing"

	"github.com/relational-go/coredb/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTupleDesc() *TupleDesc {
	return NewTupleDesc([]string{"id", "name"}, []common.Type{common.IntType, common.StringType})
}

func TestHeapPageFillAndDrain(t *testing.T) {
	desc := testTupleDesc()
	layout := NewHeapLayout(desc)
	page := NewPage(common.PageID{TableID: 1, PageNum: 0}, nil)
	hp := AsHeapPage(page, layout)

	numSlots := hp.NumSlots()
	require.Greater(t, numSlots, 0)
	assert.Equal(t, 0, hp.NumOccupied())
	assert.True(t, hp.IsEmpty())

	row := make([]byte, desc.BytesPerTuple())
	for i := 0; i < numSlots; i++ {
		slot := hp.FindFreeSlot()
		require.NotEqual(t, -1, slot, "slot %d should still have room", i)

		desc.SetValue(row, 0, common.NewIntValue(int64(i)))
		desc.SetValue(row, 1, common.NewStringValue(fmt.Sprintf("val-%d", i)))
		rid := hp.InsertAt(slot, row)
		assert.Equal(t, int32(slot), rid.Slot)
		assert.Equal(t, i+1, hp.NumOccupied())
	}

	assert.Equal(t, -1, hp.FindFreeSlot(), "page should report full once every slot is occupied")

	for i := 0; i < numSlots; i++ {
		require.True(t, hp.IsOccupied(i))
		got := hp.TupleBytes(i)
		assert.Equal(t, int64(i), desc.GetValue(got, 0).IntValue())
		assert.Equal(t, fmt.Sprintf("val-%d", i), desc.GetValue(got, 1).StringValue())
	}

	for i := 0; i < numSlots; i += 2 {
		hp.DeleteSlot(i)
	}
	assert.Equal(t, numSlots-(numSlots+1)/2, hp.NumOccupied())

	assert.False(t, hp.IsOccupied(0))
	assert.Equal(t, 0, hp.FindFreeSlot(), "lowest free slot should be reused first")
	hp.InsertAt(0, row)
	assert.True(t, hp.IsOccupied(0))
}

func TestHeapPageTuplesInSlotOrder(t *testing.T) {
	desc := testTupleDesc()
	layout := NewHeapLayout(desc)
	page := NewPage(common.PageID{TableID: 1, PageNum: 0}, nil)
	hp := AsHeapPage(page, layout)

	row := make([]byte, desc.BytesPerTuple())
	desc.SetValue(row, 0, common.NewIntValue(1))
	desc.SetValue(row, 1, common.NewStringValue("a"))
	hp.InsertAt(0, row)

	desc.SetValue(row, 0, common.NewIntValue(2))
	desc.SetValue(row, 1, common.NewStringValue("b"))
	hp.InsertAt(2, row)

	tuples := hp.Tuples()
	require.Len(t, tuples, 2)
	assert.Equal(t, 0, tuples[0].Slot)
	assert.Equal(t, 2, tuples[1].Slot)
}
