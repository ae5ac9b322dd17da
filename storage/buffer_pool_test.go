package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/relational-go/coredb/common"
	"github.com/relational-go/coredb/logging"
	"github.com/relational-go/coredb/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBufferPool(t *testing.T, capacity int) (*BufferPool, *HeapFileManager, *transaction.LockManager) {
	root := t.TempDir()
	files := NewHeapFileManager(root)
	locks := transaction.NewLockManagerWithTimeout(10 * time.Second)
	bp := NewBufferPool(capacity, files, locks, logging.NoopLogManager{})
	return bp, files, locks
}

func oneByteRow(desc *TupleDesc, n int64) []byte {
	row := make([]byte, desc.BytesPerTuple())
	desc.SetValue(row, 0, common.NewIntValue(n))
	return row
}

func TestBufferPoolInsertIsVisibleWithinTransaction(t *testing.T) {
	bp, _, _ := newTestBufferPool(t, 10)
	desc := NewTupleDesc([]string{"n"}, []common.Type{common.IntType})
	tid := common.TransactionID(1)

	rid, err := bp.InsertTuple(tid, common.TableID(1), desc, oneByteRow(desc, 42))
	require.NoError(t, err)

	page, err := bp.GetPage(tid, rid.PageID, ReadOnly, desc)
	require.NoError(t, err)
	page.RLock()
	hp := AsHeapPage(page, NewHeapLayout(desc))
	val := desc.GetValue(hp.TupleBytes(int(rid.Slot)), 0)
	page.RUnlock()
	assert.Equal(t, int64(42), val.IntValue())
}

func TestBufferPoolCommitFlushesToDisk(t *testing.T) {
	bp, files, _ := newTestBufferPool(t, 10)
	desc := NewTupleDesc([]string{"n"}, []common.Type{common.IntType})
	tid := common.TransactionID(1)

	rid, err := bp.InsertTuple(tid, common.TableID(1), desc, oneByteRow(desc, 7))
	require.NoError(t, err)

	require.NoError(t, bp.TransactionComplete(tid, true))

	bp.DiscardPage(rid.PageID)
	file, ok := files.Get(common.TableID(1))
	require.True(t, ok)
	page, err := file.ReadPage(rid.PageID.PageNum)
	require.NoError(t, err)
	hp := AsHeapPage(page, NewHeapLayout(desc))
	require.True(t, hp.IsOccupied(int(rid.Slot)))
	assert.Equal(t, int64(7), desc.GetValue(hp.TupleBytes(int(rid.Slot)), 0).IntValue())
}

func TestBufferPoolAbortNeverTouchesDisk(t *testing.T) {
	bp, files, _ := newTestBufferPool(t, 10)
	desc := NewTupleDesc([]string{"n"}, []common.Type{common.IntType})
	tid := common.TransactionID(1)

	rid, err := bp.InsertTuple(tid, common.TableID(1), desc, oneByteRow(desc, 99))
	require.NoError(t, err)

	require.NoError(t, bp.TransactionComplete(tid, false))

	file, err := files.Open(common.TableID(1), desc)
	require.NoError(t, err)
	assert.Equal(t, int32(0), file.NumPages(), "NO-STEAL means an aborted insert never grew the file on disk")

	bp.DiscardPage(rid.PageID)
	tid2 := common.TransactionID(2)
	page, err := bp.GetPage(tid2, rid.PageID, ReadOnly, desc)
	require.Error(t, err, "the page an aborted transaction never flushed should not exist on disk")
	_ = page
}

func TestBufferPoolEvictsOnlyCleanPages(t *testing.T) {
	bp, _, _ := newTestBufferPool(t, 1)
	desc := NewTupleDesc([]string{"n"}, []common.Type{common.IntType})
	tid := common.TransactionID(1)

	_, err := bp.InsertTuple(tid, common.TableID(1), desc, oneByteRow(desc, 1))
	require.NoError(t, err)

	_, err = bp.InsertTuple(tid, common.TableID(2), desc, oneByteRow(desc, 2))
	require.Error(t, err, "every cached page is dirty under tid, so there is nothing clean left to evict")
	var dbErr common.DBError
	require.ErrorAs(t, err, &dbErr)
	assert.Equal(t, common.DBException, dbErr.Code)
}

func TestBufferPoolEvictionMakesRoomOnceClean(t *testing.T) {
	bp, _, _ := newTestBufferPool(t, 1)
	desc := NewTupleDesc([]string{"n"}, []common.Type{common.IntType})
	tid := common.TransactionID(1)

	rid1, err := bp.InsertTuple(tid, common.TableID(1), desc, oneByteRow(desc, 1))
	require.NoError(t, err)
	require.NoError(t, bp.TransactionComplete(tid, true))

	tid2 := common.TransactionID(2)
	rid2, err := bp.InsertTuple(tid2, common.TableID(2), desc, oneByteRow(desc, 2))
	require.NoError(t, err, "table 1's page is now clean and can be evicted to make room for table 2")
	require.NoError(t, bp.TransactionComplete(tid2, true))

	assert.NotEqual(t, rid1.TableID, rid2.TableID)
}

func TestBufferPoolGetPageEnforcesPermission(t *testing.T) {
	bp, _, _ := newTestBufferPool(t, 10)
	desc := NewTupleDesc([]string{"n"}, []common.Type{common.IntType})
	tid1 := common.TransactionID(1)
	tid2 := common.TransactionID(2)

	rid, err := bp.InsertTuple(tid1, common.TableID(1), desc, oneByteRow(desc, 1))
	require.NoError(t, err)
	require.NoError(t, bp.TransactionComplete(tid1, true))

	_, err = bp.GetPage(tid1, rid.PageID, ReadOnly, desc)
	require.NoError(t, err)
	_, err = bp.GetPage(tid2, rid.PageID, ReadOnly, desc)
	require.NoError(t, err, "two transactions may hold Shared locks on the same page concurrently")

	done := make(chan struct{})
	go func() {
		_, _ = bp.GetPage(tid2, rid.PageID, ReadWrite, desc)
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("exclusive lock should block behind tid1's outstanding shared lock")
	default:
	}

	require.NoError(t, bp.TransactionComplete(tid1, true))
	<-done
}

func TestBufferPoolInsertScansForFreeSlotBeforeGrowing(t *testing.T) {
	bp, files, _ := newTestBufferPool(t, 10)
	desc := NewTupleDesc([]string{"n"}, []common.Type{common.IntType})
	tid := common.TransactionID(1)
	tableID := common.TableID(1)

	file, err := files.Open(tableID, desc)
	require.NoError(t, err)
	layout := file.Layout()

	var rids []common.RecordID
	for i := 0; i < layout.NumSlots(); i++ {
		rid, err := bp.InsertTuple(tid, tableID, desc, oneByteRow(desc, int64(i)))
		require.NoError(t, err)
		rids = append(rids, rid)
	}
	require.NoError(t, bp.TransactionComplete(tid, true))
	assert.Equal(t, int32(1), file.NumPages(), fmt.Sprintf("%d tuples should exactly fill one page", layout.NumSlots()))

	tid2 := common.TransactionID(2)
	require.NoError(t, bp.DeleteTuple(tid2, tableID, desc, rids[0]))
	require.NoError(t, bp.TransactionComplete(tid2, true))

	tid3 := common.TransactionID(3)
	newRid, err := bp.InsertTuple(tid3, tableID, desc, oneByteRow(desc, 999))
	require.NoError(t, err)
	require.NoError(t, bp.TransactionComplete(tid3, true))

	assert.Equal(t, int32(1), file.NumPages(), "the freed slot should be reused instead of growing the file")
	assert.Equal(t, rids[0].Slot, newRid.Slot)
}
