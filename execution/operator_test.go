package execution

import (
	"fmt"
	"testing"
	"time"

	"github.com/relational-go/coredb/common"
	"github.com/relational-go/coredb/logging"
	"github.com/relational-go/coredb/storage"
	"github.com/relational-go/coredb/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDesc() *storage.TupleDesc {
	return storage.NewTupleDesc([]string{"id", "name"}, []common.Type{common.IntType, common.StringType})
}

// testFixture bundles the buffer pool and file manager a test needs:
// every table access goes through the pool, but SeqScan also needs the
// raw DBFile (for its Layout and NumPages), which in production comes
// from the catalog.
type testFixture struct {
	bp    *storage.BufferPool
	files *storage.HeapFileManager
}

// setupScanFixture populates a table with n tuples (id=0..n-1, name="row-i").
func setupScanFixture(t *testing.T, n int) (*testFixture, common.TableID, *storage.TupleDesc) {
	root := t.TempDir()
	files := storage.NewHeapFileManager(root)
	locks := transaction.NewLockManagerWithTimeout(10 * time.Second)
	bp := storage.NewBufferPool(20, files, locks, logging.NoopLogManager{})

	desc := testDesc()
	tableID := common.TableID(1)
	setupTid := common.TransactionID(1000)
	for i := 0; i < n; i++ {
		row := make([]byte, desc.BytesPerTuple())
		desc.SetValue(row, 0, common.NewIntValue(int64(i)))
		desc.SetValue(row, 1, common.NewStringValue(fmt.Sprintf("row-%d", i)))
		_, err := bp.InsertTuple(setupTid, tableID, desc, row)
		require.NoError(t, err)
	}
	require.NoError(t, bp.TransactionComplete(setupTid, true))
	return &testFixture{bp: bp, files: files}, tableID, desc
}

func newScan(t *testing.T, fx *testFixture, tableID common.TableID, desc *storage.TupleDesc, tid common.TransactionID) *SeqScan {
	t.Helper()
	dbFile, err := fx.files.Open(tableID, desc)
	require.NoError(t, err)
	return NewSeqScan(tid, tableID, "t", dbFile, fx.bp.PageGetter(tid, tableID, desc, storage.ReadOnly))
}

func drain(t *testing.T, op Operator) []storage.Tuple {
	t.Helper()
	require.NoError(t, op.Open())
	var out []storage.Tuple
	for {
		has, err := op.HasNext()
		require.NoError(t, err)
		if !has {
			break
		}
		tup, err := op.Next()
		require.NoError(t, err)
		out = append(out, tup)
	}
	require.NoError(t, op.Close())
	return out
}

func TestSeqScanStreamsEveryRowInPageOrder(t *testing.T) {
	fx, tableID, desc := setupScanFixture(t, 5)
	tid := common.TransactionID(1)
	scan := newScan(t, fx, tableID, desc, tid)

	rows := drain(t, scan)
	require.Len(t, rows, 5)
	for i, row := range rows {
		assert.Equal(t, int64(i), row.GetValue(0).IntValue())
		assert.Equal(t, fmt.Sprintf("row-%d", i), row.GetValue(1).StringValue())
	}
	require.NoError(t, fx.bp.TransactionComplete(tid, true))
}

func TestSeqScanQualifiesFieldNamesWithAlias(t *testing.T) {
	fx, tableID, desc := setupScanFixture(t, 1)
	tid := common.TransactionID(1)
	scan := newScan(t, fx, tableID, desc, tid)
	assert.Equal(t, "t.id", scan.GetTupleDesc().FieldName(0))
	assert.Equal(t, "t.name", scan.GetTupleDesc().FieldName(1))
	require.NoError(t, fx.bp.TransactionComplete(tid, true))
}

func TestSeqScanRewindReplaysFromTheStart(t *testing.T) {
	fx, tableID, desc := setupScanFixture(t, 3)
	tid := common.TransactionID(1)
	scan := newScan(t, fx, tableID, desc, tid)
	require.NoError(t, scan.Open())

	first := mustNext(t, scan)
	assert.Equal(t, int64(0), first.GetValue(0).IntValue())

	require.NoError(t, scan.Rewind())
	again := mustNext(t, scan)
	assert.Equal(t, int64(0), again.GetValue(0).IntValue())
	require.NoError(t, scan.Close())
	require.NoError(t, fx.bp.TransactionComplete(tid, true))
}

func mustNext(t *testing.T, op Operator) storage.Tuple {
	t.Helper()
	has, err := op.HasNext()
	require.NoError(t, err)
	require.True(t, has)
	tup, err := op.Next()
	require.NoError(t, err)
	return tup
}

func TestFilterForwardsOnlyMatchingRows(t *testing.T) {
	fx, tableID, desc := setupScanFixture(t, 10)
	tid := common.TransactionID(1)
	scan := newScan(t, fx, tableID, desc, tid)
	pred := NewFieldPredicate(0, GreaterThanOrEqual, common.NewIntValue(7))
	filter := NewFilter(scan, pred)

	rows := drain(t, filter)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.GreaterOrEqual(t, row.GetValue(0).IntValue(), int64(7))
	}
	require.NoError(t, fx.bp.TransactionComplete(tid, true))
}

func TestAggregateCountWithNoGrouping(t *testing.T) {
	fx, tableID, desc := setupScanFixture(t, 4)
	tid := common.TransactionID(1)
	scan := newScan(t, fx, tableID, desc, tid)

	agg, err := NewAggregate(scan, Count, 0, NoGrouping)
	require.NoError(t, err)
	rows := drain(t, agg)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(4), rows[0].GetValue(0).IntValue())
	require.NoError(t, fx.bp.TransactionComplete(tid, true))
}

func TestAggregateSumGroupedByID(t *testing.T) {
	fx, tableID, desc := setupScanFixture(t, 3)
	tid := common.TransactionID(1)
	scan := newScan(t, fx, tableID, desc, tid)

	agg, err := NewAggregate(scan, Sum, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "id", agg.GetTupleDesc().FieldName(0))
	rows := drain(t, agg)
	require.Len(t, rows, 3, "every row has a distinct id, so each forms its own group")
	for _, row := range rows {
		assert.Equal(t, row.GetValue(0).IntValue(), row.GetValue(1).IntValue(), "summing a single-row group returns that row's own value")
	}
	require.NoError(t, fx.bp.TransactionComplete(tid, true))
}

func TestAggregateRejectsNonCountOverStringField(t *testing.T) {
	fx, tableID, desc := setupScanFixture(t, 1)
	tid := common.TransactionID(1)
	scan := newScan(t, fx, tableID, desc, tid)

	_, err := NewAggregate(scan, Sum, 1, NoGrouping)
	require.Error(t, err)
	var dbErr common.DBError
	require.ErrorAs(t, err, &dbErr)
	assert.Equal(t, common.InvalidArgument, dbErr.Code)
	require.NoError(t, fx.bp.TransactionComplete(tid, true))
}

func TestInsertEmitsCountThenGoesIdempotentlyEmpty(t *testing.T) {
	fx, srcTableID, desc := setupScanFixture(t, 3)
	tid := common.TransactionID(1)
	scan := newScan(t, fx, srcTableID, desc, tid)

	destTableID := common.TableID(2)
	ins := NewInsert(tid, destTableID, desc, scan, fx.bp)
	require.NoError(t, ins.Open())

	has, err := ins.HasNext()
	require.NoError(t, err)
	require.True(t, has)
	count, err := ins.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(3), count.GetValue(0).IntValue())

	has, err = ins.HasNext()
	require.NoError(t, err)
	assert.False(t, has, "Insert's result is a single tuple; subsequent HasNext calls report nothing")

	require.Error(t, ins.Rewind())
	require.NoError(t, ins.Close())
	require.NoError(t, fx.bp.TransactionComplete(tid, true))

	verifyTid := common.TransactionID(2)
	verifyScan := newScan(t, fx, destTableID, desc, verifyTid)
	rows := drain(t, verifyScan)
	assert.Len(t, rows, 3, "every row from the source scan should have landed in the destination table")
	require.NoError(t, fx.bp.TransactionComplete(verifyTid, true))
}
