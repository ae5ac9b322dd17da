package execution

import (
	"github.com/relational-go/coredb/common"
	"github.com/relational-go/coredb/storage"
)

// Inserter is the buffer pool surface Insert consumes, narrowed to the
// one method it needs.
type Inserter interface {
	InsertTuple(tid common.TransactionID, tableID common.TableID, desc *storage.TupleDesc, row []byte) (common.RecordID, error)
}

// Insert consumes every child tuple, writing each into tableID through
// bufferPool.InsertTuple, then emits a single one-field tuple holding the
// count inserted. Subsequent Next calls return nothing, matching the
// specification's "idempotent end-of-stream" requirement
// (SPEC_FULL.md §4.4).
type Insert struct {
	tid     common.TransactionID
	tableID common.TableID
	desc    *storage.TupleDesc
	child   Operator
	bp      Inserter

	rowBuf   []byte
	executed bool
	count    int64

	outDesc *storage.TupleDesc
	pending bool
}

// NewInsert builds an Insert of child's tuples into tableID under desc.
func NewInsert(tid common.TransactionID, tableID common.TableID, desc *storage.TupleDesc, child Operator, bp Inserter) *Insert {
	return &Insert{
		tid:     tid,
		tableID: tableID,
		desc:    desc,
		child:   child,
		bp:      bp,
		rowBuf:  make([]byte, desc.BytesPerTuple()),
		outDesc: storage.NewTupleDesc([]string{"count"}, []common.Type{common.IntType}),
	}
}

func (ins *Insert) Open() error {
	if err := ins.child.Open(); err != nil {
		return err
	}
	ins.executed = false
	ins.count = 0
	return ins.run()
}

func (ins *Insert) run() error {
	if ins.executed {
		return nil
	}
	for {
		hasNext, err := ins.child.HasNext()
		if err != nil {
			return err
		}
		if !hasNext {
			break
		}
		t, err := ins.child.Next()
		if err != nil {
			return err
		}
		t.WriteTo(ins.rowBuf, ins.desc)
		if _, err := ins.bp.InsertTuple(ins.tid, ins.tableID, ins.desc, ins.rowBuf); err != nil {
			return err
		}
		ins.count++
	}
	ins.executed = true
	ins.pending = true
	return nil
}

func (ins *Insert) HasNext() (bool, error) {
	return ins.pending, nil
}

func (ins *Insert) Next() (storage.Tuple, error) {
	if !ins.pending {
		return storage.Tuple{}, nil
	}
	ins.pending = false
	return storage.FromValues(ins.outDesc, common.NewIntValue(ins.count)), nil
}

func (ins *Insert) Rewind() error {
	return common.NewError(common.DBException, "insert is not rewindable")
}

func (ins *Insert) Close() error {
	return ins.child.Close()
}

func (ins *Insert) GetTupleDesc() *storage.TupleDesc {
	return ins.outDesc
}
