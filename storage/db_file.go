package storage

import "github.com/relational-go/coredb/common"

// DBFile is the on-disk representation of a single table's heap file
// (SPEC_FULL.md §4.1). Implementations are responsible only for page-level
// I/O and slot bookkeeping; transactional correctness (locking, dirty
// tracking, before-images) is layered on top by the buffer pool.
type DBFile interface {
	// ID returns the table id this file was opened under.
	ID() common.TableID

	// Desc returns the schema of tuples stored in this file.
	Desc() *TupleDesc

	// ReadPage loads the page numbered pageNum from disk.
	ReadPage(pageNum int32) (*Page, error)

	// WritePage flushes page's current contents to disk at its page
	// number. Called only by the buffer pool's flush paths (FORCE at
	// commit, and FlushAllPages), which hold page's content latch for the
	// duration of the call.
	WritePage(page *Page) error

	// NumPages returns the file's current page count, computed from file
	// length rather than cached (SPEC_FULL.md §7): a second transaction's
	// concurrent append is visible to the next call without any
	// invalidation protocol.
	NumPages() int32

	// InsertTuple finds or allocates a page with a free slot, writes row
	// into it, and returns the resulting page (already marked dirty by
	// tid) and record id. The search scans existing pages in page-number
	// order before appending a new one (SPEC_FULL.md §4.1).
	InsertTuple(tid common.TransactionID, row []byte, getPage func(pageNum int32) (*Page, error)) (*Page, common.RecordID, error)

	// DeleteTuple clears the slot named by rid on the page it belongs to.
	// The caller supplies the already-pinned page (fetched through the
	// buffer pool under the transaction's exclusive lock).
	DeleteTuple(page *Page, rid common.RecordID) error

	// Layout returns the file's slotted-page geometry.
	Layout() HeapLayout
}

// FileManager opens and caches the DBFile backing each table, mirroring
// the teacher's DBFileManager split between file-identity caching and
// per-file I/O.
type FileManager interface {
	// Open returns the DBFile for id under schema desc, opening it on
	// disk if this is the first reference.
	Open(id common.TableID, desc *TupleDesc) (DBFile, error)
}

// RowIterator yields the raw bytes of every live tuple in page-number,
// slot order, skipping unoccupied slots and empty pages.
type RowIterator struct {
	file     DBFile
	getPage  func(pageNum int32) (*Page, error)
	pageNum  int32
	slots    []TupleSlot
	slotIdx  int
	lockPage func(*Page)
	unlock   func(*Page)
}

// NewRowIterator builds an iterator over file, reading pages through
// getPage (normally BufferPool.GetPage under a read lock) and taking the
// page's content latch with lockPage/unlock around each page's scan.
func NewRowIterator(file DBFile, getPage func(pageNum int32) (*Page, error), lockPage, unlock func(*Page)) *RowIterator {
	return &RowIterator{file: file, getPage: getPage, lockPage: lockPage, unlock: unlock}
}

// Next returns the next live tuple's record id and raw bytes, or
// ok == false once the file is exhausted.
func (it *RowIterator) Next() (rid common.RecordID, row []byte, ok bool, err error) {
	for {
		if it.slotIdx < len(it.slots) {
			s := it.slots[it.slotIdx]
			it.slotIdx++
			return s.RID, s.Row, true, nil
		}
		if it.pageNum >= it.file.NumPages() {
			return common.RecordID{}, nil, false, nil
		}
		page, err := it.getPage(it.pageNum)
		if err != nil {
			return common.RecordID{}, nil, false, err
		}
		it.pageNum++
		it.lockPage(page)
		hp := AsHeapPage(page, it.file.Layout())
		it.slots = hp.Tuples()
		it.unlock(page)
		it.slotIdx = 0
	}
}

// Rewind resets the iterator to the start of the file.
func (it *RowIterator) Rewind() {
	it.pageNum = 0
	it.slots = nil
	it.slotIdx = 0
}
