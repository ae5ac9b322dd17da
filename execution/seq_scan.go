package execution

import (
	"github.com/relational-go/coredb/common"
	"github.com/relational-go/coredb/storage"
)

// SeqScan streams every live tuple of a table, in page order, with field
// names prefixed by alias so downstream operators can resolve
// "alias.field" unambiguously (SPEC_FULL.md §4.4, §7).
type SeqScan struct {
	tid     common.TransactionID
	tableID common.TableID
	alias   string
	file    storage.DBFile
	getPage func(pageNum int32) (*storage.Page, error)

	desc *storage.TupleDesc
	iter *storage.RowIterator

	nextRID common.RecordID
	nextRow []byte
	pending bool
	done    bool
}

// NewSeqScan creates a scan of table tableID under alias, reading pages
// through getPage (normally bufferPool.PageGetter(tid, tableID, desc,
// storage.ReadOnly)).
func NewSeqScan(tid common.TransactionID, tableID common.TableID, alias string, file storage.DBFile, getPage func(pageNum int32) (*storage.Page, error)) *SeqScan {
	return &SeqScan{
		tid:     tid,
		tableID: tableID,
		alias:   alias,
		file:    file,
		getPage: getPage,
		desc:    file.Desc().Qualify(alias),
	}
}

func (s *SeqScan) Open() error {
	s.iter = storage.NewRowIterator(s.file, s.getPage, func(p *storage.Page) { p.RLock() }, func(p *storage.Page) { p.RUnlock() })
	s.pending = false
	s.done = false
	return s.advance()
}

func (s *SeqScan) advance() error {
	rid, row, ok, err := s.iter.Next()
	if err != nil {
		return err
	}
	if !ok {
		s.done = true
		s.pending = false
		return nil
	}
	s.nextRID, s.nextRow, s.pending = rid, row, true
	return nil
}

func (s *SeqScan) HasNext() (bool, error) {
	return s.pending, nil
}

func (s *SeqScan) Next() (storage.Tuple, error) {
	common.Assert(s.pending, "SeqScan.Next called with no pending tuple")
	t := storage.FromRow(append([]byte(nil), s.nextRow...), s.desc, s.nextRID)
	if err := s.advance(); err != nil {
		return storage.Tuple{}, err
	}
	return t, nil
}

func (s *SeqScan) Rewind() error {
	s.iter.Rewind()
	return s.advance()
}

func (s *SeqScan) Close() error {
	s.iter = nil
	return nil
}

func (s *SeqScan) GetTupleDesc() *storage.TupleDesc {
	return s.desc
}
