// Package logging provides the write-ahead log collaborator the buffer
// pool writes through at commit. Its record format and recovery replay
// are explicitly out of scope (SPEC_FULL.md non-goals); the log is opaque
// to the rest of the core beyond the two operations it exposes:
// LogWrite and Force.
package logging

import (
	"bufio"
	"encoding/binary"
	"os"
	"sync"

	"github.com/relational-go/coredb/common"
)

// LogManager is the interface the buffer pool commits through. At commit,
// every cached page the transaction dirtied gets a LogWrite call just
// before it is written to its heap file, and Force is called once, after
// all of the transaction's pages have been logged and written and before
// its locks are released. The page writes are not held back until Force.
type LogManager interface {
	LogWrite(tid common.TransactionID, pageID common.PageID, before, after []byte) error
	Force() error
	Close() error
}

// FileLogManager appends physiological before/after page images to a
// single append-only file. Unlike the teacher's DoubleBufferLogManager,
// there is no background flush loop or LSN-indexed iterator — Force
// synchronously flushes the buffered writer and fsyncs, which is all
// NO-STEAL/FORCE requires of it, since recovery replay never reads this
// file back.
type FileLogManager struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
}

// NewFileLogManager opens (creating if necessary) the log file at path.
func NewFileLogManager(path string) (*FileLogManager, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		return nil, err
	}
	return &FileLogManager{file: f, writer: bufio.NewWriter(f)}, nil
}

// LogWrite appends one record: tid, pageID, and the page's before/after
// images, each exactly common.PageSize bytes.
func (lm *FileLogManager) LogWrite(tid common.TransactionID, pageID common.PageID, before, after []byte) error {
	common.Assert(len(before) == common.PageSize && len(after) == common.PageSize, "log record page images must be exactly PageSize bytes")

	lm.mu.Lock()
	defer lm.mu.Unlock()

	var header [20]byte
	binary.BigEndian.PutUint64(header[0:8], uint64(tid))
	binary.BigEndian.PutUint32(header[8:12], uint32(pageID.TableID))
	binary.BigEndian.PutUint32(header[12:16], uint32(pageID.PageNum))
	binary.BigEndian.PutUint32(header[16:20], uint32(common.PageSize))

	if _, err := lm.writer.Write(header[:]); err != nil {
		return common.NewError(common.IOError, "log write: %v", err)
	}
	if _, err := lm.writer.Write(before); err != nil {
		return common.NewError(common.IOError, "log write: %v", err)
	}
	if _, err := lm.writer.Write(after); err != nil {
		return common.NewError(common.IOError, "log write: %v", err)
	}
	return nil
}

// Force flushes the buffered writer and fsyncs the underlying file,
// guaranteeing every LogWrite call that preceded it is durable.
func (lm *FileLogManager) Force() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if err := lm.writer.Flush(); err != nil {
		return common.NewError(common.IOError, "log force: %v", err)
	}
	if err := lm.file.Sync(); err != nil {
		return common.NewError(common.IOError, "log force: %v", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (lm *FileLogManager) Close() error {
	if err := lm.Force(); err != nil {
		return err
	}
	return lm.file.Close()
}

// NoopLogManager discards every record, used by tests that exercise
// buffer pool or lock manager behavior without caring about durability.
type NoopLogManager struct{}

func (NoopLogManager) LogWrite(common.TransactionID, common.PageID, []byte, []byte) error { return nil }
func (NoopLogManager) Force() error                                                       { return nil }
func (NoopLogManager) Close() error                                                       { return nil }
