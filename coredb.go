// Package coredb wires the storage, locking, logging, and catalog
// collaborators into the single top-level handle a host process embeds,
// mirroring the teacher's GoDB container (godb.go) but scoped to the
// transactional core: no planner, no indexing, no ARIES recovery.
package coredb

import (
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/relational-go/coredb/catalog"
	"github.com/relational-go/coredb/common"
	"github.com/relational-go/coredb/logging"
	"github.com/relational-go/coredb/storage"
	"github.com/relational-go/coredb/transaction"
	"github.com/sirupsen/logrus"
)

// Database is the top-level container for the storage and execution
// core: the shared mutable state the specification requires be threaded
// explicitly as collaborators (SPEC_FULL.md §9) rather than reached
// through a package-level global.
type Database struct {
	Config      Config
	Catalog     *catalog.Catalog
	BufferPool  *storage.BufferPool
	LockManager *transaction.LockManager
	LogManager  logging.LogManager

	files *storage.HeapFileManager
	log   *logrus.Entry

	nextTxnID atomic.Uint64
}

// NewDatabase creates the database rooted at config's storage and log
// directories, validating config once up front (SPEC_FULL.md §5.3).
func NewDatabase(config Config) (*Database, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(config.StorageDir, 0755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(config.LogDir, 0755); err != nil {
		return nil, err
	}

	log := logrus.WithField("component", "coredb")

	logManager, err := logging.NewFileLogManager(filepath.Join(config.LogDir, "coredb.log"))
	if err != nil {
		return nil, err
	}

	files := storage.NewHeapFileManager(config.StorageDir)
	lockManager := transaction.NewLockManagerWithTimeout(config.DeadlockWaitTimeout)
	bufferPool := storage.NewBufferPool(config.BufferPoolCapacity, files, lockManager, logManager)

	cat, err := catalog.NewCatalog(catalog.NewDiskCatalogManager(config.StorageDir), files)
	if err != nil {
		return nil, err
	}

	log.WithField("storage_dir", config.StorageDir).Info("database opened")

	return &Database{
		Config:      config,
		Catalog:     cat,
		BufferPool:  bufferPool,
		LockManager: lockManager,
		LogManager:  logManager,
		files:       files,
		log:         log,
	}, nil
}

// CreateTable registers a new table with the catalog under the given
// schema.
func (db *Database) CreateTable(name string, columns []catalog.Column) (common.TableID, error) {
	id, err := db.Catalog.CreateTable(name, columns)
	if err != nil {
		return common.InvalidTableID, err
	}
	db.log.WithFields(logrus.Fields{"table": name, "table_id": id}).Info("table created")
	return id, nil
}

// Begin starts a new transaction and returns its id. Transaction ids are
// assigned monotonically by this process; the specification does not
// require them to be durable across restarts since NO-STEAL/FORCE means
// an aborted or never-committed transaction leaves no trace on disk.
func (db *Database) Begin() common.TransactionID {
	id := common.TransactionID(db.nextTxnID.Add(1))
	db.log.WithField("tid", id).Debug("transaction begin")
	return id
}

// Commit ends tid successfully: every page it dirtied is logged and
// flushed (FORCE), and its locks are released.
func (db *Database) Commit(tid common.TransactionID) error {
	if err := db.BufferPool.TransactionComplete(tid, true); err != nil {
		db.log.WithField("tid", tid).WithError(err).Warn("commit failed")
		return err
	}
	db.log.WithField("tid", tid).Debug("transaction commit")
	return nil
}

// Abort ends tid unsuccessfully: every page it dirtied is reverted to
// its before-image in memory (NO-STEAL made this sufficient), and its
// locks are released.
func (db *Database) Abort(tid common.TransactionID) error {
	if err := db.BufferPool.TransactionComplete(tid, false); err != nil {
		return err
	}
	db.log.WithField("tid", tid).Debug("transaction abort")
	return nil
}

// Close forces and closes the write-ahead log. Heap files opened through
// the database are not closed.
func (db *Database) Close() error {
	return db.LogManager.Close()
}
