package storage

import (
	"sync"

	"github.com/relational-go/coredb/common"
)

// Page is a fixed-size in-memory cache entry for one on-disk page
// (SPEC_FULL.md §3). It carries, beyond the raw bytes:
//
//   - Dirtier: the transaction that has mutated it since load/commit, or
//     InvalidTransactionID if clean. At most one transaction may dirty a
//     page at a time — the buffer pool enforces this via the exclusive
//     lock required before any mutation.
//   - beforeImage: a frozen snapshot taken at load time or at the page's
//     last successful commit, whichever is later. Abort restores it.
//
// Page itself knows nothing about the logical layout of its bytes — that
// interpretation (the slotted heap-page format) lives in heap_page.go, the
// same split the teacher draws between PageFrame and HeapPage.
type Page struct {
	id common.PageID

	mu          sync.RWMutex
	bytes       [common.PageSize]byte
	beforeImage [common.PageSize]byte
	dirtier     common.TransactionID
}

// NewPage constructs a cache entry for id. If initial is non-nil it is
// copied in as the page's current contents (the "load from disk" path);
// otherwise the page starts zeroed (the "freshly allocated" path). In
// both cases the before-image is taken to equal the starting contents, as
// required by the invariant in SPEC_FULL.md §3.
func NewPage(id common.PageID, initial []byte) *Page {
	p := &Page{id: id}
	if initial != nil {
		common.Assert(len(initial) == common.PageSize, "page contents must be exactly PageSize bytes, got %d", len(initial))
		copy(p.bytes[:], initial)
	}
	p.beforeImage = p.bytes
	return p
}

// ID returns the page's identifier.
func (p *Page) ID() common.PageID { return p.id }

// Lock acquires the page's content latch for writing. Callers must hold
// the transaction's exclusive page lock (transaction/lock.go) before
// calling this — the latch here only protects concurrent readers/writers
// of the in-memory bytes, not cross-transaction isolation.
func (p *Page) Lock() { p.mu.Lock() }

// Unlock releases the content latch acquired by Lock.
func (p *Page) Unlock() { p.mu.Unlock() }

// RLock acquires the page's content latch for reading.
func (p *Page) RLock() { p.mu.RLock() }

// RUnlock releases the content latch acquired by RLock.
func (p *Page) RUnlock() { p.mu.RUnlock() }

// Bytes returns the page's current raw contents. Callers must hold at
// least RLock.
func (p *Page) Bytes() []byte { return p.bytes[:] }

// Dirtier returns the transaction that last mutated this page's in-memory
// contents since it was loaded or last committed, or InvalidTransactionID
// if the page is clean.
func (p *Page) Dirtier() common.TransactionID { return p.dirtier }

// IsDirty reports whether the page has a live dirtier.
func (p *Page) IsDirty() bool { return p.dirtier != common.InvalidTransactionID }

// MarkDirty records tid as the page's dirtier. Per SPEC_FULL.md §3, at
// most one transaction dirties a page at a time; this is enforced by the
// caller holding tid's exclusive lock on the page before any mutation.
func (p *Page) MarkDirty(tid common.TransactionID) { p.dirtier = tid }

// BeforeImage returns a copy of the page's before-image snapshot.
func (p *Page) BeforeImage() [common.PageSize]byte { return p.beforeImage }

// CommitBeforeImage is called at transaction commit for every page the
// committing transaction dirtied: it advances the before-image to the
// page's current (now-durable) contents and clears the dirtier.
func (p *Page) CommitBeforeImage() {
	p.beforeImage = p.bytes
	p.dirtier = common.InvalidTransactionID
}

// RevertToBeforeImage is called at transaction abort for every page the
// aborting transaction dirtied: it discards all in-memory changes by
// restoring the before-image, and clears the dirtier. This is what makes
// NO-STEAL sufficient for abort — nothing was ever written to disk, so
// reverting memory is enough.
func (p *Page) RevertToBeforeImage() {
	p.bytes = p.beforeImage
	p.dirtier = common.InvalidTransactionID
}
