package kvstore

// manager.go implements the file handle / KV handle manager (C6): opening
// the default store and named sub-stores, creating and removing
// sub-stores, rollback, and catalog listing/info. This is the layer that
// keeps the in-memory Directory and the on-disk directory document
// consistent, including the compaction-handoff retry loop the original
// spins on when a concurrent compaction relinks the file mid-operation.
//
// Lock ordering (§5): file mutex (FileMgr.Lock/Unlock) is acquired before
// the directory's own mutex, which Directory's methods already enforce
// internally; callers here never need to take the directory lock directly.
//
// Reference: ceejatec/forestdb src/kv_instance.cc (fdb_kvs_create,
// fdb_kvs_remove, fdb_kvs_open, fdb_kvs_open_default, fdb_kvs_rollback,
// fdb_kvs_header_copy).

import (
	"fmt"
	"sync"

	"github.com/forestkv/forestkv"
	"github.com/forestkv/forestkv/docio"
)

// FileHandle represents one open file: its FileMgr, DocIO handle, the
// shared Directory, and the offset of the most recently persisted
// directory document (kv_info_offset in the original). A compaction in
// progress is represented by NewFile/NewDocIO being non-nil, mirroring
// root_handle->new_file.
type FileHandle struct {
	mu sync.Mutex

	File  forestkv.FileMgr
	DocIO *docio.Handle
	Dir   *Directory
	WAL   forestkv.WAL
	Trie  forestkv.HBTrie

	kvInfoOffset uint64

	// NewFile/NewDocIO are set while a compaction is relocating this
	// file's contents; Create/Remove/Rollback then write the directory
	// document through them (see activeFileLocked). Those operations lock
	// only File's mutex; NewFile's mutex is never taken.
	NewFile  forestkv.FileMgr
	NewDocIO *docio.Handle

	// childMu protects children, the roster of KvsHandle values currently
	// open against this file. Deliberately separate from mu (which guards
	// kvInfoOffset) and from the FileMgr lock (which guards on-disk
	// mutations): this lock is taken only to consult or update the
	// roster, never held across I/O.
	childMu  sync.Mutex
	children []*KvsHandle
}

// registerChild adds h to the open-handle roster, consulted by Remove to
// reject a removal of a KV store some caller still has open.
func (fh *FileHandle) registerChild(h *KvsHandle) {
	fh.childMu.Lock()
	defer fh.childMu.Unlock()
	fh.children = append(fh.children, h)
}

// unregisterChild drops h from the roster; a no-op if h is not present
// (e.g. Close called more than once on the same handle).
func (fh *FileHandle) unregisterChild(h *KvsHandle) {
	fh.childMu.Lock()
	defer fh.childMu.Unlock()
	for i, c := range fh.children {
		if c == h {
			fh.children = append(fh.children[:i], fh.children[i+1:]...)
			return
		}
	}
}

// isOpen reports whether any handle in the roster references id.
func (fh *FileHandle) isOpen(id uint64) bool {
	fh.childMu.Lock()
	defer fh.childMu.Unlock()
	for _, c := range fh.children {
		if c.ID == id {
			return true
		}
	}
	return false
}

// KvsHandle is one caller's open handle onto either the default store
// (ID 0) or a named sub-store.
type KvsHandle struct {
	File *FileHandle
	ID   uint64
	Name string // empty for the default store
	Cmp  forestkv.Comparator
}

// Manager ties a FileHandle to the catalog lifecycle operations. It holds
// no state of its own beyond what FileHandle already tracks; it exists so
// the lifecycle operations read as a cohesive API rather than loose
// functions.
type Manager struct {
	fh *FileHandle
}

// NewManager wraps fh.
func NewManager(fh *FileHandle) *Manager {
	return &Manager{fh: fh}
}

// activeFileLocked returns the file/docio pair a mutation should target:
// the new (compaction-destination) file if one is linked, else the
// current file. Caller must hold the file mutex (fh.File.Lock).
func (fh *FileHandle) activeFileLocked() (forestkv.FileMgr, *docio.Handle) {
	if fh.NewFile != nil {
		return fh.NewFile, fh.NewDocIO
	}
	return fh.File, fh.DocIO
}

// OpenDefault opens a handle onto the default KV store (ID 0).
func (m *Manager) OpenDefault() (*KvsHandle, error) {
	h := &KvsHandle{
		File: m.fh,
		ID:   DefaultKVSID,
		Cmp:  m.fh.Dir.DefaultComparator(),
	}
	m.fh.registerChild(h)
	return h, nil
}

// OpenKVS opens a handle onto the named sub-store, verifying that cmp (if
// non-nil) matches the comparator the store was created with — the
// consistency check the original performs via fdb_kvs_find_cmp_name /
// the node's custom_cmp before handing back a handle.
func (m *Manager) OpenKVS(name string, cmp forestkv.Comparator) (*KvsHandle, error) {
	node, ok := m.fh.Dir.FindByName(name)
	if !ok {
		return nil, fmt.Errorf("kvstore: open %q: %w", name, forestkv.ErrKVStoreNotFound)
	}

	effective := node.CustomCmp
	if effective == nil {
		effective = m.fh.Dir.DefaultComparator()
	}
	if cmp != nil && effective != nil && cmp.Name() != effective.Name() {
		return nil, fmt.Errorf("kvstore: open %q: comparator %q does not match stored %q: %w",
			name, cmp.Name(), effective.Name(), forestkv.ErrInvalidCmpFunction)
	}

	h := &KvsHandle{
		File: m.fh,
		ID:   node.ID,
		Name: name,
		Cmp:  effective,
	}
	m.fh.registerChild(h)
	return h, nil
}

// Create registers a new named sub-store and persists the updated
// directory document. It retries the whole sequence if a concurrent
// compaction relinks the file mid-operation (the file status transitions
// away from Normal/CompactNew), mirroring fdb_kvs_create_start's goto
// loop, bounded here to avoid spinning forever on a stuck compaction.
func (m *Manager) Create(name string, cmp forestkv.Comparator) (*KvsHandle, error) {
	const maxRetries = 1000
	for attempt := 0; attempt < maxRetries; attempt++ {
		fh := m.fh
		fh.File.Lock()

		if fh.File.IsRollbackOn() {
			fh.File.Unlock()
			return nil, forestkv.ErrFailByRollback
		}

		file, dio := fh.activeFileLocked()
		status := file.GetFileStatus()
		if status != forestkv.FileStatusNormal && status != forestkv.FileStatusCompactNew {
			// File status changed under us (compaction started or
			// finished elsewhere); the active file target may now differ.
			// Start over, as the original's goto does.
			fh.File.Unlock()
			continue
		}

		node, err := fh.Dir.Create(name, cmp)
		if err != nil {
			fh.File.Unlock()
			return nil, err
		}

		offset, err := AppendDirectoryDoc(dio, fh.Dir)
		if err != nil {
			fh.File.Unlock()
			return nil, fmt.Errorf("kvstore: persisting directory after creating %q: %w", name, err)
		}
		fh.mu.Lock()
		fh.kvInfoOffset = offset
		fh.mu.Unlock()

		fh.File.Unlock()

		return &KvsHandle{File: fh, ID: node.ID, Name: name, Cmp: cmp}, nil
	}
	return nil, fmt.Errorf("kvstore: create %q: %w", name, forestkv.ErrFailByCompaction)
}

// Remove drops the named sub-store from the catalog and persists the
// updated directory document, with the same compaction-handoff retry as
// Create. Returns ErrKVStoreBusy, without touching the catalog, if any
// handle in the file's child roster still references the target store —
// the caller must close it and retry.
func (m *Manager) Remove(name string) error {
	const maxRetries = 1000
	for attempt := 0; attempt < maxRetries; attempt++ {
		fh := m.fh
		fh.File.Lock()

		if fh.File.IsRollbackOn() {
			fh.File.Unlock()
			return forestkv.ErrFailByRollback
		}

		file, dio := fh.activeFileLocked()
		status := file.GetFileStatus()
		if status != forestkv.FileStatusNormal && status != forestkv.FileStatusCompactNew {
			fh.File.Unlock()
			continue
		}

		node, ok := fh.Dir.FindByName(name)
		if !ok {
			fh.File.Unlock()
			return forestkv.ErrKVStoreNotFound
		}
		if fh.isOpen(node.ID) {
			fh.File.Unlock()
			return forestkv.ErrKVStoreBusy
		}

		removed, err := fh.Dir.Remove(name)
		if err != nil {
			fh.File.Unlock()
			return err
		}

		if fh.Trie != nil {
			if err := fh.Trie.RemovePartial(removed.ID); err != nil {
				fh.File.Unlock()
				return fmt.Errorf("kvstore: removing trie partition for %q: %w", name, err)
			}
		}

		offset, err := AppendDirectoryDoc(dio, fh.Dir)
		if err != nil {
			fh.File.Unlock()
			return fmt.Errorf("kvstore: persisting directory after removing %q: %w", name, err)
		}
		fh.mu.Lock()
		fh.kvInfoOffset = offset
		fh.mu.Unlock()

		fh.File.Unlock()
		return nil
	}
	return fmt.Errorf("kvstore: remove %q: %w", name, forestkv.ErrFailByCompaction)
}

// Rollback sets the handle's store sequence number back to seqnum: it drops
// the store's partition from the HB+trie (Trie.RemovePartial), sets the
// sequence number to seqnum and persists the directory document. It
// restores no index state as of seqnum: nothing is re-inserted into the
// trie, and the WAL is consulted only through TxnExists. It fails fast with
// ErrNoDBInstance if seqnum is ahead of anything this handle has ever seen,
// ErrFailByTransaction if uncommitted transactions exist, or
// ErrFailByCompaction if a compaction is in progress on the file — mirroring
// fdb_kvs_rollback's upfront checks, in the same order. The store's old
// sequence number is restored if persisting the rolled-back directory
// document fails.
func (m *Manager) Rollback(h *KvsHandle, seqnum uint64) error {
	fh := m.fh
	fh.File.Lock()
	defer fh.File.Unlock()

	oldSeqnum := fh.Dir.GetSeqNum(h.ID, fh.File.GetSeqNum())
	if seqnum > oldSeqnum {
		return forestkv.ErrNoDBInstance
	}

	fh.File.SetRollback(true)
	defer fh.File.SetRollback(false)

	if fh.WAL != nil && fh.WAL.TxnExists(fh.File) {
		return forestkv.ErrFailByTransaction
	}

	file, dio := fh.activeFileLocked()
	if file.GetFileStatus() != forestkv.FileStatusNormal {
		return forestkv.ErrFailByCompaction
	}

	if fh.Trie != nil {
		if err := fh.Trie.RemovePartial(h.ID); err != nil {
			return fmt.Errorf("kvstore: rollback %d: %w", h.ID, err)
		}
	}

	setSeqnum := func(v uint64) {
		if h.ID == DefaultKVSID {
			fh.File.SetSeqNum(v)
		} else {
			fh.Dir.SetSeqNum(h.ID, v)
		}
	}
	setSeqnum(seqnum)

	offset, err := AppendDirectoryDoc(dio, fh.Dir)
	if err != nil {
		setSeqnum(oldSeqnum)
		return fmt.Errorf("kvstore: persisting directory during rollback of %d: %w", h.ID, err)
	}
	fh.mu.Lock()
	fh.kvInfoOffset = offset
	fh.mu.Unlock()
	return nil
}

// Close removes h from its file handle's open-handle roster, the
// counterpart to the registration OpenDefault/OpenKVS perform; it makes the
// store Remove-able again once h was the last handle referencing it.
func (m *Manager) Close(h *KvsHandle) error {
	m.fh.unregisterChild(h)
	return nil
}

// ListNames returns the sub-store names in the catalog, always led by
// "default" (the default store has no catalog entry of its own, but
// get_kvs_name_list reports it first regardless), followed by the rest in
// sorted order.
func (m *Manager) ListNames() []string {
	rest := m.fh.Dir.Names()
	out := make([]string, 0, len(rest)+1)
	out = append(out, "default")
	return append(out, rest...)
}

// Info is the result of Manager.Info: a store's catalog entry plus the
// derived fields get_kvs_info reports alongside it.
type Info struct {
	KvsNode

	// DocCount is max(0, ndocs + wal_inserts - wal_deletes): the live
	// document count, folding in WAL entries not yet reflected in
	// Stat.NDocs.
	DocCount uint64
	// SpaceUsed is datasize + nlivenodes * blocksize: the space occupied
	// by the store's data plus its index nodes.
	SpaceUsed uint64
}

// Info reports the stats for a store by name ("" for the default store,
// whose counters are tracked by the FileMgr rather than a KvsNode).
func (m *Manager) Info(name string) (Info, error) {
	fh := m.fh

	var node KvsNode
	if name == "" {
		node = KvsNode{ID: DefaultKVSID, SeqNum: fh.File.GetSeqNum()}
	} else {
		found, ok := fh.Dir.FindByName(name)
		if !ok {
			return Info{}, fmt.Errorf("kvstore: info %q: %w", name, forestkv.ErrKVStoreNotFound)
		}
		node = *found
	}

	var walInserts, walDeletes uint64
	if fh.WAL != nil {
		walInserts, walDeletes = fh.WAL.ItemCounts(node.ID)
	}

	docCount := int64(node.Stat.NDocs) + int64(walInserts) - int64(walDeletes)
	if docCount < 0 {
		docCount = 0
	}

	return Info{
		KvsNode:   node,
		DocCount:  uint64(docCount),
		SpaceUsed: node.Stat.DataSize + node.Stat.NLiveNodes*uint64(fh.File.BlockSize()),
	}, nil
}

// KVInfoOffset returns the offset of the most recently persisted directory
// document, the value a caller must store in its own commit header
// (kv_info_offset in the original) to find the directory again on reopen.
func (fh *FileHandle) KVInfoOffset() uint64 {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	return fh.kvInfoOffset
}
