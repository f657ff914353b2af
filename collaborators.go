package forestkv

// collaborators.go declares the external collaborators consumed by docio and
// kvstore but not implemented by this module: the block-allocating file
// manager, the write-ahead log, and the HB+trie index. Their contracts are
// specified only to the extent §6 of the design needs them.
//
// internal/filemgr ships a reference FileMgr implementation sized for this
// module's own tests; production deployments supply the real block
// allocator, WAL, and HB+trie.
//
// Reference: ceejatec/forestdb src/docio.c (filemgr_*, calls into WAL/HBTrie
// are not made from docio.c directly), src/kv_instance.cc (filemgr_*,
// wal_txn_exists, hbtrie_find_partial/insert_partial/remove_partial).

// FileMgr is the block-allocating file manager collaborator.
type FileMgr interface {
	// Alloc allocates one fresh block and returns its ID.
	Alloc() (BlockID, error)

	// AllocMultiple allocates n consecutive fresh blocks and returns the
	// inclusive [begin, end] range.
	AllocMultiple(n int) (begin, end BlockID, err error)

	// GetNextAllocBlock returns the BlockID that the next Alloc call would
	// return, without allocating it. Used by the writer to detect whether
	// another writer has interleaved since the current block was filled.
	GetNextAllocBlock() BlockID

	// IsWritable reports whether bid is still the open, appendable tail
	// block (false once a commit has sealed it).
	IsWritable(bid BlockID) bool

	// Write writes a full block's worth of data to bid.
	Write(bid BlockID, buf []byte) error

	// WriteOffset writes buf at byte offset off within block bid.
	WriteOffset(bid BlockID, off int, buf []byte) error

	// Read reads one full block's worth of data from bid into buf.
	Read(bid BlockID, buf []byte) error

	// BlockSize returns the fixed block size B in bytes.
	BlockSize() int

	// Lock acquires the file mutex. Acquired by kvstore around any mutation
	// sequence that touches on-disk state; docio relies on the caller
	// already holding it where required.
	Lock()
	// Unlock releases the file mutex.
	Unlock()

	// GetSeqNum / SetSeqNum manage the file-level sequence number (used for
	// the default KV store, ID 0).
	GetSeqNum() uint64
	SetSeqNum(uint64)

	// GetFileStatus reports the file's compaction lifecycle state.
	GetFileStatus() FileStatus

	// SetRollback toggles the rollback-in-progress flag, which causes
	// concurrent writers to fail fast with ErrFailByRollback instead of
	// blocking.
	SetRollback(on bool)
	// IsRollbackOn reports the current rollback flag.
	IsRollbackOn() bool
}

// WAL is the write-ahead log collaborator: kvstore.Manager.Rollback checks
// for uncommitted transactions before it will touch the file, and
// Manager.Info folds the WAL's own pending counts for a store into
// get_kvs_info's doc_count (inserts/deletes not yet reflected in the
// store's persisted ndocs).
type WAL interface {
	TxnExists(file FileMgr) bool

	// ItemCounts reports the number of inserts and deletes pending in the
	// WAL for kvID, not yet folded into the store's persisted Stat.NDocs.
	ItemCounts(kvID uint64) (inserts, deletes uint64)
}

// HBTrie is the HB+trie index collaborator. kvstore.Manager.Remove and
// Rollback call it to drop or relocate a KV store's sub-trie; kvstore never
// interprets the returned bytes.
type HBTrie interface {
	FindPartial(kvID uint64, key []byte) ([]byte, error)
	InsertPartial(kvID uint64, key, value []byte) error
	RemovePartial(kvID uint64) error
}

// CmpResolver resolves the comparator bound to a KV store ID, mirroring
// fdb_kvs_find_cmp_chunk: ID 0 (the default store) always resolves through
// the file handle's root comparator.
type CmpResolver func(kvID uint64) Comparator
