// Package filemgr provides a reference forestkv.FileMgr implementation: a
// fixed-block-size file with linear block allocation, backed by
// internal/vfs so tests can swap in any vfs.FS. Production deployments are
// expected to bring their own FileMgr (e.g. one shared with a WAL and
// buffer pool); this one is sized to drive docio and kvstore end-to-end in
// this module's own tests.
//
// Reference: ceejatec/forestdb src/filemgr.cc (filemgr_alloc,
// filemgr_alloc_multiple, filemgr_write_offset, filemgr_read,
// filemgr_get_file_status, filemgr_set_rollback).
package filemgr

import (
	"fmt"
	"sync"

	"github.com/forestkv/forestkv"
	"github.com/forestkv/forestkv/internal/vfs"
)

// Manager is a reference forestkv.FileMgr: block allocation and I/O over a
// single vfs.WritableFile/RandomAccessFile pair, with the file mutex,
// sequence number, and lifecycle flags the collaborator contract requires.
type Manager struct {
	mu sync.Mutex

	// fileMu is the file mutex handed out by Lock/Unlock. It is separate
	// from mu, so a caller holding it can still call Alloc, GetSeqNum and
	// the other methods that take mu internally.
	fileMu sync.Mutex

	blockSize int
	wf        vfs.WritableFile
	rf        vfs.RandomAccessFile

	nextAlloc forestkv.BlockID
	seqnum    uint64
	status    forestkv.FileStatus
	rollback  bool
}

// Open creates (or truncates) path via fs and returns a Manager over it
// with the given fixed block size.
func Open(fs vfs.FS, path string, blockSize int) (*Manager, error) {
	wf, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("filemgr: create %s: %w", path, err)
	}
	rf, err := fs.OpenRandomAccess(path)
	if err != nil {
		_ = wf.Close()
		return nil, fmt.Errorf("filemgr: open random access %s: %w", path, err)
	}
	return &Manager{
		blockSize: blockSize,
		wf:        wf,
		rf:        rf,
		nextAlloc: 0,
		status:    forestkv.FileStatusNormal,
	}, nil
}

// Close releases the underlying file handles.
func (m *Manager) Close() error {
	werr := m.wf.Close()
	rerr := m.rf.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// Alloc allocates one fresh block.
func (m *Manager) Alloc() (forestkv.BlockID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bid := m.nextAlloc
	m.nextAlloc++
	if err := m.zeroBlockLocked(bid); err != nil {
		return 0, err
	}
	return bid, nil
}

// AllocMultiple allocates n consecutive fresh blocks.
func (m *Manager) AllocMultiple(n int) (begin, end forestkv.BlockID, err error) {
	if n <= 0 {
		return 0, 0, fmt.Errorf("filemgr: %w: AllocMultiple requires n > 0, got %d", forestkv.ErrInvalidArgs, n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	begin = m.nextAlloc
	end = begin + forestkv.BlockID(n) - 1
	m.nextAlloc = end + 1
	for bid := begin; bid <= end; bid++ {
		if err := m.zeroBlockLocked(bid); err != nil {
			return 0, 0, err
		}
	}
	return begin, end, nil
}

// zeroBlockLocked extends the backing file to cover bid with zero bytes, so
// later partial WriteOffset calls land on well-defined content. Caller must
// hold m.mu.
func (m *Manager) zeroBlockLocked(bid forestkv.BlockID) error {
	zero := make([]byte, m.blockSize)
	off := int64(bid) * int64(m.blockSize)
	_, err := m.wf.WriteAt(zero, off)
	if err != nil {
		return fmt.Errorf("filemgr: zero block %d: %w", bid, err)
	}
	return nil
}

// GetNextAllocBlock returns the BlockID the next Alloc/AllocMultiple call
// would hand out, without allocating it.
func (m *Manager) GetNextAllocBlock() forestkv.BlockID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextAlloc
}

// IsWritable reports whether bid is the most recently allocated block (the
// only block this reference implementation ever considers appendable).
func (m *Manager) IsWritable(bid forestkv.BlockID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextAlloc > 0 && bid == m.nextAlloc-1
}

// Write writes a full block's worth of data to bid.
func (m *Manager) Write(bid forestkv.BlockID, buf []byte) error {
	if len(buf) != m.blockSize {
		return fmt.Errorf("filemgr: %w: Write requires exactly %d bytes, got %d", forestkv.ErrInvalidArgs, m.blockSize, len(buf))
	}
	return m.WriteOffset(bid, 0, buf)
}

// WriteOffset writes buf at byte offset off within block bid.
func (m *Manager) WriteOffset(bid forestkv.BlockID, off int, buf []byte) error {
	if off < 0 || off+len(buf) > m.blockSize {
		return fmt.Errorf("filemgr: %w: WriteOffset out of block bounds (off=%d len=%d blockSize=%d)", forestkv.ErrInvalidArgs, off, len(buf), m.blockSize)
	}
	fileOff := int64(bid)*int64(m.blockSize) + int64(off)
	_, err := m.wf.WriteAt(buf, fileOff)
	if err != nil {
		return fmt.Errorf("filemgr: write block %d offset %d: %w", bid, off, err)
	}
	return nil
}

// Read reads one full block's worth of data from bid into buf.
func (m *Manager) Read(bid forestkv.BlockID, buf []byte) error {
	if len(buf) != m.blockSize {
		return fmt.Errorf("filemgr: %w: Read requires a %d-byte buffer, got %d", forestkv.ErrInvalidArgs, m.blockSize, len(buf))
	}
	fileOff := int64(bid) * int64(m.blockSize)
	_, err := m.rf.ReadAt(buf, fileOff)
	if err != nil {
		return fmt.Errorf("filemgr: read block %d: %w", bid, err)
	}
	return nil
}

// BlockSize returns the fixed block size in bytes.
func (m *Manager) BlockSize() int {
	return m.blockSize
}

// Lock acquires the file mutex.
func (m *Manager) Lock() { m.fileMu.Lock() }

// Unlock releases the file mutex.
func (m *Manager) Unlock() { m.fileMu.Unlock() }

// GetSeqNum returns the file-level sequence number.
func (m *Manager) GetSeqNum() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seqnum
}

// SetSeqNum sets the file-level sequence number.
func (m *Manager) SetSeqNum(v uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seqnum = v
}

// GetFileStatus reports the file's compaction lifecycle state.
func (m *Manager) GetFileStatus() forestkv.FileStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// SetFileStatus sets the file's compaction lifecycle state. Not part of
// the FileMgr collaborator contract; called directly by whatever drives
// compaction in a full deployment.
func (m *Manager) SetFileStatus(s forestkv.FileStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = s
}

// SetRollback toggles the rollback-in-progress flag.
func (m *Manager) SetRollback(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollback = on
}

// IsRollbackOn reports the current rollback flag.
func (m *Manager) IsRollbackOn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rollback
}
