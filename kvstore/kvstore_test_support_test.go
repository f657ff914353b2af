package kvstore

// kvstore_test_support_test.go provides a minimal in-memory FileMgr and
// stub WAL/HBTrie collaborators shared by codec_test.go and
// manager_test.go, mirroring docio's own in-package fake (see
// docio/roundtrip_test.go) rather than pulling in internal/filemgr (which
// needs a vfs.FS and has no tests of its own).

import (
	"github.com/forestkv/forestkv"
)

type memFile struct {
	blockSize int
	blocks    [][]byte
	next      forestkv.BlockID
	seqnum    uint64
	status    forestkv.FileStatus
	rollback  bool
}

func newMemFile(blockSize int) *memFile {
	return &memFile{blockSize: blockSize}
}

func (f *memFile) Alloc() (forestkv.BlockID, error) {
	bid := f.next
	f.blocks = append(f.blocks, make([]byte, f.blockSize))
	f.next++
	return bid, nil
}

func (f *memFile) AllocMultiple(n int) (forestkv.BlockID, forestkv.BlockID, error) {
	begin := f.next
	for i := 0; i < n; i++ {
		f.blocks = append(f.blocks, make([]byte, f.blockSize))
	}
	f.next += forestkv.BlockID(n)
	return begin, f.next - 1, nil
}

func (f *memFile) GetNextAllocBlock() forestkv.BlockID { return f.next }

func (f *memFile) IsWritable(bid forestkv.BlockID) bool {
	return f.next > 0 && bid == f.next-1
}

func (f *memFile) Write(bid forestkv.BlockID, buf []byte) error {
	return f.WriteOffset(bid, 0, buf)
}

func (f *memFile) WriteOffset(bid forestkv.BlockID, off int, buf []byte) error {
	copy(f.blocks[bid][off:], buf)
	return nil
}

func (f *memFile) Read(bid forestkv.BlockID, buf []byte) error {
	copy(buf, f.blocks[bid])
	return nil
}

func (f *memFile) BlockSize() int { return f.blockSize }
func (f *memFile) Lock()          {}
func (f *memFile) Unlock()        {}

func (f *memFile) GetSeqNum() uint64                  { return f.seqnum }
func (f *memFile) SetSeqNum(v uint64)                 { f.seqnum = v }
func (f *memFile) GetFileStatus() forestkv.FileStatus { return f.status }
func (f *memFile) SetRollback(on bool)                { f.rollback = on }
func (f *memFile) IsRollbackOn() bool                 { return f.rollback }

// stubWAL always reports no uncommitted transactions and no pending items,
// unless a test sets otherwise.
type stubWAL struct {
	exists  bool
	inserts map[uint64]uint64
	deletes map[uint64]uint64
}

func (w *stubWAL) TxnExists(forestkv.FileMgr) bool { return w.exists }

func (w *stubWAL) ItemCounts(kvID uint64) (inserts, deletes uint64) {
	return w.inserts[kvID], w.deletes[kvID]
}

// stubTrie records the partitions it was asked to touch, without
// maintaining any real trie state.
type stubTrie struct {
	removed []uint64
}

func (t *stubTrie) FindPartial(kvID uint64, key []byte) ([]byte, error) { return nil, nil }
func (t *stubTrie) InsertPartial(kvID uint64, key, value []byte) error  { return nil }
func (t *stubTrie) RemovePartial(kvID uint64) error {
	t.removed = append(t.removed, kvID)
	return nil
}
