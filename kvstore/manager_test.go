package kvstore

import (
	"errors"
	"testing"

	"github.com/forestkv/forestkv"
	"github.com/forestkv/forestkv/docio"
)

func newTestManager(t *testing.T) (*Manager, *FileHandle, *stubTrie) {
	t.Helper()
	mf := newMemFile(4096)
	h := docio.NewHandle(mf, docio.DefaultConfig(), nil)
	cmp := forestkv.DefaultComparator()
	dir := NewDirectory(cmp)
	trie := &stubTrie{}

	fh := &FileHandle{
		File:  mf,
		DocIO: h,
		Dir:   dir,
		WAL:   &stubWAL{},
		Trie:  trie,
	}
	return NewManager(fh), fh, trie
}

// Invariant 5: Create assigns a fresh ID, persists the directory document,
// and the new store is immediately visible to OpenKVS.
func TestManager_Create_ThenOpen(t *testing.T) {
	m, fh, _ := newTestManager(t)

	kh, err := m.Create("orders", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if kh.ID == DefaultKVSID {
		t.Fatalf("Create assigned the reserved default ID")
	}

	opened, err := m.OpenKVS("orders", nil)
	if err != nil {
		t.Fatalf("OpenKVS: %v", err)
	}
	if opened.ID != kh.ID {
		t.Errorf("OpenKVS ID = %d, want %d", opened.ID, kh.ID)
	}

	reread, err := ReadDirectoryDoc(fh.DocIO, fh.KVInfoOffset(), fh.Dir.DefaultComparator(), nil)
	if err != nil {
		t.Fatalf("ReadDirectoryDoc: %v", err)
	}
	if _, ok := reread.FindByName("orders"); !ok {
		t.Fatalf("persisted directory document missing 'orders'")
	}
}

// Create rejects a duplicate name with ErrInvalidKVInstanceName.
func TestManager_Create_DuplicateName(t *testing.T) {
	m, _, _ := newTestManager(t)

	if _, err := m.Create("orders", nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := m.Create("orders", nil); !errors.Is(err, forestkv.ErrInvalidKVInstanceName) {
		t.Fatalf("second Create: err = %v, want ErrInvalidKVInstanceName", err)
	}
}

// Create fails fast, without mutating the catalog, while rollback is in
// progress.
func TestManager_Create_FailsDuringRollback(t *testing.T) {
	m, fh, _ := newTestManager(t)
	fh.File.SetRollback(true)

	if _, err := m.Create("orders", nil); !errors.Is(err, forestkv.ErrFailByRollback) {
		t.Fatalf("Create during rollback: err = %v, want ErrFailByRollback", err)
	}
	if len(fh.Dir.Names()) != 0 {
		t.Errorf("Create during rollback should not mutate the catalog")
	}
}

// OpenKVS rejects a comparator that does not match the one the store was
// created with.
func TestManager_OpenKVS_ComparatorMismatch(t *testing.T) {
	m, _, _ := newTestManager(t)

	if _, err := m.Create("orders", nil); err != nil {
		t.Fatalf("Create: %v", err)
	}

	mismatched := fakeComparator{name: "not-bytewise"}
	if _, err := m.OpenKVS("orders", mismatched); !errors.Is(err, forestkv.ErrInvalidCmpFunction) {
		t.Fatalf("OpenKVS with mismatched comparator: err = %v, want ErrInvalidCmpFunction", err)
	}
}

type fakeComparator struct{ name string }

func (c fakeComparator) Compare(a, b []byte) int { return 0 }
func (c fakeComparator) Name() string            { return c.name }

// Invariant 6: Remove drops the store from the catalog, calls through to
// the trie to release its partition, and persists the update.
func TestManager_Remove(t *testing.T) {
	m, fh, trie := newTestManager(t)

	kh, err := m.Create("orders", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := m.Remove("orders"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := fh.Dir.FindByName("orders"); ok {
		t.Fatalf("orders still present after Remove")
	}
	if len(trie.removed) != 1 || trie.removed[0] != kh.ID {
		t.Errorf("trie.removed = %v, want [%d]", trie.removed, kh.ID)
	}
}

// Remove of an unknown name returns ErrKVStoreNotFound.
func TestManager_Remove_NotFound(t *testing.T) {
	m, _, _ := newTestManager(t)
	if err := m.Remove("nope"); !errors.Is(err, forestkv.ErrKVStoreNotFound) {
		t.Fatalf("Remove unknown: err = %v, want ErrKVStoreNotFound", err)
	}
}

// Invariant 6 / scenario S5: Remove fails with ErrKVStoreBusy while a
// handle has the store open, without touching the catalog; closing the
// handle and retrying then succeeds.
func TestManager_Remove_BusyWhileOpen(t *testing.T) {
	m, fh, _ := newTestManager(t)

	if _, err := m.Create("orders", nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	kh, err := m.OpenKVS("orders", nil)
	if err != nil {
		t.Fatalf("OpenKVS: %v", err)
	}

	if err := m.Remove("orders"); !errors.Is(err, forestkv.ErrKVStoreBusy) {
		t.Fatalf("Remove while open: err = %v, want ErrKVStoreBusy", err)
	}
	if _, ok := fh.Dir.FindByName("orders"); !ok {
		t.Fatalf("Remove while busy must not touch the catalog")
	}

	if err := m.Close(kh); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := m.Remove("orders"); err != nil {
		t.Fatalf("Remove after Close: %v", err)
	}
}

// Invariant 7 / scenario S5: Rollback fails fast when the WAL reports
// uncommitted transactions, without touching the trie or the directory.
func TestManager_Rollback_FailsByTransaction(t *testing.T) {
	m, fh, trie := newTestManager(t)
	fh.WAL = &stubWAL{exists: true}

	kh, err := m.Create("orders", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := m.Rollback(kh, 0); !errors.Is(err, forestkv.ErrFailByTransaction) {
		t.Fatalf("Rollback: err = %v, want ErrFailByTransaction", err)
	}
	if len(trie.removed) != 0 {
		t.Errorf("Rollback should not touch the trie when it fails by transaction")
	}
}

// Rollback fails fast with ErrNoDBInstance if the requested seqnum is
// ahead of anything the store has ever recorded.
func TestManager_Rollback_FailsBySeqnumAhead(t *testing.T) {
	m, fh, _ := newTestManager(t)

	kh, err := m.Create("orders", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	fh.Dir.SetSeqNum(kh.ID, 5)

	if err := m.Rollback(kh, 6); !errors.Is(err, forestkv.ErrNoDBInstance) {
		t.Fatalf("Rollback with seqnum ahead: err = %v, want ErrNoDBInstance", err)
	}
	if fh.File.IsRollbackOn() {
		t.Errorf("rollback flag should never have been set")
	}
}

// Rollback fails fast with ErrFailByCompaction while a compaction is in
// progress on the file, leaving the rollback flag cleared.
func TestManager_Rollback_FailsByCompaction(t *testing.T) {
	mf := newMemFile(4096)
	h := docio.NewHandle(mf, docio.DefaultConfig(), nil)
	dir := NewDirectory(forestkv.DefaultComparator())
	fh := &FileHandle{File: mf, DocIO: h, Dir: dir, WAL: &stubWAL{}, Trie: &stubTrie{}}
	m := NewManager(fh)

	kh, err := m.Create("orders", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	mf.status = forestkv.FileStatusCompactOld
	if err := m.Rollback(kh, 0); !errors.Is(err, forestkv.ErrFailByCompaction) {
		t.Fatalf("Rollback during compaction: err = %v, want ErrFailByCompaction", err)
	}
	if fh.File.IsRollbackOn() {
		t.Errorf("rollback flag should be cleared after Rollback returns")
	}
}

// Scenario S6: Rollback with no pending transactions resets the store's
// sequence number and persists the updated directory.
func TestManager_Rollback_Succeeds(t *testing.T) {
	m, fh, _ := newTestManager(t)

	kh, err := m.Create("orders", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	fh.Dir.SetSeqNum(kh.ID, 99)

	if err := m.Rollback(kh, 5); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if got := fh.Dir.GetSeqNum(kh.ID, fh.File.GetSeqNum()); got != 5 {
		t.Errorf("SeqNum after rollback = %d, want 5", got)
	}
	if fh.File.IsRollbackOn() {
		t.Errorf("rollback flag should be cleared after Rollback returns")
	}
}

// ListNames and Info reflect the current catalog.
func TestManager_ListNames_Info(t *testing.T) {
	m, _, _ := newTestManager(t)

	if _, err := m.Create("alpha", nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := m.Create("beta", nil); err != nil {
		t.Fatalf("Create: %v", err)
	}

	names := m.ListNames()
	if len(names) != 3 || names[0] != "default" || names[1] != "alpha" || names[2] != "beta" {
		t.Fatalf("ListNames = %v, want [default alpha beta]", names)
	}

	info, err := m.Info("beta")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Name != "beta" {
		t.Errorf("Info.Name = %q, want beta", info.Name)
	}

	defaultInfo, err := m.Info("")
	if err != nil {
		t.Fatalf("Info(\"\"): %v", err)
	}
	if defaultInfo.ID != DefaultKVSID {
		t.Errorf("Info(\"\").ID = %d, want %d", defaultInfo.ID, DefaultKVSID)
	}
}

// Scenario S5: listing names on a freshly opened file (no sub-stores
// created yet) reports only the default store.
func TestManager_ListNames_DefaultOnly(t *testing.T) {
	m, _, _ := newTestManager(t)

	names := m.ListNames()
	if len(names) != 1 || names[0] != "default" {
		t.Fatalf("ListNames = %v, want [default]", names)
	}
}

// Info folds the WAL's pending insert/delete counts into doc_count, and
// computes space_used from datasize and nlivenodes.
func TestManager_Info_DerivedFields(t *testing.T) {
	m, fh, _ := newTestManager(t)

	kh, err := m.Create("orders", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	node, _ := fh.Dir.FindByName("orders")
	node.Stat.NDocs = 10
	node.Stat.DataSize = 2048
	node.Stat.NLiveNodes = 3

	wal := fh.WAL.(*stubWAL)
	wal.inserts = map[uint64]uint64{kh.ID: 4}
	wal.deletes = map[uint64]uint64{kh.ID: 1}

	info, err := m.Info("orders")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.DocCount != 13 {
		t.Errorf("DocCount = %d, want 13 (10 + 4 - 1)", info.DocCount)
	}
	wantSpace := uint64(2048 + 3*fh.File.BlockSize())
	if info.SpaceUsed != wantSpace {
		t.Errorf("SpaceUsed = %d, want %d", info.SpaceUsed, wantSpace)
	}
}

// Info never reports a negative doc_count even if the WAL reports more
// deletes than the store has ever recorded inserts.
func TestManager_Info_DocCountClampedAtZero(t *testing.T) {
	m, fh, _ := newTestManager(t)

	kh, err := m.Create("orders", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	wal := fh.WAL.(*stubWAL)
	wal.deletes = map[uint64]uint64{kh.ID: 5}

	info, err := m.Info("orders")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.DocCount != 0 {
		t.Errorf("DocCount = %d, want 0", info.DocCount)
	}
}

// OpenDefault always resolves to the reserved default ID and the
// directory's default comparator.
func TestManager_OpenDefault(t *testing.T) {
	m, fh, _ := newTestManager(t)

	kh, err := m.OpenDefault()
	if err != nil {
		t.Fatalf("OpenDefault: %v", err)
	}
	if kh.ID != DefaultKVSID {
		t.Errorf("OpenDefault ID = %d, want %d", kh.ID, DefaultKVSID)
	}
	if kh.Cmp == nil || kh.Cmp.Name() != fh.Dir.DefaultComparator().Name() {
		t.Errorf("OpenDefault comparator mismatch")
	}
}
