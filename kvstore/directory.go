// Package kvstore implements the KV-store directory and the file/handle
// manager layered on top of docio (§4.4/§4.5/§4.6): the in-memory catalog
// of sub-stores sharing one file, its big-endian wire encoding, and the
// create/remove/rollback/open lifecycle that keeps catalog and on-disk
// directory document consistent.
//
// Reference: ceejatec/forestdb src/kv_instance.cc.
package kvstore

// directory.go implements the KV directory (C4): the in-memory catalog of
// KvsNode entries for every sub-store sharing one file, indexed by both
// name and ID. The original keeps two intrusive AVL trees (idx_name,
// idx_id); Go has no intrusive tree in the standard library, so this is a
// plain map plus a sorted-name slice kept in order on insert, matching the
// design note that "intrusive lists/trees become explicit container
// types".
//
// Reference: ceejatec/forestdb src/kv_instance.cc (struct kvs_header,
// struct kvs_node, _kvs_cmp_name, _kvs_cmp_id).

import (
	"sort"
	"sync"

	"github.com/forestkv/forestkv"
)

// DefaultKVSID is the reserved ID of the default KV store (the "super
// handle"), never assigned to a named sub-store.
const DefaultKVSID uint64 = 0

const (
	// FlagCustomCmp marks a KvsNode whose store uses a non-default
	// comparator, persisted so a later open can verify the comparator in
	// use still matches.
	FlagCustomCmp uint64 = 0x1
)

// Stat holds the live counters the original keeps inline on kvs_node.stat.
type Stat struct {
	NLiveNodes uint64
	NDocs      uint64
	DataSize   uint64
}

// KvsNode is one catalog entry: a named sub-store sharing the file's
// document space, identified by both its name and its numeric ID.
type KvsNode struct {
	Name      string
	ID        uint64
	SeqNum    uint64
	Stat      Stat
	Flags     uint64
	CustomCmp forestkv.Comparator // nil unless FlagCustomCmp is set
}

// Directory is the in-memory catalog shared by every KV store instance
// opened against one file (kv_header in the original). Guarded by its own
// mutex, acquired strictly after the file mutex and the file-handle lock
// (§5's lock ordering).
type Directory struct {
	mu sync.Mutex

	byName map[string]*KvsNode
	byID   map[uint64]*KvsNode
	names  []string // kept sorted, mirrors idx_name's iteration order

	idCounter uint64 // next ID to assign; 0 is reserved for the default store

	defaultCmp       forestkv.Comparator
	customCmpEnabled bool
}

// NewDirectory returns an empty directory with the default store's
// comparator set to defaultCmp (used for KV ID 0, which has no KvsNode of
// its own — mirroring the original, where the default store's stats live
// directly on the file header, not as a kvs_node).
func NewDirectory(defaultCmp forestkv.Comparator) *Directory {
	return &Directory{
		byName:     make(map[string]*KvsNode),
		byID:       make(map[uint64]*KvsNode),
		idCounter:  1,
		defaultCmp: defaultCmp,
	}
}

// Create inserts a new named sub-store and returns its node. Returns
// ErrInvalidKVInstanceName if the name is already in use.
func (d *Directory) Create(name string, cmp forestkv.Comparator) (*KvsNode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.byName[name]; exists {
		return nil, forestkv.ErrInvalidKVInstanceName
	}

	node := &KvsNode{
		Name: name,
		ID:   d.idCounter,
	}
	d.idCounter++
	if cmp != nil {
		node.Flags |= FlagCustomCmp
		node.CustomCmp = cmp
		d.customCmpEnabled = true
	}

	d.byName[name] = node
	d.byID[node.ID] = node
	i := sort.SearchStrings(d.names, name)
	d.names = append(d.names, "")
	copy(d.names[i+1:], d.names[i:])
	d.names[i] = name

	return node, nil
}

// Remove deletes the named sub-store from the catalog. Returns
// ErrKVStoreNotFound if it does not exist.
func (d *Directory) Remove(name string) (*KvsNode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	node, ok := d.byName[name]
	if !ok {
		return nil, forestkv.ErrKVStoreNotFound
	}
	delete(d.byName, name)
	delete(d.byID, node.ID)
	i := sort.SearchStrings(d.names, name)
	d.names = append(d.names[:i], d.names[i+1:]...)
	return node, nil
}

// FindByName looks up a sub-store by name.
func (d *Directory) FindByName(name string) (*KvsNode, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	node, ok := d.byName[name]
	return node, ok
}

// FindByID looks up a sub-store by ID.
func (d *Directory) FindByID(id uint64) (*KvsNode, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	node, ok := d.byID[id]
	return node, ok
}

// Names returns the sub-store names in sorted order. Does not include the
// default store (ID 0), which has no catalog entry.
func (d *Directory) Names() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// GetSeqNum returns the sequence number for id: the default store's
// counter if id is DefaultKVSID, otherwise the node's own counter.
// defaultSeqNum is read from the FileMgr by the caller, since the default
// store's sequence number is not kept in the directory (it lives on the
// file itself in the original).
func (d *Directory) GetSeqNum(id uint64, defaultSeqNum uint64) uint64 {
	if id == DefaultKVSID {
		return defaultSeqNum
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if node, ok := d.byID[id]; ok {
		return node.SeqNum
	}
	return 0
}

// SetSeqNum sets the sequence number for a non-default sub-store. Callers
// must route writes to the default store (ID 0) through FileMgr.SetSeqNum
// instead.
func (d *Directory) SetSeqNum(id uint64, seqnum uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if node, ok := d.byID[id]; ok {
		node.SeqNum = seqnum
	}
}

// ResetAllStats zeroes every node's Stat, mirroring
// fdb_kvs_header_reset_all_stats (used when cloning a KV header across a
// compaction handoff: counters start fresh in the new file).
func (d *Directory) ResetAllStats() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, node := range d.byID {
		node.Stat = Stat{}
	}
}

// CustomCmpEnabled reports whether any sub-store in the directory uses a
// non-default comparator.
func (d *Directory) CustomCmpEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.customCmpEnabled
}

// DefaultComparator returns the comparator bound to the default store.
func (d *Directory) DefaultComparator() forestkv.Comparator {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.defaultCmp
}

// IDCounter returns the next ID that Create would assign.
func (d *Directory) IDCounter() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.idCounter
}

// setIDCounter is used by the codec when importing a directory document:
// the on-disk id_counter is authoritative over whatever Create calls ran
// before the import (there should be none on a fresh open).
func (d *Directory) setIDCounter(v uint64) {
	d.idCounter = v
}

// insertImported adds node to both indexes without going through Create's
// duplicate-name check or ID assignment, used only while importing a
// directory document whose nodes are already consistent by construction.
func (d *Directory) insertImported(node *KvsNode) {
	d.byName[node.Name] = node
	d.byID[node.ID] = node
	i := sort.SearchStrings(d.names, node.Name)
	d.names = append(d.names, "")
	copy(d.names[i+1:], d.names[i:])
	d.names[i] = node.Name
}
