package forestkv

// comparator.go implements key comparison for KV stores.
//
// Comparator defines the total ordering over keys within one KV store.
// The default is bytewise comparison. A KV store opened with a custom
// comparator records that fact on disk (KvsNode.Flags) so later reopens can
// detect a mismatch (see kvstore.Manager's comparator consistency check).
//
// Reference: ceejatec/forestdb src/kv_instance.cc (fdb_kvs_cmp_check,
// fdb_kvs_find_cmp_chunk); RocksDB v10.7.5 include/rocksdb/comparator.h for
// the Go interface shape.

import "bytes"

// Comparator defines a total ordering over keys.
type Comparator interface {
	// Compare returns a value < 0 if a < b, 0 if a == b, > 0 if a > b.
	Compare(a, b []byte) int

	// Name returns the name of the comparator. Used for diagnostics only;
	// unlike RocksDB this module does not persist the name, it persists a
	// single bit (KVS_FLAG_CUSTOM_CMP) recording whether a custom
	// comparator was bound at all.
	Name() string
}

// BytewiseComparator is the default comparator that compares keys lexicographically.
type BytewiseComparator struct{}

// Compare compares two keys lexicographically.
func (c BytewiseComparator) Compare(a, b []byte) int {
	return bytes.Compare(a, b)
}

// Name returns the comparator name.
func (c BytewiseComparator) Name() string {
	return "forestkv.BytewiseComparator"
}

// DefaultComparator returns the default bytewise comparator.
func DefaultComparator() Comparator {
	return BytewiseComparator{}
}
