/*
Package forestkv provides the shared types that tie the document I/O layer
(package docio) to the KV-store directory and handle manager (package
kvstore): block identifiers, the FileMgr/WAL/HBTrie collaborator interfaces,
the key Comparator interface, and the stable error code enum surfaced by the
handle manager.

forestkv implements the core of an append-only, block-structured document
storage engine modeled on ForestDB: many logical key/value stores coexisting
inside a single on-disk file, each document serialized into fixed-size
blocks with an optional per-document CRC and body compression.

The block-allocating file manager, the write-ahead log, the HB+trie index
and transaction/commit orchestration are external collaborators; this module
consumes them only through the interfaces declared here. internal/filemgr
ships a reference FileMgr implementation sized for tests.

# Concurrency

Handles follow the lock ordering: file mutex, then file-handle lock, then
kv_header lock. Never acquire them in the reverse order. A docio.Handle's
read-through buffer is not safe for concurrent use; confine a handle to one
goroutine or serialize access externally.

Reference: ceejatec/forestdb src/docio.c, src/kv_instance.cc.
*/
package forestkv
