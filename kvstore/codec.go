package kvstore

// codec.go implements the KV directory's on-disk wire format (§4.5):
//
//	u64 n_kvs
//	u64 id_counter
//	repeat n_kvs times:
//	  u16 name_len          // includes terminating NUL
//	  u8  name[name_len]
//	  u64 id
//	  u64 seqnum
//	  u64 nlivenodes
//	  u64 ndocs
//	  u64 datasize
//	  u64 flags
//
// All integers are big-endian, written field-by-field via
// encoding/binary — never through a struct cast, since Go gives no layout
// guarantee and the original's own struct is packed this exact way only by
// virtue of explicit memcpy calls, not C struct layout either.
//
// Reference: ceejatec/forestdb src/kv_instance.cc
// (_fdb_kvs_header_export, _fdb_kvs_header_import).

import (
	"encoding/binary"
	"fmt"

	"github.com/forestkv/forestkv"
	"github.com/forestkv/forestkv/docio"
)

// directoryDocKey is the document name the directory document is stored
// under, including the trailing NUL the original's strlen(key)+1 keylen
// carries.
const directoryDocKey = "KV_header\x00"

// Export serializes dir's catalog into the wire format above.
func Export(dir *Directory) []byte {
	dir.mu.Lock()
	defer dir.mu.Unlock()

	size := 8 + 8
	for _, name := range dir.names {
		node := dir.byName[name]
		size += 2 + len(node.Name) + 1 + 8 + 8 + 8 + 8 + 8 + 8
	}

	buf := make([]byte, size)
	off := 0
	binary.BigEndian.PutUint64(buf[off:off+8], uint64(len(dir.names)))
	off += 8
	binary.BigEndian.PutUint64(buf[off:off+8], dir.idCounter)
	off += 8

	for _, name := range dir.names {
		node := dir.byName[name]
		nameLen := len(node.Name) + 1 // + trailing NUL

		binary.BigEndian.PutUint16(buf[off:off+2], uint16(nameLen))
		off += 2
		copy(buf[off:off+len(node.Name)], node.Name)
		buf[off+len(node.Name)] = 0
		off += nameLen

		binary.BigEndian.PutUint64(buf[off:off+8], node.ID)
		off += 8
		binary.BigEndian.PutUint64(buf[off:off+8], node.SeqNum)
		off += 8
		binary.BigEndian.PutUint64(buf[off:off+8], node.Stat.NLiveNodes)
		off += 8
		binary.BigEndian.PutUint64(buf[off:off+8], node.Stat.NDocs)
		off += 8
		binary.BigEndian.PutUint64(buf[off:off+8], node.Stat.DataSize)
		off += 8
		binary.BigEndian.PutUint64(buf[off:off+8], node.Flags)
		off += 8
	}

	return buf
}

// Import decodes buf (the body of a directory document) into a fresh
// Directory. cmpResolver resolves the comparator for each imported node
// whose FlagCustomCmp bit is set; nodes without that flag use defaultCmp.
func Import(buf []byte, defaultCmp forestkv.Comparator, cmpResolver forestkv.CmpResolver) (*Directory, error) {
	if len(buf) < 16 {
		return nil, fmt.Errorf("kvstore: directory document too short (%d bytes): %w", len(buf), forestkv.ErrInvalidConfig)
	}

	off := 0
	nKVs := binary.BigEndian.Uint64(buf[off : off+8])
	off += 8
	idCounter := binary.BigEndian.Uint64(buf[off : off+8])
	off += 8

	dir := NewDirectory(defaultCmp)
	dir.setIDCounter(idCounter)

	for i := uint64(0); i < nKVs; i++ {
		if off+2 > len(buf) {
			return nil, fmt.Errorf("kvstore: directory document truncated at entry %d: %w", i, forestkv.ErrInvalidConfig)
		}
		nameLen := int(binary.BigEndian.Uint16(buf[off : off+2]))
		off += 2
		if nameLen < 1 || off+nameLen+48 > len(buf) {
			return nil, fmt.Errorf("kvstore: directory document truncated at entry %d: %w", i, forestkv.ErrInvalidConfig)
		}
		name := string(buf[off : off+nameLen-1]) // drop trailing NUL
		off += nameLen

		id := binary.BigEndian.Uint64(buf[off : off+8])
		off += 8
		seqnum := binary.BigEndian.Uint64(buf[off : off+8])
		off += 8
		nlivenodes := binary.BigEndian.Uint64(buf[off : off+8])
		off += 8
		ndocs := binary.BigEndian.Uint64(buf[off : off+8])
		off += 8
		datasize := binary.BigEndian.Uint64(buf[off : off+8])
		off += 8
		flags := binary.BigEndian.Uint64(buf[off : off+8])
		off += 8

		node := &KvsNode{
			Name:   name,
			ID:     id,
			SeqNum: seqnum,
			Stat: Stat{
				NLiveNodes: nlivenodes,
				NDocs:      ndocs,
				DataSize:   datasize,
			},
			Flags: flags,
		}
		if flags&FlagCustomCmp != 0 {
			dir.customCmpEnabled = true
			if cmpResolver != nil {
				node.CustomCmp = cmpResolver(id)
			}
		}
		dir.insertImported(node)
	}

	return dir, nil
}

// AppendDirectoryDoc serializes dir and writes it as the directory
// document via the per-component writer (so the potentially large
// document is never buffered twice), returning the offset the KV handle
// manager must persist as kv_info_offset.
func AppendDirectoryDoc(h *docio.Handle, dir *Directory) (uint64, error) {
	body := Export(dir)
	return h.AppendDocSystem(docio.Doc{
		Key:  []byte(directoryDocKey),
		Body: body,
	})
}

// ReadDirectoryDoc reads the directory document at offset and imports it.
func ReadDirectoryDoc(h *docio.Handle, offset uint64, defaultCmp forestkv.Comparator, cmpResolver forestkv.CmpResolver) (*Directory, error) {
	doc, err := h.ReadDoc(offset)
	if err != nil {
		return nil, fmt.Errorf("kvstore: reading directory document at offset %d: %w", offset, err)
	}
	return Import(doc.Body, defaultCmp, cmpResolver)
}
