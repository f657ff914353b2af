package docio

// reader.go implements the DocIO reader (§4.3): ReadDoc, ReadDocKey, and
// ReadDocKeyMeta walk a document's header, key, optional metadata, and
// optional body starting at a caller-supplied offset, transparently
// crossing block boundaries through the one-block read-through cache
// (§4.1). CRCMode verifies the trailing CRC word; a mismatch is reported
// as ErrCRCMismatch rather than silently returning corrupt data.
//
// Reference: ceejatec/forestdb src/docio.c (docio_read_doc,
// docio_read_doc_key, docio_read_doc_key_meta, _docio_read_through_buffer).

import (
	"encoding/binary"
	"fmt"

	"github.com/forestkv/forestkv"
	"github.com/forestkv/forestkv/internal/checksum"
	"github.com/forestkv/forestkv/internal/compression"
)

// cursor walks forward through a file's blocks one payload region (P bytes)
// at a time, re-filling the handle's read-through cache as it crosses a
// block boundary.
type cursor struct {
	h   *Handle
	bid forestkv.BlockID
	pos int
}

func (h *Handle) newCursor(offset uint64) (cursor, error) {
	blockSize := h.config.BlockSize
	bid := forestkv.BlockID(offset / uint64(blockSize))
	pos := int(offset % uint64(blockSize))
	if err := h.readThroughBlock(bid); err != nil {
		return cursor{}, err
	}
	return cursor{h: h, bid: bid, pos: pos}, nil
}

// marker reports the block marker of the block the cursor currently sits
// in. Callers check this once, at the document header's starting block,
// to detect a read at an offset that does not point at a document.
func (c *cursor) marker() BlockMarker {
	return markerAt(c.h.readbuffer, c.h.config.BlockSize)
}

// readInto fills dst, advancing across block boundaries as needed.
func (c *cursor) readInto(dst []byte) error {
	P := c.h.config.effectivePayload()
	n := len(dst)
	off := 0
	for off < n {
		if c.pos >= P {
			c.bid++
			c.pos = 0
			if err := c.h.readThroughBlock(c.bid); err != nil {
				return err
			}
		}
		chunk := P - c.pos
		if chunk > n-off {
			chunk = n - off
		}
		copy(dst[off:off+chunk], c.h.readbuffer[c.pos:c.pos+chunk])
		c.pos += chunk
		off += chunk
	}
	return nil
}

// offset returns the absolute file offset the cursor is currently at.
func (c *cursor) offset() uint64 {
	return uint64(c.bid)*uint64(c.h.config.BlockSize) + uint64(c.pos)
}

// ReadDocKey reads only the header and key at offset, leaving Meta and Body
// unset. Used by index/iteration paths that only need to compare keys.
func (h *Handle) ReadDocKey(offset uint64) (Doc, error) {
	hdr, key, _, err := h.readHeaderAndKey(offset)
	if err != nil {
		return Doc{}, err
	}
	return Doc{
		Key:       key,
		Flag:      hdr.Flag,
		SeqNum:    hdr.SeqNum,
		Timestamp: hdr.Timestamp,
	}, nil
}

// ReadDocKeyMeta reads the header, key, and metadata at offset, leaving
// Body unset. Used by compaction and rollback scans that need metadata
// (e.g. the deletion flag) but not the (possibly large, compressed) body.
func (h *Handle) ReadDocKeyMeta(offset uint64) (Doc, error) {
	hdr, key, c, err := h.readHeaderAndKey(offset)
	if err != nil {
		return Doc{}, err
	}
	meta := make([]byte, hdr.MetaLen)
	if err := c.readInto(meta); err != nil {
		return Doc{}, err
	}
	return Doc{
		Key:       key,
		Meta:      meta,
		Flag:      hdr.Flag,
		SeqNum:    hdr.SeqNum,
		Timestamp: hdr.Timestamp,
	}, nil
}

// ReadDoc reads the full document at offset: header, key, metadata, and
// body, verifying the CRC (if CRCMode) and decompressing the body (if
// Compression is enabled).
func (h *Handle) ReadDoc(offset uint64) (Doc, error) {
	hdr, key, c, err := h.readHeaderAndKey(offset)
	if err != nil {
		return Doc{}, err
	}

	meta := make([]byte, hdr.MetaLen)
	if err := c.readInto(meta); err != nil {
		return Doc{}, err
	}
	body := make([]byte, hdr.BodyLen)
	if err := c.readInto(body); err != nil {
		return Doc{}, err
	}

	if h.config.CRCMode {
		crcBuf := make([]byte, CRCSize)
		if err := c.readInto(crcBuf); err != nil {
			return Doc{}, err
		}
		want := binary.BigEndian.Uint32(crcBuf)

		hdrBuf := make([]byte, HeaderSize)
		hdr.Encode(hdrBuf)
		got := checksum.Value(hdrBuf)
		got = checksum.Extend(got, key)
		got = checksum.Extend(got, meta)
		got = checksum.Extend(got, body)
		if got != want {
			return Doc{}, fmt.Errorf("docio: document at offset %d: %w", offset, forestkv.ErrCRCMismatch)
		}
	}

	if h.config.Compression != compression.NoCompression && len(body) > 0 {
		decompressed, err := compression.Decompress(h.config.Compression, body)
		if err != nil {
			return Doc{}, fmt.Errorf("docio: document at offset %d: %w", offset, err)
		}
		body = decompressed
	}

	return Doc{
		Key:       key,
		Meta:      meta,
		Body:      body,
		Flag:      hdr.Flag,
		SeqNum:    hdr.SeqNum,
		Timestamp: hdr.Timestamp,
	}, nil
}

// readHeaderAndKey is the common prefix of all three read paths: position a
// cursor at offset, reject a non-document block, and read the header and
// key. It returns the live cursor so the caller can continue reading meta
// and/or body from exactly where it left off.
func (h *Handle) readHeaderAndKey(offset uint64) (Header, []byte, cursor, error) {
	c, err := h.newCursor(offset)
	if err != nil {
		return Header{}, nil, cursor{}, err
	}
	if h.config.CRCMode && c.marker() != MarkerDoc {
		return Header{}, nil, cursor{}, fmt.Errorf("docio: offset %d: %w", offset, forestkv.ErrNotADocument)
	}

	hdrBuf := make([]byte, HeaderSize)
	if err := c.readInto(hdrBuf); err != nil {
		return Header{}, nil, cursor{}, err
	}
	hdr := DecodeHeader(hdrBuf)

	key := make([]byte, hdr.KeyLen)
	if err := c.readInto(key); err != nil {
		return Header{}, nil, cursor{}, err
	}
	return hdr, key, c, nil
}
