package docio

// writer.go implements the DocIO writer (§4.2): AppendDoc assembles a whole
// document into one contiguous buffer (compressing the body and computing
// the CRC first) and lays it into blocks via appendRaw; AppendDocSystem
// writes a document one component at a time (used by the KV directory
// codec, §4.5) without ever buffering the whole thing.
//
// Reference: ceejatec/forestdb src/docio.c (docio_append_doc,
// docio_append_doc_raw, docio_append_doc_ / _docio_append_doc_component).

import (
	"encoding/binary"

	"github.com/forestkv/forestkv"
	"github.com/forestkv/forestkv/internal/checksum"
	"github.com/forestkv/forestkv/internal/compression"
)

// AppendDoc serializes doc (compressing the body per Config.Compression and
// appending a CRC per Config.CRCMode) and appends it to the file, returning
// the byte offset of the first byte written.
func (h *Handle) AppendDoc(doc Doc) (uint64, error) {
	body := doc.Body
	bodyLen := len(body)
	if h.config.Compression != compression.NoCompression && bodyLen > 0 {
		compressed, err := compression.Compress(h.config.Compression, body)
		if err != nil {
			return 0, err
		}
		body = compressed
		bodyLen = len(body)
	}

	hdr := Header{
		KeyLen:    uint16(len(doc.Key)),
		MetaLen:   uint16(len(doc.Meta)),
		BodyLen:   uint32(bodyLen),
		Flag:      doc.Flag,
		SeqNum:    doc.SeqNum,
		Timestamp: doc.Timestamp,
	}

	docsize := HeaderSize + len(doc.Key) + len(doc.Meta) + bodyLen
	if h.config.CRCMode {
		docsize += CRCSize
	}

	buf := make([]byte, docsize)
	off := 0
	hdr.Encode(buf[off : off+HeaderSize])
	off += HeaderSize
	off += copy(buf[off:], doc.Key)
	off += copy(buf[off:], doc.Meta)
	off += copy(buf[off:], body)

	if h.config.CRCMode {
		crc := checksum.Value(buf[:off])
		binary.BigEndian.PutUint32(buf[off:off+CRCSize], crc)
	}

	offset, err := h.appendRaw(buf)
	if err != nil {
		return 0, err
	}
	return offset, nil
}

// appendRaw lays size bytes of buf into blocks (§4.2's append_raw
// algorithm), returning the offset of the first byte written.
func (h *Handle) appendRaw(buf []byte) (uint64, error) {
	size := len(buf)
	P := h.config.effectivePayload()
	blockSize := h.config.BlockSize

	if h.curblock == forestkv.NoBlock || !h.file.IsWritable(h.curblock) {
		bid, err := h.file.Alloc()
		if err != nil {
			return 0, err
		}
		h.curblock = bid
		h.curpos = 0
	}

	if size <= P-h.curpos {
		// Case "fits": simply append to current block.
		off := h.curpos
		if err := h.file.WriteOffset(h.curblock, off, buf); err != nil {
			return 0, err
		}
		if err := h.stampCurrentBlock(); err != nil {
			return 0, err
		}
		h.curpos += size
		return uint64(h.curblock)*uint64(blockSize) + uint64(off), nil
	}

	// Case "spans": the document does not fit in the current block.
	nblock := size / P
	remain := size % P

	var begin, end forestkv.BlockID
	var startOffset uint64
	var bufOffset int
	remainSize := size

	continueFromCurrent := h.config.BlockAlign &&
		remain <= P-h.curpos &&
		h.file.GetNextAllocBlock() == h.curblock+1

	if !h.config.BlockAlign {
		// Simple-append mode: always continue from the current block if
		// nothing else interleaved an allocation.
		continueFromCurrent = h.file.GetNextAllocBlock() == h.curblock+1
	}

	if continueFromCurrent {
		tail := P - h.curpos
		extra := nblock
		if remain > tail {
			extra++
		}
		var err error
		begin, end, err = h.file.AllocMultiple(extra)
		if err != nil {
			return 0, err
		}
		if tail > 0 {
			if err := h.file.WriteOffset(h.curblock, h.curpos, buf[:tail]); err != nil {
				return 0, err
			}
		}
		if err := h.stampCurrentBlock(); err != nil {
			return 0, err
		}
		remainSize -= tail
		bufOffset = tail
		startOffset = uint64(h.curblock)*uint64(blockSize) + uint64(h.curpos)
	} else {
		extra := nblock
		if remain > 0 {
			extra++
		}
		var err error
		begin, end, err = h.file.AllocMultiple(extra)
		if err != nil {
			return 0, err
		}
		bufOffset = 0
		startOffset = uint64(begin) * uint64(blockSize)
	}

	for bid := begin; bid <= end; bid++ {
		h.curblock = bid
		if remainSize >= P {
			if err := h.file.WriteOffset(bid, 0, buf[bufOffset:bufOffset+P]); err != nil {
				return 0, err
			}
			if err := h.stampMarkerOn(bid); err != nil {
				return 0, err
			}
			bufOffset += P
			remainSize -= P
			h.curpos = P
		} else {
			if err := h.file.WriteOffset(bid, 0, buf[bufOffset:bufOffset+remainSize]); err != nil {
				return 0, err
			}
			if err := h.stampMarkerOn(bid); err != nil {
				return 0, err
			}
			bufOffset += remainSize
			h.curpos = remainSize
		}
	}

	return startOffset, nil
}

func (h *Handle) stampCurrentBlock() error {
	return h.stampMarkerOn(h.curblock)
}

func (h *Handle) stampMarkerOn(bid forestkv.BlockID) error {
	if !h.config.CRCMode {
		return nil
	}
	return h.file.WriteOffset(bid, h.config.effectivePayload(), markerBytes(MarkerDoc))
}
