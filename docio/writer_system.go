package docio

// writer_system.go implements the per-component append path (§4.2's "Per-
// component variant"): a document is written in up to five calls — header,
// key, meta, body, and (if CRCMode) a trailing CRC word — without ever
// buffering the whole document. The KV directory codec (§4.5) is the sole
// caller; it is the one document large enough, and written often enough, to
// make the extra buffering of AppendDoc worth avoiding.
//
// Per this module's resolution of the design's open question on marker
// stamping (see SPEC_FULL.md §9): the two writer paths are unified rather
// than kept bit-compatible with the literal C reference, so every call
// here stamps block markers on every block it touches, exactly like
// AppendDoc / appendRaw. A build that needs binary compatibility with a
// pre-existing forestdb file must NOT use this unified behavior as-is.
//
// The spanning decision (whether the document crosses a block boundary, and
// whether it continues from the current block or starts fresh) is made once,
// from the whole document's size, at the first (header) call — exactly as
// the C reference's DOCIO_CHECK_ALIGN mode intends. But the C reference then
// reuses that same size to bound the actual byte copy in every subsequent
// call, which only ever holds one component's bytes; for any document larger
// than a single block, that copies past the end of the component buffer (a
// silent overread in C, a slice-bounds panic in Go). This module keeps the
// size-driven spanning *decision* but drives every *write* strictly off the
// component buffer actually in hand, via the shared cursor in writeSpanning.
//
// Reference: ceejatec/forestdb src/docio.c (_docio_append_doc_component,
// DOCIO_CHECK_ALIGN / DOCIO_SIMPLY_APPEND).

import (
	"encoding/binary"

	"github.com/forestkv/forestkv"
	"github.com/forestkv/forestkv/internal/checksum"
)

type appendMode int

const (
	// checkAlign computes the whole document's size up front and decides
	// spanning/block-align behavior from it. Used for the first component.
	checkAlign appendMode = iota
	// simplyAppend continues writing from wherever the cursor is left,
	// reusing whatever spanning decision the first call already made.
	// Used for every component after the first.
	simplyAppend
)

// systemWriter threads the running offset/basis-size state across the
// several per-component calls that make up one AppendDocSystem call.
type systemWriter struct {
	h        *Handle
	docsize  int  // total size of the document being built, fixed at the first call
	spanning bool // true once the document has been committed to a multi-block run
}

// AppendDocSystem writes doc one component at a time: header, key,
// meta (if present), body (if present; compression is NOT applied here —
// system documents, i.e. the KV directory, are always written uncompressed
// per §4.5), and a trailing CRC word (if Config.CRCMode). Returns the offset
// of the first byte written (the header).
func (h *Handle) AppendDocSystem(doc Doc) (uint64, error) {
	hdr := Header{
		KeyLen:    uint16(len(doc.Key)),
		MetaLen:   uint16(len(doc.Meta)),
		BodyLen:   uint32(len(doc.Body)),
		Flag:      doc.Flag,
		SeqNum:    doc.SeqNum,
		Timestamp: doc.Timestamp,
	}
	docsize := HeaderSize + len(doc.Key) + len(doc.Meta) + len(doc.Body)
	if h.config.CRCMode {
		docsize += CRCSize
	}
	w := &systemWriter{h: h, docsize: docsize}

	hdrBuf := make([]byte, HeaderSize)
	hdr.Encode(hdrBuf)

	offset, err := w.appendComponent(hdrBuf, checkAlign)
	if err != nil {
		return 0, err
	}

	var crc uint32
	if h.config.CRCMode {
		crc = checksum.Value(hdrBuf)
	}

	if len(doc.Key) > 0 {
		if _, err := w.appendComponent(doc.Key, simplyAppend); err != nil {
			return 0, err
		}
	}
	if h.config.CRCMode {
		crc = checksum.Extend(crc, doc.Key)
	}

	if len(doc.Meta) > 0 {
		if _, err := w.appendComponent(doc.Meta, simplyAppend); err != nil {
			return 0, err
		}
	}
	if h.config.CRCMode {
		crc = checksum.Extend(crc, doc.Meta)
	}

	if len(doc.Body) > 0 {
		if _, err := w.appendComponent(doc.Body, simplyAppend); err != nil {
			return 0, err
		}
	}
	if h.config.CRCMode {
		crc = checksum.Extend(crc, doc.Body)
		crcBuf := make([]byte, CRCSize)
		binary.BigEndian.PutUint32(crcBuf, crc)
		if _, err := w.appendComponent(crcBuf, simplyAppend); err != nil {
			return 0, err
		}
	}

	return offset, nil
}

// appendComponent writes one component of the document. Under checkAlign
// (the header, always the first call) it allocates a fresh block if the
// current one is no longer writable and decides once, from the whole
// document's size, whether the document spans multiple blocks; every call
// after that — including this one — writes strictly within buf's own
// bounds via writeComponent, continuing from the cursor.
func (w *systemWriter) appendComponent(buf []byte, mode appendMode) (uint64, error) {
	h := w.h
	P := h.config.effectivePayload()

	if mode == checkAlign && (h.curblock == forestkv.NoBlock || !h.file.IsWritable(h.curblock)) {
		bid, err := h.file.Alloc()
		if err != nil {
			return 0, err
		}
		h.curblock = bid
		h.curpos = 0
	}

	if mode == checkAlign && w.docsize > P-h.curpos {
		if err := w.beginSpan(); err != nil {
			return 0, err
		}
	}

	return w.writeComponent(buf)
}

// beginSpan allocates the block run the whole document needs (mirroring
// appendRaw's spanning branch, with basisSize the document's total size),
// and switches the writer into spanning mode. It never writes any bytes
// itself — writeComponent does that, for every component, off the cursor
// this leaves behind.
func (w *systemWriter) beginSpan() error {
	h := w.h
	P := h.config.effectivePayload()

	basisSize := w.docsize
	nblock := basisSize / P
	remain := basisSize % P

	continueFromCurrent := h.file.GetNextAllocBlock() == h.curblock+1
	if h.config.BlockAlign {
		continueFromCurrent = continueFromCurrent && remain <= P-h.curpos
	}

	if continueFromCurrent {
		tail := P - h.curpos
		extra := nblock
		if remain > tail {
			extra++
		}
		if _, _, err := h.file.AllocMultiple(extra); err != nil {
			return err
		}
	} else {
		extra := nblock
		if remain > 0 {
			extra++
		}
		begin, _, err := h.file.AllocMultiple(extra)
		if err != nil {
			return err
		}
		h.curblock = begin
		h.curpos = 0
	}
	w.spanning = true
	return nil
}

// writeComponent writes buf at the handle's current cursor. Before the
// document is known to span blocks, this is a single in-place write (buf is
// guaranteed to fit, since docsize already accounted for every component).
// Once spanning has begun, it defers to writeSpanning, which crosses block
// boundaries using only buf's own length.
func (w *systemWriter) writeComponent(buf []byte) (uint64, error) {
	h := w.h
	if !w.spanning {
		off := h.curpos
		if err := h.file.WriteOffset(h.curblock, off, buf); err != nil {
			return 0, err
		}
		if err := h.stampCurrentBlock(); err != nil {
			return 0, err
		}
		h.curpos += len(buf)
		return uint64(h.curblock)*uint64(h.config.BlockSize) + uint64(off), nil
	}
	return h.writeSpanning(buf)
}

// writeSpanning copies buf into the file starting at the handle's current
// cursor, crossing into the next block of the already-allocated run
// whenever the current one fills, stamping each block it touches. Unlike
// the literal C reference, the chunk sizes here are always derived from
// len(buf) — the bytes actually in hand — never from an unrelated
// document-wide size.
func (h *Handle) writeSpanning(buf []byte) (uint64, error) {
	P := h.config.effectivePayload()
	blockSize := h.config.BlockSize

	n := len(buf)
	off := 0
	var startOffset uint64
	first := true

	for off < n {
		if h.curpos >= P {
			h.curblock++
			h.curpos = 0
		}
		if first {
			startOffset = uint64(h.curblock)*uint64(blockSize) + uint64(h.curpos)
			first = false
		}
		chunk := P - h.curpos
		if chunk > n-off {
			chunk = n - off
		}
		if err := h.file.WriteOffset(h.curblock, h.curpos, buf[off:off+chunk]); err != nil {
			return 0, err
		}
		if err := h.stampCurrentBlock(); err != nil {
			return 0, err
		}
		h.curpos += chunk
		off += chunk
	}

	return startOffset, nil
}
