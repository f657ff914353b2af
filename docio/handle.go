package docio

// handle.go implements the per-file DocIO handle (§3) and the one-block
// read-through cache (§4.1): read_block_through_cache is the only read
// path DocIO uses, exploiting locality of the several small reads a single
// document component walk performs within one block.
//
// Reference: ceejatec/forestdb src/docio.c (docio_init, docio_free,
// _docio_read_through_buffer).

import (
	"github.com/forestkv/forestkv"
	"github.com/forestkv/forestkv/internal/logging"
)

// Handle is a per-open-file DocIO handle. Not safe for concurrent use: the
// one-block readbuffer is shared mutable state, so callers must confine a
// handle to one goroutine (§5).
type Handle struct {
	file   forestkv.FileMgr
	config Config
	log    logging.Logger

	curblock forestkv.BlockID // block currently being filled, or NoBlock
	curpos   int              // next free byte in curblock's payload region

	lastbid    forestkv.BlockID // block cached in readbuffer, or NoBlock
	readbuffer []byte
}

// NewHandle opens a DocIO handle over file. log may be nil, in which case
// logging is discarded.
func NewHandle(file forestkv.FileMgr, config Config, log logging.Logger) *Handle {
	log = logging.OrDefault(log)
	return &Handle{
		file:       file,
		config:     config,
		log:        log,
		curblock:   forestkv.NoBlock,
		lastbid:    forestkv.NoBlock,
		readbuffer: make([]byte, config.BlockSize),
	}
}

// Close releases the handle's read-through buffer. Safe to call once.
func (h *Handle) Close() {
	h.readbuffer = nil
}

// readThroughBlock implements the one-block cache: a no-op if bid is
// already cached, otherwise a single FileMgr.Read that replaces the cache.
func (h *Handle) readThroughBlock(bid forestkv.BlockID) error {
	if h.lastbid == bid {
		return nil
	}
	if err := h.file.Read(bid, h.readbuffer); err != nil {
		return err
	}
	h.lastbid = bid
	return nil
}

// invalidateCurblock forces the next write to allocate a fresh block,
// e.g. after a fresh-start spanning write leaves curblock in a state the
// caller should not continue writing into component-wise.
func (h *Handle) invalidateCurblock() {
	h.curblock = forestkv.NoBlock
	h.curpos = 0
}
