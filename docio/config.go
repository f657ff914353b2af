// Package docio implements the document I/O layer: serializing variable
// length documents (key, optional metadata, optional body, optional CRC and
// body compression) into a fixed block-size file, including documents that
// span multiple blocks, and reading them back at a caller-supplied offset.
//
// The on-disk format and algorithms here are grounded on
// ceejatec/forestdb's src/docio.c. Compile-time feature flags in that
// source (__CRC32, _DOC_COMP, DOCIO_BLOCK_ALIGN) become the runtime Config
// below, per this module's design notes.
package docio

import "github.com/forestkv/forestkv/internal/compression"

// Config holds the runtime toggles a docio.Handle needs. Unlike the
// original C implementation's compile-time flags, a single build can open
// files written under any configuration as long as the caller supplies a
// matching Config (compression codec is not self-describing on disk; see
// Config.Compression).
type Config struct {
	// BlockSize is B, the fixed block size in bytes, constant for the
	// file's lifetime.
	BlockSize int

	// CRCMode enables the trailing block marker and the per-document CRC
	// word. When false the whole block is usable payload and no CRC is
	// appended.
	CRCMode bool

	// Compression selects the body codec. NoCompression disables compression.
	// The codec is a property of the handle, not of the document: a file
	// must always be reopened with the codec it was written with.
	Compression compression.Type

	// BlockAlign enables the optional block-alignment policy described in
	// the design: the writer may decline to start a spanning document in
	// the current block to avoid an awkward split, instead starting fresh
	// on a block boundary. Default false ("simple append").
	BlockAlign bool
}

// DefaultConfig returns the configuration matching forestdb's historical
// defaults: 4KB blocks, CRC enabled, no compression, simple append.
func DefaultConfig() Config {
	return Config{
		BlockSize:   4096,
		CRCMode:     true,
		Compression: compression.NoCompression,
		BlockAlign:  false,
	}
}

// blockMarkerSize is M, the trailing marker size in bytes, per §3 of the
// design (typically 1).
const blockMarkerSize = 1

// effectivePayload returns B or B-M depending on CRC mode (§4.1).
func (c Config) effectivePayload() int {
	if c.CRCMode {
		return c.BlockSize - blockMarkerSize
	}
	return c.BlockSize
}
