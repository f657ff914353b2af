package docio

// header.go implements the fixed document header described in §3: a stable
// wire contract encoded explicitly field-by-field in big-endian, never via
// a Go struct cast (Go gives no layout guarantee). The header is 32 bytes
// on disk: keylen(2) + metalen(2) + bodylen(4) + flag(1) + 7 reserved
// padding bytes + seqnum(8) + timestamp(8). The 7-byte gap mirrors the
// natural alignment padding of the original C struct (flag's uint8_t is
// followed by padding so seqnum's uint64_t lands on an 8-byte boundary);
// this module keeps it as an explicit reserved field rather than leaving
// it to chance, matching §8 scenario S1's documented curpos arithmetic
// (header 32 bytes).
//
// Reference: ceejatec/forestdb src/docio.c (struct docio_length), design
// note "Big-endian integer encoding on disk is explicit at every field".

import "encoding/binary"

// HeaderSize is the on-disk size in bytes of the fixed document header.
const HeaderSize = 32

// CRCSize is the on-disk size in bytes of the trailing CRC word, present
// iff the handle's Config.CRCMode is enabled.
const CRCSize = 4

const headerReservedSize = HeaderSize - (2 + 2 + 4 + 1 + 8 + 8)

// Header is the fixed-size portion of a document, exactly as laid out on
// disk (§3).
type Header struct {
	KeyLen    uint16
	MetaLen   uint16
	BodyLen   uint32
	Flag      byte
	SeqNum    uint64
	Timestamp uint64
}

// Encode writes h into dst, which must be at least HeaderSize bytes.
func (h Header) Encode(dst []byte) {
	binary.BigEndian.PutUint16(dst[0:2], h.KeyLen)
	binary.BigEndian.PutUint16(dst[2:4], h.MetaLen)
	binary.BigEndian.PutUint32(dst[4:8], h.BodyLen)
	dst[8] = h.Flag
	reservedStart := 9
	for i := 0; i < headerReservedSize; i++ {
		dst[reservedStart+i] = 0
	}
	seqOff := reservedStart + headerReservedSize
	binary.BigEndian.PutUint64(dst[seqOff:seqOff+8], h.SeqNum)
	binary.BigEndian.PutUint64(dst[seqOff+8:seqOff+16], h.Timestamp)
}

// DecodeHeader reads a Header from src, which must be at least HeaderSize bytes.
func DecodeHeader(src []byte) Header {
	reservedStart := 9
	seqOff := reservedStart + headerReservedSize
	return Header{
		KeyLen:    binary.BigEndian.Uint16(src[0:2]),
		MetaLen:   binary.BigEndian.Uint16(src[2:4]),
		BodyLen:   binary.BigEndian.Uint32(src[4:8]),
		Flag:      src[8],
		SeqNum:    binary.BigEndian.Uint64(src[seqOff : seqOff+8]),
		Timestamp: binary.BigEndian.Uint64(src[seqOff+8 : seqOff+16]),
	}
}
