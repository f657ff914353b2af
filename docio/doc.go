package docio

// Doc is the in-memory representation of a document: the fields callers
// supply to AppendDoc and receive back from ReadDoc. Body is the
// uncompressed form; compression happens transparently inside AppendDoc /
// ReadDoc according to the handle's Config.Compression.
type Doc struct {
	Key       []byte
	Meta      []byte
	Body      []byte
	Flag      byte
	SeqNum    uint64
	Timestamp uint64
}
