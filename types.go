package forestkv

// types.go declares the identifiers shared between docio and kvstore: block
// addresses and file status, mirroring ceejatec/forestdb's bid_t and
// filemgr status enum (src/docio.c, src/kv_instance.cc).

// BlockID identifies a fixed-size block within a file's linear block
// address space. Block 0 is the first block.
type BlockID uint64

// NoBlock is the sentinel meaning "no block currently allocated", equivalent
// to forestdb's BLK_NOT_FOUND.
const NoBlock BlockID = ^BlockID(0)

// FileStatus mirrors filemgr_get_file_status(): the lifecycle state of a
// file with respect to an in-progress compaction.
type FileStatus int

const (
	// FileStatusNormal is a file with no compaction in progress.
	FileStatusNormal FileStatus = iota
	// FileStatusCompactOld is the source file of an in-progress compaction.
	FileStatusCompactOld
	// FileStatusCompactNew is the destination file of an in-progress compaction.
	FileStatusCompactNew
	// FileStatusRemovedPending is a file kept open only until the last handle closes.
	FileStatusRemovedPending
)

func (s FileStatus) String() string {
	switch s {
	case FileStatusNormal:
		return "normal"
	case FileStatusCompactOld:
		return "compact_old"
	case FileStatusCompactNew:
		return "compact_new"
	case FileStatusRemovedPending:
		return "removed_pending"
	default:
		return "unknown"
	}
}
