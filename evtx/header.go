package evtx

import (
	"fmt"

	"evtxlink/binxml"
)

const (
	fileHeaderSize  = 4096
	chunkSize       = 65536
	chunkHeaderSize = 512
	stringBuckets   = 64
	templateSlots   = 32
)

var (
	fileMagic  = [8]byte{'E', 'l', 'f', 'F', 'i', 'l', 'e', 0x00}
	chunkMagic = [8]byte{'E', 'l', 'f', 'C', 'h', 'n', 'k', 0x00}
)

// FileHeader is the fixed-size header at offset 0 of an EVTX file.
type FileHeader struct {
	FirstChunkNumber uint64
	LastChunkNumber  uint64
	NextRecordID     uint64
	HeaderSize       uint32
	MinorVersion     uint16
	MajorVersion     uint16
	HeaderBlockSize  uint16
	ChunkCount       uint16
	Flags            uint32
	CRC32            uint32
}

// ReadFileHeader parses the 4 KiB file header, grounded on the field order
// of igevtx's evtxHeader struct (other_examples), re-expressed as explicit
// sequential reads instead of a single binary.Read into a packed struct.
func ReadFileHeader(r *binxml.Reader) (FileHeader, error) {
	var h FileHeader

	magic, err := r.ReadBytes(8)
	if err != nil {
		return h, err
	}
	if string(magic) != string(fileMagic[:]) {
		return h, fmt.Errorf("%w: magic %q", ErrBadFileHeader, magic)
	}
	if h.FirstChunkNumber, err = r.ReadU64(); err != nil {
		return h, err
	}
	if h.LastChunkNumber, err = r.ReadU64(); err != nil {
		return h, err
	}
	if h.NextRecordID, err = r.ReadU64(); err != nil {
		return h, err
	}
	if h.HeaderSize, err = r.ReadU32(); err != nil {
		return h, err
	}
	if h.MinorVersion, err = r.ReadU16(); err != nil {
		return h, err
	}
	if h.MajorVersion, err = r.ReadU16(); err != nil {
		return h, err
	}
	if h.HeaderBlockSize, err = r.ReadU16(); err != nil {
		return h, err
	}
	if h.ChunkCount, err = r.ReadU16(); err != nil {
		return h, err
	}
	if _, err = r.ReadBytes(76); err != nil { // reserved
		return h, err
	}
	if h.Flags, err = r.ReadU32(); err != nil {
		return h, err
	}
	if h.CRC32, err = r.ReadU32(); err != nil {
		return h, err
	}
	return h, nil
}

// ChunkHeader is the 512-byte header at the start of each 64 KiB chunk.
type ChunkHeader struct {
	FirstRecordNumber uint64
	LastRecordNumber  uint64
	FirstEventRecID   uint64
	LastEventRecID    uint64
	HeaderSize        uint32
	LastRecordOffset  uint32
	FreeSpaceOffset   uint32
	EventDataCRC32    uint32
	Flags             uint32
	ChunkCRC32        uint32

	// StringBucketOffsets are chunk-local byte offsets into the string
	// table, indexed by hash bucket.
	StringBucketOffsets [stringBuckets]uint32
	// TemplateSlotOffsets are chunk-local byte offsets into the template
	// table.
	TemplateSlotOffsets [templateSlots]uint32
}

// ReadChunkHeader parses a chunk's 512-byte header. r must be positioned at
// the start of the chunk. empty reports a chunk whose magic is all-zero
// (unused trailing chunk in a preallocated file), which the caller should
// skip rather than treat as an error.
func ReadChunkHeader(r *binxml.Reader) (hdr ChunkHeader, empty bool, err error) {
	magic, err := r.ReadBytes(8)
	if err != nil {
		return hdr, false, err
	}
	if allZero(magic) {
		return hdr, true, nil
	}
	if string(magic) != string(chunkMagic[:]) {
		return hdr, false, fmt.Errorf("%w: magic %q", ErrBadChunkHeader, magic)
	}
	if hdr.FirstRecordNumber, err = r.ReadU64(); err != nil {
		return hdr, false, err
	}
	if hdr.LastRecordNumber, err = r.ReadU64(); err != nil {
		return hdr, false, err
	}
	if hdr.FirstEventRecID, err = r.ReadU64(); err != nil {
		return hdr, false, err
	}
	if hdr.LastEventRecID, err = r.ReadU64(); err != nil {
		return hdr, false, err
	}
	if hdr.HeaderSize, err = r.ReadU32(); err != nil {
		return hdr, false, err
	}
	if hdr.LastRecordOffset, err = r.ReadU32(); err != nil {
		return hdr, false, err
	}
	if hdr.FreeSpaceOffset, err = r.ReadU32(); err != nil {
		return hdr, false, err
	}
	if hdr.EventDataCRC32, err = r.ReadU32(); err != nil {
		return hdr, false, err
	}
	if _, err = r.ReadBytes(64); err != nil { // reserved
		return hdr, false, err
	}
	if hdr.Flags, err = r.ReadU32(); err != nil {
		return hdr, false, err
	}
	if hdr.ChunkCRC32, err = r.ReadU32(); err != nil {
		return hdr, false, err
	}
	for i := range hdr.StringBucketOffsets {
		if hdr.StringBucketOffsets[i], err = r.ReadU32(); err != nil {
			return hdr, false, err
		}
	}
	for i := range hdr.TemplateSlotOffsets {
		if hdr.TemplateSlotOffsets[i], err = r.ReadU32(); err != nil {
			return hdr, false, err
		}
	}
	return hdr, false, nil
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
