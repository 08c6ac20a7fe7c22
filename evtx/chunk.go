package evtx

import (
	"fmt"
	"hash/crc32"

	"evtxlink/binxml"
	"evtxlink/logging"
)

// chunkChecksumRanges are the byte ranges of a chunk, relative to its own
// start, that the on-disk CRC32 covers: the fixed header fields before
// Flags/ChunkCRC32 (offsets [0, 0x78)) and the string/template offset
// tables (offsets [0x80, chunkHeaderSize)). The 8 bytes at [0x78, 0x80)
// hold Flags and ChunkCRC32 themselves and are excluded.
const (
	checksumHeadLen = 0x78
	checksumGap     = 0x80
)

// Chunk is one parsed 64 KiB chunk: its header plus every record decoded
// from its record table.
type Chunk struct {
	Index   int
	Header  ChunkHeader
	Records []Record

	// Truncated is set when the record table ended early because
	// ReadRecordTable returned an error (for example a record's trailer
	// disagreed with its declared size). Prior records remain valid.
	Truncated bool
	TruncErr  error
}

// ParseChunk parses the chunk occupying buf (exactly chunkSize bytes,
// sliced from the file by the caller) as the chunk at file index idx.
// validateChecksum, when true, promotes a CRC32 mismatch from a warning to
// a hard error.
func ParseChunk(buf []byte, idx int, validateChecksum bool) (*Chunk, error) {
	if len(buf) != chunkSize {
		return nil, fmt.Errorf("%w: chunk %d is %d bytes, want %d", ErrBadChunkHeader, idx, len(buf), chunkSize)
	}

	r := binxml.NewReader(buf)
	hdr, empty, err := ReadChunkHeader(r)
	if err != nil {
		return nil, fmt.Errorf("chunk %d: %w", idx, err)
	}
	if empty {
		return &Chunk{Index: idx}, nil
	}

	if err := verifyChunkChecksum(buf, hdr); err != nil {
		if validateChecksum {
			return nil, fmt.Errorf("chunk %d: %w", idx, err)
		}
		logging.Log("chunk", "chunk %d: %v", idx, err)
	}

	if err := r.SeekAbs(chunkHeaderSize); err != nil {
		return nil, fmt.Errorf("chunk %d: %w", idx, err)
	}

	names := NewStringCache(r)
	templates := NewTemplateCache(r, names)

	records, rerr := ReadRecordTable(r, names, templates)
	c := &Chunk{Index: idx, Header: hdr, Records: records}
	if rerr != nil {
		c.Truncated = true
		c.TruncErr = rerr
	}
	return c, nil
}

// verifyChunkChecksum recomputes the chunk's CRC32 over its checksummed
// byte ranges and compares it against ChunkHeader.ChunkCRC32.
func verifyChunkChecksum(buf []byte, hdr ChunkHeader) error {
	sum := crc32.NewIEEE()
	sum.Write(buf[:checksumHeadLen])
	sum.Write(buf[checksumGap:chunkHeaderSize])
	if sum.Sum32() != hdr.ChunkCRC32 {
		return fmt.Errorf("%w: chunk CRC32 %08x != header %08x", ErrChecksumMismatch, sum.Sum32(), hdr.ChunkCRC32)
	}
	return nil
}

// RecordCount returns the number of records decoded from this chunk
// (successful and errored), exposed for evtx.Stats.
func (c *Chunk) RecordCount() int { return len(c.Records) }
