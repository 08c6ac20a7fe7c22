package evtx

import (
	"fmt"
	"io"

	"evtxlink/binxml"
)

// File is an opened EVTX file: its header plus the raw chunk byte ranges,
// ready for sequential or parallel chunk parsing.
type File struct {
	Header     FileHeader
	ChunkCount int

	r io.ReaderAt
}

// Open reads and validates the file header from r, which must expose the
// full file contents.
func Open(r io.ReaderAt) (*File, error) {
	head := make([]byte, fileHeaderSize)
	if _, err := r.ReadAt(head, 0); err != nil {
		return nil, fmt.Errorf("evtx: read file header: %w", err)
	}

	hdr, err := ReadFileHeader(binxml.NewReader(head))
	if err != nil {
		return nil, err
	}

	return &File{Header: hdr, ChunkCount: int(hdr.ChunkCount), r: r}, nil
}

// ReadChunk reads the raw bytes of chunk i (0-based, file order) without
// parsing them.
func (f *File) ReadChunk(i int) ([]byte, error) {
	buf := make([]byte, chunkSize)
	off := int64(fileHeaderSize) + int64(i)*int64(chunkSize)
	if _, err := f.r.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("evtx: read chunk %d: %w", i, err)
	}
	return buf, nil
}

// ParseChunk reads and parses chunk i.
func (f *File) ParseChunk(i int, validateChecksum bool) (*Chunk, error) {
	buf, err := f.ReadChunk(i)
	if err != nil {
		return nil, err
	}
	return ParseChunk(buf, i, validateChecksum)
}
