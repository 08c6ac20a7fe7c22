// Package evtx parses EVTX files: file/chunk headers, the per-chunk string
// and template caches, and the record table walk. It builds on package
// binxml for token decoding and tree evaluation.
package evtx

import "errors"

var (
	ErrBadFileHeader       = errors.New("evtx: bad file header")
	ErrBadChunkHeader      = errors.New("evtx: bad chunk header")
	ErrChecksumMismatch    = errors.New("evtx: checksum mismatch")
	ErrChunkTruncated      = errors.New("evtx: chunk truncated")
	ErrBadRecordHeader     = errors.New("evtx: bad record header")
	ErrTemplateNotResolved = errors.New("evtx: template not resolved")
)
