package evtx

import (
	"fmt"

	"evtxlink/binxml"
)

const (
	recordMagic      = 0x00002a2a
	recordHeaderLen  = 4 + 4 + 8 + 8 // magic|size|event_record_id|timestamp
	recordTrailerLen = 4
)

// RecordMeta is a successfully parsed record's header fields.
type RecordMeta struct {
	EventRecordID uint64
	Timestamp     binxml.FILETIME
	Offset        int
	Size          uint32
}

// Record is one emitted record: either a rendered element tree or an error
// tied to that record's slot in the chunk.
type Record struct {
	Meta  RecordMeta
	Nodes []binxml.Node
	Err   error
}

// ReadRecordTable walks the record table of a chunk whose buffer is backed
// by r (already positioned past the chunk header, i.e. at offset
// chunkHeaderSize relative to the chunk start), decoding each record's
// BinXML fragment body against names/templates. It stops, without error,
// at the first structurally invalid record header (wrong magic) — the
// normal end-of-table condition once free space is reached — and returns a
// ChunkTruncated-wrapped error when a record's declared size does not fit
// the buffer or its trailing size_trailer disagrees with that size.
func ReadRecordTable(r *binxml.Reader, names binxml.NameResolver, templates binxml.TemplateResolver) ([]Record, error) {
	var records []Record

	for {
		start := r.Position()
		if r.Len()-start < recordHeaderLen {
			break
		}

		magic, err := r.ReadU32()
		if err != nil {
			return records, err
		}
		if magic != recordMagic {
			// Free space / padding: not a record, and not an error —
			// this is the normal way a record table ends.
			r.SeekAbs(start)
			break
		}

		size, err := r.ReadU32()
		if err != nil {
			return records, err
		}
		recID, err := r.ReadU64()
		if err != nil {
			return records, err
		}
		ts, err := r.ReadFILETIME()
		if err != nil {
			return records, err
		}

		meta := RecordMeta{EventRecordID: recID, Timestamp: ts, Offset: start, Size: size}

		if size < recordHeaderLen+recordTrailerLen || start+int(size) > r.Len() {
			return records, fmt.Errorf("%w: record %d size %d out of range", ErrChunkTruncated, recID, size)
		}

		bodyLen := int(size) - recordHeaderLen - recordTrailerLen
		body, err := r.Sub(r.Position(), bodyLen)
		if err != nil {
			return records, err
		}

		rec := Record{Meta: meta}
		tr := binxml.NewTokenReader(body)
		nodes, perr := binxml.ParseFragment(tr, names, templates)
		if perr != nil {
			rec.Err = perr
		} else {
			rec.Nodes = nodes
		}

		if err := r.SeekAbs(start + int(size) - recordTrailerLen); err != nil {
			return records, err
		}
		trailer, err := r.ReadU32()
		if err != nil {
			return records, err
		}
		if trailer != size {
			records = append(records, rec)
			return records, fmt.Errorf("%w: record %d trailer %d != size %d", ErrChunkTruncated, recID, trailer, size)
		}

		records = append(records, rec)
	}

	return records, nil
}
