package evtx

import (
	"bytes"
	"errors"
	"testing"

	"evtxlink/binxml"
)

func makeFileHeaderBuf() []byte {
	buf := bytes.NewBuffer(nil)
	buf.Write(fileMagic[:])
	writeU64(buf, 0)  // FirstChunkNumber
	writeU64(buf, 1)  // LastChunkNumber
	writeU64(buf, 10) // NextRecordID
	writeU32(buf, 128)
	writeU16(buf, 1) // MinorVersion
	writeU16(buf, 3) // MajorVersion
	writeU16(buf, 4096)
	writeU16(buf, 2) // ChunkCount
	buf.Write(make([]byte, 76))
	writeU32(buf, 0) // Flags
	writeU32(buf, 0) // CRC32
	return buf.Bytes()
}

func writeU64(buf *bytes.Buffer, v uint64) {
	for i := 0; i < 8; i++ {
		buf.WriteByte(byte(v >> (8 * i)))
	}
}
func writeU32(buf *bytes.Buffer, v uint32) {
	for i := 0; i < 4; i++ {
		buf.WriteByte(byte(v >> (8 * i)))
	}
}
func writeU16(buf *bytes.Buffer, v uint16) {
	for i := 0; i < 2; i++ {
		buf.WriteByte(byte(v >> (8 * i)))
	}
}

func TestReadFileHeader(t *testing.T) {
	r := binxml.NewReader(makeFileHeaderBuf())
	h, err := ReadFileHeader(r)
	if err != nil {
		t.Fatalf("ReadFileHeader: %v", err)
	}
	if h.ChunkCount != 2 || h.MajorVersion != 3 || h.NextRecordID != 10 {
		t.Fatalf("got %+v", h)
	}
}

func TestReadFileHeader_BadMagic(t *testing.T) {
	buf := makeFileHeaderBuf()
	buf[0] = 'X'
	r := binxml.NewReader(buf)
	if _, err := ReadFileHeader(r); !errors.Is(err, ErrBadFileHeader) {
		t.Fatalf("expected ErrBadFileHeader, got %v", err)
	}
}

func makeChunkHeaderBuf(magic bool) []byte {
	buf := bytes.NewBuffer(nil)
	if magic {
		buf.Write(chunkMagic[:])
	} else {
		buf.Write(make([]byte, 8))
	}
	writeU64(buf, 1) // FirstRecordNumber
	writeU64(buf, 5) // LastRecordNumber
	writeU64(buf, 1) // FirstEventRecID
	writeU64(buf, 5) // LastEventRecID
	writeU32(buf, 128)
	writeU32(buf, 512)
	writeU32(buf, 1024)
	writeU32(buf, 0xDEADBEEF) // EventDataCRC32
	buf.Write(make([]byte, 64))
	writeU32(buf, 0)          // Flags
	writeU32(buf, 0x12345678) // ChunkCRC32
	for i := 0; i < stringBuckets; i++ {
		writeU32(buf, uint32(i))
	}
	for i := 0; i < templateSlots; i++ {
		writeU32(buf, uint32(i*2))
	}
	return buf.Bytes()
}

func TestReadChunkHeader(t *testing.T) {
	buf := makeChunkHeaderBuf(true)
	if len(buf) != chunkHeaderSize {
		t.Fatalf("test fixture length = %d, want %d", len(buf), chunkHeaderSize)
	}
	r := binxml.NewReader(buf)
	hdr, empty, err := ReadChunkHeader(r)
	if err != nil {
		t.Fatalf("ReadChunkHeader: %v", err)
	}
	if empty {
		t.Fatal("expected non-empty chunk")
	}
	if hdr.ChunkCRC32 != 0x12345678 || hdr.EventDataCRC32 != 0xDEADBEEF {
		t.Fatalf("got %+v", hdr)
	}
	if hdr.StringBucketOffsets[3] != 3 || hdr.TemplateSlotOffsets[3] != 6 {
		t.Fatalf("table offsets wrong: %+v %+v", hdr.StringBucketOffsets[:5], hdr.TemplateSlotOffsets[:5])
	}
}

func TestReadChunkHeader_Empty(t *testing.T) {
	buf := makeChunkHeaderBuf(false)
	r := binxml.NewReader(buf)
	_, empty, err := ReadChunkHeader(r)
	if err != nil {
		t.Fatalf("ReadChunkHeader: %v", err)
	}
	if !empty {
		t.Fatal("expected empty chunk to be reported")
	}
}

func TestReadChunkHeader_BadMagic(t *testing.T) {
	buf := makeChunkHeaderBuf(true)
	buf[0] = 'X'
	r := binxml.NewReader(buf)
	if _, _, err := ReadChunkHeader(r); !errors.Is(err, ErrBadChunkHeader) {
		t.Fatalf("expected ErrBadChunkHeader, got %v", err)
	}
}
