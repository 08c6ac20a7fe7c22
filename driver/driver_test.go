package driver

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"evtxlink/binxml"
	"evtxlink/evtx"
	"evtxlink/sink"
)

const (
	testFileHeaderSize  = 4096
	testChunkSize       = 65536
	testChunkHeaderSize = 512
	testStringBuckets   = 64
	testTemplateSlots   = 32
)

func putU16(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }
func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func appendU16(buf []byte, v uint16) []byte {
	tmp := make([]byte, 2)
	putU16(tmp, v)
	return append(buf, tmp...)
}
func appendU32(buf []byte, v uint32) []byte {
	tmp := make([]byte, 4)
	putU32(tmp, v)
	return append(buf, tmp...)
}
func appendU64(buf []byte, v uint64) []byte {
	tmp := make([]byte, 8)
	putU64(tmp, v)
	return append(buf, tmp...)
}

func buildTestFileHeader(chunkCount int) []byte {
	buf := make([]byte, 0, testFileHeaderSize)
	buf = append(buf, 'E', 'l', 'f', 'F', 'i', 'l', 'e', 0x00)
	buf = appendU64(buf, 0)
	buf = appendU64(buf, uint64(chunkCount-1))
	buf = appendU64(buf, 1)
	buf = appendU32(buf, 128)
	buf = appendU16(buf, 1)
	buf = appendU16(buf, 3)
	buf = appendU16(buf, 4096)
	buf = appendU16(buf, uint16(chunkCount))
	buf = append(buf, make([]byte, 76)...)
	buf = appendU32(buf, 0)
	buf = appendU32(buf, 0)
	out := make([]byte, testFileHeaderSize)
	copy(out, buf)
	return out
}

func buildTestChunkHeader() []byte {
	buf := make([]byte, 0, testChunkHeaderSize)
	buf = append(buf, 'E', 'l', 'f', 'C', 'h', 'n', 'k', 0x00)
	buf = appendU64(buf, 1)
	buf = appendU64(buf, 1)
	buf = appendU64(buf, 1)
	buf = appendU64(buf, 1)
	buf = appendU32(buf, 128)
	buf = appendU32(buf, 512)
	buf = appendU32(buf, 1024)
	buf = appendU32(buf, 0) // EventDataCRC32, not verified (ValidateChecksums=false)
	buf = append(buf, make([]byte, 64)...)
	buf = appendU32(buf, 0) // Flags
	buf = appendU32(buf, 0) // ChunkCRC32
	for i := 0; i < testStringBuckets; i++ {
		buf = appendU32(buf, 0)
	}
	for i := 0; i < testTemplateSlots; i++ {
		buf = appendU32(buf, 0)
	}
	return buf
}

func testFragmentBody() []byte {
	buf := []byte{0x00, 0x00, 0x00} // fragment header
	buf = append(buf, byte(binxml.OpOpenStartElement), 0x00, 0x00, 0x00, 0x00, 0x00, 0x00)
	buf = appendU32(buf, 0x10)
	buf = append(buf, byte(binxml.OpCloseStartElement))
	buf = append(buf, byte(binxml.OpEndElement))
	buf = append(buf, byte(binxml.OpEndOfStream))
	return buf
}

func buildTestRecord(recID uint64, body []byte) []byte {
	const recordHeaderLen = 4 + 4 + 8 + 8
	const recordTrailerLen = 4
	size := uint32(recordHeaderLen + len(body) + recordTrailerLen)
	buf := appendU32(nil, 0x00002a2a)
	buf = appendU32(buf, size)
	buf = appendU64(buf, recID)
	buf = appendU64(buf, 116444736000000000)
	buf = append(buf, body...)
	buf = appendU32(buf, size)
	return buf
}

func buildTestChunk(recID uint64) []byte {
	buf := make([]byte, 0, testChunkSize)
	buf = append(buf, buildTestChunkHeader()...)
	buf = append(buf, buildTestRecord(recID, testFragmentBody())...)
	buf = append(buf, make([]byte, testChunkSize-len(buf))...)
	return buf
}

func buildTestFile(chunkCount int) *evtx.File {
	data := buildTestFileHeader(chunkCount)
	for i := 0; i < chunkCount; i++ {
		data = append(data, buildTestChunk(uint64(i*10+1))...)
	}
	f, err := evtx.Open(bytes.NewReader(data))
	if err != nil {
		panic(err)
	}
	return f
}

func TestRun_SequentialIsDeterministic(t *testing.T) {
	f := buildTestFile(4)
	stats := evtx.NewStats()

	var order [][2]uint64
	handle := func(chunkIdx int, rec evtx.Record) error {
		order = append(order, [2]uint64{uint64(chunkIdx), rec.Meta.EventRecordID})
		return nil
	}

	if err := Run(context.Background(), f, stats, handle, Options{Threads: 1}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := [][2]uint64{{0, 1}, {1, 11}, {2, 21}, {3, 31}}
	if len(order) != len(want) {
		t.Fatalf("got %d records, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("record %d = %+v, want %+v", i, order[i], want[i])
		}
	}

	snap := stats.Snapshot()
	if snap.ChunksParsed != 4 || snap.RecordsParsed != 4 {
		t.Fatalf("unexpected stats: %+v", snap)
	}
}

func TestRun_MultiThreadedVisitsEveryRecord(t *testing.T) {
	f := buildTestFile(8)
	stats := evtx.NewStats()

	var mu sync.Mutex
	seen := map[uint64]bool{}
	handle := func(chunkIdx int, rec evtx.Record) error {
		mu.Lock()
		seen[rec.Meta.EventRecordID] = true
		mu.Unlock()
		return nil
	}

	if err := Run(context.Background(), f, stats, handle, Options{Threads: 4}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(seen) != 8 {
		t.Fatalf("got %d distinct records, want 8", len(seen))
	}
}

func TestRun_CancellationStopsWithoutPartialRecord(t *testing.T) {
	f := buildTestFile(3)
	stats := evtx.NewStats()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int
	handle := func(chunkIdx int, rec evtx.Record) error {
		calls++
		return nil
	}

	err := Run(ctx, f, stats, handle, Options{Threads: 1})
	if err == nil {
		t.Fatal("expected an error from a pre-cancelled context")
	}
	if calls != 0 {
		t.Fatalf("expected no record handling after cancellation, got %d calls", calls)
	}
}

func TestRunToSink_WritesRenderedRecords(t *testing.T) {
	f := buildTestFile(1)
	stats := evtx.NewStats()

	var buf bytes.Buffer
	dst := sink.NewXML(&buf, false, true)

	if err := RunToSink(context.Background(), f, stats, dst, Options{Threads: 1}); err != nil {
		t.Fatalf("RunToSink: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected XML output to be written")
	}
}
