package view

import "testing"

func TestAppendRowTrimsOldest(t *testing.T) {
	var rows []RecordRow
	for i := 0; i < 5; i++ {
		rows = appendRow(rows, RecordRow{RecordID: uint64(i)}, 3)
	}
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3", len(rows))
	}
	// Oldest two (RecordID 0, 1) should have scrolled off.
	if rows[0].RecordID != 2 || rows[1].RecordID != 3 || rows[2].RecordID != 4 {
		t.Errorf("rows = %+v, want RecordIDs [2 3 4]", rows)
	}
}

func TestAppendRowUnderLimit(t *testing.T) {
	var rows []RecordRow
	rows = appendRow(rows, RecordRow{RecordID: 1}, 10)
	rows = appendRow(rows, RecordRow{RecordID: 2}, 10)
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
}
