package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	journal, err := OpenJournal(filepath.Join(t.TempDir(), "segments.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { journal.Close() })
	return journal
}

func TestJournal_RecordAndQuery(t *testing.T) {
	journal := openTestJournal(t)

	now := time.Now()
	for i := 0; i < 3; i++ {
		err := journal.Record(&SegmentRecord{
			SessionUID:   "user_1",
			StartedAt:    now.Add(-time.Second),
			EndedAt:      now,
			DurationMs:   1000,
			PayloadBytes: 32000 + i,
		})
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	count, err := journal.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 records, got %d", count)
	}

	records, err := journal.RecentSegments(2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	// Newest first.
	if records[0].PayloadBytes != 32002 {
		t.Errorf("expected newest record first, got payload %d", records[0].PayloadBytes)
	}
}
