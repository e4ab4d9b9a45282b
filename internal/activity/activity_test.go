package activity

import (
	"context"
	"testing"

	"github.com/capitalize-ai/calendar-agent/internal/model"
)

func TestMemoryAppendAndList(t *testing.T) {
	ctx := context.Background()
	log := NewMemory()

	for i, content := range []string{"one", "two", "three"} {
		entry, err := Write(ctx, log, "s1", model.ChatUser, content)
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		if entry.Sequence != uint64(i+1) {
			t.Errorf("sequence = %d, want %d", entry.Sequence, i+1)
		}
		if entry.ID == "" || entry.Timestamp.IsZero() {
			t.Errorf("entry not stamped: %+v", entry)
		}
	}
	if _, err := Write(ctx, log, "s2", model.ChatSystem, "other"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	entries, last, more, err := log.List(ctx, "s1", 0, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 || entries[0].Content != "one" || !more || last != 2 {
		t.Fatalf("first page = %+v last=%d more=%v", entries, last, more)
	}

	entries, _, more, _ = log.List(ctx, "s1", last, 2)
	if len(entries) != 1 || entries[0].Content != "three" || more {
		t.Fatalf("second page = %+v more=%v", entries, more)
	}

	log.Drop("s1")
	entries, _, _, _ = log.List(ctx, "s1", 0, 0)
	if len(entries) != 0 {
		t.Errorf("entries after Drop = %+v", entries)
	}
}
