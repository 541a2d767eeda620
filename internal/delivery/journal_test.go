package delivery

import (
	"testing"
	"time"
)

func TestJournalRoundTrip(t *testing.T) {
	j, err := OpenJournal(t.TempDir())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer j.Close()

	now := time.Now()
	due := Entry{MessageID: "m1", ConversationID: "c1", Content: "hallo", Attempts: 1, NextAt: now.Add(-time.Minute)}
	future := Entry{MessageID: "m2", ConversationID: "c1", Content: "later", Attempts: 1, NextAt: now.Add(time.Hour)}

	if err := j.Put(due); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := j.Put(future); err != nil {
		t.Fatalf("put: %v", err)
	}

	if n, err := j.Len(); err != nil || n != 2 {
		t.Fatalf("len = %d (%v), want 2", n, err)
	}

	entries, err := j.Due(now)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(entries) != 1 || entries[0].MessageID != "m1" {
		t.Fatalf("due entries = %+v, want only m1", entries)
	}

	if err := j.Remove("m1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if n, _ := j.Len(); n != 1 {
		t.Fatalf("len after remove = %d, want 1", n)
	}

	// removing an unknown key is a no-op
	if err := j.Remove("ghost"); err != nil {
		t.Fatalf("remove unknown: %v", err)
	}
}

func TestJournalPutOverwritesByMessageID(t *testing.T) {
	j, err := OpenJournal(t.TempDir())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer j.Close()

	e := Entry{MessageID: "m1", ConversationID: "c1", Content: "hallo", Attempts: 1, NextAt: time.Now().Add(-time.Minute)}
	if err := j.Put(e); err != nil {
		t.Fatalf("put: %v", err)
	}
	e.Attempts = 2
	if err := j.Put(e); err != nil {
		t.Fatalf("put again: %v", err)
	}

	if n, _ := j.Len(); n != 1 {
		t.Fatalf("len = %d, want 1", n)
	}
	entries, err := j.Due(time.Now())
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(entries) != 1 || entries[0].Attempts != 2 {
		t.Fatalf("entry = %+v, want attempts 2", entries)
	}
}
