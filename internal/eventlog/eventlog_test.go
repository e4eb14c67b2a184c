package eventlog

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func tempLog(t *testing.T) *Log {
	t.Helper()
	dir := t.TempDir()
	db, err := sql.Open("sqlite", filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	l, err := New(db)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

func TestAppendAndRecent(t *testing.T) {
	l := tempLog(t)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	events := []Entry{
		{Kind: KindWakeUp, Detail: "power button", Wakefulness: "awake", CreatedAt: base},
		{Kind: KindNap, Wakefulness: "napping", CreatedAt: base.Add(time.Minute)},
		{Kind: KindDreamStarted, Detail: "session 1", Wakefulness: "dreaming", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, e := range events {
		if err := l.Append(e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := l.Recent(2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Kind != KindDreamStarted || got[1].Kind != KindNap {
		t.Fatalf("wrong order: %s, %s", got[0].Kind, got[1].Kind)
	}
	if got[0].ID == "" || got[0].ID == got[1].ID {
		t.Fatalf("row ids not assigned uniquely: %q %q", got[0].ID, got[1].ID)
	}
	if got[1].Detail != "" {
		t.Fatalf("empty detail should round-trip empty, got %q", got[1].Detail)
	}
}

func TestAppendAssignsTimestamp(t *testing.T) {
	l := tempLog(t)
	if err := l.Append(Entry{Kind: KindGoToSleep, Wakefulness: "asleep"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, err := l.Recent(1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 || got[0].CreatedAt.IsZero() {
		t.Fatalf("expected assigned timestamp, got %+v", got)
	}
}
