package plan

import (
	"testing"
	"time"
)

func TestTaskLedgerAppendRejectsDuplicateID(t *testing.T) {
	l := NewTaskLedger("build a widget")
	if err := l.Append(TaskEntry{ID: "t1", Description: "design"}); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := l.Append(TaskEntry{ID: "t1", Description: "design again"}); err == nil {
		t.Fatal("expected error appending a duplicate task id")
	}
}

func TestTaskLedgerUpdateStatus(t *testing.T) {
	l := NewTaskLedger("req")
	if err := l.Append(TaskEntry{ID: "t1", Status: TaskPending}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := l.UpdateStatus("t1", TaskCompleted); err != nil {
		t.Fatalf("update status: %v", err)
	}
	entries := l.Entries()
	if entries[0].Status != TaskCompleted {
		t.Fatalf("expected status completed, got %s", entries[0].Status)
	}
}

func TestTaskLedgerUpdateStatusUnknownID(t *testing.T) {
	l := NewTaskLedger("req")
	if err := l.UpdateStatus("missing", TaskCompleted); err == nil {
		t.Fatal("expected error updating an unknown task id")
	}
}

func TestTaskLedgerContentHashStableAcrossCalls(t *testing.T) {
	l := NewTaskLedger("req")
	_ = l.Append(TaskEntry{ID: "t1", Description: "a"})
	_ = l.Append(TaskEntry{ID: "t2", Description: "b"})

	h1, err := l.ContentHash()
	if err != nil {
		t.Fatalf("content hash: %v", err)
	}
	h2, err := l.ContentHash()
	if err != nil {
		t.Fatalf("content hash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("content hash must be stable across calls: %s != %s", h1, h2)
	}
}

func TestTaskLedgerContentHashChangesWithEntries(t *testing.T) {
	l1 := NewTaskLedger("req")
	_ = l1.Append(TaskEntry{ID: "t1", Description: "a"})
	h1, _ := l1.ContentHash()

	l2 := NewTaskLedger("req")
	_ = l2.Append(TaskEntry{ID: "t1", Description: "a"})
	_ = l2.Append(TaskEntry{ID: "t2", Description: "b"})
	h2, _ := l2.ContentHash()

	if h1 == h2 {
		t.Fatal("content hash should differ when the entry set differs")
	}
}

func TestProgressLedgerRecentReturnsLastN(t *testing.T) {
	l := NewProgressLedger()
	for i := 0; i < 10; i++ {
		l.Append(ProgressEntry{Action: string(rune('a' + i))})
	}
	recent := l.Recent(3)
	if len(recent) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(recent))
	}
	if recent[2].Action != string(rune('a'+9)) {
		t.Fatalf("expected the most recent entry last, got %q", recent[2].Action)
	}
}

func TestProgressLedgerRecentFewerThanN(t *testing.T) {
	l := NewProgressLedger()
	l.Append(ProgressEntry{Action: "only"})
	recent := l.Recent(5)
	if len(recent) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(recent))
	}
}

func TestProgressLedgerMetricsAggregates(t *testing.T) {
	l := NewProgressLedger()
	l.Append(ProgressEntry{TokensConsumed: 10, Duration: time.Second, Signal: SignalSuccess, ArtifactRefs: []string{"a1"}})
	l.Append(ProgressEntry{TokensConsumed: 20, Duration: 2 * time.Second, Signal: SignalFailure, ArtifactRefs: []string{"a1", "a2"}})

	m := l.Metrics()
	if m.TotalEntries != 2 {
		t.Fatalf("expected 2 entries, got %d", m.TotalEntries)
	}
	if m.TotalTokens != 30 {
		t.Fatalf("expected 30 tokens, got %d", m.TotalTokens)
	}
	if m.TotalDuration != 3*time.Second {
		t.Fatalf("expected 3s total duration, got %v", m.TotalDuration)
	}
	if m.Successes != 1 || m.Failures != 1 {
		t.Fatalf("expected 1 success and 1 failure, got %d/%d", m.Successes, m.Failures)
	}
	if m.UniqueArtifacts != 2 {
		t.Fatalf("expected 2 unique artifacts, got %d", m.UniqueArtifacts)
	}
}
