package wal

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open wal: %v", err)
	}
	defer w.Close()

	if w.sequence != 0 {
		t.Errorf("expected sequence 0 on fresh log, got %d", w.sequence)
	}
}

func TestAppendAssignsMonotonicSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open wal: %v", err)
	}
	defer w.Close()

	var seqs []int64
	for i := 0; i < 5; i++ {
		seq, err := w.Append(OpPut, "k", i)
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		seqs = append(seqs, seq)
	}

	for i := 1; i < len(seqs); i++ {
		if seqs[i] <= seqs[i-1] {
			t.Errorf("expected strictly increasing sequence, got %d after %d", seqs[i], seqs[i-1])
		}
	}
}

func TestReplayReturnsEntriesInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open wal: %v", err)
	}

	if _, err := w.Append(OpPut, "a", "1"); err != nil {
		t.Fatalf("append a: %v", err)
	}
	if _, err := w.Append(OpPut, "b", "2"); err != nil {
		t.Fatalf("append b: %v", err)
	}
	if _, err := w.Append(OpDelete, "a", nil); err != nil {
		t.Fatalf("append delete a: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	w2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer w2.Close()

	entries, err := w2.Replay()
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Key != "a" || entries[0].Operation != OpPut {
		t.Errorf("entry 0: unexpected %+v", entries[0])
	}
	if entries[2].Key != "a" || entries[2].Operation != OpDelete {
		t.Errorf("entry 2: unexpected %+v", entries[2])
	}
}

func TestOpenRecoversSequenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var last int64
	for i := 0; i < 3; i++ {
		last, err = w.Append(OpPut, "k", i)
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	w2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer w2.Close()

	next, err := w2.Append(OpPut, "k2", "v")
	if err != nil {
		t.Fatalf("append after reopen: %v", err)
	}
	if next <= last {
		t.Errorf("expected sequence to continue past %d after reopen, got %d", last, next)
	}
}

func TestReplayToleratesCorruptTrailingLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := w.Append(OpPut, "good", "value"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("reopen raw: %v", err)
	}
	if _, err := f.WriteString("{not valid json\n"); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	f.Close()

	w2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer w2.Close()

	entries, err := w2.Replay()
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected corrupt trailing line to be dropped, got %d entries", len(entries))
	}
}

func TestClearResetsLogAndSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer w.Close()

	if _, err := w.Append(OpPut, "a", "1"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}

	entries, err := w.Replay()
	if err != nil {
		t.Fatalf("replay after clear: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty log after clear, got %d entries", len(entries))
	}

	seq, err := w.Append(OpPut, "b", "2")
	if err != nil {
		t.Fatalf("append after clear: %v", err)
	}
	if seq != 1 {
		t.Errorf("expected sequence to restart at 1 after clear, got %d", seq)
	}
}

func TestStatsCountsOperationsAndFileSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer w.Close()

	if _, err := w.Append(OpPut, "a", "1"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := w.Append(OpPut, "b", "2"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := w.Append(OpDelete, "a", nil); err != nil {
		t.Fatalf("append: %v", err)
	}

	stats, err := w.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalEntries != 3 {
		t.Errorf("expected 3 total entries, got %d", stats.TotalEntries)
	}
	if stats.PutOperations != 2 {
		t.Errorf("expected 2 put operations, got %d", stats.PutOperations)
	}
	if stats.DeleteOperations != 1 {
		t.Errorf("expected 1 delete operation, got %d", stats.DeleteOperations)
	}
	if stats.CurrentSequence != 3 {
		t.Errorf("expected current sequence 3, got %d", stats.CurrentSequence)
	}
	if stats.WALFileSize == 0 {
		t.Errorf("expected non-zero file size")
	}
}

func TestTruncateBeforeDropsOlderEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer w.Close()

	for i := 0; i < 4; i++ {
		if _, err := w.Append(OpPut, "k", i); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	if err := w.TruncateBefore(3); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	entries, err := w.Replay()
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries with sequence >= 3, got %d", len(entries))
	}
	for _, e := range entries {
		if e.SequenceNumber < 3 {
			t.Errorf("unexpected entry with sequence %d after truncate", e.SequenceNumber)
		}
	}
}
