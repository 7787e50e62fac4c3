package task

import (
	"path/filepath"
	"testing"
	"time"

	"cliptransfer/internal/protocol"
)

func newTestTask(id string, status Status) *Task {
	return New(Params{
		TaskID:       id,
		FileName:     id + ".bin",
		TransferType: protocol.TransferFile,
		TotalSize:    100,
		ChunkSize:    50,
		ChunkTotal:   2,
		Status:       status,
	})
}

func TestStoreAddGetListRemove(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	tk := newTestTask("t1", StatusPending)
	if err := s.Add(tk); err != nil {
		t.Fatalf("Add: %v", err)
	}
	got, ok := s.Get("t1")
	if !ok || got.TaskID != "t1" {
		t.Fatalf("Get failed: %v %v", got, ok)
	}
	if len(s.List()) != 1 {
		t.Fatalf("expected 1 task, got %d", len(s.List()))
	}
	if err := s.Remove("t1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := s.Get("t1"); ok {
		t.Fatal("expected task removed")
	}
}

func TestStoreReloadNormalizesRunningAndPaused(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	running := newTestTask("running", StatusRunning)
	paused := newTestTask("paused", StatusPaused)
	completed := newTestTask("done", StatusCompleted)
	for _, tk := range []*Task{running, paused, completed} {
		if err := s.Add(tk); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	reopened, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	for _, id := range []string{"running", "paused"} {
		got, ok := reopened.Get(id)
		if !ok {
			t.Fatalf("task %s missing after reload", id)
		}
		if got.Status != StatusPending {
			t.Errorf("task %s: expected PENDING after reload, got %s", id, got.Status)
		}
	}
	got, _ := reopened.Get("done")
	if got.Status != StatusCompleted {
		t.Errorf("expected COMPLETED to survive reload unchanged, got %s", got.Status)
	}
}

func TestStoreJournalPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	tk := newTestTask("t1", StatusPending)
	tk.MarkChunkCompleted(0, 50)
	tk.MarkChunkFailed(1, "clipboard write failed")
	if err := s.Add(tk); err != nil {
		t.Fatalf("Add: %v", err)
	}

	reopened, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok := reopened.Get("t1")
	if !ok {
		t.Fatal("task missing after reopen")
	}
	if _, done := got.CompletedChunks[0]; !done {
		t.Error("expected chunk 0 completed to survive reload")
	}
	if reason, failed := got.FailedChunks[1]; !failed || reason != "clipboard write failed" {
		t.Errorf("expected chunk 1 failed to survive reload, got %v", got.FailedChunks)
	}

	if _, err := filepath.Abs(journalPath(dir)); err != nil {
		t.Fatalf("journalPath: %v", err)
	}
}

func TestCleanupCompletedRetention(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	now := time.Now()
	mk := func(id string, age time.Duration) *Task {
		tk := newTestTask(id, StatusCompleted)
		tk.EndTime = now.Add(-age)
		return tk
	}
	for _, tk := range []*Task{
		mk("recent", 0),
		mk("mid", 10*24*time.Hour),
		mk("old", 40*24*time.Hour),
	} {
		if err := s.Add(tk); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	removed, err := s.CleanupCompleted(30)
	if err != nil {
		t.Fatalf("CleanupCompleted(30): %v", err)
	}
	if removed != 1 {
		t.Fatalf("CleanupCompleted(30): removed %d, want 1", removed)
	}

	dir2 := t.TempDir()
	s2, _ := Open(dir2, nil)
	for _, tk := range []*Task{
		mk("recent", 0),
		mk("mid", 10*24*time.Hour),
		mk("old", 40*24*time.Hour),
	} {
		s2.Add(tk)
	}
	removed2, _ := s2.CleanupCompleted(7)
	if removed2 != 2 {
		t.Fatalf("CleanupCompleted(7): removed %d, want 2", removed2)
	}

	dir3 := t.TempDir()
	s3, _ := Open(dir3, nil)
	for _, tk := range []*Task{
		mk("recent", 0),
		mk("mid", 10*24*time.Hour),
		mk("old", 40*24*time.Hour),
	} {
		s3.Add(tk)
	}
	removed3, _ := s3.CleanupCompleted(0)
	if removed3 != 3 {
		t.Fatalf("CleanupCompleted(0): removed %d, want 3", removed3)
	}
}

func TestStatistics(t *testing.T) {
	dir := t.TempDir()
	s, _ := Open(dir, nil)
	s.Add(newTestTask("a", StatusCompleted))
	s.Add(newTestTask("b", StatusFailed))
	s.Add(newTestTask("c", StatusCompleted))

	stats := s.Statistics()
	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
	if stats.ByStatus[StatusCompleted] != 2 {
		t.Errorf("ByStatus[COMPLETED] = %d, want 2", stats.ByStatus[StatusCompleted])
	}
	if stats.CompletedBytes != 200 {
		t.Errorf("CompletedBytes = %d, want 200", stats.CompletedBytes)
	}
}
