package task

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"cliptransfer/internal/applog"
	"cliptransfer/internal/protocol"
)

// StoreDir returns $HOME/.cliptransfer/tasks, mirroring
// TaskManager.getTasksDirectory() in the Java original.
func StoreDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".cliptransfer", "tasks")
}

func journalPath(dir string) string {
	return filepath.Join(dir, "tasks.json")
}

// Store is C3: a thread-safe, journaled task registry. It replaces the
// process-singleton Peermanager shape seen in internal/store/transfer.go
// with an explicit value callers construct and pass to the Sender and
// Receiver engines, per spec.md section 9's design note on singletons.
type Store struct {
	mu     sync.Mutex
	dir    string
	tasks  map[string]*Task
	logger *applog.Logger
}

// Open loads dir/tasks.json if present, normalizing RUNNING/PAUSED tasks
// back to PENDING (testable property 4), and returns a ready Store. dir is
// created if missing.
func Open(dir string, logger *applog.Logger) (*Store, error) {
	if logger == nil {
		logger = applog.Default
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("task: create store dir: %w", err)
	}
	s := &Store{dir: dir, tasks: make(map[string]*Task), logger: logger}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

type persistedTask struct {
	TaskID           string            `json:"task_id"`
	FileName         string            `json:"file_name"`
	FilePath         string            `json:"file_path,omitempty"`
	TransferType     string            `json:"transfer_type"`
	TotalSize        int64             `json:"total_size"`
	ChunkSize        int               `json:"chunk_size"`
	ChunkTotal       int               `json:"chunk_total"`
	FileMD5          string            `json:"file_md5,omitempty"`
	FolderManifest   []persistedEntry  `json:"folder_manifest,omitempty"`
	Status           string            `json:"status"`
	CompletedChunks  []int             `json:"completed_chunks"`
	FailedChunks     map[string]string `json:"failed_chunks"`
	TransferredBytes int64             `json:"transferred_bytes"`
	CreateTime       string            `json:"create_time"`
	StartTime        string            `json:"start_time,omitempty"`
	EndTime          string            `json:"end_time,omitempty"`
	ErrorMessage     string            `json:"error_message,omitempty"`
}

type persistedEntry struct {
	Path    string `json:"path"`
	ModTime string `json:"mod_time"`
}

const journalTimeLayout = time.RFC3339

func (s *Store) load() error {
	path := journalPath(s.dir)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("task: read journal: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var records []persistedTask
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.Warnf("task: journal %s is corrupt, starting empty: %v", path, err)
		return nil
	}

	for _, rec := range records {
		status := Status(rec.Status)
		if status == StatusRunning || status == StatusPaused {
			status = StatusPending
		}
		failed := make(map[int]string, len(rec.FailedChunks))
		for idxStr, reason := range rec.FailedChunks {
			idx, convErr := strconv.Atoi(idxStr)
			if convErr != nil {
				continue
			}
			failed[idx] = reason
		}
		var manifest []ManifestEntry
		for _, m := range rec.FolderManifest {
			mt, _ := time.Parse(journalTimeLayout, m.ModTime)
			manifest = append(manifest, ManifestEntry{Path: m.Path, ModTime: mt})
		}
		createTime, _ := time.Parse(journalTimeLayout, rec.CreateTime)
		startTime, _ := time.Parse(journalTimeLayout, rec.StartTime)
		endTime, _ := time.Parse(journalTimeLayout, rec.EndTime)

		t := New(Params{
			TaskID:           rec.TaskID,
			FileName:         rec.FileName,
			FilePath:         rec.FilePath,
			TransferType:     transferTypeFromString(rec.TransferType),
			TotalSize:        rec.TotalSize,
			ChunkSize:        rec.ChunkSize,
			ChunkTotal:       rec.ChunkTotal,
			FileMD5:          rec.FileMD5,
			FolderManifest:   manifest,
			Status:           status,
			CompletedChunks:  rec.CompletedChunks,
			FailedChunks:     failed,
			TransferredBytes: rec.TransferredBytes,
			CreateTime:       createTime,
			StartTime:        startTime,
			EndTime:          endTime,
			ErrorMessage:     rec.ErrorMessage,
		})
		s.tasks[t.TaskID] = t
	}
	return nil
}

func (s *Store) toPersisted(t *Task) persistedTask {
	completed := make([]int, 0, len(t.CompletedChunks))
	for idx := range t.CompletedChunks {
		completed = append(completed, idx)
	}
	sort.Ints(completed)

	failed := make(map[string]string, len(t.FailedChunks))
	for idx, reason := range t.FailedChunks {
		failed[strconv.Itoa(idx)] = reason
	}

	var manifest []persistedEntry
	for _, m := range t.FolderManifest {
		manifest = append(manifest, persistedEntry{Path: m.Path, ModTime: formatOptional(m.ModTime)})
	}

	return persistedTask{
		TaskID:           t.TaskID,
		FileName:         t.FileName,
		FilePath:         t.FilePath,
		TransferType:     string(t.TransferType),
		TotalSize:        t.TotalSize,
		ChunkSize:        t.ChunkSize,
		ChunkTotal:       t.ChunkTotal,
		FileMD5:          t.FileMD5,
		FolderManifest:   manifest,
		Status:           string(t.Status),
		CompletedChunks:  completed,
		FailedChunks:     failed,
		TransferredBytes: t.TransferredBytes,
		CreateTime:       t.CreateTime.Format(journalTimeLayout),
		StartTime:        formatOptional(t.StartTime),
		EndTime:          formatOptional(t.EndTime),
		ErrorMessage:     t.ErrorMessage,
	}
}

func formatOptional(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(journalTimeLayout)
}

func transferTypeFromString(s string) protocol.TransferType {
	switch protocol.TransferType(s) {
	case protocol.TransferFolder:
		return protocol.TransferFolder
	default:
		return protocol.TransferFile
	}
}

// persistLocked rewrites the whole journal via a temp-file-plus-rename
// swap so a crash mid-write can never truncate tasks.json, per spec.md's
// atomic-replace requirement. Callers must hold s.mu.
func (s *Store) persistLocked() error {
	records := make([]persistedTask, 0, len(s.tasks))
	ids := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		records = append(records, s.toPersisted(s.tasks[id]))
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("task: marshal journal: %w", err)
	}

	path := journalPath(s.dir)
	tmp, err := os.CreateTemp(s.dir, "tasks-*.json.tmp")
	if err != nil {
		return fmt.Errorf("task: create temp journal: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("task: write temp journal: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("task: close temp journal: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("task: rename journal into place: %w", err)
	}
	return nil
}

// Add registers a new task and journals immediately.
func (s *Store) Add(t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.TaskID] = t
	return s.persistLocked()
}

// Update re-journals the store after an in-place mutation to a *Task
// already owned by an engine. Since Get returns the live pointer, Update's
// real job is just triggering the journal write.
func (s *Store) Update(t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.TaskID]; !ok {
		return fmt.Errorf("task: unknown task %s", t.TaskID)
	}
	s.tasks[t.TaskID] = t
	return s.persistLocked()
}

// Remove deletes a task from the store and journal.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return fmt.Errorf("task: unknown task %s", id)
	}
	delete(s.tasks, id)
	return s.persistLocked()
}

// Get returns the live task pointer for id.
func (s *Store) Get(id string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

// List returns every task, sorted by task_id for stable output.
func (s *Store) List() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}

// ListByStatus filters List by status.
func (s *Store) ListByStatus(status Status) []*Task {
	all := s.List()
	out := make([]*Task, 0, len(all))
	for _, t := range all {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

// Statistics matches TaskManager.getStatistics: totals, per-status counts,
// and byte sums.
type Statistics struct {
	Total           int
	ByStatus        map[Status]int
	TotalBytes      int64
	CompletedBytes  int64
}

func (s *Store) Statistics() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := Statistics{ByStatus: make(map[Status]int)}
	for _, t := range s.tasks {
		stats.Total++
		stats.ByStatus[t.Status]++
		stats.TotalBytes += t.TotalSize
		if t.Status == StatusCompleted {
			stats.CompletedBytes += t.TotalSize
		}
	}
	return stats
}

// CleanupCompleted removes COMPLETED tasks whose EndTime is older than
// keepDays days. keepDays = 0 removes every completed task. Returns the
// number removed.
func (s *Store) CleanupCompleted(keepDays int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-time.Duration(keepDays) * 24 * time.Hour)
	removed := 0
	for id, t := range s.tasks {
		if t.Status != StatusCompleted {
			continue
		}
		if keepDays == 0 || t.EndTime.Before(cutoff) {
			delete(s.tasks, id)
			removed++
		}
	}
	if removed > 0 {
		if err := s.persistLocked(); err != nil {
			return removed, err
		}
	}
	return removed, nil
}
