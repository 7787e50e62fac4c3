// Package task implements C3: the TransferTask model and its durable
// store. Grounded on original_source/common/TransferTask.java and
// TaskManager.java, translated away from their mutable-bean-plus-reflection
// design (see the constructor note below) and away from
// internal/store/transfer.go's process-singleton Peermanager pattern —
// spec.md section 9 calls for both Config and the Task Store to become
// explicit constructor dependencies instead.
package task

import (
	"fmt"
	"sort"
	"time"

	"cliptransfer/internal/protocol"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// IsTerminal matches TaskStatus.isTerminalStatus in the Java original.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanRestart matches TaskStatus.canRestart: a task in one of these states
// can be resubmitted with `cliptransfer send --retry`.
func (s Status) CanRestart() bool {
	switch s {
	case StatusFailed, StatusCancelled, StatusPaused:
		return true
	default:
		return false
	}
}

// ManifestEntry is the task-model view of a folder manifest line, decoupled
// from both protocol.ManifestEntry (wire shape) and digest.ManifestEntry
// (archive shape) so none of the three packages needs to import another.
type ManifestEntry struct {
	Path    string    `json:"path"`
	ModTime time.Time `json:"mod_time"`
}

// Task is the core entity of C3. The Java original restores timestamp
// fields on reload via reflection, working around a type whose fields were
// declared final; Params below is the "clean constructor/builder that
// accepts full state" spec.md section 9 asks for instead, used uniformly
// by fresh creation (New) and by deserialization (store.go's decode path).
type Task struct {
	TaskID         string
	FileName       string
	FilePath       string
	TransferType   protocol.TransferType
	TotalSize      int64
	ChunkSize      int
	ChunkTotal     int
	FileMD5        string
	FolderManifest []ManifestEntry

	Status Status

	CompletedChunks map[int]struct{}
	FailedChunks    map[int]string
	TransferredBytes int64

	CreateTime time.Time
	StartTime  time.Time
	EndTime    time.Time

	LastProgressTime     time.Time
	LastTransferredBytes int64

	ErrorMessage string
}

// Params carries every field needed to construct a Task, whether freshly
// created by a sender/receiver or rehydrated from the journal file.
type Params struct {
	TaskID           string
	FileName         string
	FilePath         string
	TransferType     protocol.TransferType
	TotalSize        int64
	ChunkSize        int
	ChunkTotal       int
	FileMD5          string
	FolderManifest   []ManifestEntry
	Status           Status
	CompletedChunks  []int
	FailedChunks     map[int]string
	TransferredBytes int64
	CreateTime       time.Time
	StartTime        time.Time
	EndTime          time.Time
	ErrorMessage     string
}

// New builds a Task from Params, normalizing nil maps/slices so callers
// never need a nil check afterward.
func New(p Params) *Task {
	completed := make(map[int]struct{}, len(p.CompletedChunks))
	for _, idx := range p.CompletedChunks {
		completed[idx] = struct{}{}
	}
	failed := make(map[int]string, len(p.FailedChunks))
	for idx, reason := range p.FailedChunks {
		if _, isDone := completed[idx]; isDone {
			continue
		}
		failed[idx] = reason
	}
	status := p.Status
	if status == "" {
		status = StatusPending
	}
	createTime := p.CreateTime
	if createTime.IsZero() {
		createTime = time.Now().UTC()
	}
	return &Task{
		TaskID:               p.TaskID,
		FileName:             p.FileName,
		FilePath:             p.FilePath,
		TransferType:         p.TransferType,
		TotalSize:            p.TotalSize,
		ChunkSize:            p.ChunkSize,
		ChunkTotal:           p.ChunkTotal,
		FileMD5:              p.FileMD5,
		FolderManifest:       p.FolderManifest,
		Status:               status,
		CompletedChunks:      completed,
		FailedChunks:         failed,
		TransferredBytes:     p.TransferredBytes,
		CreateTime:           createTime,
		StartTime:            p.StartTime,
		EndTime:              p.EndTime,
		LastProgressTime:     createTime,
		LastTransferredBytes: p.TransferredBytes,
		ErrorMessage:         p.ErrorMessage,
	}
}

// MarkChunkCompleted records a successful chunk, evicting it from
// FailedChunks per the invariant that the two sets are disjoint. It leaves
// LastProgressTime/LastTransferredBytes untouched; Speed advances that
// window itself, the way TransferTask.getTransferSpeed does in the Java
// original rather than markChunkCompleted.
func (t *Task) MarkChunkCompleted(index int, size int64) {
	t.CompletedChunks[index] = struct{}{}
	delete(t.FailedChunks, index)
	t.TransferredBytes += size
}

// MarkChunkFailed records a failed chunk, evicting it from CompletedChunks.
func (t *Task) MarkChunkFailed(index int, reason string) {
	delete(t.CompletedChunks, index)
	t.FailedChunks[index] = reason
}

// IsCompletionReady matches spec.md's completion-ready predicate: every
// chunk accounted for, none outstanding as failed.
func (t *Task) IsCompletionReady() bool {
	return len(t.CompletedChunks) == t.ChunkTotal && len(t.FailedChunks) == 0
}

// MissingIndices returns the sorted list of chunk indices not yet
// completed, used for the receiver's `incomplete` event.
func (t *Task) MissingIndices() []int {
	missing := make([]int, 0, t.ChunkTotal-len(t.CompletedChunks))
	for i := 0; i < t.ChunkTotal; i++ {
		if _, ok := t.CompletedChunks[i]; !ok {
			missing = append(missing, i)
		}
	}
	sort.Ints(missing)
	return missing
}

// Speed returns bytes/second since the last call to Speed, then advances
// the window, matching TransferTask.getTransferSpeed: lastTransferredBytes
// only moves inside the speed calculation itself, never on chunk
// completion, so the window always spans real elapsed time instead of
// collapsing to zero on every call.
func (t *Task) Speed() float64 {
	now := time.Now().UTC()
	elapsed := now.Sub(t.LastProgressTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	delta := t.TransferredBytes - t.LastTransferredBytes
	t.LastProgressTime = now
	t.LastTransferredBytes = t.TransferredBytes
	if delta <= 0 {
		return 0
	}
	return float64(delta) / elapsed
}

// ETA returns the estimated remaining time, mirroring
// TransferTask.getEstimatedRemainingTime. It returns 0 when speed cannot be
// estimated (no progress since the last sample yet).
func (t *Task) ETA() time.Duration {
	speed := t.Speed()
	if speed <= 0 {
		return 0
	}
	remaining := t.TotalSize - t.TransferredBytes
	if remaining <= 0 {
		return 0
	}
	return time.Duration(float64(remaining)/speed) * time.Second
}

// FormatSpeed renders a bytes/second rate using the same units as
// FormatSize, for the CLI progress suffix.
func FormatSpeed(bytesPerSecond float64) string {
	return FormatSize(int64(bytesPerSecond)) + "/s"
}

// FormatSize renders a byte count the way FileUtil.formatFileSize does:
// binary units, two decimal places, capped at GB.
func FormatSize(bytes int64) string {
	const unit = 1024.0
	value := float64(bytes)
	switch {
	case bytes < 1024:
		return fmt.Sprintf("%d B", bytes)
	case value < unit*unit:
		return fmt.Sprintf("%.2f KB", value/unit)
	case value < unit*unit*unit:
		return fmt.Sprintf("%.2f MB", value/(unit*unit))
	default:
		return fmt.Sprintf("%.2f GB", value/(unit*unit*unit))
	}
}
