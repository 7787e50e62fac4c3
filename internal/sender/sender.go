// Package sender implements C4, the Sender Engine: it drives exactly one
// active transfer at a time through the clipboard, chunking a file (or an
// archived folder) into START/CHUNK/END packets.
//
// Grounded on internal/transfer/fileshare.go's QSender.SendFile: the same
// "open file, stat it, read into a fixed buffer in a loop, log progress"
// shape, generalized from a QUIC stream write to a clipboard publish, and
// with google/uuid supplying file_id the way fileshare.go uses it for peer
// IDs. The single mutable *QSender/*QListener singleton pair
// (transfer.Getfileshare) is replaced with an explicit *Engine value per
// spec.md section 9.
package sender

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	exprand "golang.org/x/exp/rand"

	"cliptransfer/internal/apperror"
	"cliptransfer/internal/applog"
	"cliptransfer/internal/clipboard"
	"cliptransfer/internal/digest"
	"cliptransfer/internal/events"
	"cliptransfer/internal/protocol"
	"cliptransfer/internal/task"
)

const (
	publishRetries    = 3
	publishRetryDelay = 500 * time.Millisecond
	pausePollInterval = 100 * time.Millisecond
)

// State is the Sender Engine's single-active-transfer state machine.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Engine is C4. It is safe to share across goroutines: pause/resume/stop
// may be called from any caller while the worker goroutine drives the
// active transfer, exactly as spec.md section 5 describes for the sender.
type Engine struct {
	clip      clipboard.Clipboard
	store     *task.Store
	logger    *applog.Logger
	sink      events.SenderSink
	chunkSize int
	sendInterval time.Duration

	mu          sync.Mutex
	state       State
	currentTask *task.Task

	pauseFlag  atomic.Bool
	stopFlag   atomic.Bool
}

// Config bundles the tunables the Sender Engine needs from
// internal/config, avoiding a direct dependency on the config package so
// sender tests can set values directly.
type Config struct {
	ChunkSize    int
	SendInterval time.Duration
}

// New builds a Sender Engine with explicit dependencies, replacing the
// teacher's process-singleton wiring.
func New(clip clipboard.Clipboard, store *task.Store, cfg Config, sink events.SenderSink, logger *applog.Logger) *Engine {
	if logger == nil {
		logger = applog.Default
	}
	return &Engine{
		clip:         clip,
		store:        store,
		logger:       logger,
		sink:         sink,
		chunkSize:    cfg.ChunkSize,
		sendInterval: cfg.SendInterval,
		state:        StateIdle,
	}
}

func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StateRunning
}

func (e *Engine) IsPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StatePaused
}

func (e *Engine) CurrentTask() *task.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentTask
}

// Send begins transferring path — a file or a folder — and returns the new
// task_id immediately; transfer runs on a dedicated goroutine, mirroring
// the teacher's "one worker per active transfer" shape.
func (e *Engine) Send(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", apperror.New(apperror.KindValidation, "sender", "path does not exist: "+path, err)
	}

	e.mu.Lock()
	if e.state == StateRunning || e.state == StatePaused {
		e.mu.Unlock()
		return "", apperror.New(apperror.KindLifecycle, "sender", "a transfer is already active", nil)
	}
	e.pauseFlag.Store(false)
	e.stopFlag.Store(false)
	e.state = StateRunning
	e.mu.Unlock()

	fileID := uuid.New().String()

	go func() {
		e.run(fileID, path, info)
		// run leaves the state RUNNING only when it gave up before the task
		// was created (archive, stat or hash error).
		e.mu.Lock()
		if e.state == StateRunning {
			e.state = StateFailed
		}
		e.mu.Unlock()
	}()

	return fileID, nil
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) run(fileID, sourcePath string, info os.FileInfo) {
	var (
		transmitPath string
		fileName     string
		transferType protocol.TransferType
		manifest     []task.ManifestEntry
		wireManifest []protocol.ManifestEntry
		cleanupTemp  func()
	)
	cleanupTemp = func() {}

	if info.IsDir() {
		archivePath, digestManifest, err := archiveFolderWithRandomizedName(sourcePath)
		if err != nil {
			e.sink.ErrorMsg(fmt.Sprintf("archive folder %s: %v", sourcePath, err))
			return
		}
		transmitPath = archivePath
		fileName = filepath.Base(filepath.Clean(sourcePath)) + ".zip"
		transferType = protocol.TransferFolder
		for _, m := range digestManifest {
			manifest = append(manifest, task.ManifestEntry{Path: m.Path, ModTime: m.ModTime})
			wireManifest = append(wireManifest, protocol.ManifestEntry{Path: m.Path, ModTime: m.ModTime})
		}
		cleanupTemp = func() { os.Remove(archivePath) }
	} else {
		transmitPath = sourcePath
		fileName = filepath.Base(sourcePath)
		transferType = protocol.TransferFile
	}
	defer cleanupTemp()

	stat, err := os.Stat(transmitPath)
	if err != nil {
		e.sink.ErrorMsg(fmt.Sprintf("stat %s: %v", transmitPath, err))
		return
	}
	totalSize := stat.Size()
	fileMD5, err := digest.MD5File(transmitPath)
	if err != nil {
		e.sink.ErrorMsg(fmt.Sprintf("hash %s: %v", transmitPath, err))
		return
	}

	chunkTotal := chunkCount(totalSize, int64(e.chunkSize))

	t := task.New(task.Params{
		TaskID:         fileID,
		FileName:       fileName,
		FilePath:       sourcePath,
		TransferType:   transferType,
		TotalSize:      totalSize,
		ChunkSize:      e.chunkSize,
		ChunkTotal:     chunkTotal,
		FileMD5:        fileMD5,
		FolderManifest: manifest,
		Status:         task.StatusRunning,
		CreateTime:     time.Now().UTC(),
		StartTime:      time.Now().UTC(),
	})

	e.mu.Lock()
	e.currentTask = t
	e.state = StateRunning
	e.mu.Unlock()

	if err := e.store.Add(t); err != nil {
		e.logger.Warnf("sender: failed to persist new task %s: %v", fileID, err)
	}
	e.sink.TaskStarted(t)

	startPacket := &protocol.StartPacket{
		FileID:         fileID,
		FileName:       fileName,
		TransferType:   transferType,
		TotalSize:      totalSize,
		ChunkSize:      e.chunkSize,
		ChunkTotal:     chunkTotal,
		FileMD5:        fileMD5,
		FolderManifest: wireManifest,
		StartTime:      time.Now().UTC(),
	}
	if !e.publishFatal(startPacket) {
		e.fail(t, apperror.New(apperror.KindIOFatal, "sender", "failed to publish START packet", nil))
		return
	}

	e.waitInterval()

	f, err := os.Open(transmitPath)
	if err != nil {
		e.fail(t, apperror.New(apperror.KindIOFatal, "sender", "failed to open source for reading", err))
		return
	}
	defer f.Close()

	buf := make([]byte, e.chunkSize)
	for i := 0; i < chunkTotal; i++ {
		if e.observeCancellation(t) {
			return
		}
		e.waitWhilePaused(t)
		if e.observeCancellation(t) {
			return
		}

		offset := int64(i) * int64(e.chunkSize)
		length := int64(e.chunkSize)
		if remaining := totalSize - offset; remaining < length {
			length = remaining
		}

		chunkBytes := buf[:length]
		if _, err := f.ReadAt(chunkBytes, offset); err != nil && err != io.EOF {
			t.MarkChunkFailed(i, "read error: "+err.Error())
			e.storeUpdate(t)
			continue
		}

		chunkCopy := make([]byte, length)
		copy(chunkCopy, chunkBytes)
		chunkMD5 := digest.MD5Bytes(chunkCopy)
		encoded := base64.StdEncoding.EncodeToString(chunkCopy)

		chunkPacket := &protocol.ChunkPacket{
			FileID:     fileID,
			ChunkIndex: i,
			ChunkTotal: chunkTotal,
			ChunkMD5:   chunkMD5,
			Data:       encoded,
			SendTime:   time.Now().UTC(),
		}

		if e.publishBestEffort(chunkPacket) {
			t.MarkChunkCompleted(i, length)
		} else {
			t.MarkChunkFailed(i, "clipboard write failed")
		}
		e.storeUpdate(t)
		e.sink.Progress(t, len(t.CompletedChunks), chunkTotal)

		e.waitInterval()
	}

	if e.observeCancellation(t) {
		return
	}

	endPacket := &protocol.EndPacket{
		FileID:     fileID,
		FileName:   fileName,
		ChunkTotal: chunkTotal,
		EndTime:    time.Now().UTC(),
	}
	if !e.publishFatal(endPacket) {
		e.fail(t, apperror.New(apperror.KindIOFatal, "sender", "failed to publish END packet", nil))
		return
	}

	t.Status = task.StatusCompleted
	t.EndTime = time.Now().UTC()
	e.storeUpdate(t)
	e.setState(StateCompleted)
	e.sink.TaskCompleted(t)
}

// archiveFolderWithRandomizedName picks the scratch .zip path itself,
// grounded on fileshare.go's exp.Intn(10000) filename-collision
// disambiguation: a colliding scratch name in the OS temp dir is possible
// under concurrent sends, so a fresh random suffix is drawn on each
// collision before handing off to digest.ArchiveFolderTo.
func archiveFolderWithRandomizedName(dir string) (string, []digest.ManifestEntry, error) {
	base := filepath.Base(filepath.Clean(dir))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "archive"
	}
	tmpDir := os.TempDir()

	for attempt := 0; attempt < 10; attempt++ {
		candidate := filepath.Join(tmpDir, fmt.Sprintf("%s-%d.zip", base, exprand.Intn(1_000_000)))
		if _, err := os.Stat(candidate); err == nil {
			continue
		}
		manifest, err := digest.ArchiveFolderTo(dir, candidate)
		if err != nil {
			return "", nil, err
		}
		return candidate, manifest, nil
	}
	return "", nil, apperror.New(apperror.KindIOFatal, "sender", "could not allocate a scratch archive name", nil)
}

func chunkCount(totalSize, chunkSize int64) int {
	if chunkSize <= 0 {
		return 0
	}
	n := totalSize / chunkSize
	if totalSize%chunkSize != 0 {
		n++
	}
	if n == 0 {
		n = 1
	}
	return int(n)
}

func (e *Engine) fail(t *task.Task, err error) {
	t.Status = task.StatusFailed
	t.EndTime = time.Now().UTC()
	t.ErrorMessage = err.Error()
	e.storeUpdate(t)
	e.setState(StateFailed)
	e.sink.TaskFailed(t, err)
}

func (e *Engine) storeUpdate(t *task.Task) {
	if err := e.store.Update(t); err != nil {
		e.logger.Warnf("sender: failed to persist task %s: %v", t.TaskID, err)
	}
}

// observeCancellation checks the stop flag at a between-chunk boundary, as
// spec.md section 4.4 requires; it never interrupts an in-flight publish.
func (e *Engine) observeCancellation(t *task.Task) bool {
	if !e.stopFlag.Load() {
		return false
	}
	t.Status = task.StatusCancelled
	t.EndTime = time.Now().UTC()
	e.storeUpdate(t)
	e.setState(StateCancelled)
	e.sink.TaskCancelled(t)
	return true
}

func (e *Engine) waitWhilePaused(t *task.Task) {
	if !e.pauseFlag.Load() {
		return
	}
	e.setState(StatePaused)
	e.sink.TaskPaused(t)
	for e.pauseFlag.Load() && !e.stopFlag.Load() {
		time.Sleep(pausePollInterval)
	}
	if !e.stopFlag.Load() {
		e.setState(StateRunning)
		e.sink.TaskResumed(t)
	}
}

func (e *Engine) waitInterval() {
	if e.sendInterval > 0 {
		time.Sleep(e.sendInterval)
	}
}

// publishFatal publishes a START or END packet: any failure after retries
// is fatal to the task, per spec.md section 4.4.
func (e *Engine) publishFatal(p protocol.Packet) bool {
	return e.publishWithRetry(p)
}

// publishBestEffort publishes a CHUNK packet: a failure after retries
// marks only that chunk failed, and the loop continues.
func (e *Engine) publishBestEffort(p protocol.Packet) bool {
	return e.publishWithRetry(p)
}

func (e *Engine) publishWithRetry(p protocol.Packet) bool {
	text, err := protocol.Encode(p)
	if err != nil {
		e.logger.Errorf("sender: encode %s failed: %v", p.Kind(), err)
		return false
	}
	for attempt := 0; attempt < publishRetries; attempt++ {
		if err := e.clip.SetText(text); err == nil {
			return true
		}
		if attempt < publishRetries-1 {
			time.Sleep(publishRetryDelay)
		}
	}
	return false
}

// Pause requests the running transfer pause at the next between-chunk
// check. No-op when idle.
func (e *Engine) Pause() {
	if e.IsRunning() {
		e.pauseFlag.Store(true)
	}
}

// Resume clears the pause flag; the worker observes it at its next poll.
func (e *Engine) Resume() {
	if e.IsPaused() {
		e.pauseFlag.Store(false)
	}
}

// Stop requests cancellation at the next between-chunk check. No-op when
// idle.
func (e *Engine) Stop() {
	e.mu.Lock()
	active := e.state == StateRunning || e.state == StatePaused
	e.mu.Unlock()
	if active {
		e.stopFlag.Store(true)
	}
}
