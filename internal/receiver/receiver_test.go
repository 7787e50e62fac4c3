package receiver

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cliptransfer/internal/clipboard/fakeclipboard"
	"cliptransfer/internal/digest"
	"cliptransfer/internal/events"
	"cliptransfer/internal/protocol"
	"cliptransfer/internal/task"
)

func newTestStore(t *testing.T) *task.Store {
	t.Helper()
	s, err := task.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("task.Open: %v", err)
	}
	return s
}

func newTestEngine(t *testing.T, sink events.ReceiverSink) (*Engine, *fakeclipboard.Clipboard) {
	t.Helper()
	clip := fakeclipboard.New()
	store := newTestStore(t)
	e := New(clip, store, Config{ReceiveInterval: 5 * time.Millisecond, DownloadDir: t.TempDir()}, sink, nil)
	return e, clip
}

func publish(t *testing.T, clip *fakeclipboard.Clipboard, p protocol.Packet) {
	t.Helper()
	text, err := protocol.Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := clip.SetText(text); err != nil {
		t.Fatalf("SetText: %v", err)
	}
}

func chunkPacket(fileID string, index, total int, data []byte) *protocol.ChunkPacket {
	return &protocol.ChunkPacket{
		FileID:     fileID,
		ChunkIndex: index,
		ChunkTotal: total,
		ChunkMD5:   digest.MD5Bytes(data),
		Data:       base64.StdEncoding.EncodeToString(data),
		SendTime:   time.Now().UTC(),
	}
}

func TestS2DuplicateClipboardLatchCreatesOneTask(t *testing.T) {
	var startedCount int
	sink := events.ReceiverSink{
		OnTaskStarted: func(tk *task.Task) { startedCount++ },
	}
	e, clip := newTestEngine(t, sink)
	e.StartListening()
	defer e.StopListening()

	start := &protocol.StartPacket{
		FileID: "f1", FileName: "a.txt", TransferType: protocol.TransferFile,
		TotalSize: 10, ChunkSize: 10, ChunkTotal: 1, FileMD5: digest.MD5Bytes([]byte("0123456789")),
		StartTime: time.Now().UTC(),
	}
	publish(t, clip, start)
	time.Sleep(30 * time.Millisecond)
	publish(t, clip, start) // identical text again
	time.Sleep(30 * time.Millisecond)

	if startedCount != 1 {
		t.Fatalf("expected exactly 1 task_started, got %d", startedCount)
	}
}

func TestS3ChunkReorderingAssemblesCorrectly(t *testing.T) {
	data := []byte("abcdefghi") // 9 bytes, 3 chunks of 3
	fileID := "f-reorder"

	completed := make(chan string, 1)
	sink := events.ReceiverSink{
		OnTaskCompleted: func(tk *task.Task, outputPath string) { completed <- outputPath },
		OnTaskFailed:    func(tk *task.Task, err error) { t.Errorf("unexpected failure: %v", err) },
	}
	e, clip := newTestEngine(t, sink)
	e.StartListening()
	defer e.StopListening()

	start := &protocol.StartPacket{
		FileID: fileID, FileName: "reorder.txt", TransferType: protocol.TransferFile,
		TotalSize: 9, ChunkSize: 3, ChunkTotal: 3, FileMD5: digest.MD5Bytes(data),
		StartTime: time.Now().UTC(),
	}
	publish(t, clip, start)
	time.Sleep(20 * time.Millisecond)

	order := []int{2, 0, 1}
	for _, idx := range order {
		chunk := chunkPacket(fileID, idx, 3, data[idx*3:idx*3+3])
		publish(t, clip, chunk)
		time.Sleep(20 * time.Millisecond)
	}

	publish(t, clip, &protocol.EndPacket{FileID: fileID, FileName: "reorder.txt", ChunkTotal: 3, EndTime: time.Now().UTC()})

	select {
	case outputPath := <-completed:
		got, err := os.ReadFile(outputPath)
		if err != nil {
			t.Fatalf("read output: %v", err)
		}
		if string(got) != string(data) {
			t.Fatalf("assembled bytes = %q, want %q", got, data)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for completion")
	}
}

func TestS4CorruptChunkTriggersIncomplete(t *testing.T) {
	data := []byte("abcdefghi")
	fileID := "f-corrupt"

	incomplete := make(chan []int, 1)
	sink := events.ReceiverSink{
		OnTaskIncomplete: func(tk *task.Task, missing []int) { incomplete <- missing },
		OnTaskCompleted:  func(tk *task.Task, outputPath string) { t.Error("did not expect completion") },
	}
	e, clip := newTestEngine(t, sink)
	e.StartListening()
	defer e.StopListening()

	start := &protocol.StartPacket{
		FileID: fileID, FileName: "corrupt.txt", TransferType: protocol.TransferFile,
		TotalSize: 9, ChunkSize: 3, ChunkTotal: 3, FileMD5: digest.MD5Bytes(data),
		StartTime: time.Now().UTC(),
	}
	publish(t, clip, start)
	time.Sleep(20 * time.Millisecond)

	good0 := chunkPacket(fileID, 0, 3, data[0:3])
	publish(t, clip, good0)
	time.Sleep(20 * time.Millisecond)

	// Chunk 1 with a deliberately wrong md5 (corruption).
	bad1 := chunkPacket(fileID, 1, 3, data[3:6])
	bad1.ChunkMD5 = "00000000000000000000000000000000"
	publish(t, clip, bad1)
	time.Sleep(20 * time.Millisecond)

	good2 := chunkPacket(fileID, 2, 3, data[6:9])
	publish(t, clip, good2)
	time.Sleep(20 * time.Millisecond)

	publish(t, clip, &protocol.EndPacket{FileID: fileID, FileName: "corrupt.txt", ChunkTotal: 3, EndTime: time.Now().UTC()})

	select {
	case missing := <-incomplete:
		if len(missing) != 1 || missing[0] != 1 {
			t.Fatalf("expected missing=[1], got %v", missing)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for incomplete event")
	}
}

func TestS5FolderRoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(srcDir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(i)
	}
	if err := os.WriteFile(filepath.Join(srcDir, "sub", "b.bin"), payload, 0o644); err != nil {
		t.Fatal(err)
	}

	archivePath, manifest, err := digest.ArchiveFolder(srcDir)
	if err != nil {
		t.Fatalf("ArchiveFolder: %v", err)
	}
	defer os.Remove(archivePath)
	archiveBytes, err := os.ReadFile(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	archiveMD5 := digest.MD5Bytes(archiveBytes)

	fileID := "f-folder"
	completed := make(chan string, 1)
	sink := events.ReceiverSink{
		OnTaskCompleted: func(tk *task.Task, outputPath string) { completed <- outputPath },
		OnTaskFailed:    func(tk *task.Task, err error) { t.Errorf("unexpected failure: %v", err) },
	}
	e, clip := newTestEngine(t, sink)
	e.StartListening()
	defer e.StopListening()

	var wireManifest []protocol.ManifestEntry
	for _, m := range manifest {
		wireManifest = append(wireManifest, protocol.ManifestEntry{Path: m.Path, ModTime: m.ModTime})
	}

	chunkSize := 100
	chunkTotal := (len(archiveBytes) + chunkSize - 1) / chunkSize

	publish(t, clip, &protocol.StartPacket{
		FileID: fileID, FileName: "srcDir.zip", TransferType: protocol.TransferFolder,
		TotalSize: int64(len(archiveBytes)), ChunkSize: chunkSize, ChunkTotal: chunkTotal,
		FileMD5: archiveMD5, FolderManifest: wireManifest, StartTime: time.Now().UTC(),
	})
	time.Sleep(20 * time.Millisecond)

	for i := 0; i < chunkTotal; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(archiveBytes) {
			end = len(archiveBytes)
		}
		publish(t, clip, chunkPacket(fileID, i, chunkTotal, archiveBytes[start:end]))
		time.Sleep(15 * time.Millisecond)
	}

	publish(t, clip, &protocol.EndPacket{FileID: fileID, FileName: "srcDir.zip", ChunkTotal: chunkTotal, EndTime: time.Now().UTC()})

	select {
	case outputPath := <-completed:
		gotA, err := os.ReadFile(filepath.Join(outputPath, "a.txt"))
		if err != nil || string(gotA) != "x" {
			t.Fatalf("a.txt mismatch: %v %q", err, gotA)
		}
		gotB, err := os.ReadFile(filepath.Join(outputPath, "sub", "b.bin"))
		if err != nil || len(gotB) != len(payload) {
			t.Fatalf("sub/b.bin mismatch: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for folder completion")
	}
}
