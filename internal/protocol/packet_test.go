package protocol

import (
	"strings"
	"testing"
	"time"
)

func TestEncodeDecodeStartRoundTrip(t *testing.T) {
	start := &StartPacket{
		FileID:       "f-1",
		FileName:     "report.pdf",
		TransferType: TransferFile,
		TotalSize:    1200,
		ChunkSize:    512,
		ChunkTotal:   3,
		FileMD5:      strings.Repeat("a", 32),
		StartTime:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	text, err := Encode(start)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(text)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	gotStart, ok := got.(*StartPacket)
	if !ok {
		t.Fatalf("Decode returned %T, want *StartPacket", got)
	}
	if gotStart.FileID != start.FileID || gotStart.FileName != start.FileName ||
		gotStart.TotalSize != start.TotalSize || gotStart.ChunkTotal != start.ChunkTotal ||
		gotStart.FileMD5 != start.FileMD5 || !gotStart.StartTime.Equal(start.StartTime) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", gotStart, start)
	}
}

func TestEncodeDecodeChunkRoundTrip(t *testing.T) {
	chunk := &ChunkPacket{
		FileID:     "f-1",
		ChunkIndex: 0,
		ChunkTotal: 3,
		ChunkMD5:   strings.Repeat("b", 32),
		Data:       "aGVsbG8=",
		SendTime:   time.Now().UTC(),
	}
	text, err := Encode(chunk)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(text)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	gotChunk := got.(*ChunkPacket)
	if gotChunk.ChunkIndex != 0 || gotChunk.Data != chunk.Data || gotChunk.ChunkMD5 != chunk.ChunkMD5 {
		t.Fatalf("round trip mismatch: got %+v", gotChunk)
	}
}

func TestDecodeRejectsNonObjectShape(t *testing.T) {
	for _, text := range []string{"", "hello world", "[1,2,3]", "{unterminated"} {
		if _, err := Decode(text); err == nil {
			t.Errorf("Decode(%q) succeeded, want rejection", text)
		}
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, err := Decode(`{"type":"PING","file_id":"x"}`)
	if err == nil {
		t.Fatal("expected rejection for unknown type")
	}
	de, ok := err.(*DecodeError)
	if !ok || de.Reason != RejectUnknownType {
		t.Fatalf("got %v, want RejectUnknownType", err)
	}
}

func TestDecodeMissingTimeDefaultsToNow(t *testing.T) {
	text := `{"type":"END","file_id":"f-1","file_name":"a.txt","chunk_total":3}`
	got, err := Decode(text)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	end := got.(*EndPacket)
	if time.Since(end.EndTime) > 5*time.Second {
		t.Fatalf("expected EndTime near now, got %v", end.EndTime)
	}
}

func TestDecodeMalformedTimeReplacedWithNow(t *testing.T) {
	text := `{"type":"END","file_id":"f-1","file_name":"a.txt","chunk_total":3,"end_time":"not-a-time"}`
	got, err := Decode(text)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	end := got.(*EndPacket)
	if time.Since(end.EndTime) > 5*time.Second {
		t.Fatalf("expected EndTime near now, got %v", end.EndTime)
	}
}

func TestDecodeManifestAcceptsStringAndEpochModTime(t *testing.T) {
	text := `{"type":"START","file_id":"f-1","file_name":"dir.zip","transfer_type":"FOLDER",` +
		`"total_size":10,"chunk_size":5,"chunk_total":2,"file_md5":"` + strings.Repeat("c", 32) + `",` +
		`"folder_manifest":[{"path":"a.txt","mod_time":"2026-01-01T00:00:00Z"},{"path":"sub/b.bin","mod_time":1700000000000}]}`

	got, err := Decode(text)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	start := got.(*StartPacket)
	if len(start.FolderManifest) != 2 {
		t.Fatalf("expected 2 manifest entries, got %d", len(start.FolderManifest))
	}
	if start.FolderManifest[0].Path != "a.txt" || start.FolderManifest[1].Path != "sub/b.bin" {
		t.Fatalf("unexpected manifest paths: %+v", start.FolderManifest)
	}
}

func TestDecodeChunkIndexOutOfRangeRejected(t *testing.T) {
	text := `{"type":"CHUNK","file_id":"f-1","chunk_index":5,"chunk_total":3,"chunk_md5":"` +
		strings.Repeat("d", 32) + `","data":"aGk="}`
	if _, err := Decode(text); err == nil {
		t.Fatal("expected rejection for out-of-range chunk_index")
	}
}

func TestDecodeStartRejectsMissingOrInvalidFields(t *testing.T) {
	cases := []string{
		`{"type":"START","file_id":"f-1"}`,
		`{"type":"START","file_id":"f-1","file_name":"a.txt","transfer_type":"FILE","total_size":0,"chunk_size":5,"chunk_total":1}`,
		`{"type":"START","file_id":"f-1","file_name":"a.txt","transfer_type":"BOGUS","total_size":10,"chunk_size":5,"chunk_total":2}`,
	}
	for _, text := range cases {
		if _, err := Decode(text); err == nil {
			t.Errorf("Decode(%q) succeeded, want rejection", text)
		}
	}
}
