// Package protocol implements the wire codec for cliptransfer packets: the
// framed JSON messages that carry a file across the clipboard channel.
//
// Packets are modeled as a tagged union rather than an inheritance
// hierarchy — a Type field selects the variant, and encode/decode dispatch
// on it. This mirrors original_source/protocol/Packet.java's own type tag
// (PacketType) while dropping its class-per-variant layout, which Go has no
// idiomatic equivalent for.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const timeLayout = "2006-01-02T15:04:05Z"

type Type string

const (
	TypeStart Type = "START"
	TypeChunk Type = "CHUNK"
	TypeEnd   Type = "END"
)

type TransferType string

const (
	TransferFile   TransferType = "FILE"
	TransferFolder TransferType = "FOLDER"
)

// ManifestEntry is one line of a folder transfer's manifest: a ZIP-relative
// path and the source file's modification time.
type ManifestEntry struct {
	Path    string    `json:"path"`
	ModTime time.Time `json:"-"`
}

// StartPacket opens a transfer and describes everything the receiver needs
// to allocate an assembly buffer and validate incoming chunks.
type StartPacket struct {
	FileID        string
	FileName      string
	TransferType  TransferType
	TotalSize     int64
	ChunkSize     int
	ChunkTotal    int
	FileMD5       string
	FolderManifest []ManifestEntry
	StartTime     time.Time
}

// ChunkPacket carries one Base64-encoded slice of the payload.
type ChunkPacket struct {
	FileID     string
	ChunkIndex int
	ChunkTotal int
	ChunkMD5   string
	Data       string
	SendTime   time.Time
}

// EndPacket closes a transfer.
type EndPacket struct {
	FileID     string
	FileName   string
	ChunkTotal int
	EndTime    time.Time
}

// Packet is implemented by StartPacket, ChunkPacket, and EndPacket.
type Packet interface {
	Kind() Type
	ID() string
}

func (p *StartPacket) Kind() Type { return TypeStart }
func (p *StartPacket) ID() string { return p.FileID }
func (p *ChunkPacket) Kind() Type { return TypeChunk }
func (p *ChunkPacket) ID() string { return p.FileID }
func (p *EndPacket) Kind() Type   { return TypeEnd }
func (p *EndPacket) ID() string   { return p.FileID }

// RejectReason names why decode refused a piece of clipboard text. The
// codec never panics or returns a generic error — every failure carries
// one of these so callers (chiefly the receiver's poll loop) can log
// cheaply and move on.
type RejectReason string

const (
	RejectNotJSONShape  RejectReason = "not-json-shape"
	RejectInvalidJSON   RejectReason = "invalid-json"
	RejectUnknownType   RejectReason = "unknown-packet-type"
	RejectMissingField  RejectReason = "missing-field"
	RejectInvalidField  RejectReason = "invalid-field"
)

// DecodeError is returned by Decode; it is never a panic, matching C1's
// contract that parsing must be cheap, conservative, and never raise.
type DecodeError struct {
	Reason RejectReason
	Detail string
}

func (e *DecodeError) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func reject(reason RejectReason, detail string) error {
	return &DecodeError{Reason: reason, Detail: detail}
}

// looksLikeObject implements the fast-path check: trimmed text must begin
// and end with braces before we bother handing it to encoding/json.
func looksLikeObject(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 2 || trimmed[0] != '{' || trimmed[len(trimmed)-1] != '}' {
		return "", false
	}
	return trimmed, true
}

type wireManifestEntry struct {
	Path    string      `json:"path"`
	ModTime interface{} `json:"mod_time"`
}

type wireEnvelope struct {
	Type           string              `json:"type"`
	FileID         string              `json:"file_id"`
	FileName       string              `json:"file_name,omitempty"`
	TransferType   string              `json:"transfer_type,omitempty"`
	TotalSize      int64               `json:"total_size,omitempty"`
	ChunkSize      int                 `json:"chunk_size,omitempty"`
	ChunkTotal     int                 `json:"chunk_total,omitempty"`
	FileMD5        string              `json:"file_md5,omitempty"`
	FolderManifest []wireManifestEntry `json:"folder_manifest,omitempty"`
	StartTime      string              `json:"start_time,omitempty"`
	SendTime       string              `json:"send_time,omitempty"`
	EndTime        string              `json:"end_time,omitempty"`
	ChunkIndex     int                 `json:"chunk_index,omitempty"`
	ChunkMD5       string              `json:"chunk_md5,omitempty"`
	Data           string              `json:"data,omitempty"`
}

// parseTimeField implements the §4.1 timestamp robustness rule: missing
// defaults to now, malformed is logged-and-replaced with now. The codec is
// pure, so "logged" here just means the caller finds out via ok=false and
// may log it; the fallback value is always usable.
func parseTimeField(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Now().UTC(), true
	}
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Now().UTC(), false
	}
	return t.UTC(), true
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.UTC().Format(timeLayout)
}

func decodeManifestModTime(raw interface{}) (time.Time, error) {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return time.Time{}, fmt.Errorf("empty mod_time")
		}
		if t, err := time.Parse(timeLayout, v); err == nil {
			return t.UTC(), nil
		}
		return time.Time{}, fmt.Errorf("unparseable mod_time string %q", v)
	case float64:
		ms := int64(v)
		return time.UnixMilli(ms).UTC(), nil
	case nil:
		return time.Time{}, fmt.Errorf("missing mod_time")
	default:
		return time.Time{}, fmt.Errorf("unsupported mod_time encoding %T", raw)
	}
}

func encodeManifest(entries []ManifestEntry) []wireManifestEntry {
	if len(entries) == 0 {
		return nil
	}
	out := make([]wireManifestEntry, len(entries))
	for i, e := range entries {
		out[i] = wireManifestEntry{Path: e.Path, ModTime: e.ModTime.UnixMilli()}
	}
	return out
}

// Decode parses clipboard text into a Packet, or returns a *DecodeError.
func Decode(text string) (Packet, error) {
	trimmed, ok := looksLikeObject(text)
	if !ok {
		return nil, reject(RejectNotJSONShape, "")
	}

	var env wireEnvelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		return nil, reject(RejectInvalidJSON, err.Error())
	}

	if env.Type == "" {
		return nil, reject(RejectMissingField, "type")
	}
	if env.FileID == "" {
		return nil, reject(RejectMissingField, "file_id")
	}

	switch Type(env.Type) {
	case TypeStart:
		return decodeStart(&env)
	case TypeChunk:
		return decodeChunk(&env)
	case TypeEnd:
		return decodeEnd(&env)
	default:
		return nil, reject(RejectUnknownType, env.Type)
	}
}

func decodeStart(env *wireEnvelope) (*StartPacket, error) {
	if env.FileName == "" {
		return nil, reject(RejectMissingField, "file_name")
	}
	tt := TransferType(env.TransferType)
	if tt != TransferFile && tt != TransferFolder {
		return nil, reject(RejectInvalidField, "transfer_type")
	}
	if env.TotalSize <= 0 {
		return nil, reject(RejectInvalidField, "total_size")
	}
	if env.ChunkSize <= 0 {
		return nil, reject(RejectInvalidField, "chunk_size")
	}
	if env.ChunkTotal <= 0 {
		return nil, reject(RejectInvalidField, "chunk_total")
	}

	var manifest []ManifestEntry
	if len(env.FolderManifest) > 0 {
		manifest = make([]ManifestEntry, 0, len(env.FolderManifest))
		for _, m := range env.FolderManifest {
			if m.Path == "" {
				continue
			}
			mt, err := decodeManifestModTime(m.ModTime)
			if err != nil {
				mt = time.Now().UTC()
			}
			manifest = append(manifest, ManifestEntry{Path: m.Path, ModTime: mt})
		}
	}

	startTime, _ := parseTimeField(env.StartTime)

	return &StartPacket{
		FileID:         env.FileID,
		FileName:       env.FileName,
		TransferType:   tt,
		TotalSize:      env.TotalSize,
		ChunkSize:      env.ChunkSize,
		ChunkTotal:     env.ChunkTotal,
		FileMD5:        strings.ToLower(env.FileMD5),
		FolderManifest: manifest,
		StartTime:      startTime,
	}, nil
}

func decodeChunk(env *wireEnvelope) (*ChunkPacket, error) {
	if env.ChunkTotal <= 0 {
		return nil, reject(RejectInvalidField, "chunk_total")
	}
	if env.ChunkIndex < 0 || env.ChunkIndex >= env.ChunkTotal {
		return nil, reject(RejectInvalidField, "chunk_index")
	}
	if env.ChunkMD5 == "" {
		return nil, reject(RejectMissingField, "chunk_md5")
	}
	if env.Data == "" {
		return nil, reject(RejectMissingField, "data")
	}

	sendTime, _ := parseTimeField(env.SendTime)

	return &ChunkPacket{
		FileID:     env.FileID,
		ChunkIndex: env.ChunkIndex,
		ChunkTotal: env.ChunkTotal,
		ChunkMD5:   strings.ToLower(env.ChunkMD5),
		Data:       env.Data,
		SendTime:   sendTime,
	}, nil
}

func decodeEnd(env *wireEnvelope) (*EndPacket, error) {
	if env.FileName == "" {
		return nil, reject(RejectMissingField, "file_name")
	}
	if env.ChunkTotal <= 0 {
		return nil, reject(RejectInvalidField, "chunk_total")
	}

	endTime, _ := parseTimeField(env.EndTime)

	return &EndPacket{
		FileID:     env.FileID,
		FileName:   env.FileName,
		ChunkTotal: env.ChunkTotal,
		EndTime:    endTime,
	}, nil
}

// Encode serializes a Packet back into clipboard text. It fails only for a
// Packet type it does not know. It does not validate field values; a
// packet built with invalid fields is encoded as is and rejected later by
// Decode.
func Encode(p Packet) (string, error) {
	switch v := p.(type) {
	case *StartPacket:
		return encodeStart(v)
	case *ChunkPacket:
		return encodeChunk(v)
	case *EndPacket:
		return encodeEnd(v)
	default:
		return "", fmt.Errorf("protocol: unsupported packet type %T", p)
	}
}

func encodeStart(p *StartPacket) (string, error) {
	env := wireEnvelope{
		Type:           string(TypeStart),
		FileID:         p.FileID,
		FileName:       p.FileName,
		TransferType:   string(p.TransferType),
		TotalSize:      p.TotalSize,
		ChunkSize:      p.ChunkSize,
		ChunkTotal:     p.ChunkTotal,
		FileMD5:        p.FileMD5,
		FolderManifest: encodeManifest(p.FolderManifest),
		StartTime:      formatTime(p.StartTime),
	}
	b, err := json.Marshal(env)
	return string(b), err
}

func encodeChunk(p *ChunkPacket) (string, error) {
	env := wireEnvelope{
		Type:       string(TypeChunk),
		FileID:     p.FileID,
		ChunkIndex: p.ChunkIndex,
		ChunkTotal: p.ChunkTotal,
		ChunkMD5:   p.ChunkMD5,
		Data:       p.Data,
		SendTime:   formatTime(p.SendTime),
	}
	b, err := json.Marshal(env)
	return string(b), err
}

func encodeEnd(p *EndPacket) (string, error) {
	env := wireEnvelope{
		Type:       string(TypeEnd),
		FileID:     p.FileID,
		FileName:   p.FileName,
		ChunkTotal: p.ChunkTotal,
		EndTime:    formatTime(p.EndTime),
	}
	b, err := json.Marshal(env)
	return string(b), err
}
