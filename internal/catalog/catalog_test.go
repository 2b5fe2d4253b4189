package catalog

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func writeString(buf *bytes.Buffer, s string) {
	_ = binary.Write(buf, binary.LittleEndian, uint64(len(s)))
	buf.WriteString(s)
}

func writeKVString(buf *bytes.Buffer, key, val string) {
	writeString(buf, key)
	_ = binary.Write(buf, binary.LittleEndian, uint32(ggufString))
	writeString(buf, val)
}

func writeKVUint32(buf *bytes.Buffer, key string, val uint32) {
	writeString(buf, key)
	_ = binary.Write(buf, binary.LittleEndian, uint32(ggufUint32))
	_ = binary.Write(buf, binary.LittleEndian, val)
}

// ggufHeader builds a minimal GGUF v3 header with the given KV writers.
func ggufHeader(kvs ...func(*bytes.Buffer)) []byte {
	buf := &bytes.Buffer{}
	buf.WriteString(ggufMagic)
	_ = binary.Write(buf, binary.LittleEndian, uint32(3))
	_ = binary.Write(buf, binary.LittleEndian, uint64(0)) // tensor count
	_ = binary.Write(buf, binary.LittleEndian, uint64(len(kvs)))
	for _, kv := range kvs {
		kv(buf)
	}
	return buf.Bytes()
}

func TestParseGGUFLayerCount(t *testing.T) {
	data := ggufHeader(
		func(b *bytes.Buffer) { writeKVString(b, "general.name", "test model") },
		func(b *bytes.Buffer) { writeKVString(b, "general.architecture", "llama") },
		func(b *bytes.Buffer) { writeKVUint32(b, "llama.block_count", 32) },
	)
	n, err := parseGGUFLayerCount(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if n != 32 {
		t.Fatalf("layers = %d, want 32", n)
	}
}

func TestParseGGUFLayerCountBeforeArchitecture(t *testing.T) {
	data := ggufHeader(
		func(b *bytes.Buffer) { writeKVUint32(b, "qwen2.block_count", 48) },
		func(b *bytes.Buffer) { writeKVString(b, "general.architecture", "qwen2") },
	)
	n, err := parseGGUFLayerCount(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if n != 48 {
		t.Fatalf("layers = %d, want 48", n)
	}
}

func TestParseGGUFSkipsArrays(t *testing.T) {
	data := ggufHeader(
		func(b *bytes.Buffer) {
			writeString(b, "tokenizer.ggml.tokens")
			_ = binary.Write(b, binary.LittleEndian, uint32(ggufArray))
			_ = binary.Write(b, binary.LittleEndian, uint32(ggufString))
			_ = binary.Write(b, binary.LittleEndian, uint64(2))
			writeString(b, "<s>")
			writeString(b, "</s>")
		},
		func(b *bytes.Buffer) { writeKVString(b, "general.architecture", "llama") },
		func(b *bytes.Buffer) { writeKVUint32(b, "llama.block_count", 26) },
	)
	n, err := parseGGUFLayerCount(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if n != 26 {
		t.Fatalf("layers = %d, want 26", n)
	}
}

func TestParseGGUFBadMagic(t *testing.T) {
	if _, err := parseGGUFLayerCount(bytes.NewReader([]byte("NOTGGUFDATA"))); err == nil {
		t.Fatalf("expected error for bad magic")
	}
}

func TestScanKindsAndLookup(t *testing.T) {
	dir := t.TempDir()
	gguf := ggufHeader(
		func(b *bytes.Buffer) { writeKVString(b, "general.architecture", "llama") },
		func(b *bytes.Buffer) { writeKVUint32(b, "llama.block_count", 32) },
	)
	if err := os.WriteFile(filepath.Join(dir, "llama3-8b-q4.gguf"), gguf, 0o644); err != nil {
		t.Fatalf("write gguf: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sd15.safetensors"), bytes.Repeat([]byte{1}, 128), 0o644); err != nil {
		t.Fatalf("write safetensors: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write txt: %v", err)
	}

	store, err := Open(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	models := store.List()
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %d: %+v", len(models), models)
	}

	text, err := store.Lookup("llama3-8b-q4.gguf")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if text.Kind != KindText || text.Layers != 32 || text.SizeBytes != int64(len(gguf)) {
		t.Fatalf("unexpected text model: %+v", text)
	}

	img, err := store.Lookup("sd15.safetensors")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if img.Kind != KindImage || img.SizeBytes != 128 {
		t.Fatalf("unexpected image model: %+v", img)
	}

	if _, err := store.Lookup("missing.gguf"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRescanPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(store.List()) != 0 {
		t.Fatalf("expected empty catalog")
	}
	if err := os.WriteFile(filepath.Join(dir, "new.ckpt"), []byte("w"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.Rescan(); err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if len(store.List()) != 1 {
		t.Fatalf("rescan missed new file")
	}
}

func TestReasoningMarker(t *testing.T) {
	if !hasReasoningMarker("deepseek-R1-distill-q4.gguf") {
		t.Fatalf("expected reasoning marker")
	}
	if hasReasoningMarker("llama3-8b-q4.gguf") {
		t.Fatalf("unexpected reasoning marker")
	}
}
