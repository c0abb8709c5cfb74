package audio

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func TestEncodeWAVPCM16LEHeader(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 0.25}
	wav, err := EncodeWAVPCM16LE(samples, CaptureRate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(wav) != 44+len(samples)*2 {
		t.Fatalf("expected %d bytes, got %d", 44+len(samples)*2, len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatalf("bad container magic: %q %q", wav[0:4], wav[8:12])
	}
	if string(wav[12:16]) != "fmt " || string(wav[36:40]) != "data" {
		t.Fatalf("bad chunk ids: %q %q", wav[12:16], wav[36:40])
	}
	if format := binary.LittleEndian.Uint16(wav[20:22]); format != 1 {
		t.Fatalf("expected PCM format 1, got %d", format)
	}
	if channels := binary.LittleEndian.Uint16(wav[22:24]); channels != 1 {
		t.Fatalf("expected mono, got %d channels", channels)
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != CaptureRate {
		t.Fatalf("expected rate %d, got %d", CaptureRate, rate)
	}
	if bits := binary.LittleEndian.Uint16(wav[34:36]); bits != 16 {
		t.Fatalf("expected 16 bits per sample, got %d", bits)
	}
	if size := binary.LittleEndian.Uint32(wav[40:44]); size != uint32(len(samples)*2) {
		t.Fatalf("expected data size %d, got %d", len(samples)*2, size)
	}
	if !bytes.Equal(wav[44:], EncodePCM16LE(samples)) {
		t.Fatalf("payload does not match quantized samples")
	}
}

func TestWriteWAVPCM16LEFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "utterance.wav")
	samples := make([]float32, 160)
	if err := WriteWAVPCM16LEFile(path, samples, CaptureRate); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(raw) != 44+len(samples)*2 {
		t.Fatalf("expected %d bytes on disk, got %d", 44+len(samples)*2, len(raw))
	}
}
