package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"
)

const (
	// CaptureRate is the fixed microphone sample rate for both pipelines.
	CaptureRate = 16000
	// PlaybackRate is the fixed output sample rate for streamed model audio.
	PlaybackRate = 24000
)

// Buffer is a block of mono float32 samples at a known sample rate, ready for
// playback scheduling or analysis.
type Buffer struct {
	Samples []float32
	Rate    int
}

// Duration returns the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.Rate <= 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.Rate)
}

// DecodeBase64 decodes a base64 audio payload into raw bytes.
func DecodeBase64(payload string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode base64 audio: %w", err)
	}
	return raw, nil
}

// DecodePCM16LE converts raw little-endian 16-bit PCM bytes into a float32
// buffer at the given sample rate, scaled to [-1, 1).
func DecodePCM16LE(raw []byte, sampleRate int) (Buffer, error) {
	if len(raw)%2 != 0 {
		return Buffer{}, fmt.Errorf("pcm16 payload has odd length %d", len(raw))
	}
	samples := make([]float32, len(raw)/2)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		samples[i] = float32(s) / 32768.0
	}
	return Buffer{Samples: samples, Rate: sampleRate}, nil
}

// EncodePCM16LE converts float32 samples into little-endian 16-bit PCM bytes.
// Out-of-range samples are clamped.
func EncodePCM16LE(samples []float32) []byte {
	raw := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(quantizePCM16(v)))
	}
	return raw
}

// QuantizePCM16 converts float32 samples into int16 samples with clamping.
func QuantizePCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, v := range samples {
		out[i] = quantizePCM16(v)
	}
	return out
}

func quantizePCM16(v float32) int16 {
	s := float64(v) * 32768.0
	if s > 32767 {
		s = 32767
	} else if s < -32768 {
		s = -32768
	}
	return int16(s)
}

// WireFrame is one microphone frame in the shape the realtime transport
// expects: base64 PCM16 with a rate-qualified MIME type.
type WireFrame struct {
	Data     string `json:"data"`
	MIMEType string `json:"mimeType"`
}

// EncodeWireFrame packs float32 samples into a realtime transport frame.
func EncodeWireFrame(samples []float32, sampleRate int) WireFrame {
	return WireFrame{
		Data:     base64.StdEncoding.EncodeToString(EncodePCM16LE(samples)),
		MIMEType: fmt.Sprintf("audio/pcm;rate=%d", sampleRate),
	}
}
