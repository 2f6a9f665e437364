// Package audio converts captured samples into the wire format the
// transcription backend expects: signed 16-bit little-endian PCM,
// 16 kHz, mono, in bounded frames.
package audio

import (
	"encoding/binary"
	"time"
)

const (
	// SampleRate is the only sample rate the pipeline supports.
	SampleRate = 16000
	// Channels is fixed at mono.
	Channels = 1
	// BytesPerSample for s16le.
	BytesPerSample = 2

	// DefaultFrameSamples bounds per-frame latency: 2048 samples is 128 ms
	// of audio at 16 kHz.
	DefaultFrameSamples = 2048
	// DefaultFrameBytes is the frame cap in bytes.
	DefaultFrameBytes = DefaultFrameSamples * BytesPerSample
)

// Frame is one bounded chunk of s16le PCM audio. Ownership passes from
// the capture stage to the transmission stage; it is never mutated after
// creation.
type Frame struct {
	Data      []byte
	Timestamp time.Time
}

// Duration returns the play time of the frame.
func (f Frame) Duration() time.Duration {
	samples := len(f.Data) / BytesPerSample
	return time.Duration(samples) * time.Second / SampleRate
}

// EncodeSample converts one float sample in [-1, 1] to int16. Values are
// clamped first; negative values scale by 32768 and non-negative by 32767
// so that +1.0 cannot overflow.
func EncodeSample(s float32) int16 {
	if s < -1 {
		s = -1
	} else if s > 1 {
		s = 1
	}
	if s < 0 {
		return int16(s * 32768)
	}
	return int16(s * 32767)
}

// EncodeFrame converts a block of float samples to s16le bytes.
func EncodeFrame(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(EncodeSample(s)))
	}
	return out
}

// Framer re-chunks arbitrary byte blocks of s16le audio into frames of at
// most frameBytes, keeping sample alignment. Partial trailing data is
// carried over to the next Push.
type Framer struct {
	frameBytes int
	pending    []byte
}

// NewFramer returns a Framer with the given frame cap in bytes. A cap
// of zero or an unaligned cap falls back to DefaultFrameBytes.
func NewFramer(frameBytes int) *Framer {
	if frameBytes <= 0 || frameBytes%BytesPerSample != 0 {
		frameBytes = DefaultFrameBytes
	}
	return &Framer{frameBytes: frameBytes}
}

// Push appends a block of captured bytes and returns any complete frames.
func (fr *Framer) Push(block []byte, ts time.Time) []Frame {
	fr.pending = append(fr.pending, block...)

	var frames []Frame
	for len(fr.pending) >= fr.frameBytes {
		data := make([]byte, fr.frameBytes)
		copy(data, fr.pending[:fr.frameBytes])
		fr.pending = fr.pending[fr.frameBytes:]
		frames = append(frames, Frame{Data: data, Timestamp: ts})
	}
	return frames
}

// Flush returns whatever is buffered as a final short frame, aligned to
// whole samples. Called once when capture ends.
func (fr *Framer) Flush(ts time.Time) (Frame, bool) {
	n := len(fr.pending) - len(fr.pending)%BytesPerSample
	if n == 0 {
		fr.pending = nil
		return Frame{}, false
	}
	data := make([]byte, n)
	copy(data, fr.pending[:n])
	fr.pending = nil
	return Frame{Data: data, Timestamp: ts}, true
}
