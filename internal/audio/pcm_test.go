package audio

import (
	"encoding/binary"
	"testing"
	"time"
)

func TestEncodeSample(t *testing.T) {
	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{"positive full scale", 1.0, 32767},
		{"negative full scale", -1.0, -32768},
		{"clamped above", 1.5, 32767},
		{"clamped below", -2.0, -32768},
		{"zero", 0, 0},
		{"half positive", 0.5, 16383},
		{"half negative", -0.5, -16384},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodeSample(tt.in); got != tt.want {
				t.Errorf("EncodeSample(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestEncodeFrame(t *testing.T) {
	data := EncodeFrame([]float32{0, 1.0, -1.0})
	if len(data) != 6 {
		t.Fatalf("len = %d, want 6", len(data))
	}

	want := []int16{0, 32767, -32768}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(data[i*2:]))
		if got != w {
			t.Errorf("sample %d = %d, want %d", i, got, w)
		}
	}
}

func TestFramerBoundsFrames(t *testing.T) {
	fr := NewFramer(8)
	ts := time.Now()

	frames := fr.Push(make([]byte, 20), ts)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	for i, f := range frames {
		if len(f.Data) != 8 {
			t.Errorf("frame %d size = %d, want 8", i, len(f.Data))
		}
	}

	// 4 bytes pending; push 4 more to complete a frame
	frames = fr.Push(make([]byte, 4), ts)
	if len(frames) != 1 {
		t.Fatalf("got %d frames after second push, want 1", len(frames))
	}
}

func TestFramerFlush(t *testing.T) {
	fr := NewFramer(8)
	ts := time.Now()

	fr.Push(make([]byte, 5), ts)
	frame, ok := fr.Flush(ts)
	if !ok {
		t.Fatal("expected a trailing frame")
	}
	// 5 bytes trims to 4 to stay sample-aligned
	if len(frame.Data) != 4 {
		t.Errorf("trailing frame size = %d, want 4", len(frame.Data))
	}

	if _, ok := fr.Flush(ts); ok {
		t.Error("second Flush should report nothing pending")
	}
}

func TestFramerRejectsBadCap(t *testing.T) {
	fr := NewFramer(7) // unaligned
	if fr.frameBytes != DefaultFrameBytes {
		t.Errorf("frameBytes = %d, want default %d", fr.frameBytes, DefaultFrameBytes)
	}
}

func TestFrameDuration(t *testing.T) {
	f := Frame{Data: make([]byte, DefaultFrameBytes)}
	if got := f.Duration(); got != 128*time.Millisecond {
		t.Errorf("Duration = %v, want 128ms", got)
	}
}
