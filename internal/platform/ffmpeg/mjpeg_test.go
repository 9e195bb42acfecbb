package ffmpeg

import (
	"bytes"
	"io"
	"testing"
)

func frame(payload ...byte) []byte {
	out := append([]byte{0xFF, 0xD8}, payload...)
	return append(out, 0xFF, 0xD9)
}

// chunkReader returns at most n bytes per Read
type chunkReader struct {
	data []byte
	n    int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := r.n
	if n > len(p) {
		n = len(p)
	}
	if n > len(r.data) {
		n = len(r.data)
	}
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

func scanAll(t *testing.T, r io.Reader) [][]byte {
	t.Helper()
	sc := newFrameScanner(r)
	var frames [][]byte
	for sc.Scan() {
		frames = append(frames, append([]byte(nil), sc.Bytes()...))
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return frames
}

func TestSplitJPEG(t *testing.T) {
	a := frame(1, 2, 3)
	b := frame(4, 0xFF, 5)
	c := frame()

	var stream []byte
	stream = append(stream, 0x00, 0x11) // garbage before the first frame
	stream = append(stream, a...)
	stream = append(stream, b...)
	stream = append(stream, 0x42)
	stream = append(stream, c...)
	stream = append(stream, 0xFF, 0xD8, 9, 9) // truncated frame at EOF

	tests := []struct {
		name  string
		chunk int
	}{
		{"whole", len(stream)},
		{"byte at a time", 1},
		{"odd chunks", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames := scanAll(t, &chunkReader{data: append([]byte(nil), stream...), n: tt.chunk})
			want := [][]byte{a, b, c}
			if len(frames) != len(want) {
				t.Fatalf("expected %d frames, got %d", len(want), len(frames))
			}
			for i := range want {
				if !bytes.Equal(frames[i], want[i]) {
					t.Errorf("frame %d: got %x, want %x", i, frames[i], want[i])
				}
			}
		})
	}
}

func TestSplitJPEG_NoFrames(t *testing.T) {
	frames := scanAll(t, bytes.NewReader([]byte{0x01, 0x02, 0xFF}))
	if len(frames) != 0 {
		t.Fatalf("expected no frames, got %d", len(frames))
	}
}
