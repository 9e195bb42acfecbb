package ffmpeg

import (
	"bufio"
	"bytes"
	"io"
)

var (
	soi = []byte{0xFF, 0xD8}
	eoi = []byte{0xFF, 0xD9}
)

// maxFrameSize bounds a single buffered JPEG frame
const maxFrameSize = 8 << 20

// splitJPEG is a bufio.SplitFunc yielding complete JPEG images from an
// MJPEG byte stream. Bytes before a start-of-image marker are skipped.
func splitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, soi)
	if start < 0 {
		// keep a trailing 0xFF, it may begin the next marker
		if n := len(data); !atEOF && n > 0 && data[n-1] == 0xFF {
			return n - 1, nil, nil
		}
		return len(data), nil, nil
	}
	end := bytes.Index(data[start+len(soi):], eoi)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// discard the garbage before the marker and wait for more
		return start, nil, nil
	}
	stop := start + len(soi) + end + len(eoi)
	return stop, data[start:stop], nil
}

// newFrameScanner reads JPEG frames from r
func newFrameScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 256<<10), maxFrameSize)
	sc.Split(splitJPEG)
	return sc
}
