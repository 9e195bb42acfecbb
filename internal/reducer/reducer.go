// Package reducer re-encodes a still image at decreasing JPEG quality until
// it fits a byte budget.
package reducer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/tiroq/fmcamera/internal/diaglog"
)

// Quality search bounds, in percent
const (
	StartQuality = 100
	QualityStep  = 5
	FloorQuality = 10

	// MaxAttempts is the number of encodes from StartQuality down to FloorQuality
	MaxAttempts = (StartQuality-FloorQuality)/QualityStep + 1
)

// ErrReduceFailed is returned when no representation could be produced
var ErrReduceFailed = errors.New("cannot reduce the image")

// Encoder produces an encoded representation of img at quality (1-100)
type Encoder interface {
	Encode(img image.Image, quality int) ([]byte, error)
}

// JPEGEncoder encodes with image/jpeg
type JPEGEncoder struct{}

// Encode writes img as baseline JPEG
func (JPEGEncoder) Encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Result is the accepted encoding
type Result struct {
	Data     []byte
	Image    image.Image // Data decoded back
	Quality  int
	Attempts int
	InBudget bool // false when the floor encoding was accepted over budget
}

// Reducer runs the descending quality search
type Reducer struct {
	enc    Encoder
	decode func([]byte) (image.Image, error)
	logger *diaglog.Logger
}

// New creates a Reducer. A nil encoder selects JPEGEncoder.
func New(enc Encoder) *Reducer {
	if enc == nil {
		enc = JPEGEncoder{}
	}
	return &Reducer{enc: enc, decode: decodeImage}
}

// SetLogger injects the diagnostic logger
func (r *Reducer) SetLogger(l *diaglog.Logger) {
	r.logger = l
}

// SetDecoder overrides how accepted bytes are turned back into an image
func (r *Reducer) SetDecoder(fn func([]byte) (image.Image, error)) {
	r.decode = fn
}

// Reduce returns the first encoding, from quality 100 downward in steps of 5,
// whose size is at most maxBytes. The encoding made at the floor is accepted
// whatever its size. Any encoder or decode failure aborts the search.
func (r *Reducer) Reduce(img image.Image, maxBytes int) (*Result, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrReduceFailed)
	}

	quality := StartQuality
	for attempt := 1; ; attempt++ {
		data, err := r.enc.Encode(img, quality)
		if err != nil || len(data) == 0 {
			r.logger.Event(diaglog.ComponentReducer, diaglog.EventReduceFailed, map[string]interface{}{
				"quality": quality,
				"attempt": attempt,
			})
			if err == nil {
				err = errors.New("empty encoding")
			}
			return nil, fmt.Errorf("%w: encode at quality %d: %v", ErrReduceFailed, quality, err)
		}

		r.logger.Event(diaglog.ComponentReducer, diaglog.EventReduceAttempt, map[string]interface{}{
			"quality": quality,
			"bytes":   len(data),
			"max":     maxBytes,
		})

		inBudget := len(data) <= maxBytes
		if quality > FloorQuality && !inBudget {
			quality -= QualityStep
			continue
		}

		decoded, err := r.decode(data)
		if err != nil {
			return nil, fmt.Errorf("%w: decode reduced data: %v", ErrReduceFailed, err)
		}
		r.logger.Event(diaglog.ComponentReducer, diaglog.EventReduceDone, map[string]interface{}{
			"quality":   quality,
			"bytes":     len(data),
			"attempts":  attempt,
			"in_budget": inBudget,
		})
		return &Result{
			Data:     data,
			Image:    decoded,
			Quality:  quality,
			Attempts: attempt,
			InBudget: inBudget,
		}, nil
	}
}

func decodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}
