package reducer

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"math/rand"
	"testing"
)

// linearEncoder produces perBytes*quality bytes so sizes shrink linearly
type linearEncoder struct {
	perQuality int
	calls      []int
	failAt     int
}

func (e *linearEncoder) Encode(img image.Image, quality int) ([]byte, error) {
	e.calls = append(e.calls, quality)
	if e.failAt != 0 && quality == e.failAt {
		return nil, errors.New("encoder exploded")
	}
	return bytes.Repeat([]byte{0xAB}, e.perQuality*quality), nil
}

func stubDecode([]byte) (image.Image, error) {
	return image.NewGray(image.Rect(0, 0, 1, 1)), nil
}

func newTestReducer(enc Encoder) *Reducer {
	r := New(enc)
	r.SetDecoder(stubDecode)
	return r
}

func testImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 4, 4))
}

func TestReduce_StopsAtFirstQualityWithinBudget(t *testing.T) {
	// 500,000 bytes at quality 100, shrinking linearly
	enc := &linearEncoder{perQuality: 5000}
	res, err := newTestReducer(enc).Reduce(testImage(), 250000)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if res.Quality != 50 {
		t.Errorf("quality = %d, want 50", res.Quality)
	}
	if len(res.Data) != 250000 {
		t.Errorf("payload = %d bytes, want 250000", len(res.Data))
	}
	if res.Attempts != 11 {
		t.Errorf("attempts = %d, want 11", res.Attempts)
	}
	if !res.InBudget {
		t.Error("result should be within budget")
	}
	if enc.calls[len(enc.calls)-1] != 50 {
		t.Errorf("last encode at %d, want 50", enc.calls[len(enc.calls)-1])
	}
}

func TestReduce_FirstAttemptFits(t *testing.T) {
	enc := &linearEncoder{perQuality: 10}
	res, err := newTestReducer(enc).Reduce(testImage(), 400000)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if res.Quality != StartQuality || res.Attempts != 1 {
		t.Errorf("got quality %d after %d attempts, want %d after 1", res.Quality, res.Attempts, StartQuality)
	}
}

func TestReduce_FloorAcceptedOverBudget(t *testing.T) {
	enc := &linearEncoder{perQuality: 5000}
	res, err := newTestReducer(enc).Reduce(testImage(), 100)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if res.Quality != FloorQuality {
		t.Errorf("quality = %d, want floor %d", res.Quality, FloorQuality)
	}
	if res.InBudget {
		t.Error("floor result should be flagged over budget")
	}
	if res.Attempts != MaxAttempts {
		t.Errorf("attempts = %d, want %d", res.Attempts, MaxAttempts)
	}
	for _, q := range enc.calls {
		if q < FloorQuality {
			t.Errorf("encoded below floor at %d", q)
		}
	}
}

func TestReduce_AttemptsBounded(t *testing.T) {
	if MaxAttempts != 19 {
		t.Fatalf("MaxAttempts = %d, want 19", MaxAttempts)
	}
	for _, max := range []int{0, 1, 1000, 60000, 250000, 499999, 500000, 1 << 30} {
		enc := &linearEncoder{perQuality: 5000}
		res, err := newTestReducer(enc).Reduce(testImage(), max)
		if err != nil {
			t.Fatalf("max=%d: %v", max, err)
		}
		if len(enc.calls) > MaxAttempts {
			t.Errorf("max=%d: %d encodes, want <= %d", max, len(enc.calls), MaxAttempts)
		}
		if len(res.Data) > max && res.Quality != FloorQuality {
			t.Errorf("max=%d: over budget at quality %d above floor", max, res.Quality)
		}
	}
}

func TestReduce_EncoderFailureAborts(t *testing.T) {
	enc := &linearEncoder{perQuality: 5000, failAt: 80}
	res, err := newTestReducer(enc).Reduce(testImage(), 100)
	if !errors.Is(err, ErrReduceFailed) {
		t.Fatalf("err = %v, want ErrReduceFailed", err)
	}
	if res != nil {
		t.Error("no result expected on failure")
	}
	if got := enc.calls[len(enc.calls)-1]; got != 80 {
		t.Errorf("search continued past failure, last quality %d", got)
	}
}

func TestReduce_DecodeFailure(t *testing.T) {
	r := New(&linearEncoder{perQuality: 1})
	r.SetDecoder(func([]byte) (image.Image, error) { return nil, errors.New("garbage") })
	if _, err := r.Reduce(testImage(), 1000); !errors.Is(err, ErrReduceFailed) {
		t.Fatalf("err = %v, want ErrReduceFailed", err)
	}
}

func TestReduce_NilImage(t *testing.T) {
	if _, err := New(nil).Reduce(nil, 1000); !errors.Is(err, ErrReduceFailed) {
		t.Fatalf("err = %v, want ErrReduceFailed", err)
	}
}

func TestReduce_RealJPEG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 256, 256))
	rng := rand.New(rand.NewSource(1))
	for y := 0; y < 256; y++ {
		for x := 0; x < 256; x++ {
			img.Set(x, y, color.RGBA{uint8(rng.Intn(256)), uint8(x), uint8(y), 255})
		}
	}

	full, err := JPEGEncoder{}.Encode(img, 100)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	budget := len(full) / 2

	res, err := New(nil).Reduce(img, budget)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if len(res.Data) > budget && res.Quality != FloorQuality {
		t.Errorf("got %d bytes at quality %d, budget %d", len(res.Data), res.Quality, budget)
	}
	if res.Quality >= StartQuality {
		t.Errorf("quality should have dropped, got %d", res.Quality)
	}
	if res.Image.Bounds().Dx() != 256 {
		t.Errorf("decoded width = %d, want 256", res.Image.Bounds().Dx())
	}
}
