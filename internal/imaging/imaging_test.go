package imaging

import (
	"image"
	"image/color"
	"testing"

	"github.com/tiroq/fmcamera/internal/media"
)

// gradient gives every pixel a unique colour so transforms are checkable
func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), uint8(x + y*w), 255})
		}
	}
	return img
}

func flipHorizontal(img *image.RGBA) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(b.Max.X-1-(x-b.Min.X), y, img.At(x, y))
		}
	}
	return out
}

func samePixels(t *testing.T, a, b *image.RGBA) bool {
	t.Helper()
	if a.Bounds().Dx() != b.Bounds().Dx() || a.Bounds().Dy() != b.Bounds().Dy() {
		return false
	}
	for y := 0; y < a.Bounds().Dy(); y++ {
		for x := 0; x < a.Bounds().Dx(); x++ {
			if a.RGBAAt(x, y) != b.RGBAAt(x, y) {
				return false
			}
		}
	}
	return true
}

func TestCropToAspect(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		viewW, viewH float64
		wantW, wantH int
		wantOrigin   color.RGBA // colour of the source pixel that lands at (0,0)
	}{
		{"landscape to square", 40, 20, 100, 100, 20, 20, color.RGBA{10, 0, 10, 255}},
		{"portrait to square", 20, 40, 100, 100, 20, 20, color.RGBA{0, 10, 200, 255}},
		{"square stays square", 30, 30, 50, 50, 30, 30, color.RGBA{0, 0, 0, 255}},
		{"wide view on square image", 30, 30, 300, 150, 30, 15, color.RGBA{0, 7, 210, 255}},
		{"zero view treated as square", 40, 20, 0, 0, 20, 20, color.RGBA{10, 0, 10, 255}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := gradient(tt.w, tt.h)
			out := CropToAspect(src, tt.viewW, tt.viewH)
			if out.Bounds().Dx() != tt.wantW || out.Bounds().Dy() != tt.wantH {
				t.Fatalf("size = %dx%d, want %dx%d", out.Bounds().Dx(), out.Bounds().Dy(), tt.wantW, tt.wantH)
			}
			if out.Bounds().Min != (image.Point{}) {
				t.Errorf("crop should start at origin, got %v", out.Bounds().Min)
			}
			if got := out.RGBAAt(0, 0); got != tt.wantOrigin {
				t.Errorf("origin pixel = %v, want %v", got, tt.wantOrigin)
			}
		})
	}
}

func TestApplyOrientation_Dimensions(t *testing.T) {
	src := gradient(6, 4)
	for _, o := range []media.ImageOrientation{
		media.OrientationUp, media.OrientationDown, media.OrientationUpMirrored, media.OrientationDownMirrored,
	} {
		out := ApplyOrientation(src, o)
		if out.Bounds().Dx() != 6 || out.Bounds().Dy() != 4 {
			t.Errorf("%s: size %v, want 6x4", o, out.Bounds())
		}
	}
	for _, o := range []media.ImageOrientation{
		media.OrientationLeft, media.OrientationRight, media.OrientationLeftMirrored, media.OrientationRightMirrored,
	} {
		out := ApplyOrientation(src, o)
		if out.Bounds().Dx() != 4 || out.Bounds().Dy() != 6 {
			t.Errorf("%s: size %v, want 4x6", o, out.Bounds())
		}
	}
}

func TestApplyOrientation_Pixels(t *testing.T) {
	src := gradient(3, 2)

	up := ApplyOrientation(src, media.OrientationUp)
	if !samePixels(t, up, src) {
		t.Error("up should be identity")
	}

	right := ApplyOrientation(src, media.OrientationRight)
	// rotating clockwise moves the bottom-left source pixel to the top-left
	if got, want := right.RGBAAt(0, 0), src.RGBAAt(0, 1); got != want {
		t.Errorf("right(0,0) = %v, want %v", got, want)
	}
	if got, want := right.RGBAAt(1, 0), src.RGBAAt(0, 0); got != want {
		t.Errorf("right(1,0) = %v, want %v", got, want)
	}

	left := ApplyOrientation(src, media.OrientationLeft)
	// rotating counter-clockwise moves the top-right source pixel to the top-left
	if got, want := left.RGBAAt(0, 0), src.RGBAAt(2, 0); got != want {
		t.Errorf("left(0,0) = %v, want %v", got, want)
	}

	down := ApplyOrientation(src, media.OrientationDown)
	if got, want := down.RGBAAt(0, 0), src.RGBAAt(2, 1); got != want {
		t.Errorf("down(0,0) = %v, want %v", got, want)
	}
}

func TestApplyOrientation_MirroredIsHorizontalFlip(t *testing.T) {
	src := gradient(5, 3)
	for _, o := range []media.ImageOrientation{
		media.OrientationUp, media.OrientationDown, media.OrientationLeft, media.OrientationRight,
	} {
		plain := ApplyOrientation(src, o)
		mirrored := ApplyOrientation(src, o.Mirror())
		if !samePixels(t, flipHorizontal(plain), mirrored) {
			t.Errorf("%s mirrored is not a horizontal flip of %s", o.Mirror(), o)
		}
	}
}

func TestApplyOrientation_OffsetSource(t *testing.T) {
	full := gradient(8, 8)
	sub := full.SubImage(image.Rect(2, 2, 6, 5)).(*image.RGBA)

	out := ApplyOrientation(sub, media.OrientationUpMirrored)
	if out.Bounds().Dx() != 4 || out.Bounds().Dy() != 3 {
		t.Fatalf("size = %v, want 4x3", out.Bounds())
	}
	if got, want := out.RGBAAt(0, 0), full.RGBAAt(5, 2); got != want {
		t.Errorf("mirrored(0,0) = %v, want %v", got, want)
	}
}

func TestCaptureOrientation(t *testing.T) {
	tests := []struct {
		name    string
		pos     media.Position
		device  media.DeviceOrientation
		forceUp bool
		want    media.ImageOrientation
	}{
		{"back default", media.PositionBack, media.DevicePortrait, false, media.OrientationUp},
		{"front default mirrored", media.PositionFront, media.DevicePortrait, false, media.OrientationUpMirrored},
		{"back portrait forced", media.PositionBack, media.DevicePortrait, true, media.OrientationRight},
		{"front portrait forced", media.PositionFront, media.DevicePortrait, true, media.OrientationRightMirrored},
		{"back landscape left forced", media.PositionBack, media.DeviceLandscapeLeft, true, media.OrientationUp},
		{"back landscape right forced", media.PositionBack, media.DeviceLandscapeRight, true, media.OrientationDown},
		{"back upside down forced", media.PositionBack, media.DevicePortraitUpsideDown, true, media.OrientationLeft},
		{"front face up forced", media.PositionFront, media.DeviceFaceUp, true, media.OrientationRightMirrored},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CaptureOrientation(tt.pos, tt.device, tt.forceUp); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFrontCaptureMirrorsBack(t *testing.T) {
	scene := gradient(7, 4)
	for _, forceUp := range []bool{false, true} {
		back := ApplyOrientation(scene, CaptureOrientation(media.PositionBack, media.DevicePortrait, forceUp))
		front := ApplyOrientation(scene, CaptureOrientation(media.PositionFront, media.DevicePortrait, forceUp))
		if !samePixels(t, flipHorizontal(back), front) {
			t.Errorf("forceUp=%v: front capture is not the mirror of back capture", forceUp)
		}
	}
}

func TestScale(t *testing.T) {
	src := gradient(200, 100)
	out := Scale(src, 50)
	if out.Bounds().Dx() != 50 || out.Bounds().Dy() != 25 {
		t.Errorf("scaled size = %v, want 50x25", out.Bounds())
	}
	if Scale(src, 400) != image.Image(src) {
		t.Error("narrow image should be returned unchanged")
	}
}
