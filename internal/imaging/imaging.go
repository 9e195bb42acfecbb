// Package imaging holds the still-photo geometry: aspect crop, orientation
// fix-ups and thumbnail scaling.
package imaging

import (
	"image"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/tiroq/fmcamera/internal/media"
)

// CropToAspect returns the largest centered region of img whose aspect ratio
// matches viewWidth/viewHeight. A square view crops to the shorter side.
// Non-positive view sizes are treated as square. The result starts at the
// origin.
func CropToAspect(img image.Image, viewWidth, viewHeight float64) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	aspect := 1.0
	if viewWidth > 0 && viewHeight > 0 {
		aspect = viewWidth / viewHeight
	}

	cw, ch := w, h
	if float64(w) > float64(h)*aspect {
		cw = int(float64(h)*aspect + 0.5)
	} else {
		ch = int(float64(w)/aspect + 0.5)
	}
	if cw < 1 {
		cw = 1
	}
	if ch < 1 {
		ch = 1
	}

	x0 := b.Min.X + (w-cw)/2
	y0 := b.Min.Y + (h-ch)/2

	out := image.NewRGBA(image.Rect(0, 0, cw, ch))
	draw.Draw(out, out.Bounds(), img, image.Pt(x0, y0), draw.Src)
	return out
}

// ApplyOrientation renders img upright according to o. Rotated orientations
// swap width and height.
func ApplyOrientation(img image.Image, o media.ImageOrientation) *image.RGBA {
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())

	// s2d maps source coordinates (relative to b.Min) to destination ones
	var s2d f64.Aff3
	dw, dh := b.Dx(), b.Dy()
	switch o {
	case media.OrientationUp:
		s2d = f64.Aff3{1, 0, 0, 0, 1, 0}
	case media.OrientationUpMirrored:
		s2d = f64.Aff3{-1, 0, w, 0, 1, 0}
	case media.OrientationDown:
		s2d = f64.Aff3{-1, 0, w, 0, -1, h}
	case media.OrientationDownMirrored:
		s2d = f64.Aff3{1, 0, 0, 0, -1, h}
	case media.OrientationRight:
		s2d = f64.Aff3{0, -1, h, 1, 0, 0}
		dw, dh = dh, dw
	case media.OrientationLeft:
		s2d = f64.Aff3{0, 1, 0, -1, 0, w}
		dw, dh = dh, dw
	case media.OrientationRightMirrored:
		s2d = f64.Aff3{0, 1, 0, 1, 0, 0}
		dw, dh = dh, dw
	case media.OrientationLeftMirrored:
		s2d = f64.Aff3{0, -1, h, -1, 0, w}
		dw, dh = dh, dw
	default:
		s2d = f64.Aff3{1, 0, 0, 0, 1, 0}
	}

	// account for a source that does not start at the origin
	mx, my := float64(b.Min.X), float64(b.Min.Y)
	s2d[2] -= s2d[0]*mx + s2d[1]*my
	s2d[5] -= s2d[3]*mx + s2d[4]*my

	out := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.NearestNeighbor.Transform(out, s2d, img, b, draw.Src, nil)
	return out
}

// CaptureOrientation picks the fix-up applied after the crop. Front cameras
// are mirrored. With forceUp the rotation follows the device orientation so
// the stored photo is upright regardless of how the device was held.
func CaptureOrientation(pos media.Position, device media.DeviceOrientation, forceUp bool) media.ImageOrientation {
	front := pos == media.PositionFront
	if !forceUp {
		if front {
			return media.OrientationUpMirrored
		}
		return media.OrientationUp
	}

	var o media.ImageOrientation
	switch device {
	case media.DeviceLandscapeLeft:
		o = media.OrientationUp
	case media.DeviceLandscapeRight:
		o = media.OrientationDown
	case media.DevicePortraitUpsideDown:
		o = media.OrientationLeft
	default:
		o = media.OrientationRight
	}
	if front {
		return o.Mirror()
	}
	return o
}

// Scale resizes img to maxWidth keeping the aspect ratio. Images already
// narrower than maxWidth are returned unchanged.
func Scale(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	h := b.Dy() * maxWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	out := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	draw.CatmullRom.Scale(out, out.Bounds(), img, b, draw.Src, nil)
	return out
}
