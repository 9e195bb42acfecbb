package camera

import (
	"bytes"
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/tiroq/fmcamera/internal/diaglog"
	"github.com/tiroq/fmcamera/internal/imaging"
	"github.com/tiroq/fmcamera/internal/media"
	"github.com/tiroq/fmcamera/internal/platform"
)

// TakePhoto issues a one-shot still capture. The result arrives later on
// the photo observer; this call never waits for it.
func (c *Controller) TakePhoto() error {
	if !c.configured("taking photo") {
		return ErrNotConfigured
	}

	c.mu.Lock()
	out := c.photoOut
	cfg := c.cfg
	pos := c.position
	flash := c.flash
	var dev platform.Device
	if c.cameraIn != nil {
		dev = c.cameraIn.Device()
	}
	c.mu.Unlock()

	if out == nil {
		c.log.Println("camera error: no photo output attached")
		return ErrPhotoUnavailable
	}

	settings := platform.PhotoSettings{
		Format:    media.DefaultPhotoFormat(),
		FlashMode: media.FlashOff,
	}
	if cfg.PhotoFormat != nil {
		settings.Format = *cfg.PhotoFormat
	}
	if dev != nil && dev.HasFlash() {
		settings.FlashMode = flash
	}

	c.logger.Event(diaglog.ComponentController, diaglog.EventPhotoRequested, map[string]interface{}{
		"position": string(pos),
		"flash":    string(settings.FlashMode),
		"format":   settings.Format.Codec,
	})
	out.Capture(settings, func(data []byte, err error) {
		c.photoCaptured(cfg, pos, data, err)
	})
	return nil
}

// photoCaptured runs the still pipeline: decode, crop to the view aspect,
// orient, reduce, deliver. It may run on any goroutine.
func (c *Controller) photoCaptured(cfg Config, pos media.Position, data []byte, err error) {
	if err == nil && len(data) == 0 {
		err = errors.New("empty photo data")
	}
	if err != nil {
		c.log.Printf("camera error: photo capture: %v", err)
		return
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		c.log.Printf("camera error: cannot process the image: %v", err)
		return
	}

	cropped := imaging.CropToAspect(img, cfg.ViewWidth, cfg.ViewHeight)
	orientation := imaging.CaptureOrientation(pos, c.deviceOrientation(), cfg.ForceUpOrientation)
	oriented := imaging.ApplyOrientation(cropped, orientation)

	c.logger.Event(diaglog.ComponentController, diaglog.EventPhotoCaptured, map[string]interface{}{
		"position":    string(pos),
		"raw_bytes":   len(data),
		"width":       oriented.Bounds().Dx(),
		"height":      oriented.Bounds().Dy(),
		"orientation": orientation.String(),
	})

	if err := c.reduceAndDeliver(cfg, oriented); err != nil {
		c.log.Printf("camera error: %v", err)
	}

	if cfg.SavePhotoToLibrary && !cfg.SaveReducedImageToLibrary {
		c.savePhoto(oriented)
	}
}

func (c *Controller) reduceAndDeliver(cfg Config, img image.Image) error {
	res, err := c.reducer.Reduce(img, cfg.MaxPictureFileSize)
	if err != nil {
		return err
	}
	if !res.InBudget {
		c.log.Printf("camera: photo is %d bytes at the quality floor, over the %d byte budget",
			len(res.Data), cfg.MaxPictureFileSize)
	}

	if cfg.SavePhotoToLibrary && cfg.SaveReducedImageToLibrary {
		c.savePhoto(res.Image)
	}

	c.mu.Lock()
	o := c.photoObs
	c.mu.Unlock()
	if o == nil {
		return nil
	}
	c.main.Dispatch(func() { o.PhotoCaptured(res.Image, res.Data) })
	return nil
}

func (c *Controller) savePhoto(img image.Image) {
	if c.p.Library == nil {
		c.log.Printf("camera: no photo library, %dx%d photo not saved", img.Bounds().Dx(), img.Bounds().Dy())
		return
	}
	c.p.Library.SavePhoto(img)
}
