package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/png"
	"os/exec"
	"strings"
	"time"
)

// Thumbnailer grabs single frames from recorded files
type Thumbnailer struct {
	cfg Config
}

// NewThumbnailer creates a thumbnailer using cfg's ffmpeg
func NewThumbnailer(cfg Config) *Thumbnailer {
	return &Thumbnailer{cfg: cfg}
}

// Thumbnail decodes the frame at offset
func (t *Thumbnailer) Thumbnail(ctx context.Context, path string, offset time.Duration) (image.Image, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.cfg.ffmpeg(), thumbnailArgs(path, offset)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("thumbnail %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}
	img, _, err := image.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decode thumbnail: %w", err)
	}
	return img, nil
}
