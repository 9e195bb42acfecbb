// Package library is a directory-backed photo library. It stands in for the
// host photo library: authorization is the ability to write the directory,
// and every saved asset gets a metadata sidecar.
package library

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tiroq/fmcamera/internal/diaglog"
	"github.com/tiroq/fmcamera/internal/fileutil"
	"github.com/tiroq/fmcamera/internal/platform"
)

// PhotoQuality is the JPEG quality used for saved photos
const PhotoQuality = 95

// Library saves assets under one directory
type Library struct {
	dir     string
	version string
	now     func() time.Time

	logger *diaglog.Logger
	errLog *log.Logger

	wg sync.WaitGroup
	mu sync.Mutex
	// last saved paths, newest last
	saved []string
}

// New creates a library rooted at dir. The directory is only created when
// authorization is requested.
func New(dir, version string) *Library {
	return &Library{
		dir:     dir,
		version: version,
		now:     time.Now,
		errLog:  log.New(io.Discard, "", 0),
	}
}

// SetLogger injects the diagnostic logger
func (l *Library) SetLogger(lg *diaglog.Logger) {
	l.logger = lg
}

// SetErrorLog sets where failed background saves are reported
func (l *Library) SetErrorLog(lg *log.Logger) {
	if lg != nil {
		l.errLog = lg
	}
}

// Dir returns the library root
func (l *Library) Dir() string {
	return l.dir
}

// Status maps the directory state to an authorization status
func (l *Library) Status() platform.AuthorizationStatus {
	info, err := os.Stat(l.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return platform.StatusNotDetermined
		}
		return platform.StatusDenied
	}
	if !info.IsDir() {
		return platform.StatusRestricted
	}
	probe, err := os.CreateTemp(l.dir, ".probe-*")
	if err != nil {
		return platform.StatusDenied
	}
	probe.Close()
	os.Remove(probe.Name())
	return platform.StatusAuthorized
}

// RequestAuthorization creates the directory when it does not exist yet and
// reports the resulting status asynchronously.
func (l *Library) RequestAuthorization(fn func(platform.AuthorizationStatus)) {
	go func() {
		status := l.Status()
		if status == platform.StatusNotDetermined {
			if err := os.MkdirAll(l.dir, 0755); err != nil {
				status = platform.StatusDenied
			} else {
				status = l.Status()
			}
		}
		l.logger.Event(diaglog.ComponentLibrary, diaglog.EventAuthorization, map[string]interface{}{
			"dir":    l.dir,
			"status": string(status),
		})
		fn(status)
	}()
}

// SavePhoto encodes img in the background. Failures go to the error log.
func (l *Library) SavePhoto(img image.Image) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if _, err := l.SavePhotoSync(img); err != nil {
			l.errLog.Printf("photo library: save photo: %v", err)
		}
	}()
}

// SavePhotoSync writes img as JPEG and returns the asset path
func (l *Library) SavePhotoSync(img image.Image) (string, error) {
	if img == nil {
		return "", errors.New("nil image")
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: PhotoQuality}); err != nil {
		return "", fmt.Errorf("encode photo: %w", err)
	}

	at := l.now()
	path, err := fileutil.UniquePath(l.dir, fileutil.AssetBasename("photo", at), ".jpg")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("write photo: %w", err)
	}

	b := img.Bounds()
	meta := &fileutil.AssetMetadata{
		Version:   l.version,
		Kind:      "photo",
		CreatedAt: at.UTC(),
		File:      path,
		Bytes:     int64(buf.Len()),
		Width:     b.Dx(),
		Height:    b.Dy(),
		Quality:   PhotoQuality,
	}
	if err := fileutil.WriteMetadata(path, meta); err != nil {
		return path, fmt.Errorf("write photo metadata: %w", err)
	}

	l.record(path, "photo", buf.Len())
	return path, nil
}

// SaveVideo copies the file at src into the library in the background and
// reports the outcome through fn.
func (l *Library) SaveVideo(src string, fn func(ok bool, err error)) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		_, err := l.SaveVideoSync(src)
		if fn != nil {
			fn(err == nil, err)
		}
	}()
}

// SaveVideoSync copies src into the library and returns the asset path
func (l *Library) SaveVideoSync(src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open video: %w", err)
	}
	defer in.Close()

	at := l.now()
	ext := filepath.Ext(src)
	if ext == "" {
		ext = ".mp4"
	}
	path, err := fileutil.UniquePath(l.dir, fileutil.AssetBasename("video", at), ext)
	if err != nil {
		return "", err
	}

	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("create video: %w", err)
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("copy video: %w", err)
	}

	meta := &fileutil.AssetMetadata{
		Version:   l.version,
		Kind:      "video",
		CreatedAt: at.UTC(),
		File:      path,
		Source:    src,
		Bytes:     n,
	}
	if err := fileutil.WriteMetadata(path, meta); err != nil {
		return path, fmt.Errorf("write video metadata: %w", err)
	}

	l.record(path, "video", int(n))
	return path, nil
}

func (l *Library) record(path, kind string, size int) {
	l.mu.Lock()
	l.saved = append(l.saved, path)
	l.mu.Unlock()
	l.logger.Event(diaglog.ComponentLibrary, diaglog.EventSave, map[string]interface{}{
		"kind":  kind,
		"file":  path,
		"bytes": size,
	})
}

// Saved returns the asset paths written so far, oldest first
func (l *Library) Saved() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.saved...)
}

// Wait blocks until background saves have finished
func (l *Library) Wait() {
	l.wg.Wait()
}
