package library

import (
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tiroq/fmcamera/internal/fileutil"
	"github.com/tiroq/fmcamera/internal/platform"
)

func fixedClock(l *Library) {
	l.now = func() time.Time { return time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC) }
}

func requestStatus(t *testing.T, l *Library) platform.AuthorizationStatus {
	t.Helper()
	ch := make(chan platform.AuthorizationStatus, 1)
	l.RequestAuthorization(func(s platform.AuthorizationStatus) { ch <- s })
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("authorization callback not delivered")
	}
	return ""
}

func TestRequestAuthorization_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Photos")
	l := New(dir, "test")

	if got := l.Status(); got != platform.StatusNotDetermined {
		t.Fatalf("status before request = %s, want not-determined", got)
	}
	if got := requestStatus(t, l); got != platform.StatusAuthorized {
		t.Fatalf("status = %s, want authorized", got)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("library directory not created: %v", err)
	}
}

func TestRequestAuthorization_FileInTheWay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Photos")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	l := New(path, "test")
	if got := requestStatus(t, l); got != platform.StatusRestricted {
		t.Errorf("status = %s, want restricted", got)
	}
}

func TestSavePhotoSync(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, "1.2.3")
	fixedClock(l)

	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	img.Set(1, 1, color.RGBA{255, 0, 0, 255})

	path, err := l.SavePhotoSync(img)
	if err != nil {
		t.Fatalf("SavePhotoSync: %v", err)
	}
	if filepath.Base(path) != "2026-10-14_093000_photo.jpg" {
		t.Errorf("unexpected name %s", filepath.Base(path))
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	decoded, err := jpeg.Decode(f)
	if err != nil {
		t.Fatalf("saved photo is not a JPEG: %v", err)
	}
	if decoded.Bounds().Dx() != 16 {
		t.Errorf("width = %d, want 16", decoded.Bounds().Dx())
	}

	meta, err := fileutil.ReadMetadata(path)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if meta.Kind != "photo" || meta.Version != "1.2.3" || meta.Width != 16 || meta.Height != 8 {
		t.Errorf("unexpected metadata %+v", meta)
	}

	second, err := l.SavePhotoSync(img)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(second, "_photo_2.jpg") {
		t.Errorf("collision not resolved: %s", second)
	}
	if len(l.Saved()) != 2 {
		t.Errorf("saved = %v, want 2 entries", l.Saved())
	}
}

func TestSavePhotoSync_NilImage(t *testing.T) {
	if _, err := New(t.TempDir(), "test").SavePhotoSync(nil); err == nil {
		t.Fatal("expected error for nil image")
	}
}

func TestSaveVideo_CopiesFileAsync(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(t.TempDir(), "file.mp4")
	if err := os.WriteFile(src, []byte("not really an mp4"), 0644); err != nil {
		t.Fatal(err)
	}

	l := New(dir, "test")
	fixedClock(l)

	done := make(chan error, 1)
	l.SaveVideo(src, func(ok bool, err error) {
		if ok != (err == nil) {
			t.Errorf("ok=%v inconsistent with err=%v", ok, err)
		}
		done <- err
	})
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("SaveVideo: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SaveVideo callback not delivered")
	}
	l.Wait()

	saved := l.Saved()
	if len(saved) != 1 {
		t.Fatalf("saved = %v", saved)
	}
	data, err := os.ReadFile(saved[0])
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "not really an mp4" {
		t.Errorf("copied content = %q", data)
	}
	meta, err := fileutil.ReadMetadata(saved[0])
	if err != nil {
		t.Fatal(err)
	}
	if meta.Source != src || meta.Bytes != int64(len(data)) {
		t.Errorf("unexpected metadata %+v", meta)
	}
}

func TestSaveVideo_MissingSource(t *testing.T) {
	l := New(t.TempDir(), "test")
	done := make(chan bool, 1)
	l.SaveVideo(filepath.Join(t.TempDir(), "missing.mp4"), func(ok bool, err error) {
		if err == nil {
			t.Error("expected error for missing source")
		}
		done <- ok
	})
	if ok := <-done; ok {
		t.Error("ok should be false")
	}
}
