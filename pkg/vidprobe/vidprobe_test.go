package vidprobe

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMissingFile(t *testing.T) {
	p := New()
	p.Retries = 0
	dir := t.TempDir()
	src := filepath.Join(dir, "missing.mp4")

	if p.Readable(src) {
		t.Fatal("missing file must not be readable")
	}
	if _, err := p.Duration(src); err == nil {
		t.Fatal("expect error")
	}
	dst := filepath.Join(dir, "frames", "thumb.jpg")
	if err := p.Thumbnail(src, dst); err == nil {
		t.Fatal("expect error")
	}
	if _, err := os.Stat(dst); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("thumbnail must not be written")
	}
}

func TestGarbageFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "garbage.mp4")
	if err := os.WriteFile(src, []byte("not a video"), 0o644); err != nil {
		t.Fatal(err)
	}
	if New().Readable(src) {
		t.Fatal("garbage must not be readable")
	}
	if _, err := New().Duration(src); err == nil {
		t.Fatal("expect error")
	}
}

func TestFrameDuration(t *testing.T) {
	d, err := frameDuration(25, 250)
	if err != nil || d != 10*time.Second {
		t.Fatalf("got %s %v", d, err)
	}
	for _, v := range [][2]float64{{0, 250}, {25, 0}, {-1, 10}, {math.NaN(), 10}} {
		if _, err := frameDuration(v[0], v[1]); !errors.Is(err, ErrNoFPS) {
			t.Fatalf("fps[%v] frames[%v] expect ErrNoFPS, got %v", v[0], v[1], err)
		}
	}
}
