package transform

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

func writeTestImage(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	p := filepath.Join(dir, name)
	img := imaging.New(w, h, image.White.C)
	if err := imaging.Save(img, p); err != nil {
		t.Fatalf("save test image: %v", err)
	}
	return p
}

func TestLoadAndEncodeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := writeTestImage(t, dir, "src.png", 20, 10)

	img, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 20 || b.Dy() != 10 {
		t.Fatalf("decoded %dx%d, want 20x10", b.Dx(), b.Dy())
	}

	for _, f := range []Format{JPEG, PNG, GIF, WEBP} {
		blob, err := Encode(img, f)
		if err != nil {
			t.Fatalf("encode %v: %v", f, err)
		}
		if blob.Size() == 0 {
			t.Fatalf("encode %v produced empty blob", f)
		}
		if blob.CreatedAt.IsZero() {
			t.Fatalf("encode %v produced zero timestamp", f)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.png")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadGarbage(t *testing.T) {
	p := filepath.Join(t.TempDir(), "junk.png")
	if err := os.WriteFile(p, []byte("not an image at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected decode error")
	}
}
