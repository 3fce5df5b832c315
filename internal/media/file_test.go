package media

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

func TestSelectValidPNG(t *testing.T) {
	path := writeFile(t, "car.png", []byte("png-bytes"))

	f, err := Select(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer f.Release()

	if f.ContentType != "image/png" {
		t.Errorf("expected image/png, got %s", f.ContentType)
	}
	if f.Name != "car.png" {
		t.Errorf("expected base name car.png, got %s", f.Name)
	}
	if string(f.Data) != "png-bytes" {
		t.Error("file data must round-trip")
	}
	if _, err := os.Stat(f.Preview()); err != nil {
		t.Errorf("preview handle must exist after select: %v", err)
	}
}

func TestSelectJPGAlias(t *testing.T) {
	path := writeFile(t, "car.jpg", []byte("jpeg-bytes"))

	f, err := Select(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer f.Release()

	if f.ContentType != "image/jpeg" {
		t.Errorf("expected the .jpg alias to normalize to image/jpeg, got %s", f.ContentType)
	}
}

func TestSelectDisallowedType(t *testing.T) {
	path := writeFile(t, "animation.gif", []byte("GIF89a..."))

	_, err := Select(path)
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestSelectMissingFile(t *testing.T) {
	if _, err := Select(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	f, err := Select(writeFile(t, "car.png", []byte("png-bytes")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	preview := f.Preview()
	f.Release()
	if _, err := os.Stat(preview); !os.IsNotExist(err) {
		t.Error("preview must be removed on release")
	}
	f.Release() // second release is a no-op
}

func TestNormalizeType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"image/png", "image/png"},
		{"image/jpg", "image/jpeg"},
		{"IMAGE/JPEG", "image/jpeg"},
		{"image/png; charset=binary", "image/png"},
		{"  image/jpeg ", "image/jpeg"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeType(tt.in); got != tt.want {
			t.Errorf("NormalizeType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
