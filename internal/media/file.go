// Package media handles the user's chosen image file: loading it from
// disk, validating its declared MIME type against the upload allowlist,
// and managing the local preview handle that must be released when the
// file is superseded.
package media

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrUnsupportedType is returned for files outside the upload allowlist.
var ErrUnsupportedType = errors.New("only PNG or JPEG images are allowed")

// AllowedTypes is the content-type allowlist for submissions.
var AllowedTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
}

// SelectedFile is the user's chosen image blob plus its MIME type and a
// revocable local preview handle. Replaced on each new pick; Release must
// be called when it is superseded or the workflow resets.
type SelectedFile struct {
	// Name is the base name of the picked file.
	Name string
	// ContentType is the normalized declared MIME type.
	ContentType string
	// Data is the raw image bytes.
	Data []byte

	preview     string
	releaseOnce sync.Once
}

// Select reads the file at path and validates its declared type. The type
// comes from the file extension, falling back to content sniffing when the
// extension is unknown. A preview copy is materialized only after the type
// passes validation.
func Select(path string) (*SelectedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	name := filepath.Base(path)
	contentType := NormalizeType(mime.TypeByExtension(filepath.Ext(name)))
	if contentType == "" {
		contentType = NormalizeType(http.DetectContentType(data))
	}

	if !AllowedTypes[contentType] {
		log.Warn().Str("file", name).Str("contentType", contentType).Msg("Rejected file with disallowed type")
		return nil, fmt.Errorf("%s: %w", name, ErrUnsupportedType)
	}

	preview, err := writePreview(name, data)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("file", name).
		Str("contentType", contentType).
		Int("bytes", len(data)).
		Msg("File selected")

	return &SelectedFile{
		Name:        name,
		ContentType: contentType,
		Data:        data,
		preview:     preview,
	}, nil
}

// Preview returns the path of the local preview copy.
func (f *SelectedFile) Preview() string {
	return f.preview
}

// Release revokes the preview handle. Idempotent; must be called on every
// transition that supersedes the file, including teardown.
func (f *SelectedFile) Release() {
	f.releaseOnce.Do(func() {
		if f.preview == "" {
			return
		}
		if err := os.Remove(f.preview); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("preview", f.preview).Msg("Failed to remove preview file")
			return
		}
		log.Debug().Str("preview", f.preview).Msg("Preview handle released")
	})
}

// NormalizeType lower-cases a MIME type, strips parameters, and maps the
// image/jpg alias accepted by file-picker filters onto image/jpeg.
func NormalizeType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "image/jpg" {
		ct = "image/jpeg"
	}
	return ct
}

// writePreview copies the image bytes into a temp file that stands in for
// the browser object URL the uploaded blob would preview through.
func writePreview(name string, data []byte) (string, error) {
	tmp, err := os.CreateTemp("", "carsnpoke-preview-*"+filepath.Ext(name))
	if err != nil {
		return "", fmt.Errorf("create preview file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write preview file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close preview file: %w", err)
	}
	return tmp.Name(), nil
}
