package site

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// ThumbDir is the sub-directory of the upload dir holding thumbnails.
const ThumbDir = "thumbs"

// IsImage reports whether name has an extension the thumbnailer can decode.
func IsImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif":
		return true
	}
	return false
}

// Thumbnailer writes a scaled-down copy of uploaded images next to them.
type Thumbnailer struct {
	width int
}

// NewThumbnailer returns a thumbnailer producing images width pixels wide.
func NewThumbnailer(width int) *Thumbnailer {
	if width <= 0 {
		width = 320
	}
	return &Thumbnailer{width: width}
}

// ThumbPath returns where the thumbnail of src lives.
func ThumbPath(src string) string {
	return filepath.Join(filepath.Dir(src), ThumbDir, filepath.Base(src))
}

// Generate writes the thumbnail for src and returns its path. Images already
// narrower than the target width are copied without upscaling.
func (t *Thumbnailer) Generate(src string) (string, error) {
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	if img.Bounds().Dx() > t.width {
		img = imaging.Resize(img, t.width, 0, imaging.Lanczos)
	}

	dst := ThumbPath(src)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create thumbnail dir: %w", err)
	}
	if err := imaging.Save(img, dst, imaging.JPEGQuality(85)); err != nil {
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}
	return dst, nil
}

// Remove deletes the thumbnail of src.
func (t *Thumbnailer) Remove(src string) error {
	return os.Remove(ThumbPath(src))
}
