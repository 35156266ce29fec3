package site

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"churchsite/internal/models"
)

var (
	ErrNoFile       = errors.New("No file uploaded")
	ErrFileNotFound = errors.New("File not found")
)

// Uploads stores admin uploads in a flat directory served under /upload/.
// Images also get a thumbnail, and every file is copied to the mirror when
// one is configured. Thumbnail and mirror failures are logged only.
type Uploads struct {
	dir    string
	thumbs *Thumbnailer
	mirror Mirror
	logger *slog.Logger
}

// NewUploads creates dir if needed. thumbs and mirror may be nil.
func NewUploads(dir string, thumbs *Thumbnailer, mirror Mirror, logger *slog.Logger) (*Uploads, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploads{dir: dir, thumbs: thumbs, mirror: mirror, logger: logger}, nil
}

// SafeName reduces a client-supplied file name to its base name with
// spaces replaced by underscores. It returns "" for names with no usable
// base.
func SafeName(name string) string {
	base := filepath.Base(filepath.ToSlash(strings.ReplaceAll(name, `\`, "/")))
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return strings.ReplaceAll(base, " ", "_")
}

// Save writes body under the safe form of filename and returns the public
// URL path ("upload/<name>").
func (u *Uploads) Save(ctx context.Context, filename string, body io.Reader) (string, error) {
	name := SafeName(filename)
	if name == "" {
		return "", ErrNoFile
	}
	path := filepath.Join(u.dir, name)
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", name, err)
	}

	if u.thumbs != nil && IsImage(name) {
		if _, err := u.thumbs.Generate(path); err != nil {
			u.logger.Warn("thumbnail failed", "file", name, "err", err)
		}
	}
	if u.mirror != nil {
		if err := u.mirrorFile(ctx, name, path); err != nil {
			u.logger.Warn("mirror upload failed", "file", name, "err", err)
		}
	}
	return "upload/" + name, nil
}

func (u *Uploads) mirrorFile(ctx context.Context, name, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	location, err := u.mirror.Put(ctx, name, data, contentType)
	if err != nil {
		return err
	}
	u.logger.Info("mirrored upload", "file", name, "location", location)
	return nil
}

// List returns the regular files in the upload directory sorted by name.
func (u *Uploads) List() ([]models.FileInfo, error) {
	entries, err := os.ReadDir(u.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.FileInfo{}, nil
		}
		return nil, fmt.Errorf("read upload dir: %w", err)
	}
	files := make([]models.FileInfo, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, models.FileInfo{
			Name:     e.Name(),
			Size:     info.Size(),
			Modified: models.UnixSeconds(info.ModTime()),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Delete removes the base name of filename along with its thumbnail and
// mirrored copy.
func (u *Uploads) Delete(ctx context.Context, filename string) error {
	name := filepath.Base(filename)
	if name == "." || name == "/" || name == ".." {
		return ErrFileNotFound
	}
	path := filepath.Join(u.dir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return ErrFileNotFound
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	if u.thumbs != nil {
		if err := u.thumbs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			u.logger.Warn("remove thumbnail failed", "file", name, "err", err)
		}
	}
	if u.mirror != nil {
		if err := u.mirror.Remove(ctx, name); err != nil {
			u.logger.Warn("remove mirrored upload failed", "file", name, "err", err)
		}
	}
	return nil
}
