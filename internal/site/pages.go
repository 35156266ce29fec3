// Package site manages the files that make up the public website: editable
// HTML pages and admin uploads.
package site

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrMissingPage = errors.New("Missing page or content")
	ErrNotHTML     = errors.New("Only HTML files allowed")
)

// Pages writes HTML pages into the web root, keeping a timestamped copy of
// the previous version in the backup directory.
type Pages struct {
	webDir    string
	backupDir string
	now       func() time.Time
}

// NewPages creates the backup directory if needed.
func NewPages(webDir, backupDir string) (*Pages, error) {
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	return &Pages{webDir: webDir, backupDir: backupDir, now: time.Now}, nil
}

// Save replaces page with content. Only the base name of page is used.
// It returns the backup file name, or "" when there was nothing to back up.
// A failed backup does not stop the write; Save then returns a *BackupError
// after the page has been saved.
func (p *Pages) Save(page, content string) (string, error) {
	if page == "" || content == "" {
		return "", ErrMissingPage
	}
	name := filepath.Base(page)
	if !strings.HasSuffix(name, ".html") {
		return "", ErrNotHTML
	}
	target := filepath.Join(p.webDir, name)

	backup, backupErr := p.backup(target, name)
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write page %s: %w", name, err)
	}
	if backupErr != nil {
		return "", &BackupError{Page: name, Err: backupErr}
	}
	return backup, nil
}

// BackupError reports that the page was saved but its previous version
// could not be copied.
type BackupError struct {
	Page string
	Err  error
}

func (e *BackupError) Error() string {
	return fmt.Sprintf("backup %s: %v", e.Page, e.Err)
}

func (e *BackupError) Unwrap() error {
	return e.Err
}

func (p *Pages) backup(target, name string) (string, error) {
	info, err := os.Stat(target)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	backupName := fmt.Sprintf("%s.%s.bak", name, p.now().Format("20060102-150405"))
	if err := copyFile(target, filepath.Join(p.backupDir, backupName), info); err != nil {
		return "", err
	}
	return backupName, nil
}

// copyFile copies src to dst keeping the modification time.
func copyFile(src, dst string, info os.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
