// Package gitrev resolves the current source-control revision of the site
// checkout. Lookups are best-effort: any failure yields Unknown.
package gitrev

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// Unknown is returned whenever the revision cannot be determined.
const Unknown = "unknown"

// Lookup runs `git rev-parse --short HEAD` in Dir.
type Lookup struct {
	Dir         string
	Timeout     time.Duration
	CommandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// Short returns the abbreviated HEAD hash or Unknown.
func (l *Lookup) Short(ctx context.Context) string {
	timeout := l.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmdFn := l.CommandFunc
	if cmdFn == nil {
		cmdFn = exec.CommandContext
	}
	cmd := cmdFn(ctx, "git", "rev-parse", "--short", "HEAD")
	if l.Dir != "" {
		cmd.Dir = l.Dir
	}
	out, err := cmd.Output()
	if err != nil {
		return Unknown
	}
	hash := strings.TrimSpace(string(out))
	if hash == "" {
		return Unknown
	}
	return hash
}

// Static always reports the same revision. Useful when git is not wanted.
type Static string

// Short returns s, or Unknown when s is empty.
func (s Static) Short(context.Context) string {
	if s == "" {
		return Unknown
	}
	return string(s)
}
