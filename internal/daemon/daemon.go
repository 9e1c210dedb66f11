// Package daemon implements the filesystem collaborators spec §6 names:
// the `.status` state machine and the `.log`/`.err` file handles. Neither
// carries an interesting invariant (spec.md §1 explicitly excludes "the
// daemonization ritual, log/err file redirection, ... status-file state
// machine" from the core), so this package is deliberately small.
package daemon

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Status is one of the three states spec §6 names for the `.status` file.
type Status string

const (
	Running            Status = "RUNNING"
	GracefullyStopped  Status = "GRACEFULLY_STOPPED"
	Abend              Status = "ABEND"
)

// Paths resolves the five well-known files spec §6 describes under
// <root>/<name>.{sock,log,err,status,db}.
type Paths struct {
	Root string
	Name string
}

func (p Paths) path(ext string) string {
	return filepath.Join(p.Root, p.Name+"."+ext)
}

func (p Paths) SockPath() string   { return p.path("sock") }
func (p Paths) LogPath() string    { return p.path("log") }
func (p Paths) ErrPath() string    { return p.path("err") }
func (p Paths) StatusPath() string { return p.path("status") }
func (p Paths) DBPath() string     { return p.path("db") }

// WriteStatus overwrites the `.status` file with s, the sole content
// described by spec §6.
func (p Paths) WriteStatus(s Status) error {
	if err := os.WriteFile(p.StatusPath(), []byte(s), 0o644); err != nil {
		return errors.WithMessagef(err, "daemon: write status file %q", p.StatusPath())
	}
	return nil
}

// OpenLogFiles opens (creating/appending) the `.log` and `.err` files the
// CLI redirects output to; the caller is responsible for closing both.
func (p Paths) OpenLogFiles() (logFile, errFile *os.File, err error) {
	logFile, err = os.OpenFile(p.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "daemon: open log file %q", p.LogPath())
	}
	errFile, err = os.OpenFile(p.ErrPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logFile.Close()
		return nil, nil, errors.WithMessagef(err, "daemon: open err file %q", p.ErrPath())
	}
	return logFile, errFile, nil
}

// EnsureRoot creates the root directory if it doesn't already exist, so a
// fresh `--path` is usable without a separate setup step.
func (p Paths) EnsureRoot() error {
	if err := os.MkdirAll(p.Root, 0o755); err != nil {
		return errors.WithMessagef(err, "daemon: create root directory %q", p.Root)
	}
	return nil
}
