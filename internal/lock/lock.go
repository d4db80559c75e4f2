// Package lock guards a state directory against concurrent gate runs.
package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

// ErrHeld is returned by Acquire when a live process owns the lock.
var ErrHeld = errors.New("run lock held")

// PIDFile is a lock file holding the owner's PID.
type PIDFile struct {
	Path string
}

// New creates a PIDFile for the given path.
func New(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Acquire takes the lock for the current process. A file left by a dead
// process is treated as stale and replaced.
func (p *PIDFile) Acquire() error {
	for range 2 {
		f, err := os.OpenFile(p.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			_, werr := f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
			cerr := f.Close()
			if werr != nil {
				return fmt.Errorf("write lock: %w", werr)
			}
			return cerr
		}
		if !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("create lock: %w", err)
		}
		if pid, alive := p.Owner(); alive {
			return fmt.Errorf("%w by pid %d (%s)", ErrHeld, pid, p.Path)
		}
		if err := os.Remove(p.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove stale lock: %w", err)
		}
	}
	return fmt.Errorf("%w: %s", ErrHeld, p.Path)
}

// Release removes the lock if the current process owns it.
func (p *PIDFile) Release() error {
	pid, err := p.Read()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if pid != os.Getpid() {
		return nil
	}
	return os.Remove(p.Path)
}

// Read reads the PID from the file.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid lock file content: %w", err)
	}
	return pid, nil
}

// Owner returns the PID in the lock file and whether that process is alive.
func (p *PIDFile) Owner() (int, bool) {
	pid, err := p.Read()
	if err != nil {
		return 0, false
	}
	return pid, processAlive(pid)
}
