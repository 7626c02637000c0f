// Package lock provides the two kinds of mutual exclusion the daemon needs:
// a process-wide file lock per site and an in-process single-flight group
// keyed by sync target.
package lock

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// HeldError is returned when another daemon already serves the site.
type HeldError struct {
	PID   int
	Owner string
	Path  string
}

func (e *HeldError) Error() string {
	if e.Owner != "" {
		return fmt.Sprintf("site %s already served by PID %d (%s)", e.Owner, e.PID, e.Path)
	}
	return fmt.Sprintf("lock held by PID %d (%s)", e.PID, e.Path)
}

// File is an acquired flock on a lock file.
type File struct {
	f    *os.File
	path string
}

// AcquireFile takes an exclusive, non-blocking flock on path and records
// the owner and the current PID in it.
func AcquireFile(path, owner string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		held := readHolder(path)
		_ = f.Close()
		held.Path = path
		return nil, held
	}

	if err := writeHolder(f, owner); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write lock file: %w", err)
	}
	return &File{f: f, path: path}, nil
}

// Release drops the lock and removes the file. Safe on a nil receiver and
// safe to call twice.
func (l *File) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.f.Close()
	l.f = nil
	return err
}

func writeHolder(f *os.File, owner string) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err := fmt.Fprintf(f, "pid=%d\nowner=%s\ntime=%s\n",
		os.Getpid(), owner, time.Now().UTC().Format(time.RFC3339))
	return err
}

func readHolder(path string) *HeldError {
	held := &HeldError{}
	f, err := os.Open(path)
	if err != nil {
		return held
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, val, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			held.PID, _ = strconv.Atoi(val)
		case "owner":
			held.Owner = val
		}
	}
	return held
}
