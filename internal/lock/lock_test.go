package lock

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites", "main", "LOCK")

	l, err := AcquireFile(path, "main")
	if err != nil {
		t.Fatalf("AcquireFile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	if !strings.Contains(string(data), "owner=main") {
		t.Errorf("lock file = %q, want owner line", data)
	}

	if err := l.Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("lock file still present after Release: %v", err)
	}
}

func TestDoubleAcquireFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "LOCK")

	l1, err := AcquireFile(path, "main")
	if err != nil {
		t.Fatalf("first AcquireFile() error = %v", err)
	}
	defer func() { _ = l1.Release() }()

	_, err = AcquireFile(path, "main")
	if err == nil {
		t.Fatal("second AcquireFile() should fail")
	}

	var held *HeldError
	if !errors.As(err, &held) {
		t.Fatalf("expected HeldError, got %T: %v", err, err)
	}
	if held.PID != os.Getpid() {
		t.Errorf("held.PID = %d, want %d", held.PID, os.Getpid())
	}
	if held.Owner != "main" {
		t.Errorf("held.Owner = %q, want main", held.Owner)
	}
}

func TestReleaseNil(t *testing.T) {
	var l *File
	if err := l.Release(); err != nil {
		t.Errorf("nil Release() error = %v", err)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	l, err := AcquireFile(filepath.Join(t.TempDir(), "LOCK"), "main")
	if err != nil {
		t.Fatalf("AcquireFile() error = %v", err)
	}

	if err := l.Release(); err != nil {
		t.Errorf("first Release() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
}
