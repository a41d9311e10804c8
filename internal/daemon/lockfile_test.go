package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLockFileExcludesSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridged.lock")

	first := NewLockFile(path)
	if err := first.Acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !first.IsLocked() {
		t.Error("IsLocked = false after acquire")
	}

	second := NewLockFile(path)
	if err := second.Acquire(); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("second acquire err = %v, want ErrLockHeld", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := second.Acquire(); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	second.Release()
}

func TestLockFileReleaseIdempotent(t *testing.T) {
	l := NewLockFile(filepath.Join(t.TempDir(), "bridged.lock"))
	if err := l.Release(); err != nil {
		t.Errorf("release without acquire: %v", err)
	}
	if err := l.Acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	l.Release()
	if err := l.Release(); err != nil {
		t.Errorf("double release: %v", err)
	}
}

func TestPIDFileRoundtrip(t *testing.T) {
	p := NewPIDFile(filepath.Join(t.TempDir(), "bridged.pid"))

	if err := p.Write(); err != nil {
		t.Fatalf("write: %v", err)
	}
	pid, err := p.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}
	if p.IsStale() {
		t.Error("own pid reported stale")
	}

	if err := p.Remove(); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := p.Remove(); err != nil {
		t.Errorf("remove of absent file: %v", err)
	}
}

func TestPIDFileAbsentReadsZero(t *testing.T) {
	p := NewPIDFile(filepath.Join(t.TempDir(), "bridged.pid"))
	pid, err := p.Read()
	if err != nil || pid != 0 {
		t.Errorf("Read = (%d, %v), want (0, nil)", pid, err)
	}
	if p.IsStale() {
		t.Error("absent file reported stale")
	}
}

func TestPIDFileStaleEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridged.pid")
	// pid_max caps real pids well below this.
	if err := os.WriteFile(path, []byte("99999999"), 0600); err != nil {
		t.Fatal(err)
	}

	p := NewPIDFile(path)
	if !p.IsStale() {
		t.Error("unreachable pid not reported stale")
	}
}
