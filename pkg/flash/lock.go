package flash

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DeviceLock is an exclusive advisory lock on a file shared by every
// gamepi process driving the same serial port. The web server, the
// system service and a one-shot "gamepi flash" all take it before running
// the programmer.
type DeviceLock struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// NewDeviceLock returns a lock on path. The file is created on first use.
func NewDeviceLock(path string) *DeviceLock {
	return &DeviceLock{path: path}
}

// DefaultLockPath returns the lock file used for serialPort when none is
// configured: "gamepi-<port>.lock" in the temp directory.
func DefaultLockPath(serialPort string) string {
	name := strings.Trim(filepath.Base(serialPort), ".")
	if name == "" || name == string(filepath.Separator) {
		name = "device"
	}
	return filepath.Join(os.TempDir(), "gamepi-"+name+".lock")
}

// Path returns the lock file path.
func (l *DeviceLock) Path() string {
	return l.path
}

// TryLock takes the lock without waiting. It reports false when another
// holder has it.
func (l *DeviceLock) TryLock() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return false, fmt.Errorf("flash: device lock dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return false, fmt.Errorf("flash: open device lock: %w", err)
	}

	ok, err := tryLockFile(f)
	if err != nil || !ok {
		f.Close()
		if err != nil {
			return false, fmt.Errorf("flash: device lock %s: %w", l.path, err)
		}
		return false, nil
	}

	l.file = f
	return true, nil
}

// Unlock releases the lock. Unlocking an unheld lock is a no-op.
func (l *DeviceLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := unlockFile(l.file)
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	l.file = nil
	return err
}
