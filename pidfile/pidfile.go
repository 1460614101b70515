// Package pidfile keeps a single instance of a program running at a time.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

var ErrAlreadyRunning = errors.New("already running")

type PIDFile struct {
	path string
	pid  int
}

// Acquire writes the current PID to path. A file left behind by a process
// that is no longer running is replaced. If the recorded process is alive,
// Acquire returns an error wrapping ErrAlreadyRunning.
func Acquire(path string) (*PIDFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create pid dir: %w", err)
	}

	pid := os.Getpid()
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, werr := f.WriteString(strconv.Itoa(pid))
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("write pid file: %w", errors.Join(werr, cerr))
			}
			return &PIDFile{path: path, pid: pid}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create pid file: %w", err)
		}

		if existing, running := checkExistingPID(path); running && existing != pid {
			return nil, fmt.Errorf("pid %d: %w", existing, ErrAlreadyRunning)
		}
	}

	return nil, fmt.Errorf("pid file %s keeps reappearing: %w", path, ErrAlreadyRunning)
}

// Release removes the file if it still holds our PID.
func (p *PIDFile) Release() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	existing, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || existing != p.pid {
		return nil
	}
	return os.Remove(p.path)
}

// checkExistingPID removes the file when the recorded process is gone or the
// content is not a PID.
func checkExistingPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err == nil && pid > 0 && processRunning(pid) {
		return pid, true
	}
	_ = os.Remove(path)
	return pid, false
}

func processRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return false
	}
	return true
}
