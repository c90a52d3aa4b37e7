package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/soilctl/internal/errors"
)

const (
	pidFile = "soilctl.pid"
)

// Path returns the location of the PID file.
func Path() string {
	return filepath.Join(os.TempDir(), pidFile)
}

// Write writes the current process ID to the PID file. It fails with
// ErrAlreadyRunning if the file names a live process; a stale file is
// replaced.
func Write() error {
	errFactory := errors.New()
	path := Path()

	if running, err := read(path); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	} else if running != 0 && running != os.Getpid() && alive(running) {
		return errFactory.WithData(errors.ErrAlreadyRunning, running)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove removes the PID file if it belongs to this process.
func Remove() error {
	errFactory := errors.New()
	path := Path()

	owner, err := read(path)
	if err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}
	if owner != os.Getpid() {
		return nil
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// read returns the PID stored at path, or 0 if there is no usable file.
func read(path string) (int, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		// Garbage in the file is treated as stale.
		return 0, nil
	}
	return pid, nil
}

func alive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// EPERM means the process exists but belongs to another user.
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
