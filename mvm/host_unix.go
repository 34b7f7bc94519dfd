//go:build unix

package mvm

import (
	"errors"
	"io"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"morphasm.org/morph/spec"
)

// OSHost is a Host backed by the operating system.
// Relative names are resolved against Dir, or the working directory if Dir is empty.
type OSHost struct {
	Dir string
	// Stdout, if set, receives writes to descriptor 1 instead of the process's stdout.
	Stdout io.Writer

	mu   sync.Mutex
	open map[int]struct{}
}

func NewOSHost(dir string, stdout io.Writer) *OSHost {
	return &OSHost{Dir: dir, Stdout: stdout, open: make(map[int]struct{})}
}

func (h *OSHost) Open(name string, mode int64) int64 {
	if h.Dir != "" && name != "" && !filepath.IsAbs(name) {
		name = filepath.Join(h.Dir, name)
	}
	flags := unix.O_RDONLY
	if mode == spec.OpenModeWrite {
		flags = unix.O_WRONLY | unix.O_CREAT | unix.O_TRUNC
	}
	fd, err := unix.Open(name, flags|unix.O_CLOEXEC, spec.OpenPerm)
	if err != nil {
		return errnoResult(err)
	}
	h.mu.Lock()
	h.open[fd] = struct{}{}
	h.mu.Unlock()
	return int64(fd)
}

func (h *OSHost) Read(fd int64, p []byte) int64 {
	if !h.usable(fd) {
		return -EBADF
	}
	n, err := unix.Read(int(fd), p)
	if err != nil {
		return errnoResult(err)
	}
	return int64(n)
}

func (h *OSHost) Write(fd int64, p []byte) int64 {
	if fd == Stdout && h.Stdout != nil {
		n, err := h.Stdout.Write(p)
		if err != nil {
			return -EBADF
		}
		return int64(n)
	}
	if !h.usable(fd) {
		return -EBADF
	}
	n, err := unix.Write(int(fd), p)
	if err != nil {
		return errnoResult(err)
	}
	return int64(n)
}

// usable is true for the standard descriptors and those this host opened.
func (h *OSHost) usable(fd int64) bool {
	if fd >= 0 && fd <= 2 {
		return true
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.open[int(fd)]
	return ok
}

// Close only closes descriptors this host opened.
func (h *OSHost) Close(fd int64) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.open[int(fd)]; !ok {
		return -EBADF
	}
	delete(h.open, int(fd))
	if err := unix.Close(int(fd)); err != nil {
		return errnoResult(err)
	}
	return 0
}

// Release closes every descriptor the program left open.
func (h *OSHost) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for fd := range h.open {
		unix.Close(fd)
		delete(h.open, fd)
	}
}

func errnoResult(err error) int64 {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return -int64(errno)
	}
	return -EBADF
}
