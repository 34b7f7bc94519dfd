package mvm

import (
	"bytes"
	"slices"
	"sync"

	"golang.org/x/exp/maps"

	"morphasm.org/morph/spec"
)

// Stdout is the descriptor Print writes to.
const Stdout = 1

// Linux errno values, returned negated the way the raw system calls return them.
const (
	ENOENT = 2
	EBADF  = 9
)

// Host performs I/O on behalf of the interpreter.
// Every method returns what the corresponding Linux system call would:
// a non-negative result, or a negated errno.
type Host interface {
	// Open opens name for writing (create, truncate) if mode is spec.OpenModeWrite, and read-only otherwise.
	Open(name string, mode int64) int64
	Read(fd int64, p []byte) int64
	Write(fd int64, p []byte) int64
	Close(fd int64) int64
}

type memFD struct {
	name   string
	offset int
	write  bool
}

// MemHost is a Host backed by an in-memory file system.
// Descriptors 1 and 2 write to Stdout and Stderr.
type MemHost struct {
	mu     sync.Mutex
	files  map[string][]byte
	fds    map[int64]*memFD
	nextFD int64

	Stdout bytes.Buffer
	Stderr bytes.Buffer
}

func NewMemHost() *MemHost {
	return &MemHost{
		files:  make(map[string][]byte),
		fds:    make(map[int64]*memFD),
		nextFD: 3,
	}
}

// PutFile creates or replaces a file.
func (h *MemHost) PutFile(name string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.files[name] = slices.Clone(data)
}

// File returns a copy of a file's contents.
func (h *MemHost) File(name string) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	data, ok := h.files[name]
	return slices.Clone(data), ok
}

// ListFiles returns the names of all files, sorted.
func (h *MemHost) ListFiles() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := maps.Keys(h.files)
	slices.Sort(names)
	return names
}

// OpenFDs returns the number of descriptors which have not been closed.
func (h *MemHost) OpenFDs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.fds)
}

func (h *MemHost) Open(name string, mode int64) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if name == "" {
		return -ENOENT
	}
	write := mode == spec.OpenModeWrite
	if write {
		h.files[name] = nil
	} else if _, exists := h.files[name]; !exists {
		return -ENOENT
	}
	fd := h.nextFD
	h.nextFD++
	h.fds[fd] = &memFD{name: name, write: write}
	return fd
}

func (h *MemHost) Read(fd int64, p []byte) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.fds[fd]
	if !ok || f.write {
		return -EBADF
	}
	data := h.files[f.name]
	if f.offset >= len(data) {
		return 0
	}
	n := copy(p, data[f.offset:])
	f.offset += n
	return int64(n)
}

func (h *MemHost) Write(fd int64, p []byte) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch fd {
	case 1:
		h.Stdout.Write(p)
		return int64(len(p))
	case 2:
		h.Stderr.Write(p)
		return int64(len(p))
	}
	f, ok := h.fds[fd]
	if !ok || !f.write {
		return -EBADF
	}
	data := h.files[f.name]
	if end := f.offset + len(p); end > len(data) {
		data = append(data, make([]byte, end-len(data))...)
	}
	copy(data[f.offset:], p)
	h.files[f.name] = data
	f.offset += len(p)
	return int64(len(p))
}

func (h *MemHost) Close(fd int64) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.fds[fd]; !ok {
		return -EBADF
	}
	delete(h.fds, fd)
	return 0
}
