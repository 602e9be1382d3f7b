package testutil

import (
	"io/fs"
	"sync"

	"github.com/tmm-manager/tmm/pkg/types"
)

// FaultFS wraps a types.FS and injects errors on selected paths.
// It backs the partial-failure scenarios: a deploy batch that fails
// on its Nth file operation.
type FaultFS struct {
	types.FS

	mu         sync.Mutex
	writeErrs  map[string]error
	linkErrs   map[string]error
	removeErrs map[string]error
}

// NewFaultFS wraps base with error injection.
func NewFaultFS(base types.FS) *FaultFS {
	return &FaultFS{
		FS:         base,
		writeErrs:  make(map[string]error),
		linkErrs:   make(map[string]error),
		removeErrs: make(map[string]error),
	}
}

// FailWrite makes WriteFile to the given path return err.
func (f *FaultFS) FailWrite(path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErrs[path] = err
}

// FailLink makes Link and Symlink to the given new path return err.
func (f *FaultFS) FailLink(path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.linkErrs[path] = err
}

// FailRemove makes Remove of the given path return err.
func (f *FaultFS) FailRemove(path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeErrs[path] = err
}

func (f *FaultFS) injected(m map[string]error, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return m[path]
}

func (f *FaultFS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	if err := f.injected(f.writeErrs, name); err != nil {
		return err
	}
	return f.FS.WriteFile(name, data, perm)
}

func (f *FaultFS) Link(oldname, newname string) error {
	if err := f.injected(f.linkErrs, newname); err != nil {
		return err
	}
	return f.FS.Link(oldname, newname)
}

func (f *FaultFS) Symlink(oldname, newname string) error {
	if err := f.injected(f.linkErrs, newname); err != nil {
		return err
	}
	return f.FS.Symlink(oldname, newname)
}

func (f *FaultFS) Remove(name string) error {
	if err := f.injected(f.removeErrs, name); err != nil {
		return err
	}
	return f.FS.Remove(name)
}
