// Package storage implements the api.Storage contract on top of
// go-billy filesystems. Local disk access goes through osfs; memfs
// provides the in-memory provider used by tests and ephemeral runs.
package storage

import (
	"errors"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/jeromerg/filoc/api"
)

// Provider adapts a billy.Filesystem to api.Storage. All paths use '/'
// separators; billy normalizes them for the underlying transport. A
// mutex serializes access because memfs is not goroutine-safe.
type Provider struct {
	mu sync.Mutex
	fs billy.Filesystem
}

// New wraps an arbitrary billy filesystem.
func New(fs billy.Filesystem) *Provider {
	return &Provider{fs: fs}
}

// NewLocal returns a provider rooted at the given OS directory.
func NewLocal(root string) *Provider {
	return &Provider{fs: osfs.New(root)}
}

// NewMem returns an empty in-memory provider.
func NewMem() *Provider {
	return &Provider{fs: memfs.New()}
}

// List walks prefix recursively and returns all file paths in walk
// order. A prefix that does not exist yields an empty result.
func (p *Provider) List(prefix string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if prefix == "" {
		prefix = "/"
	}
	var out []string
	err := util.Walk(p.fs, prefix, func(walked string, info os.FileInfo, err error) error {
		if err != nil {
			if isNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		out = append(out, normalize(walked))
		return nil
	})
	if err != nil {
		if isNotExist(err) {
			return nil, nil
		}
		return nil, &api.StorageError{Op: "list", Path: prefix, Err: err}
	}
	return out, nil
}

// Stat returns the last-modified stamp of path.
func (p *Provider) Stat(pathname string) (time.Time, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	info, err := p.fs.Stat(pathname)
	if err != nil {
		if isNotExist(err) {
			return time.Time{}, &api.NotFoundError{Path: pathname}
		}
		return time.Time{}, &api.StorageError{Op: "stat", Path: pathname, Err: err}
	}
	return info.ModTime(), nil
}

// Read returns the content of path.
func (p *Provider) Read(pathname string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, err := util.ReadFile(p.fs, pathname)
	if err != nil {
		if isNotExist(err) {
			return nil, &api.NotFoundError{Path: pathname}
		}
		return nil, &api.StorageError{Op: "read", Path: pathname, Err: err}
	}
	return data, nil
}

// Write replaces the content of path, creating parent directories.
func (p *Provider) Write(pathname string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if dir := path.Dir(pathname); dir != "." && dir != "/" {
		if err := p.fs.MkdirAll(dir, 0o755); err != nil {
			return &api.StorageError{Op: "mkdir", Path: dir, Err: err}
		}
	}
	if err := util.WriteFile(p.fs, pathname, data, 0o644); err != nil {
		return &api.StorageError{Op: "write", Path: pathname, Err: err}
	}
	return nil
}

// Delete removes the file at path.
func (p *Provider) Delete(pathname string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fs.Remove(pathname); err != nil {
		if isNotExist(err) {
			return &api.NotFoundError{Path: pathname}
		}
		return &api.StorageError{Op: "delete", Path: pathname, Err: err}
	}
	return nil
}

// CreateIfAbsent atomically creates an empty file. It reports false
// without error when the file already exists.
func (p *Provider) CreateIfAbsent(pathname string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if dir := path.Dir(pathname); dir != "." && dir != "/" {
		if err := p.fs.MkdirAll(dir, 0o755); err != nil {
			return false, &api.StorageError{Op: "mkdir", Path: dir, Err: err}
		}
	}
	f, err := p.fs.OpenFile(pathname, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, &api.StorageError{Op: "create", Path: pathname, Err: err}
	}
	if err := f.Close(); err != nil {
		return false, &api.StorageError{Op: "create", Path: pathname, Err: err}
	}
	return true, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

func normalize(p string) string {
	return strings.ReplaceAll(p, string(os.PathSeparator), "/")
}
