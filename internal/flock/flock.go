// Package flock provides a file-based advisory lock: a named sentinel
// file created atomically on the storage provider, polled until acquired
// or timed out. The lock protects only call sites that go through a
// Manager against the same storage location; a process bypassing it can
// still write concurrently.
package flock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jeromerg/filoc/api"
)

// Defaults mirror a 60 x 1s retry budget.
const (
	DefaultTimeout = 60 * time.Second
	DefaultPoll    = time.Second
)

// Manager acquires named locks backed by sentinel files under a fixed
// directory of a storage provider.
type Manager struct {
	store api.Storage
	dir   string
}

// NewManager returns a manager placing sentinels under dir.
func NewManager(store api.Storage, dir string) *Manager {
	return &Manager{store: store, dir: dir}
}

// SentinelPath returns the deterministic sentinel path for name.
func (m *Manager) SentinelPath(name string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, name)
	dir := strings.TrimSuffix(m.dir, "/")
	return dir + "/." + safe + ".lock"
}

// Acquire creates the sentinel for name, retrying every poll interval
// until timeout elapses. It fails with *api.LockTimeoutError when the
// budget is exhausted and with the context error when ctx is canceled.
// Non-positive timeout and poll fall back to the defaults.
func (m *Manager) Acquire(ctx context.Context, name string, timeout, poll time.Duration) (*Lock, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if poll <= 0 {
		poll = DefaultPoll
	}
	sentinel := m.SentinelPath(name)
	deadline := time.Now().Add(timeout)

	for {
		created, err := m.store.CreateIfAbsent(sentinel)
		if err != nil {
			return nil, err
		}
		if created {
			return &Lock{store: m.store, name: name, path: sentinel}, nil
		}
		if time.Now().After(deadline) {
			return nil, &api.LockTimeoutError{Name: name, Timeout: timeout}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(poll):
		}
	}
}

// With runs fn while holding the lock, releasing it on every exit path.
// The release error is reported only when fn itself succeeds.
func (m *Manager) With(ctx context.Context, name string, timeout, poll time.Duration, fn func() error) error {
	lock, err := m.Acquire(ctx, name, timeout, poll)
	if err != nil {
		return err
	}
	defer lock.Release()
	if err := fn(); err != nil {
		return err
	}
	return lock.Release()
}

// ForceRelease removes the sentinel for name regardless of owner. A
// sentinel that is already gone is not an error.
func (m *Manager) ForceRelease(name string) error {
	err := m.store.Delete(m.SentinelPath(name))
	if err != nil && !errors.Is(err, api.ErrNotFound) {
		return err
	}
	return nil
}

// Lock is a held advisory lock. Release is idempotent.
type Lock struct {
	store api.Storage
	name  string
	path  string

	mu       sync.Mutex
	released bool
}

// Name returns the lock name.
func (l *Lock) Name() string { return l.name }

// Release deletes the sentinel. A sentinel already removed externally
// counts as released, not as an error.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return nil
	}
	l.released = true
	err := l.store.Delete(l.path)
	if err != nil && !errors.Is(err, api.ErrNotFound) {
		return err
	}
	return nil
}
