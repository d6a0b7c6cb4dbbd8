package api

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is matched by errors.Is for any *NotFoundError.
var ErrNotFound = errors.New("not found")

// TemplateError reports a malformed path template: unbalanced braces, a
// repeated placeholder name or an unknown type annotation.
type TemplateError struct {
	Template string
	Reason   string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template %q: %s", e.Template, e.Reason)
}

// MissingKeyError reports a binding that omits a placeholder required to
// build a concrete path.
type MissingKeyError struct {
	Template string
	Name     string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("template %q: no value bound for placeholder %q", e.Template, e.Name)
}

// TypeMismatchError reports a bound value whose runtime type disagrees
// with the declared placeholder type.
type TypeMismatchError struct {
	Name  string
	Want  string
	Value any
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("placeholder %q: want %s, got %T (%v)", e.Name, e.Want, e.Value, e.Value)
}

// IncompleteKeyError reports a composite row that lacks a shared field
// required to build some source's path.
type IncompleteKeyError struct {
	Source string
	Name   string
}

func (e *IncompleteKeyError) Error() string {
	return fmt.Sprintf("source %q: row lacks shared key %q", e.Source, e.Name)
}

// StorageError wraps an I/O failure of the storage provider. It is never
// retried at this level; retry policy belongs to the transport.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NotFoundError reports a path that does not exist, typically because it
// vanished between listing and reading. Callers treat it as a dropped
// row, not a fatal failure. Matches ErrNotFound under errors.Is.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("path %q: not found", e.Path)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// JoinKeyError reports an invalid composite construction: no shared
// placeholder across the sources, or a placeholder name that appears in
// several sources without appearing in all of them.
type JoinKeyError struct {
	Name   string
	Reason string
}

func (e *JoinKeyError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("join key %q: %s", e.Name, e.Reason)
	}
	return "join keys: " + e.Reason
}

// NotWritableError reports a write or delete against a read-only source.
type NotWritableError struct {
	Source string
}

func (e *NotWritableError) Error() string {
	if e.Source == "" {
		return "filoc is not writable"
	}
	return fmt.Sprintf("source %q is not writable", e.Source)
}

// LockTimeoutError reports that a lock could not be acquired within its
// budget. The caller decides whether to retry at a higher level.
type LockTimeoutError struct {
	Name    string
	Timeout time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("lock %q: not acquired within %s", e.Name, e.Timeout)
}
