// Package api holds the public contracts of filoc: the record data model,
// the storage provider and content codec interfaces, the event sink and
// the error taxonomy. Everything else in the module is built against this
// package, never against a concrete transport or file format.
package api

import "time"

// Storage is the byte-level transport contract. All paths use '/'
// separators regardless of the underlying transport. Implementations are
// safe for concurrent use.
type Storage interface {
	// List returns the paths of all files found recursively under prefix,
	// in the provider's natural order. A missing prefix yields an empty
	// list, not an error.
	List(prefix string) ([]string, error)

	// Stat returns the last-modified stamp of the file at path.
	// Returns a *NotFoundError when the path does not exist.
	Stat(path string) (time.Time, error)

	// Read returns the file content.
	// Returns a *NotFoundError when the path does not exist.
	Read(path string) ([]byte, error)

	// Write replaces the file content, creating parent directories as
	// needed.
	Write(path string, data []byte) error

	// Delete removes the file.
	// Returns a *NotFoundError when the path does not exist.
	Delete(path string) error

	// CreateIfAbsent atomically creates an empty file when none exists.
	// It reports true when this call created the file, false when the
	// file was already present.
	CreateIfAbsent(path string) (bool, error)
}

// Codec translates between file bytes and decoded records. A singleton
// codec stores exactly one record per file, a multi codec a sequence.
type Codec interface {
	// Decode parses file content. Singleton codecs return exactly one
	// record.
	Decode(data []byte) ([]*Record, error)

	// Encode serializes records. Singleton codecs require exactly one
	// record.
	Encode(records []*Record) ([]byte, error)

	// Singleton reports whether the codec stores one record per file.
	Singleton() bool
}

// EventSink observes read and write traffic. Implementations are invoked
// synchronously around every storage access that goes through a content
// cache, replacing any process-wide logger. Hooks must be cheap and must
// not panic.
type EventSink interface {
	PreRead(path string)
	PostRead(path string, records int, err error)
	PreWrite(path string)
	PostWrite(path string, err error)
}
