// Package storage provides a root-confined file system used both for the
// local note store and for the sync mirror folder.
package storage

import (
	"io"
	"time"
)

// File describes one file returned by List.
type File struct {
	Path    string // relative to the root, slash separated
	Size    int64
	ModTime time.Time
}

// Provider is the interface for root-confined file operations.
type Provider interface {
	// List returns the files directly under dir whose name ends with ext.
	List(dir, ext string) ([]File, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces the file at path with content.
	Write(path string, content []byte) error
	// WriteFrom atomically replaces the file at path with the bytes of r.
	WriteFrom(path string, r io.Reader) error
	// Delete removes the file at path. A missing file is not an error.
	Delete(path string) error
	// Exists reports whether a regular file exists at path.
	Exists(path string) (bool, error)
	// Abs resolves path to an absolute path inside the root.
	Abs(path string) (string, error)
	// Root returns the absolute root directory.
	Root() string
}

var _ Provider = (*FS)(nil)
