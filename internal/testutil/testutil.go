// Package testutil provides shared test helpers for note stores, mirrors,
// journals and hook scripts.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/quire/internal/journal"
	"github.com/starford/quire/internal/notestore"
	"github.com/starford/quire/internal/storage"
	"github.com/starford/quire/internal/syncer"
)

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestJournal creates a temporary journal database that is automatically cleaned up.
func TestJournal(t *testing.T) *journal.DB {
	t.Helper()
	db, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestNotes creates a note store in a temporary directory.
func TestNotes(t *testing.T) (string, *notestore.Store) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, notestore.New(fs, Logger())
}

// TestMirror creates a folder provider over a temporary mirror directory.
func TestMirror(t *testing.T, opts ...syncer.FolderOption) *syncer.Folder {
	t.Helper()
	opts = append([]syncer.FolderOption{syncer.WithLogger(Logger())}, opts...)
	f, err := syncer.NewFolder(t.TempDir(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

// Script writes an executable shell script with body and returns its path.
func Script(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "hook.sh")
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return p
}
