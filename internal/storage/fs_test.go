package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempRoot(t *testing.T) *FS {
	t.Helper()
	fs, err := NewFS(t.TempDir())
	require.NoError(t, err)
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempRoot(t)
	content := []byte(`{"id":"a"}`)
	require.NoError(t, s.Write("notes/a.json", content))

	got, err := s.Read("notes/a.json")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestWriteFromStreams(t *testing.T) {
	s := tempRoot(t)
	require.NoError(t, s.WriteFrom("images/x.png", strings.NewReader("png-bytes")))

	ok, err := s.Exists("images/x.png")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := tempRoot(t)
	require.NoError(t, s.Write("del.json", []byte("bye")))
	require.NoError(t, s.Delete("del.json"))
	require.NoError(t, s.Delete("del.json"))

	ok, err := s.Exists("del.json")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListFiltersByExtension(t *testing.T) {
	s := tempRoot(t)
	require.NoError(t, s.Write("notes/b.json", []byte("b")))
	require.NoError(t, s.Write("notes/a.json", []byte("a")))
	require.NoError(t, s.Write("notes/readme.txt", []byte("x")))
	require.NoError(t, s.Write("notes/sub/c.json", []byte("c")))

	items, err := s.List("notes", ".json")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "notes/a.json", items[0].Path)
	assert.Equal(t, "notes/b.json", items[1].Path)
}

func TestListMissingDir(t *testing.T) {
	s := tempRoot(t)
	items, err := s.List("nothing", ".json")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestTraversalBlocked(t *testing.T) {
	s := tempRoot(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.json",
		"notes/../../x",
		"/etc/shadow",
	}
	for _, p := range cases {
		_, err := s.Read(p)
		assert.ErrorIs(t, err, ErrOutsideRoot, "Read(%q)", p)
		assert.Error(t, s.Write(p, []byte("x")), "Write(%q)", p)
	}
}

func TestSymlinkOutsideRootRejected(t *testing.T) {
	s := tempRoot(t)
	outside := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("OUTSIDE-ROOT"), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(s.Root(), "leak.txt")))
	require.NoError(t, os.Symlink(filepath.Dir(outside), filepath.Join(s.Root(), "linked")))

	for _, p := range []string{"leak.txt", "linked/secret.txt"} {
		_, err := s.Read(p)
		assert.ErrorIs(t, err, ErrOutsideRoot, "Read(%q)", p)
		ok, err := s.Exists(p)
		assert.ErrorIs(t, err, ErrOutsideRoot, "Exists(%q)", p)
		assert.False(t, ok)
	}
}

func TestSymlinkInsideRootFollowed(t *testing.T) {
	s := tempRoot(t)
	require.NoError(t, s.Write("real.json", []byte("inside")))
	require.NoError(t, os.Symlink(filepath.Join(s.Root(), "real.json"), filepath.Join(s.Root(), "alias.json")))

	got, err := s.Read("alias.json")
	require.NoError(t, err)
	assert.Equal(t, "inside", string(got))
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	s := tempRoot(t)
	require.NoError(t, s.Write("index.json", []byte("[]")))
	require.NoError(t, s.Write("index.json", []byte(`[{"id":"a"}]`)))

	got, err := s.Read("index.json")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"a"}]`, string(got))

	matches, err := filepath.Glob(filepath.Join(s.Root(), ".quire-tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "quire-test-*")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = NewFS(f.Name())
	assert.Error(t, err)
}
