// Package notestore keeps notes as individual Markdown files with YAML
// frontmatter, one `<id>.md` per note.
package notestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/parser"
	"github.com/starford/quire/internal/storage"
)

// Ext is the file extension of note files.
const Ext = ".md"

var idRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidID reports whether id is safe to use as a file name.
func ValidID(id string) bool {
	return idRe.MatchString(id) && !strings.Contains(id, "..")
}

// Store is the note persistence layer.
type Store struct {
	fs     storage.Provider
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex // serialises read-modify-write in Save
}

// New creates a store over fs.
func New(fs storage.Provider, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{fs: fs, logger: logger, now: time.Now}
}

// Dir returns the absolute notes directory.
func (s *Store) Dir() string { return s.fs.Root() }

// FileName returns the file name for a note id.
func FileName(id string) string { return id + Ext }

// IDFromPath returns the note id for a note file path, or false when the path
// is not a note file.
func IDFromPath(p string) (string, bool) {
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	if !strings.HasSuffix(base, Ext) || strings.HasPrefix(base, ".") {
		return "", false
	}
	id := strings.TrimSuffix(base, Ext)
	return id, ValidID(id)
}

// List returns every note, most recently updated first. Unreadable files are
// logged and skipped.
func (s *Store) List(_ context.Context) ([]models.Note, error) {
	files, err := s.fs.List("", Ext)
	if err != nil {
		return nil, fmt.Errorf("notestore: list: %w", err)
	}
	notes := make([]models.Note, 0, len(files))
	for _, f := range files {
		id, ok := IDFromPath(f.Path)
		if !ok {
			continue
		}
		n, err := s.load(id)
		if err != nil {
			s.logger.Warn("notestore: skip unreadable note", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		notes = append(notes, n)
	}
	sort.SliceStable(notes, func(i, j int) bool {
		if !notes[i].UpdatedAt.Equal(notes[j].UpdatedAt) {
			return notes[i].UpdatedAt.After(notes[j].UpdatedAt)
		}
		return notes[i].ID < notes[j].ID
	})
	return notes, nil
}

// Get loads one note.
func (s *Store) Get(_ context.Context, id string) (models.Note, error) {
	if !ValidID(id) {
		return models.Note{}, fmt.Errorf("notestore: %w: %q", apperr.ErrInvalidID, id)
	}
	return s.load(id)
}

// Create writes a new note with a fresh identifier.
func (s *Store) Create(ctx context.Context, title, content string) (models.Note, error) {
	now := s.now().UTC()
	n := models.Note{
		ID:        uuid.NewString(),
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.write(n); err != nil {
		return models.Note{}, err
	}
	return s.Get(ctx, n.ID)
}

// Save writes n, keeping its original creation time and bumping UpdatedAt so
// it strictly increases.
func (s *Store) Save(_ context.Context, n models.Note) (models.Note, error) {
	if !ValidID(n.ID) {
		return models.Note{}, fmt.Errorf("notestore: %w: %q", apperr.ErrInvalidID, n.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if prev, err := s.load(n.ID); err == nil {
		n.CreatedAt = prev.CreatedAt
		if !now.After(prev.UpdatedAt) {
			now = prev.UpdatedAt.Add(time.Millisecond)
		}
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return models.Note{}, err
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now
	if err := s.write(n); err != nil {
		return models.Note{}, err
	}
	return s.load(n.ID)
}

// Delete removes a note. Deleting a missing note succeeds.
func (s *Store) Delete(_ context.Context, id string) error {
	if !ValidID(id) {
		return fmt.Errorf("notestore: %w: %q", apperr.ErrInvalidID, id)
	}
	if err := s.fs.Delete(FileName(id)); err != nil {
		return fmt.Errorf("notestore: delete %s: %w", id, err)
	}
	return nil
}

func (s *Store) load(id string) (models.Note, error) {
	data, err := s.fs.Read(FileName(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.Note{}, fmt.Errorf("notestore: note %s: %w", id, apperr.ErrNotFound)
		}
		return models.Note{}, fmt.Errorf("notestore: %w", err)
	}
	res, err := parser.Parse(data)
	if err != nil {
		return models.Note{}, fmt.Errorf("notestore: parse %s: %w", id, err)
	}
	n := models.Note{
		// The file name is authoritative for the identifier.
		ID:        id,
		Title:     res.Title,
		Content:   res.Body,
		CreatedAt: res.Meta.Created,
		UpdatedAt: res.Meta.Updated,
		Pinned:    res.Meta.Pinned,
		Archived:  res.Meta.Archived,
		Color:     res.Meta.Color,
		Section:   res.Section,
	}
	if n.UpdatedAt.IsZero() || n.CreatedAt.IsZero() {
		if info, ok := s.modTime(id); ok {
			if n.UpdatedAt.IsZero() {
				n.UpdatedAt = info
			}
			if n.CreatedAt.IsZero() {
				n.CreatedAt = n.UpdatedAt
			}
		}
	}
	return n, nil
}

func (s *Store) modTime(id string) (time.Time, bool) {
	files, err := s.fs.List("", Ext)
	if err != nil {
		return time.Time{}, false
	}
	for _, f := range files {
		if f.Path == FileName(id) {
			return f.ModTime.UTC(), true
		}
	}
	return time.Time{}, false
}

func (s *Store) write(n models.Note) error {
	data, err := parser.Render(parser.Meta{
		ID:       n.ID,
		Title:    n.Title,
		Created:  n.CreatedAt,
		Updated:  n.UpdatedAt,
		Pinned:   n.Pinned,
		Archived: n.Archived,
		Color:    n.Color,
	}, n.Content)
	if err != nil {
		return err
	}
	if err := s.fs.Write(FileName(n.ID), data); err != nil {
		return fmt.Errorf("notestore: write %s: %w", n.ID, err)
	}
	return nil
}
