package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/checksum"
	"github.com/starford/quire/internal/hook"
	"github.com/starford/quire/internal/journal"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/notestore"
	"github.com/starford/quire/internal/secrets"
	"github.com/starford/quire/internal/sse"
	"github.com/starford/quire/internal/storage"
	"github.com/starford/quire/internal/viewer"
)

// Mirror layout.
const (
	NotesDir  = "notes"
	ImagesDir = "images"
	IndexFile = "index.json"
)

const defaultConcurrency = 4

var hashRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// HookRunner runs the publish hook for one event.
type HookRunner interface {
	Run(ctx context.Context, ev hook.Event) (string, error)
}

// Recorder stores the outcome of each hook run.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Notifier is told about every mirror change and status transition.
type Notifier interface {
	PublishChange(kind, subject string)
	PublishStatus(state, detail string)
}

// FolderOption configures a Folder.
type FolderOption func(*Folder)

// WithHook sets the publish hook runner.
func WithHook(r HookRunner) FolderOption {
	return func(f *Folder) { f.hook = r }
}

// WithHookScript builds a hook.Hook for script once the logger is known.
func WithHookScript(script string, timeout time.Duration) FolderOption {
	return func(f *Folder) {
		f.hookScript = script
		f.hookTimeout = timeout
	}
}

// WithRecorder sets the journal that hook outcomes are written to.
func WithRecorder(r Recorder) FolderOption {
	return func(f *Folder) { f.recorder = r }
}

// WithNotifier sets the change listener.
func WithNotifier(n Notifier) FolderOption {
	return func(f *Folder) { f.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) FolderOption {
	return func(f *Folder) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithBaseURL sets the public prefix used for image links.
func WithBaseURL(u string) FolderOption {
	return func(f *Folder) { f.baseURL = strings.TrimRight(u, "/") }
}

// WithFilterSecrets toggles redaction of note content before it is written.
func WithFilterSecrets(on bool) FolderOption {
	return func(f *Folder) { f.filterSecrets = on }
}

// WithConcurrency bounds the number of notes Reconcile writes at once.
func WithConcurrency(n int) FolderOption {
	return func(f *Folder) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// Folder mirrors notes and images into a directory and keeps index.json
// derived from whatever is in notes/.
type Folder struct {
	fs            *storage.FS
	hook          HookRunner
	hookScript    string
	hookTimeout   time.Duration
	recorder      Recorder
	notifier      Notifier
	logger        *slog.Logger
	baseURL       string
	filterSecrets bool
	concurrency   int

	// indexMu serializes index rebuilds. Note writes are not locked.
	indexMu sync.Mutex

	statusMu sync.RWMutex
	status   Status
}

// NewFolder creates the mirror layout under dir and returns the provider.
func NewFolder(dir string, opts ...FolderOption) (*Folder, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, &Error{Kind: KindFolderNotConfigured}
	}

	f := &Folder{
		logger:      slog.Default(),
		concurrency: defaultConcurrency,
		status:      Status{State: StateSynced},
	}
	for _, opt := range opts {
		opt(f)
	}

	for _, sub := range []string{NotesDir, ImagesDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, &Error{Kind: KindFolderNotAccessible, Path: dir, Err: err}
		}
	}
	fs, err := storage.NewFS(dir)
	if err != nil {
		return nil, &Error{Kind: KindFolderNotAccessible, Path: dir, Err: err}
	}
	f.fs = fs

	if f.hook == nil && f.hookScript != "" {
		h := hook.New(f.hookScript, hook.WithTimeout(f.hookTimeout), hook.WithLogger(f.logger))
		if !h.Verify() {
			f.logger.Warn("publish hook is not an executable file", slog.String("script", f.hookScript))
		}
		f.hook = h
	}

	return f, nil
}

// Root returns the absolute mirror folder.
func (f *Folder) Root() string { return f.fs.Root() }

// Enabled reports true.
func (f *Folder) Enabled() bool { return true }

// Status returns the current status.
func (f *Folder) Status() Status {
	f.statusMu.RLock()
	defer f.statusMu.RUnlock()
	return f.status
}

func (f *Folder) setStatus(s Status) {
	f.statusMu.Lock()
	changed := f.status != s
	f.status = s
	f.statusMu.Unlock()

	if changed && f.notifier != nil {
		f.notifier.PublishStatus(string(s.State), s.Detail)
	}
}

func notePath(id string) string { return path.Join(NotesDir, id+".json") }

// sanitize returns the copy of n that is allowed to leave the device.
func (f *Folder) sanitize(n models.Note) models.Note {
	if n.Section == "" {
		n.Section = models.ParseSection(n.Content)
	}
	if f.filterSecrets {
		n.Title = secrets.Filter(n.Title)
		n.Content = secrets.Filter(n.Content)
	}
	return n
}

func (f *Folder) writeNote(note models.Note) (string, error) {
	rel := notePath(note.ID)
	if !notestore.ValidID(note.ID) {
		return "", writeFailed(rel, fmt.Errorf("%w: %q", apperr.ErrInvalidID, note.ID))
	}
	abs, err := f.fs.Abs(rel)
	if err != nil {
		return "", writeFailed(rel, err)
	}

	data, err := json.MarshalIndent(f.sanitize(note), "", "  ")
	if err != nil {
		return "", writeFailed(abs, err)
	}
	if err := f.fs.Write(rel, append(data, '\n')); err != nil {
		return "", writeFailed(abs, err)
	}
	return abs, nil
}

// SyncNote writes the sanitized note, fires note_updated and rebuilds the
// index. A write failure aborts before the hook runs. A hook failure is
// returned after the index has been rebuilt; the note file stays written.
func (f *Folder) SyncNote(ctx context.Context, note models.Note) error {
	abs, err := f.writeNote(note)
	if err != nil {
		f.fail(err)
		return err
	}
	f.notify(sse.ChangeNoteSynced, note.ID)

	_, hookErr := f.runHook(ctx, hook.NoteUpdated{NoteID: note.ID, NotePath: abs})

	if err := f.RebuildIndex(ctx); err != nil {
		f.fail(err)
		return err
	}
	if hookErr != nil {
		return hookErr
	}
	f.setStatus(Status{State: StateSynced})
	return nil
}

// DeleteNote removes the mirrored note. A missing file is not an error.
func (f *Folder) DeleteNote(ctx context.Context, id string) error {
	rel := notePath(id)
	if !notestore.ValidID(id) {
		return deleteFailed(rel, fmt.Errorf("%w: %q", apperr.ErrInvalidID, id))
	}
	abs, err := f.fs.Abs(rel)
	if err != nil {
		return deleteFailed(rel, err)
	}
	if err := f.fs.Delete(rel); err != nil {
		err = deleteFailed(abs, err)
		f.fail(err)
		return err
	}
	f.notify(sse.ChangeNoteDeleted, id)

	_, hookErr := f.runHook(ctx, hook.NoteDeleted{NoteID: id})

	if err := f.RebuildIndex(ctx); err != nil {
		f.fail(err)
		return err
	}
	if hookErr != nil {
		return hookErr
	}
	f.setStatus(Status{State: StateSynced})
	return nil
}

// SyncImage copies the image to images/<hash>.<ext> unless a file for hash
// is already there, whatever its extension. An empty hash is computed from the bytes. The returned address is
// the hook's URL if it printed one, else base_url/images/<file> when a base
// URL is configured, else the absolute mirror path.
func (f *Folder) SyncImage(ctx context.Context, localPath, hash string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", writeFailed(localPath, err)
	}
	if hash == "" {
		hash = checksum.Sum(data)
	}
	if !hashRe.MatchString(hash) {
		return "", writeFailed(localPath, fmt.Errorf("invalid image hash %q", hash))
	}

	name, exists, err := f.existingImage(hash)
	if err != nil {
		return "", writeFailed(filepath.Join(f.fs.Root(), ImagesDir), err)
	}
	if !exists {
		name = hash + imageExt(localPath, data)
	}
	rel := path.Join(ImagesDir, name)
	abs, err := f.fs.Abs(rel)
	if err != nil {
		return "", writeFailed(rel, err)
	}
	if !exists {
		if err := f.fs.Write(rel, data); err != nil {
			err = writeFailed(abs, err)
			f.fail(err)
			return "", err
		}
		f.notify(sse.ChangeImageSynced, name)
	}

	out, err := f.runHook(ctx, hook.ImageUploaded{LocalPath: abs, Hash: hash})
	if err != nil {
		return "", err
	}
	if u, ok := hook.ParseURL(out); ok {
		return u, nil
	}
	if f.baseURL != "" {
		return f.baseURL + "/" + rel, nil
	}
	return abs, nil
}

// SyncAll rebuilds the index and fires sync_all with the mirror folder.
func (f *Folder) SyncAll(ctx context.Context) error {
	f.setStatus(Status{State: StateSyncing})

	if err := f.RebuildIndex(ctx); err != nil {
		f.fail(err)
		return err
	}
	if _, err := f.runHook(ctx, hook.SyncAll{SyncFolder: f.fs.Root()}); err != nil {
		return err
	}
	f.setStatus(Status{State: StateSynced})
	return nil
}

// Reconcile makes the mirror match notes: every note is written, mirrored
// notes with no local counterpart are removed, and SyncAll runs once at the
// end. Per-note hooks are not fired; sync_all covers the batch.
func (f *Folder) Reconcile(ctx context.Context, notes []models.Note) error {
	f.setStatus(Status{State: StateSyncing})

	keep := make(map[string]struct{}, len(notes))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for _, n := range notes {
		keep[n.ID] = struct{}{}
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			_, err := f.writeNote(n)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		f.fail(err)
		return err
	}

	files, err := f.fs.List(NotesDir, ".json")
	if err != nil {
		err = writeFailed(filepath.Join(f.fs.Root(), NotesDir), err)
		f.fail(err)
		return err
	}
	removed := 0
	for _, file := range files {
		id := strings.TrimSuffix(path.Base(file.Path), ".json")
		if _, ok := keep[id]; ok {
			continue
		}
		if err := f.fs.Delete(file.Path); err != nil {
			err = deleteFailed(filepath.Join(f.fs.Root(), filepath.FromSlash(file.Path)), err)
			f.fail(err)
			return err
		}
		removed++
		f.notify(sse.ChangeNoteDeleted, id)
	}

	f.logger.Info("mirror reconciled",
		slog.Int("notes", len(notes)),
		slog.Int("removed", removed))

	return f.SyncAll(ctx)
}

// GenerateHTML writes the standalone viewer for notes to outputPath and
// fires generate_html. The page is written even if the hook then fails.
func (f *Folder) GenerateHTML(ctx context.Context, outputPath string, notes []models.Note) error {
	abs, err := filepath.Abs(outputPath)
	if err != nil {
		return writeFailed(outputPath, err)
	}

	sanitized := make([]models.Note, len(notes))
	for i, n := range notes {
		sanitized[i] = f.sanitize(n)
	}
	page, err := viewer.Standalone(sanitized, viewer.Options{})
	if err != nil {
		return writeFailed(abs, err)
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return writeFailed(abs, err)
	}
	out, err := storage.NewFS(filepath.Dir(abs))
	if err != nil {
		return writeFailed(abs, err)
	}
	if err := out.Write(filepath.Base(abs), page); err != nil {
		return writeFailed(abs, err)
	}

	indexPath := filepath.Join(f.fs.Root(), IndexFile)
	_, err = f.runHook(ctx, hook.GenerateHTML{OutputPath: abs, IndexPath: indexPath})
	return err
}

// RebuildIndex rescans notes/ and rewrites index.json from scratch.
func (f *Folder) RebuildIndex(_ context.Context) error {
	f.indexMu.Lock()
	defer f.indexMu.Unlock()

	entries, err := f.scanNotes()
	if err != nil {
		return writeFailed(filepath.Join(f.fs.Root(), NotesDir), err)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return writeFailed(IndexFile, err)
	}
	if err := f.fs.Write(IndexFile, append(data, '\n')); err != nil {
		return writeFailed(filepath.Join(f.fs.Root(), IndexFile), err)
	}
	return nil
}

// Index returns the entries currently derivable from notes/, in index order.
func (f *Folder) Index(_ context.Context) ([]models.NoteIndexEntry, error) {
	return f.scanNotes()
}

func (f *Folder) scanNotes() ([]models.NoteIndexEntry, error) {
	files, err := f.fs.List(NotesDir, ".json")
	if err != nil {
		return nil, err
	}

	entries := make([]models.NoteIndexEntry, 0, len(files))
	for _, file := range files {
		data, err := f.fs.Read(file.Path)
		if errors.Is(err, os.ErrNotExist) {
			// Deleted between List and Read.
			continue
		}
		if err != nil {
			return nil, err
		}

		var n models.Note
		if err := json.Unmarshal(data, &n); err != nil {
			f.logger.Warn("skipping unreadable mirror note",
				slog.String("path", file.Path),
				slog.String("error", err.Error()))
			continue
		}
		if n.ID == "" {
			n.ID = strings.TrimSuffix(path.Base(file.Path), ".json")
		}
		entries = append(entries, n.IndexEntry())
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].UpdatedAt.Equal(entries[j].UpdatedAt) {
			return entries[i].UpdatedAt.After(entries[j].UpdatedAt)
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

// runHook invokes the hook if one is configured, journals the outcome and
// turns failures into a HookFailed error. The status becomes error on failure.
func (f *Folder) runHook(ctx context.Context, ev hook.Event) (string, error) {
	if f.hook == nil {
		return "", nil
	}

	start := time.Now()
	out, err := f.hook.Run(ctx, ev)
	elapsed := time.Since(start)

	entry := journal.Entry{
		Event:    string(ev.Type()),
		Subject:  ev.Subject(),
		OK:       err == nil,
		Duration: elapsed,
	}
	if err == nil {
		if u, ok := hook.ParseURL(out); ok && ev.Type() == hook.EventImageUploaded {
			entry.URL = u
		}
		f.record(ctx, entry)
		return out, nil
	}

	serr := &Error{Kind: KindHookFailed, Err: err}
	var herr *hook.Error
	if errors.As(err, &herr) && herr.Detail != "" {
		serr.Detail = herr.Detail
	}
	entry.Detail = serr.Error()
	f.record(ctx, entry)
	f.fail(serr)
	return "", serr
}

func (f *Folder) record(ctx context.Context, e journal.Entry) {
	if f.recorder == nil {
		return
	}
	// The journal outlives a cancelled caller.
	if err := f.recorder.Record(context.WithoutCancel(ctx), e); err != nil {
		f.logger.Warn("failed to journal hook run",
			slog.String("event", e.Event),
			slog.String("error", err.Error()))
	}
}

func (f *Folder) fail(err error) {
	f.setStatus(Status{State: StateError, Detail: err.Error()})
}

func (f *Folder) notify(kind, subject string) {
	if f.notifier != nil {
		f.notifier.PublishChange(kind, subject)
	}
}
