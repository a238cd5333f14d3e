// Package watch follows the note directory and pushes every change into a
// sync provider.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/notestore"
	"github.com/starford/quire/internal/syncer"
)

// DefaultDebounce is how long a note must be quiet before it is synced.
const DefaultDebounce = 150 * time.Millisecond

// Event kinds passed to EventCallback.
const (
	KindSynced  = "synced"
	KindDeleted = "deleted"
)

// NoteSource loads a note by id.
type NoteSource interface {
	Get(ctx context.Context, id string) (models.Note, error)
}

// EventCallback is called after a watcher-driven sync operation. err is the
// provider's error, if any.
type EventCallback func(kind, id string, err error)

// Watcher ties a note directory to a provider.
type Watcher struct {
	dir      string
	notes    NoteSource
	provider syncer.Provider
	logger   *slog.Logger
	debounce time.Duration
	cb       EventCallback
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithCallback sets the callback invoked after every sync operation.
func WithCallback(cb EventCallback) Option {
	return func(w *Watcher) { w.cb = cb }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a watcher for the notes stored in dir.
func New(dir string, notes NoteSource, provider syncer.Provider, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		notes:    notes,
		provider: provider,
		logger:   slog.Default(),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run processes file events until ctx is cancelled. Bursts of events for
// one note collapse into a single operation once the note has been quiet for
// the debounce interval; the file's presence at that point decides between
// SyncNote and DeleteNote. Renames therefore become a delete of the old id
// and a sync of the new one.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return err
	}
	w.logger.Info("watcher: started", slog.String("dir", w.dir))

	due := make(chan string)
	timers := make(map[string]*time.Timer)
	var wg sync.WaitGroup

	defer func() {
		for _, t := range timers {
			t.Stop()
		}
		wg.Wait()
		w.logger.Info("watcher: stopped")
	}()

	schedule := func(id string) {
		if t, ok := timers[id]; ok {
			t.Reset(w.debounce)
			return
		}
		timers[id] = time.AfterFunc(w.debounce, func() {
			select {
			case due <- id:
			case <-ctx.Done():
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case id := <-due:
			delete(timers, id)
			wg.Add(1)
			go func() {
				defer wg.Done()
				w.apply(ctx, id)
			}()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if strings.HasPrefix(name, ".") {
				continue
			}
			id, ok := notestore.IDFromPath(name)
			if !ok {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			schedule(id)

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (w *Watcher) apply(ctx context.Context, id string) {
	if _, err := os.Stat(filepath.Join(w.dir, notestore.FileName(id))); errors.Is(err, os.ErrNotExist) {
		w.done(KindDeleted, id, w.provider.DeleteNote(ctx, id))
		return
	}

	note, err := w.notes.Get(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		w.done(KindDeleted, id, w.provider.DeleteNote(ctx, id))
		return
	}
	if err != nil {
		w.logger.Warn("watcher: load failed", slog.String("id", id), slog.String("error", err.Error()))
		return
	}
	w.done(KindSynced, id, w.provider.SyncNote(ctx, note))
}

func (w *Watcher) done(kind, id string, err error) {
	if err != nil {
		w.logger.Warn("watcher: sync failed",
			slog.String("op", kind),
			slog.String("id", id),
			slog.String("error", err.Error()))
	} else {
		w.logger.Debug("watcher: synced", slog.String("op", kind), slog.String("id", id))
	}
	if w.cb != nil {
		w.cb(kind, id, err)
	}
}
