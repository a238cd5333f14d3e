// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/quire/internal/journal"
	"github.com/starford/quire/internal/mcpserver"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/notestore"
	"github.com/starford/quire/internal/preview"
	"github.com/starford/quire/internal/secrets"
	"github.com/starford/quire/internal/sse"
	"github.com/starford/quire/internal/storage"
	"github.com/starford/quire/internal/syncer"
	"github.com/starford/quire/internal/viewer"
	"github.com/starford/quire/internal/watch"
)

// components are the collaborators every command shares.
type components struct {
	logger   *slog.Logger
	notes    *notestore.Store
	journal  *journal.DB
	broker   *sse.Broker
	provider syncer.Provider
}

func (c *components) Close() {
	if c.broker != nil {
		c.broker.Close()
	}
	if c.journal != nil {
		if err := c.journal.Close(); err != nil {
			c.logger.Warn("close journal", slog.String("error", err.Error()))
		}
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// build wires the note store, journal and sync provider. withEvents adds the
// SSE broker as the provider's change notifier.
func (a *application) build(logger *slog.Logger, withEvents bool) (*components, error) {
	cfg := a.config
	c := &components{logger: logger}

	if err := os.MkdirAll(cfg.Notes.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create notes dir: %w", err)
	}
	fs, err := storage.NewFS(cfg.Notes.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	c.notes = notestore.New(fs, logger)

	if cfg.Journal.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Journal.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
		db, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("init journal: %w", err)
		}
		c.journal = db
	}

	syncOpts := []syncer.FolderOption{syncer.WithLogger(logger)}
	if c.journal != nil {
		syncOpts = append(syncOpts, syncer.WithRecorder(c.journal))
	}
	if withEvents {
		c.broker = sse.NewBroker(500 * time.Millisecond)
		syncOpts = append(syncOpts, syncer.WithNotifier(c.broker))
	}

	provider, err := syncer.New(cfg.Sync, syncOpts...)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init sync provider: %w", err)
	}
	c.provider = provider
	return c, nil
}

// reconcile pushes every local note into the mirror when the provider
// supports it, and falls back to SyncAll otherwise.
func (c *components) reconcile(ctx context.Context) (int, error) {
	folder, ok := c.provider.(*syncer.Folder)
	if !ok {
		return 0, c.provider.SyncAll(ctx)
	}
	notes, err := c.notes.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(notes), folder.Reconcile(ctx, notes)
}

// Run starts the long-running mode: an initial full sync, the note watcher,
// and the local preview server with live reload.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.newLogger()

	logger.Info("Configuration loaded",
		slog.String("notes_path", cfg.Notes.Path),
		slog.String("sync_provider", cfg.Sync.Provider),
		slog.String("sync_folder", cfg.Sync.Folder),
		slog.Bool("filter_secrets", cfg.Sync.FilterSecrets),
		slog.String("preview_address", cfg.App.Preview.Address()),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c, err := app.build(logger, true)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if n, err := c.reconcile(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	} else {
		logger.Info("initial sync done", slog.Int("notes", n))
	}

	g, gCtx := errgroup.WithContext(ctx)

	w := watch.New(cfg.Notes.Path, c.notes, c.provider, watch.WithLogger(logger))
	g.Go(func() error {
		return w.Run(gCtx)
	})

	if folder, ok := c.provider.(*syncer.Folder); ok {
		mirror, err := storage.NewFS(folder.Root())
		if err != nil {
			return fmt.Errorf("open mirror: %w", err)
		}
		srv := preview.New(cfg.App.Preview.Address(), mirror,
			preview.WithEvents(c.broker),
			preview.WithLogger(logger))
		g.Go(func() error {
			return srv.Serve(gCtx)
		})
	} else {
		logger.Info("sync is disabled; preview server not started")
	}

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
			cancel()
		case <-gCtx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Stopped")
	return nil
}

// Sync reconciles every note into the mirror once and fires sync_all.
func Sync(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.newLogger()

	c, err := app.build(logger, false)
	if err != nil {
		return err
	}
	defer c.Close()

	if !c.provider.Enabled() {
		return errors.New("sync is disabled; set sync.provider to folder")
	}
	n, err := c.reconcile(ctx)
	if err != nil {
		return err
	}
	logger.Info("sync complete", slog.Int("notes", n), slog.String("status", string(c.provider.Status().State)))
	return nil
}

// Export writes the standalone HTML viewer for all notes to out. With a
// folder provider the generate_html hook fires afterwards.
func Export(ctx context.Context, out string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.newLogger()

	c, err := app.build(logger, false)
	if err != nil {
		return err
	}
	defer c.Close()

	notes, err := c.notes.List(ctx)
	if err != nil {
		return err
	}

	if folder, ok := c.provider.(*syncer.Folder); ok {
		if err := folder.GenerateHTML(ctx, out, notes); err != nil {
			return err
		}
	} else if err := writeStandalone(out, notes, app.config.Sync.FilterSecrets); err != nil {
		return err
	}

	logger.Info("exported viewer", slog.String("path", out), slog.Int("notes", len(notes)))
	return nil
}

func writeStandalone(out string, notes []models.Note, filter bool) error {
	if filter {
		for i := range notes {
			notes[i].Title = secrets.Filter(notes[i].Title)
			notes[i].Content = secrets.Filter(notes[i].Content)
		}
	}
	page, err := viewer.Standalone(notes, viewer.Options{})
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(out)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	fs, err := storage.NewFS(filepath.Dir(abs))
	if err != nil {
		return err
	}
	return fs.Write(filepath.Base(abs), page)
}

// Detect prints the secret findings for the file at path and returns them.
func Detect(path string, w io.Writer) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	found := secrets.Detect(string(data))
	if len(found) == 0 {
		fmt.Fprintln(w, "no secrets found")
		return nil, nil
	}
	for _, name := range found {
		fmt.Fprintln(w, name)
	}
	return found, nil
}

// History prints the most recent publish hook runs.
func History(ctx context.Context, w io.Writer, limit int, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	if app.config.Journal.Path == "" {
		return errors.New("journal is disabled; set journal.path")
	}
	db, err := journal.Open(app.config.Journal.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := db.Recent(ctx, limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tEVENT\tSUBJECT\tRESULT\tDURATION\tDETAIL")
	for _, e := range entries {
		result := "ok"
		if !e.OK {
			result = "failed"
		}
		detail := e.Detail
		if e.URL != "" {
			detail = e.URL
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Local().Format(time.DateTime), e.Event, e.Subject, result,
			e.Duration.Round(time.Millisecond), detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	failed, err := db.Failures(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "\n%d failed run(s) in the last 24h\n", failed)
	return err
}

// UpdateSettings applies s to the sync section and persists it immediately.
func UpdateSettings(s Settings, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	if app.configPath == "" {
		return errors.New("config path is required to persist settings")
	}
	return ApplySettings(app.configPath, app.config, s)
}

// ServeMCP runs the MCP server on stdin/stdout until the client disconnects.
func ServeMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger := app.newLogger()

	c, err := app.build(logger, false)
	if err != nil {
		return err
	}
	defer c.Close()

	var history mcpserver.History
	if c.journal != nil {
		history = c.journal
	}
	return mcpserver.New(c.notes, c.provider, history).ServeStdio()
}
