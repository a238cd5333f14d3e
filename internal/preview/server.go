// Package preview serves the sync mirror folder on localhost so the
// generated viewer can be tried out before anything is published.
package preview

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/quire/internal/storage"
	"github.com/starford/quire/internal/viewer"
)

// EventsPath is where the live-reload stream is mounted when configured.
const EventsPath = "/_events"

// State is the lifecycle state of a Server.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	}
	return "unknown"
}

// ErrRunning is returned by Start when the server is not stopped.
var ErrRunning = errors.New("preview: server already running")

// Option configures a Server.
type Option func(*Server)

// WithEvents mounts h at EventsPath.
func WithEvents(h http.Handler) Option {
	return func(s *Server) { s.events = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTitle sets the viewer page title.
func WithTitle(title string) Option {
	return func(s *Server) { s.title = title }
}

// Server is a GET-only HTTP/1.1 server over a mirror folder. Every response
// closes the connection.
type Server struct {
	addr   string
	mirror storage.Provider
	events http.Handler
	logger *slog.Logger
	title  string

	mu    sync.Mutex
	state State
	ln    net.Listener
	srv   *http.Server
	done  chan struct{}
}

// New creates a stopped server that will listen on addr.
func New(addr string, mirror storage.Provider, opts ...Option) *Server {
	s := &Server{
		addr:   addr,
		mirror: mirror,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Start binds the listening socket and begins accepting connections in the
// background. A bind failure returns the server to stopped and is not
// retried. Cancelling ctx stops the server.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateStopped {
		s.mu.Unlock()
		return ErrRunning
	}
	s.state = StateStarting
	s.mu.Unlock()

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
		return fmt.Errorf("preview: listen %s: %w", s.addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.SetKeepAlivesEnabled(false)
	done := make(chan struct{})

	s.mu.Lock()
	s.ln, s.srv, s.done = ln, srv, done
	s.state = StateRunning
	s.mu.Unlock()

	s.logger.Info("preview server listening", slog.String("address", ln.Addr().String()))

	go func() {
		defer close(done)
		if err := srv.Serve(corsListener{ln}); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("preview server stopped", slog.String("error", err.Error()))
		}
		s.mu.Lock()
		if s.srv == srv {
			s.state, s.ln, s.srv = StateStopped, nil, nil
		}
		s.mu.Unlock()
	}()

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-done:
		}
	}()

	return nil
}

// Stop closes the listener and every open connection at once. In-flight
// requests are cut off.
func (s *Server) Stop() {
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.mu.Unlock()
	if srv == nil {
		return
	}

	_ = srv.Close()
	<-done
	s.logger.Info("preview server stopped")
}

// Serve starts the server and blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	<-done
	return nil
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(commonHeaders)
	r.Use(middleware.Recoverer)

	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Allow", http.MethodGet)
		writeStatus(w, http.StatusMethodNotAllowed)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusNotFound)
	})

	r.Get("/", s.serveViewer)
	r.Get("/index.html", s.serveViewer)
	if s.events != nil {
		r.Get(EventsPath, s.events.ServeHTTP)
	}
	r.Get("/*", s.serveFile)

	return r
}

func commonHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Connection", "close")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) serveViewer(w http.ResponseWriter, _ *http.Request) {
	opts := viewer.Options{Title: s.title}
	if s.events != nil {
		opts.EventsPath = EventsPath
	}
	page, err := viewer.Live(opts)
	if err != nil {
		s.logger.Error("render viewer", slog.String("error", err.Error()))
		writeStatus(w, http.StatusInternalServerError)
		return
	}
	writeBody(w, http.StatusOK, "text/html; charset=utf-8", page)
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(r.URL.Path, "/")
	if !cleanPath(rel) {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	ok, err := s.mirror.Exists(rel)
	switch {
	case errors.Is(err, storage.ErrOutsideRoot):
		writeStatus(w, http.StatusBadRequest)
		return
	case err != nil:
		s.logger.Warn("preview: stat failed", slog.String("path", rel), slog.String("error", err.Error()))
		writeStatus(w, http.StatusInternalServerError)
		return
	case !ok:
		writeStatus(w, http.StatusNotFound)
		return
	}

	data, err := s.mirror.Read(rel)
	if errors.Is(err, fs.ErrNotExist) {
		writeStatus(w, http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Warn("preview: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		writeStatus(w, http.StatusInternalServerError)
		return
	}
	writeBody(w, http.StatusOK, ContentType(rel), data)
}

// cleanPath rejects empty paths, NUL bytes and any ".." segment.
func cleanPath(rel string) bool {
	if rel == "" || strings.ContainsRune(rel, 0) || strings.Contains(rel, `\`) {
		return false
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." {
			return false
		}
	}
	return true
}

var contentTypes = map[string]string{
	".html":  "text/html; charset=utf-8",
	".htm":   "text/html; charset=utf-8",
	".css":   "text/css; charset=utf-8",
	".js":    "text/javascript; charset=utf-8",
	".mjs":   "text/javascript; charset=utf-8",
	".json":  "application/json",
	".map":   "application/json",
	".txt":   "text/plain; charset=utf-8",
	".md":    "text/markdown; charset=utf-8",
	".xml":   "application/xml",
	".svg":   "image/svg+xml",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".webp":  "image/webp",
	".avif":  "image/avif",
	".bmp":   "image/bmp",
	".ico":   "image/x-icon",
	".pdf":   "application/pdf",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".otf":   "font/otf",
	".wasm":  "application/wasm",
}

// ContentType maps a file name to its Content-Type by extension.
// Unknown extensions are served as application/octet-stream.
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

func writeBody(w http.ResponseWriter, code int, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

func writeStatus(w http.ResponseWriter, code int) {
	writeBody(w, code, "text/plain; charset=utf-8", []byte(strconv.Itoa(code)+" "+http.StatusText(code)+"\n"))
}
