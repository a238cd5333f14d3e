// Package hook runs the user-supplied publish program once per lifecycle
// event: the event goes in as JSON on stdin, the reply comes back on stdout.
package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a single hook invocation when none is configured.
const DefaultTimeout = 30 * time.Second

// maxDetail caps the stderr excerpt carried in an Error.
const maxDetail = 4 << 10

// ErrorKind classifies hook failures.
type ErrorKind string

const (
	KindExit      ErrorKind = "exit"
	KindTimeout   ErrorKind = "timeout"
	KindCancelled ErrorKind = "cancelled"
	KindSpawn     ErrorKind = "spawn"
	KindEncode    ErrorKind = "encode"
)

// Error is returned when the hook program could not complete successfully.
type Error struct {
	Kind     ErrorKind
	Event    EventType
	ExitCode int
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("hook %s: %s", e.Event, e.Kind)
	if e.Kind == KindExit {
		msg += fmt.Sprintf(" status %d", e.ExitCode)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Hook invokes one external program.
type Hook struct {
	script  string
	timeout time.Duration
	env     []string
	logger  *slog.Logger
}

// Option configures a Hook.
type Option func(*Hook)

// WithTimeout bounds every invocation. Zero or negative selects DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(h *Hook) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithEnv appends KEY=value pairs to the program's environment.
func WithEnv(kv ...string) Option {
	return func(h *Hook) { h.env = append(h.env, kv...) }
}

// WithLogger sets the logger used for invocation diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hook) { h.logger = l }
}

// New creates a hook for the program at script.
func New(script string, opts ...Option) *Hook {
	h := &Hook{
		script:  script,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Script returns the configured program path.
func (h *Hook) Script() string { return h.script }

// Verify reports whether the script resolves to an executable regular file.
// It is advisory only; Run does not call it.
func (h *Hook) Verify() bool {
	info, err := os.Stat(h.script)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}

// Run starts the program, writes ev to its stdin, closes stdin, and returns
// everything the program printed to stdout. A nonzero exit, a timeout, or
// cancellation of ctx yields an *Error; on timeout the process is killed.
//
// Concurrent calls spawn independent processes.
func (h *Hook) Run(ctx context.Context, ev Event) (string, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return "", &Error{Kind: KindEncode, Event: ev.Type(), Err: err}
	}

	runCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, h.script)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	if len(h.env) > 0 {
		cmd.Env = append(os.Environ(), h.env...)
	}

	start := time.Now()
	err = cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		herr := h.classify(ctx, runCtx, ev, err, stderr.String())
		h.logger.Warn("hook: run failed",
			slog.String("event", string(ev.Type())),
			slog.String("subject", ev.Subject()),
			slog.Duration("elapsed", elapsed),
			slog.String("error", herr.Error()))
		return stdout.String(), herr
	}

	h.logger.Debug("hook: run ok",
		slog.String("event", string(ev.Type())),
		slog.String("subject", ev.Subject()),
		slog.Duration("elapsed", elapsed),
		slog.Int("stdout_bytes", stdout.Len()))
	return stdout.String(), nil
}

func (h *Hook) classify(parent, runCtx context.Context, ev Event, err error, stderr string) *Error {
	detail := strings.TrimSpace(stderr)
	if len(detail) > maxDetail {
		detail = detail[:maxDetail]
	}
	switch {
	case parent.Err() != nil:
		return &Error{Kind: KindCancelled, Event: ev.Type(), Detail: detail, Err: parent.Err()}
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return &Error{
			Kind:   KindTimeout,
			Event:  ev.Type(),
			Detail: fmt.Sprintf("no exit after %s", h.timeout),
			Err:    context.DeadlineExceeded,
		}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &Error{Kind: KindExit, Event: ev.Type(), ExitCode: exitErr.ExitCode(), Detail: detail, Err: err}
	}
	return &Error{Kind: KindSpawn, Event: ev.Type(), Detail: detail, Err: err}
}

// ParseURL extracts a public URL override from hook output: the first
// non-blank line, trimmed, when it is an absolute URL with a host.
func ParseURL(output string) (string, bool) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		u, err := url.Parse(line)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return "", false
		}
		return line, true
	}
	return "", false
}
