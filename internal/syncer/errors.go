package syncer

import (
	"errors"
	"fmt"
)

// Kind classifies a sync failure.
type Kind string

const (
	KindWriteFailed         Kind = "write_failed"
	KindDeleteFailed        Kind = "delete_failed"
	KindHookFailed          Kind = "hook_failed"
	KindFolderNotConfigured Kind = "folder_not_configured"
	KindFolderNotAccessible Kind = "folder_not_accessible"
)

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrWriteFailed         = errors.New("sync: write failed")
	ErrDeleteFailed        = errors.New("sync: delete failed")
	ErrHookFailed          = errors.New("sync: publish hook failed")
	ErrFolderNotConfigured = errors.New("sync: folder not configured")
	ErrFolderNotAccessible = errors.New("sync: folder not accessible")
)

func (k Kind) sentinel() error {
	switch k {
	case KindWriteFailed:
		return ErrWriteFailed
	case KindDeleteFailed:
		return ErrDeleteFailed
	case KindHookFailed:
		return ErrHookFailed
	case KindFolderNotConfigured:
		return ErrFolderNotConfigured
	case KindFolderNotAccessible:
		return ErrFolderNotAccessible
	}
	return nil
}

// Error is returned by sync operations. Path is set for file system
// failures, Detail carries the hook's stderr for hook failures.
type Error struct {
	Kind   Kind
	Path   string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if s := e.Kind.sentinel(); s != nil {
		msg = s.Error()
	}
	if e.Path != "" {
		msg += fmt.Sprintf(" (%s)", e.Path)
	}
	switch {
	case e.Detail != "":
		msg += ": " + e.Detail
	case e.Err != nil:
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func writeFailed(path string, err error) error {
	return &Error{Kind: KindWriteFailed, Path: path, Err: err}
}

func deleteFailed(path string, err error) error {
	return &Error{Kind: KindDeleteFailed, Path: path, Err: err}
}
