package remotefs

import (
	"errors"
	"fmt"
	"io/fs"
	nethttp "net/http"

	"github.com/panelfs/panelfs/internal/api"
)

// Kind classifies a bridge failure.
type Kind int

const (
	KindUnauthenticated Kind = iota + 1
	KindForbidden
	KindNotFound
	KindBusy
	KindServerUnavailable
	KindInvalidState
	KindIsADirectory
	KindAlreadyExists
)

var kindNames = map[Kind]string{
	KindUnauthenticated:   "unauthenticated",
	KindForbidden:         "forbidden",
	KindNotFound:          "not found",
	KindBusy:              "busy",
	KindServerUnavailable: "server unavailable",
	KindInvalidState:      "invalid state",
	KindIsADirectory:      "is a directory",
	KindAlreadyExists:     "already exists",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// sentinel maps a kind onto the io/fs error front ends test with errors.Is.
func (k Kind) sentinel() error {
	switch k {
	case KindUnauthenticated, KindForbidden:
		return fs.ErrPermission
	case KindNotFound:
		return fs.ErrNotExist
	case KindAlreadyExists:
		return fs.ErrExist
	case KindIsADirectory, KindInvalidState:
		return fs.ErrInvalid
	}
	return nil
}

// Error is returned by every FS operation. Message is safe to show to a
// user; Err carries the underlying cause for logs.
type Error struct {
	Kind    Kind
	Op      string
	Path    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches other *Error values by Kind and the io/fs sentinel for the kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return t.Kind == e.Kind
	}
	if s := e.Kind.sentinel(); s != nil {
		return target == s
	}
	return false
}

// KindOf returns the kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Sentinel returns the io/fs error matching err's kind, or nil.
func Sentinel(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind.sentinel()
	}
	return nil
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

// IsNotEmpty reports whether err is the refusal to delete a non-empty
// directory without Recursive.
func IsNotEmpty(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindInvalidState && e.Message == msgDirectoryNotEmpty
}

func newError(k Kind, op, path, msg string) *Error {
	return &Error{Kind: k, Op: op, Path: path, Message: msg}
}

// Messages surfaced for mapped statuses.
const (
	msgNotConnected      = "not connected"
	msgRateLimited       = "rate limited"
	msgServerError       = "the panel reported an internal error"
	msgDirectoryNotEmpty = "Directory not empty"
)

// mapStatus converts a transport error into an *Error. Status codes map
// uniformly for every call; anything without a status is a transport
// failure.
func mapStatus(op, path string, err error) *Error {
	se, ok := api.AsStatusError(err)
	if !ok {
		return &Error{Kind: KindServerUnavailable, Op: op, Path: path, Message: "panel unreachable", Err: err}
	}

	e := &Error{Op: op, Path: path, Err: err}
	switch se.StatusCode {
	case nethttp.StatusUnauthorized:
		e.Kind = KindUnauthenticated
		e.Message = "API key rejected"
	case nethttp.StatusForbidden:
		e.Kind = KindForbidden
		e.Message = "permission denied"
	case nethttp.StatusNotFound:
		e.Kind = KindNotFound
		e.Message = "no such file or directory"
	case nethttp.StatusUnprocessableEntity:
		e.Kind = KindBusy
		e.Message = se.Detail
		if e.Message == "" {
			e.Message = se.Status
		}
	case nethttp.StatusTooManyRequests:
		e.Kind = KindBusy
		e.Message = msgRateLimited
	case nethttp.StatusInternalServerError:
		e.Kind = KindServerUnavailable
		e.Message = msgServerError
	default:
		e.Kind = KindServerUnavailable
		e.Message = se.Status
	}
	return e
}
