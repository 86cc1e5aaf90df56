package geofs

import (
	"errors"
)

// Kind classifies every failure the volume can report.
type Kind int

const (
	KindOK Kind = iota
	KindIO
	KindNoMem
	KindNotFound
	KindExists
	KindInvalid
	KindCorrupt
	KindFull
)

// String returns the fixed human-readable message for k.
func (k Kind) String() string {
	switch k {
	case KindOK:
		return "Success"
	case KindIO:
		return "I/O error"
	case KindNoMem:
		return "Out of memory"
	case KindNotFound:
		return "Not found"
	case KindExists:
		return "Already exists"
	case KindInvalid:
		return "Invalid argument"
	case KindCorrupt:
		return "Data corruption"
	case KindFull:
		return "Volume full"
	default:
		return "Unknown error"
	}
}

// Error is a volume failure. Op and Path say where it happened; Err, when set,
// is the underlying cause (typically a wrapped I/O error).
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// works regardless of Op and Path.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinel errors for package geofs, one per kind.
// These errors can be checked with errors.Is() for specific error handling.
var (
	ErrIO       = &Error{Kind: KindIO}
	ErrNoMem    = &Error{Kind: KindNoMem}
	ErrNotFound = &Error{Kind: KindNotFound}
	ErrExists   = &Error{Kind: KindExists}
	ErrInvalid  = &Error{Kind: KindInvalid}
	ErrCorrupt  = &Error{Kind: KindCorrupt}
	ErrFull     = &Error{Kind: KindFull}
)

// KindOf classifies err. nil is KindOK and anything that is not a volume
// error is treated as I/O.
func KindOf(err error) Kind {
	if err == nil {
		return KindOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindIO
}

// StrError returns the user-facing message for err's kind.
func StrError(err error) string {
	return KindOf(err).String()
}

func newError(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}
