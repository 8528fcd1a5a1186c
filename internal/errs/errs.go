// Package errs holds the error taxonomy shared by the job engine. Every error
// that ends a job carries a Kind that callers can switch on and a reason
// that is safe to show to users.
package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindUnknown             Kind = "UNKNOWN"
	KindPrecondition        Kind = "PRECONDITION"
	KindNotFound            Kind = "NOT_FOUND"
	KindDuplicate           Kind = "DUPLICATE"
	KindResolution          Kind = "RESOLUTION"
	KindServerConfiguration Kind = "SERVER_CONFIGURATION"
	KindProcess             Kind = "PROCESS"
	KindAdmission           Kind = "ADMISSION"
)

type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches two *Error values of the same kind and reason, which lets the
// sentinels below be compared with errors.Is after wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Reason == e.Reason
}

var (
	ErrNotFound       = &Error{Kind: KindNotFound, Reason: "not found"}
	ErrDuplicateJob   = &Error{Kind: KindDuplicate, Reason: "job already exists"}
	ErrTooManyJobs    = &Error{Kind: KindAdmission, Reason: "too many running jobs"}
	ErrNoClusterFound = &Error{Kind: KindResolution, Reason: "no cluster found matching criteria"}
	ErrNoCommandFound = &Error{Kind: KindResolution, Reason: "no command found matching criteria"}
	ErrNotConfigured  = &Error{Kind: KindPrecondition, Reason: "configure was not called, unable to launch"}
	ErrJobFinished    = &Error{Kind: KindPrecondition, Reason: "job already finished"}
)

func Precondition(format string, args ...any) error {
	return &Error{Kind: KindPrecondition, Reason: fmt.Sprintf(format, args...)}
}

func ServerConfiguration(format string, args ...any) error {
	return &Error{Kind: KindServerConfiguration, Reason: fmt.Sprintf(format, args...)}
}

func Process(err error, format string, args ...any) error {
	return &Error{Kind: KindProcess, Reason: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Reason: fmt.Sprintf(format, args...), Err: ErrNotFound}
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
