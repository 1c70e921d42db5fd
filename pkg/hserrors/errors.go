// Package hserrors defines the Hyperspace error code enum and the tagged
// error type used throughout the server. Every fallible operation returns a
// *Error rather than a bare error, so the transactional retry loop and the
// wire-protocol response encoder can both dispatch on Kind() instead of
// maintaining parallel classification tables.
//
// This is a leaf package with no internal dependencies, importable by every
// other Hyperspace package without causing import cycles.
package hserrors

import "fmt"

// Code identifies the specific condition an operation failed with.
type Code int

const (
	// OK is never carried by an *Error; it exists so Code zero values are
	// distinguishable from "no code assigned".
	OK Code = iota

	// ExpiredSession indicates the session id in a request no longer names
	// a live session.
	ExpiredSession

	// FileNotFound indicates the named node does not exist.
	FileNotFound

	// FileExists indicates the named node already exists.
	FileExists

	// BadPathname indicates a malformed or non-absolute path.
	BadPathname

	// FileOpen indicates an operation that requires no open handles (e.g.
	// unlink of a non-ephemeral node held open under exclusive semantics)
	// found one or more still open.
	FileOpen

	// LockConflict indicates an open carrying a lock flag found an existing
	// incompatible holder (open never waits for a lock). A try-lock through
	// lock reports the same situation as the busy outcome instead.
	LockConflict

	// ModeRestriction indicates the handle's open flags do not permit the
	// requested operation.
	ModeRestriction

	// InvalidHandle indicates the handle id in a request does not name a
	// handle open under the calling session.
	InvalidHandle

	// AttrNotFound indicates the named extended attribute does not exist.
	AttrNotFound

	// AlreadyLocked indicates the handle already holds a lock on its node,
	// in any mode.
	AlreadyLocked

	// NotLocked indicates a release was requested for a lock the handle
	// does not hold.
	NotLocked

	// RequestCancelled indicates a blocking lock request was cancelled
	// before it could be granted.
	RequestCancelled

	// ProtocolError indicates a malformed message or an unknown command
	// code.
	ProtocolError

	// StoreDeadlock indicates the transactional store detected a write
	// conflict. Internal to the retry loop; only escapes to a caller once
	// the bounded number of retries is exhausted.
	StoreDeadlock

	// StoreError indicates an unrecoverable failure in the transactional
	// store (corruption, I/O failure, unlockable base directory).
	StoreError
)

// Kind classifies a Code into one of the four propagation classes described
// in the error handling design: precondition, session-lifetime, transient
// store, or fatal infrastructure.
type Kind int

const (
	// KindPrecondition errors are part of the normal API contract: return
	// to the caller verbatim, never retried.
	KindPrecondition Kind = iota

	// KindSessionLifetime errors mean the session is gone; handles and
	// locks associated with it are gone too.
	KindSessionLifetime

	// KindTransientStore errors are retried internally with randomised
	// backoff and never observed by a caller unless retries are exhausted.
	KindTransientStore

	// KindFatalInfrastructure errors are logged and terminate the process;
	// restart and recovery are the operator's responsibility.
	KindFatalInfrastructure
)

func (k Kind) String() string {
	switch k {
	case KindPrecondition:
		return "precondition"
	case KindSessionLifetime:
		return "session-lifetime"
	case KindTransientStore:
		return "transient-store"
	case KindFatalInfrastructure:
		return "fatal-infrastructure"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Kind returns the propagation class of a Code.
func (c Code) Kind() Kind {
	switch c {
	case ExpiredSession:
		return KindSessionLifetime
	case StoreDeadlock:
		return KindTransientStore
	case StoreError:
		return KindFatalInfrastructure
	default:
		return KindPrecondition
	}
}

func (c Code) String() string {
	switch c {
	case OK:
		return "ok"
	case ExpiredSession:
		return "expired-session"
	case FileNotFound:
		return "file-not-found"
	case FileExists:
		return "file-exists"
	case BadPathname:
		return "bad-pathname"
	case FileOpen:
		return "file-open"
	case LockConflict:
		return "lock-conflict"
	case ModeRestriction:
		return "mode-restriction"
	case InvalidHandle:
		return "invalid-handle"
	case AttrNotFound:
		return "attr-not-found"
	case AlreadyLocked:
		return "already-locked"
	case NotLocked:
		return "not-locked"
	case RequestCancelled:
		return "request-cancelled"
	case ProtocolError:
		return "protocol-error"
	case StoreDeadlock:
		return "store-deadlock"
	case StoreError:
		return "store-error"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// Error is the tagged error type returned by every Hyperspace operation that
// can fail. Path and Detail are optional context carried for logging; only
// Code is part of the wire contract.
type Error struct {
	Code   Code
	Detail string
	Path   string
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (path: %s)", e.Code, e.Detail, e.Path)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Detail)
	}
	return e.Code.String()
}

// Kind reports the propagation class of the error's code.
func (e *Error) Kind() Kind {
	return e.Code.Kind()
}

// Is allows errors.Is(err, hserrors.New(Code)) to match on code alone,
// ignoring Detail and Path.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates an *Error carrying code with no extra context.
func New(code Code) *Error {
	return &Error{Code: code}
}

// Newf creates an *Error carrying code and a formatted detail message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// WithPath creates an *Error carrying code, a detail message, and the path
// the error pertains to.
func WithPath(code Code, path, detail string) *Error {
	return &Error{Code: code, Path: path, Detail: detail}
}

// NewExpiredSessionError creates an ExpiredSession error.
func NewExpiredSessionError(sessionID uint64) *Error {
	return Newf(ExpiredSession, "session %d is not live", sessionID)
}

// NewFileNotFoundError creates a FileNotFound error.
func NewFileNotFoundError(path string) *Error {
	return WithPath(FileNotFound, path, "node not found")
}

// NewFileExistsError creates a FileExists error.
func NewFileExistsError(path string) *Error {
	return WithPath(FileExists, path, "node already exists")
}

// NewBadPathnameError creates a BadPathname error.
func NewBadPathnameError(path string) *Error {
	return WithPath(BadPathname, path, "malformed pathname")
}

// NewFileOpenError creates a FileOpen error.
func NewFileOpenError(path string) *Error {
	return WithPath(FileOpen, path, "node has open handles")
}

// NewLockConflictError creates a LockConflict error.
func NewLockConflictError(path string) *Error {
	return WithPath(LockConflict, path, "incompatible lock is held")
}

// NewModeRestrictionError creates a ModeRestriction error.
func NewModeRestrictionError(detail string) *Error {
	return Newf(ModeRestriction, "%s", detail)
}

// NewInvalidHandleError creates an InvalidHandle error.
func NewInvalidHandleError(handleID uint64) *Error {
	return Newf(InvalidHandle, "handle %d is not open under this session", handleID)
}

// NewAttrNotFoundError creates an AttrNotFound error.
func NewAttrNotFoundError(path, name string) *Error {
	return WithPath(AttrNotFound, path, fmt.Sprintf("attribute %q not found", name))
}

// NewAlreadyLockedError creates an AlreadyLocked error.
func NewAlreadyLockedError(path string) *Error {
	return WithPath(AlreadyLocked, path, "handle already holds this lock mode")
}

// NewNotLockedError creates a NotLocked error.
func NewNotLockedError(path string) *Error {
	return WithPath(NotLocked, path, "handle does not hold a lock")
}

// NewRequestCancelledError creates a RequestCancelled error.
func NewRequestCancelledError() *Error {
	return New(RequestCancelled)
}

// NewProtocolError creates a ProtocolError error.
func NewProtocolError(detail string) *Error {
	return Newf(ProtocolError, "%s", detail)
}

// NewStoreDeadlockError creates a StoreDeadlock error.
func NewStoreDeadlockError() *Error {
	return New(StoreDeadlock)
}

// NewStoreError creates a fatal StoreError.
func NewStoreError(detail string) *Error {
	return Newf(StoreError, "%s", detail)
}

// As extracts an *Error from err, if any wraps or is one.
func As(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	if he, ok := err.(*Error); ok {
		return he, true
	}
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return As(u.Unwrap())
	}
	return nil, false
}

// CodeOf returns the Code of err if it is (or wraps) an *Error, and
// StoreError otherwise — any error not deliberately tagged is treated as a
// fatal infrastructure failure rather than silently swallowed.
func CodeOf(err error) Code {
	if he, ok := As(err); ok {
		return he.Code
	}
	return StoreError
}

// IsCode reports whether err is (or wraps) an *Error with the given code.
func IsCode(err error, code Code) bool {
	he, ok := As(err)
	return ok && he.Code == code
}
