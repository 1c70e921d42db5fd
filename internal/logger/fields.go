package logger

import "log/slog"

// Standard field keys for structured logging across Hyperspace's server and
// client. Use these keys consistently so log lines stay queryable across
// dispatch, the lock manager, and the session manager.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Request Dispatch
	// ========================================================================
	KeyCommand     = "command"      // Dispatched command name: open, lock, mkdir, etc.
	KeyMessageID   = "message_id"   // Wire protocol message id
	KeyThreadGroup = "thread_group" // Thread group id serializing a session's requests

	// ========================================================================
	// Session & Namespace
	// ========================================================================
	KeySessionID = "session_id" // Hyperspace session identifier
	KeyHandle    = "handle"     // Open handle identifier
	KeyNodePath  = "node_path"  // Absolute namespace path

	// ========================================================================
	// Locking
	// ========================================================================
	KeyLockMode       = "lock_mode"       // shared or exclusive
	KeyLockGeneration = "lock_generation" // Lock generation counter

	// ========================================================================
	// Events
	// ========================================================================
	KeyEventID   = "event_id"
	KeyEventKind = "event_kind"

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyClientIP   = "client_ip"
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrorCode  = "error_code"
	KeyAttempt    = "attempt"     // Store transaction retry attempt number
	KeyMaxRetries = "max_retries" // Maximum store transaction retry attempts
)

// TraceID returns a slog.Attr for an OpenTelemetry trace ID.
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for an OpenTelemetry span ID.
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Command returns a slog.Attr for the dispatched command name.
func Command(name string) slog.Attr {
	return slog.String(KeyCommand, name)
}

// MessageID returns a slog.Attr for a wire protocol message id.
func MessageID(id uint32) slog.Attr {
	return slog.Uint64(KeyMessageID, uint64(id))
}

// ThreadGroup returns a slog.Attr for a request's thread group id.
func ThreadGroup(id uint32) slog.Attr {
	return slog.Uint64(KeyThreadGroup, uint64(id))
}

// SessionID returns a slog.Attr for a session identifier.
func SessionID(id uint64) slog.Attr {
	return slog.Uint64(KeySessionID, id)
}

// Handle returns a slog.Attr for an open handle identifier.
func Handle(id uint64) slog.Attr {
	return slog.Uint64(KeyHandle, id)
}

// NodePath returns a slog.Attr for an absolute namespace path.
func NodePath(path string) slog.Attr {
	return slog.String(KeyNodePath, path)
}

// LockMode returns a slog.Attr for a lock acquisition mode.
func LockMode(mode string) slog.Attr {
	return slog.String(KeyLockMode, mode)
}

// LockGeneration returns a slog.Attr for a node's lock generation counter.
func LockGeneration(gen uint64) slog.Attr {
	return slog.Uint64(KeyLockGeneration, gen)
}

// EventID returns a slog.Attr for an event identifier.
func EventID(id uint64) slog.Attr {
	return slog.Uint64(KeyEventID, id)
}

// EventKind returns a slog.Attr for an event kind.
func EventKind(kind string) slog.Attr {
	return slog.String(KeyEventKind, kind)
}

// ClientIP returns a slog.Attr for a client's address.
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// DurationMs returns a slog.Attr for an operation's duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error, or a zero-value Attr for nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a reply's error code.
func ErrorCode(code int32) slog.Attr {
	return slog.Int64(KeyErrorCode, int64(code))
}

// Attempt returns a slog.Attr for a store transaction retry attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for the maximum retry attempts configured.
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}
