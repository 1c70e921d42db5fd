package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for Hyperspace request processing.
const (
	AttrClientAddr  = "client.address"
	AttrSessionID   = "hyperspace.session_id"
	AttrHandle      = "hyperspace.handle"
	AttrNodePath    = "hyperspace.path"
	AttrCommand     = "hyperspace.command"
	AttrThreadGroup = "hyperspace.thread_group"
	AttrErrorCode   = "hyperspace.error_code"
	AttrLockMode    = "hyperspace.lock_mode"
)

// Span names for internal operations.
const (
	SpanKeepAlive = "hyperspace.keepalive"
	SpanDispatch  = "hyperspace.dispatch"
)

// ClientAddr returns an attribute for the client's socket address.
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// SessionID returns an attribute for a session id.
func SessionID(id uint64) attribute.KeyValue {
	return attribute.Int64(AttrSessionID, int64(id))
}

// Handle returns an attribute for a node handle.
func Handle(handle uint64) attribute.KeyValue {
	return attribute.Int64(AttrHandle, int64(handle))
}

// NodePath returns an attribute for a namespace path.
func NodePath(path string) attribute.KeyValue {
	return attribute.String(AttrNodePath, path)
}

// Command returns an attribute for the dispatched command name.
func Command(name string) attribute.KeyValue {
	return attribute.String(AttrCommand, name)
}

// ThreadGroup returns an attribute for a request's thread group id.
func ThreadGroup(id uint32) attribute.KeyValue {
	return attribute.Int64(AttrThreadGroup, int64(id))
}

// ErrorCode returns an attribute for a reply's error code.
func ErrorCode(code int32) attribute.KeyValue {
	return attribute.Int64(AttrErrorCode, int64(code))
}

// LockMode returns an attribute for a lock acquisition mode.
func LockMode(mode string) attribute.KeyValue {
	return attribute.String(AttrLockMode, mode)
}

// StartCommandSpan starts a span named "hyperspace.<command>" for a single
// dispatched request.
func StartCommandSpan(ctx context.Context, command string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{Command(command)}, attrs...)
	return StartSpan(ctx, "hyperspace."+command, trace.WithAttributes(allAttrs...))
}
