// Package server implements Hyperspace's Request Dispatch: decoding a TCP
// request into a command and typed arguments, validating the session,
// handing the call to the relevant component, and encoding the result.
package server

import (
	"context"
	"reflect"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hypertable/hyperspace/internal/logger"
	"github.com/hypertable/hyperspace/pkg/hserrors"
	"github.com/hypertable/hyperspace/pkg/hyperspace/namespace"
	"github.com/hypertable/hyperspace/pkg/hyperspace/session"
	"github.com/hypertable/hyperspace/pkg/store"
	"github.com/hypertable/hyperspace/pkg/wire"
)

// handlerFunc decodes body, executes the command, and returns the XDR reply
// message to send back (always non-nil: every reply struct carries its own
// Error field) or a protocol-level decode failure.
type handlerFunc func(ctx context.Context, d *Dispatcher, body []byte) (reply interface{}, err error)

type commandEntry struct {
	name    string
	handler handlerFunc
}

// Dispatcher routes decoded wire requests to the Session Manager and
// Namespace service, and serializes requests that share a thread group.
type Dispatcher struct {
	store     store.Store
	sessions  *session.Manager
	namespace *namespace.Service
	metrics   *Metrics
	tracer    trace.Tracer
	groups    *threadGroups
	table     map[wire.Command]commandEntry
}

// New constructs a Dispatcher wired to the given components. metrics and
// tracer may be nil; a nil Metrics is a no-op, a nil tracer disables spans.
func New(s store.Store, sessions *session.Manager, ns *namespace.Service, metrics *Metrics, tracer trace.Tracer) *Dispatcher {
	d := &Dispatcher{
		store:     s,
		sessions:  sessions,
		namespace: ns,
		metrics:   metrics,
		tracer:    tracer,
		groups:    newThreadGroups(),
	}
	d.table = map[wire.Command]commandEntry{
		wire.CmdHandshake:  {"handshake", handleHandshake},
		wire.CmdOpen:       {"open", handleOpen},
		wire.CmdClose:      {"close", handleClose},
		wire.CmdMkdir:      {"mkdir", handleMkdir},
		wire.CmdUnlink:     {"unlink", handleUnlink},
		wire.CmdAttrSet:    {"attr-set", handleAttrSet},
		wire.CmdAttrGet:    {"attr-get", handleAttrGet},
		wire.CmdAttrExists: {"attr-exists", handleAttrExists},
		wire.CmdAttrDel:    {"attr-del", handleAttrDel},
		wire.CmdAttrList:   {"attr-list", handleAttrList},
		wire.CmdReaddir:    {"readdir", handleReaddir},
		wire.CmdExists:     {"exists", handleExists},
		wire.CmdLock:       {"lock", handleLock},
		wire.CmdRelease:    {"release", handleRelease},
		wire.CmdStatus:     {"status", handleStatus},
	}
	return d
}

// Dispatch decodes and executes one TCP request, returning the full wire
// message (header + encoded reply body) to write back to the client.
func (d *Dispatcher) Dispatch(ctx context.Context, h wire.Header, body []byte) []byte {
	entry, ok := d.table[h.Command]
	if !ok {
		return d.protocolErrorReply(h, "unknown command code")
	}

	release := d.groups.acquire(h.ThreadGroup)
	defer release()

	start := time.Now()
	ctx, span := d.startSpan(ctx, entry.name, h)
	reply, err := entry.handler(ctx, d, body)
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		d.metrics.recordRequest(entry.name, "protocol-error", elapsed.Seconds())
		logger.Warn("request decode failed",
			logger.Command(entry.name), logger.ThreadGroup(h.ThreadGroup),
			logger.MessageID(h.MessageID), logger.Err(err))
		return d.protocolErrorReply(h, err.Error())
	}

	code := "ok"
	if e, ok := hserrors.As(errFromReply(reply)); ok && e.Code != hserrors.OK {
		code = e.Code.String()
		logger.Debug("request failed",
			logger.Command(entry.name), logger.ThreadGroup(h.ThreadGroup),
			logger.ErrorCode(int32(e.Code)), logger.DurationMs(float64(elapsed.Microseconds())/1000.0))
	}
	span.SetAttributes(attribute.String("hyperspace.result", code))
	span.End()
	d.metrics.recordRequest(entry.name, code, elapsed.Seconds())

	out, encErr := wire.EncodeMessage(h.Command, h.MessageID, h.ThreadGroup, wire.FlagResponse, reply)
	if encErr != nil {
		return d.protocolErrorReply(h, encErr.Error())
	}
	return out
}

func (d *Dispatcher) startSpan(ctx context.Context, name string, h wire.Header) (context.Context, trace.Span) {
	if d.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return d.tracer.Start(ctx, "hyperspace."+name, trace.WithAttributes(
		attribute.Int64("hyperspace.message_id", int64(h.MessageID)),
		attribute.Int64("hyperspace.thread_group", int64(h.ThreadGroup)),
	))
}

func (d *Dispatcher) protocolErrorReply(h wire.Header, detail string) []byte {
	body, _ := wire.EncodeBody(&wire.CloseReply{Error: int32(hserrors.ProtocolError)})
	_ = detail
	hdr := wire.Header{
		ProtocolID:   wire.ProtocolID,
		Command:      h.Command,
		TotalLength:  uint32(wire.HeaderSize + len(body)),
		HeaderLength: wire.HeaderSize,
		MessageID:    h.MessageID,
		ThreadGroup:  h.ThreadGroup,
		Flags:        wire.FlagResponse,
	}
	out := make([]byte, 0, hdr.TotalLength)
	out = append(out, hdr.Encode()...)
	return append(out, body...)
}

// errFromReply extracts the wire-level Error field common to every reply
// struct, for metrics labeling. Every reply struct in pkg/wire carries an
// int32 field named Error; it is looked up by name, not position.
func errFromReply(reply interface{}) error {
	v := reflect.ValueOf(reply)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}
	f := v.FieldByName("Error")
	if !f.IsValid() || f.Kind() != reflect.Int32 {
		return nil
	}
	code := hserrors.Code(int32(f.Int()))
	if code == hserrors.OK {
		return nil
	}
	return hserrors.New(code)
}
