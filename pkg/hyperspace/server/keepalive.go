package server

import (
	"context"
	"net"

	"github.com/hypertable/hyperspace/pkg/hserrors"
	"github.com/hypertable/hyperspace/pkg/hyperspace/domain"
	"github.com/hypertable/hyperspace/pkg/wire"
)

// KeepAliveListener serves the UDP keepalive datagram exchange: session
// creation on the first (session_id=0) datagram, lease renewal and
// notification delivery on every subsequent one.
type KeepAliveListener struct {
	conn *net.UDPConn
	d    *Dispatcher
}

// ListenKeepAlive binds a UDP socket at addr and returns a listener ready
// to Serve.
func ListenKeepAlive(addr string, d *Dispatcher) (*KeepAliveListener, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &KeepAliveListener{conn: conn, d: d}, nil
}

// Close releases the UDP socket.
func (l *KeepAliveListener) Close() error { return l.conn.Close() }

// Addr returns the bound address, useful when addr was ":0".
func (l *KeepAliveListener) Addr() net.Addr { return l.conn.LocalAddr() }

// Serve reads datagrams until ctx is cancelled or the socket errors.
func (l *KeepAliveListener) Serve(ctx context.Context) error {
	buf := make([]byte, 64*1024)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, from, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		h, body, err := wire.DecodeMessage(buf[:n])
		if err != nil || h.Command != wire.CmdKeepAlive {
			continue
		}
		reply := l.handle(ctx, from.String(), body)
		msg, err := wire.EncodeMessage(wire.CmdKeepAlive, h.MessageID, 0, wire.FlagResponse, reply)
		if err != nil {
			continue
		}
		_, _ = l.conn.WriteToUDP(msg, from)
	}
}

func (l *KeepAliveListener) handle(ctx context.Context, addr string, body []byte) *wire.KeepAliveReply {
	var req wire.KeepAliveRequest
	if err := wire.DecodeBody(body, &req); err != nil {
		return &wire.KeepAliveReply{Error: int32(hserrors.ProtocolError)}
	}

	sessions := l.d.sessions

	if req.SessionID == 0 {
		id, err := sessions.CreateSession(ctx, addr)
		if err != nil {
			return &wire.KeepAliveReply{Error: int32(hserrors.CodeOf(err))}
		}
		return &wire.KeepAliveReply{SessionID: int64(id)}
	}

	sessionID := uint64(req.SessionID)

	if req.Shutdown {
		_ = sessions.DestroySession(ctx, sessionID)
		return &wire.KeepAliveReply{SessionID: req.SessionID}
	}

	if err := sessions.RenewLease(ctx, sessionID); err != nil {
		return &wire.KeepAliveReply{SessionID: req.SessionID, Error: int32(hserrors.CodeOf(err))}
	}

	if err := sessions.Ack(ctx, sessionID, uint64(req.LastKnownEventID)); err != nil {
		return &wire.KeepAliveReply{SessionID: req.SessionID, Error: int32(hserrors.CodeOf(err))}
	}

	pending := sessions.DrainNotifications(sessionID)
	records := make([]wire.NotificationRecord, 0, len(pending))
	for _, n := range pending {
		records = append(records, notificationToWire(n))
	}

	return &wire.KeepAliveReply{SessionID: req.SessionID, Notifications: records}
}

func notificationToWire(n domain.Notification) wire.NotificationRecord {
	rec := wire.NotificationRecord{
		Handle:    int64(n.HandleID),
		EventID:   int64(n.Event.ID),
		EventMask: int32(n.Event.Kind.Bit()),
		Kind:      int32(n.Event.Kind),
	}
	switch n.Event.Kind {
	case domain.EventAttrSet, domain.EventAttrDel:
		rec.Name = n.Event.AttrName
	case domain.EventChildAdded, domain.EventChildRemoved:
		rec.Name = n.Event.ChildName
	case domain.EventLockAcquired:
		rec.Mode = int32(n.Event.LockMode)
	case domain.EventLockGranted:
		rec.Mode = int32(n.Event.LockMode)
		rec.Generation = int64(n.Event.LockGeneration)
	}
	return rec
}
