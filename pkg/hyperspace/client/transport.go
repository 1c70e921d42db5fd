package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/hypertable/hyperspace/pkg/wire"
)

// Transport is the network boundary the Engine drives. It is an interface
// so the state machine can be exercised in tests against a fake transport
// without a real socket.
type Transport interface {
	// KeepAlive sends req as a UDP datagram and waits for the server's
	// reply, or returns an error on timeout or send failure.
	KeepAlive(ctx context.Context, req wire.KeepAliveRequest) (wire.KeepAliveReply, error)

	// Handshake opens (or reopens, after a TCP reconnect) the control
	// channel and performs the handshake.
	Handshake(ctx context.Context, req wire.HandshakeRequest) (wire.HandshakeReply, error)

	// Call issues a request on the control channel and decodes the reply
	// into resp, which must be a pointer to the matching wire reply type.
	Call(ctx context.Context, cmd wire.Command, threadGroup uint32, req, resp interface{}) error

	// Close releases any held sockets.
	Close() error
}

// NetTransport is the production Transport: a UDP socket for keepalives
// and a TCP connection for the request channel, matching the source's
// single-datagram-socket-plus-control-connection design.
type NetTransport struct {
	udpAddr string
	tcpAddr string

	mu       sync.Mutex
	udp      net.Conn
	tcp      net.Conn
	nextMsg  uint32
	msgIDGen func() uint32
}

// NewNetTransport creates a transport targeting the given UDP keepalive and
// TCP control addresses. Sockets are opened lazily on first use.
func NewNetTransport(udpAddr, tcpAddr string) *NetTransport {
	t := &NetTransport{udpAddr: udpAddr, tcpAddr: tcpAddr}
	var counter uint32
	t.msgIDGen = func() uint32 { return atomic.AddUint32(&counter, 1) }
	return t
}

func (t *NetTransport) dialUDP() (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.udp != nil {
		return t.udp, nil
	}
	conn, err := net.Dial("udp", t.udpAddr)
	if err != nil {
		return nil, err
	}
	t.udp = conn
	return conn, nil
}

func (t *NetTransport) dialTCP() (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tcp != nil {
		return t.tcp, nil
	}
	conn, err := net.Dial("tcp", t.tcpAddr)
	if err != nil {
		return nil, err
	}
	t.tcp = conn
	return conn, nil
}

// resetTCP drops the cached TCP connection, forcing the next Call or
// Handshake to redial. Used on a detected disconnect.
func (t *NetTransport) resetTCP() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tcp != nil {
		_ = t.tcp.Close()
		t.tcp = nil
	}
}

func (t *NetTransport) KeepAlive(ctx context.Context, req wire.KeepAliveRequest) (wire.KeepAliveReply, error) {
	conn, err := t.dialUDP()
	if err != nil {
		return wire.KeepAliveReply{}, err
	}
	msg, err := wire.EncodeMessage(wire.CmdKeepAlive, t.msgIDGen(), 0, 0, req)
	if err != nil {
		return wire.KeepAliveReply{}, err
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	if _, err := conn.Write(msg); err != nil {
		return wire.KeepAliveReply{}, err
	}
	buf := make([]byte, 64*1024)
	n, err := conn.Read(buf)
	if err != nil {
		return wire.KeepAliveReply{}, err
	}
	_, body, err := wire.DecodeMessage(buf[:n])
	if err != nil {
		return wire.KeepAliveReply{}, err
	}
	var reply wire.KeepAliveReply
	if err := wire.DecodeBody(body, &reply); err != nil {
		return wire.KeepAliveReply{}, err
	}
	return reply, nil
}

func (t *NetTransport) Handshake(ctx context.Context, req wire.HandshakeRequest) (wire.HandshakeReply, error) {
	var reply wire.HandshakeReply
	err := t.Call(ctx, wire.CmdHandshake, 0, req, &reply)
	return reply, err
}

func (t *NetTransport) Call(ctx context.Context, cmd wire.Command, threadGroup uint32, req, resp interface{}) error {
	conn, err := t.dialTCP()
	if err != nil {
		return err
	}
	msg, err := wire.EncodeMessage(cmd, t.msgIDGen(), threadGroup, 0, req)
	if err != nil {
		return err
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	if _, err := conn.Write(msg); err != nil {
		t.resetTCP()
		return err
	}

	header := make([]byte, wire.HeaderSize)
	if _, err := io.ReadFull(conn, header); err != nil {
		t.resetTCP()
		return err
	}
	h, err := wire.DecodeHeader(header)
	if err != nil {
		return err
	}
	if h.TotalLength < wire.HeaderSize {
		return fmt.Errorf("client: short reply for command %s", cmd)
	}
	body := make([]byte, h.TotalLength-wire.HeaderSize)
	if len(body) > 0 {
		if _, err := io.ReadFull(conn, body); err != nil {
			t.resetTCP()
			return err
		}
	}
	return wire.DecodeBody(body, resp)
}

func (t *NetTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var err error
	if t.udp != nil {
		err = t.udp.Close()
	}
	if t.tcp != nil {
		if e := t.tcp.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
