package wire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypertable/hyperspace/pkg/wire"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := wire.Header{
		ProtocolID:   wire.ProtocolID,
		Command:      wire.CmdOpen,
		TotalLength:  wire.HeaderSize + 10,
		HeaderLength: wire.HeaderSize,
		MessageID:    42,
		ThreadGroup:  7,
		Flags:        wire.FlagResponse,
	}
	buf := h.Encode()
	require.Len(t, buf, wire.HeaderSize)

	got, err := wire.DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestDecodeHeaderShortBuffer(t *testing.T) {
	_, err := wire.DecodeHeader([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestOpenRequestRoundTrip(t *testing.T) {
	req := wire.OpenRequest{
		SessionID: 99,
		Path:      "/hyperspace/lock",
		Flags:     uint32(1) | uint32(2),
		EventMask: 0,
	}
	msg, err := wire.EncodeMessage(wire.CmdOpen, 1, 0, 0, req)
	require.NoError(t, err)

	h, body, err := wire.DecodeMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, wire.CmdOpen, h.Command)

	var got wire.OpenRequest
	require.NoError(t, wire.DecodeBody(body, &got))
	assert.Equal(t, req, got)
}

func TestKeepAliveReplyWithNotificationsRoundTrip(t *testing.T) {
	reply := wire.KeepAliveReply{
		SessionID: 1,
		Error:     0,
		Notifications: []wire.NotificationRecord{
			{Handle: 5, EventID: 10, EventMask: 1, Kind: 0, Name: "name"},
			{Handle: 5, EventID: 11, EventMask: 0, Kind: 6, Mode: 2, Generation: 3},
		},
	}
	body, err := wire.EncodeBody(&reply)
	require.NoError(t, err)

	var got wire.KeepAliveReply
	require.NoError(t, wire.DecodeBody(body, &got))
	assert.Equal(t, reply, got)
}

func TestDecodeMessageTruncated(t *testing.T) {
	h := wire.Header{ProtocolID: wire.ProtocolID, TotalLength: 1000, HeaderLength: wire.HeaderSize}
	_, _, err := wire.DecodeMessage(h.Encode())
	assert.Error(t, err)
}
