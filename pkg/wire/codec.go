package wire

import (
	"bytes"
	"fmt"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// EncodeBody marshals v (a pointer to one of the message structs in this
// package) with the reflection-based XDR codec. Fixed-width integer fields,
// vstr fields (tagged as Go strings) and bytes32 fields (tagged as []byte)
// are all handled by the library from the struct's field order alone, so
// adding a message type never needs a hand-written encoder.
func EncodeBody(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, v); err != nil {
		return nil, fmt.Errorf("wire: encode body: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeBody unmarshals data into v, which must be a pointer to one of the
// message structs in this package.
func DecodeBody(data []byte, v interface{}) error {
	if _, err := xdr.Unmarshal(bytes.NewReader(data), v); err != nil {
		return fmt.Errorf("wire: decode body: %w", err)
	}
	return nil
}

// EncodeMessage builds a complete wire message: header followed by the
// XDR-encoded body.
func EncodeMessage(cmd Command, messageID, threadGroup uint32, flags Flags, body interface{}) ([]byte, error) {
	encodedBody, err := EncodeBody(body)
	if err != nil {
		return nil, err
	}
	h := Header{
		ProtocolID:   ProtocolID,
		Command:      cmd,
		TotalLength:  uint32(HeaderSize + len(encodedBody)),
		HeaderLength: HeaderSize,
		MessageID:    messageID,
		ThreadGroup:  threadGroup,
		Flags:        flags,
	}
	out := make([]byte, 0, h.TotalLength)
	out = append(out, h.Encode()...)
	out = append(out, encodedBody...)
	return out, nil
}

// DecodeMessage splits a complete wire message into its header and raw body
// bytes; the caller decodes the body into the message type matching
// header.Command with DecodeBody.
func DecodeMessage(data []byte) (Header, []byte, error) {
	h, err := DecodeHeader(data)
	if err != nil {
		return Header{}, nil, err
	}
	if int(h.TotalLength) > len(data) {
		return Header{}, nil, fmt.Errorf("wire: truncated message: header declares %d bytes, got %d", h.TotalLength, len(data))
	}
	return h, data[HeaderSize:h.TotalLength], nil
}
