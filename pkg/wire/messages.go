package wire

// Every message in this file is XDR-encoded field by field with EncodeBody
// / DecodeBody; field order is the wire layout. A string field is a vstr (4
// byte length + UTF-8 bytes + padding); a []byte field is bytes32 (4-byte
// length + data + padding).

// KeepAliveRequest is the datagram a client sends at the configured
// keep-alive interval. SessionID is 0 on the very first datagram of a new
// session.
type KeepAliveRequest struct {
	SessionID        int64
	LastKnownEventID int64
	Shutdown         bool
}

// KeepAliveReply is the datagram the server sends in response.
type KeepAliveReply struct {
	SessionID     int64
	Error         int32
	Notifications []NotificationRecord
}

// NotificationRecord is one queued event delivered to a handle. The tail
// fields are kind-specific in the source protocol (a name for named
// events, a lock mode for lock-acquired, nothing for lock-released, a mode
// and generation for lock-granted); here they are flattened into a single
// fixed record with the inapplicable fields left at their zero value, since
// the XDR codec has no notion of a discriminated union.
type NotificationRecord struct {
	Handle     int64
	EventID    int64
	EventMask  int32
	Kind       int32
	Name       string // attr-set, attr-del, child-added, child-removed
	Mode       int32  // lock-acquired, lock-granted
	Generation int64  // lock-granted
}

// HandshakeRequest opens the TCP control channel for an already-assigned
// session.
type HandshakeRequest struct {
	SessionID int64
	Name      string
}

type HandshakeReply struct {
	Error int32
}

type OpenRequest struct {
	SessionID int64
	Path      string
	Flags     uint32
	EventMask uint32
}

type OpenReply struct {
	Error      int32
	Handle     int64
	Generation int64
	HoldsLock  bool
}

type CloseRequest struct {
	SessionID int64
	Handle    int64
}

type CloseReply struct {
	Error int32
}

type MkdirRequest struct {
	SessionID int64
	Path      string
}

type MkdirReply struct {
	Error int32
}

type UnlinkRequest struct {
	SessionID int64
	Path      string
}

type UnlinkReply struct {
	Error int32
}

type AttrSetRequest struct {
	SessionID int64
	Handle    int64
	Name      string
	Value     []byte
}

type AttrSetReply struct {
	Error int32
}

type AttrGetRequest struct {
	SessionID int64
	Handle    int64
	Name      string
}

type AttrGetReply struct {
	Error int32
	Value []byte
}

type AttrExistsRequest struct {
	SessionID int64
	Handle    int64
	Name      string
}

type AttrExistsReply struct {
	Error  int32
	Exists bool
}

type AttrDelRequest struct {
	SessionID int64
	Handle    int64
	Name      string
}

type AttrDelReply struct {
	Error int32
}

type AttrListRequest struct {
	SessionID int64
	Handle    int64
}

type AttrListReply struct {
	Error int32
	Names []string
}

type ReaddirRequest struct {
	SessionID int64
	Handle    int64
}

type ReaddirReply struct {
	Error int32
	Names []string
}

type ExistsRequest struct {
	SessionID int64
	Path      string
}

type ExistsReply struct {
	Error  int32
	Exists bool
}

type LockRequest struct {
	SessionID int64
	Handle    int64
	Mode      int32
	TryLock   bool
}

type LockReply struct {
	Error      int32
	Outcome    int32
	Generation int64
}

type ReleaseRequest struct {
	SessionID int64
	Handle    int64
}

type ReleaseReply struct {
	Error int32
}

// StatusRequest carries no fields; status takes no session id, since it is
// served to operators rather than to a live client.
type StatusRequest struct{}

type StatusReply struct {
	Error                 int32
	Sessions              int64
	OpenHandles           int64
	HeldLocks             int64
	PendingWaiters        int64
	PendingNotifications  int64
}
