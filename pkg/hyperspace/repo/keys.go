// Package repo implements the persisted key scheme shared by the namespace,
// lock manager, session manager, and event dispatcher: every domain record
// is JSON-encoded under a primary key, with secondary index keys mirroring
// the teacher stack's badger lock-store indexing convention (lkfile:,
// lkowner:, lkclient:) so lookups by node, session, or owner never require
// a full table scan.
package repo

import "encoding/binary"

const (
	prefixNode         = "node:"
	prefixChild        = "child:" // child:<parentPath>\x00<name> -> childPath
	prefixHandle       = "handle:"
	prefixHandleBySess = "hdlsess:" // hdlsess:<sessionID(8)><handleID(8)>
	prefixHandleByNode = "hdlnode:" // hdlnode:<path>\x00<handleID>
	prefixSession      = "session:"
	prefixEvent        = "event:"
	prefixEventRefs    = "evrefs:"
	prefixNotif        = "notif:" // notif:<sessionID(8)><eventID(8)><handleID(8)>
)

func u64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func parseU64(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func keyNode(path string) []byte {
	return append([]byte(prefixNode), path...)
}

func keyChild(parentPath, name string) []byte {
	k := append([]byte(prefixChild), parentPath...)
	k = append(k, 0)
	return append(k, name...)
}

func keyChildPrefix(parentPath string) []byte {
	k := append([]byte(prefixChild), parentPath...)
	return append(k, 0)
}

func keyHandle(id uint64) []byte {
	return append([]byte(prefixHandle), u64(id)...)
}

func keyHandleBySession(sessionID, handleID uint64) []byte {
	k := append([]byte(prefixHandleBySess), u64(sessionID)...)
	return append(k, u64(handleID)...)
}

func keyHandleBySessionPrefix(sessionID uint64) []byte {
	return append([]byte(prefixHandleBySess), u64(sessionID)...)
}

func keyHandleByNode(path string, handleID uint64) []byte {
	k := append([]byte(prefixHandleByNode), path...)
	k = append(k, 0)
	return append(k, u64(handleID)...)
}

func keyHandleByNodePrefix(path string) []byte {
	k := append([]byte(prefixHandleByNode), path...)
	return append(k, 0)
}

func keySession(id uint64) []byte {
	return append([]byte(prefixSession), u64(id)...)
}

func keyEvent(id uint64) []byte {
	return append([]byte(prefixEvent), u64(id)...)
}

func keyEventRefs(id uint64) []byte {
	return append([]byte(prefixEventRefs), u64(id)...)
}

func keyNotif(sessionID, eventID, handleID uint64) []byte {
	k := append([]byte(prefixNotif), u64(sessionID)...)
	k = append(k, u64(eventID)...)
	return append(k, u64(handleID)...)
}

func keyNotifPrefix(sessionID uint64) []byte {
	return append([]byte(prefixNotif), u64(sessionID)...)
}
