package server

import (
	"context"

	"github.com/hypertable/hyperspace/pkg/hserrors"
	"github.com/hypertable/hyperspace/pkg/hyperspace/domain"
	"github.com/hypertable/hyperspace/pkg/hyperspace/repo"
	"github.com/hypertable/hyperspace/pkg/store"
	"github.com/hypertable/hyperspace/pkg/wire"
)

func codeOf(err error) int32 {
	return int32(hserrors.CodeOf(err))
}

func handleHandshake(ctx context.Context, d *Dispatcher, body []byte) (interface{}, error) {
	var req wire.HandshakeRequest
	if err := wire.DecodeBody(body, &req); err != nil {
		return nil, err
	}
	if err := d.sessions.InitializeSession(ctx, uint64(req.SessionID), req.Name); err != nil {
		return &wire.HandshakeReply{Error: codeOf(err)}, nil
	}
	return &wire.HandshakeReply{Error: int32(hserrors.OK)}, nil
}

func (d *Dispatcher) requireSession(ctx context.Context, sessionID int64) error {
	return d.sessions.Validate(ctx, uint64(sessionID))
}

func handleOpen(ctx context.Context, d *Dispatcher, body []byte) (interface{}, error) {
	var req wire.OpenRequest
	if err := wire.DecodeBody(body, &req); err != nil {
		return nil, err
	}
	if err := d.requireSession(ctx, req.SessionID); err != nil {
		return &wire.OpenReply{Error: codeOf(err)}, nil
	}
	res, err := d.namespace.Open(ctx, uint64(req.SessionID), req.Path, domain.OpenFlags(req.Flags), domain.EventMask(req.EventMask), nil)
	if err != nil {
		return &wire.OpenReply{Error: codeOf(err)}, nil
	}
	return &wire.OpenReply{
		Error:      int32(hserrors.OK),
		Handle:     int64(res.HandleID),
		Generation: int64(res.Generation),
		HoldsLock:  res.HoldsLock,
	}, nil
}

func handleClose(ctx context.Context, d *Dispatcher, body []byte) (interface{}, error) {
	var req wire.CloseRequest
	if err := wire.DecodeBody(body, &req); err != nil {
		return nil, err
	}
	if err := d.requireSession(ctx, req.SessionID); err != nil {
		return &wire.CloseReply{Error: codeOf(err)}, nil
	}
	err := d.namespace.Close(ctx, uint64(req.SessionID), uint64(req.Handle))
	return &wire.CloseReply{Error: codeOf(err)}, nil
}

func handleMkdir(ctx context.Context, d *Dispatcher, body []byte) (interface{}, error) {
	var req wire.MkdirRequest
	if err := wire.DecodeBody(body, &req); err != nil {
		return nil, err
	}
	if err := d.requireSession(ctx, req.SessionID); err != nil {
		return &wire.MkdirReply{Error: codeOf(err)}, nil
	}
	err := d.namespace.Mkdir(ctx, req.Path)
	return &wire.MkdirReply{Error: codeOf(err)}, nil
}

func handleUnlink(ctx context.Context, d *Dispatcher, body []byte) (interface{}, error) {
	var req wire.UnlinkRequest
	if err := wire.DecodeBody(body, &req); err != nil {
		return nil, err
	}
	if err := d.requireSession(ctx, req.SessionID); err != nil {
		return &wire.UnlinkReply{Error: codeOf(err)}, nil
	}
	err := d.namespace.Unlink(ctx, req.Path)
	return &wire.UnlinkReply{Error: codeOf(err)}, nil
}

func handleAttrSet(ctx context.Context, d *Dispatcher, body []byte) (interface{}, error) {
	var req wire.AttrSetRequest
	if err := wire.DecodeBody(body, &req); err != nil {
		return nil, err
	}
	if err := d.requireSession(ctx, req.SessionID); err != nil {
		return &wire.AttrSetReply{Error: codeOf(err)}, nil
	}
	err := d.namespace.AttrSet(ctx, uint64(req.Handle), req.Name, req.Value)
	return &wire.AttrSetReply{Error: codeOf(err)}, nil
}

func handleAttrGet(ctx context.Context, d *Dispatcher, body []byte) (interface{}, error) {
	var req wire.AttrGetRequest
	if err := wire.DecodeBody(body, &req); err != nil {
		return nil, err
	}
	if err := d.requireSession(ctx, req.SessionID); err != nil {
		return &wire.AttrGetReply{Error: codeOf(err)}, nil
	}
	val, err := d.namespace.AttrGet(ctx, uint64(req.Handle), req.Name)
	if err != nil {
		return &wire.AttrGetReply{Error: codeOf(err)}, nil
	}
	return &wire.AttrGetReply{Error: int32(hserrors.OK), Value: val}, nil
}

func handleAttrExists(ctx context.Context, d *Dispatcher, body []byte) (interface{}, error) {
	var req wire.AttrExistsRequest
	if err := wire.DecodeBody(body, &req); err != nil {
		return nil, err
	}
	if err := d.requireSession(ctx, req.SessionID); err != nil {
		return &wire.AttrExistsReply{Error: codeOf(err)}, nil
	}
	ok, err := d.namespace.AttrExists(ctx, uint64(req.Handle), req.Name)
	if err != nil {
		return &wire.AttrExistsReply{Error: codeOf(err)}, nil
	}
	return &wire.AttrExistsReply{Error: int32(hserrors.OK), Exists: ok}, nil
}

func handleAttrDel(ctx context.Context, d *Dispatcher, body []byte) (interface{}, error) {
	var req wire.AttrDelRequest
	if err := wire.DecodeBody(body, &req); err != nil {
		return nil, err
	}
	if err := d.requireSession(ctx, req.SessionID); err != nil {
		return &wire.AttrDelReply{Error: codeOf(err)}, nil
	}
	err := d.namespace.AttrDel(ctx, uint64(req.Handle), req.Name)
	return &wire.AttrDelReply{Error: codeOf(err)}, nil
}

func handleAttrList(ctx context.Context, d *Dispatcher, body []byte) (interface{}, error) {
	var req wire.AttrListRequest
	if err := wire.DecodeBody(body, &req); err != nil {
		return nil, err
	}
	if err := d.requireSession(ctx, req.SessionID); err != nil {
		return &wire.AttrListReply{Error: codeOf(err)}, nil
	}
	names, err := d.namespace.AttrList(ctx, uint64(req.Handle))
	if err != nil {
		return &wire.AttrListReply{Error: codeOf(err)}, nil
	}
	return &wire.AttrListReply{Error: int32(hserrors.OK), Names: names}, nil
}

func handleReaddir(ctx context.Context, d *Dispatcher, body []byte) (interface{}, error) {
	var req wire.ReaddirRequest
	if err := wire.DecodeBody(body, &req); err != nil {
		return nil, err
	}
	if err := d.requireSession(ctx, req.SessionID); err != nil {
		return &wire.ReaddirReply{Error: codeOf(err)}, nil
	}
	names, err := d.namespace.Readdir(ctx, uint64(req.Handle))
	if err != nil {
		return &wire.ReaddirReply{Error: codeOf(err)}, nil
	}
	return &wire.ReaddirReply{Error: int32(hserrors.OK), Names: names}, nil
}

func handleExists(ctx context.Context, d *Dispatcher, body []byte) (interface{}, error) {
	var req wire.ExistsRequest
	if err := wire.DecodeBody(body, &req); err != nil {
		return nil, err
	}
	if err := d.requireSession(ctx, req.SessionID); err != nil {
		return &wire.ExistsReply{Error: codeOf(err)}, nil
	}
	ok, err := d.namespace.Exists(ctx, req.Path)
	if err != nil {
		return &wire.ExistsReply{Error: codeOf(err)}, nil
	}
	return &wire.ExistsReply{Error: int32(hserrors.OK), Exists: ok}, nil
}

func handleLock(ctx context.Context, d *Dispatcher, body []byte) (interface{}, error) {
	var req wire.LockRequest
	if err := wire.DecodeBody(body, &req); err != nil {
		return nil, err
	}
	if err := d.requireSession(ctx, req.SessionID); err != nil {
		return &wire.LockReply{Error: codeOf(err)}, nil
	}
	outcome, generation, err := d.namespace.Lock(ctx, uint64(req.Handle), domain.LockMode(req.Mode), req.TryLock)
	if err != nil {
		return &wire.LockReply{Error: codeOf(err)}, nil
	}
	return &wire.LockReply{Error: int32(hserrors.OK), Outcome: int32(outcome), Generation: int64(generation)}, nil
}

func handleRelease(ctx context.Context, d *Dispatcher, body []byte) (interface{}, error) {
	var req wire.ReleaseRequest
	if err := wire.DecodeBody(body, &req); err != nil {
		return nil, err
	}
	if err := d.requireSession(ctx, req.SessionID); err != nil {
		return &wire.ReleaseReply{Error: codeOf(err)}, nil
	}
	err := d.namespace.Release(ctx, uint64(req.Handle))
	return &wire.ReleaseReply{Error: codeOf(err)}, nil
}

func handleStatus(ctx context.Context, d *Dispatcher, _ []byte) (interface{}, error) {
	var stats repo.Stats
	err := d.store.View(ctx, func(txn store.Txn) error {
		var err error
		stats, err = repo.CollectStats(txn)
		return err
	})
	if err != nil {
		return &wire.StatusReply{Error: codeOf(err)}, nil
	}
	return &wire.StatusReply{
		Error:                int32(hserrors.OK),
		Sessions:             stats.Sessions,
		OpenHandles:          stats.OpenHandles,
		HeldLocks:            stats.HeldLocks,
		PendingWaiters:       stats.PendingWaiters,
		PendingNotifications: stats.PendingNotifications,
	}, nil
}
