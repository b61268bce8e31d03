package grpc

import (
	"github.com/dmitrijs2005/memokeeper/internal/rpc"
	st "github.com/dmitrijs2005/memokeeper/internal/status"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Subscribe sends the current state of a record, then every change, and
// returns once the record reaches a terminal status. A deleted record ends
// the stream with NotFound.
func (s *GRPCServer) Subscribe(in *rpc.SubscribeRequest, stream rpc.RecordStream) error {
	ctx := stream.Context()
	userID, err := s.caller(ctx)
	if err != nil {
		return err
	}

	// subscribe before reading the snapshot so no change falls in between
	changes, cancel := s.hub.SubscribeRecord(in.RecordID)
	defer cancel()

	rec, err := s.records.Get(ctx, userID, in.RecordID)
	if err != nil {
		return s.toStatus(ctx, err)
	}
	if err := stream.Send(toWire(rec)); err != nil {
		return err
	}
	last := rec.Status

	for !last.IsTerminal() {
		select {
		case <-ctx.Done():
			return status.FromContextError(ctx.Err()).Err()
		case r, ok := <-changes:
			if !ok {
				return status.Error(codes.NotFound, "record deleted")
			}
			if r.UserID != userID || !st.CanTransition(last, r.Status) {
				continue
			}
			if err := stream.Send(toWire(r)); err != nil {
				return err
			}
			last = r.Status
		}
	}
	return nil
}

// WatchDeletions streams the ids of the caller's deleted records until the
// client goes away.
func (s *GRPCServer) WatchDeletions(_ *rpc.WatchDeletionsRequest, stream rpc.DeletionStream) error {
	ctx := stream.Context()
	userID, err := s.caller(ctx)
	if err != nil {
		return err
	}

	deleted, cancel := s.hub.SubscribeDeletions(userID)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return status.FromContextError(ctx.Err()).Err()
		case id, ok := <-deleted:
			if !ok {
				return nil
			}
			if err := stream.Send(&rpc.DeletionEvent{RecordID: id}); err != nil {
				return err
			}
		}
	}
}
