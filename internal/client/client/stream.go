package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dmitrijs2005/memokeeper/internal/client/reconcile"
	"github.com/dmitrijs2005/memokeeper/internal/rpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Subscription is a running push stream. Cancel does not wait for the
// stream goroutine; use Done for that.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *Subscription) Cancel() { s.cancel() }

func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *GRPCClient) start(ctx context.Context, run func(ctx context.Context)) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		defer cancel()
		run(ctx)
	}()
	return sub
}

// Subscribe follows the server state of record serverID. The stream is
// reopened with exponential backoff until the subscription is cancelled
// or the server reports the record as gone.
func (s *GRPCClient) Subscribe(ctx context.Context, serverID string, onUpdate func(reconcile.Update)) (reconcile.Handle, error) {
	sub := s.start(ctx, func(ctx context.Context) {
		s.follow(ctx, "subscribe "+serverID, func(ctx context.Context) (func() error, error) {
			stream, err := s.client.Subscribe(ctx, &rpc.SubscribeRequest{RecordID: serverID})
			if err != nil {
				return nil, err
			}
			return func() error {
				msg, err := stream.Recv()
				if err != nil {
					return err
				}
				rec, err := recordFromWire(msg)
				if err != nil {
					onUpdate(reconcile.Update{Err: err})
					return nil
				}
				onUpdate(reconcile.Update{Record: rec})
				return nil
			}, nil
		}, func(err error) { onUpdate(reconcile.Update{Err: err}) })
	})
	return sub, nil
}

// WatchDeletions calls onDelete with the id of every record deleted on the
// server for the current account.
func (s *GRPCClient) WatchDeletions(ctx context.Context, onDelete func(id string)) (reconcile.Handle, error) {
	sub := s.start(ctx, func(ctx context.Context) {
		s.follow(ctx, "deletions", func(ctx context.Context) (func() error, error) {
			stream, err := s.client.WatchDeletions(ctx, &rpc.WatchDeletionsRequest{})
			if err != nil {
				return nil, err
			}
			return func() error {
				ev, err := stream.Recv()
				if err != nil {
					return err
				}
				onDelete(ev.RecordID)
				return nil
			}, nil
		}, func(err error) {
			s.logger.Warn(ctx, "deletion stream error", "error", err)
		})
	})
	return sub, nil
}

// follow runs open/recv until ctx is done, reconnecting on errors.
func (s *GRPCClient) follow(ctx context.Context, name string, open func(ctx context.Context) (func() error, error), onErr func(error)) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.streamInitialInterval
	bo.MaxInterval = s.streamMaxInterval
	bo.MaxElapsedTime = 0
	bo.Reset()

	for {
		recv, err := open(ctx)
		if err == nil {
			for {
				if err = recv(); err != nil {
					break
				}
				bo.Reset()
			}
		}

		if ctx.Err() != nil {
			return
		}
		if status.Code(err) == codes.NotFound {
			onErr(ErrNotFound)
			return
		}
		if isTokenExpired(err) {
			if rerr := s.refresh(ctx); rerr == nil {
				continue
			}
		}
		if !errors.Is(err, io.EOF) {
			onErr(fmt.Errorf("%w: %w", reconcile.ErrSubscriptionTransport, s.mapError(err)))
		}

		wait := bo.NextBackOff()
		s.logger.Debug(ctx, "stream closed, reconnecting", "stream", name, "in", wait, "error", err)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}
