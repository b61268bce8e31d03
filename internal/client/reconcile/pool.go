// Package reconcile keeps uploaded records in step with the server. A Pool
// holds at most one push subscription per server id and applies every
// pushed snapshot to the store until the record reaches a terminal status.
package reconcile

import (
	"context"
	"errors"
	"sync"

	"github.com/dmitrijs2005/memokeeper/internal/client/metrics"
	"github.com/dmitrijs2005/memokeeper/internal/client/models"
	"github.com/dmitrijs2005/memokeeper/internal/client/store"
	"github.com/dmitrijs2005/memokeeper/internal/logging"
)

// ErrSubscriptionTransport marks a stream error reported through Update.Err.
var ErrSubscriptionTransport = errors.New("subscription transport error")

// Update is one push from the server: either a record snapshot or an error.
type Update struct {
	Record *models.ServerRecord
	Err    error
}

// Handle cancels a subscription. Cancel must be safe to call from inside the
// onUpdate callback.
type Handle interface {
	Cancel()
}

// Channel opens push subscriptions for server records.
type Channel interface {
	Subscribe(ctx context.Context, serverID string, onUpdate func(Update)) (Handle, error)
}

type subscription struct {
	handle Handle
	// retired is set once the subscription leaves the map; pushes that race
	// with retirement check it and are dropped.
	retired bool
}

type Pool struct {
	store   *store.Store
	channel Channel
	logger  logging.Logger

	mu   sync.Mutex
	subs map[string]*subscription
}

// NewPool creates a pool applying pushes to s. Removing a record from s stops
// its subscription.
func NewPool(s *store.Store, ch Channel, logger logging.Logger) *Pool {
	p := &Pool{
		store:   s,
		channel: ch,
		logger:  logger.With("module", "reconcile"),
		subs:    make(map[string]*subscription),
	}
	s.OnRemove(p.StopListening)
	return p
}

// StartListening subscribes to serverID. It returns false when a
// subscription already exists or could not be opened.
func (p *Pool) StartListening(ctx context.Context, serverID string) bool {
	p.mu.Lock()
	if _, ok := p.subs[serverID]; ok {
		p.mu.Unlock()
		return false
	}
	sub := &subscription{}
	p.subs[serverID] = sub
	p.mu.Unlock()

	h, err := p.channel.Subscribe(ctx, serverID, func(u Update) { p.apply(ctx, serverID, sub, u) })
	if err != nil {
		p.logger.Error(ctx, "subscribe failed", "server_id", serverID, "error", err)
		p.mu.Lock()
		if p.subs[serverID] == sub {
			delete(p.subs, serverID)
		}
		p.mu.Unlock()
		return false
	}

	p.mu.Lock()
	if sub.retired {
		// a terminal push or StopListening beat us here
		p.mu.Unlock()
		h.Cancel()
		return true
	}
	sub.handle = h
	p.mu.Unlock()

	metrics.ActiveSubscriptions.Inc()
	p.logger.Debug(ctx, "listening", "server_id", serverID)
	return true
}

// StopListening cancels the subscription of serverID, if any.
func (p *Pool) StopListening(serverID string) {
	p.mu.Lock()
	sub, ok := p.subs[serverID]
	if !ok {
		p.mu.Unlock()
		return
	}
	h := p.retireLocked(serverID, sub)
	p.mu.Unlock()

	p.cancel(h)
}

// CancelAll stops every subscription.
func (p *Pool) CancelAll() {
	p.mu.Lock()
	handles := make([]Handle, 0, len(p.subs))
	for id, sub := range p.subs {
		if h := p.retireLocked(id, sub); h != nil {
			handles = append(handles, h)
		}
	}
	p.mu.Unlock()

	for _, h := range handles {
		p.cancel(h)
	}
}

// Active returns the number of open subscriptions.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// IsListening reports whether serverID has an open subscription.
func (p *Pool) IsListening(serverID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.subs[serverID]
	return ok
}

func (p *Pool) apply(ctx context.Context, serverID string, sub *subscription, u Update) {
	p.mu.Lock()
	if sub.retired {
		p.mu.Unlock()
		metrics.PushUpdatesTotal.WithLabelValues("dropped").Inc()
		return
	}
	p.mu.Unlock()

	if u.Err != nil {
		metrics.PushUpdatesTotal.WithLabelValues("transport_error").Inc()
		p.logger.Warn(ctx, "push stream error", "server_id", serverID, "error", errors.Join(ErrSubscriptionTransport, u.Err))
		return
	}
	if u.Record == nil || u.Record.ID != serverID {
		metrics.PushUpdatesTotal.WithLabelValues("rejected").Inc()
		return
	}

	next := u.Record
	err := p.store.Transition(serverID, next.Status, func(r *models.Record) {
		for k, v := range next.Fields {
			if r.Payload == nil {
				r.Payload = make(map[string]models.Field, len(next.Fields))
			}
			r.Payload[k] = v
		}
		if next.Duration > 0 {
			r.DurationHint = next.Duration
		}
		if next.ContactRef != "" {
			r.ContactRef = next.ContactRef
		}
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		metrics.PushUpdatesTotal.WithLabelValues("dropped").Inc()
		p.StopListening(serverID)
		return
	case err != nil:
		metrics.PushUpdatesTotal.WithLabelValues("rejected").Inc()
		p.logger.Warn(ctx, "push rejected", "server_id", serverID, "status", next.Status, "error", err)
	default:
		metrics.PushUpdatesTotal.WithLabelValues("applied").Inc()
	}

	if next.Status.IsTerminal() {
		p.mu.Lock()
		var h Handle
		if p.subs[serverID] == sub {
			h = p.retireLocked(serverID, sub)
		}
		p.mu.Unlock()
		p.cancel(h)
		p.logger.Info(ctx, "record settled", "server_id", serverID, "status", next.Status)
	}
}

// retireLocked unregisters sub and returns the handle to cancel, nil when
// there is nothing to cancel yet.
func (p *Pool) retireLocked(id string, sub *subscription) Handle {
	if p.subs[id] == sub {
		delete(p.subs, id)
	}
	if sub.retired {
		return nil
	}
	sub.retired = true
	return sub.handle
}

func (p *Pool) cancel(h Handle) {
	if h == nil {
		return
	}
	h.Cancel()
	metrics.ActiveSubscriptions.Dec()
}
