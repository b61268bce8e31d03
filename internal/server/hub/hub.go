// Package hub fans record changes and deletions out to the open server
// streams. Record subscribers only ever need the latest state, so a slow
// reader sees intermediate snapshots coalesced.
package hub

import (
	"sync"

	"github.com/dmitrijs2005/memokeeper/internal/server/metrics"
	"github.com/dmitrijs2005/memokeeper/internal/server/models"
)

const deletionBuffer = 64

type recordSub struct {
	ch chan *models.Record
}

type deletionSub struct {
	ch chan string
}

type Hub struct {
	mu        sync.Mutex
	records   map[string]map[*recordSub]struct{}
	deletions map[string]map[*deletionSub]struct{}
}

func New() *Hub {
	return &Hub{
		records:   make(map[string]map[*recordSub]struct{}),
		deletions: make(map[string]map[*deletionSub]struct{}),
	}
}

// SubscribeRecord returns a channel of snapshots of record id. The channel is
// closed by cancel or when the record is deleted.
func (h *Hub) SubscribeRecord(id string) (<-chan *models.Record, func()) {
	s := &recordSub{ch: make(chan *models.Record, 1)}

	h.mu.Lock()
	subs, ok := h.records[id]
	if !ok {
		subs = make(map[*recordSub]struct{})
		h.records[id] = subs
	}
	subs[s] = struct{}{}
	h.mu.Unlock()

	return s.ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.dropRecordSub(id, s)
	}
}

func (h *Hub) dropRecordSub(id string, s *recordSub) {
	subs, ok := h.records[id]
	if !ok {
		return
	}
	if _, ok := subs[s]; !ok {
		return
	}
	delete(subs, s)
	close(s.ch)
	if len(subs) == 0 {
		delete(h.records, id)
	}
}

// PublishRecord hands a copy of rec to every subscriber of its id, replacing
// a snapshot that has not been read yet.
func (h *Hub) PublishRecord(rec *models.Record) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.records[rec.ID] {
		c := rec.Clone()
		select {
		case s.ch <- c:
		default:
			select {
			case <-s.ch:
			default:
			}
			s.ch <- c
		}
	}
}

// SubscribeDeletions returns a channel of record ids deleted for userID.
func (h *Hub) SubscribeDeletions(userID string) (<-chan string, func()) {
	s := &deletionSub{ch: make(chan string, deletionBuffer)}

	h.mu.Lock()
	subs, ok := h.deletions[userID]
	if !ok {
		subs = make(map[*deletionSub]struct{})
		h.deletions[userID] = subs
	}
	subs[s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(subs, s)
			if len(subs) == 0 {
				delete(h.deletions, userID)
			}
			close(s.ch)
		})
	}
}

// PublishDeletion ends the record streams of id and notifies the deletion
// watchers of userID.
func (h *Hub) PublishDeletion(userID, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.records[id] {
		h.dropRecordSub(id, s)
	}

	for s := range h.deletions[userID] {
		select {
		case s.ch <- id:
		default:
			metrics.HubDropped.Inc()
		}
	}
}
