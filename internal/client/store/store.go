// Package store is the in-memory, observable collection of the records of
// the current session. Every mutation publishes a deep-copied Snapshot to
// subscribers; delivery is latest-wins, so a slow consumer skips intermediate
// states but never sees a torn one.
package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/memokeeper/internal/client/models"
	"github.com/dmitrijs2005/memokeeper/internal/status"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicate         = errors.New("record already exists")
	ErrNotOptimistic     = errors.New("optimistic records must be local or uploading")
	ErrInvalidTransition = status.ErrInvalidTransition
)

// Snapshot is an immutable view of the collection, most recent record first.
type Snapshot struct {
	Version uint64
	Records []*models.Record
}

// Store is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	records  []*models.Record
	version  uint64
	subs     map[int]chan Snapshot
	nextSub  int
	onRemove []func(id string)
}

func New() *Store {
	return &Store{subs: make(map[int]chan Snapshot)}
}

// OnRemove registers fn to run after a record is removed by Remove. Hooks run
// outside the store lock.
func (s *Store) OnRemove(fn func(id string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRemove = append(s.onRemove, fn)
}

// InsertOptimistic prepends a not-yet-confirmed record.
func (s *Store) InsertOptimistic(rec *models.Record) error {
	if rec.Status != status.Local && rec.Status != status.Uploading {
		return fmt.Errorf("%w: got %s", ErrNotOptimistic, rec.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(rec.ID) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicate, rec.ID)
	}
	s.records = append([]*models.Record{rec.Clone()}, s.records...)
	s.publishLocked()
	return nil
}

// Replace swaps the record tempID for rec in place. It returns false, and
// changes nothing, when tempID is no longer present.
func (s *Store) Replace(tempID string, rec *models.Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(tempID)
	if i < 0 {
		return false
	}
	// the server id may already be known from a list refresh
	if j := s.indexLocked(rec.ID); j >= 0 && j != i {
		s.records = append(s.records[:j], s.records[j+1:]...)
		if j < i {
			i--
		}
	}
	s.records[i] = rec.Clone()
	s.publishLocked()
	return true
}

// Update applies mutator to a copy of record id and stores the result. The
// mutator cannot change the id or the status; use Transition for that.
func (s *Store) Update(id string, mutator func(*models.Record)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return false
	}
	orig := s.records[i]
	next := orig.Clone()
	mutator(next)
	next.ID = orig.ID
	next.Status = orig.Status
	s.records[i] = next
	s.publishLocked()
	return true
}

// Transition moves record id to status to, applying the optional mutator in
// the same step. Disallowed transitions return ErrInvalidTransition and leave
// the record untouched.
func (s *Store) Transition(id string, to status.Status, mutator func(*models.Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	orig := s.records[i]
	if err := status.Validate(orig.Status, to); err != nil {
		return err
	}
	next := orig.Clone()
	if mutator != nil {
		mutator(next)
	}
	next.ID = orig.ID
	next.Status = to
	s.records[i] = next
	s.publishLocked()
	return nil
}

// Remove deletes record id and fires the OnRemove hooks.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.records = append(s.records[:i], s.records[i+1:]...)
	s.publishLocked()
	hooks := append([]func(string){}, s.onRemove...)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn(id)
	}
	return true
}

// Reset replaces the whole collection, keeping the given order.
func (s *Store) Reset(records []*models.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make([]*models.Record, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		s.records = append(s.records, r.Clone())
	}
	s.publishLocked()
}

// Clear drops every record without firing OnRemove hooks.
func (s *Store) Clear() {
	s.Reset(nil)
}

// Get returns a copy of record id.
func (s *Store) Get(id string) (*models.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return nil, false
	}
	return s.records[i].Clone(), true
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel that immediately holds the current snapshot and
// afterwards always holds the newest one. cancel closes the channel.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

func (s *Store) indexLocked(id string) int {
	for i, r := range s.records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) snapshotLocked() Snapshot {
	recs := make([]*models.Record, len(s.records))
	for i, r := range s.records {
		recs[i] = r.Clone()
	}
	return Snapshot{Version: s.version, Records: recs}
}

func (s *Store) publishLocked() {
	s.version++
	if len(s.subs) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		// drop the stale snapshot, if any, then deliver the new one
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
