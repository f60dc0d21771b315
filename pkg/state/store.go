// Package state holds the current reconciled snapshot and a bounded
// trailing history. One writer (the polling pipeline) publishes;
// any number of readers observe immutable snapshot references without
// ever blocking the writer.
package state

import (
	"sync"

	"github.com/carverauto/faultradar/pkg/models"
)

// Store is the process-wide snapshot owner.
type Store struct {
	mu          sync.RWMutex
	current     *models.Snapshot
	history     []*models.Snapshot // ring, oldest overwritten
	historyPos  int
	historyFull bool
	subscribers map[int]chan *models.Snapshot
	nextSubID   int
}

const defaultHistorySize = 50

// NewStore creates a store retaining up to historySize snapshots.
func NewStore(historySize int) *Store {
	if historySize <= 0 {
		historySize = defaultHistorySize
	}

	return &Store{
		history:     make([]*models.Snapshot, historySize),
		subscribers: make(map[int]chan *models.Snapshot),
	}
}

// Current returns the latest snapshot, or nil before the first publish.
// Callers must treat the snapshot as read-only.
func (s *Store) Current() *models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.current
}

// Publish installs snap as the current snapshot, records it in the
// history ring and fans it out to subscribers. Only the reconciliation
// path calls Publish.
func (s *Store) Publish(snap *models.Snapshot) {
	if snap == nil {
		return
	}

	s.mu.Lock()
	s.current = snap
	s.pushHistory(snap)
	s.notify(snap)
	s.mu.Unlock()
}

// Reset atomically installs baseline as the current snapshot and
// discards the history ring. Used when a new equipment model is
// installed so no state from the old model's component ids survives.
func (s *Store) Reset(baseline *models.Snapshot) {
	if baseline == nil {
		return
	}

	s.mu.Lock()
	s.current = baseline

	for i := range s.history {
		s.history[i] = nil
	}

	s.historyPos = 0
	s.historyFull = false
	s.pushHistory(baseline)
	s.notify(baseline)
	s.mu.Unlock()
}

// History returns up to limit retained snapshots, newest first.
// limit <= 0 returns everything retained.
func (s *Store) History(limit int) []*models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	size := len(s.history)

	count := s.historyPos
	if s.historyFull {
		count = size
	}

	if limit <= 0 || limit > count {
		limit = count
	}

	out := make([]*models.Snapshot, 0, limit)

	for i := 0; i < limit; i++ {
		idx := (s.historyPos - 1 - i + size) % size
		out = append(out, s.history[idx])
	}

	return out
}

// Subscribe registers a listener for published snapshots. The returned
// cancel func must be called when done. A slow subscriber loses the
// oldest pending snapshot rather than stalling the writer.
func (s *Store) Subscribe(buffer int) (<-chan *models.Snapshot, func()) {
	if buffer <= 0 {
		buffer = 1
	}

	ch := make(chan *models.Snapshot, buffer)

	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if sub, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(sub)
		}
		s.mu.Unlock()
	}

	return ch, cancel
}

func (s *Store) pushHistory(snap *models.Snapshot) {
	s.history[s.historyPos] = snap
	s.historyPos++

	if s.historyPos == len(s.history) {
		s.historyPos = 0
		s.historyFull = true
	}
}

// notify is called with the write lock held; sends never block.
func (s *Store) notify(snap *models.Snapshot) {
	for _, ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// Drop the oldest pending snapshot to make room.
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
}
