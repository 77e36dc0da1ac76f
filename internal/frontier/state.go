// Package frontier holds the traversal state of one crawl run.
package frontier

import (
	"sync"

	"github.com/JakeFAU/qa-archiver/internal/crawler"
)

// Entry is a queued item together with the depth it was discovered at.
type Entry struct {
	ID    crawler.ItemID
	Depth int
}

// Outcome of offering an item to the frontier.
type Outcome int

// Possible results of Offer.
const (
	Enqueued Outcome = iota
	AlreadySeen
	TooDeep
)

// State is the visited set and the FIFO frontier. A key enters visited exactly once and the frontier never holds a
// visited key or the same key twice. All methods are safe for concurrent use.
type State struct {
	mu       sync.Mutex
	maxDepth int
	visited  map[crawler.ItemID]struct{}
	queued   map[crawler.ItemID]struct{}
	queue    []Entry
}

// New returns an empty state bounded by maxDepth.
func New(maxDepth int) *State {
	return &State{
		maxDepth: maxDepth,
		visited:  make(map[crawler.ItemID]struct{}),
		queued:   make(map[crawler.ItemID]struct{}),
	}
}

// Offer appends id at depth unless it is already known or beyond the bound.
func (s *State) Offer(id crawler.ItemID, depth int) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if depth > s.maxDepth {
		return TooDeep
	}
	if _, ok := s.visited[id]; ok {
		return AlreadySeen
	}
	if _, ok := s.queued[id]; ok {
		return AlreadySeen
	}
	s.queued[id] = struct{}{}
	s.queue = append(s.queue, Entry{ID: id, Depth: depth})
	return Enqueued
}

// Next pops the oldest entry and marks it visited. ok is false when the
// frontier is empty.
func (s *State) Next() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.queue) > 0 {
		e := s.queue[0]
		s.queue[0] = Entry{}
		s.queue = s.queue[1:]
		delete(s.queued, e.ID)
		if _, ok := s.visited[e.ID]; ok {
			continue
		}
		s.visited[e.ID] = struct{}{}
		return e, true
	}
	return Entry{}, false
}

// Len is the number of entries waiting in the frontier.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// VisitedCount is the size of the visited set.
func (s *State) VisitedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visited)
}

// Drain empties the frontier and returns what was left in FIFO order.
func (s *State) Drain() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.queue
	s.queue = nil
	for _, e := range out {
		delete(s.queued, e.ID)
	}
	return out
}
