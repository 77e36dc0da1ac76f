package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/qa-archiver/internal/crawler"
)

// ItemStore is an in-memory item table. It lives for one process.
type ItemStore struct {
	mu    sync.RWMutex
	items map[crawler.ItemID]crawler.Item
}

// NewItemStore constructs an empty ItemStore.
func NewItemStore() *ItemStore {
	return &ItemStore{items: make(map[crawler.ItemID]crawler.Item)}
}

// Get returns the row for id or crawler.ErrNotFound.
func (s *ItemStore) Get(_ context.Context, id crawler.ItemID) (crawler.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return crawler.Item{}, fmt.Errorf("item %s: %w", id, crawler.ErrNotFound)
	}
	return cloneItem(item), nil
}

// Put inserts or replaces the row for item.ID.
func (s *ItemStore) Put(_ context.Context, item crawler.Item) error {
	if err := item.ID.Validate(); err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = cloneItem(item)
	return nil
}

// List returns every row ordered by kind then key.
func (s *ItemStore) List(_ context.Context) ([]crawler.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Item, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, cloneItem(item))
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].ID, out[j].ID
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Key < b.Key
	})
	return out, nil
}

// cloneItem copies the mutable slices. Documents are immutable once built and
// are shared.
func cloneItem(item crawler.Item) crawler.Item {
	if item.RawPayload != nil {
		item.RawPayload = append([]byte(nil), item.RawPayload...)
	}
	if item.References != nil {
		item.References = append([]crawler.ItemID(nil), item.References...)
	}
	return item
}
