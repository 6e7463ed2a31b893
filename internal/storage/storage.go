// Package storage persists the engine's working set: threat items by
// dedupe key, the append-only decision log, and feed health samples.
package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/tcollier/threatgate/internal/model"
)

// ErrNotFound is returned when a lookup misses.
var ErrNotFound = errors.New("not found")

// Store is the persistence boundary. Decisions are append-only:
// re-evaluating an item appends a new record rather than editing the
// old one.
type Store interface {
	PutItem(ctx context.Context, item *model.ThreatItem) error
	GetItem(ctx context.Context, dedupeKey string) (*model.ThreatItem, error)
	ListItems(ctx context.Context) ([]*model.ThreatItem, error)

	AppendDecision(ctx context.Context, decision model.RoutingDecision) error
	ListDecisions(ctx context.Context, limit int) ([]model.RoutingDecision, error)
	DecisionsForItem(ctx context.Context, itemID string) ([]model.RoutingDecision, error)

	AppendHealthSample(ctx context.Context, sample model.FeedHealthSample) error
	HealthSamples(ctx context.Context, feedName string) ([]model.FeedHealthSample, error)
}

// MemoryStore is the in-process Store.
type MemoryStore struct {
	mu        sync.RWMutex
	items     map[string]*model.ThreatItem
	decisions []model.RoutingDecision
	samples   map[string][]model.FeedHealthSample
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:   make(map[string]*model.ThreatItem),
		samples: make(map[string][]model.FeedHealthSample),
	}
}

func (s *MemoryStore) PutItem(_ context.Context, item *model.ThreatItem) error {
	if item.DedupeKey == "" {
		return errors.New("item has no dedupe key")
	}
	s.mu.Lock()
	s.items[item.DedupeKey] = item
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetItem(_ context.Context, dedupeKey string) (*model.ThreatItem, error) {
	s.mu.RLock()
	item, ok := s.items[dedupeKey]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return item, nil
}

func (s *MemoryStore) ListItems(_ context.Context) ([]*model.ThreatItem, error) {
	s.mu.RLock()
	out := make([]*model.ThreatItem, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].CollectedUTC.After(out[j].CollectedUTC)
	})
	return out, nil
}

func (s *MemoryStore) AppendDecision(_ context.Context, decision model.RoutingDecision) error {
	s.mu.Lock()
	s.decisions = append(s.decisions, decision)
	s.mu.Unlock()
	return nil
}

// ListDecisions returns the newest decisions first, up to limit.
// limit <= 0 means no limit.
func (s *MemoryStore) ListDecisions(_ context.Context, limit int) ([]model.RoutingDecision, error) {
	s.mu.RLock()
	out := make([]model.RoutingDecision, len(s.decisions))
	copy(out, s.decisions)
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].DecidedUTC.After(out[j].DecidedUTC)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) DecisionsForItem(_ context.Context, itemID string) ([]model.RoutingDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.RoutingDecision
	for _, d := range s.decisions {
		if d.ItemID == itemID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *MemoryStore) AppendHealthSample(_ context.Context, sample model.FeedHealthSample) error {
	s.mu.Lock()
	s.samples[sample.FeedName] = append(s.samples[sample.FeedName], sample)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) HealthSamples(_ context.Context, feedName string) ([]model.FeedHealthSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.samples[feedName]
	out := make([]model.FeedHealthSample, len(src))
	copy(out, src)
	return out, nil
}
