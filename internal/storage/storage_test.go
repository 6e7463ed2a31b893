package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tcollier/threatgate/internal/model"
)

func TestItemRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	item := &model.ThreatItem{ID: "a", DedupeKey: "key-1", Title: "first"}
	if err := s.PutItem(ctx, item); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetItem(ctx, "key-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "first" {
		t.Errorf("title = %q", got.Title)
	}

	if _, err := s.GetItem(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestPutItemRequiresDedupeKey(t *testing.T) {
	s := NewMemoryStore()
	if err := s.PutItem(context.Background(), &model.ThreatItem{ID: "a"}); err == nil {
		t.Fatal("want error for missing dedupe key")
	}
}

func TestDecisionsAreAppendOnlyAndNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		err := s.AppendDecision(ctx, model.RoutingDecision{
			ID:         string(rune('a' + i)),
			ItemID:     "item-1",
			DecidedUTC: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.ListDecisions(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	if all[0].ID != "c" || all[2].ID != "a" {
		t.Errorf("decisions not newest-first: %v", all)
	}

	limited, _ := s.ListDecisions(ctx, 2)
	if len(limited) != 2 {
		t.Errorf("limit ignored, len = %d", len(limited))
	}

	mine, _ := s.DecisionsForItem(ctx, "item-1")
	if len(mine) != 3 {
		t.Errorf("DecisionsForItem len = %d, want 3", len(mine))
	}
}

func TestHealthSamplesPerFeed(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.AppendHealthSample(ctx, model.FeedHealthSample{FeedName: "a", HTTPStatus: 200})
	s.AppendHealthSample(ctx, model.FeedHealthSample{FeedName: "a", HTTPStatus: 500})
	s.AppendHealthSample(ctx, model.FeedHealthSample{FeedName: "b", HTTPStatus: 200})

	got, err := s.HealthSamples(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("feed a samples = %d, want 2", len(got))
	}

	// Returned slice is a copy; mutating it must not touch the store.
	got[0].HTTPStatus = 999
	again, _ := s.HealthSamples(ctx, "a")
	if again[0].HTTPStatus != 200 {
		t.Error("HealthSamples leaked internal state")
	}
}
