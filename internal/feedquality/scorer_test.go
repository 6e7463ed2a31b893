package feedquality

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tcollier/threatgate/internal/model"
	"github.com/tcollier/threatgate/internal/observability"
)

var anchor = time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

func newTestScorer() *Scorer {
	s := NewScorer(zap.NewNop())
	s.now = func() time.Time { return anchor }
	return s
}

// healthySamples builds a window of daily, fast, unique, relevant
// fetches ending at the anchor time.
func healthySamples(n int) []model.FeedHealthSample {
	samples := make([]model.FeedHealthSample, 0, n)
	for i := 0; i < n; i++ {
		samples = append(samples, model.FeedHealthSample{
			FeedName:       "vendor-a",
			FetchedUTC:     anchor.Add(-time.Duration(n-1-i) * 24 * time.Hour),
			HTTPStatus:     200,
			ResponseTime:   300 * time.Millisecond,
			ParseOK:        true,
			ItemCount:      12,
			KeywordDensity: 0.9,
			CVEYield:       0.8,
			DuplicateRate:  0.1,
		})
	}
	return samples
}

// ===== bounds =====

func TestScoreStaysInBounds(t *testing.T) {
	s := newTestScorer()

	cases := map[string][]model.FeedHealthSample{
		"empty":   nil,
		"healthy": healthySamples(7),
		"all failures": {
			{FetchedUTC: anchor, HTTPStatus: 500},
			{FetchedUTC: anchor.Add(-time.Hour), HTTPStatus: 0},
		},
		"perfect": {
			{FetchedUTC: anchor, HTTPStatus: 200, ResponseTime: time.Millisecond,
				ParseOK: true, ItemCount: 10, KeywordDensity: 1, CVEYield: 2, DuplicateRate: 0},
		},
	}
	for name, samples := range cases {
		got := s.Score(samples)
		for _, v := range []float64{got.Overall, got.Accessibility, got.Relevance, got.Timeliness, got.Uniqueness} {
			if v < 0 || v > 100 {
				t.Errorf("%s: sub-score %v out of [0,100]", name, v)
			}
		}
	}
}

func TestScoreEmptyWindowIsZero(t *testing.T) {
	s := newTestScorer()
	old := []model.FeedHealthSample{
		{FetchedUTC: anchor.Add(-8 * 24 * time.Hour), HTTPStatus: 200, ParseOK: true, ItemCount: 5},
	}
	if got := s.Score(old); got.Overall != 0 || got.SampleCount != 0 {
		t.Errorf("samples outside the window must not count, got %+v", got)
	}
}

// ===== degradation is monotone =====

func TestErrorsLowerTheScore(t *testing.T) {
	s := newTestScorer()
	healthy := s.Score(healthySamples(7))

	degraded := healthySamples(7)
	for i := 0; i < 3; i++ {
		degraded[i].HTTPStatus = 503
		degraded[i].ParseOK = false
		degraded[i].ItemCount = 0
	}
	got := s.Score(degraded)
	if got.Overall >= healthy.Overall {
		t.Errorf("error-laden window scored %v, want below %v", got.Overall, healthy.Overall)
	}
	if got.Accessibility >= healthy.Accessibility {
		t.Errorf("accessibility %v, want below %v", got.Accessibility, healthy.Accessibility)
	}
}

func TestDuplicatesLowerTheScore(t *testing.T) {
	s := newTestScorer()
	healthy := s.Score(healthySamples(7))

	dupes := healthySamples(7)
	for i := range dupes {
		dupes[i].DuplicateRate = 0.9
	}
	got := s.Score(dupes)
	if got.Overall >= healthy.Overall {
		t.Errorf("duplicate-heavy window scored %v, want below %v", got.Overall, healthy.Overall)
	}
	if got.Uniqueness >= healthy.Uniqueness {
		t.Errorf("uniqueness %v, want below %v", got.Uniqueness, healthy.Uniqueness)
	}
}

func TestSlowResponsesLowerAccessibility(t *testing.T) {
	s := newTestScorer()
	healthy := s.Score(healthySamples(7))

	slow := healthySamples(7)
	for i := range slow {
		slow[i].ResponseTime = 12 * time.Second
	}
	if got := s.Score(slow); got.Accessibility >= healthy.Accessibility {
		t.Errorf("slow window accessibility %v, want below %v", got.Accessibility, healthy.Accessibility)
	}
}

// ===== cadence ladder =====

func TestTimelinessCadenceLadder(t *testing.T) {
	s := newTestScorer()

	daily := s.Score(healthySamples(7))
	if daily.Timeliness != 100 {
		t.Errorf("daily cadence timeliness = %v, want 100", daily.Timeliness)
	}

	weekly := []model.FeedHealthSample{
		{FetchedUTC: anchor.Add(-6 * 24 * time.Hour), HTTPStatus: 200, ParseOK: true, ItemCount: 3},
		{FetchedUTC: anchor, HTTPStatus: 200, ParseOK: true, ItemCount: 3},
	}
	if got := s.Score(weekly); got.Timeliness != 80 {
		t.Errorf("weekly cadence timeliness = %v, want 80", got.Timeliness)
	}
}

// ===== circuit breaker =====

func TestBreakerOpensAfterThreeStrikes(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	b := NewBreaker(40, 3, metrics, zap.NewNop())

	if b.Observe("feed-x", 30) {
		t.Fatal("breaker open after one strike")
	}
	if b.Observe("feed-x", 35) {
		t.Fatal("breaker open after two strikes")
	}
	if !b.Observe("feed-x", 20) {
		t.Fatal("breaker still closed after three strikes")
	}
	if !b.Open("feed-x") {
		t.Fatal("Open disagrees with Observe")
	}
}

func TestBreakerResetsOnHealthyScore(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	b := NewBreaker(40, 3, metrics, zap.NewNop())

	b.Observe("feed-x", 30)
	b.Observe("feed-x", 30)
	b.Observe("feed-x", 65)
	if b.Observe("feed-x", 30) {
		t.Fatal("healthy score must reset the strike count")
	}
	if b.Open("feed-x") {
		t.Fatal("breaker open")
	}
}

func TestBreakerTracksFeedsIndependently(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	b := NewBreaker(40, 3, metrics, zap.NewNop())

	for i := 0; i < 3; i++ {
		b.Observe("bad-feed", 10)
		b.Observe("good-feed", 90)
	}
	if !b.Open("bad-feed") {
		t.Fatal("bad-feed breaker closed")
	}
	if b.Open("good-feed") {
		t.Fatal("good-feed breaker open")
	}
}
