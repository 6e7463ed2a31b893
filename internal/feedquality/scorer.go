// Package feedquality scores intake feeds from their fetch history.
// Each feed gets a composite score in [0,100] built from accessibility,
// relevance, timeliness and uniqueness sub-scores over a rolling window.
// A circuit breaker flags feeds that stay below the quality floor.
package feedquality

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/tcollier/threatgate/internal/model"
)

const (
	weightAccessibility = 0.25
	weightRelevance     = 0.30
	weightTimeliness    = 0.25
	weightUniqueness    = 0.20

	scoringWindow = 7 * 24 * time.Hour
)

// QualityScore is the composite verdict for one feed.
type QualityScore struct {
	Overall       float64 `json:"overall"`
	Accessibility float64 `json:"accessibility"`
	Relevance     float64 `json:"relevance"`
	Timeliness    float64 `json:"timeliness"`
	Uniqueness    float64 `json:"uniqueness"`
	SampleCount   int     `json:"sample_count"`
}

// Scorer computes feed quality from health samples.
type Scorer struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewScorer builds a Scorer.
func NewScorer(logger *zap.Logger) *Scorer {
	return &Scorer{
		logger: logger.Named("feedquality"),
		now:    time.Now,
	}
}

// Score evaluates the samples that fall inside the rolling window. A
// feed with no recent samples scores zero across the board.
func (s *Scorer) Score(samples []model.FeedHealthSample) QualityScore {
	cutoff := s.now().Add(-scoringWindow)
	recent := make([]model.FeedHealthSample, 0, len(samples))
	for _, smp := range samples {
		if smp.FetchedUTC.After(cutoff) {
			recent = append(recent, smp)
		}
	}
	if len(recent) == 0 {
		return QualityScore{}
	}
	sort.Slice(recent, func(i, j int) bool {
		return recent[i].FetchedUTC.Before(recent[j].FetchedUTC)
	})

	score := QualityScore{
		Accessibility: accessibility(recent),
		Relevance:     relevance(recent),
		Timeliness:    s.timeliness(recent),
		Uniqueness:    uniqueness(recent),
		SampleCount:   len(recent),
	}
	score.Overall = clamp(weightAccessibility*score.Accessibility +
		weightRelevance*score.Relevance +
		weightTimeliness*score.Timeliness +
		weightUniqueness*score.Uniqueness)
	return score
}

// accessibility rewards successful fetches and clean parses, with a
// penalty for slow p95 response times.
func accessibility(samples []model.FeedHealthSample) float64 {
	var ok, parsed int
	latencies := make([]time.Duration, 0, len(samples))
	for _, s := range samples {
		if !s.Failed() {
			ok++
			if s.ParseOK {
				parsed++
			}
			latencies = append(latencies, s.ResponseTime)
		}
	}
	if ok == 0 {
		return 0
	}
	successRate := float64(ok) / float64(len(samples))
	parseRate := float64(parsed) / float64(ok)
	score := successRate*70 + parseRate*30

	switch p95 := percentile(latencies, 0.95); {
	case p95 > 10*time.Second:
		score -= 20
	case p95 > 5*time.Second:
		score -= 10
	}
	return clamp(score)
}

// relevance blends security-keyword density with CVE yield.
func relevance(samples []model.FeedHealthSample) float64 {
	var density, yield float64
	n := 0
	for _, s := range samples {
		if s.ItemCount == 0 {
			continue
		}
		density += s.KeywordDensity
		yield += s.CVEYield
		n++
	}
	if n == 0 {
		return 0
	}
	density /= float64(n)
	yield /= float64(n)
	if yield > 1 {
		yield = 1
	}
	return clamp(density*60 + yield*40)
}

// timeliness grades publishing cadence: daily 100, weekly 80, monthly
// 60, irregular 20. A feed whose newest content is older than 30 days
// is stale and scores zero.
func (s *Scorer) timeliness(samples []model.FeedHealthSample) float64 {
	var productive []time.Time
	for _, smp := range samples {
		if !smp.Failed() && smp.ItemCount > 0 {
			productive = append(productive, smp.FetchedUTC)
		}
	}
	if len(productive) == 0 {
		return 0
	}
	newest := productive[len(productive)-1]
	if s.now().Sub(newest) > 30*24*time.Hour {
		return 0
	}
	if len(productive) == 1 {
		return cadenceScore(s.now().Sub(newest))
	}
	gaps := make([]time.Duration, 0, len(productive)-1)
	for i := 1; i < len(productive); i++ {
		gaps = append(gaps, productive[i].Sub(productive[i-1]))
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })
	return cadenceScore(gaps[len(gaps)/2])
}

func cadenceScore(gap time.Duration) float64 {
	switch {
	case gap <= 24*time.Hour:
		return 100
	case gap <= 7*24*time.Hour:
		return 80
	case gap <= 30*24*time.Hour:
		return 60
	default:
		return 20
	}
}

// uniqueness is the inverse of the mean duplicate rate.
func uniqueness(samples []model.FeedHealthSample) float64 {
	var dup float64
	n := 0
	for _, s := range samples {
		if s.ItemCount == 0 {
			continue
		}
		dup += s.DuplicateRate
		n++
	}
	if n == 0 {
		return 0
	}
	return clamp((1 - dup/float64(n)) * 100)
}

func percentile(d []time.Duration, p float64) time.Duration {
	if len(d) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(d))
	copy(sorted, d)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
