package feedquality

import (
	"sync"

	"go.uber.org/zap"

	"github.com/tcollier/threatgate/internal/observability"
)

// Breaker flags feeds whose composite score stays below the quality
// floor for a run of consecutive evaluations. A flagged feed keeps
// flowing; downstream weighting handles the demotion.
type Breaker struct {
	floor   float64
	strikes int
	logger  *zap.Logger
	metrics *observability.Metrics

	mu    sync.Mutex
	state map[string]*feedState
}

type feedState struct {
	strikes int
	open    bool
}

// NewBreaker builds a Breaker with the given floor and strike count.
func NewBreaker(floor float64, strikes int, metrics *observability.Metrics, logger *zap.Logger) *Breaker {
	return &Breaker{
		floor:   floor,
		strikes: strikes,
		logger:  logger.Named("feedquality"),
		metrics: metrics,
		state:   make(map[string]*feedState),
	}
}

// Observe records one evaluation for the feed and returns whether the
// breaker is open afterwards. A single healthy score closes the breaker
// and resets the strike count.
func (b *Breaker) Observe(feed string, score float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.state[feed]
	if !ok {
		st = &feedState{}
		b.state[feed] = st
	}

	b.metrics.FeedQuality.WithLabelValues(feed).Set(score)

	if score >= b.floor {
		if st.open {
			b.logger.Info("feed quality recovered, closing breaker",
				zap.String("feed", feed),
				zap.Float64("score", score))
		}
		st.strikes = 0
		st.open = false
		b.metrics.FeedBreakerOpen.WithLabelValues(feed).Set(0)
		return false
	}

	st.strikes++
	if !st.open && st.strikes >= b.strikes {
		st.open = true
		b.logger.Warn("feed quality below floor, opening breaker",
			zap.String("feed", feed),
			zap.Float64("score", score),
			zap.Float64("floor", b.floor),
			zap.Int("strikes", st.strikes))
	}
	if st.open {
		b.metrics.FeedBreakerOpen.WithLabelValues(feed).Set(1)
	}
	return st.open
}

// Open reports the breaker state without recording an evaluation.
func (b *Breaker) Open(feed string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.state[feed]
	return ok && st.open
}
