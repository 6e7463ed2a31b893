// Package pipeline drives items from feed entry to routing decision:
// normalize, dedupe, enrich, verify, route, persist. Items from one
// fetch are processed with bounded parallelism.
package pipeline

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tcollier/threatgate/internal/config"
	"github.com/tcollier/threatgate/internal/enrichment"
	"github.com/tcollier/threatgate/internal/feedquality"
	"github.com/tcollier/threatgate/internal/model"
	"github.com/tcollier/threatgate/internal/normalization"
	"github.com/tcollier/threatgate/internal/observability"
	"github.com/tcollier/threatgate/internal/routing"
	"github.com/tcollier/threatgate/internal/storage"
	"github.com/tcollier/threatgate/internal/verification"
)

// lowQualityWeight discounts items from feeds whose circuit breaker is
// open. Flagged feeds keep flowing, their items just carry less weight.
const lowQualityWeight = 0.5

// Pipeline wires the processing stages together.
type Pipeline struct {
	cfg        config.PipelineConfig
	normalizer *normalization.Normalizer
	deduper    *normalization.Deduper
	enricher   *enrichment.Merger
	verifier   *verification.Verifier
	engine     *routing.Engine
	store      storage.Store
	scorer     *feedquality.Scorer
	breaker    *feedquality.Breaker
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// Deps collects the pipeline's collaborators.
type Deps struct {
	Normalizer *normalization.Normalizer
	Deduper    *normalization.Deduper
	Enricher   *enrichment.Merger
	Verifier   *verification.Verifier
	Engine     *routing.Engine
	Store      storage.Store
	Scorer     *feedquality.Scorer
	Breaker    *feedquality.Breaker
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// Result summarizes one batch run.
type Result struct {
	Decisions []model.RoutingDecision `json:"decisions"`
	Dropped   int                     `json:"dropped"`
	Merged    int                     `json:"merged"`
}

// New builds a Pipeline.
func New(cfg config.PipelineConfig, deps Deps) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		normalizer: deps.Normalizer,
		deduper:    deps.Deduper,
		enricher:   deps.Enricher,
		verifier:   deps.Verifier,
		engine:     deps.Engine,
		store:      deps.Store,
		scorer:     deps.Scorer,
		breaker:    deps.Breaker,
		metrics:    deps.Metrics,
		logger:     deps.Logger.Named("pipeline"),
	}
}

// ProcessFeed runs one fetched batch through the full pipeline and then
// refreshes the feed's quality score. The health sample gains its
// duplicate rate here, after dedupe has seen the batch.
func (p *Pipeline) ProcessFeed(ctx context.Context, feed model.FeedSource, entries []normalization.RawEntry, sample model.FeedHealthSample) (Result, error) {
	meta := normalization.FeedMetadata{
		Name:       feed.Name,
		URL:        feed.URL,
		SourceType: feed.SourceType,
	}
	breakerOpen := p.breaker.Open(feed.Name)

	var result Result

	// Normalization and dedupe are cheap and in-memory; run them
	// serially so each unique item is processed exactly once below.
	winners := make(map[string]*model.ThreatItem)
	for _, entry := range entries {
		item, drop := p.normalizer.Normalize(entry, meta)
		if drop != nil {
			p.metrics.ItemsDropped.WithLabelValues(string(drop.Reason)).Inc()
			result.Dropped++
			continue
		}
		p.metrics.ItemsNormalized.Inc()
		if breakerOpen {
			item.QualityScore *= lowQualityWeight
		}

		winner, wasMerge := p.deduper.Resolve(item)
		if wasMerge {
			p.metrics.ItemsMerged.Inc()
			result.Merged++
		}
		winners[winner.DedupeKey] = winner
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())
	for _, item := range winners {
		item := item
		g.Go(func() error {
			decision, err := p.processItem(gctx, item)
			if err != nil {
				return err
			}
			mu.Lock()
			result.Decisions = append(result.Decisions, decision)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	if sample.ItemCount > 0 {
		sample.DuplicateRate = float64(result.Merged) / float64(sample.ItemCount)
	}
	if err := p.store.AppendHealthSample(ctx, sample); err != nil {
		p.logger.Warn("storing health sample failed", zap.String("feed", feed.Name), zap.Error(err))
	}
	p.refreshFeedQuality(ctx, feed.Name)

	p.logger.Info("feed batch processed",
		zap.String("feed", feed.Name),
		zap.Int("entries", len(entries)),
		zap.Int("decisions", len(result.Decisions)),
		zap.Int("dropped", result.Dropped),
		zap.Int("merged", result.Merged))
	return result, nil
}

// ProcessItem runs a single already-normalized item through enrichment,
// verification and routing, persisting the item and its decision.
func (p *Pipeline) ProcessItem(ctx context.Context, item *model.ThreatItem) (model.RoutingDecision, error) {
	return p.processItem(ctx, item)
}

func (p *Pipeline) processItem(ctx context.Context, item *model.ThreatItem) (model.RoutingDecision, error) {
	item = p.enricher.Enrich(ctx, item)

	verdict, err := p.verifier.Verify(ctx, item)
	if err != nil && !errors.Is(err, verification.ErrDisabled) {
		return model.RoutingDecision{}, err
	}
	item.Verification = verdict

	decision := p.engine.Decide(item, verdict)
	item.RiskScore = decision.RiskScore
	item.AdjustedRiskScore = decision.AdjustedRiskScore

	if err := p.store.PutItem(ctx, item); err != nil {
		p.logger.Warn("storing item failed", zap.String("item_id", item.ID), zap.Error(err))
	}
	if err := p.store.AppendDecision(ctx, decision); err != nil {
		return decision, err
	}
	return decision, nil
}

// refreshFeedQuality rescores the feed from its stored samples and
// feeds the result to the circuit breaker.
func (p *Pipeline) refreshFeedQuality(ctx context.Context, feedName string) {
	samples, err := p.store.HealthSamples(ctx, feedName)
	if err != nil {
		p.logger.Warn("loading health samples failed", zap.String("feed", feedName), zap.Error(err))
		return
	}
	score := p.scorer.Score(samples)
	p.breaker.Observe(feedName, score.Overall)
}

func (p *Pipeline) workers() int {
	if p.cfg.Workers < 1 {
		return 1
	}
	return p.cfg.Workers
}
