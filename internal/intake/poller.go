package intake

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tcollier/threatgate/internal/config"
	"github.com/tcollier/threatgate/internal/model"
	"github.com/tcollier/threatgate/internal/normalization"
	"github.com/tcollier/threatgate/internal/pipeline"
)

// Sink accepts fetched batches for processing. The pipeline implements
// it.
type Sink interface {
	ProcessFeed(ctx context.Context, feed model.FeedSource, entries []normalization.RawEntry, sample model.FeedHealthSample) (pipeline.Result, error)
}

// Poller fetches every configured feed on a fixed interval and hands
// the batches to the sink. Failed fetches still deliver their health
// sample so quality scoring sees them.
type Poller struct {
	cfg     config.IntakeConfig
	feeds   []model.FeedSource
	fetcher map[string]*Fetcher
	sink    Sink
	logger  *zap.Logger
}

// NewPoller builds a Poller over the configured feeds.
func NewPoller(cfg config.IntakeConfig, feeds []model.FeedSource, sink Sink, logger *zap.Logger) *Poller {
	fetchers := make(map[string]*Fetcher, len(feeds))
	for _, feed := range feeds {
		fetchers[feed.Name] = NewFetcher(cfg, ParserFor(feed), logger)
	}
	return &Poller{
		cfg:     cfg,
		feeds:   feeds,
		fetcher: fetchers,
		sink:    sink,
		logger:  logger.Named("intake"),
	}
}

// Run polls until the context is cancelled. The first cycle starts
// immediately.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

func (p *Poller) cycle(ctx context.Context) {
	for _, feed := range p.feeds {
		entries, sample, err := p.fetcher[feed.Name].Fetch(ctx, feed)
		if err != nil {
			p.logger.Warn("poll fetch failed", zap.String("feed", feed.Name), zap.Error(err))
		}
		if _, err := p.sink.ProcessFeed(ctx, feed, entries, sample); err != nil {
			p.logger.Error("poll processing failed", zap.String("feed", feed.Name), zap.Error(err))
		}
	}
}
