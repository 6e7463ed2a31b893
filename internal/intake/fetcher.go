// Package intake fetches configured feeds and records a health sample
// for every attempt. Parsing is a collaborator concern: the fetcher
// hands raw bodies to a ParseFunc and measures what comes back.
package intake

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tcollier/threatgate/internal/config"
	"github.com/tcollier/threatgate/internal/model"
	"github.com/tcollier/threatgate/internal/normalization"
)

// securityKeywords drive the relevance signal on health samples. An
// entry counts as relevant when title or summary mentions any of them.
var securityKeywords = []string{
	"vulnerability", "exploit", "cve-", "patch", "advisory",
	"ransomware", "malware", "zero-day", "0-day", "backdoor",
	"remote code execution", "privilege escalation", "security update",
}

// ParseFunc turns a fetched body into raw entries. Feed formats vary;
// the caller supplies the parser that matches the feed.
type ParseFunc func(feed model.FeedSource, body []byte) ([]normalization.RawEntry, error)

// FetcherStats tracks cumulative fetch activity.
type FetcherStats struct {
	Fetches       int64
	Failures      int64
	EntriesParsed int64
	LastFetchAt   time.Time
}

// Fetcher pulls feed bodies over HTTP.
type Fetcher struct {
	cfg    config.IntakeConfig
	client *http.Client
	parse  ParseFunc
	logger *zap.Logger

	mu    sync.RWMutex
	stats FetcherStats

	now func() time.Time
}

// NewFetcher builds a Fetcher with the configured timeout.
func NewFetcher(cfg config.IntakeConfig, parse ParseFunc, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.FetchTimeout},
		parse:  parse,
		logger: logger.Named("intake"),
		now:    time.Now,
	}
}

// Fetch pulls one feed and always returns a health sample, even when
// the fetch or parse fails. Entries are nil on failure.
func (f *Fetcher) Fetch(ctx context.Context, feed model.FeedSource) ([]normalization.RawEntry, model.FeedHealthSample, error) {
	start := f.now()
	sample := model.FeedHealthSample{
		FeedName:   feed.Name,
		FetchedUTC: start.UTC(),
	}

	f.mu.Lock()
	f.stats.Fetches++
	f.stats.LastFetchAt = start
	f.mu.Unlock()

	body, status, err := f.get(ctx, feed.URL)
	sample.HTTPStatus = status
	sample.ResponseTime = f.now().Sub(start)
	if err != nil {
		f.recordFailure(feed.Name, err)
		return nil, sample, err
	}

	entries, err := f.parse(feed, body)
	if err != nil {
		sample.ParseOK = false
		f.recordFailure(feed.Name, err)
		return nil, sample, fmt.Errorf("parsing feed %s: %w", feed.Name, err)
	}
	sample.ParseOK = true
	sample.ItemCount = len(entries)
	sample.KeywordDensity, sample.CVEYield = relevanceSignal(entries)

	f.mu.Lock()
	f.stats.EntriesParsed += int64(len(entries))
	f.mu.Unlock()

	f.logger.Debug("feed fetched",
		zap.String("feed", feed.Name),
		zap.Int("entries", len(entries)),
		zap.Duration("elapsed", sample.ResponseTime))
	return entries, sample, nil
}

// Stats returns a snapshot of cumulative fetch activity.
func (f *Fetcher) Stats() FetcherStats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.stats
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", "threatgate/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetching feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("feed returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading feed body: %w", err)
	}
	return body, resp.StatusCode, nil
}

func (f *Fetcher) recordFailure(feed string, err error) {
	f.mu.Lock()
	f.stats.Failures++
	f.mu.Unlock()
	f.logger.Warn("feed fetch failed", zap.String("feed", feed), zap.Error(err))
}

// relevanceSignal measures the fraction of entries mentioning security
// keywords and the average CVE count per entry.
func relevanceSignal(entries []normalization.RawEntry) (density, cveYield float64) {
	if len(entries) == 0 {
		return 0, 0
	}
	relevant := 0
	cves := 0
	for _, e := range entries {
		text := strings.ToLower(e.Title + " " + e.Summary)
		for _, kw := range securityKeywords {
			if strings.Contains(text, kw) {
				relevant++
				break
			}
		}
		cves += len(normalization.ExtractCVEs(e.Title + " " + e.Summary))
	}
	n := float64(len(entries))
	return float64(relevant) / n, float64(cves) / n
}
