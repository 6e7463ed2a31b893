// Package normalization parses raw advisory entries into canonical
// ThreatItem records: CVE extraction, Admiralty grading, validation, and
// stable deduplication keys.
package normalization

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tcollier/threatgate/internal/model"
)

// cvePattern matches CVE identifiers in advisory text.
var cvePattern = regexp.MustCompile(`(?i)CVE-\d{4}-\d{4,7}`)

const (
	minTitleLen      = 10
	maxTitleLen      = 500
	maxSummaryLen    = 500
	maxExcerptLen    = 150
	maxFuturePublish = 24 * time.Hour
)

// RawEntry is one parsed feed entry as supplied by the intake collaborator.
// Feed document parsing itself happens upstream.
type RawEntry struct {
	Title        string    `json:"title"`
	Summary      string    `json:"summary"`
	Link         string    `json:"link"`
	PublishedUTC time.Time `json:"published_utc"`
}

// FeedMetadata describes the feed an entry arrived on.
type FeedMetadata struct {
	Name       string           `json:"name"`
	URL        string           `json:"url"`
	SourceType model.SourceType `json:"source_type"`
}

// DropReason explains why an entry never became a routable ThreatItem.
type DropReason string

const (
	DropMissingSourceURL  DropReason = "missing_source_url"
	DropLowReliability    DropReason = "reliability_e_or_f"
	DropLowCredibility    DropReason = "credibility_5_or_6"
	DropTitleOutOfRange   DropReason = "title_out_of_range"
	DropFuturePublishDate DropReason = "published_in_future"
)

// Drop records an auto-dropped entry with its reason. Drops are logged,
// never silently discarded.
type Drop struct {
	Reason DropReason `json:"reason"`
	Title  string     `json:"title"`
	Source string     `json:"source"`
}

// Normalizer converts raw entries into ThreatItem records.
type Normalizer struct {
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Normalizer.
func New(logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{logger: logger, now: time.Now}
}

// Normalize converts one raw entry into a ThreatItem, or returns a Drop
// when the entry fails the credibility floor or field validation.
// Exactly one of the return values is non-nil.
func (n *Normalizer) Normalize(raw RawEntry, feed FeedMetadata) (*model.ThreatItem, *Drop) {
	title := strings.TrimSpace(raw.Title)
	if len(title) < minTitleLen || len(title) > maxTitleLen {
		return nil, n.drop(DropTitleOutOfRange, title, feed.Name)
	}

	if raw.Link == "" {
		return nil, n.drop(DropMissingSourceURL, title, feed.Name)
	}

	now := n.now().UTC()
	published := raw.PublishedUTC.UTC()
	if published.After(now.Add(maxFuturePublish)) {
		return nil, n.drop(DropFuturePublishDate, title, feed.Name)
	}
	if published.IsZero() {
		published = now
	}

	summary := strings.TrimSpace(raw.Summary)
	if len(summary) > maxSummaryLen {
		summary = summary[:maxSummaryLen]
	}

	grade := gradeSource(feed, raw.Link, summary)
	if grade.Reliability == model.ReliabilityE || grade.Reliability == model.ReliabilityF {
		return nil, n.drop(DropLowReliability, title, feed.Name)
	}
	if grade.Credibility >= 5 {
		return nil, n.drop(DropLowCredibility, title, feed.Name)
	}

	cves := ExtractCVEs(title + " " + summary)

	excerpt := summary
	if len(excerpt) > maxExcerptLen {
		excerpt = excerpt[:maxExcerptLen]
	}

	item := &model.ThreatItem{
		ID:                uuid.NewString(),
		SourceType:        feed.SourceType,
		SourceName:        feed.Name,
		SourceNames:       []string{feed.Name},
		SourceURL:         raw.Link,
		Title:             title,
		Summary:           summary,
		PublishedUTC:      published,
		CollectedUTC:      now,
		CVEs:              cves,
		EvidenceExcerpt:   excerpt,
		AffectedProducts:  ExtractProducts(title + " " + summary),
		SourceReliability: grade.Reliability,
		InfoCredibility:   grade.Credibility,
		AdmiraltyReason:   grade.Reason,
	}
	item.DedupeKey = DedupeKey(title, cves, published)
	item.QualityScore = PartialQuality(item, now)

	return item, nil
}

func (n *Normalizer) drop(reason DropReason, title, source string) *Drop {
	n.logger.Info("entry dropped at normalization",
		zap.String("reason", string(reason)),
		zap.String("title", title),
		zap.String("source", source),
	)
	return &Drop{Reason: reason, Title: title, Source: source}
}

// ExtractCVEs returns the unique, uppercased CVE identifiers in text,
// sorted for stable ordering.
func ExtractCVEs(text string) []string {
	seen := make(map[string]bool)
	var cves []string
	for _, m := range cvePattern.FindAllString(text, -1) {
		cve := strings.ToUpper(m)
		if !seen[cve] {
			seen[cve] = true
			cves = append(cves, cve)
		}
	}
	sort.Strings(cves)
	return cves
}

// PartialQuality computes the normalization-stage quality score from
// freshness and source reliability only. Feed-level quality applies later.
func PartialQuality(item *model.ThreatItem, now time.Time) float64 {
	var reliability float64
	switch item.SourceReliability {
	case model.ReliabilityA:
		reliability = 50
	case model.ReliabilityB:
		reliability = 40
	case model.ReliabilityC:
		reliability = 30
	case model.ReliabilityD:
		reliability = 20
	default:
		reliability = 0
	}

	age := now.Sub(item.PublishedUTC)
	var freshness float64
	switch {
	case age < 24*time.Hour:
		freshness = 50
	case age < 7*24*time.Hour:
		freshness = 40
	case age < 30*24*time.Hour:
		freshness = 25
	default:
		freshness = 10
	}

	return reliability + freshness
}
