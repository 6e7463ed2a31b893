package model

import "time"

// FeedSource is a configured intake channel.
type FeedSource struct {
	Name        string      `yaml:"name" json:"name"`
	URL         string      `yaml:"url" json:"url"`
	SourceType  SourceType  `yaml:"source_type" json:"source_type"`
	Priority    int         `yaml:"priority" json:"priority"`
	Reliability Reliability `yaml:"reliability" json:"reliability"`
}

// FeedHealthSample records one fetch attempt against a feed. The quality
// scorer consumes a rolling window of these.
type FeedHealthSample struct {
	FeedName     string        `json:"feed_name"`
	FetchedUTC   time.Time     `json:"fetched_utc"`
	HTTPStatus   int           `json:"http_status"`
	ResponseTime time.Duration `json:"response_time"`
	ParseOK      bool          `json:"parse_ok"`
	ItemCount    int           `json:"item_count"`
	// KeywordDensity is the fraction of fetched items containing
	// security-relevant keywords, 0-1.
	KeywordDensity float64 `json:"keyword_density"`
	// CVEYield is the average number of confirmed CVEs per item.
	CVEYield float64 `json:"cve_yield"`
	// DuplicateRate is the fraction of items that resolved to an
	// already-known dedupe key, 0-1.
	DuplicateRate float64 `json:"duplicate_rate"`
}

// Failed reports whether the fetch attempt should count against
// accessibility.
func (s FeedHealthSample) Failed() bool {
	return s.HTTPStatus == 0 || s.HTTPStatus >= 400
}
