// Package enrichment merges externally supplied vulnerability-scoring
// facts (CVSS, EPSS, KEV) into threat items and provides the provider
// clients that fetch those facts. Missing data stays nil; nothing here
// ever invents a score.
package enrichment

import (
	"context"
	"time"
)

// CVEFacts is the scoring data an external provider returns for one CVE.
// Every field is optional; nil means the provider had no value.
type CVEFacts struct {
	CVSSv3       *float64   `json:"cvss_v3,omitempty"`
	CVSSv4       *float64   `json:"cvss_v4,omitempty"`
	EPSS         *float64   `json:"epss,omitempty"`
	EPSSPercentile *float64 `json:"epss_percentile,omitempty"`
	KEVListed    *bool      `json:"kev_listed,omitempty"`
	KEVDateAdded *time.Time `json:"kev_date_added,omitempty"`
	KEVVendor    string     `json:"kev_vendor,omitempty"`
	KEVProduct   string     `json:"kev_product,omitempty"`
	KEVRansomware string    `json:"kev_ransomware,omitempty"`
}

// Empty reports whether the provider returned no facts at all.
func (f *CVEFacts) Empty() bool {
	return f.CVSSv3 == nil && f.CVSSv4 == nil && f.EPSS == nil && f.KEVListed == nil
}

// Provider fetches scoring facts for CVEs from one external source.
// Implementations must return (nil, nil) for an explicit "not found".
type Provider interface {
	Name() string
	Lookup(ctx context.Context, cveID string) (*CVEFacts, error)
	HealthCheck(ctx context.Context) error
}

// merge copies non-nil fields of src over dst, first writer wins per field.
func (f *CVEFacts) merge(src *CVEFacts) {
	if src == nil {
		return
	}
	if f.CVSSv3 == nil {
		f.CVSSv3 = src.CVSSv3
	}
	if f.CVSSv4 == nil {
		f.CVSSv4 = src.CVSSv4
	}
	if f.EPSS == nil {
		f.EPSS = src.EPSS
	}
	if f.EPSSPercentile == nil {
		f.EPSSPercentile = src.EPSSPercentile
	}
	if f.KEVListed == nil {
		f.KEVListed = src.KEVListed
	}
	if f.KEVDateAdded == nil {
		f.KEVDateAdded = src.KEVDateAdded
	}
	if f.KEVVendor == "" {
		f.KEVVendor = src.KEVVendor
	}
	if f.KEVProduct == "" {
		f.KEVProduct = src.KEVProduct
	}
	if f.KEVRansomware == "" {
		f.KEVRansomware = src.KEVRansomware
	}
}
