// Package model defines the core records flowing through the ThreatGate
// decision engine: threat items, verification results, routing decisions,
// and feed health telemetry.
package model

import (
	"time"
)

// SourceType identifies the kind of intake channel an item arrived on.
type SourceType string

const (
	SourceTypeRSS    SourceType = "rss"
	SourceTypeVendor SourceType = "vendor"
	SourceTypeCERT   SourceType = "cert"
	SourceTypeCustom SourceType = "custom"
)

// Reliability is the Admiralty source-reliability grade, A (best) to F.
type Reliability string

const (
	ReliabilityA Reliability = "A"
	ReliabilityB Reliability = "B"
	ReliabilityC Reliability = "C"
	ReliabilityD Reliability = "D"
	ReliabilityE Reliability = "E"
	ReliabilityF Reliability = "F"
)

// Credibility is the Admiralty information-credibility grade, 1 (best) to 6.
type Credibility int

// ExploitStatus describes observed exploitation of an item's CVEs.
type ExploitStatus string

const (
	ExploitITW  ExploitStatus = "ITW" // active in-the-wild exploitation
	ExploitPoC  ExploitStatus = "PoC"
	ExploitNone ExploitStatus = "None"
)

// Product is a vendor/product pair affected by an advisory.
type Product struct {
	Vendor  string `json:"vendor"`
	Product string `json:"product"`
}

// ThreatItem is one normalized advisory observed on a feed.
//
// Scoring facts (CVSS, EPSS, KEV, exploit status) are pointers: nil means
// no authoritative source supplied a value. The engine never infers them.
type ThreatItem struct {
	ID        string `json:"id"`
	DedupeKey string `json:"dedupe_key"`

	// Provenance. SourceURL is required; items without one never
	// survive normalization.
	SourceType  SourceType `json:"source_type"`
	SourceName  string     `json:"source_name"`
	SourceNames []string   `json:"source_names,omitempty"` // merged duplicates
	SourceURL   string     `json:"source_url"`

	Title           string    `json:"title"`
	Summary         string    `json:"summary"`
	PublishedUTC    time.Time `json:"published_utc"`
	CollectedUTC    time.Time `json:"collected_utc"`
	CVEs            []string  `json:"cves"`
	EvidenceExcerpt string    `json:"evidence_excerpt,omitempty"`
	AffectedProducts []Product `json:"affected_products,omitempty"`

	// Scoring facts, nil until enrichment supplies them.
	CVSSv3        *float64       `json:"cvss_v3,omitempty"`
	CVSSv4        *float64       `json:"cvss_v4,omitempty"`
	EPSS          *float64       `json:"epss,omitempty"`
	KEVListed     *bool          `json:"kev_listed,omitempty"`
	KEVDateAdded  *time.Time     `json:"kev_date_added,omitempty"`
	ExploitStatus *ExploitStatus `json:"exploit_status,omitempty"`

	// Admiralty credibility grades assigned at normalization.
	SourceReliability Reliability `json:"admiralty_source_reliability"`
	InfoCredibility   Credibility `json:"admiralty_info_credibility"`
	AdmiraltyReason   string      `json:"admiralty_reason,omitempty"`

	// Derived.
	QualityScore      float64             `json:"quality_score"`
	Verification      *VerificationResult `json:"verification,omitempty"`
	RiskScore         float64             `json:"risk_score"`
	AdjustedRiskScore float64             `json:"adjusted_risk_score"`
}

// HasCVSS reports whether any CVSS score is present, preferring v4.
func (t *ThreatItem) HasCVSS() (float64, bool) {
	if t.CVSSv4 != nil {
		return *t.CVSSv4, true
	}
	if t.CVSSv3 != nil {
		return *t.CVSSv3, true
	}
	return 0, false
}

// IsKEVListed reports whether the item is confirmed on the exploited
// catalog. A nil KEVListed means unknown and counts as not listed.
func (t *ThreatItem) IsKEVListed() bool {
	return t.KEVListed != nil && *t.KEVListed
}

// FailsCredibilityFloor reports whether the item sits in the Admiralty
// bands that must never reach the routing engine.
func (t *ThreatItem) FailsCredibilityFloor() bool {
	if t.SourceReliability == ReliabilityE || t.SourceReliability == ReliabilityF {
		return true
	}
	if t.InfoCredibility >= 5 {
		return true
	}
	return t.SourceURL == ""
}
