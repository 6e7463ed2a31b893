package model

import "time"

// Method selects how an item is re-verified against external sources.
type Method string

const (
	MethodStructured Method = "structured" // free authoritative APIs
	MethodGrounding  Method = "grounding"  // paid web-search corroboration
	MethodHybrid     Method = "hybrid"     // weighted blend of both
	MethodDisabled   Method = "disabled"
)

// VerificationResult is an immutable snapshot of one verification attempt,
// keyed by ThreatItem identity. A newer attempt supersedes it; it is never
// edited in place.
type VerificationResult struct {
	ItemID          string    `json:"item_id"`
	Verified        bool      `json:"verified"`
	ConfidenceScore float64   `json:"confidence_score"` // 0-100
	Method          Method    `json:"method"`
	Sources         []string  `json:"sources"`
	Cost            float64   `json:"cost"` // monetary units spent on this attempt
	Cached          bool      `json:"cached"`
	Timestamp       time.Time `json:"timestamp"`
	TTL             time.Duration `json:"ttl"`

	// Downgraded is set when the budget ledger forced a paid method
	// down to structured; the confidence score then reflects
	// structured evidence only.
	Downgraded bool `json:"downgraded,omitempty"`

	// LowConfidence marks an item that exhausted the fallback cascade
	// without confirmation.
	LowConfidence bool `json:"low_confidence,omitempty"`
}

// Expired reports whether the snapshot has outlived its TTL at now.
func (v *VerificationResult) Expired(now time.Time) bool {
	return now.After(v.Timestamp.Add(v.TTL))
}
