package verification

import (
	"context"

	"go.uber.org/zap"

	"github.com/tcollier/threatgate/internal/enrichment"
	"github.com/tcollier/threatgate/internal/model"
)

// Point values for structured corroboration. Scores are additive and
// capped at 100.
const (
	pointsVulnRegistry   = 40
	pointsExploitCatalog = 30
	pointsVendorAdvisory = 20
	pointsCERTBulletin   = 10
	structuredCap        = 100
)

// verifiedThreshold is the minimum confidence for Verified=true.
const verifiedThreshold = 60

// StructuredSource confirms whether an authoritative machine-readable
// source knows about a threat item. Confirm returns (false, nil) when the
// source was reachable but has no record; errors mean the source could
// not be consulted and contribute nothing.
type StructuredSource interface {
	Name() string
	Points() int
	Confirm(ctx context.Context, item *model.ThreatItem) (bool, error)
}

// SourceFunc adapts a plain function to StructuredSource.
type SourceFunc struct {
	SourceName string
	Score      int
	Fn         func(ctx context.Context, item *model.ThreatItem) (bool, error)
}

func (s SourceFunc) Name() string { return s.SourceName }
func (s SourceFunc) Points() int  { return s.Score }
func (s SourceFunc) Confirm(ctx context.Context, item *model.ThreatItem) (bool, error) {
	return s.Fn(ctx, item)
}

// registrySource confirms against the national vulnerability registry by
// looking up each CVE on the item.
type registrySource struct {
	provider enrichment.Provider
}

func (r *registrySource) Name() string { return r.provider.Name() }
func (r *registrySource) Points() int  { return pointsVulnRegistry }

func (r *registrySource) Confirm(ctx context.Context, item *model.ThreatItem) (bool, error) {
	var lastErr error
	for _, cve := range item.CVEs {
		facts, err := r.provider.Lookup(ctx, cve)
		if err != nil {
			lastErr = err
			continue
		}
		if facts != nil && !facts.Empty() {
			return true, nil
		}
	}
	return false, lastErr
}

// catalogSource confirms against the known-exploited catalog.
type catalogSource struct {
	provider enrichment.Provider
}

func (c *catalogSource) Name() string { return c.provider.Name() }
func (c *catalogSource) Points() int  { return pointsExploitCatalog }

func (c *catalogSource) Confirm(ctx context.Context, item *model.ThreatItem) (bool, error) {
	var lastErr error
	for _, cve := range item.CVEs {
		facts, err := c.provider.Lookup(ctx, cve)
		if err != nil {
			lastErr = err
			continue
		}
		if facts != nil && facts.KEVListed != nil && *facts.KEVListed {
			return true, nil
		}
	}
	return false, lastErr
}

// NewRegistrySource wraps a vulnerability registry provider as a 40-point
// structured source.
func NewRegistrySource(p enrichment.Provider) StructuredSource {
	return &registrySource{provider: p}
}

// NewCatalogSource wraps a known-exploited catalog provider as a 30-point
// structured source.
func NewCatalogSource(p enrichment.Provider) StructuredSource {
	return &catalogSource{provider: p}
}

// NewVendorSource builds a 20-point source from a vendor advisory check.
func NewVendorSource(name string, fn func(ctx context.Context, item *model.ThreatItem) (bool, error)) StructuredSource {
	return SourceFunc{SourceName: name, Score: pointsVendorAdvisory, Fn: fn}
}

// NewCERTSource builds a 10-point source from a CERT bulletin check.
func NewCERTSource(name string, fn func(ctx context.Context, item *model.ThreatItem) (bool, error)) StructuredSource {
	return SourceFunc{SourceName: name, Score: pointsCERTBulletin, Fn: fn}
}

// structuredVerify consults every configured source and sums the points
// of those that confirm. Items without CVEs cannot be corroborated by
// registry or catalog lookups and fall through with whatever the
// remaining sources report.
func (v *Verifier) structuredVerify(ctx context.Context, item *model.ThreatItem) (*model.VerificationResult, error) {
	score := 0
	var confirmed []string
	for _, src := range v.structured {
		callCtx, cancel := context.WithTimeout(ctx, v.cfg.StructuredTimeout)
		ok, err := src.Confirm(callCtx, item)
		cancel()
		if err != nil {
			v.logger.Debug("structured source unavailable",
				zap.String("source", src.Name()),
				zap.String("item_id", item.ID),
				zap.Error(err))
			continue
		}
		if ok {
			score += src.Points()
			confirmed = append(confirmed, src.Name())
		}
	}
	if score > structuredCap {
		score = structuredCap
	}
	return &model.VerificationResult{
		ItemID:          item.ID,
		Verified:        score >= verifiedThreshold,
		ConfidenceScore: float64(score),
		Method:          model.MethodStructured,
		Sources:         confirmed,
		Cost:            0,
		Timestamp:       v.now(),
	}, nil
}
