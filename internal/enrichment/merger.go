package enrichment

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/tcollier/threatgate/internal/model"
)

// Merger combines provider facts into threat items. The merge is pure:
// fields without provider data stay nil, and out-of-range values are
// rejected with a warning rather than clamped into plausibility.
type Merger struct {
	providers []Provider
	logger    *zap.Logger
	timeout   time.Duration
}

// NewMerger creates a Merger over the given providers. Providers are
// consulted in order; the first non-nil value per field wins.
func NewMerger(providers []Provider, logger *zap.Logger, timeout time.Duration) *Merger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Merger{providers: providers, logger: logger, timeout: timeout}
}

// Enrich looks up facts for every CVE on the item and merges them in.
// Provider errors degrade to "no data" for that provider; they never fail
// the item.
func (m *Merger) Enrich(ctx context.Context, item *model.ThreatItem) *model.ThreatItem {
	facts := make(map[string]*CVEFacts, len(item.CVEs))
	for _, cve := range item.CVEs {
		combined := &CVEFacts{}
		for _, p := range m.providers {
			lookupCtx, cancel := context.WithTimeout(ctx, m.timeout)
			f, err := p.Lookup(lookupCtx, cve)
			cancel()
			if err != nil {
				m.logger.Warn("enrichment lookup failed",
					zap.String("provider", p.Name()),
					zap.String("cve", cve),
					zap.Error(err),
				)
				continue
			}
			combined.merge(f)
		}
		facts[cve] = combined
	}
	return m.Merge(item, facts)
}

// Merge applies already-fetched facts to the item. Exported separately so
// the pipeline can batch provider lookups and callers can test the merge
// without network.
func (m *Merger) Merge(item *model.ThreatItem, facts map[string]*CVEFacts) *model.ThreatItem {
	for _, cve := range item.CVEs {
		f, ok := facts[cve]
		if !ok || f == nil {
			continue
		}

		if v := m.validCVSS(f.CVSSv3, cve, "cvss_v3"); v != nil && item.CVSSv3 == nil {
			item.CVSSv3 = v
		}
		if v := m.validCVSS(f.CVSSv4, cve, "cvss_v4"); v != nil && item.CVSSv4 == nil {
			item.CVSSv4 = v
		}
		if v := m.validEPSS(f.EPSS, cve); v != nil {
			// Multi-CVE items keep the highest exploitation probability.
			if item.EPSS == nil || *v > *item.EPSS {
				item.EPSS = v
			}
		}
		if f.KEVListed != nil {
			if item.KEVListed == nil || *f.KEVListed {
				item.KEVListed = f.KEVListed
			}
			if *f.KEVListed && f.KEVDateAdded != nil && item.KEVDateAdded == nil {
				item.KEVDateAdded = f.KEVDateAdded
			}
			if *f.KEVListed && item.ExploitStatus == nil {
				itw := model.ExploitITW
				item.ExploitStatus = &itw
			}
		}
	}
	return item
}

// validCVSS validates a CVSS score against [0,10] and rounds to one
// decimal. Out-of-range values are logged and treated as absent.
func (m *Merger) validCVSS(v *float64, cve, field string) *float64 {
	if v == nil {
		return nil
	}
	if *v < 0 || *v > 10 {
		m.logger.Warn("rejecting out-of-range CVSS score",
			zap.String("cve", cve),
			zap.String("field", field),
			zap.Float64("value", *v),
		)
		return nil
	}
	rounded := math.Round(*v*10) / 10
	return &rounded
}

// validEPSS validates an EPSS probability against [0,1].
func (m *Merger) validEPSS(v *float64, cve string) *float64 {
	if v == nil {
		return nil
	}
	if *v < 0 || *v > 1 {
		m.logger.Warn("rejecting out-of-range EPSS score",
			zap.String("cve", cve),
			zap.Float64("value", *v),
		)
		return nil
	}
	return v
}
