package verification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tcollier/threatgate/internal/model"
)

// Authority tiers for grounding sources. Tier 1 is a government or
// vendor PSIRT page, tier 2 an established security publication, tier 3
// everything else.
const (
	TierAuthority   = 1
	TierPublication = 2
	TierOther       = 3
)

// GroundingSource is one corroborating web citation returned by a
// grounding search.
type GroundingSource struct {
	URL           string `json:"url"`
	AuthorityTier int    `json:"authority_tier"`
}

// GroundingProvider performs a paid web-corroboration search for a
// threat item and returns the citations found.
type GroundingProvider interface {
	Name() string
	Search(ctx context.Context, item *model.ThreatItem) ([]GroundingSource, error)
}

// HTTPGroundingProvider calls a search-grounding API that accepts a
// query and returns cited URLs as JSON.
type HTTPGroundingProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPGroundingProvider builds a provider against the given endpoint.
func NewHTTPGroundingProvider(baseURL, apiKey string, timeout time.Duration) *HTTPGroundingProvider {
	return &HTTPGroundingProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *HTTPGroundingProvider) Name() string { return "grounding-search" }

func (p *HTTPGroundingProvider) Search(ctx context.Context, item *model.ThreatItem) ([]GroundingSource, error) {
	query := item.Title
	if len(item.CVEs) > 0 {
		query = strings.Join(item.CVEs, " ") + " " + query
	}
	u := p.baseURL + "/search?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("grounding search returned %d", resp.StatusCode)
	}
	var body struct {
		Results []GroundingSource `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding grounding response: %w", err)
	}
	return body.Results, nil
}

// groundingConfidence scores a citation set deterministically: up to 60
// points for citation count, a tier bonus for the best authority seen,
// and a consistency bonus when at least three citations span two or more
// tiers. Capped at 100.
func groundingConfidence(sources []GroundingSource) float64 {
	if len(sources) == 0 {
		return 0
	}
	score := float64(len(sources)) * 15
	if score > 60 {
		score = 60
	}

	best := TierOther + 1
	tiers := make(map[int]bool)
	for _, s := range sources {
		t := s.AuthorityTier
		if t < TierAuthority || t > TierOther {
			t = TierOther
		}
		tiers[t] = true
		if t < best {
			best = t
		}
	}
	switch best {
	case TierAuthority:
		score += 25
	case TierPublication:
		score += 15
	case TierOther:
		score += 5
	}
	if len(sources) >= 3 && len(tiers) >= 2 {
		score += 15
	}
	if score > 100 {
		score = 100
	}
	return score
}

// groundingVerify runs one paid grounding search. The caller has already
// reserved budget for the call.
func (v *Verifier) groundingVerify(ctx context.Context, item *model.ThreatItem) (*model.VerificationResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, v.cfg.GroundingTimeout)
	defer cancel()

	sources, err := v.grounding.Search(callCtx, item)
	if err != nil {
		return nil, err
	}
	score := groundingConfidence(sources)
	urls := make([]string, 0, len(sources))
	for _, s := range sources {
		urls = append(urls, s.URL)
	}
	return &model.VerificationResult{
		ItemID:          item.ID,
		Verified:        score >= verifiedThreshold,
		ConfidenceScore: score,
		Method:          model.MethodGrounding,
		Sources:         urls,
		Cost:            v.cfg.GroundingCost,
		Timestamp:       v.now(),
	}, nil
}
