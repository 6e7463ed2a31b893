package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tcollier/threatgate/internal/cache"
	"github.com/tcollier/threatgate/internal/config"
)

const epssDefaultBaseURL = "https://api.first.org/data/v1/epss"

// EPSSProvider queries the FIRST EPSS API for exploit-prediction scores.
type EPSSProvider struct {
	config     config.ProviderConfig
	httpClient *http.Client
	cache      *cache.TTLCache[string, *CVEFacts]
}

// NewEPSSProvider creates an EPSS provider.
func NewEPSSProvider(cfg config.ProviderConfig) *EPSSProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = epssDefaultBaseURL
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	return &EPSSProvider{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      cache.New[string, *CVEFacts](cfg.CacheTTL),
	}
}

// Name returns the provider identifier.
func (p *EPSSProvider) Name() string { return "epss" }

// HealthCheck verifies connectivity to the EPSS API.
func (p *EPSSProvider) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.BaseURL+"?limit=1", nil)
	if err != nil {
		return fmt.Errorf("creating health check request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("EPSS health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("EPSS API returned status %d", resp.StatusCode)
	}
	return nil
}

// epssResponse is the FIRST API envelope.
type epssResponse struct {
	Status string `json:"status"`
	Data   []struct {
		CVE        string `json:"cve"`
		EPSS       string `json:"epss"`
		Percentile string `json:"percentile"`
	} `json:"data"`
}

// Lookup returns the EPSS score for one CVE, or (nil, nil) when the model
// has no entry for it.
func (p *EPSSProvider) Lookup(ctx context.Context, cveID string) (*CVEFacts, error) {
	key := strings.ToUpper(cveID)
	if facts, ok := p.cache.Get(key); ok {
		return facts, nil
	}

	reqURL := fmt.Sprintf("%s?cve=%s", p.config.BaseURL, url.QueryEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating EPSS request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("EPSS lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("EPSS API returned status %d", resp.StatusCode)
	}

	var parsed epssResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding EPSS response: %w", err)
	}

	if len(parsed.Data) == 0 {
		// Explicit not-found; cache the negative result too.
		p.cache.Set(key, nil)
		return nil, nil
	}

	score, err := strconv.ParseFloat(parsed.Data[0].EPSS, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing EPSS score for %s: %w", key, err)
	}
	percentile, err := strconv.ParseFloat(parsed.Data[0].Percentile, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing EPSS percentile for %s: %w", key, err)
	}

	facts := &CVEFacts{EPSS: &score, EPSSPercentile: &percentile}
	p.cache.Set(key, facts)
	return facts, nil
}
