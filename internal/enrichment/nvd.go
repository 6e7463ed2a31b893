package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/tcollier/threatgate/internal/cache"
	"github.com/tcollier/threatgate/internal/config"
)

const nvdDefaultBaseURL = "https://services.nvd.nist.gov/rest/json/cves/2.0"

// NVDProvider queries the NVD CVE registry for CVSS scores. It doubles as
// the primary structured-verification source: a CVE present in the
// registry confirms the identifier is real.
type NVDProvider struct {
	config     config.ProviderConfig
	httpClient *http.Client
	cache      *cache.TTLCache[string, *CVEFacts]
}

// NewNVDProvider creates an NVD provider. An API key, if configured, is
// read from the environment and raises the allowed request rate.
func NewNVDProvider(cfg config.ProviderConfig) *NVDProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = nvdDefaultBaseURL
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	return &NVDProvider{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      cache.New[string, *CVEFacts](cfg.CacheTTL),
	}
}

// Name returns the provider identifier.
func (p *NVDProvider) Name() string { return "nvd" }

// HealthCheck verifies connectivity to the NVD API.
func (p *NVDProvider) HealthCheck(ctx context.Context) error {
	req, err := p.newRequest(ctx, p.config.BaseURL+"?resultsPerPage=1")
	if err != nil {
		return fmt.Errorf("creating health check request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("NVD health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("NVD API returned status %d", resp.StatusCode)
	}
	return nil
}

// nvdResponse covers the slice of the NVD 2.0 schema we consume.
type nvdResponse struct {
	TotalResults    int `json:"totalResults"`
	Vulnerabilities []struct {
		CVE struct {
			ID      string `json:"id"`
			Metrics struct {
				CVSSMetricV40 []nvdMetric `json:"cvssMetricV40"`
				CVSSMetricV31 []nvdMetric `json:"cvssMetricV31"`
				CVSSMetricV30 []nvdMetric `json:"cvssMetricV30"`
			} `json:"metrics"`
		} `json:"cve"`
	} `json:"vulnerabilities"`
}

type nvdMetric struct {
	CVSSData struct {
		BaseScore float64 `json:"baseScore"`
	} `json:"cvssData"`
}

// Lookup returns CVSS scores for one CVE, or (nil, nil) when the registry
// has no record of it.
func (p *NVDProvider) Lookup(ctx context.Context, cveID string) (*CVEFacts, error) {
	key := strings.ToUpper(cveID)
	if facts, ok := p.cache.Get(key); ok {
		return facts, nil
	}

	reqURL := fmt.Sprintf("%s?cveId=%s", p.config.BaseURL, url.QueryEscape(key))
	req, err := p.newRequest(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("creating NVD request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("NVD lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		p.cache.Set(key, nil)
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("NVD API returned status %d", resp.StatusCode)
	}

	var parsed nvdResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding NVD response: %w", err)
	}

	if parsed.TotalResults == 0 || len(parsed.Vulnerabilities) == 0 {
		p.cache.Set(key, nil)
		return nil, nil
	}

	metrics := parsed.Vulnerabilities[0].CVE.Metrics
	facts := &CVEFacts{}
	if len(metrics.CVSSMetricV40) > 0 {
		score := metrics.CVSSMetricV40[0].CVSSData.BaseScore
		facts.CVSSv4 = &score
	}
	if len(metrics.CVSSMetricV31) > 0 {
		score := metrics.CVSSMetricV31[0].CVSSData.BaseScore
		facts.CVSSv3 = &score
	} else if len(metrics.CVSSMetricV30) > 0 {
		score := metrics.CVSSMetricV30[0].CVSSData.BaseScore
		facts.CVSSv3 = &score
	}

	p.cache.Set(key, facts)
	return facts, nil
}

func (p *NVDProvider) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if p.config.APIKeyEnv != "" {
		if apiKey := os.Getenv(p.config.APIKeyEnv); apiKey != "" {
			req.Header.Set("apiKey", apiKey)
		}
	}
	return req, nil
}
