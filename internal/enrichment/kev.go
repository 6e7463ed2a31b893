package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tcollier/threatgate/internal/config"
)

const (
	kevPrimaryURL  = "https://www.cisa.gov/sites/default/files/feeds/known_exploited_vulnerabilities.json"
	kevFallbackURL = "https://raw.githubusercontent.com/cisagov/kev-data/main/known_exploited_vulnerabilities.json"

	kevMaxResponseSize = 50 * 1024 * 1024
)

// KEVProvider serves lookups against the CISA Known Exploited
// Vulnerabilities catalog. The catalog is small enough to hold in memory;
// it is downloaded once and refreshed when stale, with a GitHub mirror as
// fallback.
type KEVProvider struct {
	config     config.ProviderConfig
	httpClient *http.Client

	mu        sync.RWMutex
	entries   map[string]kevEntry
	fetchedAt time.Time
}

// kevCatalog is the CISA catalog JSON envelope.
type kevCatalog struct {
	CatalogVersion  string     `json:"catalogVersion"`
	Vulnerabilities []kevEntry `json:"vulnerabilities"`
}

type kevEntry struct {
	CVEID                      string `json:"cveID"`
	VendorProject              string `json:"vendorProject"`
	Product                    string `json:"product"`
	DateAdded                  string `json:"dateAdded"`
	KnownRansomwareCampaignUse string `json:"knownRansomwareCampaignUse"`
}

// NewKEVProvider creates a KEV provider.
func NewKEVProvider(cfg config.ProviderConfig) *KEVProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = kevPrimaryURL
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	return &KEVProvider{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		entries:    make(map[string]kevEntry),
	}
}

// Name returns the provider identifier.
func (p *KEVProvider) Name() string { return "kev" }

// HealthCheck verifies the catalog can be refreshed.
func (p *KEVProvider) HealthCheck(ctx context.Context) error {
	return p.refresh(ctx)
}

// Lookup reports whether a CVE is on the exploited catalog. The answer is
// always definite once the catalog is loaded: listed true or listed false,
// never unknown.
func (p *KEVProvider) Lookup(ctx context.Context, cveID string) (*CVEFacts, error) {
	if err := p.refresh(ctx); err != nil {
		return nil, err
	}

	p.mu.RLock()
	entry, ok := p.entries[strings.ToUpper(cveID)]
	p.mu.RUnlock()

	listed := ok
	facts := &CVEFacts{KEVListed: &listed}
	if !ok {
		return facts, nil
	}

	facts.KEVVendor = entry.VendorProject
	facts.KEVProduct = entry.Product
	facts.KEVRansomware = entry.KnownRansomwareCampaignUse
	if t, err := time.Parse("2006-01-02", entry.DateAdded); err == nil {
		facts.KEVDateAdded = &t
	}
	return facts, nil
}

// refresh downloads the catalog when it is stale, trying the mirror when
// the primary fails. A stale in-memory copy is kept on total failure.
func (p *KEVProvider) refresh(ctx context.Context) error {
	p.mu.RLock()
	fresh := time.Since(p.fetchedAt) < p.config.CacheTTL && len(p.entries) > 0
	p.mu.RUnlock()
	if fresh {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if time.Since(p.fetchedAt) < p.config.CacheTTL && len(p.entries) > 0 {
		return nil
	}

	data, err := p.download(ctx, p.config.BaseURL)
	if err != nil {
		if mirrorData, mirrorErr := p.download(ctx, kevFallbackURL); mirrorErr == nil {
			data = mirrorData
		} else if len(p.entries) > 0 {
			// Keep serving the stale catalog rather than failing lookups.
			return nil
		} else {
			return fmt.Errorf("downloading KEV catalog: primary: %w; fallback: %v", err, mirrorErr)
		}
	}

	var catalog kevCatalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return fmt.Errorf("unmarshaling KEV catalog: %w", err)
	}

	entries := make(map[string]kevEntry, len(catalog.Vulnerabilities))
	for _, v := range catalog.Vulnerabilities {
		entries[strings.ToUpper(v.CVEID)] = v
	}
	p.entries = entries
	p.fetchedAt = time.Now()
	return nil
}

func (p *KEVProvider) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("HTTP %d for %s", resp.StatusCode, rawURL)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, kevMaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return data, nil
}
