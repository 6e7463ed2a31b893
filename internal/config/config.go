// Package config provides configuration management for ThreatGate.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tcollier/threatgate/internal/model"
)

// Config holds all ThreatGate configuration.
type Config struct {
	Server       ServerConfig        `yaml:"server"`
	Redis        RedisConfig         `yaml:"redis"`
	Feeds        []model.FeedSource  `yaml:"feeds"`
	Intake       IntakeConfig        `yaml:"intake"`
	Enrichment   EnrichmentConfig    `yaml:"enrichment"`
	Verification VerificationConfig  `yaml:"verification"`
	FeedQuality  FeedQualityConfig   `yaml:"feed_quality"`
	Organization OrganizationContext `yaml:"organization"`
	Pipeline     PipelineConfig      `yaml:"pipeline"`
	Logging      LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// RateLimitPerMinute caps API writes per client. Enforced only
	// when Redis is configured.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
}

// RedisConfig holds Redis connection settings for the verification
// result store. When Addr is empty the in-memory store is used.
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	PasswordEnv string        `yaml:"password_env"`
	DB          int           `yaml:"db"`
	PoolSize    int           `yaml:"pool_size"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// IntakeConfig holds feed fetching settings.
type IntakeConfig struct {
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	UserAgent    string        `yaml:"user_agent"`
}

// EnrichmentConfig holds enrichment provider settings.
type EnrichmentConfig struct {
	EPSS ProviderConfig `yaml:"epss"`
	KEV  ProviderConfig `yaml:"kev"`
	NVD  ProviderConfig `yaml:"nvd"`
}

// ProviderConfig holds common external-provider settings. API keys are
// read from the named environment variable, never from the file itself.
type ProviderConfig struct {
	Enabled    bool          `yaml:"enabled"`
	BaseURL    string        `yaml:"base_url"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	Timeout    time.Duration `yaml:"timeout"`
	RetryCount int           `yaml:"retry_count"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
}

// VerificationConfig holds verifier settings.
type VerificationConfig struct {
	Method            model.Method  `yaml:"method"`
	StructuredTimeout time.Duration `yaml:"structured_timeout"`
	GroundingTimeout  time.Duration `yaml:"grounding_timeout"`
	RetryCount        int           `yaml:"retry_count"`
	RetryBackoff      time.Duration `yaml:"retry_backoff"`
	VerifiedTTL       time.Duration `yaml:"verified_ttl"`
	FailedTTL         time.Duration `yaml:"failed_ttl"`
	GroundingCost     float64       `yaml:"grounding_cost"` // per-call cost, monetary units
	MonthlyBudget     float64       `yaml:"monthly_budget"`
	// Hybrid weighting and agreement bonus.
	StructuredWeight float64 `yaml:"structured_weight"`
	GroundingWeight  float64 `yaml:"grounding_weight"`
	AgreementBonus   float64 `yaml:"agreement_bonus"`
	AgreementFloor   float64 `yaml:"agreement_floor"`
}

// FeedQualityConfig holds feed quality scorer settings.
type FeedQualityConfig struct {
	Window          time.Duration `yaml:"window"`
	LowQualityFloor float64       `yaml:"low_quality_floor"`
	BreakerStrikes  int           `yaml:"breaker_strikes"`
}

// OrganizationContext is the read-only organizational input to routing:
// crown jewels, asset exposure, and policy thresholds. The engine never
// writes it.
type OrganizationContext struct {
	Industry      string            `yaml:"industry"`
	CrownJewels   []CrownJewel      `yaml:"crown_jewels"`
	AssetExposure map[string]string `yaml:"asset_exposure"` // "vendor/product" -> internet|internal|isolated
	Thresholds    Thresholds        `yaml:"thresholds"`
	OwnerTeams    map[string]string `yaml:"owner_teams"` // route -> team
	SLAHours      map[string]int    `yaml:"sla_hours"`   // route -> hours
}

// CrownJewel names a critical asset and the technology stack behind it.
type CrownJewel struct {
	Name     string          `yaml:"name"`
	Products []model.Product `yaml:"products"`
}

// Thresholds holds the numeric policy cutoffs for routing.
type Thresholds struct {
	MinDisplayConfidence float64 `yaml:"min_display_confidence"`
	CriticalConfidence   float64 `yaml:"critical_confidence"`
	ActionableConfidence float64 `yaml:"actionable_confidence"`
	EPSSCritical         float64 `yaml:"epss_critical"`
	EPSSHigh             float64 `yaml:"epss_high"`
	CVSSCritical         float64 `yaml:"cvss_critical"`
	CVSSHigh             float64 `yaml:"cvss_high"`
	CVSSMedium           float64 `yaml:"cvss_medium"`
}

// PipelineConfig holds worker pool settings.
type PipelineConfig struct {
	Workers int `yaml:"workers"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints that YAML parsing cannot.
func (c *Config) Validate() error {
	v := c.Verification
	if v.StructuredWeight < 0 || v.GroundingWeight < 0 {
		return fmt.Errorf("verification weights must be non-negative")
	}
	if v.MonthlyBudget < 0 {
		return fmt.Errorf("monthly_budget must be >= 0")
	}
	t := c.Organization.Thresholds
	if t.MinDisplayConfidence > t.CriticalConfidence {
		return fmt.Errorf("min_display_confidence (%v) exceeds critical_confidence (%v)",
			t.MinDisplayConfidence, t.CriticalConfidence)
	}
	return nil
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:               8080,
			ReadTimeout:        30 * time.Second,
			WriteTimeout:       30 * time.Second,
			ShutdownTimeout:    10 * time.Second,
			RateLimitPerMinute: 120,
		},
		Redis: RedisConfig{
			PasswordEnv: "THREATGATE_REDIS_PASSWORD",
			PoolSize:    10,
			DialTimeout: 5 * time.Second,
		},
		Intake: IntakeConfig{
			FetchTimeout: 30 * time.Second,
			PollInterval: 15 * time.Minute,
			MaxBodyBytes: 10 * 1024 * 1024,
			UserAgent:    "ThreatGate/1.0",
		},
		Enrichment: EnrichmentConfig{
			EPSS: ProviderConfig{
				Enabled:    true,
				BaseURL:    "https://api.first.org/data/v1/epss",
				Timeout:    10 * time.Second,
				RetryCount: 3,
				CacheTTL:   24 * time.Hour,
			},
			KEV: ProviderConfig{
				Enabled:    true,
				BaseURL:    "https://www.cisa.gov/sites/default/files/feeds/known_exploited_vulnerabilities.json",
				Timeout:    30 * time.Second,
				RetryCount: 3,
				CacheTTL:   24 * time.Hour,
			},
			NVD: ProviderConfig{
				Enabled:    true,
				BaseURL:    "https://services.nvd.nist.gov/rest/json/cves/2.0",
				APIKeyEnv:  "NVD_API_KEY",
				Timeout:    10 * time.Second,
				RetryCount: 3,
				CacheTTL:   24 * time.Hour,
			},
		},
		Verification: VerificationConfig{
			Method:            model.MethodHybrid,
			StructuredTimeout: 5 * time.Second,
			GroundingTimeout:  10 * time.Second,
			RetryCount:        3,
			RetryBackoff:      500 * time.Millisecond,
			VerifiedTTL:       24 * time.Hour,
			FailedTTL:         30 * time.Minute,
			GroundingCost:     0.02,
			MonthlyBudget:     50.0,
			StructuredWeight:  0.6,
			GroundingWeight:   0.4,
			AgreementBonus:    10,
			AgreementFloor:    60,
		},
		FeedQuality: FeedQualityConfig{
			Window:          7 * 24 * time.Hour,
			LowQualityFloor: 40,
			BreakerStrikes:  3,
		},
		Organization: OrganizationContext{
			Thresholds: Thresholds{
				MinDisplayConfidence: 50,
				CriticalConfidence:   70,
				ActionableConfidence: 60,
				EPSSCritical:         0.70,
				EPSSHigh:             0.30,
				CVSSCritical:         9.0,
				CVSSHigh:             7.0,
				CVSSMedium:           4.0,
			},
			OwnerTeams: map[string]string{
				"CRITICAL":  "soc-oncall",
				"HIGH":      "vuln-mgmt",
				"MEDIUM":    "vuln-mgmt",
				"WATCHLIST": "threat-intel",
			},
			SLAHours: map[string]int{
				"CRITICAL": 4,
				"HIGH":     24,
				"MEDIUM":   72,
			},
		},
		Pipeline: PipelineConfig{
			Workers: 8,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// ExposedProducts returns the vendor/product keys whose declared exposure
// is internet-facing.
func (o *OrganizationContext) ExposedProducts() map[string]bool {
	out := make(map[string]bool, len(o.AssetExposure))
	for key, exposure := range o.AssetExposure {
		if exposure == "internet" {
			out[key] = true
		}
	}
	return out
}
