// Package observability provides structured logging and Prometheus
// metrics for the ThreatGate pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config configures telemetry.
type Config struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"` // json, console
}

// Metrics holds Prometheus metrics for the decision engine.
type Metrics struct {
	// Normalization
	ItemsNormalized prometheus.Counter
	ItemsDropped    *prometheus.CounterVec // by drop reason
	ItemsMerged     prometheus.Counter     // dedupe collisions resolved

	// Enrichment
	EnrichmentLookups  *prometheus.CounterVec // by provider, outcome
	EnrichmentDuration *prometheus.HistogramVec

	// Verification
	VerificationRequests *prometheus.CounterVec // by method, outcome
	VerificationCacheHit prometheus.Counter
	BudgetDowngrades     prometheus.Counter
	BudgetSpent          prometheus.Gauge

	// Routing
	Decisions *prometheus.CounterVec // by route

	// Feed quality
	FeedQuality    *prometheus.GaugeVec // by feed
	FeedBreakerOpen *prometheus.GaugeVec
}

// NewMetrics registers and returns the engine metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ItemsNormalized: factory.NewCounter(prometheus.CounterOpts{
			Name: "threatgate_items_normalized_total",
			Help: "Threat items that passed normalization",
		}),
		ItemsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "threatgate_items_dropped_total",
			Help: "Items dropped at normalization, by reason",
		}, []string{"reason"}),
		ItemsMerged: factory.NewCounter(prometheus.CounterOpts{
			Name: "threatgate_items_merged_total",
			Help: "Duplicate items merged by dedupe key",
		}),
		EnrichmentLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "threatgate_enrichment_lookups_total",
			Help: "Enrichment provider lookups, by provider and outcome",
		}, []string{"provider", "outcome"}),
		EnrichmentDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "threatgate_enrichment_duration_seconds",
			Help:    "Enrichment lookup latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		VerificationRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "threatgate_verification_requests_total",
			Help: "Verification attempts, by method and outcome",
		}, []string{"method", "outcome"}),
		VerificationCacheHit: factory.NewCounter(prometheus.CounterOpts{
			Name: "threatgate_verification_cache_hits_total",
			Help: "Verification requests served from cache",
		}),
		BudgetDowngrades: factory.NewCounter(prometheus.CounterOpts{
			Name: "threatgate_budget_downgrades_total",
			Help: "Paid verifications downgraded to structured by the budget ledger",
		}),
		BudgetSpent: factory.NewGauge(prometheus.GaugeOpts{
			Name: "threatgate_budget_spent",
			Help: "Cumulative verification spend this billing period",
		}),
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "threatgate_decisions_total",
			Help: "Routing decisions, by route",
		}, []string{"route"}),
		FeedQuality: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "threatgate_feed_quality_score",
			Help: "Latest composite feed quality score, by feed",
		}, []string{"feed"}),
		FeedBreakerOpen: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "threatgate_feed_breaker_open",
			Help: "1 when a feed is flagged for circuit-breaking",
		}, []string{"feed"}),
	}
}

// NewLogger builds a zap logger from telemetry config.
func NewLogger(cfg Config) (*zap.Logger, error) {
	var zcfg zap.Config

	if cfg.LogFormat == "console" {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.TimeKey = "timestamp"
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	switch cfg.LogLevel {
	case "debug":
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zcfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	zcfg.InitialFields = map[string]interface{}{
		"service": cfg.ServiceName,
		"version": cfg.ServiceVersion,
	}

	return zcfg.Build()
}
