package routing

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tcollier/threatgate/internal/config"
	"github.com/tcollier/threatgate/internal/model"
	"github.com/tcollier/threatgate/internal/observability"
)

func fptr(v float64) *float64                         { return &v }
func bptr(v bool) *bool                               { return &v }
func eptr(v model.ExploitStatus) *model.ExploitStatus { return &v }

func newTestEngine(mutate func(*config.OrganizationContext)) *Engine {
	org := config.DefaultConfig().Organization
	if mutate != nil {
		mutate(&org)
	}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	return New(org, metrics, zap.NewNop())
}

func credibleItem() *model.ThreatItem {
	return &model.ThreatItem{
		ID:                "item-1",
		SourceURL:         "https://example.com/advisory",
		SourceReliability: model.ReliabilityA,
		InfoCredibility:   2,
		Title:             "Remote code execution in example product",
		CVEs:              []string{"CVE-2024-12345"},
	}
}

func verified(confidence float64) *model.VerificationResult {
	return &model.VerificationResult{
		Verified:        confidence >= 60,
		ConfidenceScore: confidence,
		Method:          model.MethodStructured,
	}
}

// ===== cascade order =====

func TestDropBelowDisplayConfidence(t *testing.T) {
	e := newTestEngine(nil)
	item := credibleItem()
	item.KEVListed = bptr(true)
	item.CVSSv3 = fptr(9.8)

	d := e.Decide(item, verified(45))
	if d.Route != model.RouteDrop {
		t.Fatalf("route = %s, want DROP", d.Route)
	}
	if d.Display != "DROP" {
		t.Errorf("display = %s, want DROP", d.Display)
	}
	if !strings.HasPrefix(d.Reason, "drop-below-confidence-floor") {
		t.Errorf("reason %q does not name the drop rule", d.Reason)
	}
	if !d.SLADueUTC.IsZero() {
		t.Errorf("dropped items must not get an SLA")
	}
}

func TestCredibilityFloorDropsRegardlessOfConfidence(t *testing.T) {
	e := newTestEngine(nil)
	item := credibleItem()
	item.SourceReliability = model.ReliabilityE

	if d := e.Decide(item, verified(99)); d.Route != model.RouteDrop {
		t.Fatalf("route = %s, want DROP for reliability E", d.Route)
	}
}

func TestCriticalBeatsMedium(t *testing.T) {
	e := newTestEngine(nil)
	item := credibleItem()
	item.KEVListed = bptr(true)
	item.CVSSv3 = fptr(5.0) // moderate severity band would match rule 4

	d := e.Decide(item, verified(85))
	if d.Route != model.RouteCritical {
		t.Fatalf("route = %s, want CRITICAL; earlier rule must win", d.Route)
	}
	if !strings.HasPrefix(d.Reason, "critical-confirmed-exploitation") {
		t.Errorf("reason %q does not name the critical rule", d.Reason)
	}
	if d.OwnerTeam != "soc-oncall" {
		t.Errorf("owner = %s, want soc-oncall", d.OwnerTeam)
	}
}

func TestCriticalRequiresConfidence(t *testing.T) {
	e := newTestEngine(nil)
	item := credibleItem()
	item.KEVListed = bptr(true)

	d := e.Decide(item, verified(65))
	if d.Route == model.RouteCritical {
		t.Fatalf("confidence 65 must not reach CRITICAL")
	}
	if d.Route != model.RouteMedium {
		t.Fatalf("route = %s, want MEDIUM for critical facts below the gate", d.Route)
	}
}

func TestHighOnCVSSBand(t *testing.T) {
	e := newTestEngine(nil)
	item := credibleItem()
	item.CVSSv3 = fptr(8.1)

	d := e.Decide(item, verified(75))
	if d.Route != model.RouteHigh {
		t.Fatalf("route = %s, want HIGH", d.Route)
	}
	if d.Display != "TECHNICAL_ALERT" {
		t.Errorf("display = %s, want TECHNICAL_ALERT", d.Display)
	}
}

func TestCrownJewelUpgradesToHigh(t *testing.T) {
	e := newTestEngine(func(org *config.OrganizationContext) {
		org.CrownJewels = []config.CrownJewel{{
			Name:     "payments",
			Products: []model.Product{{Vendor: "Apache", Product: "Struts"}},
		}}
	})
	item := credibleItem()
	item.CVSSv3 = fptr(5.0) // would otherwise land MEDIUM
	item.AffectedProducts = []model.Product{{Vendor: "Apache", Product: "Struts"}}

	d := e.Decide(item, verified(80))
	if d.Route != model.RouteHigh {
		t.Fatalf("route = %s, want HIGH on crown-jewel match", d.Route)
	}
	if !strings.Contains(d.Reason, "payments") {
		t.Errorf("reason %q does not name the crown jewel", d.Reason)
	}
}

func TestITWWithExposureIsCriticalWithoutIsMedium(t *testing.T) {
	withExposure := newTestEngine(func(org *config.OrganizationContext) {
		org.AssetExposure = map[string]string{"Citrix/NetScaler": "internet"}
	})
	item := credibleItem()
	item.ExploitStatus = eptr(model.ExploitITW)
	item.AffectedProducts = []model.Product{{Vendor: "Citrix", Product: "NetScaler"}}

	if d := withExposure.Decide(item, verified(85)); d.Route != model.RouteCritical {
		t.Fatalf("exposed ITW: route = %s, want CRITICAL", d.Route)
	}

	withoutExposure := newTestEngine(nil)
	if d := withoutExposure.Decide(item, verified(85)); d.Route != model.RouteMedium {
		t.Fatalf("unexposed ITW: route = %s, want MEDIUM", d.Route)
	}
}

func TestWatchlistDefault(t *testing.T) {
	e := newTestEngine(nil)
	item := credibleItem()

	d := e.Decide(item, verified(55))
	if d.Route != model.RouteWatchlist {
		t.Fatalf("route = %s, want WATCHLIST", d.Route)
	}
	if !strings.HasPrefix(d.Reason, "watchlist-default") {
		t.Errorf("reason %q does not name the default rule", d.Reason)
	}
}

// ===== risk scoring =====

func TestRiskScoreKEVDominatesEPSS(t *testing.T) {
	kev := credibleItem()
	kev.CVSSv3 = fptr(8.0)
	kev.KEVListed = bptr(true)
	kev.EPSS = fptr(0.05)

	plain := credibleItem()
	plain.CVSSv3 = fptr(8.0)
	plain.EPSS = fptr(0.05)

	if RiskScore(kev) <= RiskScore(plain) {
		t.Errorf("KEV item %v must outscore EPSS-only item %v", RiskScore(kev), RiskScore(plain))
	}
}

func TestRiskScoreUnknownsGetFloorNotZero(t *testing.T) {
	item := credibleItem()
	if got := RiskScore(item); got <= 0 {
		t.Errorf("factless item scored %v, want a small positive floor", got)
	}
}

func TestAdjustedRiskPenaltyBands(t *testing.T) {
	cases := []struct {
		confidence float64
		want       float64
	}{
		{96, 100},
		{95, 100},
		{94, 95},
		{80, 95},
		{79, 90},
		{70, 90},
		{69, 80},
		{50, 80},
		{49, 60},
		{0, 60},
	}
	for _, tc := range cases {
		if got := AdjustedRiskScore(100, tc.confidence); got != tc.want {
			t.Errorf("AdjustedRiskScore(100, %v) = %v, want %v", tc.confidence, got, tc.want)
		}
	}
}

func TestAdjustedRiskMonotoneAtBoundaries(t *testing.T) {
	for conf := 1.0; conf <= 100; conf++ {
		lower := AdjustedRiskScore(80, conf-1)
		higher := AdjustedRiskScore(80, conf)
		if higher < lower {
			t.Fatalf("adjusted risk decreased from conf %v to %v: %v -> %v", conf-1, conf, lower, higher)
		}
	}
}

// ===== end to end =====

func TestScenarioConfirmedKEVHighConfidence(t *testing.T) {
	e := newTestEngine(nil)
	item := credibleItem()
	item.CVSSv3 = fptr(9.8)
	item.EPSS = fptr(0.85)
	item.KEVListed = bptr(true)

	d := e.Decide(item, verified(96))
	if d.Route != model.RouteCritical {
		t.Fatalf("route = %s, want CRITICAL", d.Route)
	}
	if d.AdjustedRiskScore != d.RiskScore {
		t.Errorf("confidence 96 must carry no penalty: %v != %v", d.AdjustedRiskScore, d.RiskScore)
	}
	wantSLA := d.DecidedUTC.Add(4 * time.Hour)
	if !d.SLADueUTC.Equal(wantSLA) {
		t.Errorf("SLA due %v, want %v", d.SLADueUTC, wantSLA)
	}
}

func TestScenarioModerateEvidenceLowConfidence(t *testing.T) {
	e := newTestEngine(nil)
	item := credibleItem()
	item.CVSSv3 = fptr(8.0)

	d := e.Decide(item, verified(55))
	if d.Route != model.RouteWatchlist {
		t.Fatalf("route = %s, want WATCHLIST", d.Route)
	}
	wantAdjusted := d.RiskScore * 0.8
	if d.AdjustedRiskScore != wantAdjusted {
		t.Errorf("adjusted risk %v, want %v (20%% penalty)", d.AdjustedRiskScore, wantAdjusted)
	}
}
