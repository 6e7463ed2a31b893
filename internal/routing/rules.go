package routing

import (
	"fmt"

	"github.com/tcollier/threatgate/internal/config"
	"github.com/tcollier/threatgate/internal/model"
)

// Rule is one step of the routing cascade. Rules are evaluated in
// order and the first match decides the route; the rule ID is recorded
// on the decision so every outcome is explainable.
type Rule struct {
	ID    string
	Route model.Route
	Match func(rc ruleContext) (bool, string)
}

// ruleContext carries everything a rule may consult.
type ruleContext struct {
	item       *model.ThreatItem
	confidence float64
	thresholds config.Thresholds
	exposed    map[string]bool
	crownHit   string // name of the matched crown jewel, "" if none
}

func (rc ruleContext) cvss() (float64, bool) { return rc.item.HasCVSS() }

func (rc ruleContext) epss() float64 {
	if rc.item.EPSS == nil {
		return 0
	}
	return *rc.item.EPSS
}

func (rc ruleContext) exploitedInTheWild() bool {
	return rc.item.ExploitStatus != nil && *rc.item.ExploitStatus == model.ExploitITW
}

// internetExposed reports whether any affected product is declared
// internet-facing in the asset inventory.
func (rc ruleContext) internetExposed() bool {
	for _, p := range rc.item.AffectedProducts {
		if rc.exposed[p.Vendor+"/"+p.Product] {
			return true
		}
	}
	return false
}

// criticalFacts reports whether the item carries any of the facts that
// qualify for CRITICAL, independent of confidence and exposure gates.
func (rc ruleContext) criticalFacts() (bool, string) {
	if rc.item.IsKEVListed() {
		return true, "listed on exploited catalog"
	}
	if rc.epss() >= rc.thresholds.EPSSCritical {
		return true, fmt.Sprintf("EPSS %.2f", rc.epss())
	}
	if rc.exploitedInTheWild() && rc.internetExposed() {
		return true, "active exploitation of internet-facing product"
	}
	if cvss, ok := rc.cvss(); ok && cvss >= rc.thresholds.CVSSCritical {
		return true, fmt.Sprintf("CVSS %.1f", cvss)
	}
	return false, ""
}

// defaultRules is the ordered cascade.
func defaultRules() []Rule {
	return []Rule{
		{
			ID:    "drop-below-confidence-floor",
			Route: model.RouteDrop,
			Match: func(rc ruleContext) (bool, string) {
				if rc.item.FailsCredibilityFloor() {
					return true, "fails credibility floor"
				}
				if rc.confidence < rc.thresholds.MinDisplayConfidence {
					return true, fmt.Sprintf("confidence %.0f below display minimum", rc.confidence)
				}
				return false, ""
			},
		},
		{
			ID:    "critical-confirmed-exploitation",
			Route: model.RouteCritical,
			Match: func(rc ruleContext) (bool, string) {
				if rc.confidence < rc.thresholds.CriticalConfidence {
					return false, ""
				}
				return rc.criticalFacts()
			},
		},
		{
			ID:    "high-severity-or-crown-jewel",
			Route: model.RouteHigh,
			Match: func(rc ruleContext) (bool, string) {
				if rc.crownHit != "" {
					return true, "affects crown jewel " + rc.crownHit
				}
				if cvss, ok := rc.cvss(); ok &&
					cvss >= rc.thresholds.CVSSHigh && cvss < rc.thresholds.CVSSCritical &&
					rc.confidence >= rc.thresholds.ActionableConfidence {
					return true, fmt.Sprintf("CVSS %.1f", cvss)
				}
				if e := rc.epss(); e >= rc.thresholds.EPSSHigh && e < rc.thresholds.EPSSCritical {
					return true, fmt.Sprintf("EPSS %.2f", e)
				}
				return false, ""
			},
		},
		{
			ID:    "medium-moderate-severity",
			Route: model.RouteMedium,
			Match: func(rc ruleContext) (bool, string) {
				if rc.confidence < rc.thresholds.ActionableConfidence {
					return false, ""
				}
				if cvss, ok := rc.cvss(); ok &&
					cvss >= rc.thresholds.CVSSMedium && cvss < rc.thresholds.CVSSHigh {
					return true, fmt.Sprintf("CVSS %.1f", cvss)
				}
				// High-impact facts that failed the critical gate on
				// exposure or confidence still warrant a report line.
				if ok, why := rc.criticalFacts(); ok {
					return true, why + " below critical gate"
				}
				if rc.exploitedInTheWild() {
					return true, "active exploitation, exposure unconfirmed"
				}
				return false, ""
			},
		},
		{
			ID:    "watchlist-default",
			Route: model.RouteWatchlist,
			Match: func(rc ruleContext) (bool, string) {
				return true, "credible, no actionable severity facts"
			},
		},
	}
}
