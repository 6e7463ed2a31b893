package model

import "time"

// Route is the canonical routing outcome for a threat item. The engine
// uses the verification-aware taxonomy; DisplayRoute maps it onto the
// four-route presentation names.
type Route string

const (
	RouteDrop      Route = "DROP"
	RouteWatchlist Route = "WATCHLIST"
	RouteMedium    Route = "MEDIUM"
	RouteHigh      Route = "HIGH"
	RouteCritical  Route = "CRITICAL"
)

// DisplayRoute returns the presentation-layer name for a route.
// CRITICAL and HIGH surface as technical alerts, MEDIUM as a CISO
// report line item.
func (r Route) DisplayRoute() string {
	switch r {
	case RouteCritical, RouteHigh:
		return "TECHNICAL_ALERT"
	case RouteMedium:
		return "CISO_REPORT"
	case RouteWatchlist:
		return "WATCHLIST"
	default:
		return "DROP"
	}
}

// RoutingDecision is the engine output for one ThreatItem. Decisions are
// append-only: re-evaluation produces a new record, never an edit.
type RoutingDecision struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id"`
	Route     Route     `json:"route"`
	Display   string    `json:"display_route"`
	Reason    string    `json:"reason"` // identity of the rule that fired
	OwnerTeam string    `json:"owner_team,omitempty"`
	SLADueUTC time.Time `json:"sla_due_utc,omitempty"`

	RiskScore         float64 `json:"risk_score"`
	AdjustedRiskScore float64 `json:"adjusted_risk_score"`

	DecidedUTC time.Time `json:"decided_utc"`
}
