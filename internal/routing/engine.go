// Package routing turns verified threat items into routing decisions
// through an ordered rule cascade. Every decision records the rule that
// fired, the risk score, and the confidence-adjusted risk score.
package routing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tcollier/threatgate/internal/config"
	"github.com/tcollier/threatgate/internal/model"
	"github.com/tcollier/threatgate/internal/observability"
)

// Engine evaluates the rule cascade against organizational context.
// The context is read-only; the engine never mutates it.
type Engine struct {
	org     config.OrganizationContext
	exposed map[string]bool
	rules   []Rule
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// New builds an Engine over the given organizational context.
func New(org config.OrganizationContext, metrics *observability.Metrics, logger *zap.Logger) *Engine {
	return &Engine{
		org:     org,
		exposed: org.ExposedProducts(),
		rules:   defaultRules(),
		metrics: metrics,
		logger:  logger.Named("routing"),
		now:     time.Now,
	}
}

// Decide routes one item. Confidence comes from the verification
// snapshot; when verification is disabled the partial quality score
// assigned at normalization stands in.
func (e *Engine) Decide(item *model.ThreatItem, verification *model.VerificationResult) model.RoutingDecision {
	confidence := item.QualityScore
	if verification != nil {
		confidence = verification.ConfidenceScore
	}

	rc := ruleContext{
		item:       item,
		confidence: confidence,
		thresholds: e.org.Thresholds,
		exposed:    e.exposed,
		crownHit:   e.crownJewelMatch(item),
	}

	var (
		route  model.Route
		reason string
	)
	for _, rule := range e.rules {
		if ok, why := rule.Match(rc); ok {
			route = rule.Route
			reason = fmt.Sprintf("%s: %s", rule.ID, why)
			break
		}
	}

	risk := RiskScore(item)
	decided := e.now()
	decision := model.RoutingDecision{
		ID:                uuid.New().String(),
		ItemID:            item.ID,
		Route:             route,
		Display:           route.DisplayRoute(),
		Reason:            reason,
		OwnerTeam:         e.org.OwnerTeams[string(route)],
		RiskScore:         risk,
		AdjustedRiskScore: AdjustedRiskScore(risk, confidence),
		DecidedUTC:        decided,
	}
	if hours, ok := e.org.SLAHours[string(route)]; ok && route != model.RouteDrop {
		decision.SLADueUTC = decided.Add(time.Duration(hours) * time.Hour)
	}

	e.metrics.Decisions.WithLabelValues(string(route)).Inc()
	e.logger.Info("routing decision",
		zap.String("item_id", item.ID),
		zap.String("route", string(route)),
		zap.String("reason", reason),
		zap.Float64("confidence", confidence),
		zap.Float64("risk", risk),
		zap.Float64("adjusted_risk", decision.AdjustedRiskScore))
	return decision
}

// crownJewelMatch returns the name of the first crown jewel whose
// product set intersects the item's affected products.
func (e *Engine) crownJewelMatch(item *model.ThreatItem) string {
	for _, jewel := range e.org.CrownJewels {
		for _, jp := range jewel.Products {
			for _, ip := range item.AffectedProducts {
				if jp.Vendor == ip.Vendor && jp.Product == ip.Product {
					return jewel.Name
				}
			}
		}
	}
	return ""
}
