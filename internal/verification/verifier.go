// Package verification re-checks threat items against external evidence
// before routing. Structured verification consults free authoritative
// APIs, grounding buys web corroboration, and hybrid blends the two.
// Results are cached per item and paid calls are gated by a monthly
// budget ledger.
package verification

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tcollier/threatgate/internal/config"
	"github.com/tcollier/threatgate/internal/model"
	"github.com/tcollier/threatgate/internal/observability"
)

// ErrDisabled is returned when verification is switched off entirely.
var ErrDisabled = errors.New("verification disabled")

// Verifier runs the verification cascade for threat items. Concurrent
// requests for the same item collapse into a single in-flight attempt.
type Verifier struct {
	cfg        config.VerificationConfig
	structured []StructuredSource
	grounding  GroundingProvider
	store      ResultStore
	ledger     *Ledger
	metrics    *observability.Metrics
	logger     *zap.Logger
	group      singleflight.Group
	now        func() time.Time
}

// New builds a Verifier. grounding may be nil when only structured
// verification is configured.
func New(cfg config.VerificationConfig, structured []StructuredSource, grounding GroundingProvider, store ResultStore, metrics *observability.Metrics, logger *zap.Logger) *Verifier {
	return &Verifier{
		cfg:        cfg,
		structured: structured,
		grounding:  grounding,
		store:      store,
		ledger:     NewLedger(cfg.MonthlyBudget),
		metrics:    metrics,
		logger:     logger.Named("verification"),
		now:        time.Now,
	}
}

// Ledger exposes the budget ledger for status reporting.
func (v *Verifier) Ledger() *Ledger { return v.ledger }

// Verify resolves a verification result for the item, serving from cache
// when a fresh snapshot exists. The key is the item's dedupe key so that
// re-observations of the same threat share one verdict.
func (v *Verifier) Verify(ctx context.Context, item *model.ThreatItem) (*model.VerificationResult, error) {
	if v.cfg.Method == model.MethodDisabled {
		return nil, ErrDisabled
	}
	key := item.DedupeKey
	if key == "" {
		key = item.ID
	}

	cached, err := v.store.Get(ctx, key)
	if err != nil {
		v.logger.Warn("verification cache read failed", zap.String("key", key), zap.Error(err))
	}
	if cached != nil && !cached.Expired(v.now()) {
		v.metrics.VerificationCacheHit.Inc()
		hit := *cached
		hit.Cached = true
		hit.Cost = 0
		return &hit, nil
	}

	res, err, _ := v.group.Do(key, func() (any, error) {
		return v.verify(ctx, key, item)
	})
	if err != nil {
		return nil, err
	}
	return res.(*model.VerificationResult), nil
}

// verify runs the configured method with fallback. A paid method that
// cannot reserve budget downgrades to structured; a method that fails
// after retries falls back to the alternate; when everything fails the
// item gets an unverified low-confidence snapshot with the failure TTL.
func (v *Verifier) verify(ctx context.Context, key string, item *model.ThreatItem) (*model.VerificationResult, error) {
	method := v.cfg.Method
	downgraded := false
	if v.wantsGrounding(method) && !v.reserveGrounding() {
		v.metrics.BudgetDowngrades.Inc()
		v.logger.Info("budget exhausted, downgrading to structured",
			zap.String("item_id", item.ID),
			zap.Float64("spent", v.ledger.Spent()))
		method = model.MethodStructured
		downgraded = true
	}

	result, err := v.attempt(ctx, method, item)
	if err != nil {
		if v.wantsGrounding(method) {
			v.ledger.Release(v.cfg.GroundingCost)
		}
		alt := v.alternate(method)
		if alt != "" {
			v.logger.Warn("verification method failed, trying alternate",
				zap.String("item_id", item.ID),
				zap.String("method", string(method)),
				zap.String("alternate", string(alt)),
				zap.Error(err))
			result, err = v.attempt(ctx, alt, item)
		}
	}
	if err != nil {
		v.metrics.VerificationRequests.WithLabelValues(string(method), "failed").Inc()
		result = &model.VerificationResult{
			ItemID:        item.ID,
			Verified:      false,
			Method:        method,
			LowConfidence: true,
			Timestamp:     v.now(),
		}
	} else {
		outcome := "unverified"
		if result.Verified {
			outcome = "verified"
		}
		v.metrics.VerificationRequests.WithLabelValues(string(result.Method), outcome).Inc()
	}

	result.Downgraded = downgraded
	if result.Verified {
		result.TTL = v.cfg.VerifiedTTL
	} else {
		result.TTL = v.cfg.FailedTTL
	}
	v.metrics.BudgetSpent.Set(v.ledger.Spent())

	if err := v.store.Put(ctx, key, result); err != nil {
		v.logger.Warn("verification cache write failed", zap.String("key", key), zap.Error(err))
	}
	return result, nil
}

// attempt runs one method with bounded retries and backoff.
func (v *Verifier) attempt(ctx context.Context, method model.Method, item *model.ThreatItem) (*model.VerificationResult, error) {
	var lastErr error
	attempts := v.cfg.RetryCount
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(v.cfg.RetryBackoff * time.Duration(i)):
			}
		}
		var res *model.VerificationResult
		var err error
		switch method {
		case model.MethodStructured:
			res, err = v.structuredVerify(ctx, item)
		case model.MethodGrounding:
			res, err = v.groundingVerify(ctx, item)
		case model.MethodHybrid:
			res, err = v.hybridVerify(ctx, item)
		default:
			return nil, ErrDisabled
		}
		if err == nil {
			return res, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// hybridVerify blends structured and grounding confidence with the
// configured weights. When both halves land above the agreement floor
// the blend earns an agreement bonus.
func (v *Verifier) hybridVerify(ctx context.Context, item *model.ThreatItem) (*model.VerificationResult, error) {
	structured, err := v.structuredVerify(ctx, item)
	if err != nil {
		return nil, err
	}
	grounded, err := v.groundingVerify(ctx, item)
	if err != nil {
		return nil, err
	}

	score := v.cfg.StructuredWeight*structured.ConfidenceScore +
		v.cfg.GroundingWeight*grounded.ConfidenceScore
	if structured.ConfidenceScore >= v.cfg.AgreementFloor &&
		grounded.ConfidenceScore >= v.cfg.AgreementFloor {
		score += v.cfg.AgreementBonus
	}
	if score > 100 {
		score = 100
	}
	return &model.VerificationResult{
		ItemID:          item.ID,
		Verified:        score >= verifiedThreshold,
		ConfidenceScore: score,
		Method:          model.MethodHybrid,
		Sources:         append(structured.Sources, grounded.Sources...),
		Cost:            grounded.Cost,
		Timestamp:       v.now(),
	}, nil
}

func (v *Verifier) wantsGrounding(method model.Method) bool {
	return method == model.MethodGrounding || method == model.MethodHybrid
}

func (v *Verifier) reserveGrounding() bool {
	if v.grounding == nil {
		return false
	}
	return v.ledger.Reserve(v.cfg.GroundingCost)
}

// alternate returns the fallback method, or "" when none applies.
func (v *Verifier) alternate(method model.Method) model.Method {
	switch method {
	case model.MethodGrounding, model.MethodHybrid:
		return model.MethodStructured
	default:
		return ""
	}
}
