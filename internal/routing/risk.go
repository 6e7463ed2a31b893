package routing

import "github.com/tcollier/threatgate/internal/model"

// Exploit-likelihood threat weights for the risk blend. KEV presence
// dominates because exploitation is confirmed, not predicted.
const (
	threatKEV  = 1.0
	threatITW  = 0.9
	threatPoC  = 0.5
	threatNone = 0.15
)

// Confidence penalty bands applied to the raw risk score. Thresholds
// are inclusive lower bounds.
var penaltyBands = []struct {
	minConfidence float64
	penalty       float64
}{
	{95, 0.00},
	{80, 0.05},
	{70, 0.10},
	{50, 0.20},
	{0, 0.40},
}

// RiskScore blends severity with exploit likelihood into [0,100]. The
// severity half comes from CVSS (v4 preferred); the threat half from
// EPSS when present, otherwise from the exploit-status ladder. Items
// with no scoring facts at all sit at a low floor rather than zero so
// that verified but unscored advisories stay visible.
func RiskScore(item *model.ThreatItem) float64 {
	severity := 0.3 // unknown severity floor
	if cvss, ok := item.HasCVSS(); ok {
		severity = cvss / 10
	}

	threat := threatNone
	if item.IsKEVListed() {
		threat = threatKEV
	} else if item.EPSS != nil {
		threat = *item.EPSS
		if threat < threatNone {
			threat = threatNone
		}
	} else if item.ExploitStatus != nil {
		switch *item.ExploitStatus {
		case model.ExploitITW:
			threat = threatITW
		case model.ExploitPoC:
			threat = threatPoC
		}
	}

	score := severity * threat * 100
	if score > 100 {
		score = 100
	}
	return score
}

// AdjustedRiskScore discounts the raw risk by the verification
// confidence band. Higher confidence always yields an equal or higher
// adjusted score for the same raw risk.
func AdjustedRiskScore(risk, confidence float64) float64 {
	for _, band := range penaltyBands {
		if confidence >= band.minConfidence {
			return risk * (1 - band.penalty)
		}
	}
	return risk * (1 - penaltyBands[len(penaltyBands)-1].penalty)
}
