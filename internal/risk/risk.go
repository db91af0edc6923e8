// Package risk fuses pattern output and external category signals into
// bounded scores. Outputs are heuristic risk signals, not proofs.
package risk

import (
	"walletscope/internal/ledger"
	"walletscope/internal/pattern"
	"walletscope/internal/riskapi"
)

// Factor is one named contribution to an overall score.
type Factor struct {
	Name        string  `json:"name"`
	Score       float64 `json:"score"`
	Description string  `json:"description"`
}

// Report is the pattern-based internal risk report for a wallet.
type Report struct {
	OverallScore    float64  `json:"overallScore"`
	Factors         []Factor `json:"factors"`
	Recommendations []string `json:"recommendations"`
}

// Internal fusion weights.
const (
	weightPattern     = 0.4
	weightVolume      = 0.3
	weightInteraction = 0.15
	weightTemporal    = 0.15
)

// Factor normalisation knees: the amount, counterparty count, and hourly
// burst size at which each factor saturates.
const (
	volumeKnee      = 1000.0
	interactionKnee = 50.0
	temporalKnee    = 20.0
)

const advisoryKnee = 0.7

// Fixed advisory strings, emitted when the matching factor crosses 0.7.
const (
	advicePattern     = "multiple suspicious behavior patterns detected; review flagged transfers before further interaction"
	adviceVolume      = "average transfer size is unusually large; verify the source of funds"
	adviceInteraction = "wallet touches an unusually wide counterparty set; screen top counterparties individually"
	adviceTemporal    = "bursts of transfers inside single hours; automated or coordinated activity likely"
)

func severityWeight(s pattern.Severity) float64 {
	switch s {
	case pattern.SeverityHigh:
		return 1.0
	case pattern.SeverityMedium:
		return 0.6
	default:
		return 0.3
	}
}

// Score builds the internal risk report from the transfer sequence and the
// patterns detected over it. Degenerate inputs score zero instead of
// dividing by zero.
func Score(focal string, transfers []ledger.TransferRecord, patterns []pattern.Pattern) Report {
	patternRisk := patternFactor(patterns)
	volumeRisk := volumeFactor(transfers)
	interactionRisk := interactionFactor(focal, transfers)
	temporalRisk := temporalFactor(transfers)

	overall := clamp01(weightPattern*patternRisk +
		weightVolume*volumeRisk +
		weightInteraction*interactionRisk +
		weightTemporal*temporalRisk)

	report := Report{
		OverallScore: overall,
		Factors: []Factor{
			{Name: "pattern", Score: patternRisk, Description: "severity-weighted confidence of detected behavior patterns"},
			{Name: "volume", Score: volumeRisk, Description: "average transfer amount relative to typical wallet activity"},
			{Name: "interaction", Score: interactionRisk, Description: "breadth of the unique counterparty set"},
			{Name: "temporal", Score: temporalRisk, Description: "densest hour of activity relative to normal cadence"},
		},
	}

	for _, adv := range []struct {
		score  float64
		advice string
	}{
		{patternRisk, advicePattern},
		{volumeRisk, adviceVolume},
		{interactionRisk, adviceInteraction},
		{temporalRisk, adviceTemporal},
	} {
		if adv.score > advisoryKnee {
			report.Recommendations = append(report.Recommendations, adv.advice)
		}
	}

	return report
}

func patternFactor(patterns []pattern.Pattern) float64 {
	if len(patterns) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range patterns {
		sum += severityWeight(p.Severity) * p.Confidence
	}
	return clamp01(sum / float64(len(patterns)))
}

func volumeFactor(transfers []ledger.TransferRecord) float64 {
	if len(transfers) == 0 {
		return 0
	}
	total := 0.0
	for _, t := range transfers {
		total += t.Amount.InexactFloat64()
	}
	avg := total / float64(max(len(transfers), 1))
	return clamp01(avg / volumeKnee)
}

func interactionFactor(focal string, transfers []ledger.TransferRecord) float64 {
	unique := make(map[string]bool)
	for _, t := range transfers {
		if t.From != focal {
			unique[t.From] = true
		}
		if t.To != focal {
			unique[t.To] = true
		}
	}
	return clamp01(float64(len(unique)) / interactionKnee)
}

func temporalFactor(transfers []ledger.TransferRecord) float64 {
	buckets := make(map[int64]int)
	peak := 0
	for _, t := range transfers {
		hour := t.Timestamp / 3600
		buckets[hour]++
		if buckets[hour] > peak {
			peak = buckets[hour]
		}
	}
	return clamp01(float64(peak) / temporalKnee)
}

// External fusion weights per risk category.
const (
	weightThreat   = 0.30
	weightSanction = 0.20
	weightApproval = 0.15
	weightExposure = 0.20
	weightContract = 0.15
)

// ExternalReport is the fused view of the five external risk categories.
type ExternalReport struct {
	OverallScore float64  `json:"overallScore"`
	Categories   []Factor `json:"categories"`
	Degraded     []string `json:"degraded,omitempty"`
}

// FuseExternal combines the five category signals into one bounded score.
// Categories the service failed to answer arrive as neutral zero-risk
// defaults, so a fully degraded assessment fuses to zero.
func FuseExternal(a riskapi.Assessment) ExternalReport {
	threat := clamp01(a.Threat.RiskScore)

	sanction := 0.0
	if a.Sanction.Sanctioned {
		sanction = 1.0
	}

	approval := 0.0
	if n := len(a.Approval.Approvals); n > 0 {
		sum := 0.0
		for _, ap := range a.Approval.Approvals {
			sum += clamp01(ap.RiskScore)
		}
		approval = sum / float64(n)
	}

	exposure := clamp01(a.Exposure.ExposureScore)
	contract := clamp01(a.Contract.RiskScore)

	overall := clamp01(weightThreat*threat +
		weightSanction*sanction +
		weightApproval*approval +
		weightExposure*exposure +
		weightContract*contract)

	return ExternalReport{
		OverallScore: overall,
		Categories: []Factor{
			{Name: string(riskapi.CategoryThreat), Score: threat, Description: "known threat intelligence on the address"},
			{Name: string(riskapi.CategorySanction), Score: sanction, Description: "presence on sanction screening lists"},
			{Name: string(riskapi.CategoryApproval), Score: approval, Description: "mean risk of outstanding token approvals"},
			{Name: string(riskapi.CategoryExposure), Score: exposure, Description: "indirect exposure to flagged funds"},
			{Name: string(riskapi.CategoryContract), Score: contract, Description: "risk of contracts the wallet interacts with"},
		},
		Degraded: a.Degraded,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
