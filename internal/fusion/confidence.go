package fusion

import (
	"math"

	"supplyfuse/internal/domain"
)

const (
	baseConfidence    = 0.80
	minConfidence     = 0.40
	maxConfidence     = 0.95
	riskConfidenceCap = 0.92
	blockerPenalty    = 0.05
	fallbackWeight    = 0.10
)

var statusConfidence = map[string]float64{
	domain.StatusError:      0.25,
	domain.StatusDataGap:    0.45,
	domain.StatusShortfall:  0.70,
	domain.StatusConstraint: 0.65,
	domain.StatusInsight:    0.82,
	domain.StatusClear:      0.90,
	domain.StatusSufficient: 0.88,
	"surplus":               0.90,
	"high":                  0.62,
	"medium":                0.75,
	"low":                   0.88,
}

// Weights are the per-domain shares of the aggregate confidence.
type Weights map[domain.AgentType]float64

func DefaultWeights() Weights {
	return Weights{
		domain.AgentInventory: 0.35,
		domain.AgentDemand:    0.25,
		domain.AgentLogistics: 0.25,
		domain.AgentRisk:      0.15,
	}
}

func (w Weights) weight(agent domain.AgentType) float64 {
	if v, ok := w[agent]; ok && v > 0 {
		return v
	}
	return fallbackWeight
}

// InferConfidence derives a confidence from status and content for records
// that did not self-report one. The result is clamped to [0.40, 0.95].
func InferConfidence(rec domain.SpecialistRecord) float64 {
	c, ok := statusConfidence[rec.Status]
	if !ok {
		c = baseConfidence
	}
	switch rec.AgentType {
	case domain.AgentInventory:
		if rec.Status == domain.StatusShortfall || rec.Status == domain.StatusConstraint {
			c -= blockerPenalty
		}
	case domain.AgentRisk:
		if rec.Status == "high" || rec.Status == "medium" {
			c = math.Min(c+blockerPenalty, riskConfidenceCap)
		}
	}
	if len(rec.Blockers) > 0 {
		c -= blockerPenalty
	}
	return round2(clamp(c, minConfidence, maxConfidence))
}

// Confidence returns the effective confidence of a record: zero for failed
// invocations, the reported value when present, otherwise the inferred one.
func Confidence(rec domain.SpecialistRecord) float64 {
	switch {
	case rec.Failed():
		return 0
	case rec.ConfidenceReported:
		return clamp(rec.Confidence, 0, 1)
	default:
		return InferConfidence(rec)
	}
}

// AggregateConfidence is the weighted mean over the invoked specialists,
// renormalized so absent specialists do not dilute the result. Only the first
// record per agent counts.
func AggregateConfidence(records []domain.SpecialistRecord, w Weights) float64 {
	var sum, total float64
	seen := map[domain.AgentType]bool{}
	for _, rec := range records {
		if seen[rec.AgentType] {
			continue
		}
		seen[rec.AgentType] = true
		weight := w.weight(rec.AgentType)
		sum += Confidence(rec) * weight
		total += weight
	}
	if total == 0 {
		return 0
	}
	return round2(sum / total)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
