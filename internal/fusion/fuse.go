// Package fusion merges normalized specialist records into one risk-weighted
// decision. Everything here is a pure function of its inputs.
package fusion

import (
	"fmt"
	"strings"

	"supplyfuse/internal/domain"
)

const (
	highRiskThreshold   = 0.65
	mediumRiskThreshold = 0.45

	blockerDualConstraint = "Inventory and logistics constraints require immediate mitigation."
	blockerLogistics      = "Logistics capacity below demand volume"
	blockerHighRisk       = "Risk posture is high; mitigation required"
)

// Result is the fused outcome before actions are generated.
type Result struct {
	Facts     Facts
	Decision  domain.Decision
	RiskScore *float64
	Summary   string
	Findings  []domain.AgentFinding
}

// Fuse combines the records of one query. Calling it twice with the same
// inputs yields identical results.
func Fuse(records []domain.SpecialistRecord, queryType string, w Weights) Result {
	if w == nil {
		w = DefaultWeights()
	}
	f := Extract(records, queryType)
	score, signals := assessRisk(f)
	level := domain.RiskLevelFromScore(score)
	blockers := collectBlockers(f)
	if level == domain.RiskHigh {
		blockers = appendUnique(blockers, blockerHighRisk)
	}

	canFulfill := !f.InventoryShortfall && !f.LogisticsConstraint && level != domain.RiskHigh &&
		len(f.Unverified()) == 0
	d := domain.Decision{
		Status:            domain.DecisionNeedsMitigation,
		RiskLevel:         level,
		Blockers:          blockers,
		Confidence:        AggregateConfidence(records, w),
		RiskSignals:       signals,
		ConfidenceWeights: w,
	}
	if canFulfill {
		d.Status = domain.DecisionReady
	}
	if f.Branch == BranchFulfillment {
		d.CanFulfill = &canFulfill
	}

	if f.NoData() {
		d.Confidence = 0
		d.CanFulfill = nil
		d.Blockers = appendUnique(d.Blockers, noDataBlocker(f))
	}

	res := Result{
		Facts:     f,
		Decision:  d,
		RiskScore: f.Risk.OverallRiskScore,
	}
	res.Summary = Narrative(f, d)
	res.Findings = Findings(records, f, d)
	return res
}

func noDataBlocker(f Facts) string {
	if len(f.Invoked) == 0 {
		return "No agent data: no specialists were invoked"
	}
	return "No agent data: specialists failed (" + agentNames(f.Failed, ", ") + ")"
}

func failedBlocker(agent domain.AgentType) string {
	return fmt.Sprintf("No data from the %s specialist: invocation failed", agent)
}

type riskAccumulator struct {
	score   int
	signals []string
}

func (r *riskAccumulator) raise(to int) {
	if to > r.score {
		r.score = to
	}
}

func (r *riskAccumulator) signal(format string, args ...any) {
	r.signals = appendUnique(r.signals, fmt.Sprintf(format, args...))
}

// applyLevel maps a textual level to the 0-3 scale. Advisory sources are
// capped at medium.
func (r *riskAccumulator) applyLevel(level, source string, advisory bool) {
	mapped := MapRiskLevel(level)
	if mapped == 3 && advisory {
		mapped = 2
	}
	if mapped == 0 {
		return
	}
	r.raise(mapped)
	r.signal("%s: %s risk level reported.", source, domain.RiskLevelFromScore(mapped))
}

// MapRiskLevel maps the vocabulary specialists use onto the 0-3 ordinal scale.
func MapRiskLevel(level string) int {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "critical", "very_high", "severe", "high":
		return 3
	case "medium", "moderate":
		return 2
	case "low", "minimal", "clear":
		return 1
	}
	return 0
}

func assessRisk(f Facts) (int, []string) {
	r := &riskAccumulator{signals: []string{}}
	if s := f.Risk.OverallRiskScore; s != nil {
		switch {
		case *s >= highRiskThreshold:
			r.applyLevel("high", "Risk agent", false)
		case *s >= mediumRiskThreshold:
			r.applyLevel("medium", "Risk agent", false)
		default:
			r.applyLevel("low", "Risk agent", false)
		}
		r.signal("Overall risk score %.2f", *s)
	}
	if f.Risk.RiskLevel != "" {
		r.applyLevel(f.Risk.RiskLevel, "Risk categories", false)
	}
	if f.RiskStatus != "" {
		r.applyLevel(f.RiskStatus, "Risk narrative", true)
	}

	switch {
	case f.InventoryShortfall && f.LogisticsConstraint:
		r.raise(3)
		r.signal("Simultaneous inventory and logistics constraints detected.")
	case f.InventoryShortfall:
		r.raise(2)
		r.signal("Inventory shortfall requires mitigation.")
	case f.LogisticsConstraint:
		r.raise(2)
		r.signal("Logistics constraints detected.")
	}
	if units := f.TotalShortageUnits(); units > 0 {
		r.raise(2)
		r.signal("Total shortage units identified: %d", units)
	}
	if u := f.Logistics.CapacityUtilization; u != "" {
		r.signal("Logistics capacity utilization %s", u)
	}
	if e := f.Risk.Exposure; e.InventoryShortageUnits > 0 {
		r.raise(2)
		r.signal("Inventory exposure: %d shortage units (~%s)", e.InventoryShortageUnits, wholeDollars(e.InventoryRevenueAtRisk))
	}
	if n := f.Risk.Exposure.LogisticsOrdersNeedingRoutes; n > 0 {
		r.raise(2)
		r.signal("Logistics exposure: %d orders awaiting routing", n)
	}
	return r.score, r.signals
}

func collectBlockers(f Facts) []string {
	blockers := []string{}
	switch {
	case f.InventoryShortfall && f.LogisticsConstraint:
		blockers = append(blockers, blockerDualConstraint)
	case f.InventoryShortfall:
		if phrases := f.ShortagePhrases(); len(phrases) > 0 {
			blockers = append(blockers, "Inventory shortages in "+strings.Join(phrases, ", "))
		}
	case f.LogisticsConstraint:
		blockers = append(blockers, blockerLogistics)
	}
	for _, b := range f.InventoryBlockers {
		blockers = appendUnique(blockers, b)
	}
	for _, b := range f.LogisticsBlockers {
		blockers = appendUnique(blockers, b)
	}
	if !f.NoData() {
		for _, a := range f.Failed {
			blockers = appendUnique(blockers, failedBlocker(a))
		}
	}
	return blockers
}

func appendUnique(items []string, item string) []string {
	if strings.TrimSpace(item) == "" {
		return items
	}
	for _, existing := range items {
		if existing == item {
			return items
		}
	}
	return append(items, item)
}
