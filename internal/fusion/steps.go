package fusion

import (
	"strings"

	"supplyfuse/internal/domain"
)

const monitorStep = "Monitor progress and update stakeholders as needed."

// NextSteps lists follow-ups for the decision. pendingApprovals is the number
// of approvals still awaiting a decision. The list always ends with a
// monitoring step.
func NextSteps(f Facts, d domain.Decision, pendingApprovals int) []string {
	steps := []string{}
	add := func(s string) { steps = append(steps, s) }
	ready := d.Status == domain.DecisionReady

	switch f.Branch {
	case BranchFulfillment:
		if pendingApprovals > 0 {
			add("Review and approve pending mitigation actions.")
		}
		if !ready {
			add("Align procurement and logistics on mitigation timelines.")
		}
		if f.LogisticsConstraint {
			add("Activate overflow carriers or expedite routing for constrained shipments.")
		}
		if ready {
			add("Communicate fulfillment plan to customer service.")
		}
	case BranchReplenishment:
		add("Review and execute replenishment plan based on demand trends.")
		if f.InventoryShortfall {
			add("Prioritize replenishment for shortage SKUs.")
		}
	case BranchExpedite:
		if f.LogisticsConstraint || f.InventoryShortfall {
			add("Initiate expedited shipment process.")
		} else {
			add("Continue monitoring; expedite not required at this time.")
		}
	case BranchCarrierActivation:
		if f.LogisticsConstraint {
			add("Activate backup carriers for constrained lanes.")
		}
	case BranchProduction:
		add("Review and implement cost-optimized production schedule.")
		add("Coordinate with production team on schedule execution.")
	case BranchPrioritization:
		add("Review order prioritization recommendations.")
		add("Update order management system with priority assignments.")
	case BranchCarrier:
		add("Review carrier comparison and logistics recommendations.")
		if f.LogisticsConstraint {
			add("Activate recommended carriers to address constraints.")
		}
	case BranchRevenue:
		add("Review revenue impact assessment and mitigation options.")
		if d.RiskLevel.Assessed() {
			add("Implement risk mitigation strategies for " + d.RiskLevel.Label() + " risk level.")
		}
	case BranchStockout:
		if len(f.Inventory.Shortages) > 0 {
			add("Initiate preventive replenishment for at-risk SKUs.")
		}
		add("Monitor stock levels and adjust forecasts.")
	case BranchSafetyStock:
		add("Review safety stock optimization recommendations.")
		add("Update safety stock levels in inventory management system.")
	case BranchInventoryForecast, BranchReconciliation:
		add("Review forecast analysis and adjust planning parameters.")
		if f.DemandStatus == domain.StatusDataGap {
			add("Provide updated inventory snapshot to the demand planning team.")
		}
	case BranchBriefing:
		add("Review executive briefing with leadership team.")
		add("Prioritize action items based on briefing insights.")
	default:
		if pendingApprovals > 0 {
			add("Review and approve pending actions.")
		}
		if d.RiskLevel.Assessed() {
			add("Monitor " + d.RiskLevel.Label() + " risk indicators.")
		}
	}
	switch {
	case len(f.Invoked) == 0:
		add("Resubmit the question so specialists can be planned and invoked.")
	case f.NoData():
		add("Restore connectivity to the failed specialists and resubmit the question.")
	}
	if len(steps) == 0 || !strings.Contains(strings.ToLower(steps[len(steps)-1]), "monitor") {
		add(monitorStep)
	}
	return steps
}
