package fusion

import (
	"fmt"
	"strings"

	"supplyfuse/internal/domain"
)

type sentences []string

func (s *sentences) add(format string, args ...any) {
	*s = append(*s, fmt.Sprintf(format, args...))
}

func (s sentences) String() string { return strings.Join(s, " ") }

// Narrative composes the deterministic summary for a fused decision. Every
// figure comes from the extracted facts; yes/no questions are answered first.
func Narrative(f Facts, d domain.Decision) string {
	if f.NoData() {
		return noDataNarrative(f)
	}
	var s sentences
	level := d.RiskLevel
	switch f.Branch {
	case BranchFulfillment:
		fulfillmentNarrative(&s, f, d)
	case BranchStockout:
		switch phrases := f.ShortagePhrases(); {
		case f.failed(domain.AgentInventory):
			s.add("Stockout exposure could not be assessed without inventory data.")
		case len(phrases) > 0:
			s.add("SKUs at risk of stockout: %s.", strings.Join(phrases, ", "))
		case f.TotalShortageUnits() > 0:
			s.add("%d total units at risk across %d SKU(s).", f.TotalShortageUnits(), len(f.Inventory.Shortages))
		default:
			s.add("No stockouts projected in the forecast period.")
		}
		if len(f.InventoryRecommendations) > 0 {
			s.add("Replenishment recommendations available.")
		}
	case BranchReplenishment:
		replenishmentNarrative(&s, f)
	case BranchExpedite:
		if f.LogisticsConstraint || f.InventoryShortfall {
			s.add("Expedited shipments recommended to address constraints.")
		} else {
			s.add("Standard shipping timelines are sufficient; expedite not required.")
		}
		if n := f.Logistics.OrdersNeedingRoutes; n > 0 {
			s.add("%d orders require routing assignment.", n)
		}
	case BranchCarrierActivation:
		if f.LogisticsConstraint {
			s.add("Backup carrier activation recommended.")
		} else {
			s.add("Current carrier capacity sufficient; backup activation not required.")
		}
	case BranchCarrier:
		if u := f.Logistics.CapacityUtilization; u != "" {
			s.add("Current capacity utilization: %s.", u)
		}
		if len(f.LogisticsRecommendations) > 0 {
			s.add("Carrier comparison and recommendations available.")
		} else {
			s.add("Logistics analysis complete with carrier performance metrics.")
		}
	case BranchRevenue:
		revenue := f.Demand.RevenueAtRisk
		if revenue == 0 {
			revenue = f.Demand.TotalOrderValue
		}
		if revenue > 0 {
			s.add("Revenue impact assessed: %s at risk.", dollars(revenue))
		}
		if level.Assessed() {
			s.add("Risk level: %s.", level)
		}
		if len(d.RiskSignals) > 0 {
			s.add("Key risk factors: %s.", strings.Join(capList(d.RiskSignals, 2), ", "))
		}
	case BranchProduction:
		if drivers := f.demandDrivers(3); drivers != "" {
			s.add("Production schedule optimized for high-demand SKUs: %s.", drivers)
		}
		if f.InventoryShortfall {
			s.add("Production schedule accounts for inventory gaps.")
		}
		s.add("Cost-optimized production schedule generated.")
	case BranchPrioritization:
		if drivers := f.demandDrivers(3); drivers != "" {
			s.add("High-priority orders identified for SKUs: %s.", drivers)
		}
		if level.Assessed() {
			s.add("Prioritization considers risk level: %s.", level)
		}
		s.add("Customer order prioritization recommendations available.")
	case BranchDiversification:
		if level.Assessed() {
			s.add("Supplier diversification recommendations consider risk level: %s.", level)
		}
		s.add("Supplier diversification analysis for critical SKUs complete.")
	case BranchSupplier:
		if len(d.RiskSignals) > 0 {
			s.add("Supplier performance analysis: %s.", strings.Join(capList(d.RiskSignals, 2), ", "))
		}
		s.add("Supplier delivery performance assessment complete.")
	case BranchSLA:
		switch {
		case f.LogisticsConstraint:
			s.add("SLA targets at risk due to logistics constraints.")
		case f.InventoryShortfall:
			s.add("SLA targets at risk due to inventory shortages.")
		default:
			s.add("Current operations align with SLA targets.")
		}
		if level.Assessed() {
			s.add("Overall risk posture: %s.", level)
		}
	case BranchMarkdown:
		if len(f.Demand.HighDemandProducts) > 0 {
			s.add("Demand-driven markdown recommendations generated.")
		} else {
			s.add("Markdown analysis complete based on demand patterns.")
		}
	case BranchInventoryForecast:
		if phrases := f.ShortagePhrases(); len(phrases) > 0 {
			s.add("Forecast indicates potential shortages: %s.", strings.Join(phrases, ", "))
		} else if f.failed(domain.AgentInventory) {
			s.add("Inventory forecast could not be produced without inventory data.")
		} else {
			s.add("Inventory forecast shows adequate stock levels.")
		}
		if drivers := f.demandDrivers(3); drivers != "" {
			s.add("High-demand SKUs to monitor: %s.", drivers)
		}
	case BranchReallocation:
		reallocationNarrative(&s, f)
	case BranchSurge:
		if f.Demand.SurgeDetected {
			s.add("Demand surge of %.1f%% detected; impact analysis complete.", f.Demand.OverallSurgePercentage)
		}
		s.add("Simulation results available for demand surge scenario.")
	case BranchLateDelivery:
		if f.LogisticsConstraint {
			s.add("Orders at risk of late delivery identified.")
		}
		if n := f.Logistics.OrdersNeedingRoutes; n > 0 {
			s.add("%d orders require routing to avoid delays.", n)
		}
		s.add("Delivery risk assessment complete.")
	case BranchSafetyStock:
		if phrases := f.ShortagePhrases(); len(phrases) > 0 {
			s.add("Safety stock optimization addresses shortages in %s.", strings.Join(phrases, ", "))
		}
		s.add("Safety stock optimization recommendations generated.")
	case BranchReconciliation:
		s.add("Demand reconciliation analysis comparing actual vs forecast complete.")
		if t := f.Demand.DemandTrend; t != "" {
			s.add("Demand trend: %s.", t)
		}
	case BranchBriefing:
		s.add("Executive briefing generated with comprehensive supply chain insights.")
		if level.Assessed() {
			s.add("Overall risk posture: %s.", level)
		}
		if drivers := f.demandDrivers(3); drivers != "" {
			s.add("Key focus areas: %s.", drivers)
		}
	default:
		if level.Assessed() {
			s.add("Risk posture is %s.", level.Label())
		}
		if drivers := f.demandDrivers(3); drivers != "" {
			s.add("Demand pressure driven by: %s.", drivers)
		}
		if len(s) == 0 {
			s.add("Multi-agent analysis complete.")
		}
	}
	if len(f.Failed) > 0 {
		s.add("Partial analysis: the %s specialist(s) failed, so their data is not reflected in this answer.", agentNames(f.Failed, " and "))
	}
	return s.String()
}

func fulfillmentNarrative(s *sentences, f Facts, d domain.Decision) {
	orders := f.TotalOrders()
	if d.Status == domain.DecisionReady {
		if orders > 0 {
			s.add("Yes, you can fulfill all %d customer order(s) this week given current inventory.", orders)
		} else {
			s.add("Yes, you can fulfill all customer orders this week given current inventory.")
		}
		s.add("Inventory levels are sufficient and logistics capacity can handle all pending orders.")
		value := f.Demand.TotalOrderValue
		if value == 0 {
			value = f.Demand.RevenueAtRisk
		}
		if orders > 0 && value > 0 {
			s.add("Total order value: %s.", dollars(value))
		}
		if n := f.Logistics.OrdersWithRoutes; orders > 0 && n > 0 {
			s.add("%d of %d order(s) have assigned routes.", n, orders)
		}
		if n := f.Logistics.OrdersNeedingRoutes; n > 0 {
			s.add("%d order(s) still require route assignment, but this does not prevent fulfillment.", n)
		}
		if u := f.Logistics.CapacityUtilization; u != "" {
			s.add("Logistics capacity utilization is at %s, indicating sufficient headroom.", u)
		}
		if drivers := f.demandDrivers(3); drivers != "" {
			s.add("High-demand products (%s) are covered by current inventory.", drivers)
		}
	} else if unverified := f.Unverified(); len(unverified) > 0 && !f.InventoryShortfall && !f.LogisticsConstraint && d.RiskLevel != domain.RiskHigh {
		s.add("Cannot confirm that all customer orders can be fulfilled this week: %s data could not be verified.", agentNames(unverified, " and "))
		s.add("Re-run the check once the specialist responds before committing to customers.")
	} else {
		s.add("No, you cannot fully fulfill all customer orders this week given current inventory.")
		if phrases := f.ShortagePhrases(); len(phrases) > 0 {
			s.add("Critical shortages exist in %s, preventing complete fulfillment.", strings.Join(phrases, ", "))
		} else if f.InventoryShortfall {
			s.add("Inventory shortfalls reported by the inventory specialist must be addressed.")
		}
		if f.LogisticsConstraint {
			s.add("Additionally, logistics capacity constraints limit the ability to deliver all orders on schedule.")
		}
		if d.RiskLevel == domain.RiskHigh {
			s.add("High-risk factors require approvals before proceeding with mitigation actions.")
		}
	}
	if d.RiskLevel == domain.RiskMedium || d.RiskLevel == domain.RiskHigh {
		s.add("Overall risk posture is %s, which should be monitored.", d.RiskLevel.Label())
	}
}

func replenishmentNarrative(s *sentences, f Facts) {
	if phrases := f.ShortagePhrases(); len(phrases) > 0 {
		s.add("Replenishment plan targets critical shortages: %s.", strings.Join(phrases, ", "))
	} else if f.InventoryShortfall {
		s.add("Replenishment plan addresses the inventory shortfall reported by the inventory specialist.")
	}
	for i, l := range f.Inventory.Shortages {
		if i == 3 {
			break
		}
		if l.ProductID != "" && l.Shortage > 0 {
			s.add("Order %d units of %s from primary supplier.", l.Shortage, l.ProductID)
		}
	}
	if drivers := f.demandDrivers(3); drivers != "" {
		s.add("Prioritize replenishment for high-velocity SKUs: %s.", drivers)
	}
	if f.InventoryShortfall {
		s.add("Coordinate with procurement for expedited delivery within 3-5 business days.")
	} else {
		s.add("Standard replenishment cycle recommended based on stable demand patterns.")
	}
}

func reallocationNarrative(s *sentences, f Facts) {
	phrases := f.ShortagePhrases()
	if f.InventoryShortfall || len(phrases) > 0 {
		answer := "Yes, stock reallocation across warehouses is recommended."
		if len(phrases) > 0 {
			answer += fmt.Sprintf(" Critical shortages exist in %s, which can be addressed through strategic reallocation.", strings.Join(phrases, ", "))
		}
		s.add("%s", answer)
		if drivers := f.demandDrivers(3); drivers != "" {
			s.add("High-demand products (%s) should be prioritized in the reallocation plan.", drivers)
		}
	} else {
		s.add("No immediate stock reallocation is required. Current inventory distribution across warehouses is adequate for demand.")
	}
}

func noDataNarrative(f Facts) string {
	if len(f.Invoked) == 0 {
		return "Unable to assess this question: no specialists were invoked, so no agent data is available."
	}
	return fmt.Sprintf("Unable to assess this question: no agent data is available because every specialist failed (%s).", agentNames(f.Failed, ", "))
}
