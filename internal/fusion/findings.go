package fusion

import (
	"fmt"
	"strings"

	"supplyfuse/internal/domain"
)

const (
	maxFindingItems = 5
	noFindings      = "No findings provided for this query."
)

// Findings builds one finding per invoked specialist, in invocation order.
func Findings(records []domain.SpecialistRecord, f Facts, d domain.Decision) []domain.AgentFinding {
	out := make([]domain.AgentFinding, 0, len(records))
	seen := map[domain.AgentType]bool{}
	for _, rec := range records {
		if seen[rec.AgentType] {
			continue
		}
		seen[rec.AgentType] = true
		out = append(out, finding(rec, f, d))
	}
	return out
}

func finding(rec domain.SpecialistRecord, f Facts, d domain.Decision) domain.AgentFinding {
	fd := domain.AgentFinding{
		Agent:           rec.AgentType,
		Status:          rec.Status,
		Summary:         rec.HighlightSummary,
		Confidence:      Confidence(rec),
		Blockers:        capList(rec.Blockers, maxFindingItems),
		Recommendations: capList(rec.Recommendations, maxFindingItems),
	}
	if rec.Failed() {
		fd.Insights = domain.Insights{Overview: rec.Error, Blockers: fd.Blockers}
		return fd
	}
	if strings.TrimSpace(fd.Summary) == "" {
		fd.Summary = noFindings
	}
	fd.Insights.Overview = strings.TrimSpace(rec.DetailedSummary)

	switch rec.AgentType {
	case domain.AgentInventory:
		fd.Status = f.InventoryStatus
		fd.Insights.Metrics = inventoryMetricLines(f)
		if len(fd.Blockers) == 0 && f.InventoryShortfall && len(f.Inventory.Shortages) > 0 {
			fd.Blockers = append(fd.Blockers, fmt.Sprintf("Inventory shortfall: %d units across %d SKU(s)",
				f.TotalShortageUnits(), len(f.Inventory.Shortages)))
		}
		if len(fd.Recommendations) == 0 && f.InventoryShortfall {
			if skus := f.shortageSKUs(3); skus != "" {
				fd.Recommendations = append(fd.Recommendations, "Initiate replenishment for shortage SKUs: "+skus)
			}
		}
	case domain.AgentDemand:
		fd.Insights.Metrics = demandMetricLines(f)
		if len(fd.Blockers) == 0 && rec.Status == domain.StatusDataGap {
			fd.Blockers = append(fd.Blockers, "Incomplete order data impacts demand analysis accuracy")
		}
		if len(fd.Recommendations) == 0 {
			if drivers := f.demandDrivers(3); drivers != "" {
				fd.Recommendations = append(fd.Recommendations, "Align supply with high-velocity SKUs: "+drivers)
			}
		}
	case domain.AgentLogistics:
		fd.Insights.Metrics = logisticsMetricLines(f)
		n := f.Logistics.OrdersNeedingRoutes
		if len(fd.Blockers) == 0 && f.LogisticsConstraint && n > 0 {
			fd.Blockers = append(fd.Blockers, fmt.Sprintf("%d orders require route assignment", n))
		}
		if len(fd.Recommendations) == 0 && f.LogisticsConstraint && n > 0 {
			fd.Recommendations = append(fd.Recommendations, fmt.Sprintf("Assign routes to %d unassigned orders", n))
		}
	case domain.AgentRisk:
		fd.Status = d.RiskLevel.Label()
		fd.Summary = riskSummary(f, d)
		fd.Insights.Overview = fd.Summary
		fd.Insights.Metrics = riskMetricLines(f, d)
	}
	if fd.Insights.Overview == "" {
		fd.Insights.Overview = Overview(f, d, rec.AgentType)
	}
	fd.Insights.Blockers = fd.Blockers
	fd.Insights.Recommendations = fd.Recommendations
	return fd
}

func riskSummary(f Facts, d domain.Decision) string {
	var text string
	if s := f.Risk.OverallRiskScore; s != nil {
		text = fmt.Sprintf("Overall risk score %.2f (%s).", *s, d.RiskLevel.Label())
	} else {
		text = fmt.Sprintf("Risk posture assessed as %s.", d.RiskLevel.Label())
	}
	if len(d.RiskSignals) > 0 {
		text += fmt.Sprintf(" Signals: %s.", strings.Join(capList(d.RiskSignals, 4), ", "))
	}
	return text
}

// Overview is the one-paragraph domain digest used when a specialist gave no
// detailed summary of its own.
func Overview(f Facts, d domain.Decision, agent domain.AgentType) string {
	var s sentences
	switch agent {
	case domain.AgentInventory:
		if n := len(f.Inventory.Shortages); n > 0 {
			s.add("Identified %d shortage SKU(s) totaling %d units.", n, f.TotalShortageUnits())
			s.add("Affected SKUs: %s.", f.shortageSKUs(3))
		} else {
			s.add("No active inventory shortages detected.")
		}
		if st := f.InventoryStatus; st != "" && st != domain.StatusUnknown {
			s.add("Inventory status: %s.", titleStatus(st))
		}
	case domain.AgentDemand:
		m := f.Demand
		switch {
		case m.TotalPendingOrders > 0 && m.TotalOrderValue > 0:
			s.add("Analyzed %d pending order(s) worth %s.", m.TotalPendingOrders, dollars(m.TotalOrderValue))
		case m.TotalPendingOrders > 0:
			s.add("Analyzed %d pending order(s).", m.TotalPendingOrders)
		}
		if m.RevenueAtRisk > 0 {
			s.add("Revenue at risk: %s.", dollars(m.RevenueAtRisk))
		}
		if m.MarginAtRisk > 0 {
			s.add("Margin exposure: %s.", dollars(m.MarginAtRisk))
		}
		if drivers := f.demandDrivers(3); drivers != "" {
			s.add("High-demand products: %s.", drivers)
		}
		if m.DemandTrend != "" {
			s.add("Demand trend: %s.", m.DemandTrend)
		}
	case domain.AgentLogistics:
		m := f.Logistics
		if m.TotalPendingOrders > 0 {
			s.add("%d pending order(s) assessed.", m.TotalPendingOrders)
		}
		if m.OrdersWithRoutes > 0 {
			s.add("%d order(s) already have assigned routes.", m.OrdersWithRoutes)
		}
		if m.OrdersNeedingRoutes > 0 {
			s.add("%d order(s) still require routing.", m.OrdersNeedingRoutes)
		}
		if m.CapacityUtilization != "" {
			s.add("Capacity utilization: %s.", m.CapacityUtilization)
		}
		if m.CanFulfillAll != nil {
			s.add("Logistics can fulfill all orders: %s.", yesNo(*m.CanFulfillAll))
		}
		if f.LogisticsStatus != "" && f.LogisticsStatus != domain.StatusUnknown {
			s.add("Logistics status: %s.", titleStatus(f.LogisticsStatus))
		}
	case domain.AgentRisk:
		if d.RiskLevel.Assessed() {
			s.add("Risk level: %s.", d.RiskLevel)
		}
		if sc := f.Risk.OverallRiskScore; sc != nil {
			s.add("Score: %.2f.", *sc)
		}
		if len(d.RiskSignals) > 0 {
			s.add("Signals: %s.", strings.Join(capList(d.RiskSignals, 3), ", "))
		}
	}
	return s.String()
}

func inventoryMetricLines(f Facts) []string {
	var lines []string
	if n := len(f.Inventory.Shortages); n > 0 {
		lines = append(lines,
			fmt.Sprintf("Shortages identified: %d SKU(s)", n),
			fmt.Sprintf("Total shortage units: %d", f.TotalShortageUnits()),
			"Affected SKUs with details:",
		)
		for i, l := range f.Inventory.Shortages {
			if i == maxFindingItems {
				break
			}
			lines = append(lines, fmt.Sprintf("  - %s: %d units short (required: %d, available: %d)",
				l.ProductID, l.Shortage, deref(l.Required), deref(l.Available)))
		}
	} else if f.Inventory.TotalAvailableStock > 0 {
		lines = append(lines, fmt.Sprintf("Total available stock: %.0f units", f.Inventory.TotalAvailableStock))
	}
	if st := f.InventoryStatus; st != "" && st != domain.StatusUnknown {
		lines = append(lines, "Inventory status: "+titleStatus(st))
	}
	return lines
}

func demandMetricLines(f Facts) []string {
	m := f.Demand
	var lines []string
	if m.TotalPendingOrders > 0 {
		lines = append(lines, fmt.Sprintf("Total pending orders: %d", m.TotalPendingOrders))
	}
	if m.TotalOrderValue > 0 {
		lines = append(lines, "Total order value: "+dollars(m.TotalOrderValue))
	}
	if m.RevenueAtRisk > 0 {
		lines = append(lines, "Revenue at risk: "+dollars(m.RevenueAtRisk))
	}
	if m.MarginAtRisk > 0 {
		lines = append(lines, "Estimated margin exposure: "+dollars(m.MarginAtRisk))
	}
	if m.AverageOrderSize > 0 {
		lines = append(lines, fmt.Sprintf("Average order size: %.1f items per order", m.AverageOrderSize))
	}
	if m.OrdersWithLineItems > 0 {
		lines = append(lines, fmt.Sprintf("Orders with line items: %d", m.OrdersWithLineItems))
	}
	if m.UniqueProducts > 0 {
		lines = append(lines, fmt.Sprintf("Unique products in orders: %d", m.UniqueProducts))
	}
	if m.DemandTrend != "" {
		lines = append(lines, "Demand trend: "+m.DemandTrend)
	}
	if m.SurgeDetected {
		lines = append(lines, fmt.Sprintf("Demand surge detected: %.1f%% increase", m.OverallSurgePercentage))
	}
	if n := len(m.HighDemandProducts); n > 0 {
		lines = append(lines, fmt.Sprintf("High-demand products: %d SKU(s) identified", n), "Top demand drivers:")
		for i, p := range m.HighDemandProducts {
			if i == maxFindingItems {
				break
			}
			lines = append(lines, fmt.Sprintf("  - %s: %d units ordered", p.ProductID, p.Quantity()))
		}
	}
	return lines
}

func logisticsMetricLines(f Facts) []string {
	m := f.Logistics
	var lines []string
	if m.TotalPendingOrders > 0 {
		lines = append(lines, fmt.Sprintf("Total pending orders: %d", m.TotalPendingOrders))
		if m.OrdersWithRoutes > 0 {
			lines = append(lines, fmt.Sprintf("Orders with assigned routes: %d", m.OrdersWithRoutes))
		}
		if m.OrdersNeedingRoutes > 0 {
			pct := float64(m.OrdersNeedingRoutes) / float64(m.TotalPendingOrders) * 100
			lines = append(lines,
				fmt.Sprintf("Orders requiring route assignment: %d", m.OrdersNeedingRoutes),
				fmt.Sprintf("Unassigned percentage: %.1f%%", pct),
			)
		}
	}
	if m.MaxDailyCapacity > 0 {
		lines = append(lines, fmt.Sprintf("Maximum daily capacity: %d orders", m.MaxDailyCapacity))
	}
	if m.CapacityUtilization != "" {
		lines = append(lines, "Current capacity utilization: "+m.CapacityUtilization)
	}
	if f.LogisticsStatus != "" && f.LogisticsStatus != domain.StatusUnknown {
		lines = append(lines, "Logistics status: "+titleStatus(f.LogisticsStatus))
	}
	if m.CanFulfillAll != nil {
		lines = append(lines, "Can fulfill all orders: "+yesNo(*m.CanFulfillAll))
	}
	return lines
}

func riskMetricLines(f Facts, d domain.Decision) []string {
	var lines []string
	if s := f.Risk.OverallRiskScore; s != nil {
		lines = append(lines, fmt.Sprintf("Overall risk score: %.2f (scale 0-1)", *s))
	}
	if d.RiskLevel.Assessed() {
		lines = append(lines, fmt.Sprintf("Risk level: %s", d.RiskLevel))
	}
	e := f.Risk.Exposure
	if e.InventoryShortageUnits > 0 {
		lines = append(lines, fmt.Sprintf("Inventory exposure: %d shortage units", e.InventoryShortageUnits))
		if e.InventoryRevenueAtRisk > 0 {
			lines = append(lines, "  Revenue at risk: "+dollars(e.InventoryRevenueAtRisk))
		}
	}
	if e.LogisticsOrdersNeedingRoutes > 0 {
		lines = append(lines, fmt.Sprintf("Logistics exposure: %d orders awaiting routing", e.LogisticsOrdersNeedingRoutes))
	}
	if n := len(d.RiskSignals); n > 0 {
		lines = append(lines, fmt.Sprintf("Risk signals identified: %d", n))
		for _, sig := range capList(d.RiskSignals, 3) {
			lines = append(lines, "  - "+sig)
		}
	}
	return lines
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
