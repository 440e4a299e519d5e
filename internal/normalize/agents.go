package normalize

import (
	"strings"

	"supplyfuse/internal/domain"
)

// agentKeys lists top-level keys each specialist may emit outside "metrics".
func agentKeys(agent domain.AgentType) []string {
	switch agent {
	case domain.AgentInventory:
		return []string{domain.MetricShortages, domain.MetricSurplus, domain.MetricTotalAvailableStock, domain.MetricCurrentStock}
	case domain.AgentDemand:
		return []string{
			domain.MetricTotalPendingOrders, domain.MetricTotalOrderValue, domain.MetricRevenueAtRisk,
			domain.MetricMarginAtRisk, domain.MetricAverageOrderSize, domain.MetricHighDemandProducts,
			domain.MetricDemandTrend, domain.MetricSurgeDetected, domain.MetricOverallSurgePercentage,
		}
	case domain.AgentLogistics:
		return []string{
			domain.MetricTotalPendingOrders, domain.MetricOrdersWithRoutes, domain.MetricOrdersNeedingRoutes,
			domain.MetricMaxDailyCapacity, domain.MetricCapacityUtilization, domain.MetricCanFulfillAll,
		}
	case domain.AgentRisk:
		return []string{
			domain.MetricOverallRiskScore, domain.MetricRiskLevel, domain.MetricRiskCategories,
			domain.MetricExposureSummary, "topRisks", "riskFactors", "mitigationStrategies",
		}
	}
	return nil
}

// metricDefaults seeds the zero values each domain's consumers expect to find.
func metricDefaults(agent domain.AgentType) map[string]any {
	switch agent {
	case domain.AgentInventory:
		return map[string]any{
			domain.MetricShortages: []domain.ShortageLine{},
			domain.MetricSurplus:   []domain.ShortageLine{},
		}
	case domain.AgentDemand:
		return map[string]any{
			domain.MetricTotalPendingOrders: 0,
			domain.MetricHighDemandProducts: []domain.DemandProduct{},
		}
	case domain.AgentLogistics:
		return map[string]any{
			domain.MetricOrdersNeedingRoutes: 0,
		}
	case domain.AgentRisk:
		return map[string]any{
			domain.MetricRiskCategories: map[string]any{},
		}
	}
	return nil
}

func seedAgentObject(agent domain.AgentType, obj map[string]any, rec *domain.SpecialistRecord) {
	for _, key := range agentKeys(agent) {
		if _, ok := rec.Metrics[key]; ok {
			continue
		}
		if v, ok := obj[key]; ok && v != nil {
			rec.Metrics[key] = v
		}
	}
	unknown := rec.Status == domain.StatusUnknown

	switch agent {
	case domain.AgentInventory:
		shortages := domain.ShortageLines(rec.Metrics[domain.MetricShortages])
		if shortages != nil {
			rec.Metrics[domain.MetricShortages] = shortages
		}
		if surplus := domain.ShortageLines(rec.Metrics[domain.MetricSurplus]); surplus != nil {
			rec.Metrics[domain.MetricSurplus] = surplus
		}
		if len(rec.Blockers) == 0 {
			for _, l := range shortages {
				if l.Shortage > 0 {
					rec.Blockers = append(rec.Blockers, ShortageBlocker(l))
				}
			}
		}
		if unknown && len(shortages) > 0 {
			rec.Status = domain.StatusShortfall
		}
	case domain.AgentDemand:
		if products := domain.DemandProducts(rec.Metrics[domain.MetricHighDemandProducts]); products != nil {
			rec.Metrics[domain.MetricHighDemandProducts] = products
		}
		if unknown && rec.HighlightSummary != "" {
			rec.Status = domain.StatusInsight
		}
	case domain.AgentLogistics:
		if unknown {
			if can, ok := rec.Metrics[domain.MetricCanFulfillAll].(bool); ok {
				if can {
					rec.Status = domain.StatusClear
				} else {
					rec.Status = domain.StatusConstraint
				}
			}
		}
	case domain.AgentRisk:
		if unknown {
			if level := strings.ToLower(domain.String(rec.Metrics[domain.MetricRiskLevel])); level != "" {
				rec.Status = level
			}
		}
		if len(rec.Blockers) == 0 {
			rec.Blockers = append(rec.Blockers, stringList(rec.Metrics["riskFactors"])...)
			rec.Blockers = append(rec.Blockers, stringList(rec.Metrics["topRisks"])...)
		}
		if len(rec.Recommendations) == 0 {
			rec.Recommendations = append(rec.Recommendations, stringList(rec.Metrics["mitigationStrategies"])...)
		}
		delete(rec.Metrics, "riskFactors")
		delete(rec.Metrics, "topRisks")
		delete(rec.Metrics, "mitigationStrategies")
	}
}
