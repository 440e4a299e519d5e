package planner

import (
	"strings"

	"supplyfuse/internal/domain"
)

// Warning notes a query keyword whose specialist is absent from the plan.
type Warning struct {
	Agent   domain.AgentType
	Keyword string
}

var keywords = []struct {
	agent domain.AgentType
	words []string
}{
	{domain.AgentInventory, []string{"stock", "inventory", "shortage", "replenish", "sku"}},
	{domain.AgentLogistics, []string{"carrier", "shipping", "delivery", "route", "logistics", "fulfill"}},
	{domain.AgentDemand, []string{"demand", "forecast", "trend", "order pattern"}},
	{domain.AgentRisk, []string{"risk", "disruption", "delay", "sla", "impact"}},
}

// KeywordWarnings is diagnostic only; it never changes a plan.
func KeywordWarnings(query string, plan []domain.AgentType) []Warning {
	q := strings.ToLower(query)
	in := map[domain.AgentType]bool{}
	for _, a := range plan {
		in[a] = true
	}
	var out []Warning
	for _, k := range keywords {
		if in[k.agent] {
			continue
		}
		for _, w := range k.words {
			if strings.Contains(q, w) {
				out = append(out, Warning{Agent: k.agent, Keyword: w})
				break
			}
		}
	}
	return out
}
