package specialist

import (
	"encoding/json"
	"fmt"

	"supplyfuse/internal/domain"
)

var guidance = map[domain.AgentType]string{
	domain.AgentInventory: "Focus on current stock positions versus pending order demand. Quantify shortages or surplus by SKU, " +
		"and recommend procurement actions.",
	domain.AgentDemand: "Analyze order velocity, revenue at risk, and demand trends. Highlight top products driving demand, " +
		"and note forecast or margin impacts. Avoid repeating raw inventory shortages unless demand is the driver.",
	domain.AgentLogistics: "Assess fulfillment capacity, carrier constraints, and routing risks. Provide utilization metrics, " +
		"impacted shipments, and concrete mitigation options such as overflow carriers or expedited lanes.",
	domain.AgentRisk: "Quantify overall risk (0-1), assign a risk level, and list top risk drivers with mitigation actions. " +
		"Incorporate dependencies between inventory, demand, and logistics.",
}

// Prompt composes the request sent to one specialist. context is serialized
// as JSON; nil becomes an empty object.
func Prompt(agent domain.AgentType, query string, context map[string]any) string {
	if context == nil {
		context = map[string]any{}
	}
	ctxJSON, err := json.Marshal(context)
	if err != nil {
		ctxJSON = []byte("{}")
	}
	g, ok := guidance[agent]
	if !ok {
		g = "Add unique specialist insights."
	}
	return fmt.Sprintf("You are the %s specialist collaborating on a supply chain decision.\n"+
		"Primary task: %s\n"+
		"User query: %q\n"+
		"Context so far: %s\n"+
		"Respond with specialist insights, including blockers, quantitative metrics, recommendations, "+
		"and an explicit confidence indicator.", agent.Title(), g, query, ctxJSON)
}
