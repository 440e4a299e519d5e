package fusion

import "strings"

// GeneralQuery is the query type used when planning yields nothing usable.
const GeneralQuery = "general_query"

// Branch selects the narrative, action and next-step templates for a query type.
type Branch int

const (
	BranchGeneral Branch = iota
	BranchFulfillment
	BranchStockout
	BranchReplenishment
	BranchExpedite
	BranchCarrierActivation
	BranchCarrier
	BranchRevenue
	BranchProduction
	BranchPrioritization
	BranchDiversification
	BranchSupplier
	BranchSLA
	BranchMarkdown
	BranchInventoryForecast
	BranchReallocation
	BranchSurge
	BranchLateDelivery
	BranchSafetyStock
	BranchReconciliation
	BranchBriefing
)

var branchNames = map[Branch]string{
	BranchGeneral:           "general",
	BranchFulfillment:       "fulfillment",
	BranchStockout:          "stockout",
	BranchReplenishment:     "replenishment",
	BranchExpedite:          "expedite",
	BranchCarrierActivation: "carrier_activation",
	BranchCarrier:           "carrier",
	BranchRevenue:           "revenue",
	BranchProduction:        "production",
	BranchPrioritization:    "prioritization",
	BranchDiversification:   "diversification",
	BranchSupplier:          "supplier",
	BranchSLA:               "sla",
	BranchMarkdown:          "markdown",
	BranchInventoryForecast: "inventory_forecast",
	BranchReallocation:      "reallocation",
	BranchSurge:             "surge",
	BranchLateDelivery:      "late_delivery",
	BranchSafetyStock:       "safety_stock",
	BranchReconciliation:    "reconciliation",
	BranchBriefing:          "briefing",
}

func (b Branch) String() string { return branchNames[b] }

// branchRules is evaluated in order; the first rule with a matching fragment wins.
var branchRules = []struct {
	branch    Branch
	fragments []string
}{
	{BranchFulfillment, []string{"fulfillment", "fulfil"}},
	{BranchStockout, []string{"stockout", "stock_out"}},
	{BranchReplenishment, []string{"replenish"}},
	{BranchExpedite, []string{"expedite"}},
	{BranchCarrierActivation, []string{"carrier_activation", "backup"}},
	{BranchCarrier, []string{"carrier", "logistics"}},
	{BranchRevenue, []string{"revenue", "impact"}},
	{BranchProduction, []string{"production", "schedule"}},
	{BranchPrioritization, []string{"priorit"}},
	{BranchDiversification, []string{"diversif"}},
	{BranchSupplier, []string{"supplier"}},
	{BranchSLA, []string{"sla", "compliance"}},
	{BranchMarkdown, []string{"markdown"}},
	{BranchReallocation, []string{"reallocat"}},
	{BranchSurge, []string{"surge", "simulat"}},
	{BranchLateDelivery, []string{"late", "delivery"}},
	{BranchSafetyStock, []string{"safety"}},
	{BranchReconciliation, []string{"reconcil", "forecast"}},
	{BranchBriefing, []string{"briefing", "executive"}},
}

// Classify maps a planner query type onto a template branch.
func Classify(queryType string) Branch {
	q := strings.ToLower(strings.TrimSpace(queryType))
	if q == "" || q == GeneralQuery {
		return BranchFulfillment
	}
	if strings.Contains(q, "forecast") && strings.Contains(q, "inventory") {
		return BranchInventoryForecast
	}
	for _, rule := range branchRules {
		for _, frag := range rule.fragments {
			if strings.Contains(q, frag) {
				return rule.branch
			}
		}
	}
	return BranchGeneral
}
