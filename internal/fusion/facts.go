package fusion

import (
	"fmt"
	"strings"

	"supplyfuse/internal/domain"
	"supplyfuse/internal/normalize"
)

var logisticsConstraintStatuses = map[string]bool{
	domain.StatusConstraint: true,
	"delayed":               true,
	"blocked":               true,
}

// Facts are the domain metrics extracted from one query's records. Failed
// records contribute nothing beyond their agent name.
type Facts struct {
	QueryType string
	Branch    Branch
	Invoked   []domain.AgentType
	Failed    []domain.AgentType

	Inventory domain.InventoryMetrics
	Demand    domain.DemandMetrics
	Logistics domain.LogisticsMetrics
	Risk      domain.RiskMetrics

	InventoryStatus string
	DemandStatus    string
	LogisticsStatus string
	RiskStatus      string

	InventoryShortfall  bool
	LogisticsConstraint bool

	InventoryBlockers        []string
	LogisticsBlockers        []string
	LogisticsRecommendations []string
	InventoryRecommendations []string
}

// Extract builds Facts from normalized records. The first record per agent wins.
func Extract(records []domain.SpecialistRecord, queryType string) Facts {
	f := Facts{
		QueryType: queryType,
		Branch:    Classify(queryType),
		Invoked:   []domain.AgentType{},
		Failed:    []domain.AgentType{},
	}
	seen := map[domain.AgentType]bool{}
	for _, rec := range records {
		if seen[rec.AgentType] {
			continue
		}
		seen[rec.AgentType] = true
		f.Invoked = append(f.Invoked, rec.AgentType)
		if rec.Failed() {
			f.Failed = append(f.Failed, rec.AgentType)
			continue
		}
		switch rec.AgentType {
		case domain.AgentInventory:
			f.extractInventory(rec)
		case domain.AgentDemand:
			f.Demand = domain.DemandView(rec.Metrics)
			f.DemandStatus = rec.Status
		case domain.AgentLogistics:
			f.Logistics = domain.LogisticsView(rec.Metrics)
			f.LogisticsStatus = rec.Status
			f.LogisticsConstraint = logisticsConstraintStatuses[rec.Status]
			f.LogisticsBlockers = rec.Blockers
			f.LogisticsRecommendations = rec.Recommendations
		case domain.AgentRisk:
			f.Risk = domain.RiskView(rec.Metrics)
			f.RiskStatus = rec.Status
		}
	}
	return f
}

func (f *Facts) extractInventory(rec domain.SpecialistRecord) {
	f.Inventory = domain.InventoryView(rec.Metrics)
	if len(f.Inventory.Shortages) == 0 {
		f.Inventory.Shortages, _ = normalize.ScanQuantities(strings.Join(rec.Blockers, "\n"))
	}
	f.InventoryStatus = rec.Status
	if len(f.Inventory.Shortages) > 0 {
		f.InventoryStatus = domain.StatusShortfall
	}
	f.InventoryBlockers = rec.Blockers
	f.InventoryRecommendations = rec.Recommendations
	f.InventoryShortfall = rec.Status == domain.StatusShortfall ||
		rec.Status == domain.StatusConstraint ||
		len(f.Inventory.Shortages) > 0 ||
		mentions(rec.Blockers, "shortage")
}

// NoData reports whether no specialist produced usable output.
func (f Facts) NoData() bool {
	return len(f.Invoked) == len(f.Failed)
}

// Unverified lists the failed specialists whose data gates fulfillment.
// A decision cannot be ready while any of them is missing.
func (f Facts) Unverified() []domain.AgentType {
	var out []domain.AgentType
	for _, a := range f.Failed {
		if a == domain.AgentInventory || a == domain.AgentLogistics {
			out = append(out, a)
		}
	}
	return out
}

func (f Facts) failed(agent domain.AgentType) bool {
	for _, a := range f.Failed {
		if a == agent {
			return true
		}
	}
	return false
}

func (f Facts) TotalShortageUnits() int {
	return f.Inventory.TotalShortageUnits()
}

// ShortagePhrases renders "SKU (N units)" for each shortage line.
func (f Facts) ShortagePhrases() []string {
	out := make([]string, 0, len(f.Inventory.Shortages))
	for _, s := range f.Inventory.Shortages {
		if s.ProductID != "" {
			out = append(out, fmt.Sprintf("%s (%d units)", s.ProductID, s.Shortage))
		}
	}
	return out
}

// TotalOrders prefers the logistics count of pending orders over demand's.
func (f Facts) TotalOrders() int {
	if f.Logistics.TotalPendingOrders > 0 {
		return f.Logistics.TotalPendingOrders
	}
	return f.Demand.TotalPendingOrders
}

func (f Facts) shortageSKUs(n int) string {
	var ids []string
	for _, s := range f.Inventory.Shortages {
		if s.ProductID != "" {
			ids = append(ids, s.ProductID)
		}
		if len(ids) == n {
			break
		}
	}
	return strings.Join(ids, ", ")
}

func (f Facts) demandDrivers(n int) string {
	var ids []string
	for _, p := range f.Demand.HighDemandProducts {
		if p.ProductID != "" {
			ids = append(ids, p.ProductID)
		}
		if len(ids) == n {
			break
		}
	}
	return strings.Join(ids, ", ")
}

func (f Facts) invoked(agent domain.AgentType) bool {
	for _, a := range f.Invoked {
		if a == agent {
			return true
		}
	}
	return false
}

func agentNames(agents []domain.AgentType, sep string) string {
	names := make([]string, len(agents))
	for i, a := range agents {
		names[i] = string(a)
	}
	return strings.Join(names, sep)
}

func mentions(items []string, word string) bool {
	for _, item := range items {
		if strings.Contains(strings.ToLower(item), word) {
			return true
		}
	}
	return false
}
