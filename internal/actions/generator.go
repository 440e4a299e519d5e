// Package actions derives follow-up actions and approval requests from a fused
// decision and marks the ones already handled anywhere in the ledger.
package actions

import (
	"supplyfuse/internal/domain"
	"supplyfuse/internal/fusion"
)

// Stable identifiers of generated items.
const (
	IDApproveEmergencyReplenishment = "approve_emergency_replenishment"
	IDDraftEmergencyPO              = "draft_emergency_po"
	IDApproveExpeditedShipments     = "approve_expedited_shipments"
	IDActivateOverflowCarriers      = "activate_overflow_carriers"
	IDNotifyCustomerService         = "notify_customer_service"
	IDExecuteReplenishmentPlan      = "execute_replenishment_plan"
	IDInitiateExpeditedShipments    = "initiate_expedited_shipments"
	IDActivateBackupCarriers        = "activate_backup_carriers"
	IDImplementProductionSchedule   = "implement_production_schedule"
	IDEscalateRiskReview            = "escalate_risk_review"
	IDPrepareRiskBriefing           = "prepare_risk_briefing"
)

const maxPayloadItems = 5

// Generator builds the action and approval lists for one decision.
type Generator struct {
	// TokenThreshold is the shared-word count for fuzzy dedup; zero means
	// DefaultTokenThreshold.
	TokenThreshold int
}

// Result holds the generated items. Neither slice contains duplicate ids.
type Result struct {
	Actions   []domain.Action
	Approvals []domain.Approval
}

// Pending counts approvals still awaiting a decision.
func (r Result) Pending() int {
	n := 0
	for _, a := range r.Approvals {
		if a.Status == domain.ApprovalPending {
			n++
		}
	}
	return n
}

type builder struct {
	index *Index
	out   Result
}

func (b *builder) action(a domain.Action) {
	for _, existing := range b.out.Actions {
		if existing.ID == a.ID {
			return
		}
	}
	if done, ok := b.index.MatchAction(a.Description, a.AffectedSKUs()); ok {
		a.Status = domain.ActionAlreadyCompleted
		a.CompletedAt = done.CompletedAt
		a.CompletedBy = done.CompletedBy
		a.Note = completedNote(done)
	}
	b.out.Actions = append(b.out.Actions, a)
}

func (b *builder) approval(a domain.Approval) {
	for _, existing := range b.out.Approvals {
		if existing.ID == a.ID {
			return
		}
	}
	if decided, ok := b.index.MatchApproval(a.Title); ok {
		a.Status = decided.Status
		if !a.Status.Decided() {
			a.Status = domain.ApprovalApproved
		}
		a.DecidedAt = decided.DecidedAt
		a.DecidedBy = decided.DecidedBy
		a.Note = decidedNote(decided)
	}
	b.out.Approvals = append(b.out.Approvals, a)
}

// Generate applies the query-type rules to the fused facts and cross-checks
// every candidate against the snapshot.
func (g Generator) Generate(f fusion.Facts, d domain.Decision, snap Snapshot) Result {
	b := &builder{
		index: NewIndex(snap, g.TokenThreshold),
		out:   Result{Actions: []domain.Action{}, Approvals: []domain.Approval{}},
	}
	if f.NoData() {
		return b.out
	}
	ready := d.Status == domain.DecisionReady

	switch f.Branch {
	case fusion.BranchFulfillment:
		if f.InventoryShortfall {
			payload := shortagePayload(f)
			b.approval(domain.Approval{
				ID:       IDApproveEmergencyReplenishment,
				Title:    "Approve emergency replenishment for shortage SKUs",
				Risk:     domain.RiskMedium,
				Requires: "Supply chain manager",
				Status:   domain.ApprovalPending,
				Details:  map[string]any{domain.MetricShortages: payload},
			})
			b.action(domain.Action{
				ID:          IDDraftEmergencyPO,
				Type:        domain.ActionAutonomous,
				Description: "Draft emergency purchase orders for shortage SKUs",
				Status:      domain.ActionReady,
				RiskLevel:   domain.RiskMedium,
				Owner:       "Procurement",
				Data:        map[string]any{domain.MetricShortages: payload},
			})
		}
		if f.LogisticsConstraint {
			b.approval(domain.Approval{
				ID:       IDApproveExpeditedShipments,
				Title:    "Approve expedited shipments to relieve logistics constraints",
				Risk:     domain.RiskMedium,
				Requires: "Logistics lead",
				Status:   domain.ApprovalPending,
				Details:  map[string]any{"recommendations": nonNil(f.LogisticsRecommendations)},
			})
			b.action(domain.Action{
				ID:          IDActivateOverflowCarriers,
				Type:        domain.ActionAutonomous,
				Description: "Activate overflow carriers or expedited lanes for constrained routes",
				Status:      domain.ActionReady,
				RiskLevel:   domain.RiskMedium,
				Owner:       "Logistics",
			})
		}
		if ready {
			b.action(domain.Action{
				ID:          IDNotifyCustomerService,
				Type:        domain.ActionAutonomous,
				Description: "Notify customer service to communicate fulfillment plan to customers",
				Status:      domain.ActionScheduled,
				RiskLevel:   domain.RiskLow,
				Owner:       "Customer service",
			})
		} else {
			b.action(domain.Action{
				ID:          IDNotifyCustomerService,
				Type:        domain.ActionAutonomous,
				Description: "Notify customer service about partial fulfillment and expected delays",
				Status:      domain.ActionPlanned,
				RiskLevel:   domain.RiskLow,
				Owner:       "Customer service",
			})
		}
	case fusion.BranchReplenishment:
		b.action(domain.Action{
			ID:          IDExecuteReplenishmentPlan,
			Type:        domain.ActionAutonomous,
			Description: "Execute replenishment plan based on demand trends",
			Status:      domain.ActionReady,
			RiskLevel:   domain.RiskLow,
			Owner:       "Procurement",
			Data:        replenishmentPayload(f),
		})
	case fusion.BranchExpedite:
		if f.LogisticsConstraint || f.InventoryShortfall {
			b.action(domain.Action{
				ID:          IDInitiateExpeditedShipments,
				Type:        domain.ActionAutonomous,
				Description: "Initiate expedited inbound shipments",
				Status:      domain.ActionReady,
				RiskLevel:   domain.RiskMedium,
				Owner:       "Logistics",
			})
		}
	case fusion.BranchCarrierActivation:
		if f.LogisticsConstraint {
			b.action(domain.Action{
				ID:          IDActivateBackupCarriers,
				Type:        domain.ActionAutonomous,
				Description: "Activate backup carriers to address capacity constraints",
				Status:      domain.ActionReady,
				RiskLevel:   domain.RiskMedium,
				Owner:       "Logistics",
			})
		}
	case fusion.BranchProduction:
		b.action(domain.Action{
			ID:          IDImplementProductionSchedule,
			Type:        domain.ActionAutonomous,
			Description: "Implement cost-optimized production schedule",
			Status:      domain.ActionReady,
			RiskLevel:   domain.RiskLow,
			Owner:       "Production",
		})
	}

	if d.RiskLevel == domain.RiskHigh {
		b.approval(domain.Approval{
			ID:       IDEscalateRiskReview,
			Title:    "Approve risk mitigation plan for high-risk posture",
			Risk:     domain.RiskHigh,
			Requires: "Risk committee",
			Status:   domain.ApprovalPending,
			Details:  map[string]any{"signals": nonNil(d.RiskSignals)},
		})
		b.action(domain.Action{
			ID:          IDPrepareRiskBriefing,
			Type:        domain.ActionAutonomous,
			Description: "Prepare executive briefing summarizing high-risk drivers and mitigations",
			Status:      domain.ActionReady,
			RiskLevel:   domain.RiskHigh,
			Owner:       "Risk management",
		})
	}
	return b.out
}

func shortagePayload(f fusion.Facts) []domain.ShortageLine {
	out := make([]domain.ShortageLine, 0, len(f.Inventory.Shortages))
	for _, l := range f.Inventory.Shortages {
		if l.ProductID != "" {
			out = append(out, l)
		}
	}
	return out
}

func replenishmentPayload(f fusion.Facts) map[string]any {
	shortages := shortagePayload(f)
	if len(shortages) > maxPayloadItems {
		shortages = shortages[:maxPayloadItems]
	}
	products := f.Demand.HighDemandProducts
	if len(products) > maxPayloadItems {
		products = products[:maxPayloadItems]
	}
	if products == nil {
		products = []domain.DemandProduct{}
	}
	return map[string]any{
		domain.MetricShortages:          shortages,
		domain.MetricHighDemandProducts: products,
		"totalShortageUnits":            f.TotalShortageUnits(),
		domain.MetricRevenueAtRisk:      f.Demand.RevenueAtRisk,
		domain.MetricDemandTrend:        f.Demand.DemandTrend,
	}
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
