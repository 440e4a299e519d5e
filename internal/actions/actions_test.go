package actions_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"supplyfuse/internal/actions"
	"supplyfuse/internal/domain"
	"supplyfuse/internal/fusion"
	"supplyfuse/internal/normalize"
)

func shortfallDecision(t *testing.T, queryType string) fusion.Result {
	t.Helper()
	recs := []domain.SpecialistRecord{
		normalize.Normalize(domain.AgentInventory, "- PROD-003 shortage (30 units)"),
		normalize.Normalize(domain.AgentLogistics, `{"status":"clear","summary":"ok"}`),
	}
	return fusion.Fuse(recs, queryType, nil)
}

func findAction(t *testing.T, items []domain.Action, id string) domain.Action {
	t.Helper()
	for _, a := range items {
		if a.ID == id {
			return a
		}
	}
	t.Fatalf("action %s not generated; got %+v", id, items)
	return domain.Action{}
}

func TestFulfillmentShortfallItems(t *testing.T) {
	res := shortfallDecision(t, "fulfillment")
	out := actions.Generator{}.Generate(res.Facts, res.Decision, actions.Snapshot{})
	po := findAction(t, out.Actions, actions.IDDraftEmergencyPO)
	if po.Status != domain.ActionReady {
		t.Fatalf("po status: %s", po.Status)
	}
	if diff := cmp.Diff([]string{"PROD-003"}, po.AffectedSKUs()); diff != "" {
		t.Fatalf("affected skus (-want +got):\n%s", diff)
	}
	notify := findAction(t, out.Actions, actions.IDNotifyCustomerService)
	if notify.Status != domain.ActionPlanned {
		t.Fatalf("notify status: %s", notify.Status)
	}
	if len(out.Approvals) != 1 || out.Approvals[0].ID != actions.IDApproveEmergencyReplenishment {
		t.Fatalf("approvals: %+v", out.Approvals)
	}
	if out.Pending() != 1 {
		t.Fatalf("pending: %d", out.Pending())
	}
}

func TestCompletedActionSurfacesAcrossSessions(t *testing.T) {
	first := shortfallDecision(t, "fulfillment")
	gen := actions.Generator{}
	out := gen.Generate(first.Facts, first.Decision, actions.Snapshot{})
	po := findAction(t, out.Actions, actions.IDDraftEmergencyPO)

	snap := actions.Snapshot{Actions: []domain.CompletedAction{{
		Key:          domain.ActionKey(po.Description, po.AffectedSKUs()),
		Description:  po.Description,
		AffectedSKUs: po.AffectedSKUs(),
		ActionID:     po.ID,
		SessionID:    "session-a",
		CompletedAt:  "2024-03-01T10:30:00Z",
		CompletedBy:  "alice",
	}}}

	second := shortfallDecision(t, "fulfillment")
	again := gen.Generate(second.Facts, second.Decision, snap)
	po = findAction(t, again.Actions, actions.IDDraftEmergencyPO)
	if po.Status != domain.ActionAlreadyCompleted {
		t.Fatalf("expected already_completed, got %s", po.Status)
	}
	if po.CompletedAt != "2024-03-01T10:30:00Z" || po.CompletedBy != "alice" {
		t.Fatalf("completion not copied: %+v", po)
	}
	if po.Note != "Action already taken on 2024-03-01 10:30 by alice" {
		t.Fatalf("note: %q", po.Note)
	}
}

func TestDecidedApprovalKeepsDecision(t *testing.T) {
	res := shortfallDecision(t, "fulfillment")
	snap := actions.Snapshot{Approvals: []domain.DecidedApproval{{
		Title:     "Approve emergency replenishment for shortage SKUs",
		Status:    domain.ApprovalRejected,
		DecidedAt: "2024-03-02T08:00:00Z",
		DecidedBy: "bob",
	}}}
	out := actions.Generator{}.Generate(res.Facts, res.Decision, snap)
	a := out.Approvals[0]
	if a.Status != domain.ApprovalRejected || a.DecidedBy != "bob" {
		t.Fatalf("approval: %+v", a)
	}
	if a.Note != "Already rejected on 2024-03-02 08:00 by bob" {
		t.Fatalf("note: %q", a.Note)
	}
	if out.Pending() != 0 {
		t.Fatalf("pending: %d", out.Pending())
	}
}

func TestFuzzyMatching(t *testing.T) {
	snap := actions.Snapshot{Actions: []domain.CompletedAction{
		{Description: "Activate expedited lanes now", CompletedAt: "2024-01-01T00:00:00Z", CompletedBy: "ops"},
		{Description: "Draft emergency purchase orders", CompletedAt: "2024-01-01T00:00:00Z", CompletedBy: "ops"},
	}}
	candidate := "Activate overflow carriers or expedited lanes for constrained routes"

	if _, ok := actions.NewIndex(snap, 3).MatchAction(candidate, nil); !ok {
		t.Fatalf("expected three shared words to match")
	}
	if _, ok := actions.NewIndex(snap, 4).MatchAction(candidate, nil); ok {
		t.Fatalf("threshold 4 should not match")
	}
	if _, ok := actions.NewIndex(snap, 10).MatchAction("Draft emergency purchase orders for shortage SKUs", []string{"PROD-1"}); !ok {
		t.Fatalf("expected containment match")
	}
	if _, ok := actions.NewIndex(snap, 3).MatchAction("Prepare executive briefing", nil); ok {
		t.Fatalf("unrelated description matched")
	}
	if snap.Actions[0].Key != "" {
		t.Fatalf("index must not write keys back into the snapshot")
	}
}

func TestHighRiskAlwaysEscalates(t *testing.T) {
	recs := []domain.SpecialistRecord{
		normalize.Normalize(domain.AgentInventory, `{"status":"shortfall","summary":"short"}`),
		normalize.Normalize(domain.AgentLogistics, `{"status":"blocked","summary":"blocked"}`),
		normalize.Normalize(domain.AgentRisk, `{"overallRiskScore":0.9,"summary":"high"}`),
	}
	for _, q := range []string{"fulfillment", "markdown_review", "production_schedule"} {
		res := fusion.Fuse(recs, q, nil)
		out := actions.Generator{}.Generate(res.Facts, res.Decision, actions.Snapshot{})
		seen := map[string]bool{}
		escalated := false
		for _, a := range out.Approvals {
			if seen[a.ID] {
				t.Fatalf("%s: duplicate approval %s", q, a.ID)
			}
			seen[a.ID] = true
			escalated = escalated || a.ID == actions.IDEscalateRiskReview
		}
		for _, a := range out.Actions {
			if seen[a.ID] {
				t.Fatalf("%s: duplicate action %s", q, a.ID)
			}
			seen[a.ID] = true
		}
		if !escalated {
			t.Fatalf("%s: missing escalation", q)
		}
		if briefing := findAction(t, out.Actions, actions.IDPrepareRiskBriefing); briefing.Type != domain.ActionAutonomous {
			t.Fatalf("%s: briefing type %s", q, briefing.Type)
		}
	}
}

func TestNoDataGeneratesNothing(t *testing.T) {
	res := fusion.Fuse([]domain.SpecialistRecord{domain.ErrorRecord(domain.AgentInventory, "down")}, "fulfillment", nil)
	out := actions.Generator{}.Generate(res.Facts, res.Decision, actions.Snapshot{})
	if len(out.Actions) != 0 || len(out.Approvals) != 0 {
		t.Fatalf("unexpected items: %+v", out)
	}
	if out.Actions == nil || out.Approvals == nil {
		t.Fatalf("slices must be non-nil")
	}
}
