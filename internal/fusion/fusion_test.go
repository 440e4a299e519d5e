package fusion_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"supplyfuse/internal/domain"
	"supplyfuse/internal/fusion"
	"supplyfuse/internal/normalize"
)

func records(t *testing.T, raw map[domain.AgentType]string) []domain.SpecialistRecord {
	t.Helper()
	var out []domain.SpecialistRecord
	for _, agent := range domain.DefaultPlan() {
		if text, ok := raw[agent]; ok {
			out = append(out, normalize.Normalize(agent, text))
		}
	}
	return out
}

func TestShortageWithClearLogisticsNeedsMitigation(t *testing.T) {
	recs := records(t, map[domain.AgentType]string{
		domain.AgentInventory: "Inventory review:\n- PROD-003 shortage (30 units)",
		domain.AgentLogistics: `{"status":"clear","highlightSummary":"All routes have capacity"}`,
	})
	res := fusion.Fuse(recs, "fulfillment_check", nil)
	d := res.Decision
	if d.RiskLevel != domain.RiskMedium {
		t.Fatalf("risk level: %s", d.RiskLevel)
	}
	if d.Status != domain.DecisionNeedsMitigation {
		t.Fatalf("status: %s", d.Status)
	}
	if d.CanFulfill == nil || *d.CanFulfill {
		t.Fatalf("expected canFulfill=false, got %v", d.CanFulfill)
	}
	if !strings.HasPrefix(res.Summary, "No,") {
		t.Fatalf("summary should open with a negative answer: %q", res.Summary)
	}
	if !strings.Contains(res.Summary, "PROD-003 (30 units)") {
		t.Fatalf("summary missing shortage facts: %q", res.Summary)
	}
	want := []string{"Inventory shortages in PROD-003 (30 units)", "PROD-003 shortage (30 units)"}
	if diff := cmp.Diff(want, d.Blockers); diff != "" {
		t.Fatalf("blockers (-want +got):\n%s", diff)
	}
}

func TestAllClearIsReady(t *testing.T) {
	recs := records(t, map[domain.AgentType]string{
		domain.AgentInventory: `{"status":"sufficient","highlightSummary":"Stock covers demand"}`,
		domain.AgentDemand:    `{"status":"insight","highlightSummary":"Demand steady","metrics":{"totalPendingOrders":12}}`,
		domain.AgentLogistics: `{"status":"clear","highlightSummary":"Capacity available"}`,
		domain.AgentRisk:      `{"status":"low","highlightSummary":"Low risk"}`,
	})
	res := fusion.Fuse(recs, fusion.GeneralQuery, nil)
	d := res.Decision
	if d.Status != domain.DecisionReady {
		t.Fatalf("status: %s blockers=%v", d.Status, d.Blockers)
	}
	if d.RiskLevel != domain.RiskLow && d.RiskLevel != domain.RiskNotAssessed {
		t.Fatalf("risk level: %s", d.RiskLevel)
	}
	if d.CanFulfill == nil || !*d.CanFulfill {
		t.Fatalf("expected canFulfill=true")
	}
	if !strings.HasPrefix(res.Summary, "Yes, you can fulfill all 12 customer order(s)") {
		t.Fatalf("summary: %q", res.Summary)
	}
	if len(res.Findings) != 4 {
		t.Fatalf("findings: %d", len(res.Findings))
	}
}

func TestFuseIsIdempotent(t *testing.T) {
	recs := records(t, map[domain.AgentType]string{
		domain.AgentInventory: `{"status":"shortfall","summary":"Short","metrics":{"shortages":[{"productId":"PROD-1","required":10,"available":4,"shortage":6}]}}`,
		domain.AgentDemand:    `{"status":"insight","summary":"Up","metrics":{"highDemandProducts":[{"productId":"PROD-1","orderedQuantity":40}],"revenueAtRisk":1200.5}}`,
		domain.AgentLogistics: `{"status":"constraint","summary":"Tight","metrics":{"ordersNeedingRoutes":3,"capacityUtilization":0.9}}`,
		domain.AgentRisk:      `{"overallRiskScore":0.7,"riskLevel":"high","summary":"Risky"}`,
	})
	first, err := json.Marshal(fusion.Fuse(recs, "replenishment_plan", nil))
	if err != nil {
		t.Fatal(err)
	}
	second, err := json.Marshal(fusion.Fuse(recs, "replenishment_plan", nil))
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Fatalf("fusion not deterministic:\n%s\n%s", first, second)
	}
}

func TestNoAgentData(t *testing.T) {
	recs := []domain.SpecialistRecord{
		domain.ErrorRecord(domain.AgentInventory, "inventory specialist unreachable"),
		domain.ErrorRecord(domain.AgentLogistics, "logistics specialist unreachable"),
	}
	res := fusion.Fuse(recs, fusion.GeneralQuery, nil)
	d := res.Decision
	if d.Confidence != 0 {
		t.Fatalf("confidence: %v", d.Confidence)
	}
	if d.RiskLevel != domain.RiskNotAssessed {
		t.Fatalf("risk level: %s", d.RiskLevel)
	}
	if d.CanFulfill != nil {
		t.Fatalf("canFulfill should be unset when nothing was analyzed")
	}
	found := false
	for _, b := range d.Blockers {
		if strings.Contains(b, "No agent data") && strings.Contains(b, "inventory, logistics") {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing no-data blocker: %v", d.Blockers)
	}
	if !strings.HasPrefix(res.Summary, "Unable to assess") {
		t.Fatalf("summary: %q", res.Summary)
	}

	empty := fusion.Fuse(nil, fusion.GeneralQuery, nil)
	if empty.Decision.Confidence != 0 || empty.Decision.RiskLevel != domain.RiskNotAssessed {
		t.Fatalf("empty fusion: %+v", empty.Decision)
	}
	if empty.Findings == nil || empty.Decision.RiskSignals == nil || empty.Decision.Blockers == nil {
		t.Fatalf("slices must be non-nil")
	}
}

func TestHighRiskAddsBlocker(t *testing.T) {
	recs := records(t, map[domain.AgentType]string{
		domain.AgentRisk: `{"overallRiskScore":0.8,"summary":"Supplier concentration"}`,
	})
	res := fusion.Fuse(recs, "risk_review", nil)
	if res.Decision.RiskLevel != domain.RiskHigh {
		t.Fatalf("risk level: %s", res.Decision.RiskLevel)
	}
	if res.Decision.Status != domain.DecisionNeedsMitigation {
		t.Fatalf("status: %s", res.Decision.Status)
	}
	if diff := cmp.Diff([]string{"Risk posture is high; mitigation required"}, res.Decision.Blockers); diff != "" {
		t.Fatalf("blockers (-want +got):\n%s", diff)
	}
	if res.RiskScore == nil || *res.RiskScore != 0.8 {
		t.Fatalf("risk score: %v", res.RiskScore)
	}
	risk := res.Findings[0]
	if risk.Status != "high" || !strings.HasPrefix(risk.Summary, "Overall risk score 0.80 (high).") {
		t.Fatalf("risk finding: %+v", risk)
	}
}

func TestRiskNarrativeIsAdvisory(t *testing.T) {
	recs := records(t, map[domain.AgentType]string{
		domain.AgentRisk: `{"status":"critical","summary":"Sounds bad"}`,
	})
	res := fusion.Fuse(recs, "risk_review", nil)
	if res.Decision.RiskLevel != domain.RiskMedium {
		t.Fatalf("narrative-only status should cap at medium, got %s", res.Decision.RiskLevel)
	}
}

func TestDualConstraintIsHigh(t *testing.T) {
	recs := records(t, map[domain.AgentType]string{
		domain.AgentInventory: `{"status":"shortfall","summary":"Short on stock"}`,
		domain.AgentLogistics: `{"status":"delayed","summary":"Carrier delays"}`,
	})
	res := fusion.Fuse(recs, fusion.GeneralQuery, nil)
	if res.Decision.RiskLevel != domain.RiskHigh {
		t.Fatalf("risk level: %s", res.Decision.RiskLevel)
	}
	if res.Decision.Blockers[0] != "Inventory and logistics constraints require immediate mitigation." {
		t.Fatalf("blockers: %v", res.Decision.Blockers)
	}
}

func TestShortagesRecoveredFromBlockers(t *testing.T) {
	rec := domain.SpecialistRecord{
		AgentType:        domain.AgentInventory,
		Status:           "attention",
		HighlightSummary: "See blockers",
		Blockers:         []string{"SKU-9 shortage (12 units)"},
		Metrics:          map[string]any{},
		Recommendations:  []string{},
	}
	f := fusion.Extract([]domain.SpecialistRecord{rec}, "stockout_forecast")
	if !f.InventoryShortfall || f.TotalShortageUnits() != 12 {
		t.Fatalf("facts: %+v", f.Inventory)
	}
	if f.Branch != fusion.BranchStockout {
		t.Fatalf("branch: %s", f.Branch)
	}
}

func TestInferConfidence(t *testing.T) {
	cases := []struct {
		agent    domain.AgentType
		status   string
		blockers []string
		want     float64
	}{
		{domain.AgentInventory, domain.StatusShortfall, []string{"x"}, 0.60},
		{domain.AgentInventory, domain.StatusSufficient, nil, 0.88},
		{domain.AgentRisk, "high", nil, 0.67},
		{domain.AgentRisk, "medium", nil, 0.80},
		{domain.AgentDemand, domain.StatusDataGap, []string{"x"}, 0.40},
		{domain.AgentDemand, "whatever", nil, 0.80},
		{domain.AgentLogistics, domain.StatusClear, nil, 0.90},
	}
	for _, tc := range cases {
		rec := domain.SpecialistRecord{AgentType: tc.agent, Status: tc.status, Blockers: tc.blockers}
		if got := fusion.InferConfidence(rec); got != tc.want {
			t.Fatalf("%s/%s: got %v want %v", tc.agent, tc.status, got, tc.want)
		}
	}
}

func TestAggregateConfidenceRenormalizes(t *testing.T) {
	recs := []domain.SpecialistRecord{
		{AgentType: domain.AgentInventory, Status: domain.StatusSufficient},
		{AgentType: domain.AgentLogistics, Status: domain.StatusClear},
	}
	if got := fusion.AggregateConfidence(recs, fusion.DefaultWeights()); got != 0.89 {
		t.Fatalf("aggregate: %v", got)
	}
	recs = append(recs, domain.ErrorRecord(domain.AgentDemand, "down"))
	if got := fusion.AggregateConfidence(recs, fusion.DefaultWeights()); got >= 0.89 {
		t.Fatalf("failed specialist should lower confidence, got %v", got)
	}
	dup := []domain.SpecialistRecord{
		{AgentType: domain.AgentInventory, Status: domain.StatusSufficient},
		{AgentType: domain.AgentLogistics, Status: domain.StatusClear},
		domain.ErrorRecord(domain.AgentInventory, "retry failed"),
	}
	if got := fusion.AggregateConfidence(dup, fusion.DefaultWeights()); got != 0.89 {
		t.Fatalf("repeated agent record should be ignored, got %v", got)
	}
	reported := domain.SpecialistRecord{AgentType: domain.AgentRisk, Confidence: 1.7, ConfidenceReported: true}
	if got := fusion.Confidence(reported); got != 1 {
		t.Fatalf("reported confidence should clamp to 1, got %v", got)
	}
}

func TestClassify(t *testing.T) {
	cases := map[string]fusion.Branch{
		"":                         fusion.BranchFulfillment,
		"general_query":            fusion.BranchFulfillment,
		"order_fulfillment":        fusion.BranchFulfillment,
		"replenishment_plan":       fusion.BranchReplenishment,
		"carrier_activation":       fusion.BranchCarrierActivation,
		"carrier_comparison":       fusion.BranchCarrier,
		"supplier_diversification": fusion.BranchDiversification,
		"simulate_demand_surge":    fusion.BranchSurge,
		"late_delivery_risk":       fusion.BranchLateDelivery,
		"inventory_forecast":       fusion.BranchInventoryForecast,
		"demand_forecast":          fusion.BranchReconciliation,
		"weather":                  fusion.BranchGeneral,
	}
	for q, want := range cases {
		if got := fusion.Classify(q); got != want {
			t.Fatalf("%q: got %s want %s", q, got, want)
		}
	}
}

func TestNextStepsEndWithMonitoring(t *testing.T) {
	for _, q := range []string{fusion.GeneralQuery, "replenishment", "expedite", "executive_briefing", "weather"} {
		f := fusion.Extract(nil, q)
		steps := fusion.NextSteps(f, domain.Decision{Status: domain.DecisionReady, RiskLevel: domain.RiskLow}, 1)
		if len(steps) == 0 {
			t.Fatalf("%s: no steps", q)
		}
		if last := strings.ToLower(steps[len(steps)-1]); !strings.Contains(last, "monitor") {
			t.Fatalf("%s: last step %q", q, last)
		}
	}
}

func TestSingleSpecialistFailure(t *testing.T) {
	raw := map[domain.AgentType]string{
		domain.AgentInventory: `{"status":"sufficient","highlightSummary":"Stock covers demand"}`,
		domain.AgentDemand:    `{"status":"insight","highlightSummary":"Demand steady","metrics":{"totalPendingOrders":12}}`,
		domain.AgentLogistics: `{"status":"clear","highlightSummary":"Capacity available"}`,
		domain.AgentRisk:      `{"status":"low","highlightSummary":"Low risk"}`,
	}
	cases := []struct {
		failed    domain.AgentType
		wantReady bool
	}{
		{domain.AgentInventory, false},
		{domain.AgentLogistics, false},
		{domain.AgentDemand, true},
		{domain.AgentRisk, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.failed), func(t *testing.T) {
			recs := records(t, raw)
			for i, rec := range recs {
				if rec.AgentType == tc.failed {
					recs[i] = domain.ErrorRecord(tc.failed, "connection refused")
				}
			}
			res := fusion.Fuse(recs, "fulfillment_check", nil)
			d := res.Decision
			want := "No data from the " + string(tc.failed) + " specialist: invocation failed"
			found := false
			for _, b := range d.Blockers {
				if b == want {
					found = true
				}
			}
			if !found {
				t.Fatalf("missing blocker %q in %v", want, d.Blockers)
			}
			if !strings.Contains(res.Summary, "the "+string(tc.failed)+" specialist(s) failed") {
				t.Fatalf("summary should mention the failure: %q", res.Summary)
			}
			if tc.wantReady {
				if d.Status != domain.DecisionReady {
					t.Fatalf("status: %s blockers=%v", d.Status, d.Blockers)
				}
				return
			}
			if d.Status == domain.DecisionReady {
				t.Fatalf("status must not be ready when %s is missing", tc.failed)
			}
			if d.CanFulfill == nil || *d.CanFulfill {
				t.Fatalf("expected canFulfill=false, got %v", d.CanFulfill)
			}
			if strings.HasPrefix(res.Summary, "Yes") {
				t.Fatalf("summary must not confirm fulfillment: %q", res.Summary)
			}
			if !strings.HasPrefix(res.Summary, "Cannot confirm") {
				t.Fatalf("summary: %q", res.Summary)
			}
		})
	}
}

func TestStockoutWithoutInventoryData(t *testing.T) {
	recs := []domain.SpecialistRecord{
		domain.ErrorRecord(domain.AgentInventory, "timeout"),
		normalize.Normalize(domain.AgentDemand, `{"status":"insight","highlightSummary":"Demand steady"}`),
	}
	res := fusion.Fuse(recs, "stockout_forecast", nil)
	if strings.Contains(res.Summary, "No stockouts projected") {
		t.Fatalf("summary claims a forecast without inventory data: %q", res.Summary)
	}
}
