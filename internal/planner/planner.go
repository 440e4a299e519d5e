// Package planner picks the specialists to invoke for a question.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"supplyfuse/internal/domain"
	"supplyfuse/internal/fusion"
	"supplyfuse/internal/llm"
	"supplyfuse/internal/normalize"
)

// GeneralQuery is the query type used whenever the planner falls back.
const GeneralQuery = fusion.GeneralQuery

const maxContextChars = 1000

// Plan is the ordered list of specialists and the query classification.
type Plan struct {
	Agents    []domain.AgentType `json:"agents"`
	QueryType string             `json:"queryType"`
	Fallback  bool               `json:"fallback"`
}

// Planner asks a language model to choose from the fixed specialist menu.
// The model's choice is authoritative unless it cannot be parsed or names no
// known specialist.
type Planner struct {
	LLM    llm.Asker
	Logger *zap.Logger
}

func (p Planner) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

// Default returns the deterministic fallback plan.
func Default() Plan {
	return Plan{Agents: domain.DefaultPlan(), QueryType: GeneralQuery, Fallback: true}
}

// Plan never fails; every error path yields Default.
func (p Planner) Plan(ctx context.Context, query string, history any) Plan {
	log := p.logger()
	text, err := llm.AskClean(ctx, p.LLM, Prompt(query, history))
	if err != nil {
		log.Warn("planner call failed; using default plan", zap.Error(err))
		return Default()
	}
	plan, err := Parse(text)
	if err != nil {
		log.Warn("planner response rejected; using default plan", zap.Error(err))
		return Default()
	}
	for _, w := range KeywordWarnings(query, plan.Agents) {
		log.Warn("plan may be missing a specialist",
			zap.String("agent", string(w.Agent)),
			zap.String("keyword", w.Keyword),
			zap.String("query_type", plan.QueryType))
	}
	return plan
}

// Parse validates a planner reply. Unknown and repeated identifiers are
// dropped; an empty result is an error wrapping domain.ErrPlannerFailure.
func Parse(text string) (Plan, error) {
	obj, ok := normalize.DecodeObject(normalize.StripCodeFences(llm.StripReasoning(text)))
	if !ok {
		return Plan{}, fmt.Errorf("%w: reply is not a JSON object", domain.ErrPlannerFailure)
	}
	raw, _ := obj["plan"].([]any)
	if raw == nil {
		raw, _ = obj["agents"].([]any)
	}
	var plan Plan
	seen := map[domain.AgentType]bool{}
	for _, item := range raw {
		s, _ := item.(string)
		agent, ok := domain.ParseAgentType(s)
		if !ok || seen[agent] {
			continue
		}
		seen[agent] = true
		plan.Agents = append(plan.Agents, agent)
	}
	if len(plan.Agents) == 0 {
		return Plan{}, fmt.Errorf("%w: no known specialist in plan", domain.ErrPlannerFailure)
	}
	plan.QueryType = GeneralQuery
	for _, key := range []string{"queryType", "query_type"} {
		if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
			plan.QueryType = strings.TrimSpace(s)
			break
		}
	}
	return plan, nil
}

var descriptions = []struct {
	agent domain.AgentType
	text  string
}{
	{domain.AgentInventory, "Analyze stock positions, shortages, replenishment needs and SKU-level inventory status. " +
		"Use for stock levels, stockouts, replenishment, warehouse stock or product availability."},
	{domain.AgentDemand, "Forecast demand trends, order velocity, high-demand products and revenue or margin at risk. " +
		"Use for forecasting, order patterns, demand surges or revenue impact."},
	{domain.AgentLogistics, "Assess fulfillment capacity, routing constraints, carrier performance and shipping constraints. " +
		"Use for carriers, shipping, delivery, routing, expedited shipments or fulfillment capacity."},
	{domain.AgentRisk, "Quantify risk posture, cross-domain exposure and risk factors, and recommend mitigations. " +
		"Use for disruptions, delays, SLA compliance, supplier reliability or impact analysis."},
}

// Prompt builds the planning request. history, when non-nil, is serialized
// and truncated as recent conversation context.
func Prompt(query string, history any) string {
	var b strings.Builder
	b.WriteString("You are the supply chain orchestrator. Decide which specialists are REQUIRED to answer the user query. ")
	b.WriteString("Only include specialists whose expertise is directly relevant.\n\nAvailable specialists:\n")
	for _, d := range descriptions {
		fmt.Fprintf(&b, "- %s: %s\n", d.agent, d.text)
	}
	b.WriteString("\nGuidelines:\n")
	b.WriteString("- Fulfillment questions usually need inventory and logistics, plus risk when exposure matters.\n")
	b.WriteString("- Demand planning questions usually need demand and inventory.\n")
	b.WriteString("- Carrier comparisons need logistics only.\n")
	b.WriteString("- Revenue impact questions need demand and risk.\n\n")
	b.WriteString("Return ONLY a JSON object with this exact shape:\n")
	b.WriteString(`{"plan": ["agent1", "agent2"], "queryType": "descriptive_snake_case"}` + "\n")
	b.WriteString("plan lists lowercase identifiers in execution order and has at least one entry. ")
	b.WriteString("queryType is a short snake_case category. No commentary, markdown or code fences.\n")
	fmt.Fprintf(&b, "\nUser query: %q\n", strings.TrimSpace(query))
	if snippet := contextSnippet(history); snippet != "" {
		fmt.Fprintf(&b, "Recent context (JSON snippet): %s\n", snippet)
	}
	return b.String()
}

func contextSnippet(history any) string {
	if history == nil {
		return ""
	}
	data, err := json.Marshal(history)
	if err != nil {
		return ""
	}
	s := string(data)
	if s == "null" || s == "{}" || s == "[]" || s == `""` {
		return ""
	}
	if len(s) > maxContextChars {
		cut := maxContextChars
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}
