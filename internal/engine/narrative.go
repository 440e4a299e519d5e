package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"supplyfuse/internal/domain"
	"supplyfuse/internal/fusion"
	"supplyfuse/internal/llm"
	"supplyfuse/internal/normalize"
)

// minNarrativeChars is the shortest model summary accepted over the
// template narrative.
const minNarrativeChars = 20

const maxDraftsInFlight = 4

func (e Engine) composeNarrative(ctx context.Context, question string, res fusion.Result, log *zap.Logger) (string, bool) {
	if e.LLM == nil {
		return "", false
	}
	text, err := llm.AskClean(ctx, e.LLM, narrativePrompt(question, res))
	if err != nil {
		log.Warn("narrative call failed; using template summary", zap.Error(err))
		return "", false
	}
	if len(text) <= minNarrativeChars {
		log.Warn("narrative too short; using template summary", zap.Int("chars", len(text)))
		return "", false
	}
	return text, true
}

func narrativePrompt(question string, res fusion.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a supply chain analyst. The user asked: %q\n\n", question)
	b.WriteString("Based on the following specialist findings, give a DIRECT answer to the question.\n\n")
	for _, f := range res.Findings {
		fmt.Fprintf(&b, "%s SPECIALIST:\nStatus: %s\n", strings.ToUpper(string(f.Agent)), f.Status)
		if f.Summary != "" {
			fmt.Fprintf(&b, "Summary: %s\n", f.Summary)
		}
		if f.Insights.Overview != "" {
			fmt.Fprintf(&b, "Detailed analysis: %s\n", f.Insights.Overview)
		}
		if len(f.Insights.Blockers) > 0 {
			fmt.Fprintf(&b, "Blockers: %s\n", strings.Join(f.Insights.Blockers, ", "))
		}
		if len(f.Insights.Recommendations) > 0 {
			fmt.Fprintf(&b, "Recommendations: %s\n", strings.Join(f.Insights.Recommendations, ", "))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Overall risk level: %s\n\n", res.Decision.RiskLevel)
	b.WriteString("Instructions:\n")
	b.WriteString("1. Start with the direct answer (Yes/No when applicable).\n")
	b.WriteString("2. Quote numbers, SKU ids and quantities exactly as the findings state them.\n")
	b.WriteString("3. If any specialist reports shortages, mention them.\n")
	b.WriteString("4. Never contradict the findings.\n")
	b.WriteString("5. Keep it to 3-5 sentences.\n")
	b.WriteString("Respond with ONLY the summary paragraph, no JSON or formatting.")
	return b.String()
}

// draftNotifications attaches model-written notices to ready actions in
// place. A failed draft leaves its action untouched.
func (e Engine) draftNotifications(ctx context.Context, items []domain.Action, log *zap.Logger) {
	if e.LLM == nil {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxDraftsInFlight)
	for i := range items {
		if items[i].Status != domain.ActionReady {
			continue
		}
		g.Go(func() error {
			n, err := e.draftNotification(gctx, items[i])
			if err != nil {
				log.Warn("notification draft failed", zap.String("action", items[i].ID), zap.Error(err))
				return nil
			}
			items[i].Notification = n
			return nil
		})
	}
	_ = g.Wait()
}

func (e Engine) draftNotification(ctx context.Context, a domain.Action) (*domain.Notification, error) {
	text, err := llm.AskClean(ctx, e.LLM, draftPrompt(a))
	if err != nil {
		return nil, err
	}
	obj, ok := normalize.DecodeObject(normalize.StripCodeFences(text))
	if !ok {
		return nil, fmt.Errorf("draft is not a JSON object")
	}
	subject, _ := obj["subject"].(string)
	body, _ := obj["body"].(string)
	if strings.TrimSpace(subject) == "" || strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("draft lacks subject or body")
	}
	return &domain.Notification{Subject: subject, Body: body}, nil
}

func draftPrompt(a domain.Action) string {
	owner := a.Owner
	if owner == "" {
		owner = "Team"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Generate a professional email notification for this supply chain action.\n\nAction: %s\nOwner: %s\n", a.Description, owner)
	if lines := domain.ShortageLines(a.Data[domain.MetricShortages]); len(lines) > 0 {
		b.WriteString("\nShortage details:\n")
		for i, l := range lines {
			if i == 5 {
				break
			}
			if l.ProductID != "" {
				fmt.Fprintf(&b, "  - %s: %d units short\n", l.ProductID, l.Shortage)
			}
		}
	}
	if products := domain.DemandProducts(a.Data[domain.MetricHighDemandProducts]); len(products) > 0 {
		ids := make([]string, 0, 3)
		for _, p := range products {
			if len(ids) == 3 {
				break
			}
			if p.ProductID != "" {
				ids = append(ids, p.ProductID)
			}
		}
		if len(ids) > 0 {
			fmt.Fprintf(&b, "\nHigh-demand products: %s\n", strings.Join(ids, ", "))
		}
	}
	if v, ok := domain.Number(a.Data[domain.MetricRevenueAtRisk]); ok && v > 0 {
		fmt.Fprintf(&b, "\nRevenue at risk: $%.2f\n", v)
	}
	if trend := domain.String(a.Data[domain.MetricDemandTrend]); trend != "" {
		fmt.Fprintf(&b, "\nDemand trend: %s\n", trend)
	}
	fmt.Fprintf(&b, "\nWrite a clear subject line (max 80 characters), a greeting to %s, the specific SKU ids and quantities, "+
		"next steps and a professional closing.\n", owner)
	b.WriteString(`Respond ONLY with JSON: {"subject": "...", "body": "..."}`)
	return b.String()
}
