package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"supplyfuse/internal/domain"
)

const maxTextItems = 5

var (
	boldRe      = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	underlineRe = regexp.MustCompile(`__([^_]+)__`)
	bulletRe    = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+(.+)$`)
	markerRe    = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)

	// SKU tokens must carry a digit so ordinary words never match as product ids.
	skuPattern = `(?:product(?:\s+id)?\s*:?\s*)?([A-Za-z_-]*\d[A-Za-z0-9_-]*)`
	tripleRe   = regexp.MustCompile(`(?i)` + skuPattern +
		`[^\n]*?\brequired\s*:?\s*([\d,]+)[^\n]*?\bavailable\s*:?\s*([\d,]+)[^\n]*?\b(shortage|surplus)(?:\s+of)?\s*:?\s*([\d,]+)`)
	pairRe = regexp.MustCompile(`(?i)` + skuPattern +
		`[^\n]*?\b(shortage|surplus)(?:\s+of)?\s*[:(-]?\s*([\d,]+)`)

	riskWordRe = regexp.MustCompile(`(?i)\b(critical|high|medium|moderate|low)\b`)
)

// StripCodeFences returns the body of the first fenced block. A fence embedded
// in surrounding prose is only unwrapped when it holds a JSON object.
func StripCodeFences(s string) string {
	t := strings.TrimSpace(s)
	start := strings.Index(t, "```")
	if start < 0 {
		return t
	}
	rest := t[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		if tag := strings.TrimSpace(rest[:nl]); tag == "" || !strings.ContainsAny(tag, " {") {
			rest = rest[nl+1:]
		}
	} else {
		rest = strings.TrimPrefix(rest, "json")
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	inner := strings.TrimSpace(rest)
	if start == 0 || strings.HasPrefix(inner, "{") {
		return inner
	}
	return t
}

// StripEmphasis removes markdown bold/underline markers and unescapes literal
// "\n" sequences left behind by double encoding.
func StripEmphasis(s string) string {
	s = strings.ReplaceAll(s, `\n`, "\n")
	s = boldRe.ReplaceAllString(s, "$1")
	s = underlineRe.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}

// ScanQuantities extracts SKU quantity lines such as
// "Product PROD-001: required 10, available 4, shortage 6" or
// "PROD-003 shortage (30 units)". Later lines for an already seen SKU are ignored.
func ScanQuantities(text string) (shortages, surplus []domain.ShortageLine) {
	seen := map[string]struct{}{}
	for _, line := range strings.Split(text, "\n") {
		l, ok := scanLine(line)
		if !ok {
			continue
		}
		key := strings.ToUpper(l.ProductID)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if l.Surplus > 0 {
			surplus = append(surplus, l)
		} else {
			shortages = append(shortages, l)
		}
	}
	return shortages, surplus
}

func scanLine(line string) (domain.ShortageLine, bool) {
	line = markerRe.ReplaceAllString(line, "")
	if m := tripleRe.FindStringSubmatch(line); m != nil {
		req, avail, qty := atoi(m[2]), atoi(m[3]), atoi(m[5])
		l := domain.ShortageLine{ProductID: m[1], Required: &req, Available: &avail}
		if strings.EqualFold(m[4], "surplus") {
			l.Surplus = qty
		} else {
			l.Shortage = qty
		}
		return l, qty > 0
	}
	if m := pairRe.FindStringSubmatch(line); m != nil {
		qty := atoi(m[3])
		l := domain.ShortageLine{ProductID: m[1]}
		if strings.EqualFold(m[2], "surplus") {
			l.Surplus = qty
		} else {
			l.Shortage = qty
		}
		return l, qty > 0
	}
	return domain.ShortageLine{}, false
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.ReplaceAll(s, ",", ""))
	return n
}

// ShortageBlocker renders the canonical blocker text for one shortage line.
func ShortageBlocker(l domain.ShortageLine) string {
	return fmt.Sprintf("%s shortage (%d units)", l.ProductID, l.Shortage)
}

func applyText(agent domain.AgentType, prose string, rec *domain.SpecialistRecord) {
	rec.HighlightSummary = prose
	shortages, surplus := ScanQuantities(prose)
	if len(surplus) > 0 {
		rec.Metrics[domain.MetricSurplus] = surplus
	}
	if len(shortages) > 0 {
		rec.Status = domain.StatusShortfall
		rec.Metrics[domain.MetricShortages] = shortages
		for _, l := range shortages {
			rec.Blockers = append(rec.Blockers, ShortageBlocker(l))
		}
		return
	}
	lower := strings.ToLower(prose)
	switch agent {
	case domain.AgentInventory:
		switch {
		case containsAny(lower, "cannot fulfill", "can't fulfill", "unable to fulfill", "not possible", "insufficient"):
			rec.Status = domain.StatusShortfall
			rec.Blockers = append(rec.Blockers, "Inventory cannot cover current demand")
		case containsAny(lower, "sufficient", "can fulfill", "enough stock"):
			rec.Status = domain.StatusSufficient
		}
	case domain.AgentDemand:
		switch {
		case containsAny(lower, "need to know", "do you have", "please provide", "missing data"):
			rec.Status = domain.StatusDataGap
			rec.Recommendations = append(rec.Recommendations, "Provide the demand inputs requested by the demand specialist")
		case containsAny(lower, "demand", "forecast", "orders"):
			rec.Status = domain.StatusInsight
		}
	case domain.AgentLogistics:
		switch {
		case containsAny(lower, "constraint", "bottleneck", "delay", "blocked"):
			rec.Status = domain.StatusConstraint
			rec.Recommendations = append(rec.Recommendations, "Review carrier capacity and routing constraints")
		case containsAny(lower, "confidently fulfill", "capacity", "on track", "on schedule"):
			rec.Status = domain.StatusClear
		}
	case domain.AgentRisk:
		if m := riskWordRe.FindStringSubmatch(prose); m != nil {
			level := strings.ToLower(m[1])
			rec.Status = level
			rec.Metrics[domain.MetricRiskLevel] = level
			if level == "high" || level == "critical" {
				rec.Blockers = append(rec.Blockers, "Risk profile elevated")
			}
		}
		rec.Recommendations = append(rec.Recommendations, bullets(prose)...)
	}
}

func bullets(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if m := bulletRe.FindStringSubmatch(line); m != nil {
			out = append(out, strings.TrimSpace(m[1]))
			if len(out) == maxTextItems {
				break
			}
		}
	}
	return out
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
