// Package normalize turns raw specialist output into canonical records.
//
// Specialists answer with well-formed JSON, JSON double-encoded inside a
// "message" envelope, fenced JSON, or prose. Normalize tries each form in that
// order and never fails: unparseable input degrades to a low-signal record with
// status "unknown".
package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	"supplyfuse/internal/domain"
)

// maxUnwrap bounds envelope unwrapping of double-encoded payloads.
const maxUnwrap = 2

var envelopeKeys = []string{"message", "response", "completion", "output", "result", "body"}

var summaryKeys = []string{
	"highlightSummary", "summary", "detailedSummary", "analysis",
	"status", "metrics", "blockers", "recommendations",
}

// Normalize converts one specialist response into the canonical record.
func Normalize(agent domain.AgentType, raw string) domain.SpecialistRecord {
	rec := newRecord(agent, raw)
	text := strings.TrimSpace(raw)
	if text == "" {
		rec.HighlightSummary = "No response received from agent"
		return finalize(rec)
	}
	cleaned := StripCodeFences(text)
	if obj, ok := DecodeObject(cleaned); ok {
		obj = unwrapEnvelope(obj)
		if recognized(agent, obj) {
			applyObject(agent, obj, &rec)
			return finalize(rec)
		}
		if msg := proseFromObject(obj); msg != "" {
			cleaned = msg
		}
	}
	applyText(agent, StripEmphasis(cleaned), &rec)
	return finalize(rec)
}

func newRecord(agent domain.AgentType, raw string) domain.SpecialistRecord {
	return domain.SpecialistRecord{
		SchemaVersion:   domain.RecordSchemaVersion,
		AgentType:       agent,
		Status:          domain.StatusUnknown,
		Blockers:        []string{},
		Metrics:         map[string]any{},
		Recommendations: []string{},
		RawText:         raw,
	}
}

// DecodeObject parses text as a JSON object, falling back to the outermost
// brace-delimited substring when the text carries leading or trailing prose.
func DecodeObject(text string) (map[string]any, bool) {
	if obj, ok := parseObject(text); ok {
		return obj, true
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	return parseObject(text[start : end+1])
}

func parseObject(text string) (map[string]any, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "{") {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, false
	}
	return obj, obj != nil
}

func unwrapEnvelope(obj map[string]any) map[string]any {
	for i := 0; i < maxUnwrap; i++ {
		inner, ok := nestedObject(obj)
		if !ok {
			return obj
		}
		obj = inner
	}
	return obj
}

func nestedObject(obj map[string]any) (map[string]any, bool) {
	for _, key := range envelopeKeys {
		switch v := obj[key].(type) {
		case string:
			if inner, ok := DecodeObject(StripCodeFences(v)); ok {
				return inner, true
			}
		case map[string]any:
			if hasAny(v, summaryKeys) {
				return v, true
			}
		}
	}
	return nil, false
}

func recognized(agent domain.AgentType, obj map[string]any) bool {
	return hasAny(obj, summaryKeys) || hasAny(obj, agentKeys(agent))
}

func hasAny(obj map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}

func proseFromObject(obj map[string]any) string {
	for _, key := range envelopeKeys {
		if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func applyObject(agent domain.AgentType, obj map[string]any, rec *domain.SpecialistRecord) {
	highlight, detailedFromHighlight := summaryField(obj, "highlightSummary", "summary")
	detailed, highlightFromDetailed := detailedField(obj, "detailedSummary", "analysis")
	if highlight == "" {
		highlight = highlightFromDetailed
	}
	if detailed == "" {
		detailed = detailedFromHighlight
	}
	if highlight == "" {
		if msg, ok := obj["message"].(string); ok {
			highlight = msg
		}
	}
	rec.HighlightSummary = highlight
	rec.DetailedSummary = detailed

	if s := strings.ToLower(strings.TrimSpace(domain.String(obj["status"]))); s != "" {
		rec.Status = s
	}
	rec.Blockers = append(rec.Blockers, stringList(obj["blockers"])...)
	rec.Recommendations = append(rec.Recommendations, stringList(obj["recommendations"])...)
	if m, ok := obj["metrics"].(map[string]any); ok {
		for k, v := range m {
			rec.Metrics[k] = v
		}
	}
	if c, ok := domain.Number(obj["confidence"]); ok {
		rec.Confidence = clampConfidence(c)
		rec.ConfidenceReported = true
	}
	seedAgentObject(agent, obj, rec)
}

// summaryField returns the concise text under the first present key, plus any
// extended text found while unpacking a nested object.
func summaryField(obj map[string]any, keys ...string) (string, string) {
	for _, key := range keys {
		v, ok := obj[key]
		if !ok || v == nil {
			continue
		}
		concise, extended := textOf(v, 0)
		if concise != "" {
			return concise, extended
		}
	}
	return "", ""
}

func detailedField(obj map[string]any, keys ...string) (string, string) {
	for _, key := range keys {
		v, ok := obj[key]
		if !ok || v == nil {
			continue
		}
		concise, extended := textOf(v, 0)
		if m := asObject(v); m != nil {
			if extended != "" {
				return extended, concise
			}
			return concise, ""
		}
		if concise != "" {
			return concise, ""
		}
	}
	return "", ""
}

func asObject(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return t
	case string:
		if obj, ok := parseObject(t); ok {
			return obj
		}
	}
	return nil
}

// textOf flattens a summary candidate. Strings are returned untouched unless
// they are themselves JSON objects; objects yield their summary-shaped
// subfields and are serialized as a last resort so no data is dropped.
func textOf(v any, depth int) (concise, extended string) {
	if obj := asObject(v); obj != nil && depth < maxUnwrap {
		concise, _ = firstString(obj, depth, "highlightSummary", "summary", "message")
		extended, _ = firstString(obj, depth, "detailedSummary", "analysis")
		if concise == "" && extended == "" {
			data, err := json.Marshal(obj)
			if err == nil {
				concise = string(data)
			}
		}
		return concise, extended
	}
	switch t := v.(type) {
	case string:
		return t, ""
	case nil:
		return "", ""
	case []any:
		return strings.Join(stringList(t), "; "), ""
	default:
		return fmt.Sprint(t), ""
	}
}

func firstString(obj map[string]any, depth int, keys ...string) (string, bool) {
	for _, key := range keys {
		v, ok := obj[key]
		if !ok || v == nil {
			continue
		}
		concise, _ := textOf(v, depth+1)
		if concise != "" {
			return concise, true
		}
	}
	return "", false
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return []string{s}
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch t := item.(type) {
		case string:
			if strings.TrimSpace(t) != "" {
				out = append(out, t)
			}
		case map[string]any:
			if s, _ := firstString(t, 0, "description", "text", "risk", "action", "title", "summary"); s != "" {
				out = append(out, s)
				continue
			}
			if data, err := json.Marshal(t); err == nil {
				out = append(out, string(data))
			}
		case nil:
		default:
			out = append(out, fmt.Sprint(t))
		}
	}
	return out
}

func clampConfidence(c float64) float64 {
	if c > 1 && c <= 100 {
		c /= 100
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func finalize(rec domain.SpecialistRecord) domain.SpecialistRecord {
	if rec.Status == "" {
		rec.Status = domain.StatusUnknown
	}
	rec.Blockers = dedupe(rec.Blockers)
	rec.Recommendations = dedupe(rec.Recommendations)
	if rec.Metrics == nil {
		rec.Metrics = map[string]any{}
	}
	for k, v := range metricDefaults(rec.AgentType) {
		if _, ok := rec.Metrics[k]; !ok {
			rec.Metrics[k] = v
		}
	}
	return rec
}

func dedupe(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
