package server

import (
	"encoding/json"

	"supplyfuse/internal/domain"
)

// Request payloads

type QueryRequest struct {
	Query     string         `json:"query" minLength:"1" doc:"Question for the specialists"`
	SessionID string         `json:"sessionId,omitempty" doc:"Ledger session; generated when omitted"`
	Context   map[string]any `json:"context,omitempty" doc:"Prior conversation handed to the planner"`
}

type CompleteActionRequest struct {
	Comment string `json:"comment,omitempty"`
}

type DecideApprovalRequest struct {
	Decision string `json:"decision" enum:"approve,approved,reject,rejected"`
	Comment  string `json:"comment,omitempty"`
}

// Response payloads

type actionList struct {
	Items []domain.ActionRecord `json:"items"`
}

type approvalList struct {
	Items []domain.ApprovalRecord `json:"items"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	SessionID  string         `json:"session_id,omitempty"`
	EntityKind string         `json:"entity_kind" enum:"action,approval"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		SessionID:  e.SessionID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(s string) map[string]any {
	out := map[string]any{}
	if s == "" {
		return out
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return map[string]any{"raw": s}
	}
	return out
}
