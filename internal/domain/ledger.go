package domain

// ActionRecord is a persisted action of one session.
type ActionRecord struct {
	SessionID    string         `json:"sessionId"`
	ActionID     string         `json:"actionId"`
	Type         ActionType     `json:"type"`
	Description  string         `json:"description"`
	Status       ActionStatus   `json:"status"`
	RiskLevel    RiskLevel      `json:"riskLevel"`
	Owner        string         `json:"owner"`
	Data         map[string]any `json:"data,omitempty"`
	AffectedSKUs []string       `json:"affectedSkus,omitempty"`
	QueryType    string         `json:"queryType"`
	CreatedAt    string         `json:"createdAt" format:"date-time"`
	CompletedAt  string         `json:"completedAt,omitempty"`
	CompletedBy  string         `json:"completedBy,omitempty"`
	Comment      string         `json:"comment,omitempty"`
}

// ApprovalRecord is a persisted approval request of one session.
type ApprovalRecord struct {
	SessionID  string         `json:"sessionId"`
	ApprovalID string         `json:"approvalId"`
	Title      string         `json:"title"`
	Risk       RiskLevel      `json:"risk"`
	Requires   string         `json:"requires"`
	Status     ApprovalStatus `json:"status"`
	Details    map[string]any `json:"details,omitempty"`
	QueryType  string         `json:"queryType"`
	CreatedAt  string         `json:"createdAt" format:"date-time"`
	DecidedAt  string         `json:"decidedAt,omitempty"`
	DecidedBy  string         `json:"decidedBy,omitempty"`
	Comment    string         `json:"comment,omitempty"`
}

// Ledger event types delivered to webhooks.
const (
	EventActionRecorded    = "action.recorded"
	EventApprovalRequested = "approval.requested"
	EventActionCompleted   = "action.completed"
	EventApprovalDecided   = "approval.decided"
)
