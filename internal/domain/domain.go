package domain

import (
	"sort"
	"strings"
	"unicode"
)

type AgentType string

const (
	AgentInventory AgentType = "inventory"
	AgentDemand    AgentType = "demand"
	AgentLogistics AgentType = "logistics"
	AgentRisk      AgentType = "risk"
)

// DefaultPlan is the ordered set of every specialist.
func DefaultPlan() []AgentType {
	return []AgentType{AgentInventory, AgentDemand, AgentLogistics, AgentRisk}
}

// ParseAgentType accepts any casing and surrounding whitespace.
func ParseAgentType(s string) (AgentType, bool) {
	switch AgentType(strings.ToLower(strings.TrimSpace(s))) {
	case AgentInventory:
		return AgentInventory, true
	case AgentDemand:
		return AgentDemand, true
	case AgentLogistics:
		return AgentLogistics, true
	case AgentRisk:
		return AgentRisk, true
	}
	return "", false
}

func (a AgentType) Title() string {
	if a == "" {
		return ""
	}
	return strings.ToUpper(string(a[:1])) + string(a[1:])
}

// RecordSchemaVersion is bumped whenever the canonical record shape changes.
const RecordSchemaVersion = 1

// SpecialistRecord is the canonical shape of one specialist response.
type SpecialistRecord struct {
	SchemaVersion      int            `json:"schemaVersion"`
	AgentType          AgentType      `json:"agentType"`
	Status             string         `json:"status"`
	HighlightSummary   string         `json:"highlightSummary"`
	DetailedSummary    string         `json:"detailedSummary,omitempty"`
	Blockers           []string       `json:"blockers"`
	Metrics            map[string]any `json:"metrics"`
	Recommendations    []string       `json:"recommendations"`
	Confidence         float64        `json:"confidence"`
	ConfidenceReported bool           `json:"confidenceReported"`
	RawText            string         `json:"rawText,omitempty"`
	Error              string         `json:"error,omitempty"`
}

// Failed reports whether the record stands in for an invocation failure.
func (r SpecialistRecord) Failed() bool {
	return r.Status == StatusError
}

const (
	StatusUnknown    = "unknown"
	StatusError      = "error"
	StatusShortfall  = "shortfall"
	StatusSufficient = "sufficient"
	StatusConstraint = "constraint"
	StatusClear      = "clear"
	StatusInsight    = "insight"
	StatusDataGap    = "data_gap"
	StatusNeutral    = "neutral"
)

// ErrorRecord builds the record fed into fusion when a specialist could not be reached.
func ErrorRecord(agent AgentType, reason string) SpecialistRecord {
	return SpecialistRecord{
		SchemaVersion:      RecordSchemaVersion,
		AgentType:          agent,
		Status:             StatusError,
		HighlightSummary:   reason,
		Blockers:           []string{reason},
		Metrics:            map[string]any{},
		Recommendations:    []string{},
		Confidence:         0,
		ConfidenceReported: true,
		Error:              reason,
	}
}

type DecisionStatus string

const (
	DecisionReady           DecisionStatus = "ready"
	DecisionNeedsMitigation DecisionStatus = "needs_mitigation"
)

type RiskLevel string

const (
	RiskNotAssessed RiskLevel = "NotAssessed"
	RiskLow         RiskLevel = "Low"
	RiskMedium      RiskLevel = "Medium"
	RiskHigh        RiskLevel = "High"
)

// RiskLevelFromScore maps the 0-3 ordinal score.
func RiskLevelFromScore(score int) RiskLevel {
	switch {
	case score >= 3:
		return RiskHigh
	case score == 2:
		return RiskMedium
	case score == 1:
		return RiskLow
	default:
		return RiskNotAssessed
	}
}

// Label is the lower-case prose form.
func (l RiskLevel) Label() string {
	if l == RiskNotAssessed || l == "" {
		return "not assessed"
	}
	return strings.ToLower(string(l))
}

func (l RiskLevel) Assessed() bool {
	return l != RiskNotAssessed && l != ""
}

type Decision struct {
	Status            DecisionStatus        `json:"status"`
	RiskLevel         RiskLevel             `json:"riskLevel"`
	Blockers          []string              `json:"blockers"`
	Confidence        float64               `json:"confidence"`
	RiskSignals       []string              `json:"riskSignals"`
	CanFulfill        *bool                 `json:"canFulfill,omitempty"`
	ConfidenceWeights map[AgentType]float64 `json:"confidenceWeights"`
}

type Insights struct {
	Overview        string   `json:"overview,omitempty"`
	Metrics         []string `json:"metrics,omitempty"`
	Blockers        []string `json:"blockers,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

type AgentFinding struct {
	Agent           AgentType `json:"agent"`
	Status          string    `json:"status"`
	Summary         string    `json:"summary"`
	Confidence      float64   `json:"confidence"`
	Blockers        []string  `json:"blockers"`
	Recommendations []string  `json:"recommendations"`
	Insights        Insights  `json:"insights"`
}

// FusedDecision is the single structured answer to one user query.
type FusedDecision struct {
	Summary        string         `json:"summary"`
	Decision       Decision       `json:"decision"`
	DecisionStatus DecisionStatus `json:"decisionStatus"`
	RiskLevel      RiskLevel      `json:"riskLevel"`
	RiskScore      *float64       `json:"riskScore"`
	RiskSignals    []string       `json:"riskSignals"`
	Confidence     float64        `json:"confidence"`
	Blockers       []string       `json:"blockers"`
	Agents         []AgentType    `json:"agents"`
	AgentFindings  []AgentFinding `json:"agentFindings"`
	Actions        []Action       `json:"actions"`
	Approvals      []Approval     `json:"approvals"`
	NextSteps      []string       `json:"nextSteps"`
	QueryType      string         `json:"queryType"`
	SessionID      string         `json:"sessionId"`
	Timestamp      string         `json:"timestamp" format:"date-time"`
}

type ActionType string

const (
	ActionAutonomous ActionType = "autonomous"
	ActionManual     ActionType = "manual"
)

type ActionStatus string

const (
	ActionReady            ActionStatus = "ready"
	ActionPlanned          ActionStatus = "planned"
	ActionScheduled        ActionStatus = "scheduled"
	ActionAlreadyCompleted ActionStatus = "already_completed"
	ActionCompleted        ActionStatus = "completed"
)

type Notification struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type Action struct {
	ID           string         `json:"id"`
	Type         ActionType     `json:"type"`
	Description  string         `json:"description"`
	Status       ActionStatus   `json:"status"`
	RiskLevel    RiskLevel      `json:"riskLevel"`
	Owner        string         `json:"owner"`
	Data         map[string]any `json:"data,omitempty"`
	CompletedAt  string         `json:"completedAt,omitempty"`
	CompletedBy  string         `json:"completedBy,omitempty"`
	Note         string         `json:"note,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
}

// AffectedSKUs returns the sorted product ids of the shortage payload, if any.
func (a Action) AffectedSKUs() []string {
	return skusFromPayload(a.Data)
}

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Decided reports whether s is a terminal approval decision.
func (s ApprovalStatus) Decided() bool {
	return s == ApprovalApproved || s == ApprovalRejected
}

type Approval struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Risk         RiskLevel      `json:"risk"`
	Requires     string         `json:"requires"`
	Status       ApprovalStatus `json:"status"`
	Details      map[string]any `json:"details,omitempty"`
	DecidedAt    string         `json:"decidedAt,omitempty"`
	DecidedBy    string         `json:"decidedBy,omitempty"`
	Note         string         `json:"note,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
}

// CompletedAction is one entry of the completed-action snapshot.
type CompletedAction struct {
	Key          string   `json:"key"`
	Description  string   `json:"description"`
	AffectedSKUs []string `json:"affectedSkus,omitempty"`
	ActionID     string   `json:"actionId"`
	SessionID    string   `json:"sessionId"`
	CompletedAt  string   `json:"completedAt"`
	CompletedBy  string   `json:"completedBy"`
}

// DecidedApproval is one entry of the decided-approval snapshot.
type DecidedApproval struct {
	Key        string         `json:"key"`
	Title      string         `json:"title"`
	Status     ApprovalStatus `json:"status"`
	ApprovalID string         `json:"approvalId"`
	SessionID  string         `json:"sessionId"`
	DecidedAt  string         `json:"decidedAt"`
	DecidedBy  string         `json:"decidedBy"`
}

// NormalizeKey lower-cases, turns punctuation into spaces and collapses
// whitespace.
func NormalizeKey(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	}), " ")
}

// ActionKey builds the dedup key for an action description and its affected SKUs.
func ActionKey(description string, skus []string) string {
	key := NormalizeKey(description)
	var clean []string
	for _, s := range skus {
		if s = strings.TrimSpace(s); s != "" {
			clean = append(clean, s)
		}
	}
	if len(clean) == 0 {
		return key
	}
	sort.Strings(clean)
	return key + "|" + strings.Join(clean, ",")
}

// ProgressEvent is an incremental notice emitted while a query runs.
type ProgressEvent struct {
	Type      string      `json:"type"`
	Agent     AgentType   `json:"agent,omitempty"`
	Agents    []AgentType `json:"agents,omitempty"`
	QueryType string      `json:"queryType,omitempty"`
	Status    string      `json:"status,omitempty"`
	Message   string      `json:"message"`
	Timestamp string      `json:"timestamp" format:"date-time"`
}

const (
	ProgressPlan        = "plan"
	ProgressAgentStart  = "agent_start"
	ProgressAgentResult = "agent_result"
	ProgressFusion      = "fusion"
	ProgressDone        = "done"
)

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	SessionID  string `json:"session_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
