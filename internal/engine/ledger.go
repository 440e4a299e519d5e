package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"supplyfuse/internal/domain"
	"supplyfuse/internal/events"
	"supplyfuse/internal/repo"
)

// ErrNoLedger is returned by ledger operations on an engine without a database.
var ErrNoLedger = errors.New("ledger not configured")

const defaultActor = "system"

func actorOrDefault(actorID string) string {
	if strings.TrimSpace(actorID) == "" {
		return defaultActor
	}
	return actorID
}

// RecordDecision persists the actions and approvals of d under its session.
// Items the session already holds are left unchanged.
func (e Engine) RecordDecision(ctx context.Context, d domain.FusedDecision, actorID string) error {
	if !e.ledgerEnabled() {
		return ErrNoLedger
	}
	actorID = actorOrDefault(actorID)
	now := e.timestamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, a := range d.Actions {
		rec := domain.ActionRecord{
			SessionID:    d.SessionID,
			ActionID:     a.ID,
			Type:         a.Type,
			Description:  a.Description,
			Status:       a.Status,
			RiskLevel:    a.RiskLevel,
			Owner:        a.Owner,
			Data:         a.Data,
			AffectedSKUs: a.AffectedSKUs(),
			QueryType:    d.QueryType,
			CreatedAt:    now,
			CompletedAt:  a.CompletedAt,
			CompletedBy:  a.CompletedBy,
		}
		inserted, err := e.Repo.InsertActionTx(ctx, tx, rec)
		if err != nil {
			return fmt.Errorf("insert action %s: %w", a.ID, err)
		}
		if !inserted {
			continue
		}
		if err := e.events().Append(ctx, tx, domain.EventActionRecorded, d.SessionID, "action", a.ID, actorID, events.EventPayload{
			"description": a.Description,
			"status":      a.Status,
			"owner":       a.Owner,
			"queryType":   d.QueryType,
		}); err != nil {
			return err
		}
	}
	for _, a := range d.Approvals {
		rec := domain.ApprovalRecord{
			SessionID:  d.SessionID,
			ApprovalID: a.ID,
			Title:      a.Title,
			Risk:       a.Risk,
			Requires:   a.Requires,
			Status:     a.Status,
			Details:    a.Details,
			QueryType:  d.QueryType,
			CreatedAt:  now,
			DecidedAt:  a.DecidedAt,
			DecidedBy:  a.DecidedBy,
		}
		inserted, err := e.Repo.InsertApprovalTx(ctx, tx, rec)
		if err != nil {
			return fmt.Errorf("insert approval %s: %w", a.ID, err)
		}
		if !inserted || a.Status != domain.ApprovalPending {
			continue
		}
		if err := e.events().Append(ctx, tx, domain.EventApprovalRequested, d.SessionID, "approval", a.ID, actorID, events.EventPayload{
			"title":     a.Title,
			"risk":      a.Risk,
			"requires":  a.Requires,
			"queryType": d.QueryType,
		}); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CompleteAction records that actorID carried out the action.
func (e Engine) CompleteAction(ctx context.Context, sessionID, actionID, actorID, comment string) (domain.ActionRecord, error) {
	if !e.ledgerEnabled() {
		return domain.ActionRecord{}, ErrNoLedger
	}
	actorID = actorOrDefault(actorID)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ActionRecord{}, err
	}
	defer tx.Rollback()

	at := e.timestamp()
	if err := e.Repo.CompleteActionTx(ctx, tx, sessionID, actionID, actorID, comment, at); err != nil {
		return domain.ActionRecord{}, err
	}
	rec, err := e.Repo.GetActionTx(ctx, tx, sessionID, actionID)
	if err != nil {
		return domain.ActionRecord{}, err
	}
	if err := e.events().Append(ctx, tx, domain.EventActionCompleted, sessionID, "action", actionID, actorID, events.EventPayload{
		"description":  rec.Description,
		"affectedSkus": rec.AffectedSKUs,
		"completedAt":  at,
		"comment":      comment,
	}); err != nil {
		return domain.ActionRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ActionRecord{}, err
	}
	return rec, nil
}

// ParseDecision accepts approve/approved and reject/rejected.
func ParseDecision(s string) (domain.ApprovalStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve", "approved":
		return domain.ApprovalApproved, nil
	case "reject", "rejected":
		return domain.ApprovalRejected, nil
	}
	return "", fmt.Errorf("decision must be approved or rejected, got %q", s)
}

// DecideApproval records an approval decision.
func (e Engine) DecideApproval(ctx context.Context, sessionID, approvalID string, decision domain.ApprovalStatus, actorID, comment string) (domain.ApprovalRecord, error) {
	if !e.ledgerEnabled() {
		return domain.ApprovalRecord{}, ErrNoLedger
	}
	if !decision.Decided() {
		return domain.ApprovalRecord{}, fmt.Errorf("decision must be approved or rejected, got %q", decision)
	}
	actorID = actorOrDefault(actorID)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ApprovalRecord{}, err
	}
	defer tx.Rollback()

	at := e.timestamp()
	if err := e.Repo.DecideApprovalTx(ctx, tx, sessionID, approvalID, decision, actorID, comment, at); err != nil {
		return domain.ApprovalRecord{}, err
	}
	rec, err := e.Repo.GetApprovalTx(ctx, tx, sessionID, approvalID)
	if err != nil {
		return domain.ApprovalRecord{}, err
	}
	if err := e.events().Append(ctx, tx, domain.EventApprovalDecided, sessionID, "approval", approvalID, actorID, events.EventPayload{
		"title":     rec.Title,
		"decision":  decision,
		"decidedAt": at,
		"comment":   comment,
	}); err != nil {
		return domain.ApprovalRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ApprovalRecord{}, err
	}
	return rec, nil
}

func (e Engine) ListActions(ctx context.Context, sessionID string) ([]domain.ActionRecord, error) {
	if !e.ledgerEnabled() {
		return nil, ErrNoLedger
	}
	return e.Repo.ListActions(ctx, sessionID)
}

func (e Engine) GetAction(ctx context.Context, sessionID, actionID string) (domain.ActionRecord, error) {
	if !e.ledgerEnabled() {
		return domain.ActionRecord{}, ErrNoLedger
	}
	return e.Repo.GetAction(ctx, sessionID, actionID)
}

func (e Engine) ListApprovals(ctx context.Context, sessionID string) ([]domain.ApprovalRecord, error) {
	if !e.ledgerEnabled() {
		return nil, ErrNoLedger
	}
	return e.Repo.ListApprovals(ctx, sessionID)
}

func (e Engine) EventsAfter(ctx context.Context, limit int, cursor int64, sessionID string) ([]domain.Event, error) {
	if !e.ledgerEnabled() {
		return nil, ErrNoLedger
	}
	return e.Repo.EventsAfter(ctx, limit, cursor, sessionID)
}

// IsNotFound and IsConflict classify ledger errors for callers outside the
// engine.
func IsNotFound(err error) bool { return errors.Is(err, repo.ErrNotFound) }
func IsConflict(err error) bool { return errors.Is(err, repo.ErrConflict) }
