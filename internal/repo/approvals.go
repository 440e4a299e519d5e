package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"supplyfuse/internal/domain"
)

const approvalColumns = `session_id,approval_id,title,risk,requires,status,details_json,query_type,created_at,COALESCE(decided_at,''),COALESCE(decided_by,''),COALESCE(comment,'')`

func scanApproval(row rowScanner) (domain.ApprovalRecord, error) {
	var a domain.ApprovalRecord
	var details sql.NullString
	err := row.Scan(&a.SessionID, &a.ApprovalID, &a.Title, &a.Risk, &a.Requires, &a.Status, &details,
		&a.QueryType, &a.CreatedAt, &a.DecidedAt, &a.DecidedBy, &a.Comment)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.Details = unmarshalMap(details)
	return a, nil
}

func (r Repo) InsertApprovalTx(ctx context.Context, tx *sql.Tx, a domain.ApprovalRecord) (bool, error) {
	details, err := marshalMap(a.Details)
	if err != nil {
		return false, fmt.Errorf("marshal approval details: %w", err)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO approvals(session_id,approval_id,title,dedup_key,risk,requires,status,details_json,query_type,created_at,decided_at,decided_by)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?) ON CONFLICT(session_id,approval_id) DO NOTHING`,
		a.SessionID, a.ApprovalID, a.Title, domain.NormalizeKey(a.Title), a.Risk, a.Requires, a.Status, details,
		a.QueryType, a.CreatedAt, nullable(a.DecidedAt), nullable(a.DecidedBy))
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r Repo) GetApprovalTx(ctx context.Context, tx *sql.Tx, sessionID, approvalID string) (domain.ApprovalRecord, error) {
	return getApproval(ctx, tx, sessionID, approvalID)
}

func getApproval(ctx context.Context, q rowQuerier, sessionID, approvalID string) (domain.ApprovalRecord, error) {
	return scanApproval(q.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE session_id=? AND approval_id=?`, sessionID, approvalID))
}

func (r Repo) ListApprovals(ctx context.Context, sessionID string) ([]domain.ApprovalRecord, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE session_id=? ORDER BY created_at ASC, rowid ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.ApprovalRecord{}
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// DecideApprovalTx moves a pending approval to approved or rejected.
func (r Repo) DecideApprovalTx(ctx context.Context, tx *sql.Tx, sessionID, approvalID string, status domain.ApprovalStatus, actorID, comment, at string) error {
	if !status.Decided() {
		return fmt.Errorf("invalid decision %q", status)
	}
	res, err := tx.ExecContext(ctx, `UPDATE approvals SET status=?, decided_at=?, decided_by=?, comment=?
WHERE session_id=? AND approval_id=? AND status=?`,
		status, at, actorID, nullable(comment), sessionID, approvalID, domain.ApprovalPending)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := getApproval(ctx, tx, sessionID, approvalID); err != nil {
			return err
		}
		return fmt.Errorf("%w: approval %s already decided", ErrConflict, approvalID)
	}
	return nil
}

// ListDecidedApprovals returns the newest decisions across all sessions.
func (r Repo) ListDecidedApprovals(ctx context.Context, limit int) ([]domain.DecidedApproval, error) {
	if limit <= 0 {
		limit = defaultSnapshotLimit
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT dedup_key,title,status,approval_id,session_id,decided_at,COALESCE(decided_by,'')
FROM approvals WHERE status IN (?,?) AND decided_at IS NOT NULL
ORDER BY decided_at DESC, rowid DESC LIMIT ?`, domain.ApprovalApproved, domain.ApprovalRejected, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DecidedApproval
	for rows.Next() {
		var d domain.DecidedApproval
		if err := rows.Scan(&d.Key, &d.Title, &d.Status, &d.ApprovalID, &d.SessionID, &d.DecidedAt, &d.DecidedBy); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}
