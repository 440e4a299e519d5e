package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"supplyfuse/internal/domain"
)

const actionColumns = `session_id,action_id,type,description,affected_skus,status,risk_level,owner,data_json,query_type,created_at,COALESCE(completed_at,''),COALESCE(completed_by,''),COALESCE(comment,'')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(row rowScanner) (domain.ActionRecord, error) {
	var a domain.ActionRecord
	var skus, data sql.NullString
	err := row.Scan(&a.SessionID, &a.ActionID, &a.Type, &a.Description, &skus, &a.Status, &a.RiskLevel, &a.Owner,
		&data, &a.QueryType, &a.CreatedAt, &a.CompletedAt, &a.CompletedBy, &a.Comment)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.AffectedSKUs = splitSKUs(skus)
	a.Data = unmarshalMap(data)
	return a, nil
}

// InsertActionTx stores a if the session does not already hold an action with
// the same id. An existing row that is not yet completed is refreshed with the
// new content instead. It reports whether a new row was written.
func (r Repo) InsertActionTx(ctx context.Context, tx *sql.Tx, a domain.ActionRecord) (bool, error) {
	data, err := marshalMap(a.Data)
	if err != nil {
		return false, fmt.Errorf("marshal action data: %w", err)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO actions(session_id,action_id,type,description,dedup_key,affected_skus,status,risk_level,owner,data_json,query_type,created_at,completed_at,completed_by)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?) ON CONFLICT(session_id,action_id) DO NOTHING`,
		a.SessionID, a.ActionID, a.Type, a.Description, domain.ActionKey(a.Description, a.AffectedSKUs), joinSKUs(a.AffectedSKUs),
		a.Status, a.RiskLevel, a.Owner, data, a.QueryType, a.CreatedAt, nullable(a.CompletedAt), nullable(a.CompletedBy))
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}
	_, err = tx.ExecContext(ctx, `UPDATE actions SET type=?,description=?,dedup_key=?,affected_skus=?,status=?,risk_level=?,owner=?,data_json=?,query_type=?,completed_at=?,completed_by=?
WHERE session_id=? AND action_id=? AND status NOT IN (?,?)`,
		a.Type, a.Description, domain.ActionKey(a.Description, a.AffectedSKUs), joinSKUs(a.AffectedSKUs),
		a.Status, a.RiskLevel, a.Owner, data, a.QueryType, nullable(a.CompletedAt), nullable(a.CompletedBy),
		a.SessionID, a.ActionID, domain.ActionCompleted, domain.ActionAlreadyCompleted)
	if err != nil {
		return false, fmt.Errorf("refresh action: %w", err)
	}
	return false, nil
}

func (r Repo) GetAction(ctx context.Context, sessionID, actionID string) (domain.ActionRecord, error) {
	return getAction(ctx, r.DB, sessionID, actionID)
}

func (r Repo) GetActionTx(ctx context.Context, tx *sql.Tx, sessionID, actionID string) (domain.ActionRecord, error) {
	return getAction(ctx, tx, sessionID, actionID)
}

func getAction(ctx context.Context, q rowQuerier, sessionID, actionID string) (domain.ActionRecord, error) {
	return scanAction(q.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE session_id=? AND action_id=?`, sessionID, actionID))
}

func (r Repo) ListActions(ctx context.Context, sessionID string) ([]domain.ActionRecord, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE session_id=? ORDER BY created_at ASC, rowid ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.ActionRecord{}
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// CompleteActionTx marks a pending action completed. Completing twice, or
// completing an item that was already done elsewhere, is ErrConflict.
func (r Repo) CompleteActionTx(ctx context.Context, tx *sql.Tx, sessionID, actionID, actorID, comment, at string) error {
	res, err := tx.ExecContext(ctx, `UPDATE actions SET status=?, completed_at=?, completed_by=?, comment=?
WHERE session_id=? AND action_id=? AND status NOT IN (?,?)`,
		domain.ActionCompleted, at, actorID, nullable(comment), sessionID, actionID, domain.ActionCompleted, domain.ActionAlreadyCompleted)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := getAction(ctx, tx, sessionID, actionID); err != nil {
			return err
		}
		return fmt.Errorf("%w: action %s already completed", ErrConflict, actionID)
	}
	return nil
}

// ListCompletedActions returns the newest completed actions across all
// sessions, feeding the dedup snapshot.
func (r Repo) ListCompletedActions(ctx context.Context, limit int) ([]domain.CompletedAction, error) {
	if limit <= 0 {
		limit = defaultSnapshotLimit
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT dedup_key,description,affected_skus,action_id,session_id,completed_at,COALESCE(completed_by,'')
FROM actions WHERE status=? AND completed_at IS NOT NULL ORDER BY completed_at DESC, rowid DESC LIMIT ?`, domain.ActionCompleted, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CompletedAction
	for rows.Next() {
		var c domain.CompletedAction
		var skus sql.NullString
		if err := rows.Scan(&c.Key, &c.Description, &skus, &c.ActionID, &c.SessionID, &c.CompletedAt, &c.CompletedBy); err != nil {
			return nil, err
		}
		c.AffectedSKUs = splitSKUs(skus)
		res = append(res, c)
	}
	return res, rows.Err()
}
