package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/intakedesk/apiserver/types"
)

// AdminActionRepository is the append-only audit log of admin decisions.
// It exposes no update or delete.
type AdminActionRepository struct {
	db *sql.DB
}

func NewAdminActionRepository(db *sql.DB) *AdminActionRepository {
	return &AdminActionRepository{db: db}
}

func (r *AdminActionRepository) InsertAuditLog(ctx context.Context, action types.AdminAction) (types.AdminAction, error) {
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now()
	}

	const query = `
		INSERT INTO admin_actions (admin_id, profile_id, action, from_status, to_status, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		action.AdminID,
		action.ProfileID,
		action.Action,
		action.FromStatus,
		action.ToStatus,
		action.Notes,
		action.CreatedAt,
	).Scan(&action.ID); err != nil {
		return types.AdminAction{}, err
	}
	return action, nil
}

// ListByProfile returns the actions recorded for a profile, oldest first.
func (r *AdminActionRepository) ListByProfile(ctx context.Context, profileID int) ([]types.AdminAction, error) {
	const query = `
		SELECT id, admin_id, profile_id, action, from_status, to_status, notes, created_at
		FROM admin_actions
		WHERE profile_id = $1
		ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	actions := make([]types.AdminAction, 0)
	for rows.Next() {
		var action types.AdminAction
		if err := rows.Scan(
			&action.ID,
			&action.AdminID,
			&action.ProfileID,
			&action.Action,
			&action.FromStatus,
			&action.ToStatus,
			&action.Notes,
			&action.CreatedAt,
		); err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	return actions, rows.Err()
}
