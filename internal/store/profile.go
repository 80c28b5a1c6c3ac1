package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/intakedesk/apiserver/types"
)

const profileColumns = `id, user_id, type, status, general_info, verified, verified_at, verified_by, created_at, updated_at`

// ProfileRepository handles persistence for profiles.
type ProfileRepository struct {
	db   *sql.DB
	docs *DocumentRepository
}

func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db, docs: NewDocumentRepository(db)}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (types.Profile, error) {
	var profile types.Profile
	var infoJSON []byte
	var verifiedAt sql.NullTime
	var verifiedBy sql.NullInt64
	if err := row.Scan(
		&profile.ID,
		&profile.OwnerID,
		&profile.Type,
		&profile.Status,
		&infoJSON,
		&profile.Verified,
		&verifiedAt,
		&verifiedBy,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	); err != nil {
		return types.Profile{}, err
	}

	fields := map[string]string{}
	if len(infoJSON) > 0 {
		if err := json.Unmarshal(infoJSON, &fields); err != nil {
			return types.Profile{}, fmt.Errorf("decode general info for profile %d: %w", profile.ID, err)
		}
	}
	info, err := types.GeneralInfoFromMap(profile.Type, fields)
	if err != nil {
		return types.Profile{}, fmt.Errorf("profile %d: %w", profile.ID, err)
	}
	profile.Info = info

	if verifiedAt.Valid {
		t := verifiedAt.Time
		profile.VerifiedAt = &t
	}
	if verifiedBy.Valid {
		by := int(verifiedBy.Int64)
		profile.VerifiedBy = &by
	}
	return profile, nil
}

func encodeInfo(profile types.Profile) ([]byte, error) {
	fields := map[string]string{}
	if profile.Info != nil {
		fields = profile.Info.Fields()
	}
	return json.Marshal(fields)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func (r *ProfileRepository) Get(ctx context.Context, id int) (types.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	profile, err := scanProfile(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Profile{}, ErrNotFound
		}
		return types.Profile{}, err
	}

	docs, err := r.docs.ListByProfile(ctx, profile.ID)
	if err != nil {
		return types.Profile{}, err
	}
	profile.Documents = docs
	return profile, nil
}

// List returns profiles matching filter, newest first, with their documents.
func (r *ProfileRepository) List(ctx context.Context, filter ProfileFilter) ([]types.Profile, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.OwnerID != 0 {
		args = append(args, filter.OwnerID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}

	query := `SELECT ` + profileColumns + ` FROM profiles`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := make([]types.Profile, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
		ids = append(ids, int64(profile.ID))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return profiles, nil
	}

	byProfile, err := r.docs.listByProfiles(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range profiles {
		profiles[i].Documents = byProfile[profiles[i].ID]
	}
	return profiles, nil
}

// CountByStatus groups all profiles by status.
func (r *ProfileRepository) CountByStatus(ctx context.Context) (map[types.Status]int, error) {
	const query = `SELECT status, COUNT(1) FROM profiles GROUP BY status`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[types.Status]int)
	for rows.Next() {
		var status types.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *ProfileRepository) Create(ctx context.Context, profile types.Profile) (types.Profile, error) {
	now := time.Now()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = profile.CreatedAt

	infoJSON, err := encodeInfo(profile)
	if err != nil {
		return types.Profile{}, err
	}

	const query = `
		INSERT INTO profiles (user_id, type, status, general_info, verified, verified_at, verified_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		profile.OwnerID,
		profile.Type,
		profile.Status,
		infoJSON,
		profile.Verified,
		nullableTime(profile.VerifiedAt),
		nullableInt(profile.VerifiedBy),
		profile.CreatedAt,
		profile.UpdatedAt,
	).Scan(&profile.ID); err != nil {
		return types.Profile{}, err
	}
	return profile, nil
}

// Update writes the mutable columns. Type and owner never change.
func (r *ProfileRepository) Update(ctx context.Context, profile types.Profile) (types.Profile, error) {
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = time.Now()
	}

	infoJSON, err := encodeInfo(profile)
	if err != nil {
		return types.Profile{}, err
	}

	const query = `
		UPDATE profiles
		SET status = $1,
			general_info = $2,
			verified = $3,
			verified_at = $4,
			verified_by = $5,
			updated_at = $6
		WHERE id = $7`
	result, err := r.db.ExecContext(
		ctx,
		query,
		profile.Status,
		infoJSON,
		profile.Verified,
		nullableTime(profile.VerifiedAt),
		nullableInt(profile.VerifiedBy),
		profile.UpdatedAt,
		profile.ID,
	)
	if err != nil {
		return types.Profile{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Profile{}, err
	}
	if affected == 0 {
		return types.Profile{}, ErrNotFound
	}
	return profile, nil
}

// Delete removes the profile; document rows cascade in the schema.
func (r *ProfileRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM profiles WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
