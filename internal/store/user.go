package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/intakedesk/apiserver/types"
)

const userColumns = `id, email, name, role, password_hash, created_at, updated_at`

// UserRepository handles persistence for accounts. Emails are unique
// without regard to case.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row rowScanner) (types.User, error) {
	var u types.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return types.User{}, ErrNotFound
	}
	return u, err
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

// Create inserts user and returns it with its id and timestamps. A taken
// email is ErrConflict.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now().UTC()
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (email, name, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id`,
		user.Email, user.Name, user.Role, user.PasswordHash, now,
	).Scan(&user.ID)
	if isUniqueViolation(err) {
		return types.User{}, ErrConflict
	}
	if err != nil {
		return types.User{}, err
	}
	user.CreatedAt, user.UpdatedAt = now, now
	return user, nil
}

// SetRole changes the role of the account with email.
func (r *UserRepository) SetRole(ctx context.Context, email string, role types.Role) (types.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `
		UPDATE users SET role = $2, updated_at = $3
		WHERE lower(email) = lower($1)
		RETURNING `+userColumns,
		email, role, time.Now().UTC()))
}
