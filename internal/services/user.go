package services

import (
	"context"
	"errors"
	"strings"

	"github.com/intakedesk/apiserver/internal/apperrors"
	"github.com/intakedesk/apiserver/internal/policy"
	"github.com/intakedesk/apiserver/internal/store"
	"github.com/intakedesk/apiserver/internal/validation"
	"github.com/intakedesk/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	SetRole(ctx context.Context, email string, role types.Role) (types.User, error)
}

const minPasswordLength = 8

// ErrInvalidCredentials is returned by Authenticate for an unknown email
// or a wrong password alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

// UserService encapsulates user use-cases.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return s.repo.GetByEmail(ctx, strings.TrimSpace(email))
}

// Create stores a new account. A duplicate email is a ConflictError.
func (s *UserService) Create(ctx context.Context, user types.User) (types.User, error) {
	user.Email = strings.TrimSpace(user.Email)
	if user.Role == "" {
		user.Role = types.RoleUser
	}
	created, err := s.repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, apperrors.New(apperrors.KindConflict, "email already registered")
		}
		return types.User{}, err
	}
	return created, nil
}

// Register hashes password and creates a user-role account. New accounts
// never get the admin role.
func (s *UserService) Register(ctx context.Context, email, name, password string) (types.User, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if email == "" || name == "" || password == "" {
		return types.User{}, apperrors.New(apperrors.KindValidation, "email, name and password are required")
	}
	if res := validation.ValidateField(types.FieldEmail, email, ""); !res.Valid {
		return types.User{}, apperrors.Validation(types.FieldEmail, res.Reason)
	}
	if len(password) < minPasswordLength {
		return types.User{}, apperrors.Validation("password", "password must be at least 8 characters")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, err
	}
	return s.Create(ctx, types.User{
		Email:        email,
		Name:         name,
		Role:         types.RoleUser,
		PasswordHash: string(hashed),
	})
}

// Authenticate checks password against the stored hash for email.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (types.User, error) {
	user, err := s.repo.GetByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, store.ErrNotFound) {
		return types.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return types.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Caller resolves the identity a request runs as.
func (s *UserService) Caller(ctx context.Context, id int) (policy.Caller, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return policy.Caller{}, err
	}
	return policy.Caller{UserID: user.ID, Role: user.Role}, nil
}

// EnsureAdmin creates an admin account for email unless one exists. An
// existing account with that email keeps its role; role elevation is not
// done here.
func (s *UserService) EnsureAdmin(ctx context.Context, email, name, password string) (types.User, bool, error) {
	existing, err := s.repo.GetByEmail(ctx, strings.TrimSpace(email))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, false, err
	}
	if strings.TrimSpace(password) == "" {
		return types.User{}, false, apperrors.Validation("password", "password is required")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, false, err
	}
	if strings.TrimSpace(name) == "" {
		name = "Administrator"
	}
	user, err := s.Create(ctx, types.User{
		Email:        email,
		Name:         strings.TrimSpace(name),
		Role:         types.RoleAdmin,
		PasswordHash: string(hashed),
	})
	if err != nil {
		return types.User{}, false, err
	}
	return user, true, nil
}

// SetRole grants or revokes the admin role for an existing account.
func (s *UserService) SetRole(ctx context.Context, email string, role types.Role) (types.User, error) {
	if role != types.RoleAdmin && role != types.RoleUser {
		return types.User{}, apperrors.Validation("role", "role must be admin or user")
	}
	user, err := s.repo.SetRole(ctx, strings.TrimSpace(email), role)
	if errors.Is(err, store.ErrNotFound) {
		return types.User{}, apperrors.Newf(apperrors.KindNotFound, "no account for %s", email)
	}
	return user, err
}
