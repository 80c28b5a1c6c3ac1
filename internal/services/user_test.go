package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/intakedesk/apiserver/internal/apperrors"
	"github.com/intakedesk/apiserver/internal/store/memstore"
	"github.com/intakedesk/apiserver/types"
)

func TestUserServiceCreateConflict(t *testing.T) {
	ctx := context.Background()
	users := NewUserService(memstore.New().Users())

	created, err := users.Create(ctx, types.User{Email: " ann@example.com ", Name: "Ann"})
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", created.Email)
	assert.Equal(t, types.RoleUser, created.Role)

	_, err = users.Create(ctx, types.User{Email: "ANN@example.com", Name: "Ann"})
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))

	caller, err := users.Caller(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, caller.UserID)
	assert.False(t, caller.IsAdmin())
}

func TestUserServiceRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	users := NewUserService(memstore.New().Users())

	user, err := users.Register(ctx, " kim@example.com ", " Kim ", "long-password")
	require.NoError(t, err)
	assert.Equal(t, "kim@example.com", user.Email)
	assert.Equal(t, "Kim", user.Name)
	assert.Equal(t, types.RoleUser, user.Role)

	for _, tc := range []struct{ email, name, password string }{
		{"", "Kim", "long-password"},
		{"kim-at-example", "Kim", "long-password"},
		{"kim2@example.com", "Kim", "short"},
	} {
		_, err := users.Register(ctx, tc.email, tc.name, tc.password)
		assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err), tc.email)
	}

	got, err := users.Authenticate(ctx, "kim@example.com", "long-password")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = users.Authenticate(ctx, "kim@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = users.Authenticate(ctx, "nobody@example.com", "long-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUserServiceEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	users := NewUserService(memstore.New().Users())

	admin, created, err := users.EnsureAdmin(ctx, "root@example.com", "", "s3cret-pass")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, types.RoleAdmin, admin.Role)
	assert.Equal(t, "Administrator", admin.Name)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte("s3cret-pass")))

	again, created, err := users.EnsureAdmin(ctx, "root@example.com", "Other", "different")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, admin.ID, again.ID)

	_, _, err = users.EnsureAdmin(ctx, "second@example.com", "Second", " ")
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestUserServiceSetRole(t *testing.T) {
	ctx := context.Background()
	users := NewUserService(memstore.New().Users())

	created, err := users.Create(ctx, types.User{Email: "lee@example.com", Name: "Lee"})
	require.NoError(t, err)

	promoted, err := users.SetRole(ctx, " LEE@example.com", types.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, created.ID, promoted.ID)
	assert.True(t, promoted.IsAdmin())

	caller, err := users.Caller(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, caller.IsAdmin())

	_, err = users.SetRole(ctx, "lee@example.com", types.Role("owner"))
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	_, err = users.SetRole(ctx, "ghost@example.com", types.RoleUser)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestParseStatusFilter(t *testing.T) {
	for raw, want := range map[string]types.Status{
		"":         "",
		"all":      "",
		" ALL ":    "",
		"pending":  types.StatusPending,
		"Verified": types.StatusVerified,
		"rejected": types.StatusRejected,
	} {
		got, err := ParseStatusFilter(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseStatusFilter("archived")
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}
