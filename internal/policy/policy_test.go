package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/intakedesk/apiserver/internal/apperrors"
	"github.com/intakedesk/apiserver/types"
)

var (
	owner    = Caller{UserID: 1, Role: types.RoleUser}
	stranger = Caller{UserID: 2, Role: types.RoleUser}
	admin    = Caller{UserID: 3, Role: types.RoleAdmin}
	nobody   = Caller{}
)

func profileIn(status types.Status) types.Profile {
	return types.Profile{ID: 10, OwnerID: 1, Type: types.ProfileTypePersonal, Status: status}
}

func TestCanRead(t *testing.T) {
	for _, status := range types.Statuses {
		p := profileIn(status)
		assert.True(t, CanRead(owner, p))
		assert.True(t, CanRead(admin, p))
		assert.False(t, CanRead(stranger, p))
		assert.False(t, CanRead(nobody, types.Profile{}))
	}
}

func TestCanMutate(t *testing.T) {
	draft := profileIn(types.StatusDraft)
	assert.True(t, CanMutateGeneralInfo(owner, draft))
	assert.True(t, CanMutateDocuments(owner, draft))
	assert.False(t, CanMutateGeneralInfo(admin, draft))
	assert.False(t, CanMutateGeneralInfo(stranger, draft))

	for _, status := range []types.Status{types.StatusPending, types.StatusVerified, types.StatusRejected} {
		p := profileIn(status)
		assert.False(t, CanMutateGeneralInfo(owner, p), status)
		assert.False(t, CanMutateDocuments(owner, p), status)
	}
}

func TestCanDelete(t *testing.T) {
	assert.True(t, CanDelete(owner, profileIn(types.StatusDraft)))
	assert.False(t, CanDelete(owner, profileIn(types.StatusPending)))
	assert.True(t, CanDelete(admin, profileIn(types.StatusVerified)))
	assert.False(t, CanDelete(stranger, profileIn(types.StatusDraft)))
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name   string
		caller Caller
		from   types.Status
		to     types.Status
		want   bool
	}{
		{"owner submits draft", owner, types.StatusDraft, types.StatusPending, true},
		{"owner approves own", owner, types.StatusPending, types.StatusVerified, false},
		{"stranger submits", stranger, types.StatusDraft, types.StatusPending, false},
		{"admin approves pending", admin, types.StatusPending, types.StatusVerified, true},
		{"admin rejects verified", admin, types.StatusVerified, types.StatusRejected, true},
		{"admin reopens rejected", admin, types.StatusRejected, types.StatusDraft, true},
		{"admin touches draft", admin, types.StatusDraft, types.StatusVerified, false},
		{"admin bogus target", admin, types.StatusPending, types.Status("archived"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.caller, profileIn(tt.from), tt.to))
		})
	}
}

func TestAuthorizeReturnsForbidden(t *testing.T) {
	pending := profileIn(types.StatusPending)

	assert.NoError(t, AuthorizeRead(owner, pending))
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(AuthorizeRead(stranger, pending)))
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(AuthorizeMutateGeneralInfo(owner, pending)))
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(AuthorizeMutateDocuments(owner, pending)))
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(AuthorizeDelete(stranger, pending)))
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(AuthorizeTransition(admin, profileIn(types.StatusDraft), types.StatusVerified)))
	assert.NoError(t, AuthorizeTransition(admin, pending, types.StatusVerified))
}

func TestAuthorizeSubmitAndAdmin(t *testing.T) {
	assert.NoError(t, AuthorizeSubmit(owner, profileIn(types.StatusPending)))
	assert.True(t, apperrors.Is(AuthorizeSubmit(admin, profileIn(types.StatusDraft)), apperrors.KindForbidden))

	assert.NoError(t, AuthorizeAdmin(admin))
	assert.True(t, apperrors.Is(AuthorizeAdmin(owner), apperrors.KindForbidden))
}
