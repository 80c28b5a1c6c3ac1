// Package policy decides which caller may read or change a profile.
package policy

import (
	"github.com/intakedesk/apiserver/internal/apperrors"
	"github.com/intakedesk/apiserver/types"
)

// Caller is the identity the request runs as, as supplied by the identity
// provider. It is trusted verbatim.
type Caller struct {
	UserID int
	Role   types.Role
}

// IsAdmin reports whether the caller holds the admin role.
func (c Caller) IsAdmin() bool {
	return c.Role == types.RoleAdmin
}

func (c Caller) owns(p types.Profile) bool {
	return c.UserID != 0 && c.UserID == p.OwnerID
}

// CanRead allows the owner and any admin.
func CanRead(c Caller, p types.Profile) bool {
	return c.owns(p) || c.IsAdmin()
}

// CanMutateGeneralInfo allows the owner while the profile is a draft.
// Once submitted, only an admin reopen unlocks further edits.
func CanMutateGeneralInfo(c Caller, p types.Profile) bool {
	return c.owns(p) && p.Status == types.StatusDraft
}

// CanMutateDocuments follows the general info rule.
func CanMutateDocuments(c Caller, p types.Profile) bool {
	return CanMutateGeneralInfo(c, p)
}

// CanDelete allows the owner of a draft, or an admin.
func CanDelete(c Caller, p types.Profile) bool {
	return CanMutateGeneralInfo(c, p) || c.IsAdmin()
}

// CanTransition reports whether c may move p to target. The owner may only
// submit a draft; an admin may move a submitted, verified or rejected
// profile to any status.
func CanTransition(c Caller, p types.Profile, target types.Status) bool {
	if c.owns(p) && p.Status == types.StatusDraft && target == types.StatusPending {
		return true
	}
	if !c.IsAdmin() {
		return false
	}
	switch p.Status {
	case types.StatusPending, types.StatusVerified, types.StatusRejected:
		return target.Valid()
	default:
		return false
	}
}

// AuthorizeRead returns a ForbiddenError unless CanRead.
func AuthorizeRead(c Caller, p types.Profile) error {
	if !CanRead(c, p) {
		return apperrors.Forbidden("you do not have access to this profile")
	}
	return nil
}

// AuthorizeMutateGeneralInfo returns a ForbiddenError unless CanMutateGeneralInfo.
func AuthorizeMutateGeneralInfo(c Caller, p types.Profile) error {
	if !CanMutateGeneralInfo(c, p) {
		return apperrors.Forbidden("profile can only be edited by its owner while in draft")
	}
	return nil
}

// AuthorizeMutateDocuments returns a ForbiddenError unless CanMutateDocuments.
func AuthorizeMutateDocuments(c Caller, p types.Profile) error {
	if !CanMutateDocuments(c, p) {
		return apperrors.Forbidden("documents can only be changed by the owner while in draft")
	}
	return nil
}

// AuthorizeDelete returns a ForbiddenError unless CanDelete.
func AuthorizeDelete(c Caller, p types.Profile) error {
	if !CanDelete(c, p) {
		return apperrors.Forbidden("you may not delete this profile")
	}
	return nil
}

// AuthorizeTransition returns a ForbiddenError unless CanTransition.
func AuthorizeTransition(c Caller, p types.Profile, target types.Status) error {
	if !CanTransition(c, p, target) {
		return apperrors.Newf(apperrors.KindForbidden, "you may not move this profile from %s to %s", p.Status, target)
	}
	return nil
}

// AuthorizeSubmit allows only the owner to submit. Whether the profile is
// in a state that can be submitted is the lifecycle's call.
func AuthorizeSubmit(c Caller, p types.Profile) error {
	if !c.owns(p) {
		return apperrors.Forbidden("only the owner may submit this profile")
	}
	return nil
}

// AuthorizeAdmin returns a ForbiddenError unless c is an admin.
func AuthorizeAdmin(c Caller) error {
	if !c.IsAdmin() {
		return apperrors.Forbidden("admin role required")
	}
	return nil
}
