// Package lifecycle holds the profile state machine: which fields a
// profile type requires, when a profile may be verified and submitted, and
// how admin decisions and overrides move it between statuses.
//
// Every function either applies the whole step to the profile or returns
// an error before mutating anything.
package lifecycle

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/intakedesk/apiserver/internal/apperrors"
	"github.com/intakedesk/apiserver/internal/documents"
	"github.com/intakedesk/apiserver/types"
)

// RequiredFields returns the field ids that must be answered for t.
func RequiredFields(t types.ProfileType) []string {
	info := types.NewGeneralInfo(t)
	if info == nil {
		return nil
	}
	return info.FieldIDs()
}

// New returns a draft profile of type t owned by ownerID.
func New(ownerID int, t types.ProfileType, now time.Time) (types.Profile, error) {
	if !t.Valid() {
		return types.Profile{}, apperrors.Validation("type", "type must be personal or business")
	}
	return types.Profile{
		OwnerID:   ownerID,
		Type:      t,
		Status:    types.StatusDraft,
		Info:      types.NewGeneralInfo(t),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// MissingFields lists the required fields of p without a non-empty
// trimmed value, in question order.
func MissingFields(p types.Profile) []string {
	var missing []string
	for _, field := range RequiredFields(p.Type) {
		var value string
		if p.Info != nil {
			value, _ = p.Info.Get(field)
		}
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

// UpdateGeneralInfo merges fields into p's general info. Values are stored
// as given; field validation is advisory until AttemptVerify. A field id
// not defined for the profile type rejects the whole update.
func UpdateGeneralInfo(p *types.Profile, fields map[string]string, now time.Time) error {
	info := p.Info
	if info == nil {
		info = types.NewGeneralInfo(p.Type)
	} else {
		info = info.Clone()
	}

	keys := make([]string, 0, len(fields))
	for field := range fields {
		keys = append(keys, field)
	}
	sort.Strings(keys)

	for _, field := range keys {
		if err := info.Set(field, fields[field]); err != nil {
			var unknown *types.UnknownFieldError
			if errors.As(err, &unknown) {
				return apperrors.Validation(field, unknown.Error())
			}
			return err
		}
	}

	p.Info = info
	p.UpdatedAt = now
	return nil
}

// AttemptVerify fails with a MissingFieldsError when any required field
// is empty. It never mutates p.
func AttemptVerify(p types.Profile) error {
	if missing := MissingFields(p); len(missing) > 0 {
		return apperrors.MissingFields(missing)
	}
	return nil
}

// MarkVerified runs AttemptVerify and sets the verified flag. The status
// is untouched; the owner still has to submit.
func MarkVerified(p *types.Profile, now time.Time) error {
	if err := AttemptVerify(*p); err != nil {
		return err
	}
	p.Verified = true
	p.UpdatedAt = now
	return nil
}

// Submit moves a verified draft to pending.
func Submit(p *types.Profile, now time.Time) error {
	if !p.Verified {
		return apperrors.NotVerified()
	}
	if p.Status != types.StatusDraft {
		return apperrors.InvalidTransition(string(p.Status), string(types.StatusPending))
	}
	p.Status = types.StatusPending
	p.UpdatedAt = now
	return nil
}

// DecisionTarget returns the status an admin decision moves a profile to.
func DecisionTarget(decision types.Decision) (types.Status, error) {
	switch decision {
	case types.DecisionApprove:
		return types.StatusVerified, nil
	case types.DecisionReject:
		return types.StatusRejected, nil
	default:
		return "", apperrors.Validation("decision", "decision must be approve or reject")
	}
}

// Decide applies an admin approval or rejection and returns the audit
// record to append. Deciding a profile already in the target status is an
// InvalidTransitionError. Approval also requires every required document
// category to be present.
func Decide(p *types.Profile, decision types.Decision, adminID int, notes string, now time.Time) (types.AdminAction, error) {
	target, err := DecisionTarget(decision)
	if err != nil {
		return types.AdminAction{}, err
	}
	if p.Status == target {
		return types.AdminAction{}, apperrors.InvalidTransition(string(p.Status), string(target))
	}
	if decision == types.DecisionApprove {
		if missing := documents.MissingCategories(p.Type, p.Documents); len(missing) > 0 {
			return types.AdminAction{}, apperrors.IncompleteDocuments(missing)
		}
	}

	action := types.AdminAction{
		AdminID:    adminID,
		ProfileID:  p.ID,
		FromStatus: p.Status,
		ToStatus:   target,
		Notes:      notes,
		CreatedAt:  now,
	}

	p.Status = target
	p.Verified = decision == types.DecisionApprove
	if decision == types.DecisionApprove {
		stamp := now
		by := adminID
		p.VerifiedAt = &stamp
		p.VerifiedBy = &by
		action.Action = types.ActionApproved
	} else {
		action.Action = types.ActionRejected
	}
	p.UpdatedAt = now
	return action, nil
}

// ValidateReopenTarget accepts only pending and draft.
func ValidateReopenTarget(target types.Status) error {
	if target != types.StatusPending && target != types.StatusDraft {
		return apperrors.Validation("status", "reopen target must be pending or draft")
	}
	return nil
}

// Reopen is the admin override that moves a profile back to pending or
// draft for correction. Reopening to draft clears the verified flag so
// the owner has to confirm the answers again before resubmitting.
func Reopen(p *types.Profile, target types.Status, adminID int, notes string, now time.Time) (types.AdminAction, error) {
	if err := ValidateReopenTarget(target); err != nil {
		return types.AdminAction{}, err
	}
	if p.Status == target {
		return types.AdminAction{}, apperrors.InvalidTransition(string(p.Status), string(target))
	}

	action := types.AdminAction{
		AdminID:    adminID,
		ProfileID:  p.ID,
		Action:     types.ActionReopened,
		FromStatus: p.Status,
		ToStatus:   target,
		Notes:      notes,
		CreatedAt:  now,
	}

	p.Status = target
	if target == types.StatusDraft {
		p.Verified = false
	}
	p.UpdatedAt = now
	return action, nil
}
