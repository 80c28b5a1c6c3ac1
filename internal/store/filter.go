package store

import "github.com/intakedesk/apiserver/types"

// ProfileFilter narrows profile listings by equality. Zero values match all.
type ProfileFilter struct {
	Status  types.Status
	OwnerID int
}

// Match reports whether p satisfies the filter.
func (f ProfileFilter) Match(p types.Profile) bool {
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.OwnerID != 0 && p.OwnerID != f.OwnerID {
		return false
	}
	return true
}
