package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ProfileType distinguishes personal from business profiles. It is fixed
// at creation and decides which general info fields and documents apply.
type ProfileType string

const (
	ProfileTypePersonal ProfileType = "personal"
	ProfileTypeBusiness ProfileType = "business"
)

// Valid reports whether t is a known profile type.
func (t ProfileType) Valid() bool {
	return t == ProfileTypePersonal || t == ProfileTypeBusiness
}

// Status is the review state of a profile.
type Status string

// Supported status values.
const (
	// StatusDraft is the initial state; the owner may still edit.
	StatusDraft Status = "draft"

	// StatusPending indicates the owner submitted the profile for review.
	StatusPending Status = "pending"

	// StatusVerified indicates an admin approved the profile.
	StatusVerified Status = "verified"

	// StatusRejected indicates an admin rejected the profile.
	StatusRejected Status = "rejected"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusDraft, StatusPending, StatusVerified, StatusRejected}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusVerified, StatusRejected:
		return true
	default:
		return false
	}
}

// Decision is the outcome an admin chooses when reviewing a profile.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Field identifiers used in general info.
const (
	FieldName         = "name"
	FieldBusinessName = "businessName"
	FieldAddress      = "address"
	FieldPhone        = "phone"
	FieldEmail        = "email"
	FieldEIN          = "ein"
)

// Profile is a user's intake record progressing through a review lifecycle.
type Profile struct {
	// ID is the unique identifier of the profile.
	ID int `json:"id" db:"id"`

	// OwnerID identifies the user who owns the profile.
	OwnerID int `json:"owner_id" db:"user_id"`

	// Type is fixed at creation and never changes.
	Type ProfileType `json:"type" db:"type"`

	// Status is the current review state.
	Status Status `json:"status" db:"status"`

	// Info holds the answers to the type-specific questions.
	Info GeneralInfo `json:"-" db:"general_info"`

	// Verified is set once the owner confirmed a complete set of answers,
	// and by an admin approval. It is distinct from Status.
	Verified bool `json:"verified" db:"verified"`

	// VerifiedAt and VerifiedBy stamp the most recent approval.
	VerifiedAt *time.Time `json:"verified_at,omitempty" db:"verified_at"`
	VerifiedBy *int       `json:"verified_by,omitempty" db:"verified_by"`

	// Documents are the committed attachments, newest upload first.
	Documents []Document `json:"documents" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// MarshalJSON renders Info through its generic field map.
func (p Profile) MarshalJSON() ([]byte, error) {
	type alias Profile
	info := map[string]string{}
	if p.Info != nil {
		info = p.Info.Fields()
	}
	docs := p.Documents
	if docs == nil {
		docs = []Document{}
	}
	return json.Marshal(struct {
		alias
		GeneralInfo map[string]string `json:"general_info"`
		Documents   []Document        `json:"documents"`
		Progress    int               `json:"progress"`
	}{
		alias:       alias(p),
		GeneralInfo: info,
		Documents:   docs,
		Progress:    p.Progress(),
	})
}

// Progress is the percentage of the type's questions that have a
// non-empty answer.
func (p Profile) Progress() int {
	if p.Info == nil {
		return 0
	}
	total := len(p.Info.FieldIDs())
	if total == 0 {
		return 0
	}
	return len(p.Info.Fields()) * 100 / total
}

// GeneralInfo is the type-specific set of answers on a profile. The
// concrete variants are *PersonalInfo and *BusinessInfo; the methods give
// display code a generic view over whichever variant is present.
type GeneralInfo interface {
	// ProfileType reports which variant this is.
	ProfileType() ProfileType

	// FieldIDs lists the field ids defined for the variant, in question order.
	FieldIDs() []string

	// Get returns the stored value of a field and whether the field exists.
	Get(field string) (string, bool)

	// Set stores a value. Unknown field ids are rejected.
	Set(field, value string) error

	// Fields returns the non-empty fields as a map.
	Fields() map[string]string

	// Clone returns an independent copy.
	Clone() GeneralInfo
}

// PersonalInfo holds the answers for a personal profile.
type PersonalInfo struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
}

// BusinessInfo holds the answers for a business profile.
type BusinessInfo struct {
	BusinessName string `json:"businessName"`
	Address      string `json:"address"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	EIN          string `json:"ein"`
}

var (
	personalFieldIDs = []string{FieldName, FieldAddress, FieldPhone, FieldEmail}
	businessFieldIDs = []string{FieldBusinessName, FieldAddress, FieldPhone, FieldEmail, FieldEIN}
)

// UnknownFieldError is returned by GeneralInfo.Set for ids outside the variant.
type UnknownFieldError struct {
	Field string
	Type  ProfileType
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("field %q is not defined for %s profiles", e.Field, e.Type)
}

// NewGeneralInfo returns an empty variant for t, or nil for an unknown type.
func NewGeneralInfo(t ProfileType) GeneralInfo {
	switch t {
	case ProfileTypePersonal:
		return &PersonalInfo{}
	case ProfileTypeBusiness:
		return &BusinessInfo{}
	default:
		return nil
	}
}

// GeneralInfoFromMap builds a variant for t from a field map.
func GeneralInfoFromMap(t ProfileType, fields map[string]string) (GeneralInfo, error) {
	info := NewGeneralInfo(t)
	if info == nil {
		return nil, fmt.Errorf("unknown profile type %q", t)
	}
	for field, value := range fields {
		if err := info.Set(field, value); err != nil {
			return nil, err
		}
	}
	return info, nil
}

func (p *PersonalInfo) ProfileType() ProfileType { return ProfileTypePersonal }

func (p *PersonalInfo) FieldIDs() []string {
	return append([]string(nil), personalFieldIDs...)
}

func (p *PersonalInfo) ref(field string) *string {
	switch field {
	case FieldName:
		return &p.Name
	case FieldAddress:
		return &p.Address
	case FieldPhone:
		return &p.Phone
	case FieldEmail:
		return &p.Email
	default:
		return nil
	}
}

func (p *PersonalInfo) Get(field string) (string, bool) {
	ref := p.ref(field)
	if ref == nil {
		return "", false
	}
	return *ref, true
}

func (p *PersonalInfo) Set(field, value string) error {
	ref := p.ref(field)
	if ref == nil {
		return &UnknownFieldError{Field: field, Type: ProfileTypePersonal}
	}
	*ref = value
	return nil
}

func (p *PersonalInfo) Fields() map[string]string {
	return collectFields(p)
}

func (p *PersonalInfo) Clone() GeneralInfo {
	c := *p
	return &c
}

func (b *BusinessInfo) ProfileType() ProfileType { return ProfileTypeBusiness }

func (b *BusinessInfo) FieldIDs() []string {
	return append([]string(nil), businessFieldIDs...)
}

func (b *BusinessInfo) ref(field string) *string {
	switch field {
	case FieldBusinessName:
		return &b.BusinessName
	case FieldAddress:
		return &b.Address
	case FieldPhone:
		return &b.Phone
	case FieldEmail:
		return &b.Email
	case FieldEIN:
		return &b.EIN
	default:
		return nil
	}
}

func (b *BusinessInfo) Get(field string) (string, bool) {
	ref := b.ref(field)
	if ref == nil {
		return "", false
	}
	return *ref, true
}

func (b *BusinessInfo) Set(field, value string) error {
	ref := b.ref(field)
	if ref == nil {
		return &UnknownFieldError{Field: field, Type: ProfileTypeBusiness}
	}
	*ref = value
	return nil
}

func (b *BusinessInfo) Fields() map[string]string {
	return collectFields(b)
}

func (b *BusinessInfo) Clone() GeneralInfo {
	c := *b
	return &c
}

func collectFields(info GeneralInfo) map[string]string {
	out := make(map[string]string)
	for _, id := range info.FieldIDs() {
		if value, _ := info.Get(id); strings.TrimSpace(value) != "" {
			out[id] = value
		}
	}
	return out
}

// DirectoryStats are the dashboard counts over all profiles.
type DirectoryStats struct {
	Total    int `json:"total"`
	Draft    int `json:"draft"`
	Pending  int `json:"pending"`
	Verified int `json:"verified"`
	Rejected int `json:"rejected"`
}

// Add counts n profiles in status s.
func (s *DirectoryStats) Add(status Status, n int) {
	s.Total += n
	switch status {
	case StatusDraft:
		s.Draft += n
	case StatusPending:
		s.Pending += n
	case StatusVerified:
		s.Verified += n
	case StatusRejected:
		s.Rejected += n
	}
}
