package types

import "time"

// Document is a file attached to a profile as supporting evidence.
type Document struct {
	// ID is the unique identifier of the document.
	ID int `json:"id" db:"id"`

	// ProfileID identifies the profile that owns this document.
	ProfileID int `json:"profile_id" db:"profile_id"`

	// Category is the declared document type (e.g. "Driver's License").
	// Users may enter free-form labels here.
	Category string `json:"category" db:"category"`

	// Name is the original file name supplied at upload.
	Name string `json:"name" db:"name"`

	// ContentType is the MIME type reported or detected at upload.
	ContentType string `json:"content_type" db:"content_type"`

	// Size is the file size in bytes.
	Size int64 `json:"size" db:"size"`

	// Locator is the opaque blob storage reference for the file contents.
	Locator string `json:"locator" db:"locator"`

	// UploadedAt is the timestamp at which the document was committed.
	UploadedAt time.Time `json:"uploaded_at" db:"uploaded_at"`
}

// Label returns the text used to match the document against required
// categories: the declared category, or the file name when none was given.
func (d Document) Label() string {
	if d.Category != "" {
		return d.Category
	}
	return d.Name
}
