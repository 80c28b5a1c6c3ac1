package documents

import (
	"slices"
	"strings"
	"unicode"

	"github.com/intakedesk/apiserver/types"
)

// Category is a required document kind. A document fulfils it when its
// label contains Label or one of Aliases as whole words, or equals one of
// Tags. Case, punctuation and apostrophes are ignored.
type Category struct {
	Label   string
	Aliases []string
	Tags    []string
}

var (
	// Personal profiles may prove identity with an EIN or ITIN instead.
	categorySSN = Category{
		Label:   "SSN",
		Aliases: []string{"ein", "itin"},
		Tags:    []string{"social security", "social security card", "social security number", "tax id"},
	}
	categoryEIN = Category{
		Label: "EIN",
		Tags:  []string{"employer identification number", "tax id", "tin", "fein"},
	}
	categoryDriversLicense = Category{
		Label: "Driver's License",
		Tags:  []string{"drivers license", "driver license", "driving licence", "dl", "state id"},
	}
	categoryBusinessLicense = Category{
		Label: "Business License",
		Tags:  []string{"business licence", "business permit", "certificate of incorporation"},
	}
)

// RequiredCategories returns the document kinds t must provide before
// approval.
func RequiredCategories(t types.ProfileType) []Category {
	switch t {
	case types.ProfileTypePersonal:
		return []Category{categorySSN, categoryDriversLicense}
	case types.ProfileTypeBusiness:
		return []Category{categoryEIN, categoryDriversLicense, categoryBusinessLicense}
	default:
		return nil
	}
}

// Matches reports whether a document label fulfils c.
func (c Category) Matches(label string) bool {
	words := tokenize(label)
	if len(words) == 0 {
		return false
	}
	if containsPhrase(words, tokenize(c.Label)) {
		return true
	}
	for _, alias := range c.Aliases {
		if containsPhrase(words, tokenize(alias)) {
			return true
		}
	}
	for _, tag := range c.Tags {
		if slices.Equal(words, tokenize(tag)) {
			return true
		}
	}
	return false
}

// MissingCategories lists the labels of required categories that none of
// docs fulfils, in requirement order.
func MissingCategories(t types.ProfileType, docs []types.Document) []string {
	var missing []string
	for _, category := range RequiredCategories(t) {
		fulfilled := false
		for _, doc := range docs {
			if category.Matches(doc.Label()) {
				fulfilled = true
				break
			}
		}
		if !fulfilled {
			missing = append(missing, category.Label)
		}
	}
	return missing
}

// tokenize lowercases s, drops apostrophes and splits it into words of
// letters and digits.
func tokenize(s string) []string {
	s = strings.NewReplacer("'", "", "’", "").Replace(strings.ToLower(s))
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// containsPhrase reports whether phrase occurs in words as a contiguous run.
func containsPhrase(words, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(words) {
		return false
	}
	for i := 0; i+len(phrase) <= len(words); i++ {
		if slices.Equal(words[i:i+len(phrase)], phrase) {
			return true
		}
	}
	return false
}
