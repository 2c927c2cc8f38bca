package domain

import "strings"

// EmailAddress keeps the address as entered next to its canonical form.
type EmailAddress struct {
	Original  string `json:"original"`
	Canonical string `json:"canonical"`
}

// NewEmailAddress trims raw, then lower-cases it for the canonical value.
func NewEmailAddress(raw string) (EmailAddress, error) {
	original := strings.TrimSpace(raw)
	if original == "" || !strings.Contains(original, "@") {
		return EmailAddress{}, ErrInvalidEmail
	}
	return EmailAddress{
		Original:  original,
		Canonical: CanonicalEmail(original),
	}, nil
}

// CanonicalEmail applies the comparison rule: trim, then lower-case.
func CanonicalEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Equal compares canonical values.
func (e EmailAddress) Equal(other EmailAddress) bool {
	return e.Canonical == other.Canonical
}

// CanonicalUserID trims a user id. Ids that are email addresses take their canonical form.
func CanonicalUserID(raw string) string {
	if addr, err := NewEmailAddress(raw); err == nil {
		return addr.Canonical
	}
	return strings.TrimSpace(raw)
}

// SameUser compares two user ids, treating email addresses by their canonical form.
func SameUser(a, b string) bool {
	ea, errA := NewEmailAddress(a)
	eb, errB := NewEmailAddress(b)
	if errA == nil && errB == nil {
		return ea.Equal(eb)
	}
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}
