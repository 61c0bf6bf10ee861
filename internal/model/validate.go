package model

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// FieldErrors maps a form field name to its message. It is returned as an
// error before anything reaches the network.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	if len(fe) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, fe[k])
	}
	return strings.Join(msgs, "; ")
}

// errOrNil keeps a nil FieldErrors from becoming a non-nil error interface.
func (fe FieldErrors) errOrNil() error {
	if len(fe) == 0 {
		return nil
	}
	return fe
}

var (
	looseEmailPattern  = regexp.MustCompile(`\S+@\S+\.\S+`)
	strictEmailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	contactNamePattern = regexp.MustCompile(`^[a-zA-Z\s'-]+$`)
)

// ShippingDetails is the checkout form.
type ShippingDetails struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
	ZipCode   string `json:"zipCode"`
	Country   string `json:"country,omitempty"`
}

// Validate checks required fields, email shape, and that the phone number
// carries at least ten digits once punctuation is stripped.
func (s ShippingDetails) Validate() error {
	errs := FieldErrors{}

	required := []struct {
		name  string
		value string
	}{
		{"firstName", s.FirstName},
		{"lastName", s.LastName},
		{"email", s.Email},
		{"phone", s.Phone},
		{"address", s.Address},
		{"city", s.City},
		{"state", s.State},
		{"zipCode", s.ZipCode},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			errs[f.name] = strings.ToUpper(f.name[:1]) + f.name[1:] + " is required"
		}
	}

	if s.Email != "" && !looseEmailPattern.MatchString(s.Email) {
		errs["email"] = "Please enter a valid email address"
	}
	if s.Phone != "" && countDigits(s.Phone) < 10 {
		errs["phone"] = "Please enter a valid phone number"
	}

	return errs.errOrNil()
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

// ContactForm is the public contact form.
type ContactForm struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// Validate applies per-field length and format rules.
func (c ContactForm) Validate() error {
	errs := FieldErrors{}

	name := strings.TrimSpace(c.Name)
	switch {
	case name == "":
		errs["name"] = "Name is required"
	case len(name) < 2:
		errs["name"] = "Name must be at least 2 characters"
	case len(name) > 50:
		errs["name"] = "Name must be at most 50 characters"
	case !contactNamePattern.MatchString(name):
		errs["name"] = "Name may only contain letters, spaces, apostrophes and hyphens"
	}

	email := strings.TrimSpace(c.Email)
	switch {
	case email == "":
		errs["email"] = "Email is required"
	case !strictEmailPattern.MatchString(email):
		errs["email"] = "Please enter a valid email address"
	case len(c.Email) > 100:
		errs["email"] = "Email must be at most 100 characters"
	}

	checkLength(errs, "subject", "Subject", c.Subject, 5, 100)
	checkLength(errs, "message", "Message", c.Message, 10, 1000)

	return errs.errOrNil()
}

func checkLength(errs FieldErrors, field, label, value string, minLen, maxLen int) {
	v := strings.TrimSpace(value)
	switch {
	case v == "":
		errs[field] = label + " is required"
	case len(v) < minLen:
		errs[field] = label + " is too short"
	case len(v) > maxLen:
		errs[field] = label + " is too long"
	}
}

// PasswordChange is shared by signup and reset flows, which both confirm the
// password locally before calling the backend.
type PasswordChange struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Validate rejects empty or mismatched passwords.
func (p PasswordChange) Validate() error {
	errs := FieldErrors{}
	if p.Password == "" {
		errs["password"] = "Password is required"
	}
	if p.Password != p.ConfirmPassword {
		errs["confirmPassword"] = "Passwords do not match"
	}
	return errs.errOrNil()
}
