package auth

import (
	"regexp"
	"strings"
	"unicode/utf8"

	apperrors "github.com/fixdesk/fixdesk/internal/errors"
	"golang.org/x/net/publicsuffix"
)

// MinPasswordLength is the shortest password accepted at login, registration and change.
const MinPasswordLength = 6

const maxFullNameLen = 120

var phoneRe = regexp.MustCompile(`^\+?[0-9][0-9 \-]{5,19}$`)

// NormalizeEmail trims and lower-cases an e-mail so it can serve as a document key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateLogin performs the cheap form checks done before contacting the provider.
func ValidateLogin(c Credentials) error {
	if !strings.Contains(c.Email, "@") {
		return apperrors.ValidationField("email", "email address is invalid")
	}
	if utf8.RuneCountInString(c.Password) < MinPasswordLength {
		return apperrors.ValidationField("password", "password must be at least 6 characters")
	}
	return nil
}

// ValidateNewPassword checks a replacement password and its confirmation.
func ValidateNewPassword(password, confirm string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return apperrors.ValidationField("password", "new password must be at least 6 characters")
	}
	if password != confirm {
		return apperrors.ValidationField("confirm", "passwords do not match")
	}
	return nil
}

// Registration carries the fields collected when creating an account.
type Registration struct {
	FullName   string
	Email      string
	Password   string
	Phone      string
	Address    string
	Department string
}

// ValidateRegistration checks a new account request. The e-mail domain must end in a
// registrable public suffix so typos like "user@gmail" are caught before the provider call.
func ValidateRegistration(r Registration) error {
	name := strings.TrimSpace(r.FullName)
	if name == "" {
		return apperrors.ValidationField("fullname", "full name is required")
	}
	if utf8.RuneCountInString(name) > maxFullNameLen {
		return apperrors.ValidationField("fullname", "full name cannot exceed 120 characters")
	}
	if err := validateEmailDomain(r.Email); err != nil {
		return err
	}
	if utf8.RuneCountInString(r.Password) < MinPasswordLength {
		return apperrors.ValidationField("password", "password must be at least 6 characters")
	}
	if p := strings.TrimSpace(r.Phone); p != "" && !phoneRe.MatchString(p) {
		return apperrors.ValidationField("phone", "phone number is invalid")
	}
	return nil
}

func validateEmailDomain(email string) error {
	email = NormalizeEmail(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return apperrors.ValidationField("email", "email address is invalid")
	}
	domain := email[at+1:]
	if _, err := publicsuffix.EffectiveTLDPlusOne(domain); err != nil {
		return apperrors.ValidationField("email", "email domain is not a registrable domain")
	}
	return nil
}
