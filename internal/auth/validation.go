package auth

import (
	"errors"
	"regexp"
	"unicode"
)

const (
	MinPasswordLength = 8
	// MaxPasswordBytes is bcrypt's input limit.
	MaxPasswordBytes = 72
)

var (
	ErrInvalidEmail        = errors.New("value is not a valid email address")
	ErrPasswordTooShort    = errors.New("password must be at least 8 characters")
	ErrPasswordTooLong     = errors.New("password must be at most 72 bytes")
	ErrPasswordNoUppercase = errors.New("password must contain at least one uppercase letter")
	ErrPasswordNoDigit     = errors.New("password must contain at least one number")
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail checks syntax only. The address is stored exactly as given;
// lookups are case-sensitive.
func ValidateEmail(email string) error {
	if len(email) > 255 || !emailRegex.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

// ValidatePassword enforces the password policy. Weak passwords are rejected
// before they are ever hashed or stored.
func ValidatePassword(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > MaxPasswordBytes {
		return ErrPasswordTooLong
	}

	var hasUpper, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	if !hasUpper {
		return ErrPasswordNoUppercase
	}
	if !hasDigit {
		return ErrPasswordNoDigit
	}
	return nil
}

// ValidateCredentials validates a registration request and returns the
// failures keyed by field name, or nil.
func ValidateCredentials(email, password string) map[string]any {
	details := map[string]any{}
	if err := ValidateEmail(email); err != nil {
		details["email"] = err.Error()
	}
	if err := ValidatePassword(password); err != nil {
		details["password"] = err.Error()
	}
	if len(details) == 0 {
		return nil
	}
	return details
}
