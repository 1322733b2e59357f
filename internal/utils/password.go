package utils

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// PasswordMinLength is the minimum length accepted for account passwords.
const PasswordMinLength = 12

const passwordSpecials = `!@#$%^&*(),.?":{}|<>`

// ValidatePassword enforces the account password policy: minimum length plus
// at least one uppercase letter, one lowercase letter, one digit and one
// special character.  It returns one message per unmet requirement so the
// whole list can be reported at once.
func ValidatePassword(password string) []string {
	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune(passwordSpecials, r):
			hasSpecial = true
		}
	}

	var errs []string
	if len(password) < PasswordMinLength {
		errs = append(errs, fmt.Sprintf("minimum %d characters required", PasswordMinLength))
	}
	if !hasUpper {
		errs = append(errs, "at least one uppercase letter required")
	}
	if !hasLower {
		errs = append(errs, "at least one lowercase letter required")
	}
	if !hasDigit {
		errs = append(errs, "at least one number required")
	}
	if !hasSpecial {
		errs = append(errs, "at least one special character required")
	}
	return errs
}
