package utils

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	codeRegex  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/\-]{0,63}$`)
	controlRe  = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
)

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

// ValidateCode validates an item or vendor code
func ValidateCode(code string) error {
	if !codeRegex.MatchString(code) {
		return fmt.Errorf("invalid code: %q", code)
	}
	return nil
}

// SanitizeString removes control characters other than tab and newlines and
// trims surrounding space
func SanitizeString(s string) string {
	return strings.TrimSpace(controlRe.ReplaceAllString(s, ""))
}
