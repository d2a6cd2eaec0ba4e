package utils

import (
	"regexp"
	"strings"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail checks if an email address is valid.
func ValidateEmail(email string) bool {
	if strings.TrimSpace(email) == "" {
		return false
	}
	return emailRegex.MatchString(email)
}

// ValidateMobile expects exactly 10 digits.
func ValidateMobile(mobile string) bool {
	return len(mobile) == 10 && IsDigits(mobile)
}

// ValidateNationalID expects exactly 12 digits.
func ValidateNationalID(id string) bool {
	return len(id) == 12 && IsDigits(id)
}

func ValidatePassword(password string) bool {
	return len(password) >= 6
}

func ValidatePin(pin string) bool {
	return len(pin) == 4 && IsDigits(pin)
}
