package order

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	// Indian mobile numbers: ten digits starting 6-9.
	mobilePattern = regexp.MustCompile(`^[6-9][0-9]{9}$`)
)

// ValidateEmail reports whether s looks like an email address.
func ValidateEmail(s string) bool {
	s = strings.TrimSpace(s)
	return len(s) <= 254 && emailPattern.MatchString(s)
}

// ValidatePhone accepts a 10-digit Indian mobile number with an optional
// +91, 91 or 0 prefix, ignoring spaces and dashes.
func ValidatePhone(s string) bool {
	_, ok := nationalNumber(s)
	return ok
}

// NormalizePhone returns the number in E.164 form (+91XXXXXXXXXX).
func NormalizePhone(s string) (string, bool) {
	n, ok := nationalNumber(s)
	if !ok {
		return "", false
	}
	return "+91" + n, true
}

func nationalNumber(s string) (string, bool) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(s) {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return "", false
		}
	}

	digits := b.String()
	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, "91"):
		digits = digits[2:]
	case len(digits) == 11 && strings.HasPrefix(digits, "0"):
		digits = digits[1:]
	}
	if !mobilePattern.MatchString(digits) {
		return "", false
	}
	return digits, true
}
