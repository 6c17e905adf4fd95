package guardrail

import (
	"regexp"
	"strconv"
	"strings"
)

// piiPattern is one entry of the PII pattern table: an unanchored regex plus
// a semantic validator run over each match before it is trusted.
type piiPattern struct {
	regex     *regexp.Regexp
	validator func(value string) bool
}

// piiPatterns is keyed by PII type tag (the suffix of the guardrail type,
// e.g. "ssn" for "pii_ssn"). Regexes are case-insensitive, matching the
// reference scanner.
var piiPatterns = map[string]piiPattern{
	"email": {
		regex:     regexp.MustCompile(`(?i)[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
		validator: validateEmail,
	},
	"phone": {
		regex:     regexp.MustCompile(`(?i)\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`),
		validator: validatePhone,
	},
	"ssn": {
		regex:     regexp.MustCompile(`(?i)\d{3}[-\s]?\d{2}[-\s]?\d{4}`),
		validator: validateSSN,
	},
	"credit_card": {
		regex:     regexp.MustCompile(`(?i)\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}`),
		validator: validateCreditCard,
	},
	"ip_address": {
		regex:     regexp.MustCompile(`(?i)\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`),
		validator: validateIPAddress,
	},
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func validateEmail(value string) bool {
	at := strings.Index(value, "@")
	if at < 0 {
		return false
	}
	return strings.Contains(value[at+1:], ".")
}

func validatePhone(value string) bool {
	return len(onlyDigits(value)) >= 10
}

// validateSSN rejects area codes 000, 666, and 900-999, per the reference
// scanner's false-positive suppression rule.
func validateSSN(value string) bool {
	digits := onlyDigits(value)
	if len(digits) != 9 {
		return false
	}
	area, err := strconv.Atoi(digits[:3])
	if err != nil {
		return false
	}
	if area == 0 || area == 666 || (area >= 900 && area <= 999) {
		return false
	}
	return true
}

// validateCreditCard runs the Luhn checksum over the candidate digits.
func validateCreditCard(value string) bool {
	digits := onlyDigits(value)
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}

	total := 0
	parity := len(digits) % 2
	for i := 0; i < len(digits); i++ {
		n := int(digits[i] - '0')
		if i%2 == parity {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		total += n
	}
	return total%10 == 0
}

func validateIPAddress(value string) bool {
	parts := strings.Split(value, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 255 {
			return false
		}
	}
	return true
}
