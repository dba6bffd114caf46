// Package security holds helpers that keep personal data out of logs.
package security

import (
	"strings"
)

const redacted = "***REDACTED***"

var sensitiveFields = []string{
	"password", "secret", "token", "api_key", "apikey", "authorization",
	"private_key", "seed", "mnemonic", "payout details", "payoutdetails",
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return redacted
	}
	return email[:1] + "***" + email[at:]
}

// MaskAddress shortens a wallet or mint address to its first and last four
// characters.
func MaskAddress(address string) string {
	if len(address) <= 8 {
		return address
	}
	return address[:4] + "..." + address[len(address)-4:]
}

// MaskFields copies fields, redacting sensitive keys and masking e-mails.
func MaskFields(fields map[string]interface{}) map[string]interface{} {
	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		switch {
		case isSensitiveField(k):
			masked[k] = redacted
		case strings.Contains(strings.ToLower(k), "email"):
			if s, ok := v.(string); ok {
				masked[k] = MaskEmail(s)
			} else {
				masked[k] = redacted
			}
		default:
			masked[k] = v
		}
	}
	return masked
}

func isSensitiveField(field string) bool {
	lower := strings.ToLower(field)
	for _, s := range sensitiveFields {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
