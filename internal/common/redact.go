package common

import "strings"

// RedactedAPIKey replaces API key material in logged text.
const RedactedAPIKey = "[API_KEY_HIDDEN]"

// Redact replaces every occurrence of each non-empty secret in text.
func Redact(text string, secrets ...string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		text = strings.ReplaceAll(text, secret, RedactedAPIKey)
	}
	return text
}
