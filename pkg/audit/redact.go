package audit

import (
	"regexp"
	"strings"
)

// Redacted replaces secret values in audit metadata.
const Redacted = "[REDACTED]"

// Redactor strips secret material from audit metadata before it is hashed
// and stored.
type Redactor struct {
	keys     []string
	patterns []*regexp.Regexp
}

var defaultSecretKeys = []string{
	"token", "otp", "password", "passwd", "pwd", "secret",
	"authorization", "cookie", "api_key", "apikey", "private_key",
	"privatekey", "pin", "code_hash", "codehash",
}

var defaultSecretPatterns = []string{
	// Bearer tokens
	`(?i)bearer\s+[a-z0-9\-._~+/]+=*`,
	// JWTs
	`eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]*`,
	// Secret-style API keys
	`\b(sk|pk|rk)_(live|test)_[a-zA-Z0-9]{8,}\b`,
	`\bsk-[a-zA-Z0-9]{16,}\b`,
	// Inline credentials
	`(?i)\b(password|passwd|pwd|otp|pin)\s*[:=]\s*\S+`,
}

// NewRedactor creates a Redactor with the default secret keys and patterns
// plus any extra key fragments.
func NewRedactor(extraKeys ...string) *Redactor {
	r := &Redactor{}
	r.keys = append(r.keys, defaultSecretKeys...)
	for _, k := range extraKeys {
		r.keys = append(r.keys, strings.ToLower(k))
	}
	for _, p := range defaultSecretPatterns {
		r.patterns = append(r.patterns, regexp.MustCompile(p))
	}
	return r
}

// IsSecretKey reports whether a metadata key names secret material. Keys
// are normalized to snake_case. Short fragments ("otp", "pin") must match a
// whole word so that keys like "mapping" are left alone.
func (r *Redactor) IsSecretKey(key string) bool {
	k := snakeCase(key)
	words := strings.Split(k, "_")
	for _, secret := range r.keys {
		if len(secret) >= 5 || strings.Contains(secret, "_") {
			if strings.Contains(k, secret) {
				return true
			}
			continue
		}
		for _, w := range words {
			if w == secret {
				return true
			}
		}
	}
	return false
}

func snakeCase(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	var prev rune
	for i, c := range s {
		orig := c
		switch {
		case c == '-' || c == ' ' || c == '.':
			c = '_'
		case c >= 'A' && c <= 'Z':
			if i > 0 && ((prev >= 'a' && prev <= 'z') || (prev >= '0' && prev <= '9')) {
				b.WriteByte('_')
			}
			c += 'a' - 'A'
		}
		b.WriteRune(c)
		prev = orig
	}
	return b.String()
}

// RedactString masks secret patterns inside a free-text value.
func (r *Redactor) RedactString(s string) string {
	for _, p := range r.patterns {
		s = p.ReplaceAllString(s, Redacted)
	}
	return s
}

// RedactMetadata returns a redacted deep copy of m.
func (r *Redactor) RedactMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if r.IsSecretKey(k) {
			out[k] = Redacted
			continue
		}
		out[k] = r.redactValue(v)
	}
	return out
}

func (r *Redactor) redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return r.RedactString(val)
	case map[string]any:
		return r.RedactMetadata(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = r.redactValue(item)
		}
		return out
	default:
		return v
	}
}
