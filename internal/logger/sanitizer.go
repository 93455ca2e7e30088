package logger

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Sanitizer masks secrets before a record reaches any sink.
//
// Messages are rewritten with regular expressions. Key/value args are
// masked only when the key itself looks sensitive: a password hidden in
// the value of an innocent key such as "url" is caught by the message
// rules only if it is formatted into the message.
type Sanitizer struct {
	mu    sync.RWMutex
	rules []SanitizeRule
}

// SanitizeRule is one pattern/replacement pair.
type SanitizeRule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

var sensitiveKeys = []string{
	"password", "passwd", "pwd",
	"token", "secret", "apikey", "api_key",
	"credential", "auth", "passphrase", "cookie",
}

func NewSanitizer() *Sanitizer {
	return &Sanitizer{rules: defaultRules()}
}

func defaultRules() []SanitizeRule {
	return []SanitizeRule{
		{regexp.MustCompile(`(?i)(password|passwd|pwd)=\S+`), "$1=***"},
		{regexp.MustCompile(`(?i)(access_token|refresh_token|token)=\S+`), "$1=***"},
		{regexp.MustCompile(`(?i)bearer\s+\S+`), "bearer ***"},
		{regexp.MustCompile(`(?i)basic\s+[A-Za-z0-9+/=]{8,}`), "basic ***"},
		// ownCloud session cookies and app passwords
		{regexp.MustCompile(`(?i)(oc_sessionPassphrase|oc[a-z0-9]{10})=[^;\s]+`), "$1=***"},
		{regexp.MustCompile(`[A-Za-z0-9]{5}-[A-Za-z0-9]{5}-[A-Za-z0-9]{5}-[A-Za-z0-9]{5}`), "*****-*****-*****-*****"},
		// credentials embedded in a server URL
		{regexp.MustCompile(`(https?://)[^/\s:@]+:[^/\s@]+@`), "$1***:***@"},
		{regexp.MustCompile(`/home/[^/\s]+`), "/home/***"},
		{regexp.MustCompile(`/Users/[^/\s]+`), "/Users/***"},
		{regexp.MustCompile(`(?i)[A-Z]:\\Users\\[^\\\s]+`), `***:\Users\***`},
	}
}

// Sanitize applies every rule to input.
func (s *Sanitizer) Sanitize(input string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rule := range s.rules {
		input = rule.Pattern.ReplaceAllString(input, rule.Replacement)
	}
	return input
}

// SanitizeArgs returns a copy of args with sensitive values masked.
func (s *Sanitizer) SanitizeArgs(args []any) []any {
	if len(args) == 0 {
		return args
	}

	out := make([]any, len(args))
	copy(out, args)

	for i := 0; i+1 < len(out); i += 2 {
		key, ok := out[i].(string)
		if !ok || !isSensitiveKey(key) {
			continue
		}
		switch v := out[i+1].(type) {
		case string:
			out[i+1] = maskValue(v)
		case error:
			out[i+1] = maskValue(v.Error())
		case fmt.Stringer:
			out[i+1] = maskValue(v.String())
		}
	}
	return out
}

// AddRule registers an extra message rule.
func (s *Sanitizer) AddRule(pattern, replacement string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}

	s.mu.Lock()
	s.rules = append(s.rules, SanitizeRule{Pattern: re, Replacement: replacement})
	s.mu.Unlock()
	return nil
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, k := range sensitiveKeys {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// maskValue keeps the first and last rune of long values.
func maskValue(v string) string {
	r := []rune(v)
	switch {
	case len(r) <= 2:
		return "***"
	case len(r) <= 8:
		return string(r[0]) + "***"
	default:
		return string(r[0]) + "***" + string(r[len(r)-1])
	}
}
