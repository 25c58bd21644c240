package suggestions

import (
	"fmt"
	"regexp"
	"strings"
)

// Sanitizer redacts secret-shaped substrings (tokens, passwords, API
// keys) that might accidentally appear in an LLM brief's attribute maps
// or in a generated description before either is persisted or sent to
// the LLM adapter.
type Sanitizer struct {
	patterns []*regexp.Regexp
}

var secretKeywords = []string{"password", "token", "api_key", "apikey", "secret"}

// NewSanitizer builds a Sanitizer with the default secret-keyword
// patterns.
func NewSanitizer() *Sanitizer {
	patterns := make([]*regexp.Regexp, 0, len(secretKeywords))
	for _, kw := range secretKeywords {
		patterns = append(patterns, regexp.MustCompile(`(?i)`+kw+`\s*[:=]\s*['"]?[^\s,}'"]+['"]?`))
	}
	return &Sanitizer{patterns: patterns}
}

// SanitizeWithFallback sanitizes input, never returning an error to the
// caller in a way that loses the content: if the regex pass panics it
// recovers and degrades to SafeFallback.
func (s *Sanitizer) SanitizeWithFallback(input string) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = s.SafeFallback(input)
			err = fmt.Errorf("sanitizer recovered from panic, used safe fallback: %v", r)
		}
	}()
	if input == "" {
		return "", nil
	}
	out := input
	for _, pattern := range s.patterns {
		out = pattern.ReplaceAllString(out, "***REDACTED***")
	}
	return out, nil
}

// SafeFallback is a simple, non-regex string-matching redaction used
// when the primary pass cannot be trusted. It scans case-insensitively
// for "keyword: value" or "keyword=value" and replaces the value token
// with [REDACTED].
func (s *Sanitizer) SafeFallback(input string) string {
	if input == "" {
		return input
	}
	lower := strings.ToLower(input)
	var b strings.Builder
	i := 0
	for i < len(input) {
		matched := false
		for _, kw := range secretKeywords {
			if strings.HasPrefix(lower[i:], kw) {
				rest := i + len(kw)
				rest = skipDelimiter(input, rest)
				if rest == i+len(kw) {
					continue // no ':' or '=' followed, not a key-value pair
				}
				b.WriteString(input[i:rest])
				end := valueEnd(input, rest)
				b.WriteString("[REDACTED]")
				i = end
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(input[i])
			i++
		}
	}
	return b.String()
}

// skipDelimiter advances past optional whitespace, a ':' or '=', and
// more optional whitespace/quote, returning the original position if no
// delimiter was found.
func skipDelimiter(s string, pos int) int {
	j := pos
	for j < len(s) && (s[j] == ' ' || s[j] == '\t') {
		j++
	}
	if j >= len(s) || (s[j] != ':' && s[j] != '=') {
		return pos
	}
	j++
	for j < len(s) && (s[j] == ' ' || s[j] == '\t') {
		j++
	}
	if j < len(s) && (s[j] == '\'' || s[j] == '"') {
		j++
	}
	return j
}

// valueEnd finds the end of the secret value starting at pos: up to the
// next whitespace, comma, closing bracket/brace, or quote.
func valueEnd(s string, pos int) int {
	j := pos
	for j < len(s) {
		switch s[j] {
		case ' ', '\t', '\n', ',', '}', ']', '\'', '"':
			return j
		}
		j++
	}
	return j
}
