package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// Redactor masks credentials that can show up in command lines, connection
// strings and HTTP headers.
type Redactor struct {
	patterns []redactPattern
}

type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Pattern names.
const (
	PatternPasswordFlag = "password_flag"
	PatternPasswordEnv  = "password_env"
	PatternURLPassword  = "url_password"
	PatternBearerToken  = "bearer_token"
	PatternPassword     = "password"
)

var defaultPatterns = []redactPattern{
	{
		name:        PatternPasswordFlag,
		regex:       regexp.MustCompile(`(--password=)('[^']*'|\S+)`),
		replacement: "${1}***",
	},
	{
		name:        PatternPasswordEnv,
		regex:       regexp.MustCompile(`\b(PGPASSWORD|MYSQL_PWD)=('[^']*'|\S+)`),
		replacement: "${1}=***",
	},
	{
		name:        PatternURLPassword,
		regex:       regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.-]*://[^:/@\s]+:)[^@\s]+@`),
		replacement: "${1}***@",
	},
	{
		name:        PatternBearerToken,
		regex:       regexp.MustCompile(`(?i)(bearer\s+)[a-zA-Z0-9\-._~+/]+=*`),
		replacement: "${1}***",
	},
	{
		name:        PatternPassword,
		regex:       regexp.MustCompile(`(?i)\b(password|passwd|pwd)\s*[:=]\s*[^\s,]+`),
		replacement: "${1}=***",
	},
}

// sensitiveKeys are attribute keys whose values are masked entirely. Key
// paths are not secrets and stay visible.
var sensitiveKeys = []string{
	"password", "passwd", "pwd",
	"secret", "token", "authorization",
	"webhook_url", "private_key",
}

// NewRedactor creates a Redactor with the built-in patterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: defaultPatterns}
}

// RedactString masks credentials inside a free-form string.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	for _, p := range r.patterns {
		value = p.regex.ReplaceAllString(value, p.replacement)
	}
	return value
}

// RedactAttr masks an attribute by key, then by value patterns. Groups are
// walked recursively.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	if isSensitiveKey(a.Key) {
		if a.Value.Kind() == slog.KindString && a.Value.String() == "" {
			return a
		}
		return slog.String(a.Key, "***")
	}

	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, r.RedactString(a.Value.String()))
	case slog.KindGroup:
		group := a.Value.Group()
		out := make([]any, len(group))
		for i, ga := range group {
			out[i] = r.RedactAttr(ga)
		}
		return slog.Group(a.Key, out...)
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, r.RedactString(err.Error()))
		}
	}
	return a
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	if strings.HasSuffix(lower, "_path") || strings.HasSuffix(lower, "_file") {
		return false
	}
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
