// Package validate rejects or sanitizes untrusted text before it reaches
// retrieval or generation.
//
// The dangerous-pattern check is pattern-based defense in depth, not a
// parser: it blocks obvious SQL DDL/DML, script and system-call tokens in
// the inbound query. It runs before any embedding or generation call.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Kind classifies why an input was rejected.
type Kind int

const (
	// KindEmpty marks empty or whitespace-only input. Callers should
	// short-circuit with a canned response rather than erroring the user.
	KindEmpty Kind = iota

	// KindTooLong marks input exceeding the configured maximum length.
	KindTooLong

	// KindBlocked marks input matching a dangerous-content pattern.
	KindBlocked
)

// Error is a validation failure with a user-facing message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// DefaultMaxQueryLength bounds query size when no limit is configured.
const DefaultMaxQueryLength = 2000

// defaultDangerousPatterns are the built-in blocked-content patterns:
// SQL DDL/DML keywords and script/eval/system-call tokens, matched
// case-insensitively against the normalized query.
var defaultDangerousPatterns = []string{
	`DROP\s+TABLE`,
	`DELETE\s+FROM`,
	`UPDATE\s+.*\s+SET`,
	`INSERT\s+INTO`,
	`TRUNCATE`,
	`ALTER\s+TABLE`,
	`CREATE\s+TABLE`,
	`EXEC\s*\(`,
	`EXECUTE\s*\(`,
	`<script`,
	`javascript:`,
	`eval\s*\(`,
	`system\s*\(`,
	`os\.system`,
	`subprocess\.`,
}

// Slack markup: user mentions, channel references, and wrapped URLs.
var (
	slackMentionRe = regexp.MustCompile(`<@[A-Z0-9]+>`)
	slackChannelRe = regexp.MustCompile(`<#[A-Z0-9]+\|[^>]+>`)
	slackURLRe     = regexp.MustCompile(`<http[^>]+>`)
)

// Validator sanitizes user queries against a length limit and a fixed
// set of dangerous-content patterns.
type Validator struct {
	maxQueryLength int
	patterns       []*regexp.Regexp
}

// Option configures a Validator.
type Option func(*Validator)

// WithMaxQueryLength overrides the query length limit.
func WithMaxQueryLength(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.maxQueryLength = n
		}
	}
}

// WithPatterns replaces the built-in dangerous-content patterns.
// Patterns that fail to compile are skipped.
func WithPatterns(patterns []string) Option {
	return func(v *Validator) {
		if len(patterns) == 0 {
			return
		}
		v.patterns = compilePatterns(patterns)
	}
}

// New creates a Validator with the default limit and pattern set.
func New(opts ...Option) *Validator {
	v := &Validator{
		maxQueryLength: DefaultMaxQueryLength,
		patterns:       compilePatterns(defaultDangerousPatterns),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func compilePatterns(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if re, err := regexp.Compile(`(?i)` + p); err == nil {
			compiled = append(compiled, re)
		}
	}
	return compiled
}

// SanitizeQuery validates and normalizes a user query.
//
// Failures, in check order:
//   - empty or whitespace-only input: *Error with KindEmpty
//   - longer than the configured limit: *Error with KindTooLong
//   - matching a dangerous-content pattern: *Error with KindBlocked
//
// On success the query is returned with internal whitespace runs collapsed
// to single spaces and ends trimmed.
func (v *Validator) SanitizeQuery(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", &Error{Kind: KindEmpty, Message: "query is empty"}
	}

	query := strings.Join(strings.Fields(raw), " ")

	// The limit counts characters, not bytes; accented text must not
	// hit the ceiling early.
	if utf8.RuneCountInString(query) > v.maxQueryLength {
		return "", &Error{
			Kind:    KindTooLong,
			Message: fmt.Sprintf("Query too long. Maximum %d characters allowed.", v.maxQueryLength),
		}
	}

	for _, re := range v.patterns {
		if re.MatchString(query) {
			return "", &Error{
				Kind:    KindBlocked,
				Message: "Query contains potentially dangerous content and was blocked.",
			}
		}
	}

	return query, nil
}

// SanitizeSlackMessage strips Slack-specific markup (mentions, channel
// references, wrapped URLs). No length or safety checks: this is for
// inbound chat-platform text only, not the core query path.
func SanitizeSlackMessage(text string) string {
	if text == "" {
		return ""
	}
	text = slackMentionRe.ReplaceAllString(text, "")
	text = slackChannelRe.ReplaceAllString(text, "")
	text = slackURLRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

var urlRe = regexp.MustCompile(`(?i)^https?://` +
	`(?:(?:[A-Z0-9](?:[A-Z0-9-]{0,61}[A-Z0-9])?\.)+[A-Z]{2,6}\.?|` +
	`localhost|` +
	`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})` +
	`(?::\d+)?` +
	`(?:/?|[/?]\S+)$`)

// ValidateURL reports whether url looks like a well-formed http(s) URL.
func ValidateURL(url string) bool {
	if url == "" {
		return false
	}
	return urlRe.MatchString(url)
}

// TruncateText shortens text to at most maxLength characters,
// appending suffix when truncation occurs. Cuts fall on rune
// boundaries so the result is always valid UTF-8.
func TruncateText(text string, maxLength int, suffix string) string {
	if text == "" || utf8.RuneCountInString(text) <= maxLength {
		return text
	}
	runes := []rune(text)
	suffixLen := utf8.RuneCountInString(suffix)
	if maxLength <= suffixLen {
		return string(runes[:maxLength])
	}
	return string(runes[:maxLength-suffixLen]) + suffix
}
