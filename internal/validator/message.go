// Package validator holds the input rules shared by the REST and real-time paths.
package validator

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxUsernameLength = 50
	MaxContentLength  = 500
)

// whitespace is the set browsers treat as \s and trim: ASCII space and
// controls plus the Unicode space separators, line/paragraph separators and
// the BOM. RE2's \s covers only the ASCII part.
const whitespace = "\t\n\v\f\r \u00a0\u1680\u2000-\u200a\u2028\u2029\u202f\u205f\u3000\ufeff"

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9` + whitespace + `]+$`)

// Trim removes leading and trailing whitespace as the username and content
// rules define it.
func Trim(s string) string {
	return strings.TrimFunc(s, isSpace)
}

func isSpace(r rune) bool {
	switch {
	case r == '\t', r == '\n', r == '\v', r == '\f', r == '\r', r == ' ':
		return true
	case r == '\u00a0', r == '\u1680', r == '\u2028', r == '\u2029':
		return true
	case r >= '\u2000' && r <= '\u200a':
		return true
	case r == '\u202f', r == '\u205f', r == '\u3000', r == '\ufeff':
		return true
	}
	return false
}

// Result is the outcome of a validation. Errors keeps the order in which the
// rules are checked: username rules first, then content rules.
type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// ValidateUsername checks only the username rules. It is used on join.
func ValidateUsername(username string) Result {
	return newResult(usernameErrors(username))
}

// ValidateMessage checks both fields of a message about to be persisted.
func ValidateMessage(username, content string) Result {
	errs := usernameErrors(username)
	errs = append(errs, contentErrors(content)...)
	return newResult(errs)
}

func newResult(errs []string) Result {
	if errs == nil {
		errs = []string{}
	}
	return Result{Valid: len(errs) == 0, Errors: errs}
}

func usernameErrors(username string) []string {
	if username == "" {
		return []string{"Username is required"}
	}

	trimmed := Trim(username)
	if trimmed == "" {
		return []string{"Username cannot be empty"}
	}

	var errs []string
	if exceeds(trimmed, MaxUsernameLength) {
		errs = append(errs, "Username cannot exceed 50 characters")
	}
	if !usernamePattern.MatchString(trimmed) {
		errs = append(errs, "Username can only contain letters, numbers, and spaces")
	}
	return errs
}

func contentErrors(content string) []string {
	if content == "" {
		return []string{"Message content is required"}
	}

	trimmed := Trim(content)
	if trimmed == "" {
		return []string{"Message cannot be empty"}
	}
	if exceeds(trimmed, MaxContentLength) {
		return []string{"Message cannot exceed 500 characters"}
	}
	return nil
}

// exceeds counts characters, not bytes.
func exceeds(s string, limit int) bool {
	return utf8.RuneCountInString(s) > limit
}
