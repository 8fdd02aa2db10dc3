package validation

import (
	"regexp"
	"strings"
)

// Limits for the two accepted input kinds. Persona text carries full
// behavior instructions and gets a higher ceiling than a single chat turn.
const (
	MinTextLength    = 10
	MaxTextLength    = 5000
	MaxMessageLength = 1000
)

// Result collects every applicable failure rather than stopping at the
// first, so the client can show all problems at once.
type Result struct {
	OK        bool     `json:"ok"`
	Errors    []string `json:"errors,omitempty"`
	Sanitized string   `json:"sanitized"`
}

// ValidateTextInput checks persona/instruction text: trimmed, non-empty,
// between MinTextLength and MaxTextLength characters.
func ValidateTextInput(text string) Result {
	var errs []string

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		errs = append(errs, "Text input cannot be empty")
	}
	if len(trimmed) > MaxTextLength {
		errs = append(errs, "Text input is too long (maximum 5000 characters)")
	}
	if len(trimmed) < MinTextLength {
		errs = append(errs, "Text input is too short (minimum 10 characters)")
	}

	return Result{OK: len(errs) == 0, Errors: errs, Sanitized: trimmed}
}

// ValidateMessage checks a single chat turn. Same shape as
// ValidateTextInput but without the minimum-length rule.
func ValidateMessage(message string) Result {
	var errs []string

	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		errs = append(errs, "Message cannot be empty")
	}
	if len(trimmed) > MaxMessageLength {
		errs = append(errs, "Message is too long (maximum 1000 characters)")
	}

	return Result{OK: len(errs) == 0, Errors: errs, Sanitized: trimmed}
}

var (
	multiSpace   = regexp.MustCompile(`\s+`)
	specialChars = regexp.MustCompile(`[^\w\s.,!?;:()\-'"]`)
)

// SanitizeInput normalizes whitespace, strips everything outside basic
// punctuation and caps the result at MaxTextLength.
func SanitizeInput(input string) string {
	out := strings.TrimSpace(input)
	out = multiSpace.ReplaceAllString(out, " ")
	out = specialChars.ReplaceAllString(out, "")
	if len(out) > MaxTextLength {
		out = out[:MaxTextLength]
	}
	return out
}
