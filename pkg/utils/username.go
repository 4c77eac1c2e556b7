package utils

import (
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 30

	// UsernameSuffixRange bounds the random number appended on a collision.
	UsernameSuffixRange = 10000
)

var (
	usernameRegex   = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	usernameInvalid = regexp.MustCompile(`[^a-zA-Z0-9_]+`)
)

// ValidateUsername validates username format
// Rules: 3-30 characters, letters, numbers, underscores only
func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)

	if len(username) < MinUsernameLength {
		return &ValidationError{Field: "username", Message: "Username must be at least 3 characters"}
	}

	if len(username) > MaxUsernameLength {
		return &ValidationError{Field: "username", Message: "Username must be at most 30 characters"}
	}

	if !usernameRegex.MatchString(username) {
		return &ValidationError{Field: "username", Message: "Username can only contain letters, numbers, and underscores"}
	}

	if !(unicode.IsLetter(rune(username[0])) || unicode.IsNumber(rune(username[0]))) {
		return &ValidationError{Field: "username", Message: "Username must start with a letter or number"}
	}

	return nil
}

// NormalizeUsername converts username to lowercase for storage
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// BaseUsername derives the initial username for a new account: the local part
// of the email with disallowed characters stripped, or user_<id prefix> when
// that leaves nothing usable.
func BaseUsername(email, userID string) string {
	local := email
	if at := strings.Index(local, "@"); at >= 0 {
		local = local[:at]
	}
	local = strings.Trim(usernameInvalid.ReplaceAllString(local, "_"), "_")
	if len(local) > MaxUsernameLength-4 {
		local = local[:MaxUsernameLength-4]
	}
	if len(local) >= MinUsernameLength {
		return NormalizeUsername(local)
	}

	prefix := userID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return NormalizeUsername("user_" + usernameInvalid.ReplaceAllString(prefix, ""))
}

// WithRandomSuffix appends a number in [0, UsernameSuffixRange) to avoid a collision.
func WithRandomSuffix(username string) string {
	return username + strconv.Itoa(rand.IntN(UsernameSuffixRange))
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
