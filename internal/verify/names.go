package verify

import (
	"regexp"
	"unicode/utf8"

	"github.com/ernie/minebridge/internal/domain"
)

const (
	minNameLength = 3
	maxNameLength = 16
)

var nameCharsRegex = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidateName checks a candidate Minecraft username: 3-16 characters of
// letters, digits and underscore.
func ValidateName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < minNameLength || n > maxNameLength {
		return &domain.ValidationError{Input: name, Reason: "must be 3-16 characters"}
	}
	if !nameCharsRegex.MatchString(name) {
		return &domain.ValidationError{Input: name, Reason: "may only contain letters, numbers, or underscores"}
	}
	return nil
}
