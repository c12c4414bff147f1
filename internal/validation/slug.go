package validation

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidSlug = errors.New("invalid slug")

const maxSlugLength = 128

// ValidateSlug checks a consultation or question identifier that is
// interpolated into request paths. Letters, digits, '-' and '_' only.
func ValidateSlug(kind, s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidSlug, kind)
	}
	if len(s) > maxSlugLength {
		return "", fmt.Errorf("%w: %s too long (max %d characters)", ErrInvalidSlug, kind, maxSlugLength)
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return "", fmt.Errorf("%w: %s %q contains %q", ErrInvalidSlug, kind, s, r)
		}
	}
	return s, nil
}
