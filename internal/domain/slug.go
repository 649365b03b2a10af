package domain

import (
	"fmt"
	"strings"

	"github.com/gosimple/slug"
)

const maxSlugLength = 380

// Slugify derives the URL slug for a poll name.
func Slugify(name string) string {
	s := slug.Make(strings.TrimSpace(name))
	if len(s) > maxSlugLength {
		s = strings.TrimRight(s[:maxSlugLength], "-")
	}
	if s == "" {
		s = "poll"
	}
	return s
}

// SlugCandidate returns the n-th attempt for a slug; attempt 1 is the base.
func SlugCandidate(base string, attempt int) string {
	if attempt <= 1 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, attempt)
}
