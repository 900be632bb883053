// Package security provides content sanitization for user-submitted
// post bodies. Posts are plain text; any markup a client sends is
// stripped before the content is persisted, so stored content is safe to
// embed in HTML-rendering clients without further escaping decisions.
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizer strips markup from post content.
type ContentSanitizer interface {
	// Sanitize removes all HTML elements and attributes from content and
	// trims surrounding whitespace. Idempotent: sanitizing sanitized
	// content returns it unchanged.
	Sanitize(content string) string
}

type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer builds a ContentSanitizer backed by bluemonday's
// strict policy, which allows no elements at all.
func NewContentSanitizer() ContentSanitizer {
	return &contentSanitizer{policy: bluemonday.StrictPolicy()}
}

func (s *contentSanitizer) Sanitize(content string) string {
	return strings.TrimSpace(s.policy.Sanitize(content))
}
