// Package rule matches paths against the glob patterns of the sync config:
// keep_in_sync patterns for remote paths and ignore patterns for the
// local observer.
package rule

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Ning0612/ocsync/internal/domain"
)

// Matcher reports whether a path matches any of its patterns.
type Matcher struct {
	patterns []string
}

// NewMatcher validates patterns. Patterns use doublestar syntax ("**/*.md")
// relative to the account root; a pattern without a slash also matches
// the base name anywhere in the tree.
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range patterns {
		p = strings.TrimPrefix(strings.TrimSpace(p), "/")
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: bad pattern %q", domain.ErrConfigInvalid, p)
		}
		m.patterns = append(m.patterns, p)
	}
	return m, nil
}

// MustMatcher is NewMatcher for patterns known to be valid.
func MustMatcher(patterns ...string) *Matcher {
	m, err := NewMatcher(patterns)
	if err != nil {
		panic(err)
	}
	return m
}

// Empty reports whether the matcher has no patterns.
func (m *Matcher) Empty() bool {
	return m == nil || len(m.patterns) == 0
}

// Match checks a slash separated path; a leading slash is ignored.
func (m *Matcher) Match(p string) bool {
	if m.Empty() {
		return false
	}
	rel := strings.TrimPrefix(p, "/")
	if rel == "" {
		return false
	}
	base := path.Base(rel)

	for _, pattern := range m.patterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		if !strings.Contains(pattern, "/") {
			if ok, _ := doublestar.Match(pattern, base); ok {
				return true
			}
		}
	}
	return false
}

// Patterns returns a copy of the validated patterns.
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.patterns...)
}
