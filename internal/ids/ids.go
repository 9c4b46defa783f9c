// Package ids handles Trellis object ID normalization. Stored IDs carry
// a single-letter kind prefix (P-, E-, F-, T-); everything else works on
// the clean form.
package ids

import (
	"fmt"
	"strings"

	"github.com/trellis-dev/trellis/internal/errs"
)

// Kind prefixes as stored on disk.
const (
	PrefixProject = "P-"
	PrefixEpic    = "E-"
	PrefixFeature = "F-"
	PrefixTask    = "T-"
)

// MaxNewIDLength bounds IDs generated or accepted for new objects.
// Existing files with longer IDs (up to MaxExistingIDLength) still load.
const (
	MaxNewIDLength      = 32
	MaxExistingIDLength = 255
)

// stripCap bounds repeated prefix stripping so hostile input like
// "T-T-T-T-..." cannot loop unbounded.
const stripCap = 10

var allPrefixes = []string{PrefixProject, PrefixEpic, PrefixFeature, PrefixTask}

// PrefixFor returns the on-disk ID prefix for a kind string.
func PrefixFor(kind string) string {
	switch kind {
	case "project":
		return PrefixProject
	case "epic":
		return PrefixEpic
	case "feature":
		return PrefixFeature
	case "task":
		return PrefixTask
	}
	return ""
}

// KindFromPrefix infers the kind from an ID's prefix. Returns "" when
// the ID has no recognized prefix.
func KindFromPrefix(id string) string {
	switch {
	case strings.HasPrefix(id, PrefixProject):
		return "project"
	case strings.HasPrefix(id, PrefixEpic):
		return "epic"
	case strings.HasPrefix(id, PrefixFeature):
		return "feature"
	case strings.HasPrefix(id, PrefixTask):
		return "task"
	}
	return ""
}

// AddPrefix returns the prefixed form of a clean ID for the given kind.
func AddPrefix(cleanID, kind string) string {
	return PrefixFor(kind) + cleanID
}

// Normalize converts raw user input into a clean ID for the given kind:
// lowercase, whitespace collapsed to hyphens, disallowed characters
// dropped, the kind prefix stripped (repeatedly, capped), doubled
// hyphens collapsed, edge hyphens trimmed.
func Normalize(raw, kind string) (string, error) {
	id := slugify(raw)

	prefix := strings.ToLower(PrefixFor(kind))
	for i := 0; i < stripCap && prefix != "" && strings.HasPrefix(id, prefix); i++ {
		id = id[len(prefix):]
	}

	id = collapseHyphens(id)
	id = strings.Trim(id, "-")

	if id == "" {
		return "", errs.New(errs.CodeInvalidField, "invalid %s ID: %q normalizes to empty", kind, raw)
	}
	return id, nil
}

// CleanPrereq strips any kind prefix from a prerequisite reference,
// repeatedly, so "T-T-x" peels down to "x".
func CleanPrereq(id string) string {
	for i := 0; i < stripCap; i++ {
		stripped := false
		for _, p := range allPrefixes {
			if strings.HasPrefix(id, p) {
				id = id[len(p):]
				stripped = true
				break
			}
		}
		if !stripped {
			break
		}
	}
	return id
}

// Validate checks a clean ID against the charset rules. When isNew is
// true the stricter 32-character cap applies.
func Validate(id string, isNew bool) error {
	if id == "" {
		return errs.New(errs.CodeInvalidField, "object ID must not be empty")
	}
	max := MaxExistingIDLength
	if isNew {
		max = MaxNewIDLength
	}
	if len(id) > max {
		return errs.New(errs.CodeInvalidField, "object ID exceeds %d characters", max)
	}
	if strings.HasPrefix(id, "-") || strings.HasSuffix(id, "-") {
		return errs.New(errs.CodeInvalidField, "object ID must not start or end with a hyphen")
	}
	if strings.Contains(id, "--") {
		return errs.New(errs.CodeInvalidField, "object ID must not contain consecutive hyphens")
	}
	for _, c := range id {
		if !isIDChar(c) {
			return errs.New(errs.CodeInvalidField, "object ID contains invalid character %q", c)
		}
	}
	return nil
}

// FromTitle derives a clean ID from a human title. Collision handling
// is the caller's job (append -1, -2, ... until the path is free).
func FromTitle(title, kind string) (string, error) {
	id, err := Normalize(title, kind)
	if err != nil {
		return "", err
	}
	if len(id) > MaxNewIDLength {
		id = strings.Trim(id[:MaxNewIDLength], "-")
	}
	return id, nil
}

// WithSuffix appends a numeric collision suffix, trimming the base so
// the result stays within the new-ID cap.
func WithSuffix(id string, n int) string {
	suffix := fmt.Sprintf("-%d", n)
	if len(id)+len(suffix) > MaxNewIDLength {
		id = strings.Trim(id[:MaxNewIDLength-len(suffix)], "-")
	}
	return id + suffix
}

func slugify(raw string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(strings.TrimSpace(raw)) {
		switch {
		case isIDChar(c):
			b.WriteRune(c)
		case c == ' ' || c == '\t' || c == '_':
			b.WriteByte('-')
		}
		// Anything else is dropped.
	}
	return b.String()
}

func collapseHyphens(s string) string {
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	return s
}

func isIDChar(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-'
}
