package pipeline

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// LoadIDColumn is appended to every loaded row
const LoadIDColumn = "_load_id"

var (
	// ErrColumnCollision means two source columns normalize to the same identifier
	ErrColumnCollision = errors.New("column identifiers collide after normalization")
	// ErrReservedColumn means a source column normalizes to a pipeline-owned identifier
	ErrReservedColumn = errors.New("column identifier is reserved")
	// ErrEmptyColumn means a source column name is blank
	ErrEmptyColumn = errors.New("column identifier is empty")
)

var (
	reduceAlphabet  = strings.NewReplacer("+", "x", "-", "_", "*", "x", "@", "a", "|", "l")
	nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z\d_]+`)
	wordBreak       = regexp.MustCompile(`([^_])([A-Z][a-z]+)`)
	caseBreak       = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	leadingDigits   = regexp.MustCompile(`^\d+`)
	underscoreRuns  = regexp.MustCompile(`__+`)
)

// SnakeCase converts an identifier to the destination naming convention.
// Symbols are reduced (+ and * to x, @ to a, | to l), other non-alphanumeric
// runs become one underscore, camel case humps are split and everything is
// lower cased. A leading digit gets an underscore prefix, each trailing
// underscore becomes an x and repeated underscores collapse into one.
func SnakeCase(name string) string {
	s := strings.TrimSpace(name)
	if s == "" {
		return ""
	}
	s = reduceAlphabet.Replace(s)
	s = nonAlphanumeric.ReplaceAllString(s, "_")

	s = wordBreak.ReplaceAllString(s, "${1}_${2}")
	s = caseBreak.ReplaceAllString(s, "${1}_${2}")
	s = strings.ToLower(s)

	if leadingDigits.MatchString(s) {
		s = "_" + s
	}

	stripped := strings.TrimRight(s, "_")
	s = stripped + strings.Repeat("x", len(s)-len(stripped))

	return underscoreRuns.ReplaceAllString(s, "_")
}

// NormalizeIdentifiers snake_cases every name and rejects blank names,
// collisions and reserved identifiers.
func NormalizeIdentifiers(names []string) ([]string, error) {
	out := make([]string, len(names))
	seen := make(map[string]string, len(names))

	for i, name := range names {
		norm := SnakeCase(name)
		if norm == "" {
			return nil, fmt.Errorf("%w: column %d", ErrEmptyColumn, i)
		}
		if norm == LoadIDColumn {
			return nil, fmt.Errorf("%w: %q normalizes to %q", ErrReservedColumn, name, norm)
		}
		if orig, dup := seen[norm]; dup {
			return nil, fmt.Errorf("%w: %q and %q both normalize to %q", ErrColumnCollision, orig, name, norm)
		}
		seen[norm] = name
		out[i] = norm
	}
	return out, nil
}
