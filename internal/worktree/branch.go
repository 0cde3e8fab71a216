package worktree

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// BranchPrefix namespaces every generated feature branch.
const BranchPrefix = "feature/"

// maxSlugLength caps the slug portion of a branch name.
const maxSlugLength = 50

// nonAlphaNum matches runs of anything outside [a-z0-9].
var nonAlphaNum = regexp.MustCompile(`[^a-z0-9]+`)

// foldDiacritics strips combining marks so "Café" slugs as "cafe".
var foldDiacritics = transform.Chain(norm.NFD,
	runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify converts a feature name into a branch-safe slug: diacritics
// folded, lowercased, non-alphanumerics collapsed to single dashes, trimmed,
// truncated to 50 characters.
func Slugify(feature string) string {
	s := feature
	if folded, _, err := transform.String(foldDiacritics, s); err == nil {
		s = folded
	}
	s = strings.ToLower(s)
	s = nonAlphaNum.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > maxSlugLength {
		s = s[:maxSlugLength]
		s = strings.TrimRight(s, "-")
	}
	if s == "" {
		s = "feature"
	}
	return s
}

// BranchName returns the full branch name for a feature.
func BranchName(feature string) string {
	return BranchPrefix + Slugify(feature)
}
