package extract

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/width"
)

// caser performs Unicode-aware lowercasing with language-neutral rules
// (language.Und); locale-specific mappings such as the Turkish dotless i
// are not applied.
var caser = cases.Lower(language.Und)

// stripPattern matches any rune that is not a word character, whitespace, or
// hyphen. Word characters here follow Go's \w class (ASCII letters,
// digits, underscore) plus any Unicode letter/number, so labels in
// non-Latin scripts survive normalization intact.
var stripPattern = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)

// whitespaceRun matches one or more whitespace characters.
var whitespaceRun = regexp.MustCompile(`\s+`)

// Normalize maps a free-form label to its canonical form, used for equality
// in the graph (spec §4.1). It is pure and deterministic:
//
//  1. lowercase (Unicode-aware);
//  2. trim leading/trailing whitespace;
//  3. strip characters that are neither word characters, whitespace, nor
//     hyphen;
//  4. collapse runs of whitespace to a single space;
//  5. final trim.
//
// Hyphens are preserved so compound proper names survive. Common prefixes
// such as "the"/"a" are deliberately NOT stripped: the graph's lookup is
// exact-match, so semantic prefix-stripping breaks findability. This
// reverses an earlier design and must stay reversed — do not reintroduce
// prefix stripping.
func Normalize(label string) string {
	folded := width.Fold.String(label)
	lower := caser.String(folded)
	trimmed := strings.TrimSpace(lower)
	stripped := stripPattern.ReplaceAllString(trimmed, "")
	collapsed := whitespaceRun.ReplaceAllString(stripped, " ")
	return strings.TrimSpace(collapsed)
}
