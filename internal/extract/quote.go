package extract

import (
	"regexp"
	"strings"
)

// maxQuoteLength is the heuristic bad-match guard from spec §4.2: a span
// this long almost certainly means the markers matched the wrong
// occurrence, so we reject it rather than attach garbage provenance.
const maxQuoteLength = 500

// markerWhitespace matches one or more whitespace characters inside a
// marker phrase, so the compiled pattern tolerates whitespace variation
// (newlines, double spaces) between the marker as written by the model and
// as it appears in the source text.
var markerWhitespace = regexp.MustCompile(`\s+`)

// buildMarkerPattern compiles a case-insensitive regexp that matches marker
// literally except that every internal whitespace run is treated as "one or
// more whitespace characters".
func buildMarkerPattern(marker string) (*regexp.Regexp, error) {
	parts := markerWhitespace.Split(marker, -1)
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = regexp.QuoteMeta(p)
	}
	pattern := "(?is)" + strings.Join(escaped, `\s+`)
	return regexp.Compile(pattern)
}

// ExtractQuote locates the substring of text bounded by quoteStart and
// quoteEnd (spec §4.2). It returns ("", false) if either marker is empty,
// the source is empty, either marker fails to match, or the resulting span
// exceeds the bad-match guard length.
func ExtractQuote(text, quoteStart, quoteEnd string) (string, bool) {
	if text == "" || quoteStart == "" || quoteEnd == "" {
		return "", false
	}

	startPattern, err := buildMarkerPattern(quoteStart)
	if err != nil {
		return "", false
	}
	startLoc := startPattern.FindStringIndex(text)
	if startLoc == nil {
		return "", false
	}

	endPattern, err := buildMarkerPattern(quoteEnd)
	if err != nil {
		return "", false
	}
	endLoc := endPattern.FindStringIndex(text[startLoc[0]:])
	if endLoc == nil {
		return "", false
	}
	endLoc[0] += startLoc[0]
	endLoc[1] += startLoc[0]

	span := text[startLoc[0]:endLoc[1]]
	if len(span) > maxQuoteLength {
		return "", false
	}

	normalized := markerWhitespace.ReplaceAllString(span, " ")
	return strings.TrimSpace(normalized), true
}
