package extract

import (
	"strings"
	"testing"
)

func TestExtractQuoteSuccess(t *testing.T) {
	text := "Call me Ishmael. Some years ago, never mind how long precisely..."
	quote, ok := ExtractQuote(text, "Call me", "years ago")
	if !ok {
		t.Fatalf("expected a match")
	}
	want := "Call me Ishmael. Some years ago"
	if quote != want {
		t.Errorf("got %q, want %q", quote, want)
	}
}

func TestExtractQuoteEmptyMarkers(t *testing.T) {
	text := "some text"
	if _, ok := ExtractQuote(text, "", "end"); ok {
		t.Error("expected no match for empty start marker")
	}
	if _, ok := ExtractQuote(text, "start", ""); ok {
		t.Error("expected no match for empty end marker")
	}
	if _, ok := ExtractQuote("", "start", "end"); ok {
		t.Error("expected no match for empty source text")
	}
}

func TestExtractQuoteMissingMarker(t *testing.T) {
	text := "Captain Ahab commands the Pequod."
	if _, ok := ExtractQuote(text, "does not appear", "commands"); ok {
		t.Error("expected no match when start marker is absent")
	}
	if _, ok := ExtractQuote(text, "Captain Ahab", "does not appear"); ok {
		t.Error("expected no match when end marker is absent")
	}
}

func TestExtractQuoteOverlongSpanRejected(t *testing.T) {
	// Build a span well over the 500-char guard between the markers.
	filler := strings.Repeat("x ", 400)
	text := "START " + filler + "END"
	if _, ok := ExtractQuote(text, "START", "END"); ok {
		t.Error("expected overlong span to be rejected")
	}
}

func TestExtractQuoteCaseInsensitive(t *testing.T) {
	text := "THE WHALE breached near the boat, then dove."
	quote, ok := ExtractQuote(text, "the whale", "near the boat")
	if !ok {
		t.Fatalf("expected case-insensitive match")
	}
	if quote != "THE WHALE breached near the boat" {
		t.Errorf("got %q", quote)
	}
}

func TestExtractQuoteWhitespaceFlexibility(t *testing.T) {
	text := "Call    me\nIshmael. Some years ago."
	quote, ok := ExtractQuote(text, "Call me", "years ago")
	if !ok {
		t.Fatalf("expected a match across whitespace variation")
	}
	if quote != "Call me Ishmael. Some years ago" {
		t.Errorf("got %q", quote)
	}
}

// TestExtractQuoteContainment covers P8: when a string is returned, it
// contains both markers (modulo whitespace normalization).
func TestExtractQuoteContainment(t *testing.T) {
	text := "Queequeg sharpened his harpoon before dawn broke over the sea."
	quote, ok := ExtractQuote(text, "Queequeg sharpened", "dawn broke")
	if !ok {
		t.Fatalf("expected a match")
	}
	lower := strings.ToLower(quote)
	if !strings.Contains(lower, "queequeg sharpened") {
		t.Errorf("quote %q does not contain start marker", quote)
	}
	if !strings.Contains(lower, "dawn broke") {
		t.Errorf("quote %q does not contain end marker", quote)
	}
}
