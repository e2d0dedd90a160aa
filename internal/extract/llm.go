package extract

import (
	"context"
	"fmt"
	"strings"
)

// Provider is the black-box LLM boundary from spec §4.3/§6.3: one
// request/response round-trip, with retry-and-backoff on transient
// failures handled internally by the implementation.
type Provider interface {
	// Name returns the provider name (e.g., "gemini", "ollama").
	Name() string

	// IsAvailable checks whether the provider is reachable and configured.
	IsAvailable(ctx context.Context) bool

	// Call performs one extraction round-trip and returns the raw content
	// string plus usage accounting.
	Call(ctx context.Context, systemPrompt, userPrompt string) (CallResult, error)
}

// maxPromptInputLength truncates any single prompt field before it is
// embedded, bounding worst-case prompt size regardless of chunk size
// validation upstream.
const maxPromptInputLength = 500_000

// BuildUserPrompt composes the extraction user prompt for one EntityContext,
// wrapping untrusted content in unambiguous delimiters (spec §4.3's prompt
// hardening). Mirrors the teacher's ExtractionPrompt delimiter style.
func BuildUserPrompt(ec EntityContext, chunkText string) string {
	var rel strings.Builder
	for _, r := range ec.Relationships {
		label := r.PeerLabel
		if label == "" && r.PeerPreview != nil {
			label = r.PeerPreview.Label()
		}
		fmt.Fprintf(&rel, "- (%s) %s -> %s [%s]\n", r.Direction, r.Predicate, label, r.Peer)
	}

	return fmt.Sprintf(`You are an expert knowledge graph extractor. Extract entities and relationships explicitly present in the text below.

<entity_context>
ID: %s
Type: %s
Label: %s
Description: %s
</entity_context>

<known_relationships>
%s
</known_relationships>

<text_to_analyze>
%s
</text_to_analyze>

<output_format>
Respond ONLY with valid JSON: either a bare array of operations, or an object
with an "operations" array. Each operation is one of:
{"op": "create", "label": "...", "entity_type": "...", "description": "...", "properties": {"key": "value"}}
{"op": "add_relationship", "subject": "...", "predicate": "...", "target": "...", "description": "...", "quote_start": "...", "quote_end": "..."}
</output_format>

Extract now:`,
		sanitizePromptInput(ec.ID),
		sanitizePromptInput(ec.Type),
		sanitizePromptInput(ec.Label),
		sanitizePromptInput(ec.Description),
		rel.String(),
		sanitizePromptInput(chunkText),
	)
}

// ExtractionSystemPrompt is the fixed system-instruction section sent with
// every call.
const ExtractionSystemPrompt = `You are a precise knowledge graph extraction system. Only extract entities and relationships that are explicitly stated in the supplied text. Never invent facts. Return only the JSON described in the output format section, with no surrounding prose.`

// dangerousPromptPatterns are substrings commonly used to try to escape the
// extraction context or override the system instruction. Matched
// case-insensitively. Grounded on the teacher's sanitizePromptInput list,
// extended with a couple of structured-injection markers seen in the
// broader retrieved corpus (script tags, prototype-pollution-style keys).
var dangerousPromptPatterns = []string{
	"</text_to_analyze>",
	"<text_to_analyze>",
	"</entity_context>",
	"<entity_context>",
	"</known_relationships>",
	"<known_relationships>",
	"</output_format>",
	"<output_format>",
	"ignore previous instructions",
	"ignore all previous",
	"disregard the above",
	"forget everything",
	"<script",
	"__proto__",
	"system:",
	"assistant:",
}

// sanitizePromptInput truncates oversize fields and filters substrings that
// look like an attempt to break out of the prompt's delimited sections.
func sanitizePromptInput(input string) string {
	if len(input) > maxPromptInputLength {
		input = input[:maxPromptInputLength] + "..."
	}
	lower := strings.ToLower(input)
	for _, pattern := range dangerousPromptPatterns {
		if strings.Contains(lower, pattern) {
			input = replaceAllFold(input, pattern, "[filtered]")
			lower = strings.ToLower(input)
		}
	}
	return input
}

// replaceAllFold replaces every case-insensitive occurrence of old in s.
func replaceAllFold(s, old, replacement string) string {
	lower := strings.ToLower(s)
	oldLower := strings.ToLower(old)
	var b strings.Builder
	i := 0
	for {
		idx := strings.Index(lower[i:], oldLower)
		if idx == -1 {
			b.WriteString(s[i:])
			break
		}
		start := i + idx
		b.WriteString(s[i:start])
		b.WriteString(replacement)
		i = start + len(old)
	}
	return b.String()
}
