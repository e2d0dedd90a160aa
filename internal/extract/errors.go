package extract

import (
	"errors"
	"fmt"
)

// Invalid input errors (orchestrator, fatal, no retries)
var (
	// ErrMissingTargetEntity is returned when a job request has no target.
	ErrMissingTargetEntity = errors.New("job request is missing target_entity")

	// ErrTextTooShort is returned when the resolved chunk text is under the
	// minimum length the extractor is willing to process.
	ErrTextTooShort = errors.New("chunk text is shorter than the minimum extraction length")

	// ErrTextTooLarge is returned when the resolved chunk text exceeds the
	// maximum size this worker will send to an LLM.
	ErrTextTooLarge = errors.New("chunk text exceeds the maximum extraction size")

	// ErrNoExtractableText is returned when neither properties.text,
	// properties.content, nor the content endpoint yield any text.
	ErrNoExtractableText = errors.New("target entity has no extractable text")
)

// LLM client errors
var (
	// ErrLLMTransient wraps a retryable LLM failure (429, 5xx, timeout,
	// network error) after retries are exhausted.
	ErrLLMTransient = errors.New("LLM call failed after exhausting retries")

	// ErrLLMNonRetryable wraps a fatal LLM failure (4xx other than 429).
	ErrLLMNonRetryable = errors.New("LLM call failed with a non-retryable response")
)

// Parser errors
var (
	// ErrInvalidLLMResponse is returned when the LLM's content cannot be
	// parsed as JSON at all.
	ErrInvalidLLMResponse = errors.New("LLM response is not valid JSON")
)

// Check-create errors
var (
	// ErrCheckCreateLookupFailed signals a lookup call failed; the protocol
	// treats this as "not found" and proceeds, but the error is surfaced
	// for logging.
	ErrCheckCreateLookupFailed = errors.New("check-create lookup failed")

	// ErrCheckCreateFailed is returned when the create step itself fails;
	// this is fatal to the job.
	ErrCheckCreateFailed = errors.New("check-create entity creation failed")
)

// Graph client errors
var (
	ErrGraphRequestFailed = errors.New("graph service request failed")
	ErrEntityNotFound     = errors.New("entity not found")
)

// GraphHTTPError carries the status and body of a non-2xx graph service
// response. The body is kept as a separate field rather than folded into
// Error()'s text, so callers can redact it (observability.SanitizeBody)
// before it reaches a log line instead of logging it raw.
type GraphHTTPError struct {
	StatusCode int
	Body       string
}

func (e *GraphHTTPError) Error() string {
	return fmt.Sprintf("graph service HTTP %d", e.StatusCode)
}

func (e *GraphHTTPError) Unwrap() error { return ErrGraphRequestFailed }

// ResponseBody extracts the raw HTTP response body embedded in an LLM or
// graph-service error, if err carries one. Callers should pass the result
// through observability.SanitizeBody before logging it.
func ResponseBody(err error) (string, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Body, true
	}
	var graphErr *GraphHTTPError
	if errors.As(err, &graphErr) {
		return graphErr.Body, true
	}
	return "", false
}

// retryable collects the sentinel errors that represent transient,
// retryable conditions anywhere in the pipeline.
var retryable = []error{
	ErrLLMTransient,
	ErrCheckCreateLookupFailed,
}

// IsRetryable reports whether err represents a known transient condition.
func IsRetryable(err error) bool {
	for _, r := range retryable {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}

// JobError is the `{code, message}` shape surfaced in the host's log entry
// per spec §7.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *JobError) Error() string {
	return e.Code + ": " + e.Message
}

// NewJobError wraps an internal error into the host-visible shape.
func NewJobError(code, message string) *JobError {
	return &JobError{Code: code, Message: message}
}
