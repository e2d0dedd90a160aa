// Package observability provides structured logging and log-sanitization
// helpers for the extraction worker.
package observability

import (
	"encoding/json"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogging configures the global logger based on the provided settings.
func SetupLogging(level, format string, output io.Writer) {
	// Parse log level
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	// Configure time format
	zerolog.TimeFieldFormat = time.RFC3339

	// Set output format
	if format == "console" || format == "text" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: "15:04:05",
		}
	}

	// Set global logger
	log.Logger = zerolog.New(output).With().Timestamp().Caller().Logger()
}

// Logger returns a contextualized logger for a component.
func Logger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// WithRequestID adds request ID to logger context.
func WithRequestID(logger zerolog.Logger, requestID string) zerolog.Logger {
	return logger.With().Str("request_id", requestID).Logger()
}

// Event types for structured logging
const (
	EventJobStarted       = "job_started"
	EventJobCompleted     = "job_completed"
	EventJobFailed        = "job_failed"
	EventLLMRetry         = "llm_retry"
	EventLLMCallFailed    = "llm_call_failed"
	EventRaceDetected     = "checkcreate_race_detected"
	EventRaceLost         = "checkcreate_lost_race"
	EventLookupFailed     = "checkcreate_lookup_failed"
	EventDeleteFailed     = "checkcreate_delete_failed"
	EventBatchPosted      = "update_batch_posted"
	EventBatchFailed      = "update_batch_failed"
	EventOpDropped        = "parser_op_dropped"
	EventHealthCheck      = "health_check"
)

// LogEvent logs a structured event.
func LogEvent(logger zerolog.Logger, event string, fields map[string]interface{}) {
	e := logger.Info().Str("event", event)
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	e.Msg("")
}

// LogError logs an error with context.
func LogError(logger zerolog.Logger, err error, message string, fields map[string]interface{}) {
	e := logger.Error().Err(err)
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	e.Msg(message)
}

// SanitizeForLog removes sensitive data from a map before logging.
func SanitizeForLog(data map[string]interface{}) map[string]interface{} {
	sanitized := make(map[string]interface{})
	sensitiveKeys := map[string]bool{
		"password":     true,
		"secret":       true,
		"token":        true,
		"api_key":      true,
		"apikey":       true,
		"access_token": true,
		"private_key":  true,
		"credentials":  true,
	}

	for k, v := range data {
		if sensitiveKeys[k] {
			sanitized[k] = "[REDACTED]"
		} else {
			sanitized[k] = v
		}
	}

	return sanitized
}

// maxLoggedBodyBytes bounds how much of an external HTTP payload is kept in
// a log line once sanitized.
const maxLoggedBodyBytes = 2048

// SanitizeBody prepares a raw external HTTP response body for logging: when
// the body is a JSON object, it is decoded and passed through
// SanitizeForLog so credential-shaped fields (api_key, token, ...) are
// redacted before the payload ever reaches a log line; otherwise a
// truncated raw string is returned, since non-JSON bodies from the graph
// service and LLM providers are not expected to carry structured secrets.
func SanitizeBody(raw string) interface{} {
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
		return SanitizeForLog(parsed)
	}
	if len(raw) > maxLoggedBodyBytes {
		return raw[:maxLoggedBodyBytes] + "...(truncated)"
	}
	return raw
}
