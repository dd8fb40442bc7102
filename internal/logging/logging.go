// Package logging configures structured JSON logging and defines the
// audit-event shape the Registry and streaming transform emit
// recoverable events through. Recoverable events (ValidationFailed,
// JsonParseFailed, LineBufferOverflow, PluginRegistrationConflict) are
// surfaced through reasons and the metrics sink AND logged at
// Debug/Warn through an injected *slog.Logger — the core never writes
// directly to stdout/stderr itself (per spec §7), an injectable writer
// is how a caller opts into seeing them.
//
// Kept close to the teacher's internal/logging/logging.go (Setup's
// level-string-to-slog.Level mapping, injectable writer), with
// AuditEvent generalized from HTTP-request auditing (role/path/method)
// to detect/redact-call auditing (call id, PII categories, risk score).
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// Setup initializes structured JSON logging at the given level, writing
// to w. Passing a nil w is a programmer error in this package (its
// caller, cmd/sentinel, passes os.Stderr);
// unlike the teacher's version this does not fall back to os.Stdout,
// since a library should never choose a caller's process-wide default
// logger.
func Setup(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}

// AuditEvent is a structured record of one detect()/redact() call or
// one recoverable pipeline event.
type AuditEvent struct {
	Action     string   // "detect", "redact", "jsonrpc_line", "plugin_register"
	CallID     string
	PIICount   int
	Categories []string
	RiskScore  float64
	Warning    string // set for recoverable events (ValidationFailed, JsonParseFailed, ...)
}

// Log writes the event to logger at Info level, or Warn if Warning is set.
func (e AuditEvent) Log(logger *slog.Logger) {
	attrs := []slog.Attr{
		slog.String("action", e.Action),
		slog.String("call_id", e.CallID),
	}
	if e.PIICount > 0 {
		attrs = append(attrs, slog.Int("pii_count", e.PIICount))
	}
	if len(e.Categories) > 0 {
		attrs = append(attrs, slog.String("categories", strings.Join(e.Categories, ",")))
	}
	if e.RiskScore > 0 {
		attrs = append(attrs, slog.Float64("risk_score", e.RiskScore))
	}

	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}

	if e.Warning != "" {
		logger.Warn(e.Warning, args...)
		return
	}
	logger.Info("audit", args...)
}
