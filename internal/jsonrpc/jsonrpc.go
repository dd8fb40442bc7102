// Package jsonrpc implements the line-delimited JSON-RPC streaming
// redaction transform from spec §4.J: a BUFFER state machine over a byte
// stream that deep-redacts params/result/error.data while preserving
// envelope fields, with plain-text fallback for non-JSON-RPC or
// malformed lines.
//
// Grounded on internal/proxy/streaming.go's sseRehydrator: a
// bufio.Scanner wrapped around the input stream, one line of work per
// Scan, with output accumulated in a buffer and drained on Read. This
// generalizes that shape from SSE token rehydration (string-replace
// against a fixed token map) to per-line JSON-RPC envelope detection and
// a full detect/redact pass over payload string leaves. Per-stream
// correlation ids use github.com/google/uuid, following the SPEC_FULL
// domain-stack decision to give every stream a stable identifier for
// audit logging independent of any individual message's "id" field.
package jsonrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/vura/sentinel/internal/metricsink"
)

// DefaultLineBufferSize is the default per-line buffer cap in bytes.
const DefaultLineBufferSize = 1 << 20 // 1 MiB

// MessageType classifies a JSON-RPC envelope.
type MessageType string

const (
	MessageRequest      MessageType = "request"
	MessageNotification MessageType = "notification"
	MessageResponse     MessageType = "response"
	MessageError        MessageType = "error"
	MessagePlainText    MessageType = "plain_text"
)

// Redactor is the subset of registry.Registry the transform depends on,
// kept narrow so tests can supply a fake without constructing a full
// Registry.
type Redactor interface {
	RedactText(ctx context.Context, text string) (string, error)
}

// Transform reads newline-delimited JSON-RPC (or plain-text) lines from
// a source, redacts each one, and writes the result plus '\n' to a
// destination. One Transform handles one stream; construct a new one
// per connection.
type Transform struct {
	redactor   Redactor
	sink       metricsink.Sink
	logger     *slog.Logger
	bufferSize int
	streamID   string
}

// Option configures a Transform at construction time.
type Option func(*Transform)

// WithLineBufferSize overrides DefaultLineBufferSize.
func WithLineBufferSize(n int) Option {
	return func(t *Transform) {
		if n > 0 {
			t.bufferSize = n
		}
	}
}

// WithMetricSink attaches a metrics sink for line-overflow events and
// for lines whose redaction fails (recorded as MetricJSONParseFailed with
// a reason label), per spec §6/§7. Malformed or non-JSON-RPC lines fall
// back to plain-text redaction and record nothing.
func WithMetricSink(s metricsink.Sink) Option {
	return func(t *Transform) {
		if s != nil {
			t.sink = s
		}
	}
}

// WithLogger attaches a logger that the same events (line overflow,
// failed redaction) are logged to at Warn, in addition to the metrics
// sink, per SPEC_FULL §9. Left nil to skip logging.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transform) {
		t.logger = logger
	}
}

// New constructs a Transform bound to redactor. A fresh UUID identifies
// this stream for audit correlation.
func New(redactor Redactor, opts ...Option) *Transform {
	t := &Transform{
		redactor:   redactor,
		sink:       metricsink.NoOp{},
		bufferSize: DefaultLineBufferSize,
		streamID:   uuid.NewString(),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// StreamID returns the correlation id generated for this Transform.
func (t *Transform) StreamID() string { return t.streamID }

// lineResult is the outcome of processing one line, used both for the
// normal path and the buffer-overflow partial-emit path.
type lineResult struct {
	redacted string
	msgType  MessageType
	warning  string
}

// Run drains src line by line, redacting each, and writes the result to
// dst. It honors ctx cancellation between lines: any bytes already
// buffered for a not-yet-complete line are flushed through a final
// redaction pass before returning, per spec §4.J's cooperative-close
// requirement. A line exceeding the configured buffer size is truncated
// to that size, redacted, and emitted with a warning rather than
// dropped — the transform never drops a line or reorders lines. Run
// returns when src is exhausted, ctx is done, or a write to dst fails.
func (t *Transform) Run(ctx context.Context, src io.Reader, dst io.Writer) error {
	lr := newLineReader(src, t.bufferSize)

	lineNo := 0
	for {
		select {
		case <-ctx.Done():
			if partial := lr.buffered(); len(partial) > 0 {
				lineNo++
				result := t.processLine(partial)
				result.warning = "stream_cancelled_partial_flush"
				if err := t.emit(dst, result); err != nil {
					return err
				}
			}
			return nil
		default:
		}

		line, overflowed, err := lr.readLine()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		lineNo++

		result := t.processLine(line)
		if overflowed {
			result.warning = "line_buffer_overflow"
			t.sink.Record(metricsink.MetricLineBufferOverflow, 1, map[string]string{"stream": t.streamID})
			if t.logger != nil {
				t.logger.Warn("jsonrpc: line exceeds buffer size, emitted truncated partial line",
					"stream", t.streamID, "line", lineNo, "buffer_size", t.bufferSize)
			}
		} else if result.warning != "" {
			t.sink.Record(metricsink.MetricJSONParseFailed, 1, map[string]string{"stream": t.streamID, "reason": result.warning})
			if t.logger != nil {
				t.logger.Warn("jsonrpc: "+result.warning, "stream", t.streamID, "line", lineNo)
			}
		}

		if err := t.emit(dst, result); err != nil {
			return err
		}
	}
}

func (t *Transform) emit(dst io.Writer, result lineResult) error {
	if _, err := io.WriteString(dst, result.redacted); err != nil {
		return err
	}
	_, err := io.WriteString(dst, "\n")
	return err
}

// lineReader reads newline-delimited lines from src with a bounded
// per-line size. Unlike bufio.Scanner, which discards the oversized
// token entirely on bufio.ErrTooLong, it returns the bytes already read
// up to the cap so the caller can still emit a (truncated) redacted
// line instead of dropping it, then resumes cleanly at the next line.
type lineReader struct {
	r       *bufio.Reader
	maxSize int
}

func newLineReader(src io.Reader, maxSize int) *lineReader {
	return &lineReader{r: bufio.NewReaderSize(src, 4096), maxSize: maxSize}
}

// readLine returns the next line, without its trailing newline. When a
// line exceeds maxSize, the returned bytes are truncated to maxSize and
// overflowed is true; the remaining bytes of that line, up to and
// including the newline, are discarded so the next call starts cleanly
// at the following line.
func (lr *lineReader) readLine() (line []byte, overflowed bool, err error) {
	var buf []byte
	discarding := false
	for {
		chunk, rerr := lr.r.ReadSlice('\n')
		hasNL := len(chunk) > 0 && chunk[len(chunk)-1] == '\n'
		body := chunk
		if hasNL {
			body = chunk[:len(chunk)-1]
		}

		if !discarding {
			if len(buf)+len(body) > lr.maxSize {
				if room := lr.maxSize - len(buf); room > 0 {
					buf = append(buf, body[:room]...)
				}
				overflowed = true
				discarding = true
			} else {
				buf = append(buf, body...)
			}
		}

		if hasNL {
			return buf, overflowed, nil
		}
		if rerr != nil {
			if rerr == bufio.ErrBufferFull {
				continue
			}
			if rerr == io.EOF {
				if len(buf) > 0 || overflowed {
					return buf, overflowed, nil
				}
				return nil, false, io.EOF
			}
			return buf, overflowed, rerr
		}
	}
}

// buffered returns bytes already read from src but not yet consumed as
// part of a complete line, without consuming them.
func (lr *lineReader) buffered() []byte {
	n := lr.r.Buffered()
	if n == 0 {
		return nil
	}
	b, _ := lr.r.Peek(n)
	return b
}

// processLine redacts one line, preserving JSON-RPC envelope fields when
// the line is a valid envelope and falling back to whole-line plain-text
// redaction otherwise.
func (t *Transform) processLine(line []byte) lineResult {
	ctx := context.Background()

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(line, &envelope); err != nil {
		return t.redactPlainText(ctx, string(line))
	}
	if !isValidJSONRPCMessage(envelope) {
		return t.redactPlainText(ctx, string(line))
	}

	msgType := getMessageType(envelope)

	redactedEnvelope := make(map[string]json.RawMessage, len(envelope))
	for k, v := range envelope {
		redactedEnvelope[k] = v
	}

	for _, field := range []string{"params", "result"} {
		raw, ok := envelope[field]
		if !ok {
			continue
		}
		redacted, err := t.redactJSONSubtree(ctx, raw)
		if err != nil {
			return t.redactPlainText(ctx, string(line))
		}
		redactedEnvelope[field] = redacted
	}

	if rawErr, ok := envelope["error"]; ok {
		redactedErr, err := t.redactErrorObject(ctx, rawErr)
		if err != nil {
			return t.redactPlainText(ctx, string(line))
		}
		redactedEnvelope["error"] = redactedErr
	}

	out, err := json.Marshal(redactedEnvelope)
	if err != nil {
		return t.redactPlainText(ctx, string(line))
	}
	return lineResult{redacted: string(out), msgType: msgType}
}

// redactErrorObject redacts only the error object's "data" field,
// preserving code/message verbatim, per spec §4.J.
func (t *Transform) redactErrorObject(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var errObj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &errObj); err != nil {
		return raw, err
	}
	data, ok := errObj["data"]
	if !ok {
		return raw, nil
	}
	redactedData, err := t.redactJSONSubtree(ctx, data)
	if err != nil {
		return raw, err
	}
	errObj["data"] = redactedData
	return json.Marshal(errObj)
}

// redactJSONSubtree parses raw as an arbitrary JSON value, runs every
// string leaf through the redactor, and re-serializes. Non-string
// scalars and the tree shape are preserved.
func (t *Transform) redactJSONSubtree(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw, err
	}
	redacted, err := t.redactValue(ctx, v)
	if err != nil {
		return raw, err
	}
	return json.Marshal(redacted)
}

func (t *Transform) redactValue(ctx context.Context, v any) (any, error) {
	switch x := v.(type) {
	case string:
		return t.redactor.RedactText(ctx, x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, child := range x {
			r, err := t.redactValue(ctx, child)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, child := range x {
			r, err := t.redactValue(ctx, child)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return x, nil
	}
}

// redactPlainText runs the whole line through the redactor as free-form
// text, the fallback path for non-JSON-RPC or malformed lines.
func (t *Transform) redactPlainText(ctx context.Context, line string) lineResult {
	redacted, err := t.redactor.RedactText(ctx, line)
	if err != nil {
		// RedactText only fails on fatal config errors (e.g. tokenize
		// without a key); there is nothing locally recoverable left to do
		// but emit the line unredacted with a warning, rather than drop it
		// (spec §4.J: "the transform never drops a line").
		return lineResult{redacted: line, msgType: MessagePlainText, warning: "redact_failed:" + err.Error()}
	}
	return lineResult{redacted: redacted, msgType: MessagePlainText}
}

// isValidJSONRPCMessage reports whether envelope has jsonrpc == "2.0"
// and at least one of method/result/error, per spec §4.J.
func isValidJSONRPCMessage(envelope map[string]json.RawMessage) bool {
	raw, ok := envelope["jsonrpc"]
	if !ok {
		return false
	}
	var version string
	if err := json.Unmarshal(raw, &version); err != nil || version != "2.0" {
		return false
	}
	_, hasMethod := envelope["method"]
	_, hasResult := envelope["result"]
	_, hasError := envelope["error"]
	return hasMethod || hasResult || hasError
}

// getMessageType classifies a validated JSON-RPC envelope.
func getMessageType(envelope map[string]json.RawMessage) MessageType {
	_, hasID := envelope["id"]
	_, hasMethod := envelope["method"]
	_, hasResult := envelope["result"]
	_, hasError := envelope["error"]

	switch {
	case hasError:
		return MessageError
	case hasResult:
		return MessageResponse
	case hasMethod && hasID:
		return MessageRequest
	case hasMethod:
		return MessageNotification
	default:
		return MessagePlainText
	}
}
