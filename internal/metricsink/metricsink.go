// Package metricsink defines the metrics-sink seam from spec §6 and
// ships two implementations: a no-op default and an optional
// Redis-backed persistence layer.
//
// The Redis-backed sink is grounded directly on internal/vault/vault.go
// in the source repo: same constructor shape (New/NewWithClient), same
// pipeline-then-expire write pattern, same use of
// github.com/redis/go-redis/v9 and github.com/alicebob/miniredis/v2 in
// tests.
package metricsink

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Well-known metric names the core emits, per spec §6.
const (
	MetricDetectDuration     = "detect.duration_ms"
	MetricHitsDetected       = "accuracy.hits_detected"
	MetricRulesEvaluated     = "contextual.rules_evaluated"
	MetricRulesApplied       = "contextual.rules_applied"
	MetricRuleHitPrefix      = "contextual.rule_hits"
	MetricStreamClosed       = "jsonrpc.stream_closed"
	MetricLineBufferOverflow = "jsonrpc.line_buffer_overflow"
	MetricJSONParseFailed    = "json.parse_failed"
	MetricPluginConflict     = "registry.plugin_conflict"
)

// Sink is the single interface the core depends on for metrics.
type Sink interface {
	Record(name string, value float64, labels map[string]string)
}

// NoOp is the default sink: every call is a no-op, per spec §6.
type NoOp struct{}

// Record implements Sink.
func (NoOp) Record(string, float64, map[string]string) {}

// RedisSink persists counters into Redis hashes, one hash per
// metric name, with per-label-combination fields and a rolling TTL —
// the same shape as vault.Vault's session mappings.
type RedisSink struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

const defaultSinkTTL = 24 * time.Hour

// NewRedisSink creates a RedisSink connected to addr.
func NewRedisSink(addr, password string, db int) *RedisSink {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	return &RedisSink{client: client, ttl: defaultSinkTTL, prefix: "sentinel:metrics:"}
}

// NewRedisSinkWithClient builds a RedisSink from an existing client,
// for tests (miniredis) or shared connection pools.
func NewRedisSinkWithClient(client *redis.Client) *RedisSink {
	return &RedisSink{client: client, ttl: defaultSinkTTL, prefix: "sentinel:metrics:"}
}

// SetTTL overrides the default TTL applied to each metric hash.
func (s *RedisSink) SetTTL(ttl time.Duration) { s.ttl = ttl }

func (s *RedisSink) key(name string) string { return s.prefix + name }

// Record increments a metric's field by value, keyed by a stable
// serialization of labels, and refreshes the hash's TTL.
func (s *RedisSink) Record(name string, value float64, labels map[string]string) {
	ctx := context.Background()
	field := labelKey(labels)
	key := s.key(name)

	pipe := s.client.Pipeline()
	pipe.HIncrByFloat(ctx, key, field, value)
	pipe.Expire(ctx, key, s.ttl)
	// Errors here are deliberately swallowed: metrics are best-effort
	// and must never fail a detect()/redact() call (spec §7: recoverable
	// events are surfaced via the sink, never by failing the caller).
	_, _ = pipe.Exec(ctx)
}

// Snapshot reads back all recorded fields for a metric name, for tests
// and operational inspection.
func (s *RedisSink) Snapshot(ctx context.Context, name string) (map[string]string, error) {
	return s.client.HGetAll(ctx, s.key(name)).Result()
}

// Close shuts down the underlying Redis client.
func (s *RedisSink) Close() error { return s.client.Close() }

func labelKey(labels map[string]string) string {
	if len(labels) == 0 {
		return "_"
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s;", k, labels[k])
	}
	return b.String()
}
