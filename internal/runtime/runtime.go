// Package runtime implements the detector runtime from spec §4.F:
// priority-ordered detector execution under a pattern-match budget,
// deduplication, and overlap resolution.
//
// Grounded on internal/detector/detector.go's Scan/sortByPosDesc/
// removeOverlaps (insertion-sort by start, drop-on-overlap), generalized
// from a single fixed pattern list processed once into a registry of
// pluggable Detector values sorted by priority, and from "first hit on
// exact overlap wins" to the spec's full (priority, start, -length)
// ordering. Per-type hit counters use go.uber.org/atomic, following the
// SPEC_FULL domain-stack decision to swap the teacher's raw
// sync/atomic.Int64 field for the typed wrapper used elsewhere in the
// retrieved pack.
package runtime

import (
	"sort"

	"go.uber.org/atomic"

	"github.com/vura/sentinel/pkg/piitypes"
)

// DefaultMaxMatches is the per-call pattern-match cap from spec §5.
const DefaultMaxMatches = 200

// Runtime runs a sorted set of detectors against bounded input.
type Runtime struct {
	detectors  []piitypes.Detector
	maxMatches int
	counters   map[piitypes.PIIType]*atomic.Int64
}

// New builds a Runtime from an unsorted detector slice; detectors are
// sorted ascending by priority, ties broken by registration order.
func New(detectors []piitypes.Detector, maxMatches int) *Runtime {
	if maxMatches <= 0 {
		maxMatches = DefaultMaxMatches
	}
	sorted := make([]piitypes.Detector, len(detectors))
	copy(sorted, detectors)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})
	return &Runtime{
		detectors:  sorted,
		maxMatches: maxMatches,
		counters:   make(map[piitypes.PIIType]*atomic.Int64),
	}
}

// CounterFor returns the running hit count for a PII type, creating it
// on first use.
func (r *Runtime) CounterFor(t piitypes.PIIType) *atomic.Int64 {
	if c, ok := r.counters[t]; ok {
		return c
	}
	c := atomic.NewInt64(0)
	r.counters[t] = c
	return c
}

// Run executes every registered detector in priority order against text,
// respecting the cancel signal (checked between detectors) and the
// per-call match budget. It returns deduplicated raw hits; validation,
// scoring, and filtering happen in later stages.
func (r *Runtime) Run(text string, hints map[string]struct{}, cancel <-chan struct{}) []piitypes.Hit {
	runes := []rune(text)
	pushed := atomic.NewInt64(0)
	canPush := func() bool { return pushed.Load() < int64(r.maxMatches) }

	var collected []piitypes.Hit
	seen := make(map[seenKey]bool)

	for _, d := range r.detectors {
		select {
		case <-cancel:
			return dedupAndCount(collected, r)
		default:
		}
		if !canPush() {
			break
		}

		push := func(h piitypes.Hit) bool {
			if !canPush() {
				return false
			}
			key := seenKey{h.Type, h.Span.Start, h.Span.End}
			if seen[key] {
				return canPush()
			}
			seen[key] = true
			if h.Priority == 0 {
				h.Priority = d.Priority()
			}
			collected = append(collected, h)
			pushed.Inc()
			return canPush()
		}

		ctx := &piitypes.MatchContext{
			Text:         text,
			Runes:        runes,
			ContextHints: hints,
			Push:         push,
			CanPush:      canPush,
		}
		d.Match(ctx)
	}

	return dedupAndCount(collected, r)
}

type seenKey struct {
	t     piitypes.PIIType
	start int
	end   int
}

func dedupAndCount(hits []piitypes.Hit, r *Runtime) []piitypes.Hit {
	for _, h := range hits {
		r.CounterFor(h.Type).Inc()
	}
	return hits
}

// ResolveOverlaps implements spec §4.F step 8: sort by (priority asc,
// start asc, -length), then greedily keep hits that don't intersect an
// already-kept hit.
func ResolveOverlaps(hits []piitypes.Hit) []piitypes.Hit {
	ordered := make([]piitypes.Hit, len(hits))
	copy(ordered, hits)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.Span.Start != b.Span.Start {
			return a.Span.Start < b.Span.Start
		}
		return a.Span.Len() > b.Span.Len()
	})

	var kept []piitypes.Hit
	for _, h := range ordered {
		overlaps := false
		for _, k := range kept {
			if h.Span.Overlaps(k.Span) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, h)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Span.Start < kept[j].Span.Start })
	return kept
}
