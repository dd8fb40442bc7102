// Package registry implements the Registry from spec §4.G: constructor
// validation, plugin registration, and the detect()/redactText()
// entrypoints that wire together every other component in dependency
// order (runtime -> jsondetect -> validate -> score -> allowdeny ->
// overlap resolution -> redact).
//
// Grounded on internal/detector/detector.go's New/NewWithConfig
// construction style and internal/guardrail/guardrail.go's New(policy)
// (compile custom rules at construction time, skip invalid ones rather
// than failing the whole construction) for plugin merge semantics.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vura/sentinel/internal/allowdeny"
	"github.com/vura/sentinel/internal/codec"
	"github.com/vura/sentinel/internal/contextan"
	"github.com/vura/sentinel/internal/detectors"
	"github.com/vura/sentinel/internal/jsondetect"
	"github.com/vura/sentinel/internal/metricsink"
	"github.com/vura/sentinel/internal/piierr"
	"github.com/vura/sentinel/internal/redact"
	"github.com/vura/sentinel/internal/runtime"
	"github.com/vura/sentinel/internal/score"
	"github.com/vura/sentinel/internal/validate"
	"github.com/vura/sentinel/pkg/piitypes"
)

// MaxInputBytes is the default input size cap from spec §3/§5.
const MaxInputBytes = 16 * 1024 * 1024

// Config is the full Registry configuration envelope from spec §3.
type Config struct {
	DefaultAction redact.Action
	Rules         map[piitypes.PIIType]redact.TypeRule
	HMACKey       []byte
	Environment   allowdeny.Environment

	ContextHints map[string]struct{}

	ValidationStrictness validate.Strictness
	Sensitivity          score.Sensitivity
	ConfidenceThreshold  *float64 // explicit override, nil = use sensitivity map

	EnableConfidenceScoring    bool
	EnableContextualConfidence bool
	ContextualSuppression      bool
	ContextualBoost            bool
	EnableJSONDetection        bool

	AllowDeny allowdeny.Config

	MaxInputBytes int
	MaxMatches    int
	MetricSink    metricsink.Sink

	// Logger, if set, receives recoverable pipeline events
	// (ValidationFailed, JsonParseFailed, PluginRegistrationConflict) at
	// Debug/Warn in
	// addition to their surfacing through hit reasons and MetricSink,
	// per SPEC_FULL §9. Left nil to skip logging.
	Logger *slog.Logger

	// CatalogOverride, if set, patches the shipped contextual rule
	// catalog at construction time (multiplier/offset/enabled overrides
	// loaded from an operator config file, per SPEC_FULL §10). Left nil
	// to use score.Catalog() verbatim.
	CatalogOverride func([]piitypes.Rule) []piitypes.Rule
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		DefaultAction:              redact.ActionMask,
		Environment:                allowdeny.EnvProduction,
		ValidationStrictness:       validate.StrictnessBalanced,
		Sensitivity:                score.SensitivityBalanced,
		EnableConfidenceScoring:    true,
		EnableContextualConfidence: false,
		ContextualSuppression:      true,
		ContextualBoost:            true,
		EnableJSONDetection:        false,
		MaxInputBytes:              MaxInputBytes,
		MaxMatches:                 runtime.DefaultMaxMatches,
		MetricSink:                 metricsink.NoOp{},
	}
}

func (c *Config) validate() error {
	switch c.DefaultAction {
	case redact.ActionMask, redact.ActionRemove, redact.ActionTokenize:
	default:
		return piierr.New(piierr.KindConfigInvalid, fmt.Sprintf("invalid default_action %q", c.DefaultAction))
	}
	switch c.Environment {
	case allowdeny.EnvProduction, allowdeny.EnvDevelopment, allowdeny.EnvTest:
	default:
		return piierr.New(piierr.KindConfigInvalid, fmt.Sprintf("invalid environment %q", c.Environment))
	}
	switch c.ValidationStrictness {
	case validate.StrictnessFast, validate.StrictnessBalanced, validate.StrictnessStrict, "":
	default:
		return piierr.New(piierr.KindConfigInvalid, fmt.Sprintf("invalid validation_strictness %q", c.ValidationStrictness))
	}
	switch c.Sensitivity {
	case score.SensitivityStrict, score.SensitivityBalanced, score.SensitivityRelaxed, "":
	default:
		return piierr.New(piierr.KindConfigInvalid, fmt.Sprintf("invalid sensitivity %q", c.Sensitivity))
	}

	needsTokenize := c.DefaultAction == redact.ActionTokenize
	for t, r := range c.Rules {
		switch r.Action {
		case redact.ActionMask, redact.ActionRemove, redact.ActionTokenize:
		default:
			return piierr.New(piierr.KindConfigInvalid, fmt.Sprintf("rule %s: invalid action %q", t, r.Action))
		}
		if r.Action == redact.ActionTokenize {
			needsTokenize = true
		}
	}
	if needsTokenize && !codec.ValidKeyLen(c.HMACKey) {
		return piierr.New(piierr.KindConfigInvalid,
			fmt.Sprintf("hmac_key must be at least %d bytes when tokenize is reachable", codec.MinHMACKeyLen))
	}
	if c.HMACKey != nil && len(c.HMACKey) > 0 && !codec.ValidKeyLen(c.HMACKey) {
		return piierr.New(piierr.KindConfigInvalid,
			fmt.Sprintf("hmac_key must be at least %d bytes", codec.MinHMACKeyLen))
	}
	return nil
}

// Plugin is the external contract from spec §6: a detector list and a
// type-to-masker map.
type Plugin struct {
	Detectors []piitypes.Detector
	Maskers   map[piitypes.PIIType]piitypes.Masker
}

// Hit is an alias kept for package-external readability; identical to
// piitypes.Hit.
type Hit = piitypes.Hit

// DetectionResult is the output of Registry.Detect.
type DetectionResult struct {
	Src  string
	Hits []Hit
}

// Registry owns detectors, maskers, configuration, and the allow/deny
// filter. Safe for concurrent Detect/RedactText calls as long as no
// Use/SetPolicy call is in flight, per spec §5.
type Registry struct {
	cfg         Config
	detectors   []piitypes.Detector
	maskers     map[piitypes.PIIType]piitypes.Masker
	catalog     []piitypes.Rule
	sink        metricsink.Sink
	logger      *slog.Logger
	detectorIDs map[string]bool
}

// New validates cfg and constructs a Registry with the baseline
// detector set and default maskers registered.
func New(cfg Config) (*Registry, error) {
	if cfg.MaxInputBytes <= 0 {
		cfg.MaxInputBytes = MaxInputBytes
	}
	if cfg.MaxMatches <= 0 {
		cfg.MaxMatches = runtime.DefaultMaxMatches
	}
	if cfg.MetricSink == nil {
		cfg.MetricSink = metricsink.NoOp{}
	}
	if cfg.ContextHints == nil {
		cfg.ContextHints = map[string]struct{}{}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	catalog := score.Catalog()
	if cfg.CatalogOverride != nil {
		catalog = cfg.CatalogOverride(catalog)
	}

	r := &Registry{
		cfg:         cfg,
		detectors:   append([]piitypes.Detector{}, detectors.Baseline()...),
		maskers:     defaultMaskers(),
		catalog:     catalog,
		sink:        cfg.MetricSink,
		logger:      cfg.Logger,
		detectorIDs: map[string]bool{},
	}
	for _, d := range r.detectors {
		r.detectorIDs[d.ID()] = true
	}
	return r, nil
}

func defaultMaskers() map[piitypes.PIIType]piitypes.Masker {
	return map[piitypes.PIIType]piitypes.Masker{
		piitypes.TypePhoneE164: redact.PhoneMasker,
		piitypes.TypePostalJP:  redact.PostalJPMasker,
	}
}

// Use registers a plugin's detectors and maskers. Detector id
// collisions replace the prior entry (last registration wins) and emit
// a PluginRegistrationConflict warning via the metric sink, per spec §6.
func (r *Registry) Use(p Plugin) {
	for _, d := range p.Detectors {
		if r.detectorIDs[d.ID()] {
			r.sink.Record(metricsink.MetricPluginConflict, 1, map[string]string{"detector_id": d.ID()})
			if r.logger != nil {
				r.logger.Warn("registry: plugin detector id conflict, replacing prior registration", "detector_id", d.ID())
			}
			r.replaceDetector(d)
			continue
		}
		r.detectorIDs[d.ID()] = true
		r.detectors = append(r.detectors, d)
	}
	for t, m := range p.Maskers {
		r.maskers[t] = m
	}
}

func (r *Registry) replaceDetector(d piitypes.Detector) {
	for i, existing := range r.detectors {
		if existing.ID() == d.ID() {
			r.detectors[i] = d
			return
		}
	}
}

// SetPolicy returns a new Registry with cfg applied in place of the
// receiver's configuration, keeping registered detectors and maskers.
// Returning a new value (rather than mutating in place) is the Open
// Question decision recorded in SPEC_FULL.md §12.2.
func (r *Registry) SetPolicy(cfg Config) (*Registry, error) {
	if cfg.MetricSink == nil {
		cfg.MetricSink = r.cfg.MetricSink
	}
	if cfg.Logger == nil {
		cfg.Logger = r.cfg.Logger
	}
	if cfg.ContextHints == nil {
		cfg.ContextHints = r.cfg.ContextHints
	}
	if cfg.MaxInputBytes <= 0 {
		cfg.MaxInputBytes = r.cfg.MaxInputBytes
	}
	if cfg.MaxMatches <= 0 {
		cfg.MaxMatches = r.cfg.MaxMatches
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	next := &Registry{
		cfg:         cfg,
		detectors:   append([]piitypes.Detector{}, r.detectors...),
		maskers:     copyMaskers(r.maskers),
		catalog:     r.catalog,
		sink:        cfg.MetricSink,
		logger:      cfg.Logger,
		detectorIDs: copyDetectorIDs(r.detectorIDs),
	}
	return next, nil
}

func copyMaskers(m map[piitypes.PIIType]piitypes.Masker) map[piitypes.PIIType]piitypes.Masker {
	out := make(map[piitypes.PIIType]piitypes.Masker, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyDetectorIDs(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Detect runs the full pipeline (runtime -> jsondetect -> validate ->
// score -> allowdeny -> overlap resolution) and returns ordered,
// non-overlapping hits.
func (r *Registry) Detect(ctx context.Context, text string) (*DetectionResult, error) {
	start := time.Now()
	if len(text) > r.cfg.MaxInputBytes {
		return nil, piierr.New(piierr.KindInputTooLarge,
			fmt.Sprintf("input is %d bytes, exceeds cap of %d", len(text), r.cfg.MaxInputBytes))
	}

	rt := runtime.New(r.detectors, r.cfg.MaxMatches)
	var cancelCh <-chan struct{}
	if ctx != nil {
		cancelCh = ctx.Done()
	}

	rawHits := rt.Run(text, r.cfg.ContextHints, cancelCh)

	if r.cfg.EnableJSONDetection && jsondetect.LooksLikeJSON(text) {
		jsonHits := r.runJSONDetection(text, rt, cancelCh)
		rawHits = append(rawHits, jsonHits...)
	}

	filter := allowdeny.New(r.cfg.AllowDeny, r.cfg.Environment)
	threshold := r.effectiveThreshold()

	var kept []piitypes.Hit
	for _, h := range rawHits {
		h := h
		if !r.validateHit(&h) {
			continue
		}
		if r.cfg.EnableConfidenceScoring {
			r.scoreHit(&h, text)
		}
		if h.HasConfidence && h.Confidence < threshold {
			continue
		}
		if filter.Allowed(h) {
			continue
		}
		kept = append(kept, h)
	}

	resolved := runtime.ResolveOverlaps(kept)

	r.sink.Record(metricsink.MetricDetectDuration, float64(time.Since(start).Milliseconds()), nil)
	r.sink.Record(metricsink.MetricHitsDetected, float64(len(resolved)), nil)

	return &DetectionResult{Src: text, Hits: resolved}, nil
}

// runJSONDetection walks the parsed document and produces hits for
// key-name matches plus text-detection over each string leaf, per spec
// §4.I.
func (r *Registry) runJSONDetection(text string, rt *runtime.Runtime, cancel <-chan struct{}) []piitypes.Hit {
	result := jsondetect.Walk(text)
	if result.FallbackToText {
		r.sink.Record(metricsink.MetricJSONParseFailed, 1, nil)
		if r.logger != nil {
			r.logger.Debug("registry: json parse failed, falling back to text detection")
		}
		return nil
	}

	var hits []piitypes.Hit
	for _, leaf := range result.Leaves {
		if leaf.HasKeyHint {
			hits = append(hits, piitypes.Hit{
				Type:       leaf.KeyImplies,
				Span:       findSpan(text, leaf.Value),
				Value:      leaf.Value,
				Confidence: 0.9,
				HasConfidence: true,
				Priority:   -5,
				Reasons:    []string{"json_key_match"},
				Features: piitypes.Features{
					JSONPath:        leaf.Path,
					KeyName:         leaf.Key,
					IsJSONDetection: true,
				},
			})
			continue
		}

		leafHits := rt.Run(leaf.Value, r.cfg.ContextHints, cancel)
		for _, h := range leafHits {
			h.Priority = -5
			h.AddReason("json_content_match")
			h.Features.JSONPath = leaf.Path
			h.Features.KeyName = leaf.Key
			h.Features.IsJSONDetection = true
			// Re-anchor the span, found within leaf.Value, back onto the
			// full document string for overlap resolution and the
			// applier's left-to-right rewrite.
			offset := findSpan(text, leaf.Value)
			h.Span.Start += offset.Start
			h.Span.End += offset.Start
			hits = append(hits, h)
		}
	}
	return hits
}

// findSpan locates the first occurrence of needle within text, returning
// its code-point span. Used to re-anchor hits discovered while scanning
// an extracted JSON string value back onto the original document.
func findSpan(text, needle string) piitypes.Span {
	idx := indexRune(text, needle)
	if idx < 0 {
		return piitypes.Span{}
	}
	return piitypes.Span{Start: idx, End: idx + piitypes.RuneLen(needle)}
}

func indexRune(text, needle string) int {
	runes := []rune(text)
	needleRunes := []rune(needle)
	if len(needleRunes) == 0 {
		return -1
	}
	for i := 0; i+len(needleRunes) <= len(runes); i++ {
		match := true
		for j := range needleRunes {
			if runes[i+j] != needleRunes[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func (r *Registry) validateHit(h *piitypes.Hit) bool {
	strictness := r.cfg.ValidationStrictness
	if strictness == "" {
		strictness = validate.StrictnessBalanced
	}

	var res validate.Result
	switch h.Type {
	case piitypes.TypeCreditCard:
		hasSeparators := containsAny(h.Value, " -")
		hasHint := hasCardContextHint(r.cfg.ContextHints)
		res = validate.CreditCard(h.Value, strictness, hasSeparators, hasHint)
	case piitypes.TypeEmail:
		res = validate.Email(h.Value, strictness)
	case piitypes.TypeIPv4:
		res = validate.IPv4(h.Value, strictness, r.cfg.AllowDeny.AllowPrivateIPs)
	case piitypes.TypePhoneE164:
		res = validate.PhoneE164(h.Value)
	default:
		return true // no validator registered for this type: pass through
	}

	if !res.Valid {
		if r.logger != nil {
			r.logger.Debug("registry: validation failed", "type", string(h.Type), "reason", res.Reason, "strictness", string(strictness))
		}
		if strictness == validate.StrictnessFast {
			h.AddReason("validation_failed:" + res.Reason)
			return true
		}
		return false
	}
	h.AddReason(res.Reason)
	if res.HasConfidence {
		h.Confidence = res.Confidence
		h.HasConfidence = true
	}
	if res.Metadata != nil {
		h.Features.Extra = res.Metadata
	}
	return true
}

// cardContextHints are the caller-supplied hint names that waive the bare
// 16-digit rejection in validate.CreditCard, per spec §4.C.
var cardContextHints = []string{"card", "payment", "cvv"}

func hasCardContextHint(hints map[string]struct{}) bool {
	mc := piitypes.MatchContext{ContextHints: hints}
	for _, name := range cardContextHints {
		if mc.HasHint(name) {
			return true
		}
	}
	return false
}

func containsAny(s, chars string) bool {
	for _, c := range chars {
		for _, r := range s {
			if r == c {
				return true
			}
		}
	}
	return false
}

func (r *Registry) scoreHit(h *piitypes.Hit, fullText string) {
	_, checksumPassed := h.Features.Extra["brand"]
	_, tldWellFormed := h.Features.Extra["domain"]

	features := contextan.Analyze(fullText, h.Span.Start)

	in := score.BaseInput{
		ValidatorConfidence:    h.Confidence,
		ValidatorHasConfidence: h.HasConfidence,
		ChecksumPassed:         checksumPassed,
		TLDWellFormed:          tldWellFormed,
		TestDomain:             features.Markers.TestNearby,
		ExampleKeywordsPresent: features.Markers.ExampleNearby,
		InCodeBlock:            features.Structure.CodeBlock,
	}
	h.Confidence = score.Base(h, in)
	h.HasConfidence = true

	if r.cfg.EnableContextualConfidence {
		opts := score.Options{
			BoostEnabled:    r.cfg.ContextualBoost,
			SuppressEnabled: r.cfg.ContextualSuppression,
			Floor:           0.5,
			Ceiling:         0.98,
		}
		before := len(h.Reasons)
		score.Contextual(h, features, r.catalog, opts)
		applied := h.Reasons[before:]
		r.sink.Record(metricsink.MetricRulesEvaluated, 1, nil)
		if len(applied) > 0 {
			r.sink.Record(metricsink.MetricRulesApplied, float64(len(applied)), nil)
		}
		for _, reason := range applied {
			ruleID, ok := strings.CutPrefix(reason, "contextual:")
			if !ok {
				continue
			}
			r.sink.Record(metricsink.MetricRuleHitPrefix, 1, map[string]string{"rule_id": ruleID})
		}
	}
}

func (r *Registry) effectiveThreshold() float64 {
	if r.cfg.ConfidenceThreshold != nil {
		return *r.cfg.ConfidenceThreshold
	}
	sens := r.cfg.Sensitivity
	if sens == "" {
		sens = score.SensitivityBalanced
	}
	return score.ThresholdFor(sens)
}

// RedactText runs Detect and applies the configured redaction actions,
// per spec §4.G/§4.H.
func (r *Registry) RedactText(ctx context.Context, text string) (string, error) {
	result, err := r.Detect(ctx, text)
	if err != nil {
		return "", err
	}
	applier := redact.New(redact.Config{
		DefaultAction: r.cfg.DefaultAction,
		Rules:         r.cfg.Rules,
		HMACKey:       r.cfg.HMACKey,
		Maskers:       r.maskers,
	})
	return applier.Apply(text, result.Hits)
}
