// Package score implements the two-stage confidence scorer from spec
// §4.D: a per-type base-confidence prior with documented adjustments,
// followed by an optional contextual confidence pass that applies a
// declarative rule catalog with deterministic conflict resolution.
//
// The rule catalog shape (id, priority, predicate, multiplier, offset,
// description) is grounded on the teacher's internal/auditor/rules.go
// CustomRule/RulesConfig, which already expresses severity-weighted
// pattern rules as data rather than a class hierarchy. The catalog is Go
// data only; multiplier/offset/enabled overrides loaded from YAML are
// applied by internal/config's ApplyOverrides.
package score

import (
	"sort"

	"github.com/vura/sentinel/pkg/piitypes"
)

// Sensitivity is a named confidence-threshold preset.
type Sensitivity string

const (
	SensitivityStrict   Sensitivity = "strict"
	SensitivityBalanced Sensitivity = "balanced"
	SensitivityRelaxed  Sensitivity = "relaxed"
)

// ThresholdFor maps a sensitivity preset to its confidence threshold.
func ThresholdFor(s Sensitivity) float64 {
	switch s {
	case SensitivityStrict:
		return 0.50
	case SensitivityRelaxed:
		return 0.85
	default:
		return 0.70
	}
}

// basePrior is the starting confidence for a type before adjustments.
var basePrior = map[piitypes.PIIType]float64{
	piitypes.TypeEmail:      0.6,
	piitypes.TypeCreditCard: 0.7,
	piitypes.TypeIPv4:       0.55,
	piitypes.TypePhoneE164:  0.65,
	piitypes.TypeSSN:        0.75,
	piitypes.TypeIBAN:       0.7,
	piitypes.TypeMyNumberJP: 0.7,
	piitypes.TypePostalJP:   0.6,
}

func priorFor(t piitypes.PIIType) float64 {
	if p, ok := basePrior[t]; ok {
		return p
	}
	return 0.5
}

// BaseAdjustment is a documented additive/subtractive nudge applied
// during stage 1, keyed by the reason tag it appends.
type BaseAdjustment struct {
	Reason string
	Delta  float64
}

var (
	adjTestDomain     = BaseAdjustment{"test_domain", -0.25}
	adjExampleKeyword = BaseAdjustment{"example_keywords_present", -0.2}
	adjInCodeBlock    = BaseAdjustment{"in-code-block", -0.15}
	adjValidChecksum  = BaseAdjustment{"valid_checksum", 0.2}
	adjWellFormedTLD  = BaseAdjustment{"well_formed_tld", 0.1}
)

// BaseInput carries the signals stage 1 needs beyond the bare hit.
type BaseInput struct {
	ValidatorConfidence    float64
	ValidatorHasConfidence bool
	ChecksumPassed         bool
	TLDWellFormed          bool
	TestDomain             bool
	ExampleKeywordsPresent bool
	InCodeBlock            bool
}

// Base computes stage-1 confidence for a hit and appends its reason
// tags directly onto hit.Reasons.
func Base(hit *piitypes.Hit, in BaseInput) float64 {
	if in.ValidatorHasConfidence {
		base := clamp01(in.ValidatorConfidence)
		return base
	}

	c := priorFor(hit.Type)
	apply := func(a BaseAdjustment, cond bool) {
		if !cond {
			return
		}
		c += a.Delta
		hit.AddReason(a.Reason)
	}
	apply(adjTestDomain, in.TestDomain)
	apply(adjExampleKeyword, in.ExampleKeywordsPresent)
	apply(adjInCodeBlock, in.InCodeBlock)
	apply(adjValidChecksum, in.ChecksumPassed)
	apply(adjWellFormedTLD, in.TLDWellFormed)

	return clamp01(c)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Catalog is the shipped contextual rule set. Implementations must
// reproduce these ids/priorities/multipliers verbatim to match golden
// outputs, per spec §4.D.
func Catalog() []piitypes.Rule {
	return []piitypes.Rule{
		{
			ID:       "example-marker-strong",
			Priority: 100,
			Category: piitypes.CategoryMarkerBased,
			Predicate: func(f piitypes.ContextFeatures, h piitypes.Hit) bool {
				return f.Markers.ExampleNearby && f.Markers.DistanceToNearestMarker >= 0 && f.Markers.DistanceToNearestMarker <= 16
			},
			Multiplier:  0.4,
			Description: "strong example-marker suppression within 16 chars",
		},
		{
			ID:       "template-section",
			Priority: 85,
			Category: piitypes.CategoryStructural,
			Predicate: func(f piitypes.ContextFeatures, h piitypes.Hit) bool {
				return f.Structure.TemplateSection
			},
			Multiplier:  0.6,
			Description: "candidate sits inside a template placeholder section",
		},
		{
			ID:       "code-block",
			Priority: 80,
			Category: piitypes.CategoryStructural,
			Predicate: func(f piitypes.ContextFeatures, h piitypes.Hit) bool {
				return f.Structure.CodeBlock
			},
			Multiplier:  0.7,
			Description: "candidate sits inside a fenced code block",
		},
		{
			ID:       "format-json",
			Priority: 72,
			Category: piitypes.CategoryFormatSpecific,
			Predicate: func(f piitypes.ContextFeatures, h piitypes.Hit) bool {
				return f.Structure.JSONLike && h.Features.IsJSONDetection
			},
			Multiplier:  0.3,
			Description: "JSON-detected hit re-confirmed by JSON-like text structure",
		},
		{
			ID:       "high-entropy-boost",
			Priority: 50,
			Category: piitypes.CategoryStructural,
			Predicate: func(f piitypes.ContextFeatures, h piitypes.Hit) bool {
				return f.HighEntropyNearby
			},
			Multiplier:  1.2,
			Description: "high-entropy string nearby increases confidence this is a real secret",
		},
		{
			ID:       "repetition-suppress",
			Priority: 40,
			Category: piitypes.CategoryStructural,
			Predicate: func(f piitypes.ContextFeatures, h piitypes.Hit) bool {
				return f.RepetitionDetected
			},
			Multiplier:  0.75,
			Description: "repeated-token window suggests templated filler, not real data",
		},
		{
			ID:       "locale-marker-ja",
			Priority: 60,
			Category: piitypes.CategoryLocaleSpecific,
			Predicate: func(f piitypes.ContextFeatures, h piitypes.Hit) bool {
				return f.Markers.MarkerLanguage == piitypes.LangJA && f.Markers.PlaceholderNearby
			},
			Multiplier:  0.5,
			Description: "Japanese-language placeholder marker nearby",
		},
	}
}

// Options controls stage-2 behavior, mirroring the Registry config
// fields of the same name.
type Options struct {
	BoostEnabled      bool
	SuppressEnabled   bool
	Floor             float64 // default 0.5
	Ceiling           float64 // default 0.98
}

// DefaultOptions returns the spec's documented defaults.
func DefaultOptions() Options {
	return Options{BoostEnabled: true, SuppressEnabled: true, Floor: 0.5, Ceiling: 0.98}
}

// Contextual applies stage 2 to a hit whose stage-1 base confidence is
// already set. It mutates hit.Confidence and appends
// "contextual:<rule-id>" reasons for every rule actually applied.
func Contextual(hit *piitypes.Hit, features piitypes.ContextFeatures, catalog []piitypes.Rule, opts Options) {
	base := hit.Confidence

	applicable := make([]piitypes.Rule, 0, len(catalog))
	for _, r := range catalog {
		if r.Predicate(features, *hit) {
			applicable = append(applicable, r)
		}
	}
	if len(applicable) == 0 {
		return
	}

	chosen := resolveConflicts(applicable, opts)
	if len(chosen) == 0 {
		return
	}

	result := base
	for _, r := range chosen {
		result = result*r.Multiplier + r.Offset
		hit.AddReason("contextual:" + r.ID)
	}

	floor := opts.Floor
	if floor == 0 {
		floor = 0.5
	}
	ceiling := opts.Ceiling
	if ceiling == 0 {
		ceiling = 0.98
	}
	lowerBound := base * floor
	if lowerBound < 0.01 {
		lowerBound = 0.01
	}
	if result < lowerBound {
		result = lowerBound
	}
	if result > ceiling {
		result = ceiling
	}
	hit.Confidence = result
}

// resolveConflicts implements spec §4.D's deterministic reduction:
// group by priority (high to low), at most one rule per category
// within a group, suppression beats boost, strongest wins, stable by
// rule id.
func resolveConflicts(rules []piitypes.Rule, opts Options) []piitypes.Rule {
	filtered := make([]piitypes.Rule, 0, len(rules))
	for _, r := range rules {
		if !opts.BoostEnabled && r.Multiplier > 1 {
			continue
		}
		if !opts.SuppressEnabled && r.Multiplier < 1 {
			continue
		}
		filtered = append(filtered, r)
	}
	if len(filtered) == 0 {
		return nil
	}

	byPriority := make(map[int][]piitypes.Rule)
	var priorities []int
	for _, r := range filtered {
		if _, ok := byPriority[r.Priority]; !ok {
			priorities = append(priorities, r.Priority)
		}
		byPriority[r.Priority] = append(byPriority[r.Priority], r)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(priorities)))

	var chosen []piitypes.Rule
	for _, p := range priorities {
		group := byPriority[p]
		byCategory := make(map[piitypes.RuleCategory][]piitypes.Rule)
		var categories []piitypes.RuleCategory
		for _, r := range group {
			if _, ok := byCategory[r.Category]; !ok {
				categories = append(categories, r.Category)
			}
			byCategory[r.Category] = append(byCategory[r.Category], r)
		}
		for _, cat := range categoryOrder(categories) {
			chosen = append(chosen, pickWithinCategory(byCategory[cat]))
		}
	}
	return chosen
}

var canonicalCategoryOrder = []piitypes.RuleCategory{
	piitypes.CategoryFormatSpecific,
	piitypes.CategoryLocaleSpecific,
	piitypes.CategoryMarkerBased,
	piitypes.CategoryStructural,
}

func categoryOrder(present []piitypes.RuleCategory) []piitypes.RuleCategory {
	seen := make(map[piitypes.RuleCategory]bool, len(present))
	for _, c := range present {
		seen[c] = true
	}
	ordered := make([]piitypes.RuleCategory, 0, len(present))
	for _, c := range canonicalCategoryOrder {
		if seen[c] {
			ordered = append(ordered, c)
		}
	}
	return ordered
}

// pickWithinCategory applies the two tiebreakers plus the final stable
// rule-id order.
func pickWithinCategory(rules []piitypes.Rule) piitypes.Rule {
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })

	best := rules[0]
	bestIsSuppress := best.Multiplier < 1
	for _, r := range rules[1:] {
		rIsSuppress := r.Multiplier < 1
		switch {
		case rIsSuppress && !bestIsSuppress:
			best, bestIsSuppress = r, true
		case rIsSuppress && bestIsSuppress:
			if r.Multiplier < best.Multiplier {
				best = r
			}
		case !rIsSuppress && !bestIsSuppress:
			if r.Multiplier > best.Multiplier {
				best = r
			}
		}
	}
	return best
}
