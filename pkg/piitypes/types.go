// Package piitypes defines the shared data model for the detection,
// scoring, and redaction pipeline: spans, hits, detectors, maskers, and
// the contextual rule shapes the scorer consumes.
package piitypes

import "unicode/utf8"

// PIIType is an opaque identifier for a category of sensitive data.
// Plugins may introduce values beyond the baseline set below.
type PIIType string

const (
	TypeEmail      PIIType = "email"
	TypeCreditCard PIIType = "credit_card"
	TypeIPv4       PIIType = "ipv4"
	TypePhoneE164  PIIType = "phone_e164"
	TypeSSN        PIIType = "ssn"
	TypeIBAN       PIIType = "iban"
	TypeMyNumberJP PIIType = "mynumber_jp"
	TypePostalJP   PIIType = "postal_jp"
)

// Risk is an advisory-only severity level attached to a Hit.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// Span is a half-open code-point range [Start, End) over the input text.
// Positions are Unicode code-point indices, not byte offsets: callers
// addressing a []rune view of the text index directly with Start/End.
type Span struct {
	Start int
	End   int
}

// Len returns the number of code points covered by the span.
func (s Span) Len() int { return s.End - s.Start }

// Overlaps reports whether s and o share any code point.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// RuneLen returns the code-point length of s, for callers that only have
// a byte string and need to convert to/from a rune-indexed Span.
func RuneLen(s string) int { return utf8.RuneCountInString(s) }

// MarkerLanguage classifies the dominant script near a candidate span.
type MarkerLanguage string

const (
	LangEN      MarkerLanguage = "en"
	LangJA      MarkerLanguage = "ja"
	LangMixed   MarkerLanguage = "mixed"
	LangUnknown MarkerLanguage = "unknown"
)

// StructureFeatures is the document-structure half of ContextFeatures.
type StructureFeatures struct {
	JSONLike        bool
	XMLLike         bool
	CSVLike         bool
	MarkdownLike    bool
	CodeBlock       bool
	HeaderRow       bool
	TemplateSection bool
	LogLike         bool
}

// MarkerFeatures is the proximity-marker half of ContextFeatures.
type MarkerFeatures struct {
	ExampleNearby             bool
	TestNearby                bool
	SampleNearby              bool
	DummyNearby               bool
	PlaceholderNearby         bool
	DistanceToNearestMarker   int // code points; -1 if no marker found
	MarkerLanguage            MarkerLanguage
	DatePlaceholderNearby     bool
	CurrencyPlaceholderNearby bool
	AddressPlaceholderNearby  bool
	PhonePlaceholderNearby    bool
	NamePlaceholderNearby     bool
}

// ContextFeatures is the result of analyzing a window of text around a
// candidate position. Produced by internal/contextan, consumed by the
// confidence scorer's contextual rule predicates.
type ContextFeatures struct {
	Structure          StructureFeatures
	Markers            MarkerFeatures
	Language           MarkerLanguage
	HighEntropyNearby  bool
	RepetitionDetected bool
}

// Features carries auxiliary, mostly-typed data attached to a Hit. Extra
// holds plugin-specific fields that don't warrant a dedicated field.
type Features struct {
	JSONPath        string
	KeyName         string
	IsJSONDetection bool
	NormalizedForm  string
	PhoneSubtype    string
	Extra           map[string]any
}

// Hit is a candidate PII span produced by a detector and refined by the
// validation, scoring, and filtering stages.
type Hit struct {
	Type          PIIType
	Span          Span
	Value         string
	Risk          Risk
	Priority      int
	Confidence    float64
	HasConfidence bool
	Reasons       []string
	Features      Features
}

// AddReason appends a short diagnostic tag to the hit's reason trail.
func (h *Hit) AddReason(reason string) {
	h.Reasons = append(h.Reasons, reason)
}

// PushFunc is how a Detector emits a candidate hit. It returns false once
// the per-call pattern-match budget is exhausted; well-behaved detectors
// stop scanning when it does.
type PushFunc func(Hit) bool

// MatchContext is the bounded context handed to a single Detector.Match
// invocation.
type MatchContext struct {
	Text         string
	Runes        []rune
	ContextHints map[string]struct{}
	Push         PushFunc
	CanPush      func() bool
}

// HasHint reports whether the caller-supplied context hints include name.
func (c *MatchContext) HasHint(name string) bool {
	_, ok := c.ContextHints[name]
	return ok
}

// Detector produces candidate Hits for a single PII pattern or family of
// patterns. Priority is a stable sort key: lower runs earlier and wins
// overlap resolution.
type Detector interface {
	ID() string
	Priority() int
	Match(ctx *MatchContext)
}

// Masker renders a Hit's replacement text. hmacKey is the configured
// HMAC key (nil when none is set), passed whatever the hit's action.
type Masker func(h Hit, hmacKey []byte) (string, error)

// RuleCategory classifies a contextual rule for conflict resolution: at
// most one rule per category survives within a priority group.
type RuleCategory string

const (
	CategoryFormatSpecific RuleCategory = "format-specific"
	CategoryLocaleSpecific RuleCategory = "locale-specific"
	CategoryMarkerBased    RuleCategory = "marker-based"
	CategoryStructural     RuleCategory = "structural"
)

// RulePredicate decides whether a contextual Rule applies to a given hit
// and its surrounding ContextFeatures.
type RulePredicate func(f ContextFeatures, h Hit) bool

// Rule is a declarative contextual confidence adjustment. Higher
// Priority wins conflict resolution against other applicable rules.
type Rule struct {
	ID          string
	Priority    int
	Category    RuleCategory
	Predicate   RulePredicate
	Multiplier  float64
	Offset      float64
	Description string
}
