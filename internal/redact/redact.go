// Package redact implements the redaction applier from spec §4.H: per-
// type action resolution, masker dispatch, and the default maskers
// (mask/remove/tokenize, plus the credit-card preserve-last-4 variant).
//
// Grounded on internal/detector/detector.go's Anonymize, which walks a
// sorted, non-overlapping hit list and rewrites spans; this module
// swaps the teacher's repeated string-slicing loop for strings.Builder
// since hits here are already fully resolved in start order before the
// rewrite begins (an efficiency generalization of the same idiom, not a
// new dependency).
package redact

import (
	"fmt"
	"strings"

	"github.com/vura/sentinel/internal/codec"
	"github.com/vura/sentinel/internal/piierr"
	"github.com/vura/sentinel/pkg/piitypes"
)

// Action is the redaction strategy applied to a hit's span.
type Action string

const (
	ActionMask     Action = "mask"
	ActionRemove   Action = "remove"
	ActionTokenize Action = "tokenize"
)

// TypeRule is a per-type override of the default action.
type TypeRule struct {
	Action        Action
	PreserveLast4 bool
}

// Config configures the applier.
type Config struct {
	DefaultAction Action
	Rules         map[piitypes.PIIType]TypeRule
	HMACKey       []byte
	Maskers       map[piitypes.PIIType]piitypes.Masker
}

// Applier rewrites a text given an ordered, non-overlapping hit list.
type Applier struct {
	cfg Config
}

// New constructs an Applier. maskers should already include the
// built-ins merged with any plugin overrides (last-registration-wins);
// see registry.Registry.Use.
func New(cfg Config) *Applier {
	return &Applier{cfg: cfg}
}

func (a *Applier) actionFor(t piitypes.PIIType) (Action, bool) {
	if r, ok := a.cfg.Rules[t]; ok {
		return r.Action, r.PreserveLast4
	}
	da := a.cfg.DefaultAction
	if da == "" {
		da = ActionMask
	}
	return da, false
}

// Apply rewrites text by copying unaltered ranges and replacing each
// hit's span with its masker output. hits must already be sorted by
// Span.Start and mutually non-overlapping (runtime.ResolveOverlaps).
func (a *Applier) Apply(text string, hits []piitypes.Hit) (string, error) {
	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(text))

	cursor := 0
	for _, h := range hits {
		action, preserveLast4 := a.actionFor(h.Type)
		if action == ActionTokenize && len(a.cfg.HMACKey) == 0 {
			return "", piierr.New(piierr.KindTokenizeMissingKey,
				fmt.Sprintf("hmacKey is required for tokenize action on type %s", h.Type))
		}

		if h.Span.Start < cursor {
			continue // defensive: overlapping input, keep first-writer-wins
		}
		b.WriteString(string(runes[cursor:h.Span.Start]))

		replacement, err := a.render(h, action, preserveLast4)
		if err != nil {
			return "", err
		}
		b.WriteString(replacement)
		cursor = h.Span.End
	}
	if cursor < len(runes) {
		b.WriteString(string(runes[cursor:]))
	}
	return b.String(), nil
}

func (a *Applier) render(h piitypes.Hit, action Action, preserveLast4 bool) (string, error) {
	if preserveLast4 && h.Type == piitypes.TypeCreditCard {
		return maskCreditCardLast4(h.Value), nil
	}
	if m, ok := a.cfg.Maskers[h.Type]; ok {
		return m(h, a.cfg.HMACKey)
	}
	return defaultMasker(h, action, a.cfg.HMACKey)
}

func defaultMasker(h piitypes.Hit, action Action, hmacKey []byte) (string, error) {
	switch action {
	case ActionRemove:
		return "", nil
	case ActionTokenize:
		return codec.Tokenize(hmacKey, string(h.Type), h.Value), nil
	default:
		return fmt.Sprintf("[REDACTED:%s]", h.Type), nil
	}
}

var ccDigits = func(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func maskCreditCardLast4(value string) string {
	digits := ccDigits(value)
	if len(digits) < 4 {
		return "**** **** **** " + digits
	}
	return "**** **** **** " + digits[len(digits)-4:]
}

// DefaultMaskerFor returns the built-in masker for a type's action,
// usable by callers that want the default behavior for a specific
// masker map entry (the action's mask, remove or tokenize rendering;
// PhoneMasker and PostalJPMasker are separate).
func DefaultMaskerFor(action Action) piitypes.Masker {
	return func(h piitypes.Hit, hmacKey []byte) (string, error) {
		return defaultMasker(h, action, hmacKey)
	}
}

// PhoneMasker replaces every digit in the original value with "•",
// leaving separators intact, per spec §6's documented phone default.
func PhoneMasker(h piitypes.Hit, _ []byte) (string, error) {
	var b strings.Builder
	for _, r := range h.Value {
		if r >= '0' && r <= '9' {
			b.WriteRune('•')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

// PostalJPMasker renders the fixed JP postal mask "•••-••••" regardless
// of the original value's exact digit grouping.
func PostalJPMasker(piitypes.Hit, []byte) (string, error) {
	return "•••-••••", nil
}

// CreditCardPreserveLast4Masker is the standalone masker form of the
// preserve_last4 rule, for callers wiring it directly into a Maskers map
// instead of via TypeRule.PreserveLast4.
func CreditCardPreserveLast4Masker(h piitypes.Hit, _ []byte) (string, error) {
	return maskCreditCardLast4(h.Value), nil
}
