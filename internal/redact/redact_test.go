package redact

import (
	"strings"
	"testing"

	"github.com/vura/sentinel/internal/piierr"
	"github.com/vura/sentinel/pkg/piitypes"
)

func TestApply_DefaultMask(t *testing.T) {
	a := New(Config{DefaultAction: ActionMask})
	text := "contact me at user@example.com please"
	hits := []piitypes.Hit{
		{Type: piitypes.TypeEmail, Span: piitypes.Span{Start: 14, End: 30}, Value: "user@example.com"},
	}
	got, err := a.Apply(text, hits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "[REDACTED:email]") {
		t.Errorf("expected redaction marker in output, got %q", got)
	}
	if strings.Contains(got, "user@example.com") {
		t.Errorf("expected original value removed from output, got %q", got)
	}
}

func TestApply_Remove(t *testing.T) {
	a := New(Config{DefaultAction: ActionRemove})
	text := "id:1234567890123456 end"
	hits := []piitypes.Hit{
		{Type: piitypes.TypeCreditCard, Span: piitypes.Span{Start: 3, End: 19}, Value: "1234567890123456"},
	}
	got, err := a.Apply(text, hits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "id: end" {
		t.Errorf("expected span removed with surrounding text intact, got %q", got)
	}
}

func TestApply_TokenizeRequiresKey(t *testing.T) {
	a := New(Config{DefaultAction: ActionTokenize})
	hits := []piitypes.Hit{{Type: piitypes.TypeEmail, Span: piitypes.Span{Start: 0, End: 4}, Value: "test"}}
	_, err := a.Apply("test", hits)
	if !piierr.Is(err, piierr.KindTokenizeMissingKey) {
		t.Fatalf("expected KindTokenizeMissingKey error, got %v", err)
	}
}

func TestApply_TokenizeDeterministic(t *testing.T) {
	key := []byte("01234567890123456789012345678901")
	a := New(Config{DefaultAction: ActionTokenize, HMACKey: key})
	hits := []piitypes.Hit{{Type: piitypes.TypeEmail, Span: piitypes.Span{Start: 0, End: 16}, Value: "user@example.com"}}

	out1, err := a.Apply("user@example.com", hits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out2, err := a.Apply("user@example.com", hits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out1 != out2 {
		t.Errorf("expected tokenization to be deterministic: %q != %q", out1, out2)
	}
	if !strings.HasPrefix(out1, "TKN_EMAIL_") {
		t.Errorf("expected TKN_EMAIL_ prefix, got %q", out1)
	}
}

func TestApply_PerTypeRuleOverridesDefault(t *testing.T) {
	a := New(Config{
		DefaultAction: ActionMask,
		Rules:         map[piitypes.PIIType]TypeRule{piitypes.TypeCreditCard: {Action: ActionRemove}},
	})
	text := "card 4242424242424242 end"
	hits := []piitypes.Hit{{Type: piitypes.TypeCreditCard, Span: piitypes.Span{Start: 5, End: 21}, Value: "4242424242424242"}}
	got, err := a.Apply(text, hits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "card  end" {
		t.Errorf("expected per-type remove rule to apply, got %q", got)
	}
}

func TestApply_PreserveLast4(t *testing.T) {
	a := New(Config{
		DefaultAction: ActionMask,
		Rules:         map[piitypes.PIIType]TypeRule{piitypes.TypeCreditCard: {Action: ActionMask, PreserveLast4: true}},
	})
	hits := []piitypes.Hit{{Type: piitypes.TypeCreditCard, Span: piitypes.Span{Start: 0, End: 16}, Value: "4242424242424242"}}
	got, err := a.Apply("4242424242424242", hits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(got, "4242") {
		t.Errorf("expected last 4 digits preserved, got %q", got)
	}
}

func TestApply_CustomMaskerOverride(t *testing.T) {
	a := New(Config{
		DefaultAction: ActionMask,
		Maskers:       map[piitypes.PIIType]piitypes.Masker{piitypes.TypePhoneE164: PhoneMasker},
	})
	hits := []piitypes.Hit{{Type: piitypes.TypePhoneE164, Span: piitypes.Span{Start: 0, End: 12}, Value: "+14155552671"}}
	got, err := a.Apply("+14155552671", hits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.ContainsAny(got, "0123456789") {
		t.Errorf("expected all digits masked, got %q", got)
	}
}

func TestApply_Idempotent(t *testing.T) {
	a := New(Config{DefaultAction: ActionMask})
	text := "email user@example.com here"
	hits := []piitypes.Hit{{Type: piitypes.TypeEmail, Span: piitypes.Span{Start: 6, End: 22}, Value: "user@example.com"}}

	once, err := a.Apply(text, hits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	twice, err := a.Apply(once, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if once != twice {
		t.Errorf("expected redacting an already-redacted text with no hits to be a no-op: %q != %q", once, twice)
	}
}

func TestPostalJPMasker(t *testing.T) {
	got, _ := PostalJPMasker(piitypes.Hit{}, nil)
	if got != "•••-••••" {
		t.Errorf("expected fixed JP postal mask, got %q", got)
	}
}
