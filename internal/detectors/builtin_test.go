package detectors

import (
	"testing"

	"github.com/vura/sentinel/pkg/piitypes"
)

func matchAll(t *testing.T, d piitypes.Detector, text string) []piitypes.Hit {
	t.Helper()
	var hits []piitypes.Hit
	ctx := &piitypes.MatchContext{
		Text:  text,
		Runes: []rune(text),
		Push: func(h piitypes.Hit) bool {
			hits = append(hits, h)
			return true
		},
		CanPush: func() bool { return true },
	}
	d.Match(ctx)
	return hits
}

func findDetector(t *testing.T, id string) piitypes.Detector {
	t.Helper()
	for _, d := range Baseline() {
		if d.ID() == id {
			return d
		}
	}
	t.Fatalf("no baseline detector with id %q", id)
	return nil
}

func TestBaseline_ReturnsSixCoreDetectors(t *testing.T) {
	got := Baseline()
	if len(got) != 6 {
		t.Fatalf("expected 6 baseline detectors, got %d", len(got))
	}
}

func TestEmailDetector_MatchesAddress(t *testing.T) {
	hits := matchAll(t, findDetector(t, "core.email"), "write to jane.doe@example.com today")
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].Value != "jane.doe@example.com" {
		t.Errorf("expected full address matched, got %q", hits[0].Value)
	}
	if hits[0].Type != piitypes.TypeEmail {
		t.Errorf("expected email type, got %v", hits[0].Type)
	}
}

func TestCreditCardDetector_MatchesSeparatedDigits(t *testing.T) {
	hits := matchAll(t, findDetector(t, "core.credit_card"), "card 4242-4242-4242-4242 on file")
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].Value != "4242-4242-4242-4242" {
		t.Errorf("expected separated digits matched verbatim, got %q", hits[0].Value)
	}
}

func TestIPv4Detector_MatchesDottedQuad(t *testing.T) {
	hits := matchAll(t, findDetector(t, "core.ipv4"), "server at 10.0.0.5 responded")
	if len(hits) != 1 || hits[0].Value != "10.0.0.5" {
		t.Errorf("expected a single ipv4 hit for 10.0.0.5, got %+v", hits)
	}
}

func TestPhoneE164Detector_MatchesPlusPrefixed(t *testing.T) {
	hits := matchAll(t, findDetector(t, "core.phone_e164"), "call +14155552671 now")
	if len(hits) != 1 || hits[0].Value != "+14155552671" {
		t.Errorf("expected a single phone hit, got %+v", hits)
	}
}

func TestSSNDetector_MatchesDashedDigits(t *testing.T) {
	hits := matchAll(t, findDetector(t, "core.ssn"), "ssn 123-45-6789 on file")
	if len(hits) != 1 || hits[0].Value != "123-45-6789" {
		t.Errorf("expected a single ssn hit, got %+v", hits)
	}
}

func TestIBANDetector_MatchesIBANFormat(t *testing.T) {
	hits := matchAll(t, findDetector(t, "core.iban"), "iban GB29NWBK60161331926819 here")
	if len(hits) != 1 || hits[0].Value != "GB29NWBK60161331926819" {
		t.Errorf("expected a single iban hit, got %+v", hits)
	}
}

func TestMatch_StopsPushingWhenCanPushFalse(t *testing.T) {
	d := findDetector(t, "core.email")
	var hits []piitypes.Hit
	pushed := 0
	ctx := &piitypes.MatchContext{
		Text:  "a@example.com b@example.com c@example.com",
		Runes: []rune("a@example.com b@example.com c@example.com"),
		Push: func(h piitypes.Hit) bool {
			pushed++
			hits = append(hits, h)
			return pushed < 1
		},
		CanPush: func() bool { return pushed < 1 },
	}
	d.Match(ctx)
	if len(hits) != 1 {
		t.Errorf("expected Match to stop after the budget-exhausted push, got %d hits", len(hits))
	}
}

func TestRuneIndex_ConvertsMultibyteOffsetsCorrectly(t *testing.T) {
	text := "日本語 user@example.com"
	hits := matchAll(t, findDetector(t, "core.email"), text)
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	runes := []rune(text)
	start := hits[0].Span.Start
	end := hits[0].Span.End
	if string(runes[start:end]) != "user@example.com" {
		t.Errorf("expected rune-indexed span to reconstruct the match, got %q", string(runes[start:end]))
	}
}
