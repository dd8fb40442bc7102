package score

import (
	"testing"

	"github.com/vura/sentinel/pkg/piitypes"
)

func TestThresholdFor(t *testing.T) {
	tests := []struct {
		sensitivity Sensitivity
		want        float64
	}{
		{SensitivityStrict, 0.50},
		{SensitivityBalanced, 0.70},
		{SensitivityRelaxed, 0.85},
		{Sensitivity(""), 0.70},
	}
	for _, tt := range tests {
		if got := ThresholdFor(tt.sensitivity); got != tt.want {
			t.Errorf("ThresholdFor(%q) = %v, want %v", tt.sensitivity, got, tt.want)
		}
	}
}

func TestBase_UsesValidatorConfidenceWhenPresent(t *testing.T) {
	h := &piitypes.Hit{Type: piitypes.TypeEmail}
	got := Base(h, BaseInput{ValidatorConfidence: 0.42, ValidatorHasConfidence: true})
	if got != 0.42 {
		t.Errorf("Base() = %v, want 0.42", got)
	}
}

func TestBase_AppliesAdjustments(t *testing.T) {
	h := &piitypes.Hit{Type: piitypes.TypeEmail}
	base := Base(h, BaseInput{})
	if base != basePrior[piitypes.TypeEmail] {
		t.Errorf("expected unmodified prior %v, got %v", basePrior[piitypes.TypeEmail], base)
	}

	h2 := &piitypes.Hit{Type: piitypes.TypeEmail}
	adjusted := Base(h2, BaseInput{TestDomain: true, InCodeBlock: true})
	if adjusted >= base {
		t.Errorf("expected test_domain+code_block adjustments to lower confidence below %v, got %v", base, adjusted)
	}
	foundTestDomain := false
	for _, r := range h2.Reasons {
		if r == "test_domain" {
			foundTestDomain = true
		}
	}
	if !foundTestDomain {
		t.Error("expected test_domain reason to be recorded")
	}
}

func TestBase_ClampsToUnitInterval(t *testing.T) {
	h := &piitypes.Hit{Type: piitypes.TypeCreditCard}
	got := Base(h, BaseInput{TestDomain: true, ExampleKeywordsPresent: true, InCodeBlock: true})
	if got < 0 || got > 1 {
		t.Errorf("Base() = %v, want value in [0,1]", got)
	}
}

func TestCatalog_IDsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, r := range Catalog() {
		if seen[r.ID] {
			t.Errorf("duplicate rule id %q", r.ID)
		}
		seen[r.ID] = true
	}
}

func TestContextual_ExampleMarkerSuppresses(t *testing.T) {
	hit := &piitypes.Hit{Type: piitypes.TypeEmail, Confidence: 0.8}
	features := piitypes.ContextFeatures{
		Markers: piitypes.MarkerFeatures{ExampleNearby: true, DistanceToNearestMarker: 5},
	}
	Contextual(hit, features, Catalog(), DefaultOptions())
	if hit.Confidence >= 0.8 {
		t.Errorf("expected example-marker rule to suppress confidence, got %v", hit.Confidence)
	}
	found := false
	for _, r := range hit.Reasons {
		if r == "contextual:example-marker-strong" {
			found = true
		}
	}
	if !found {
		t.Error("expected contextual:example-marker-strong reason")
	}
}

func TestContextual_NoApplicableRulesLeavesConfidenceUnchanged(t *testing.T) {
	hit := &piitypes.Hit{Type: piitypes.TypeEmail, Confidence: 0.8}
	Contextual(hit, piitypes.ContextFeatures{}, Catalog(), DefaultOptions())
	if hit.Confidence != 0.8 {
		t.Errorf("expected confidence unchanged at 0.8, got %v", hit.Confidence)
	}
}

func TestContextual_SuppressionDisabledSkipsSuppressRules(t *testing.T) {
	hit := &piitypes.Hit{Type: piitypes.TypeEmail, Confidence: 0.8}
	features := piitypes.ContextFeatures{
		Markers: piitypes.MarkerFeatures{ExampleNearby: true, DistanceToNearestMarker: 5},
	}
	opts := DefaultOptions()
	opts.SuppressEnabled = false
	Contextual(hit, features, Catalog(), opts)
	if hit.Confidence != 0.8 {
		t.Errorf("expected confidence unchanged when suppression disabled, got %v", hit.Confidence)
	}
}

func TestResolveConflicts_OneRulePerCategoryPerPriorityGroup(t *testing.T) {
	rules := []piitypes.Rule{
		{ID: "b", Priority: 80, Category: piitypes.CategoryStructural, Multiplier: 0.5},
		{ID: "a", Priority: 80, Category: piitypes.CategoryStructural, Multiplier: 0.9},
	}
	chosen := resolveConflicts(rules, DefaultOptions())
	if len(chosen) != 1 {
		t.Fatalf("expected exactly one rule chosen per category per priority group, got %d", len(chosen))
	}
	if chosen[0].ID != "b" {
		t.Errorf("expected strongest suppressor (lowest multiplier) to win, got %q", chosen[0].ID)
	}
}

func TestResolveConflicts_StableRuleIDTiebreak(t *testing.T) {
	rules := []piitypes.Rule{
		{ID: "z-rule", Priority: 10, Category: piitypes.CategoryStructural, Multiplier: 1.5},
		{ID: "a-rule", Priority: 10, Category: piitypes.CategoryStructural, Multiplier: 1.5},
	}
	chosen := resolveConflicts(rules, DefaultOptions())
	if len(chosen) != 1 || chosen[0].ID != "a-rule" {
		t.Errorf("expected stable tiebreak to favor lexicographically first id, got %+v", chosen)
	}
}
