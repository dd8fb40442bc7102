package piitypes

import "testing"

func TestSpan_Len(t *testing.T) {
	s := Span{Start: 3, End: 10}
	if s.Len() != 7 {
		t.Errorf("expected len 7, got %d", s.Len())
	}
}

func TestSpan_Overlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Span
		want bool
	}{
		{"disjoint", Span{0, 3}, Span{3, 6}, false},
		{"overlapping", Span{0, 5}, Span{3, 8}, true},
		{"identical", Span{2, 4}, Span{2, 4}, true},
		{"contained", Span{0, 10}, Span{2, 4}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlaps(tt.b); got != tt.want {
				t.Errorf("Overlaps(%+v, %+v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestRuneLen_CountsCodePointsNotBytes(t *testing.T) {
	if got := RuneLen("日本語"); got != 3 {
		t.Errorf("expected 3 code points, got %d", got)
	}
	if got := RuneLen("abc"); got != 3 {
		t.Errorf("expected 3 code points, got %d", got)
	}
}

func TestHit_AddReason(t *testing.T) {
	h := Hit{}
	h.AddReason("first")
	h.AddReason("second")
	if len(h.Reasons) != 2 || h.Reasons[0] != "first" || h.Reasons[1] != "second" {
		t.Errorf("expected reasons appended in order, got %v", h.Reasons)
	}
}

func TestMatchContext_HasHint(t *testing.T) {
	ctx := MatchContext{ContextHints: map[string]struct{}{"card": {}}}
	if !ctx.HasHint("card") {
		t.Error("expected HasHint true for a present hint")
	}
	if ctx.HasHint("missing") {
		t.Error("expected HasHint false for an absent hint")
	}
}
