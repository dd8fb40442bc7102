// Package jsondetect implements the JSON/NDJSON walker from spec §4.I:
// JSON-path construction, bilingual (EN+JA) key-name PII matching, a
// recursion-depth cap, and fallback-to-text on parse failure.
//
// The teacher has no direct JSON-tree walker to generalize from; the
// recursion-depth-cap idiom follows internal/auditor/auditor.go's
// nesting checks on skill-file structures, and the decision to use
// plain encoding/json into map[string]any/[]any (rather than an
// ecosystem JSON-path library) is grounded in the observation that no
// repo in the retrieved pack imports one directly (see DESIGN.md).
package jsondetect

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vura/sentinel/pkg/piitypes"
)

// MaxDepth bounds recursion while walking a parsed document, per spec §4.I.
const MaxDepth = 10

// KeyPIIMap maps a normalized (lowercased) key name to the PII type it
// implies, bilingual per spec.
var KeyPIIMap = map[string]piitypes.PIIType{
	"email":        piitypes.TypeEmail,
	"e-mail":       piitypes.TypeEmail,
	"mail":         piitypes.TypeEmail,
	"メール":         piitypes.TypeEmail,
	"メールアドレス":     piitypes.TypeEmail,
	"phone":        piitypes.TypePhoneE164,
	"mobile":       piitypes.TypePhoneE164,
	"phone_number": piitypes.TypePhoneE164,
	"tel":          piitypes.TypePhoneE164,
	"電話":           piitypes.TypePhoneE164,
	"電話番号":         piitypes.TypePhoneE164,
	"card_number":  piitypes.TypeCreditCard,
	"credit_card":  piitypes.TypeCreditCard,
	"cc_number":    piitypes.TypeCreditCard,
	"ssn":          piitypes.TypeSSN,
	"social_security_number": piitypes.TypeSSN,
	"iban":         piitypes.TypeIBAN,
	"ip":           piitypes.TypeIPv4,
	"ip_address":   piitypes.TypeIPv4,
	"postal_code":  piitypes.TypePostalJP,
	"郵便番号":         piitypes.TypePostalJP,
	"my_number":    piitypes.TypeMyNumberJP,
	"マイナンバー":       piitypes.TypeMyNumberJP,
}

// StringLeaf is a string-valued leaf found while walking a document,
// along with the JSON path and key name it was found under, and an
// optional PII type implied by the key name itself.
type StringLeaf struct {
	Path       string
	Key        string
	Value      string
	KeyImplies piitypes.PIIType
	HasKeyHint bool
}

// WalkResult is the outcome of walking a parsed document.
type WalkResult struct {
	Leaves          []StringLeaf
	FallbackToText  bool
	DepthCapReached bool
}

// LooksLikeJSON applies the heuristic from spec §4.I: the input's first
// non-whitespace character is '{' or '[', or the input has multiple
// lines each of which independently parses as JSON (NDJSON).
func LooksLikeJSON(input string) bool {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return false
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return true
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return false
	}
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		var v any
		if json.Unmarshal([]byte(l), &v) != nil {
			return false
		}
	}
	return true
}

// Walk parses input and walks the resulting tree (or, for NDJSON, each
// line's tree) collecting string leaves. On parse failure it returns a
// WalkResult with FallbackToText set and no leaves; the caller's text
// detector still runs over the raw input in that case.
func Walk(input string) WalkResult {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return WalkResult{FallbackToText: true}
	}

	if trimmed[0] == '{' || trimmed[0] == '[' {
		var doc any
		if err := json.Unmarshal([]byte(trimmed), &doc); err == nil {
			var out WalkResult
			walkValue(doc, "$", &out, 0)
			return out
		}
	}

	// NDJSON (or a single document that did not parse whole): one
	// top-level value per line.
	var out WalkResult
	any_ := false
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var doc any
		if err := json.Unmarshal([]byte(line), &doc); err != nil {
			return WalkResult{FallbackToText: true}
		}
		any_ = true
		walkValue(doc, "$", &out, 0)
	}
	if !any_ {
		return WalkResult{FallbackToText: true}
	}
	return out
}

func walkValue(v any, path string, out *WalkResult, depth int) {
	if depth > MaxDepth {
		out.DepthCapReached = true
		return
	}
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			childPath := path + "." + k
			walkKeyed(k, child, childPath, out, depth+1)
		}
	case []any:
		for i, child := range t {
			childPath := fmt.Sprintf("%s.[%d]", path, i)
			walkValue(child, childPath, out, depth+1)
		}
	}
}

func walkKeyed(key string, v any, path string, out *WalkResult, depth int) {
	if depth > MaxDepth {
		out.DepthCapReached = true
		return
	}
	switch t := v.(type) {
	case string:
		leaf := StringLeaf{Path: path, Key: key, Value: t}
		if impliedType, ok := KeyPIIMap[normalizeKey(key)]; ok {
			leaf.KeyImplies = impliedType
			leaf.HasKeyHint = true
		}
		out.Leaves = append(out.Leaves, leaf)
	case map[string]any, []any:
		walkValue(t, path, out, depth)
	}
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
