// Package detectors provides the baseline pattern detectors the
// Registry registers by default: email, credit_card, ipv4, phone_e164,
// ssn, and iban.
//
// Grounded on the teacher's pkg/pii/patterns.go regex set
// (VietnamPatterns/InternationalPatterns), generalized from a fixed,
// closed pattern list scanned once per call into independent Detector
// values with their own priority, each implementing
// piitypes.Detector.Match against the shared bounded MatchContext.
package detectors

import (
	"regexp"

	"github.com/vura/sentinel/pkg/piitypes"
)

// regexDetector adapts a single compiled pattern into a piitypes.Detector.
type regexDetector struct {
	id       string
	priority int
	re       *regexp.Regexp
	piiType  piitypes.PIIType
	risk     piitypes.Risk
}

func (d *regexDetector) ID() string    { return d.id }
func (d *regexDetector) Priority() int { return d.priority }

func (d *regexDetector) Match(ctx *piitypes.MatchContext) {
	for _, loc := range d.re.FindAllStringIndex(ctx.Text, -1) {
		if !ctx.CanPush() {
			return
		}
		start := runeIndex(ctx.Text, loc[0])
		end := runeIndex(ctx.Text, loc[1])
		hit := piitypes.Hit{
			Type:     d.piiType,
			Span:     piitypes.Span{Start: start, End: end},
			Value:    ctx.Text[loc[0]:loc[1]],
			Risk:     d.risk,
			Priority: d.priority,
		}
		if !ctx.Push(hit) {
			return
		}
	}
}

// runeIndex converts a byte offset into a code-point index. Patterns in
// this package are regexp.MustCompile over the UTF-8 text, so match byte
// offsets must be translated once per match to honor the spec's
// code-point addressing.
func runeIndex(s string, byteIdx int) int {
	count := 0
	for i := range s {
		if i >= byteIdx {
			return count
		}
		count++
	}
	return count
}

var emailPattern = regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`)
var creditCardPattern = regexp.MustCompile(`\b(?:4\d{3}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{1,4}|5[1-5]\d{2}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}|3[47]\d{2}[\s-]?\d{6}[\s-]?\d{5}|6(?:011|5\d{2})[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4})\b`)
var ipv4Pattern = regexp.MustCompile(`\b(?:25[0-5]|2[0-4]\d|[01]?\d\d?)\.(?:25[0-5]|2[0-4]\d|[01]?\d\d?)\.(?:25[0-5]|2[0-4]\d|[01]?\d\d?)\.(?:25[0-5]|2[0-4]\d|[01]?\d\d?)\b`)
var phoneE164Pattern = regexp.MustCompile(`\+[1-9]\d{7,14}\b`)
var ssnPattern = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
var ibanPattern = regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`)

// Baseline returns the default core detector set in the priority order
// the spec's overlap resolution expects (lower runs earlier): structured
// identifiers before looser ones.
func Baseline() []piitypes.Detector {
	return []piitypes.Detector{
		&regexDetector{id: "core.credit_card", priority: 5, re: creditCardPattern, piiType: piitypes.TypeCreditCard, risk: piitypes.RiskHigh},
		&regexDetector{id: "core.iban", priority: 8, re: ibanPattern, piiType: piitypes.TypeIBAN, risk: piitypes.RiskHigh},
		&regexDetector{id: "core.ssn", priority: 8, re: ssnPattern, piiType: piitypes.TypeSSN, risk: piitypes.RiskHigh},
		&regexDetector{id: "core.phone_e164", priority: 10, re: phoneE164Pattern, piiType: piitypes.TypePhoneE164, risk: piitypes.RiskMedium},
		&regexDetector{id: "core.email", priority: 10, re: emailPattern, piiType: piitypes.TypeEmail, risk: piitypes.RiskMedium},
		&regexDetector{id: "core.ipv4", priority: 15, re: ipv4Pattern, piiType: piitypes.TypeIPv4, risk: piitypes.RiskLow},
	}
}
