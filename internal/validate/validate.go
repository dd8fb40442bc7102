// Package validate implements the per-type semantic validators from
// spec §4.C: Luhn/brand/test-card checks for credit cards, RFC-sane
// syntax and TLD/local-part checks for email, private-range gating for
// IPv4, and E.164 shape checks for phone numbers.
//
// Grounded on the regex set in the teacher's pkg/pii/patterns.go
// (credit card brand prefixes, SSN, IBAN, IPv4) and the per-category
// prior table in internal/detector/detector.go's confidenceFor,
// generalized from a fixed Vietnam/Intl pattern list into standalone
// validators callable by any detector.
package validate

import (
	"net"
	"regexp"
	"strings"

	"github.com/vura/sentinel/internal/codec"
)

// Strictness controls how aggressively a validator rejects ambiguous
// candidates.
type Strictness string

const (
	StrictnessFast     Strictness = "fast"
	StrictnessBalanced Strictness = "balanced"
	StrictnessStrict   Strictness = "strict"
)

// Result is the outcome of validating a single candidate value.
type Result struct {
	Valid         bool
	Reason        string
	Confidence    float64
	HasConfidence bool
	Metadata      map[string]any
}

func invalid(reason string) Result { return Result{Valid: false, Reason: reason} }
func valid(reason string) Result   { return Result{Valid: true, Reason: reason} }

const maxCandidateLen = 1000

func sizeCheck(value string) (Result, bool) {
	if len(value) == 0 {
		return invalid("invalid_input"), true
	}
	if len(value) > maxCandidateLen {
		return invalid("candidate_too_long"), true
	}
	return Result{}, false
}

var ccSeparators = regexp.MustCompile(`[\s-]`)

var testCardDenyList = map[string]bool{
	"4242424242424242": true,
	"4111111111111111": true,
	"5555555555554444": true,
	"378282246310005":   true,
	"371449635398431":   true,
	"6011111111111117":  true,
	"30569309025904":    true,
	"3530111333300000":  true,
}

var ccBrandPrefix = []struct {
	prefix string
	brand  string
}{
	{"4", "visa"},
	{"51", "mastercard"}, {"52", "mastercard"}, {"53", "mastercard"}, {"54", "mastercard"}, {"55", "mastercard"},
	{"34", "amex"}, {"37", "amex"},
	{"6011", "discover"}, {"65", "discover"},
}

func inferBrand(digits string) string {
	best := ""
	for _, b := range ccBrandPrefix {
		if strings.HasPrefix(digits, b.prefix) && len(b.prefix) > len(best) {
			best = b.prefix
		}
	}
	for _, b := range ccBrandPrefix {
		if b.prefix == best {
			return b.brand
		}
	}
	return "unknown"
}

func isRepeatedDigit(digits string) bool {
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			return false
		}
	}
	return true
}

func isSequential(digits string) bool {
	ascending, descending := true, true
	for i := 1; i < len(digits); i++ {
		// Steps wrap mod 10, so ...7890123... counts as ascending.
		step := (int(digits[i]) - int(digits[i-1]) + 10) % 10
		if step != 1 {
			ascending = false
		}
		if step != 9 {
			descending = false
		}
	}
	return ascending || descending
}

// CreditCard validates a candidate credit card number. hasSeparators
// indicates the original text used spaces/dashes between groups;
// hasContextHint indicates the caller-supplied context hints include a
// card-related term (e.g. "card", "payment"). Both inform the
// balanced-strictness bare-16-digit requirement in spec §4.C.
func CreditCard(value string, strictness Strictness, hasSeparators, hasContextHint bool) Result {
	if r, done := sizeCheck(value); done {
		return r
	}
	digits := ccSeparators.ReplaceAllString(value, "")
	if len(digits) < 13 || len(digits) > 19 {
		return invalid("invalid_length")
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return invalid("non_numeric")
		}
	}
	if isRepeatedDigit(digits) || isSequential(digits) {
		return invalid("repeated_or_sequential")
	}
	if testCardDenyList[digits] {
		if strictness == StrictnessStrict {
			return invalid("known_test_card")
		}
		if strictness == StrictnessBalanced && !hasSeparators && !hasContextHint {
			return invalid("known_test_card")
		}
	}
	if !codec.Luhn(digits) {
		return invalid("luhn_failed")
	}
	if strictness != StrictnessFast && len(digits) == 16 && !hasSeparators && !hasContextHint {
		return invalid("bare_16_digit_requires_context")
	}
	brand := inferBrand(digits)
	return Result{
		Valid:         true,
		Reason:        "valid_luhn",
		Confidence:    0,
		HasConfidence: false,
		Metadata:      map[string]any{"brand": brand, "normalized": digits},
	}
}

var emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

var knownTLDs = map[string]bool{
	"com": true, "org": true, "net": true, "edu": true, "gov": true, "mil": true,
	"io": true, "co": true, "dev": true, "app": true, "info": true, "biz": true,
	"jp": true, "uk": true, "us": true, "ca": true, "au": true, "de": true,
	"fr": true, "cn": true, "in": true, "br": true, "xyz": true, "me": true,
}

var exampleDomains = map[string]bool{
	"example.com": true, "example.org": true, "example.net": true,
}

var nonPIILocalParts = map[string]bool{
	"noreply": true, "no-reply": true, "postmaster": true,
	"admin": true, "support": true, "donotreply": true,
}

// Email validates a candidate email address.
func Email(value string, strictness Strictness) Result {
	if r, done := sizeCheck(value); done {
		return r
	}
	if !emailRe.MatchString(value) {
		return invalid("syntax")
	}
	at := strings.LastIndex(value, "@")
	local := strings.ToLower(value[:at])
	domain := strings.ToLower(value[at+1:])

	tld := domain
	if idx := strings.LastIndex(domain, "."); idx >= 0 {
		tld = domain[idx+1:]
	}
	if !knownTLDs[tld] {
		return invalid("unknown_tld")
	}
	if strictness != StrictnessFast && exampleDomains[domain] {
		return invalid("example_domain")
	}
	if strictness == StrictnessStrict && nonPIILocalParts[local] {
		return invalid("non_pii_local_part")
	}
	return Result{Valid: true, Reason: "well_formed", Metadata: map[string]any{"domain": domain, "local": local}}
}

var privateRanges = []string{
	"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16",
}

var docRanges = []string{
	"192.0.2.0/24", "198.51.100.0/24", "203.0.113.0/24",
}

func inCIDRList(ip net.IP, cidrs []string) bool {
	for _, c := range cidrs {
		_, ipnet, err := net.ParseCIDR(c)
		if err != nil {
			continue
		}
		if ipnet.Contains(ip) {
			return true
		}
	}
	return false
}

// IPv4Class describes which private/reserved bucket an address falls
// into, for the allow/deny filter to consult without re-parsing.
type IPv4Class struct {
	Private     bool
	Loopback    bool
	LinkLocal   bool
	Documented  bool
	Unspecified bool
}

// ClassifyIPv4 reports which reserved ranges ip falls into.
func ClassifyIPv4(ip net.IP) IPv4Class {
	return IPv4Class{
		Private:     inCIDRList(ip, privateRanges),
		Loopback:    ip.IsLoopback(),
		LinkLocal:   ip.IsLinkLocalUnicast(),
		Documented:  inCIDRList(ip, docRanges),
		Unspecified: ip.IsUnspecified(),
	}
}

// IPv4 validates a candidate dotted-quad address and, at balanced/strict
// strictness, rejects private/loopback/link-local ranges unless
// allowPrivate is set by the caller's configuration.
func IPv4(value string, strictness Strictness, allowPrivate bool) Result {
	if r, done := sizeCheck(value); done {
		return r
	}
	ip := net.ParseIP(value)
	if ip == nil || ip.To4() == nil {
		return invalid("syntax")
	}
	ip4 := ip.To4()
	class := ClassifyIPv4(ip4)
	if class.Documented || class.Unspecified {
		return valid("documentation_or_unspecified")
	}
	if strictness != StrictnessFast && !allowPrivate {
		if class.Private || class.Loopback || class.LinkLocal {
			return invalid("private_range")
		}
	}
	return Result{Valid: true, Reason: "well_formed", Metadata: map[string]any{"class": class}}
}

var phoneE164Re = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)

// PhoneE164 validates a candidate E.164-formatted phone number: a `+`
// prefix followed by 8-15 digits, the first of which must not be 0.
func PhoneE164(value string) Result {
	if r, done := sizeCheck(value); done {
		return r
	}
	if !phoneE164Re.MatchString(value) {
		return invalid("syntax")
	}
	return valid("well_formed")
}
