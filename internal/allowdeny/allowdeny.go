// Package allowdeny implements the environment-aware allow/deny filter
// from spec §4.E: custom deny beats custom allow beats built-in
// allow-lists, with environment and allow_test_patterns gating.
//
// Grounded on internal/detector/detector.go's Config.AllowList/BlockList
// exact-value maps, generalized from exact values to suffix/glob pattern
// sets (spec's "*.test", "*.localhost") and from a single global list to
// per-type custom lists plus the built-in environment-aware defaults.
package allowdeny

import (
	"context"
	"net"
	"regexp"
	"strings"

	"github.com/vura/sentinel/internal/allowcache"
	"github.com/vura/sentinel/internal/validate"
	"github.com/vura/sentinel/pkg/piitypes"
)

// Environment affects which built-in allow-list entries are active.
type Environment string

const (
	EnvProduction  Environment = "production"
	EnvDevelopment Environment = "development"
	EnvTest        Environment = "test"
)

// Config is the allow/deny configuration surface from spec §3.
type Config struct {
	Allow             map[piitypes.PIIType][]string
	Deny              map[piitypes.PIIType][]string
	AllowPrivateIPs   bool
	AllowTestPatterns bool

	// Cache, if set, is consulted once at Filter construction time for
	// caller-pushed overrides scoped to the active environment; its
	// patterns are merged ahead of the static Allow/Deny maps above, per
	// SPEC_FULL §10.
	Cache *allowcache.Cache
}

// Filter evaluates hits against Config and the active Environment.
type Filter struct {
	cfg Config
	env Environment
}

// New constructs a Filter. When cfg.Cache is set, it loads that
// environment's cached overrides and merges them ahead of cfg.Allow/
// cfg.Deny. The lookup is best-effort: a Redis error leaves the static
// config as the sole source of truth rather than failing construction,
// mirroring metricsink.RedisSink.Record's "never fail the caller" rule.
func New(cfg Config, env Environment) *Filter {
	if cfg.Cache != nil {
		if allow, deny, err := cfg.Cache.Load(context.Background(), string(env)); err == nil {
			cfg.Allow = mergePatternMaps(cfg.Allow, allow)
			cfg.Deny = mergePatternMaps(cfg.Deny, deny)
		}
	}
	return &Filter{cfg: cfg, env: env}
}

// mergePatternMaps combines base with cached, cached patterns taking
// precedence in iteration order (checked first by matchesAny) for types
// present in both.
func mergePatternMaps(base, cached map[piitypes.PIIType][]string) map[piitypes.PIIType][]string {
	if len(cached) == 0 {
		return base
	}
	out := make(map[piitypes.PIIType][]string, len(base)+len(cached))
	for t, p := range base {
		out[t] = p
	}
	for t, p := range cached {
		out[t] = append(append([]string{}, p...), out[t]...)
	}
	return out
}

// Allowed reports whether hit should be suppressed (i.e. NOT returned to
// the caller). It evaluates the four-step order from spec §4.E.
func (f *Filter) Allowed(hit piitypes.Hit) bool {
	value := hit.Value

	if matchesAny(f.cfg.Deny[hit.Type], value) {
		return false
	}
	if matchesAny(f.cfg.Allow[hit.Type], value) {
		return true
	}
	if f.builtinAllowed(hit) {
		return true
	}
	if f.cfg.AllowTestPatterns && isTestPattern(hit.Type, value) {
		return true
	}
	return false
}

func matchesAny(patterns []string, value string) bool {
	lower := strings.ToLower(value)
	for _, p := range patterns {
		if globMatch(strings.ToLower(p), lower) {
			return true
		}
	}
	return false
}

// globMatch supports a single leading "*." wildcard in addition to exact
// match, per spec's "*.test"/"*.localhost" built-ins.
func globMatch(pattern, value string) bool {
	if pattern == value {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		suffix := pattern[1:] // ".test"
		return strings.HasSuffix(value, suffix) || value == pattern[2:]
	}
	return false
}

var alwaysAllowedEmailLocal = map[string]bool{
	"noreply": true, "no-reply": true, "postmaster": true,
}

var nonProdAllowedDomains = []string{
	"example.com", "example.org", "example.net", "*.test", "*.localhost", "localhost", "invalid",
}

func (f *Filter) builtinAllowed(hit piitypes.Hit) bool {
	switch hit.Type {
	case piitypes.TypeEmail:
		return f.emailBuiltinAllowed(hit.Value)
	case piitypes.TypeIPv4:
		return f.ipv4BuiltinAllowed(hit.Value)
	}
	return false
}

func (f *Filter) emailBuiltinAllowed(value string) bool {
	at := strings.LastIndex(value, "@")
	if at < 0 {
		return false
	}
	local := strings.ToLower(value[:at])
	domain := strings.ToLower(value[at+1:])

	if alwaysAllowedEmailLocal[local] {
		return true
	}
	if f.env == EnvProduction {
		return false
	}
	return matchesAny(nonProdAllowedDomains, domain)
}

func (f *Filter) ipv4BuiltinAllowed(value string) bool {
	ip := net.ParseIP(value)
	if ip == nil {
		return false
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return false
	}
	class := validate.ClassifyIPv4(ip4)
	if class.Documented || class.Unspecified {
		return true
	}
	if f.cfg.AllowPrivateIPs {
		return class.Private || class.Loopback || class.LinkLocal
	}
	if f.env == EnvDevelopment || f.env == EnvTest {
		return class.Private || class.Loopback || class.LinkLocal
	}
	return false
}

var testEmailPrefixRe = regexp.MustCompile(`(?i)^test[\w.+-]*@`)

// isDigitRun reports whether digits is "1234567890" or ten or more
// copies of one digit.
func isDigitRun(digits string) bool {
	if digits == "1234567890" {
		return true
	}
	if len(digits) < 10 {
		return false
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' || digits[i] != digits[0] {
			return false
		}
	}
	return true
}

func isTestPattern(t piitypes.PIIType, value string) bool {
	switch t {
	case piitypes.TypePhoneE164:
		digits := strings.TrimPrefix(value, "+")
		return isDigitRun(digits)
	case piitypes.TypeEmail:
		return testEmailPrefixRe.MatchString(value)
	}
	return false
}
