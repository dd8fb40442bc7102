package allowdeny

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/vura/sentinel/internal/allowcache"
	"github.com/vura/sentinel/pkg/piitypes"
)

func hit(typ piitypes.PIIType, value string) piitypes.Hit {
	return piitypes.Hit{Type: typ, Value: value}
}

func TestAllowed_BuiltinEmail(t *testing.T) {
	tests := []struct {
		name  string
		env   Environment
		value string
		want  bool
	}{
		{"noreply always allowed", EnvProduction, "noreply@corp.com", true},
		{"example.com allowed outside prod", EnvDevelopment, "user@example.com", true},
		{"example.com denied in prod", EnvProduction, "user@example.com", false},
		{"real address denied", EnvProduction, "user@corp.com", false},
		{"dot-test tld allowed outside prod", EnvTest, "user@acme.test", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(Config{}, tt.env)
			got := f.Allowed(hit(piitypes.TypeEmail, tt.value))
			if got != tt.want {
				t.Errorf("Allowed(%q, env=%s) = %v, want %v", tt.value, tt.env, got, tt.want)
			}
		})
	}
}

func TestAllowed_BuiltinIPv4(t *testing.T) {
	tests := []struct {
		name         string
		env          Environment
		allowPrivate bool
		value        string
		want         bool
	}{
		{"public ip denied by default", EnvProduction, false, "8.8.8.8", false},
		{"private denied in prod without flag", EnvProduction, false, "10.0.0.5", false},
		{"private allowed with flag", EnvProduction, true, "10.0.0.5", true},
		{"private allowed in dev env", EnvDevelopment, false, "192.168.1.1", true},
		{"documented range always allowed", EnvProduction, false, "203.0.113.1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(Config{AllowPrivateIPs: tt.allowPrivate}, tt.env)
			got := f.Allowed(hit(piitypes.TypeIPv4, tt.value))
			if got != tt.want {
				t.Errorf("Allowed(%q, env=%s) = %v, want %v", tt.value, tt.env, got, tt.want)
			}
		})
	}
}

func TestAllowed_CustomDenyBeatsCustomAllow(t *testing.T) {
	cfg := Config{
		Allow: map[piitypes.PIIType][]string{piitypes.TypeEmail: {"user@corp.com"}},
		Deny:  map[piitypes.PIIType][]string{piitypes.TypeEmail: {"user@corp.com"}},
	}
	f := New(cfg, EnvProduction)
	if f.Allowed(hit(piitypes.TypeEmail, "user@corp.com")) {
		t.Error("expected custom deny to override custom allow")
	}
}

func TestAllowed_CustomAllowOverridesBuiltinDeny(t *testing.T) {
	cfg := Config{Allow: map[piitypes.PIIType][]string{piitypes.TypeEmail: {"*.internal-test.corp"}}}
	f := New(cfg, EnvProduction)
	if !f.Allowed(hit(piitypes.TypeEmail, "user@dev.internal-test.corp")) {
		t.Error("expected custom allow glob to suppress the hit")
	}
}

func TestAllowed_TestPatterns(t *testing.T) {
	cfg := Config{AllowTestPatterns: true}
	f := New(cfg, EnvProduction)

	if !f.Allowed(hit(piitypes.TypePhoneE164, "+11111111111")) {
		t.Error("expected digit-run phone to be allowed as a test pattern")
	}
	if !f.Allowed(hit(piitypes.TypeEmail, "test-user@corp.com")) {
		t.Error("expected test-prefixed email to be allowed as a test pattern")
	}

	cfgOff := Config{AllowTestPatterns: false}
	fOff := New(cfgOff, EnvProduction)
	if fOff.Allowed(hit(piitypes.TypePhoneE164, "+11111111111")) {
		t.Error("expected test-pattern allowance to require the flag")
	}
}

func TestAllowed_CacheOverrideMergesAheadOfStaticConfig(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := allowcache.NewWithClient(client)

	if err := cache.PutAllow(context.Background(), string(EnvProduction), piitypes.TypeEmail, []string{"*.acme-vendor.com"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := Config{Cache: cache}
	f := New(cfg, EnvProduction)
	if !f.Allowed(hit(piitypes.TypeEmail, "user@billing.acme-vendor.com")) {
		t.Error("expected cache-pushed allow pattern to suppress the hit")
	}
}

func TestAllowed_CacheUnavailableFallsBackToStaticConfig(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := allowcache.NewWithClient(client)
	mr.Close()

	cfg := Config{
		Allow: map[piitypes.PIIType][]string{piitypes.TypeEmail: {"user@corp.com"}},
		Cache: cache,
	}
	f := New(cfg, EnvProduction)
	if !f.Allowed(hit(piitypes.TypeEmail, "user@corp.com")) {
		t.Error("expected static allow config to still apply when the cache is unreachable")
	}
}

func TestGlobMatch(t *testing.T) {
	tests := []struct {
		pattern, value string
		want           bool
	}{
		{"*.test", "foo.test", true},
		{"*.test", "test", true},
		{"*.test", "foo.testing", false},
		{"example.com", "example.com", true},
		{"example.com", "notexample.com", false},
	}
	for _, tt := range tests {
		got := globMatch(tt.pattern, tt.value)
		if got != tt.want {
			t.Errorf("globMatch(%q, %q) = %v, want %v", tt.pattern, tt.value, got, tt.want)
		}
	}
}
