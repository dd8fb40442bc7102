package allowcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/vura/sentinel/pkg/piitypes"
)

func setupTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewWithClient(client)
	return c, mr
}

func TestPutAllowAndLoad_RoundTrips(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	if err := c.PutAllow(ctx, "production", piitypes.TypeEmail, []string{"*.test", "*.localhost"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	allow, deny, err := c.Load(ctx, "production")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(deny) != 0 {
		t.Errorf("expected no deny entries, got %+v", deny)
	}
	got := allow[piitypes.TypeEmail]
	if len(got) != 2 || got[0] != "*.test" || got[1] != "*.localhost" {
		t.Errorf("expected allow patterns round-tripped, got %+v", got)
	}
}

func TestPutDeny_SeparateFromAllow(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	c.PutAllow(ctx, "development", piitypes.TypeIPv4, []string{"10.0.0.0/8"})
	c.PutDeny(ctx, "development", piitypes.TypeIPv4, []string{"10.0.0.99"})

	allow, deny, err := c.Load(ctx, "development")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(allow[piitypes.TypeIPv4]) != 1 || allow[piitypes.TypeIPv4][0] != "10.0.0.0/8" {
		t.Errorf("expected allow entry preserved, got %+v", allow)
	}
	if len(deny[piitypes.TypeIPv4]) != 1 || deny[piitypes.TypeIPv4][0] != "10.0.0.99" {
		t.Errorf("expected deny entry preserved, got %+v", deny)
	}
}

func TestLoad_UnknownEnvironmentReturnsEmptyMaps(t *testing.T) {
	c, _ := setupTestCache(t)
	allow, deny, err := c.Load(context.Background(), "nowhere")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(allow) != 0 || len(deny) != 0 {
		t.Errorf("expected empty maps for unknown environment, got allow=%+v deny=%+v", allow, deny)
	}
}

func TestClear_RemovesScope(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()
	c.PutAllow(ctx, "test", piitypes.TypeEmail, []string{"*.test"})

	if err := c.Clear(ctx, "test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	allow, _, err := c.Load(ctx, "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(allow) != 0 {
		t.Errorf("expected scope cleared, got %+v", allow)
	}
}

func TestTTLExpiry_RemovesOverrides(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()
	c.SetTTL(1 * time.Second)
	c.PutAllow(ctx, "production", piitypes.TypeEmail, []string{"*.test"})

	mr.FastForward(2 * time.Second)

	allow, _, err := c.Load(ctx, "production")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(allow) != 0 {
		t.Errorf("expected expired overrides, got %+v", allow)
	}
}
