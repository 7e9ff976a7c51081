package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, "test:", time.Minute), mr
}

func TestRedisCacheRoundTrip(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	ctx := context.Background()

	if _, ok, err := cache.Get(ctx, "abc"); ok || err != nil {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	want := &PredictionResult{Label: "potholes", Confidence: 0.7}
	if err := cache.Set(ctx, "abc", want); err != nil {
		t.Fatalf("unexpected set error: %v", err)
	}
	if !mr.Exists("test:abc") {
		t.Fatal("expected prefixed key in redis")
	}

	got, ok, err := cache.Get(ctx, "abc")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if *got != *want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestRedisCacheExpires(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	ctx := context.Background()

	if err := cache.Set(ctx, "k", &PredictionResult{Label: "garbage", Confidence: 1}); err != nil {
		t.Fatalf("unexpected set error: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, ok, err := cache.Get(ctx, "k"); ok || err != nil {
		t.Fatalf("expected expired entry to miss, got ok=%v err=%v", ok, err)
	}
}

func TestRedisCacheCorruptEntry(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	if err := mr.Set("test:bad", "{not json"); err != nil {
		t.Fatalf("failed to seed redis: %v", err)
	}

	if _, ok, err := cache.Get(context.Background(), "bad"); ok || err == nil {
		t.Fatalf("expected decode error, got ok=%v err=%v", ok, err)
	}
}

func TestRedisCacheUnavailable(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	mr.Close()

	if _, _, err := cache.Get(context.Background(), "k"); err == nil {
		t.Fatal("expected error when redis is down")
	}
}
