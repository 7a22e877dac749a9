package gateway

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucketBurst(t *testing.T) {
	l := NewTokenBucketLimiter(1, 3)
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("wait err: %v", err)
		}
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatalf("burst tokens should not block")
	}
}

func TestTokenBucketThrottles(t *testing.T) {
	l := NewTokenBucketLimiter(20, 1)
	ctx := context.Background()
	_ = l.Wait(ctx)
	start := time.Now()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("wait err: %v", err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatalf("expected throttling, waited %v", time.Since(start))
	}
}

func TestTokenBucketCancel(t *testing.T) {
	l := NewTokenBucketLimiter(0.1, 1)
	_ = l.Wait(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatalf("expected context error")
	}
}
