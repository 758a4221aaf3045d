package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestPerSecondInterval(t *testing.T) {
	l := PerSecond(10)
	if l.Interval() != 100*time.Millisecond {
		t.Errorf("interval = %v, want 100ms", l.Interval())
	}
}

func TestUnlimitedDoesNotBlock(t *testing.T) {
	l := PerSecond(0)
	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Error("unlimited limiter blocked")
	}
}

func TestWaitSpacesCalls(t *testing.T) {
	l := PerSecond(100) // 10ms spacing
	start := time.Now()
	for i := 0; i < 4; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
	// First call is free, three more need >= 30ms total.
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("4 calls at 100rps took %v, expected at least ~30ms", elapsed)
	}
}

func TestWaitHonorsCancellation(t *testing.T) {
	l := PerMinute(1) // 1-minute spacing
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := l.Wait(ctx)
	if err == nil {
		t.Fatal("expected context error")
	}
	if time.Since(start) > time.Second {
		t.Error("cancelled wait blocked too long")
	}
}
