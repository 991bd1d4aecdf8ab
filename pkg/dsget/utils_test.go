// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dsget

import (
	"context"
	"testing"
	"time"
)

func TestBackoff_GrowsAndCaps(t *testing.T) {
	cfg := Settings{BackoffInitial: "100ms", BackoffMax: "1s"}
	b := newRetry(cfg)

	prev := time.Duration(0)
	for i := 0; i < 10; i++ {
		d := b.Next()
		if d <= 0 {
			t.Fatalf("backoff %d is not positive: %v", i, d)
		}
		// Allow jitter, but the cap must hold.
		if d > 1*time.Second+200*time.Millisecond {
			t.Fatalf("backoff %d exceeds cap: %v", i, d)
		}
		prev = d
	}
	_ = prev
}

func TestBackoff_DefaultsOnBadInput(t *testing.T) {
	b := newRetry(Settings{BackoffInitial: "not-a-duration", BackoffMax: "also-bad"})
	if d := b.Next(); d < 400*time.Millisecond {
		t.Errorf("expected default initial backoff of at least 400ms, got %v", d)
	}
}

func TestSleepCtx(t *testing.T) {
	t.Run("completes", func(t *testing.T) {
		if !sleepCtx(context.Background(), time.Millisecond) {
			t.Error("sleepCtx should return true when uninterrupted")
		}
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if sleepCtx(ctx, time.Hour) {
			t.Error("sleepCtx should return false on canceled context")
		}
	})
}

func TestDefaultString(t *testing.T) {
	if got := defaultString("", "fallback"); got != "fallback" {
		t.Errorf("got %q", got)
	}
	if got := defaultString("value", "fallback"); got != "value" {
		t.Errorf("got %q", got)
	}
}
