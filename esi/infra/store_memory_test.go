package infra

import (
	"context"
	"testing"
	"time"
)

type manualNow struct{ t time.Time }

func (m *manualNow) now() time.Time          { return m.t }
func (m *manualNow) advance(d time.Duration) { m.t = m.t.Add(d) }

func TestMemoryStore_IncrCountsPerKey(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := s.Incr(ctx, "a")
		if err != nil {
			t.Fatalf("incr: %v", err)
		}
		if n != want {
			t.Fatalf("expected %d, got %d", want, n)
		}
	}
	if n, _ := s.Incr(ctx, "b"); n != 1 {
		t.Fatalf("expected independent counter for other key, got %d", n)
	}
}

func TestMemoryStore_ExpireRemovesKey(t *testing.T) {
	clk := &manualNow{t: time.Unix(1_700_000_000, 0)}
	s := NewMemoryStore(WithNow(clk.now))
	ctx := context.Background()

	_, _ = s.Incr(ctx, "w")
	if err := s.Expire(ctx, "w", time.Second); err != nil {
		t.Fatalf("expire: %v", err)
	}
	clk.advance(999 * time.Millisecond)
	if _, ok, _ := s.Get(ctx, "w"); !ok {
		t.Fatalf("expected key alive before ttl")
	}
	clk.advance(time.Millisecond)
	if _, ok, _ := s.Get(ctx, "w"); ok {
		t.Fatalf("expected key expired at ttl")
	}
	if n, _ := s.Incr(ctx, "w"); n != 1 {
		t.Fatalf("expected counter to restart after expiry, got %d", n)
	}
}

func TestMemoryStore_SetWithoutTTLNeverExpires(t *testing.T) {
	clk := &manualNow{t: time.Unix(1_700_000_000, 0)}
	s := NewMemoryStore(WithNow(clk.now))
	ctx := context.Background()

	_ = s.Set(ctx, "k", "v", 0)
	clk.advance(24 * time.Hour)
	v, ok, _ := s.Get(ctx, "k")
	if !ok || v != "v" {
		t.Fatalf("expected k=v, got %q ok=%v", v, ok)
	}
}

func TestMemoryStore_CleanupDropsExpired(t *testing.T) {
	clk := &manualNow{t: time.Unix(1_700_000_000, 0)}
	s := NewMemoryStore(WithNow(clk.now))
	ctx := context.Background()

	_ = s.Set(ctx, "short", "1", time.Second)
	_ = s.Set(ctx, "long", "1", time.Hour)
	clk.advance(2 * time.Second)

	s.Cleanup()
	if got := s.Len(); got != 1 {
		t.Fatalf("expected 1 live key, got %d", got)
	}
}

func TestMemoryStore_StartJanitorStopsOnCancel(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())

	_ = s.Set(ctx, "k", "v", time.Millisecond)
	s.StartJanitor(ctx, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	cancel()

	s.mu.Lock()
	n := len(s.entries)
	s.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected janitor to drop expired key, %d entries left", n)
	}
}
