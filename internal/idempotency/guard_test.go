package idempotency

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

func TestLowStockKeyNormalises(t *testing.T) {
	a := LowStockKey("CASE-1", "  Qwen2.5 Laptop Bundle ", []string{"USB-C Dock", " monitor-27"})
	b := LowStockKey("CASE-1", "qwen2.5 laptop bundle", []string{"monitor-27", "usb-c dock", ""})
	if a != b {
		t.Fatalf("keys differ:\n%s\n%s", a, b)
	}
	if LowStockKey("CASE-2", "qwen2.5 laptop bundle", nil) == a {
		t.Fatalf("case id ignored")
	}
}

func TestMemoryGuardAcquireOnce(t *testing.T) {
	g := NewMemoryGuard(0)
	ctx := context.Background()
	var won atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := g.Acquire(ctx, "k")
			if err != nil {
				t.Errorf("acquire: %v", err)
			}
			if ok {
				won.Add(1)
			}
		}()
	}
	wg.Wait()
	if won.Load() != 1 {
		t.Fatalf("expected one winner, got %d", won.Load())
	}
	if err := g.Release(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := g.Acquire(ctx, "k"); !ok {
		t.Fatalf("expected acquire after release")
	}
}
