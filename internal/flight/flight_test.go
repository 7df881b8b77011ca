package flight

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFuture_SettleOnce(t *testing.T) {
	f := NewFuture[int]()

	if f.Settled() {
		t.Fatal("new future should not be settled")
	}
	if !f.Settle(1, nil) {
		t.Fatal("first Settle should report true")
	}
	if f.Settle(2, errors.New("late")) {
		t.Fatal("second Settle should report false")
	}

	v, err := f.Wait(context.Background())
	if v != 1 || err != nil {
		t.Errorf("Wait = %d, %v", v, err)
	}
}

func TestFuture_WaitContext(t *testing.T) {
	f := NewFuture[struct{}]()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if f.Settled() {
		t.Error("abandoning the wait must not settle the future")
	}
}

func TestGroup_DeduplicatesConcurrentCallers(t *testing.T) {
	var g Group[string, int]
	var starts atomic.Int32

	shared := NewFuture[int]()
	start := func() *Future[int] {
		starts.Add(1)
		return shared
	}

	var wg sync.WaitGroup
	results := make([]*Future[int], 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = g.Do("es", start)
		}(i)
	}
	wg.Wait()

	if starts.Load() != 1 {
		t.Fatalf("expected 1 start, got %d", starts.Load())
	}
	for _, f := range results {
		if f != shared {
			t.Fatal("caller received a different future")
		}
	}
	if !g.InFlight("es") {
		t.Error("expected es to be in flight")
	}
}

func TestGroup_RemovesOnSettle(t *testing.T) {
	var g Group[string, int]

	f1, shared := g.Do("es", NewFuture[int])
	if shared {
		t.Fatal("first call should not be shared")
	}
	f1.Settle(0, errors.New("boom"))

	deadline := time.Now().Add(time.Second)
	for g.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if g.Len() != 0 {
		t.Fatal("settled entry was not removed")
	}

	f2, shared := g.Do("es", NewFuture[int])
	if shared || f2 == f1 {
		t.Error("expected a fresh operation after settle")
	}
}

func TestGroup_SettledEntryNotShared(t *testing.T) {
	var g Group[string, int]

	f1, _ := g.Do("es", NewFuture[int])
	f1.Settle(1, nil)

	// the cleanup goroutine may not have run yet
	f2, shared := g.Do("es", NewFuture[int])
	if shared || f2 == f1 {
		t.Error("a settled future must never be shared")
	}
}

func TestGroup_KeysIndependent(t *testing.T) {
	var g Group[string, int]

	a, _ := g.Do("es", NewFuture[int])
	b, shared := g.Do("fr", NewFuture[int])

	if shared || a == b {
		t.Error("different keys must not share")
	}
}

func TestGroup_AlreadySettledStartNotTracked(t *testing.T) {
	var g Group[string, int]

	f, _ := g.Do("xx", func() *Future[int] {
		f := NewFuture[int]()
		f.Settle(0, errors.New("unsupported"))
		return f
	})

	if !f.Settled() {
		t.Fatal("expected settled future")
	}
	if g.InFlight("xx") || g.Len() != 0 {
		t.Error("settled start result should not be tracked")
	}
}
