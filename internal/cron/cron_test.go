package cron

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fired struct {
	mu    sync.Mutex
	names map[string]int
}

func newFired() *fired { return &fired{names: make(map[string]int)} }

func (f *fired) record(name string) {
	f.mu.Lock()
	f.names[name]++
	f.mu.Unlock()
}

func (f *fired) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.names[name]
}

func TestTimerFires(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFired()
	tm := New(ctx, f.record)

	tm.Add(Job{Name: "sync", At: time.Now().Add(100 * time.Millisecond)})
	time.Sleep(300 * time.Millisecond)

	if f.count("sync") != 1 {
		t.Fatalf("expected sync to fire once, got %d", f.count("sync"))
	}
}

func TestTimerRemoveBeforeFire(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFired()
	tm := New(ctx, f.record)

	tm.Add(Job{Name: "sync", At: time.Now().Add(500 * time.Millisecond)})
	time.Sleep(50 * time.Millisecond)
	tm.Remove("sync")
	time.Sleep(700 * time.Millisecond)

	if f.count("sync") != 0 {
		t.Fatal("expected a removed job not to fire")
	}
}

func TestTimerStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := newFired()
	tm := New(ctx, f.record)

	tm.Add(Job{Name: "sync", At: time.Now().Add(300 * time.Millisecond)})
	cancel()
	time.Sleep(500 * time.Millisecond)

	if f.count("sync") != 0 {
		t.Fatal("expected no fire after cancel")
	}
	// Add must not block once the loop is gone.
	tm.Add(Job{Name: "late", At: time.Now()})
}

func TestTimerFiresInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var mu sync.Mutex
	var order []string
	tm := New(ctx, func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	})

	now := time.Now()
	tm.Add(Job{Name: "second", At: now.Add(200 * time.Millisecond)})
	tm.Add(Job{Name: "first", At: now.Add(100 * time.Millisecond)})
	time.Sleep(400 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("expected [first second], got %v", order)
	}
}

func TestTimerRecurringStaysScheduled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFired()
	tm := New(ctx, f.record)

	tm.Add(Job{Name: "sync", At: time.Now().Add(50 * time.Millisecond), Expr: "* * * * *"})
	time.Sleep(250 * time.Millisecond)

	if f.count("sync") < 1 {
		t.Fatalf("expected the recurring job to fire, got %d", f.count("sync"))
	}
}

func TestNext(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	next, err := Next("0 2 * * *", from)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if next.Hour() != 2 || next.Minute() != 0 || next.Day() != 1 {
		t.Fatalf("expected 2026-03-01 02:00, got %v", next)
	}
	if _, err := Next("bad-expr", from); err == nil {
		t.Fatal("expected an error for an invalid expression")
	}
}

func TestEvery(t *testing.T) {
	from := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	j, err := Every("sync", "*/15 * * * *", from)
	if err != nil {
		t.Fatalf("Every: %v", err)
	}
	if j.Name != "sync" || j.Expr != "*/15 * * * *" {
		t.Fatalf("unexpected job: %+v", j)
	}
	if want := from.Add(15 * time.Minute); !j.At.Equal(want) {
		t.Fatalf("expected %v, got %v", want, j.At)
	}

	tests := []string{"", "bad", "* * * *", "0 * * * * *"}
	for _, expr := range tests {
		if _, err := Every("sync", expr, from); err == nil {
			t.Errorf("expected %q to be rejected", expr)
		}
	}
}

func TestEveryNoOccurrence(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if _, err := Every("sync", "0 0 30 2 *", from); err == nil {
		t.Fatal("expected February 30th to be rejected")
	}
}
