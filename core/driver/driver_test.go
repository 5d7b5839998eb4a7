package driver

import (
	"context"
	"testing"
	"time"

	"github.com/symbioticfi/points-indexer/core/store"
	"github.com/symbioticfi/points-indexer/internal/teststore"
)

func TestConfigWithDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	if c.PollInterval != 12*time.Second {
		t.Errorf("PollInterval default = %v, want 12s", c.PollInterval)
	}
	if c.RetryAttempts != 5 {
		t.Errorf("RetryAttempts default = %d, want 5", c.RetryAttempts)
	}
	if c.RetryBaseBackoff != 500*time.Millisecond {
		t.Errorf("RetryBaseBackoff default = %v, want 500ms", c.RetryBaseBackoff)
	}

	custom := Config{PollInterval: time.Second, RetryAttempts: 2, RetryBaseBackoff: time.Millisecond}.withDefaults()
	if custom.PollInterval != time.Second || custom.RetryAttempts != 2 || custom.RetryBaseBackoff != time.Millisecond {
		t.Errorf("withDefaults overwrote explicit values: %+v", custom)
	}
}

// TestWindowColdStart checks that on first run (points cursor at
// its zero value), the window starts at cfg.StartBlock.
func TestWindowColdStart(t *testing.T) {
	ctx := context.Background()
	st := teststore.New()
	if err := st.AdvanceTimepoint(ctx, store.CursorEvents, 100); err != nil {
		t.Fatal(err)
	}
	if err := st.AdvanceTimepoint(ctx, store.CursorPrices, 80); err != nil {
		t.Fatal(err)
	}

	d := New(st, Config{StartBlock: 42}, nil)
	start, end, err := d.window(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if start != 42 {
		t.Errorf("cold start = %d, want 42", start)
	}
	if end != 80 {
		t.Errorf("end = %d, want min(events=100, prices=80)=80", end)
	}
}

// TestWindowResumesAfterPointsCursor covers the steady-state case: start is
// always the points cursor's successor, regardless of StartBlock.
func TestWindowResumesAfterPointsCursor(t *testing.T) {
	ctx := context.Background()
	st := teststore.New()
	if err := st.AdvanceTimepoint(ctx, store.CursorPoints, 10); err != nil {
		t.Fatal(err)
	}
	if err := st.AdvanceTimepoint(ctx, store.CursorEvents, 50); err != nil {
		t.Fatal(err)
	}
	if err := st.AdvanceTimepoint(ctx, store.CursorPrices, 60); err != nil {
		t.Fatal(err)
	}

	d := New(st, Config{StartBlock: 1000}, nil)
	start, end, err := d.window(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if start != 11 {
		t.Errorf("start = %d, want points cursor(10)+1=11", start)
	}
	if end != 50 {
		t.Errorf("end = %d, want min(events=50, prices=60)=50", end)
	}
}

// TestWindowEmptyWhenCaughtUp covers the no-new-blocks case: start > end,
// signalling stepAll should do nothing and Run should sleep.
func TestWindowEmptyWhenCaughtUp(t *testing.T) {
	ctx := context.Background()
	st := teststore.New()
	if err := st.AdvanceTimepoint(ctx, store.CursorPoints, 10); err != nil {
		t.Fatal(err)
	}
	if err := st.AdvanceTimepoint(ctx, store.CursorEvents, 10); err != nil {
		t.Fatal(err)
	}
	if err := st.AdvanceTimepoint(ctx, store.CursorPrices, 10); err != nil {
		t.Fatal(err)
	}

	d := New(st, Config{}, nil)
	start, end, err := d.window(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if start <= end {
		t.Errorf("expected start(%d) > end(%d) when fully caught up", start, end)
	}

	advanced, err := d.stepAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if advanced {
		t.Error("stepAll reported progress with an empty window")
	}
}
