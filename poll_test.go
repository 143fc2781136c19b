package smartfetch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestPollSchedulesAfterSettlement(t *testing.T) {
	var calls int32
	f := newTestFetcher(t, countingTransport(&calls, okResponse("{}")))

	in, err := f.Fetch(Config{URL: testURL, Poll: PollEvery(50 * time.Millisecond)})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&calls) == 1 })

	// The next run must not start before the interval elapses.
	time.Sleep(20 * time.Millisecond)
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("second run started before the interval, %d calls", n)
	}

	waitFor(t, 2*time.Second, func() bool { return atomic.LoadInt32(&calls) >= 2 })
	in.StopPoll()
}

func TestPollNegativeIntervalDisabled(t *testing.T) {
	var calls int32
	f := newTestFetcher(t, countingTransport(&calls, okResponse("{}")))

	in, _ := f.Fetch(Config{URL: testURL, Poll: PollEvery(-1)})
	waitFor(t, time.Second, func() bool { return in.IsFinished() })

	time.Sleep(50 * time.Millisecond)
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("negative interval must disable polling, saw %d calls", n)
	}
}

func TestPollFuncResolvedFreshFromState(t *testing.T) {
	var calls int32
	f := newTestFetcher(t, countingTransport(&calls, okResponse("{}")))

	// Poll quickly until a result exists, then stop.
	interval := PollFunc(func(snap Snapshot) time.Duration {
		if snap.Result != nil {
			return -1
		}
		return 10 * time.Millisecond
	})

	in, _ := f.Fetch(Config{URL: testURL, Poll: interval})
	waitFor(t, time.Second, func() bool { return in.IsFinished() })

	time.Sleep(80 * time.Millisecond)
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("interval func resolving negative must stop polling, saw %d calls", n)
	}
}

func TestStopPollCancelsPendingTick(t *testing.T) {
	var calls int32
	f := newTestFetcher(t, countingTransport(&calls, okResponse("{}")))

	in, _ := f.Fetch(Config{URL: testURL, Poll: PollEvery(40 * time.Millisecond)})
	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&calls) == 1 })

	in.StopPoll()
	time.Sleep(120 * time.Millisecond)
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("StopPoll must cancel the pending run, saw %d calls", n)
	}
}

func TestPollSurvivesFailedRuns(t *testing.T) {
	var calls int32
	failing := TransportFunc(func(ctx context.Context, cfg Config) (*Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, &Error{Type: ErrorTypeTransport, Message: "down"}
	})

	f := newTestFetcher(t, failing)
	in, _ := f.Fetch(Config{URL: testURL, Poll: PollEvery(15 * time.Millisecond)})

	waitFor(t, 2*time.Second, func() bool { return atomic.LoadInt32(&calls) >= 3 })
	in.StopPoll()
	if in.Err() == nil {
		t.Error("failed polls must record the error")
	}
}

func TestPollSeedsInitialRunWhenInactive(t *testing.T) {
	var calls int32
	f := newTestFetcher(t, countingTransport(&calls, okResponse("{}")))

	// Non-lazy but constructed without a URL: stays inactive.
	in, _ := f.Fetch(Config{})
	if in.Status() != StatusInactive {
		t.Fatalf("expected inactive, got %v", in.Status())
	}
	if err := in.Fulfill(testURL); err != nil {
		t.Fatalf("Fulfill failed: %v", err)
	}

	in.Poll(PollEvery(30 * time.Millisecond))
	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&calls) >= 1 })
	in.StopPoll()
}

func TestPollNotSeededWhenLazy(t *testing.T) {
	var calls int32
	f := newTestFetcher(t, countingTransport(&calls, okResponse("{}")))

	in, _ := f.Fetch(Config{URL: testURL, Lazy: true})
	in.Poll(PollEvery(20 * time.Millisecond))

	time.Sleep(60 * time.Millisecond)
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("lazy instance must not be seeded by Poll, saw %d calls", n)
	}
	in.StopPoll()
}
