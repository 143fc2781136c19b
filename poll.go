package smartfetch

import (
	"context"
	"time"
)

// PollInterval resolves the delay before the next scheduled run. A negative
// duration disables polling for that scheduling decision; the interval is
// re-resolved after every settled run, never cached.
type PollInterval interface {
	interval(snap Snapshot) time.Duration
}

type fixedInterval time.Duration

func (f fixedInterval) interval(Snapshot) time.Duration {
	return time.Duration(f)
}

// PollEvery returns a fixed polling interval. Negative values disable polling.
func PollEvery(d time.Duration) PollInterval {
	return fixedInterval(d)
}

// PollFunc computes the next polling interval from the instance's current
// observable state. It must be a pure function of the snapshot.
type PollFunc func(Snapshot) time.Duration

func (f PollFunc) interval(snap Snapshot) time.Duration {
	return f(snap)
}

// Poll sets the polling interval. When the instance is inactive, not lazy,
// and the interval immediately resolves non-negative, an initial run is
// triggered to seed the polling cycle.
func (in *Instance) Poll(interval PollInterval) {
	in.mu.Lock()
	in.pollInterval = interval
	status := in.status
	lazy := in.config.Lazy
	in.mu.Unlock()

	if interval == nil {
		return
	}
	if status == StatusInactive && !lazy && interval.interval(in.Snapshot()) >= 0 {
		in.startAsync(onlyIfInactive)
	}
}

// StopPoll cancels any pending scheduled run and disables further scheduling.
// A run already in progress is not affected.
func (in *Instance) StopPoll() {
	in.mu.Lock()
	if in.pollTimer != nil {
		in.pollTimer.Stop()
		in.pollTimer = nil
	}
	in.pollInterval = nil
	in.mu.Unlock()
}

// scheduleNextPoll runs in the finally phase of every settled run, regardless
// of outcome. At most one timer exists per instance; a new one replaces any
// pending one.
func (in *Instance) scheduleNextPoll() {
	in.mu.Lock()
	iv := in.pollInterval
	in.mu.Unlock()

	if iv == nil {
		return
	}
	d := iv.interval(in.Snapshot())
	if d < 0 {
		return
	}

	in.mu.Lock()
	if in.pollTimer != nil {
		in.pollTimer.Stop()
	}
	in.pollTimer = time.AfterFunc(d, in.pollTick)
	in.mu.Unlock()

	f := in.fetcher
	f.metrics.RecordPollScheduled(endpointLabel(snapURL(in)))
	if f.debugEnabled() && f.debug.LogPolling {
		f.logger.Debug("Poll scheduled", "delay", d, "url", snapURL(in))
	}
}

func (in *Instance) pollTick() {
	in.startAsync(skipIfLoading)
}

func snapURL(in *Instance) string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.config.URL
}

// startAsync begins a run synchronously (so de-duplication takes effect
// immediately) and settles it on a background goroutine. Launch failures such
// as an unusable URL are logged, not raised: they must never kill a polling
// cycle.
func (in *Instance) startAsync(mode runMode) {
	p, err := in.launch(context.Background(), nil, mode)
	if err != nil {
		f := in.fetcher
		if f.logger != nil {
			f.logger.Warn("Scheduled run not started", "error", err.Error())
		}
		return
	}
	if p == nil {
		return
	}
	go func() {
		_, _ = p.await()
	}()
}
