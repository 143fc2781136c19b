package smartfetch

import "net/http"

// Status is the lifecycle state of a fetch instance.
type Status int

const (
	// StatusInactive means the instance was constructed lazily and has not run.
	StatusInactive Status = iota
	// StatusLoading means a run is in progress.
	StatusLoading
	// StatusDone means the most recent run settled (success, failure or
	// cancellation). A new run transitions back to StatusLoading.
	StatusDone
)

func (s Status) String() string {
	switch s {
	case StatusInactive:
		return "inactive"
	case StatusLoading:
		return "loading"
	case StatusDone:
		return "done"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable view of an instance's observable fields, taken
// atomically. PollFunc intervals are computed from snapshots.
type Snapshot struct {
	Status     Status
	Result     *Response
	SafeResult interface{}
	StatusCode int
	Header     http.Header
	Err        error
	IsLoading  bool
	IsFinished bool
}

// Watch returns a channel that receives a (coalesced) signal whenever the
// instance's observable state changes. The channel is never closed; callers
// re-read the snapshot on each signal.
func (in *Instance) Watch() <-chan struct{} {
	ch := make(chan struct{}, 1)
	in.mu.Lock()
	in.watchers = append(in.watchers, ch)
	in.mu.Unlock()
	return ch
}

func (in *Instance) notify() {
	in.mu.Lock()
	watchers := make([]chan struct{}, len(in.watchers))
	copy(watchers, in.watchers)
	in.mu.Unlock()

	for _, ch := range watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
