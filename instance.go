package smartfetch

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"
)

// Instance is a fetch instance: it owns the lifecycle of runs for one logical
// request, exposes the last-known outcome through observable accessors, and
// coordinates de-duplication, cancellation and polling. All methods are safe
// for concurrent use.
type Instance struct {
	fetcher *Fetcher

	mu           sync.Mutex
	status       Status
	config       Config
	result       *Response
	statusCode   int
	header       http.Header
	err          error
	override     interface{}
	hasOverride  bool
	pollInterval PollInterval
	pollTimer    *time.Timer
	call         *SharedCall
	runCancel    context.CancelFunc
	runSeq       uint64
	watchers     []chan struct{}
}

func newInstance(f *Fetcher, cfg Config) *Instance {
	return &Instance{
		fetcher:      f,
		status:       StatusInactive,
		config:       cfg,
		pollInterval: cfg.Poll,
	}
}

type runMode int

const (
	runAlways runMode = iota
	skipIfLoading
	onlyIfInactive
)

// pendingRun is one launched run: the shared call it attached to plus the
// per-run cancellation and the config snapshot whose hooks it will fire.
type pendingRun struct {
	in      *Instance
	cfg     Config
	call    *SharedCall
	ctx     context.Context
	cancel  context.CancelFunc
	joined  bool
	seq     uint64
	id      string
	started time.Time
}

// Run executes target (a URL string or Config) through the in-flight
// registry, replacing the instance's current config, and blocks until the
// run settles. Errors, including cancellation, are returned to the caller;
// only non-cancellation failures are recorded into observable state.
func (in *Instance) Run(ctx context.Context, target interface{}) (*Response, error) {
	cfg, err := resolveTarget(target)
	if err != nil {
		return nil, err
	}
	p, err := in.launch(ctx, &cfg, runAlways)
	if err != nil {
		return nil, err
	}
	return p.await()
}

// Start runs the current config unless a run is already in progress, in which
// case it returns (nil, nil) without touching state.
func (in *Instance) Start(ctx context.Context) (*Response, error) {
	p, err := in.launch(ctx, nil, skipIfLoading)
	if err != nil || p == nil {
		return nil, err
	}
	return p.await()
}

// Resume runs the current config only when the instance has never run
// (status inactive); otherwise it returns (nil, nil).
func (in *Instance) Resume(ctx context.Context) (*Response, error) {
	p, err := in.launch(ctx, nil, onlyIfInactive)
	if err != nil || p == nil {
		return nil, err
	}
	return p.await()
}

// launch validates the config, attaches to (or creates) the shared call and
// flips the instance to loading. A nil pendingRun with nil error means the
// mode precondition suppressed the run.
func (in *Instance) launch(ctx context.Context, override *Config, mode runMode) (*pendingRun, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	f := in.fetcher

	in.mu.Lock()
	switch mode {
	case skipIfLoading:
		if in.status == StatusLoading {
			in.mu.Unlock()
			return nil, nil
		}
	case onlyIfInactive:
		if in.status != StatusInactive {
			in.mu.Unlock()
			return nil, nil
		}
	}

	cfg := in.config
	if override != nil {
		cfg = *override
	}
	if !cfg.runnable() {
		// ConfigError is fatal to the attempted run but leaves state
		// alone, including the current config.
		in.mu.Unlock()
		return nil, newConfigError("config has no url", cfg)
	}
	if override != nil {
		in.config = cfg
	}

	key := f.keyFunc(cfg)
	call, joined := f.registry.GetOrCreate(key, func(callCtx context.Context) (*Response, error) {
		return f.transport.Execute(callCtx, cfg)
	})

	runCtx, cancel := context.WithCancel(ctx)
	in.runSeq++
	p := &pendingRun{
		in:      in,
		cfg:     cfg,
		call:    call,
		ctx:     runCtx,
		cancel:  cancel,
		joined:  joined,
		seq:     in.runSeq,
		started: time.Now(),
	}

	in.status = StatusLoading
	in.err = nil
	in.call = call
	in.runCancel = cancel
	in.mu.Unlock()
	in.notify()

	method, endpoint := methodLabel(cfg), endpointLabel(cfg.URL)
	f.metrics.RecordRunStart(method, endpoint)
	if joined {
		f.metrics.RecordDedupHit(method, endpoint)
	}
	if f.debugEnabled() {
		p.id = f.requestID()
		if f.debug.LogRuns {
			f.logger.Debug("Run started", "requestID", p.id, "method", method, "url", cfg.URL)
		}
		if f.debug.LogDedup && joined {
			f.logger.Debug("Joined in-flight call", "requestID", p.id, "key", key)
		}
	}

	return p, nil
}

// await blocks until the shared call settles or the per-run context is
// cancelled, then applies the outcome to the instance.
func (p *pendingRun) await() (*Response, error) {
	defer p.cancel()
	resp, err := p.call.Wait(p.ctx)
	return p.in.settle(p, resp, err)
}

// settle applies one run's outcome. State is only mutated when this run is
// still the instance's latest; hooks fire regardless, outside the lock.
func (in *Instance) settle(p *pendingRun, resp *Response, err error) (*Response, error) {
	var onSuccess func(*Response)
	var onError func(error)

	in.mu.Lock()
	stale := p.seq != in.runSeq
	if !stale {
		in.call = nil
		in.runCancel = nil
		switch {
		case err == nil:
			in.hasOverride = false
			in.override = nil
			in.result = resp
			in.statusCode = resp.StatusCode
			in.header = resp.Header
			in.err = nil
			in.status = StatusDone
			onSuccess = p.cfg.OnSuccess
		case IsCancellation(err):
			// No error recorded, no OnError: cancellation is not a failure.
			in.status = StatusDone
		default:
			// Last successful result is preserved.
			in.err = err
			in.status = StatusDone
			onError = p.cfg.OnError
		}
	}
	in.mu.Unlock()

	if !stale {
		in.notify()
	}

	if onSuccess != nil && resp != nil {
		onSuccess(resp)
	}
	if onError != nil {
		onError(err)
	}
	if p.cfg.OnFinish != nil {
		p.cfg.OnFinish()
	}

	f := in.fetcher
	method, endpoint := methodLabel(p.cfg), endpointLabel(p.cfg.URL)
	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}
	f.metrics.RecordRunEnd(method, endpoint)
	f.metrics.RecordRun(method, endpoint, statusCode, time.Since(p.started))
	if err != nil && !IsCancellation(err) {
		f.metrics.RecordError(errorType(err), method, endpoint)
	}
	if f.debugEnabled() && f.debug.LogRuns {
		f.logger.Debug("Run settled", "requestID", p.id, "method", method, "url", p.cfg.URL,
			"status", statusCode, "error", err, "stale", stale)
	}

	// Finally phase: the next tick is scheduled from the state at this
	// moment, after hooks had their say, regardless of outcome.
	if !stale {
		in.scheduleNextPoll()
	}

	return resp, err
}

// Stop cancels the call this instance initiated tracking against and marks
// the instance done without recording an error. Other consumers of the same
// shared call are unaffected: the underlying request is only aborted when the
// last consumer detaches.
func (in *Instance) Stop() {
	in.mu.Lock()
	if in.status != StatusLoading {
		in.mu.Unlock()
		return
	}
	cancel := in.runCancel
	call := in.call
	cfg := in.config
	in.status = StatusDone
	in.runCancel = nil
	in.call = nil
	in.mu.Unlock()
	in.notify()

	if cancel != nil {
		cancel()
	}
	if call != nil {
		call.Detach()
	}

	in.fetcher.metrics.RecordCancellation(methodLabel(cfg), endpointLabel(cfg.URL))
}

// Clear wipes the last result and any safe-result override, independent of
// status. The recorded error is left alone.
func (in *Instance) Clear() {
	in.mu.Lock()
	in.result = nil
	in.statusCode = 0
	in.header = nil
	in.override = nil
	in.hasOverride = false
	in.mu.Unlock()
	in.notify()
}

// OverrideSafeResult makes SafeResult return value until ClearSafeOverride is
// called or a new run succeeds.
func (in *Instance) OverrideSafeResult(value interface{}) {
	in.mu.Lock()
	in.override = value
	in.hasOverride = true
	in.mu.Unlock()
	in.notify()
	in.fetcher.metrics.RecordOverride()
}

// ClearSafeOverride removes the override; SafeResult falls back to the
// derived value.
func (in *Instance) ClearSafeOverride() {
	in.mu.Lock()
	in.override = nil
	in.hasOverride = false
	in.mu.Unlock()
	in.notify()
}

// Fulfill replaces the current config without starting a run. target is a URL
// string or a Config. The next Start, Resume or poll tick uses the new config
// and may therefore attach to a different shared call.
func (in *Instance) Fulfill(target interface{}) error {
	cfg, err := resolveTarget(target)
	if err != nil {
		return err
	}
	in.mu.Lock()
	in.config = cfg
	in.mu.Unlock()
	return nil
}

// Status returns the current lifecycle state.
func (in *Instance) Status() Status {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.status
}

// IsLoading reports whether a run is in progress.
func (in *Instance) IsLoading() bool {
	return in.Status() == StatusLoading
}

// IsFinished reports whether the most recent run settled.
func (in *Instance) IsFinished() bool {
	return in.Status() == StatusDone
}

// Result returns the response of the last successful run, or nil.
func (in *Instance) Result() *Response {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.result
}

// StatusCode returns the status code of the last successful run.
func (in *Instance) StatusCode() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.statusCode
}

// Header returns the headers of the last successful run.
func (in *Instance) Header() http.Header {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.header
}

// Err returns the recorded error of the last failed run, or nil. Cancelled
// runs never record an error.
func (in *Instance) Err() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.err
}

// Config returns the config the next (or most recent) run uses.
func (in *Instance) Config() Config {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.config
}

// SafeResult returns the override when set, otherwise the value derived from
// the last successful response by SafeResultFunc.
func (in *Instance) SafeResult() interface{} {
	in.mu.Lock()
	if in.hasOverride {
		v := in.override
		in.mu.Unlock()
		return v
	}
	result := in.result
	fn := in.config.SafeResultFunc
	in.mu.Unlock()

	return deriveSafeResult(fn, result)
}

// Snapshot returns an atomic view of the observable fields. The user-supplied
// SafeResultFunc runs after the instance lock is released, so it may call any
// instance accessor.
func (in *Instance) Snapshot() Snapshot {
	in.mu.Lock()
	snap := Snapshot{
		Status:     in.status,
		Result:     in.result,
		StatusCode: in.statusCode,
		Header:     in.header,
		Err:        in.err,
		IsLoading:  in.status == StatusLoading,
		IsFinished: in.status == StatusDone,
	}
	hasOverride := in.hasOverride
	override := in.override
	fn := in.config.SafeResultFunc
	result := in.result
	in.mu.Unlock()

	if hasOverride {
		snap.SafeResult = override
	} else {
		snap.SafeResult = deriveSafeResult(fn, result)
	}
	return snap
}

func deriveSafeResult(fn func(*Response) interface{}, resp *Response) interface{} {
	if fn != nil {
		return fn(resp)
	}
	if resp == nil {
		return nil
	}
	return resp.Body
}

func errorType(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeTransport
}
