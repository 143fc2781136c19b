package smartfetch

import (
	"context"
	"sync"
)

// SharedCall is a single in-flight transport operation shared by every
// consumer whose config maps to the same key. Exactly one SharedCall exists
// per key at any instant; it leaves the registry the moment it settles.
type SharedCall struct {
	key      string
	registry *Registry
	cancel   context.CancelFunc
	done     chan struct{}

	mu        sync.Mutex
	resp      *Response
	err       error
	consumers int
}

// Registry tracks in-flight shared calls by request key. It is the sole piece
// of cross-instance shared state; pass one explicitly via WithRegistry to
// isolate tests, or rely on the process-wide default.
type Registry struct {
	mu    sync.Mutex
	calls map[string]*SharedCall
}

// NewRegistry returns an empty in-flight registry.
func NewRegistry() *Registry {
	return &Registry{
		calls: make(map[string]*SharedCall),
	}
}

// defaultRegistry backs fetchers constructed without WithRegistry, so that
// de-duplication spans independently created fetchers in the same process.
var defaultRegistry = NewRegistry()

// GetOrCreate returns the in-flight call for key, starting one via start if
// none exists. The second return value reports whether an existing call was
// joined. start receives a context that is cancelled when the last consumer
// detaches before settlement.
func (r *Registry) GetOrCreate(key string, start func(ctx context.Context) (*Response, error)) (*SharedCall, bool) {
	r.mu.Lock()
	if call, ok := r.calls[key]; ok {
		call.mu.Lock()
		call.consumers++
		call.mu.Unlock()
		r.mu.Unlock()
		return call, true
	}

	ctx, cancel := context.WithCancel(context.Background())
	call := &SharedCall{
		key:       key,
		registry:  r,
		cancel:    cancel,
		done:      make(chan struct{}),
		consumers: 1,
	}
	r.calls[key] = call
	r.mu.Unlock()

	go call.run(ctx, start)
	return call, false
}

// Len reports the number of in-flight calls, for tests and introspection.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// run executes the operation and settles the call. The key is removed from
// the registry before waiters are released: once anyone observes the
// settlement, an identical request is guaranteed to start a fresh call.
func (c *SharedCall) run(ctx context.Context, start func(ctx context.Context) (*Response, error)) {
	defer c.cancel()

	resp, err := start(ctx)

	c.registry.mu.Lock()
	if c.registry.calls[c.key] == c {
		delete(c.registry.calls, c.key)
	}
	c.registry.mu.Unlock()

	c.mu.Lock()
	c.resp = resp
	c.err = err
	c.mu.Unlock()
	close(c.done)
}

// Wait blocks until the call settles or ctx is done. Errors from the
// operation pass through untransformed.
func (c *SharedCall) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-c.done:
		c.mu.Lock()
		resp, err := c.resp, c.err
		c.mu.Unlock()
		return resp, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Detach removes one consumer from the call. When the last consumer detaches
// before settlement the underlying operation is cancelled; as long as any
// other consumer remains the operation keeps running for them.
func (c *SharedCall) Detach() {
	c.mu.Lock()
	if c.consumers > 0 {
		c.consumers--
	}
	last := c.consumers == 0
	c.mu.Unlock()

	if last {
		c.cancel()
	}
}
