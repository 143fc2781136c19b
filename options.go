package smartfetch

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithRegistry sets the in-flight registry. Instances created by fetchers
// sharing a registry de-duplicate against each other; tests inject a fresh
// one to isolate state.
func WithRegistry(r *Registry) Option {
	return func(f *Fetcher) {
		f.registry = r
	}
}

// WithKeyFunc sets a custom request key function.
func WithKeyFunc(fn KeyFunc) Option {
	return func(f *Fetcher) {
		f.keyFunc = fn
	}
}

// WithLogger sets a custom logger for debug output.
func WithLogger(logger Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a simple console logger.
func WithSimpleLogger() Option {
	return func(f *Fetcher) {
		if f.debug == nil {
			f.debug = DefaultDebugConfig()
		}
		f.debug.Enabled = true
		f.logger = NewSimpleLogger()
	}
}

// WithDebug enables debug logging with the default configuration.
func WithDebug() Option {
	return func(f *Fetcher) {
		if f.debug == nil {
			f.debug = DefaultDebugConfig()
		}
		f.debug.Enabled = true
	}
}

// WithDebugConfig sets a custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(f *Fetcher) {
		f.debug = config
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs.
func WithRequestIDGenerator(gen func() string) Option {
	return func(f *Fetcher) {
		if f.debug == nil {
			f.debug = DefaultDebugConfig()
		}
		f.debug.RequestIDGen = gen
	}
}

// WithMetrics enables Prometheus metrics collection on the default registerer.
func WithMetrics() Option {
	return func(f *Fetcher) {
		f.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(f *Fetcher) {
		f.metrics = collector
	}
}
