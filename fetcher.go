package smartfetch

import "fmt"

// Fetcher is the public entry point: it binds a transport to the shared
// in-flight registry and manufactures fetch instances. A single Fetcher is
// safe for concurrent use.
type Fetcher struct {
	transport       Transport
	registry        *Registry
	keyFunc         KeyFunc
	logger          Logger
	debug           *DebugConfig
	metrics         *MetricsCollector
	validationError error
}

// New constructs a Fetcher around transport using the provided functional
// options. A best effort validation is performed; call IsValid or
// ValidationError for errors.
func New(transport Transport, options ...Option) *Fetcher {
	f := &Fetcher{
		transport: transport,
		registry:  defaultRegistry,
		keyFunc:   DefaultKeyFunc,
		debug:     DefaultDebugConfig(),
	}

	for _, option := range options {
		option(f)
	}

	if err := f.validateConfiguration(); err != nil {
		f.validationError = err
	}

	return f
}

// Fetch resolves target (a URL string or a Config) into a fetch instance.
// Unless the config is lazy and whenever it carries a usable URL, the first
// run starts immediately without further caller action.
func (f *Fetcher) Fetch(target interface{}) (*Instance, error) {
	if f.validationError != nil {
		return nil, f.validationError
	}
	cfg, err := resolveTarget(target)
	if err != nil {
		return nil, err
	}

	in := newInstance(f, cfg)
	if !cfg.Lazy && cfg.runnable() {
		in.startAsync(runAlways)
	}
	return in, nil
}

// IsValid reports whether configuration validation passed at construction.
func (f *Fetcher) IsValid() bool {
	return f.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (f *Fetcher) ValidationError() error {
	return f.validationError
}

func (f *Fetcher) validateConfiguration() error {
	var problems []string

	if f.transport == nil {
		problems = append(problems, "transport must not be nil")
	}
	if f.registry == nil {
		problems = append(problems, "registry must not be nil")
	}
	if f.keyFunc == nil {
		problems = append(problems, "key function must not be nil")
	}
	if f.debug != nil && f.debug.Enabled && f.logger == nil {
		problems = append(problems, "debug logging enabled without a logger")
	}

	if len(problems) > 0 {
		return &Error{
			Type:    ErrorTypeValidation,
			Message: "fetcher validation failed",
			Cause:   fmt.Errorf("validation errors: %v", problems),
		}
	}
	return nil
}

func (f *Fetcher) debugEnabled() bool {
	return f.debug != nil && f.debug.Enabled && f.logger != nil
}

func (f *Fetcher) requestID() string {
	if f.debug != nil && f.debug.RequestIDGen != nil {
		return f.debug.RequestIDGen()
	}
	return ""
}
