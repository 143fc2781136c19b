package smartfetch

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config is the declarative description of a request. Method, URL, Params and
// Body define the logical identity of the request used for de-duplication;
// everything else is transport mechanics or instance behaviour.
type Config struct {
	// Method defaults to GET when empty.
	Method string
	URL    string
	Params map[string]string
	// Body is nil, []byte, string, or any JSON-marshalable value.
	Body interface{}

	// Transport options. Not part of the request identity.
	Header  http.Header
	Timeout time.Duration

	// Lifecycle hooks, invoked synchronously when a run settles.
	OnSuccess func(*Response)
	OnError   func(error)
	OnFinish  func()

	// SafeResultFunc derives the safe result from the last successful
	// response. It must be a pure function of its argument. Defaults to
	// returning the response body.
	SafeResultFunc func(*Response) interface{}

	// Lazy suppresses the automatic run on instance construction.
	Lazy bool

	// Poll enables recurring re-runs. See PollEvery and PollFunc.
	Poll PollInterval
}

func (c Config) runnable() bool {
	return strings.TrimSpace(c.URL) != ""
}

// methodLabel returns the canonical upper-case method for logs and metrics.
func methodLabel(cfg Config) string {
	m := strings.ToUpper(strings.TrimSpace(cfg.Method))
	if m == "" {
		return http.MethodGet
	}
	return m
}

// resolveTarget normalizes the "URL string or Config" union accepted at the
// public boundary into a canonical Config. The union never travels further.
func resolveTarget(target interface{}) (Config, error) {
	switch t := target.(type) {
	case string:
		return Config{URL: t}, nil
	case Config:
		return t, nil
	case *Config:
		if t == nil {
			return Config{}, &Error{Type: ErrorTypeConfig, Message: "nil config"}
		}
		return *t, nil
	default:
		return Config{}, &Error{
			Type:    ErrorTypeConfig,
			Message: fmt.Sprintf("unsupported target type %T", target),
		}
	}
}

// endpointLabel extracts a host+path label from a raw URL for metrics and logs.
func endpointLabel(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u == nil {
		return "unknown"
	}

	var builder strings.Builder
	builder.WriteString(u.Host)

	if u.Path != "" && u.Path != "/" {
		builder.WriteString(u.Path)
	} else {
		builder.WriteByte('/')
	}

	return builder.String()
}
