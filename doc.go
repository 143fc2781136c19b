// Package smartfetch coordinates client-side HTTP requests through observable
// fetch instances:
//
//   - Per-instance lifecycle tracking (inactive / loading / done)
//   - Process-wide de-duplication (concurrent identical requests share one
//     in-flight transport call)
//   - Cooperative cancellation with per-consumer detachment
//   - Recurring polling at a fixed or state-derived interval
//   - Safe-result overriding and config swapping without losing the instance
//   - Prometheus metrics and lightweight structured debug logging
//
// Design goals:
//   - Small surface area: functional options configure everything
//   - Pluggable transport: anything satisfying Transport can execute requests
//   - Safe concurrent use of a single *Fetcher and its instances
//
// Typical usage:
//
//	fetcher := smartfetch.New(
//	    smartfetch.NewHTTPTransport(smartfetch.WithTimeout(10*time.Second)),
//	    smartfetch.WithMetrics(),
//	)
//	users, err := fetcher.Fetch(smartfetch.Config{
//	    URL:  "https://api.example.com/users",
//	    Poll: smartfetch.PollEvery(30 * time.Second),
//	})
//
// Instances created from configs with equal method, url, params and body attach
// to the same in-flight call; the underlying request is issued once. The
// library avoids opinionated logging: provide a Logger (e.g. via
// WithSimpleLogger) and enable debug flags selectively for insight without noise.
package smartfetch
