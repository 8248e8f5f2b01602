// Package ops serves the operations HTTP endpoints: health, Prometheus
// metrics, trigger inspection and control, the audit trail and pprof.
//
// The server refuses to bind a non-loopback address unless a bearer token
// is configured or allow_insecure is set.
package ops
