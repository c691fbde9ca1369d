package observability

import "net/http"

// NoopManager returns a Manager with observability fully disabled,
// grounded on the teacher's pkg/observability.NoopManager. Since every
// Metrics and Tracer method here already tolerates a nil receiver, an
// inert Manager works as the no-op directly — no separate NoopTracer or
// NoopMetrics types are needed (the teacher's own pkg/observability went
// a different way here: recorder.go defines a *second*, colliding `Metrics`
// type purely to support this pattern, which is a duplicate symbol with
// metrics.go's struct in the same package — confirmed uncompilable as one
// package by grepping the teacher's own pristine copy. Dropped; see
// DESIGN.md).
func NoopManager() *Manager {
	return &Manager{}
}

// metricsHandlerUnavailable is the standard response when metrics are
// disabled or not wired.
func metricsHandlerUnavailable() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("metrics not enabled"))
	})
}
