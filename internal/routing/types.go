// Package routing resolves inbound requests to a route and a health-filtered
// backend pool. Resolution is the only phase that talks to the config store;
// its output is an immutable Decision cached in the request context so the
// later selection phase can run without any I/O.
package routing

import (
	"context"

	"velox-proxy/internal/models"
)

// Decision is the immutable result of the resolve stage for one request. It
// is owned exclusively by that request and never shared or mutated.
type Decision struct {
	// Route is the winning route document.
	Route *models.Route
	// Pool is the health-filtered, weight-expanded backend pool. A target
	// with weight w appears w times, in the control plane's list order. The
	// pool may be empty; selection is where emptiness becomes an error.
	Pool []models.Target
	// ForwardPath is the request path after any strip_path rewrite.
	ForwardPath string
}

// Store is the slice of the config store the resolver needs.
type Store interface {
	RouteIDsByHost(ctx context.Context, host string) ([]string, error)
	GetRoute(ctx context.Context, id string) (*models.Route, error)
	Upstreams(ctx context.Context, routeID string) ([]string, error)
	Healthy(ctx context.Context, routeID, address string, port int) (bool, error)
}

type decisionKey struct{}

// WithDecision attaches a resolve-stage decision to the request context.
func WithDecision(ctx context.Context, d *Decision) context.Context {
	return context.WithValue(ctx, decisionKey{}, d)
}

// DecisionFromContext returns the decision cached by the resolve stage.
func DecisionFromContext(ctx context.Context) (*Decision, bool) {
	d, ok := ctx.Value(decisionKey{}).(*Decision)
	return d, ok
}
