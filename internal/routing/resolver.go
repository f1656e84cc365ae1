package routing

import (
	"context"
	"fmt"
	"strings"

	"velox-proxy/internal/common/logging"
	"velox-proxy/internal/hostname"
	"velox-proxy/internal/models"
	"velox-proxy/internal/store"
)

// Resolver finds the best-matching enabled route for a request and
// precomputes its backend pool. Routes are re-fetched on every call; the
// store is the single source of truth and may change between requests.
type Resolver struct {
	store  Store
	logger logging.Logger
}

// NewResolver creates a resolver backed by the given config store.
func NewResolver(s Store) *Resolver {
	return &Resolver{store: s, logger: logging.GetGlobalLogger()}
}

// Resolve picks the enabled route with the longest matching path prefix for
// the given host and path, then resolves its backend pool and forward path.
//
// The host is normalized first; when the normalized name has no indexed
// routes and differs from the raw name, the raw name is retried so routes
// registered under a literal domain still match. Candidates that are
// missing, malformed, or disabled are skipped. Equal longest prefixes
// tie-break on lexical route id so the winner is stable across calls.
func (r *Resolver) Resolve(ctx context.Context, host, path string) (*Decision, error) {
	normalized := hostname.Normalize(host)

	ids, err := r.store.RouteIDsByHost(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("route index lookup for %s: %w", normalized, err)
	}
	if len(ids) == 0 && normalized != host {
		ids, err = r.store.RouteIDsByHost(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("route index lookup for %s: %w", host, err)
		}
	}

	var (
		best       *models.Route
		bestPrefix string
	)
	for _, id := range ids {
		route, err := r.store.GetRoute(ctx, id)
		if store.IsMiss(err) {
			r.logger.Debug("skipping unusable route candidate",
				logging.String("route_id", id),
				logging.Err(err),
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("route fetch %s: %w", id, err)
		}
		if !route.Enabled {
			continue
		}

		prefix := route.PathPrefix()
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		if best == nil || len(prefix) > len(bestPrefix) ||
			(len(prefix) == len(bestPrefix) && route.ID < best.ID) {
			best = route
			bestPrefix = prefix
		}
	}

	if best == nil {
		return nil, fmt.Errorf("%s %s: %w", host, path, ErrRouteNotFound)
	}

	pool, err := r.resolvePool(ctx, best.ID)
	if err != nil {
		return nil, fmt.Errorf("pool for route %s: %w", best.ID, err)
	}

	return &Decision{
		Route:       best,
		Pool:        pool,
		ForwardPath: forwardPath(path, bestPrefix, best.StripPath),
	}, nil
}

// resolvePool fetches the route's ordered backend list, drops targets marked
// unhealthy, and expands each survivor weight times. An empty result is a
// valid pool, not an error; selection raises the failure.
func (r *Resolver) resolvePool(ctx context.Context, routeID string) ([]models.Target, error) {
	entries, err := r.store.Upstreams(ctx, routeID)
	if err != nil {
		return nil, err
	}

	var pool []models.Target
	for _, entry := range entries {
		target, err := models.ParseTarget(entry)
		if err != nil {
			r.logger.Warn("skipping malformed upstream entry",
				logging.String("route_id", routeID),
				logging.String("entry", entry),
			)
			continue
		}

		healthy, err := r.store.Healthy(ctx, routeID, target.Address, target.Port)
		if err != nil {
			return nil, err
		}
		if !healthy {
			continue
		}

		for i := 0; i < target.Weight; i++ {
			pool = append(pool, target)
		}
	}
	return pool, nil
}

// forwardPath rewrites the request path for strip_path routes. Prefixes of
// length 1 or less are never stripped; a root-only route must not rewrite
// the path to an empty string.
func forwardPath(path, prefix string, strip bool) string {
	if !strip || len(prefix) < 2 {
		return path
	}
	suffix := strings.TrimPrefix(path, prefix)
	if suffix == "" {
		return "/"
	}
	return suffix
}
