// Package proxy is the engine-facing shim that drives the decision pipeline
// for one request: resolve (store I/O, result cached in the request
// context), then select (pure, in-memory only), then hand-off to the
// transport. The decision packages never forward bytes themselves.
package proxy

import (
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync/atomic"

	"velox-proxy/internal/balancer"
	"velox-proxy/internal/common/logging"
	"velox-proxy/internal/metrics"
	"velox-proxy/internal/models"
	"velox-proxy/internal/routing"
)

// Handler proxies all non-challenge traffic according to the store-driven
// routing state. Every request carries its own decision; nothing is shared
// or cached across requests.
type Handler struct {
	resolver *routing.Resolver
	selector *balancer.Selector
	logger   logging.Logger

	// seq stands in for the engine's per-connection sequence counter that
	// drives the round-robin walk.
	seq atomic.Uint64
}

// NewHandler wires the resolve and select stages into one HTTP handler.
func NewHandler(resolver *routing.Resolver, selector *balancer.Selector) *Handler {
	return &Handler{
		resolver: resolver,
		selector: selector,
		logger:   logging.GetGlobalLogger(),
	}
}

// ServeHTTP renders a routing decision and forwards the request. Errors are
// strictly request-scoped: no route is 404, a store failure is 500, and an
// empty or exhausted pool is 502. There is no retry at any step.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	host := hostOnly(r.Host)

	// Resolve stage: the only phase allowed to touch the store.
	decision, err := h.resolver.Resolve(r.Context(), host, r.URL.Path)
	if err != nil {
		if errors.Is(err, routing.ErrRouteNotFound) {
			metrics.RouteResolutions.WithLabelValues(metrics.ResultNotFound).Inc()
			http.Error(w, "no route for host", http.StatusNotFound)
			return
		}
		h.logger.Error("route resolution failed", err,
			logging.String("host", host),
			logging.String("path", r.URL.Path))
		metrics.RouteResolutions.WithLabelValues(metrics.ResultError).Inc()
		http.Error(w, "routing unavailable", http.StatusInternalServerError)
		return
	}
	metrics.RouteResolutions.WithLabelValues(metrics.ResultOK).Inc()

	r = r.WithContext(routing.WithDecision(r.Context(), decision))

	// Select stage: pure, no I/O, uses only the precomputed pool.
	strategy := decision.Route.LoadBalancer
	target, err := h.selector.Select(decision.Pool, strategy, h.seq.Add(1), clientIP(r))
	if err != nil {
		h.logger.Warn("no upstream available",
			logging.String("host", host),
			logging.String("route_id", decision.Route.ID))
		metrics.BackendSelections.WithLabelValues(strategy, metrics.ResultNoUpstream).Inc()
		http.Error(w, "no upstream available", http.StatusBadGateway)
		return
	}
	metrics.BackendSelections.WithLabelValues(strategy, metrics.ResultOK).Inc()

	h.logger.Debug("proxying request",
		logging.String("host", host),
		logging.String("route_id", decision.Route.ID),
		logging.String("target", target.Addr()),
		logging.String("forward_path", decision.ForwardPath))

	h.forward(w, r, decision, target)
}

// forward hands the request to the transport. The reverse proxy is built per
// request so no transport state leaks between requests.
func (h *Handler) forward(w http.ResponseWriter, r *http.Request, decision *routing.Decision, target models.Target) {
	backend := &url.URL{Scheme: backendScheme(decision.Route), Host: target.Addr()}

	rp := &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL.Scheme = backend.Scheme
			req.URL.Host = backend.Host
			req.URL.Path = decision.ForwardPath
			req.URL.RawPath = ""
			if !decision.Route.PreserveHost {
				req.Host = backend.Host
			}
		},
		ErrorHandler: func(w http.ResponseWriter, req *http.Request, err error) {
			h.logger.Error("upstream request failed", err,
				logging.String("route_id", decision.Route.ID),
				logging.String("target", target.Addr()))
			http.Error(w, "upstream request failed", http.StatusBadGateway)
		},
	}
	rp.ServeHTTP(w, r)
}

func backendScheme(route *models.Route) string {
	if route.Protocol == "https" {
		return "https"
	}
	return "http"
}

// hostOnly strips an optional port from a Host header value. IPv6 literals
// keep their address but lose the brackets, so "[::1]:8080" becomes "::1".
func hostOnly(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

// clientIP extracts the peer address used for ip_hash affinity. An
// unparsable remote address falls back to the balancer's loopback default.
func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return ""
	}
	return ip
}
