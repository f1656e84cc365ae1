// Package metrics exposes Prometheus counters for the per-request decision
// path. Labels stay low-cardinality: results and strategy names only, never
// hosts or route ids.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values.
const (
	ResultOK          = "ok"
	ResultNotFound    = "not_found"
	ResultError       = "error"
	ResultNoUpstream  = "no_upstream"
	ResultUnavailable = "unavailable"
)

var (
	// RouteResolutions counts resolve-stage outcomes.
	RouteResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "velox",
		Subsystem: "proxy",
		Name:      "route_resolutions_total",
		Help:      "Route resolution attempts by result.",
	}, []string{"result"})

	// BackendSelections counts selection-stage outcomes per strategy.
	BackendSelections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "velox",
		Subsystem: "proxy",
		Name:      "backend_selections_total",
		Help:      "Backend selections by strategy and result.",
	}, []string{"strategy", "result"})

	// CertificateLookups counts SNI certificate lookups by result.
	CertificateLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "velox",
		Subsystem: "proxy",
		Name:      "certificate_lookups_total",
		Help:      "SNI certificate lookups by result.",
	}, []string{"result"})

	// ChallengeResponses counts ACME HTTP-01 challenge answers by result.
	ChallengeResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "velox",
		Subsystem: "proxy",
		Name:      "acme_challenge_responses_total",
		Help:      "ACME HTTP-01 challenge responses by result.",
	}, []string{"result"})
)
