// Package acme answers HTTP-01 domain-ownership probes. The challenge path
// is intercepted before routing; challenge responses bypass route
// resolution entirely.
package acme

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"velox-proxy/internal/common/logging"
	"velox-proxy/internal/metrics"
	"velox-proxy/internal/store"
)

// ChallengePath is the reserved URL pattern intercepted before routing.
const ChallengePath = "/.well-known/acme-challenge/{token}"

// Store is the slice of the config store the responder needs.
type Store interface {
	GetChallenge(ctx context.Context, token string) (string, error)
}

// Responder serves key authorizations for registered challenge tokens.
type Responder struct {
	store  Store
	logger logging.Logger
}

// NewResponder creates a challenge responder backed by the config store.
func NewResponder(s Store) *Responder {
	return &Responder{store: s, logger: logging.GetGlobalLogger()}
}

// ServeHTTP answers a single challenge probe. A registered token yields the
// stored key authorization verbatim as text/plain; an unknown token is 404.
// A store failure is 500, distinct from "token not found".
func (h *Responder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]

	keyAuth, err := h.store.GetChallenge(r.Context(), token)
	if err != nil {
		if store.IsMiss(err) {
			metrics.ChallengeResponses.WithLabelValues(metrics.ResultNotFound).Inc()
			http.Error(w, "challenge token not found", http.StatusNotFound)
			return
		}
		h.logger.Error("challenge lookup failed", err, logging.String("token", token))
		metrics.ChallengeResponses.WithLabelValues(metrics.ResultError).Inc()
		http.Error(w, "challenge lookup failed", http.StatusInternalServerError)
		return
	}

	h.logger.Info("answered acme challenge", logging.String("token", token))
	metrics.ChallengeResponses.WithLabelValues(metrics.ResultOK).Inc()

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(keyAuth))
}
