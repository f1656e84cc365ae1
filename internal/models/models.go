// Package models defines the documents read from the config store. All of
// them are written by the control plane and are read-only here.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Load balancing strategy names as stored in route documents.
const (
	StrategyRoundRobin = "round_robin"
	StrategyRandom     = "random"
	StrategyIPHash     = "ip_hash"
	StrategyLeastConn  = "least_conn"
)

// Route maps a host and path prefix to a backend pool. The pool itself lives
// under a separate store key derived from the route id.
type Route struct {
	ID           string `json:"id"`
	Host         string `json:"host"`
	Path         string `json:"path"`
	Protocol     string `json:"protocol"`
	LoadBalancer string `json:"load_balancer"`
	StripPath    bool   `json:"strip_path"`
	PreserveHost bool   `json:"preserve_host"`
	Enabled      bool   `json:"enabled"`
}

// UnmarshalJSON decodes a route document. The control plane writes documents
// where enabled and preserve_host default to true, so an omitted field must
// decode to true, not to the zero value.
func (r *Route) UnmarshalJSON(data []byte) error {
	type routeAlias Route
	doc := routeAlias{Enabled: true, PreserveHost: true}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*r = Route(doc)
	return nil
}

// PathPrefix returns the route's path prefix, defaulting to "/" when unset.
func (r *Route) PathPrefix() string {
	if r.Path == "" {
		return "/"
	}
	return r.Path
}

// Target is a single backend instance eligible to receive traffic.
type Target struct {
	Address string
	Port    int
	Weight  int
}

// Addr returns the dialable address of the target.
func (t Target) Addr() string {
	return fmt.Sprintf("%s:%d", t.Address, t.Port)
}

// ParseTarget decodes an upstream list entry of the form
// "address:port[:weight]". Weight is optional and defaults to 1; a
// non-numeric or sub-1 weight also falls back to 1.
func ParseTarget(entry string) (Target, error) {
	parts := strings.Split(entry, ":")
	if len(parts) < 2 {
		return Target{}, fmt.Errorf("malformed upstream entry %q", entry)
	}

	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return Target{}, fmt.Errorf("malformed upstream port in %q", entry)
	}

	weight := 1
	if len(parts) >= 3 {
		if w, err := strconv.Atoi(parts[2]); err == nil && w >= 1 {
			weight = w
		}
	}

	return Target{Address: parts[0], Port: port, Weight: weight}, nil
}

// Certificate references the TLS material for a domain. The control plane
// writes either inline PEM payloads or paths to PEM files on shared storage.
type Certificate struct {
	Domain    string `json:"domain"`
	CertPath  string `json:"cert_path"`
	KeyPath   string `json:"key_path"`
	CertPEM   string `json:"cert_pem,omitempty"`
	KeyPEM    string `json:"key_pem,omitempty"`
	ExpiresAt int64  `json:"expires_at"`
	AutoRenew bool   `json:"auto_renew"`
}
