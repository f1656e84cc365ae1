// Package balancer picks one backend target from a resolved pool. Selection
// runs in a phase that must not perform I/O, so everything here operates on
// the pool precomputed by the resolve stage; there is no store access, no
// shared counter, and no retry.
package balancer

import (
	"errors"
	"hash/crc32"
	"math/rand"
	"os"
	"time"

	"velox-proxy/internal/models"
)

// ErrNoUpstream is returned when the pool is empty after health filtering.
// It surfaces as a backend-unavailable error; any retry across backends is
// the transport engine's concern, not this layer's.
var ErrNoUpstream = errors.New("no upstream available")

// defaultClientIP stands in when the client address cannot be determined.
const defaultClientIP = "127.0.0.1"

// Selector implements the load-balancing strategies. The worker id is fixed
// at construction so round-robin spreads differently across process
// instances while staying deterministic within one.
type Selector struct {
	workerID uint64
}

// New creates a selector with a process-derived worker id.
func New() *Selector {
	return NewWithWorkerID(uint64(os.Getpid()))
}

// NewWithWorkerID creates a selector with an explicit worker id.
func NewWithWorkerID(id uint64) *Selector {
	return &Selector{workerID: id}
}

// Select picks a target from the pool using the route's strategy name.
// seq is the per-connection sequence observed from the engine and clientIP
// the peer address; both are inputs, never stored. Unrecognized or absent
// strategy names fall back to round-robin, as does least_conn, which this
// layer cannot honor without shared connection counters.
func (s *Selector) Select(pool []models.Target, strategy string, seq uint64, clientIP string) (models.Target, error) {
	if len(pool) == 0 {
		return models.Target{}, ErrNoUpstream
	}

	var index int
	switch strategy {
	case models.StrategyRandom:
		index = randomIndex(len(pool))
	case models.StrategyIPHash:
		index = hashIndex(clientIP, len(pool))
	default:
		// round_robin, least_conn, and anything unrecognized.
		index = int((s.workerID + seq) % uint64(len(pool)))
	}

	return pool[index], nil
}

// randomIndex reseeds per selection from time and pid. Low entropy, not
// cryptographically secure; acceptable for spreading load, nothing else.
func randomIndex(n int) int {
	r := rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(os.Getpid())))
	return r.Intn(n)
}

// hashIndex gives session affinity: the same client IP against the same
// pool contents always maps to the same target. The mapping shifts whenever
// pool membership or ordering changes.
func hashIndex(clientIP string, n int) int {
	if clientIP == "" {
		clientIP = defaultClientIP
	}
	return int(crc32.ChecksumIEEE([]byte(clientIP)) % uint32(n))
}
