// Package store reads routing, certificate, health, and challenge state from
// the external Redis config store. The store is written by the control plane
// and is the single source of truth: nothing read here is cached across
// requests, so a change in the store is visible on the next request.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker"

	"velox-proxy/internal/common/logging"
	"velox-proxy/internal/models"
)

// Key layout, shared with the control plane.
const (
	keyRouteDoc    = "routes:%s"
	keyHostIndex   = "routes:index:host:%s"
	keyUpstreams   = "upstreams:%s"
	keyHealth      = "upstreams:health:%s:%s:%d"
	keyCertificate = "certs:%s"
	keyChallenge   = "acme:challenge:%s"
)

// healthUnhealthy is the only marker value that excludes a target. Anything
// else, including an absent marker, counts as healthy.
const healthUnhealthy = "unhealthy"

// Config holds the Redis connection settings.
type Config struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// Client is the process-wide config store client. A single pooled connection
// set is shared by all requests; no decision state crosses requests through
// it. All round-trips pass through a circuit breaker so a dead store fails
// fast instead of stalling every in-flight request.
type Client struct {
	rdb     *redis.Client
	breaker *gobreaker.CircuitBreaker
	config  *Config
}

// NewClient connects to the config store and verifies the connection.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("store config is required")
	}

	if config.Address == "" {
		config.Address = "localhost:6379"
	}
	if config.PoolSize == 0 {
		config.PoolSize = 10
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to config store: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "config-store",
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Misses are answers, not failures. Only transport errors trip.
		IsSuccessful: func(err error) bool {
			return err == nil || IsMiss(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn("config store breaker state changed",
				logging.String("breaker", name),
				logging.String("from", from.String()),
				logging.String("to", to.String()),
			)
		},
	})

	return &Client{rdb: rdb, breaker: breaker, config: config}, nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health pings the store.
func (c *Client) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := c.do(func() (interface{}, error) {
		return nil, c.rdb.Ping(ctx).Err()
	})
	return err
}

// RouteIDsByHost returns the route ids indexed under the given host. An
// unindexed host yields an empty set, not an error.
func (c *Client) RouteIDsByHost(ctx context.Context, host string) ([]string, error) {
	result, err := c.do(func() (interface{}, error) {
		return c.rdb.SMembers(ctx, fmt.Sprintf(keyHostIndex, host)).Result()
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

// GetRoute fetches and decodes a route document. A missing key maps to
// ErrNotFound and an undecodable document to ErrMalformed; both are misses.
func (c *Client) GetRoute(ctx context.Context, id string) (*models.Route, error) {
	result, err := c.do(func() (interface{}, error) {
		data, err := c.rdb.Get(ctx, fmt.Sprintf(keyRouteDoc, id)).Result()
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("route %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return nil, err
		}
		var route models.Route
		if err := json.Unmarshal([]byte(data), &route); err != nil {
			return nil, fmt.Errorf("route %s: %w", id, ErrMalformed)
		}
		return &route, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.Route), nil
}

// Upstreams returns the ordered backend list for a route. Order is the
// control plane's registration order and is preserved through expansion.
func (c *Client) Upstreams(ctx context.Context, routeID string) ([]string, error) {
	result, err := c.do(func() (interface{}, error) {
		return c.rdb.LRange(ctx, fmt.Sprintf(keyUpstreams, routeID), 0, -1).Result()
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

// Healthy reports whether a target may receive traffic. A target is excluded
// only when its marker is exactly "unhealthy"; absence means healthy.
func (c *Client) Healthy(ctx context.Context, routeID, address string, port int) (bool, error) {
	result, err := c.do(func() (interface{}, error) {
		marker, err := c.rdb.Get(ctx, fmt.Sprintf(keyHealth, routeID, address, port)).Result()
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return marker, err
	})
	if err != nil {
		return false, err
	}
	return result.(string) != healthUnhealthy, nil
}

// GetCertificate fetches and decodes a certificate record for a domain.
func (c *Client) GetCertificate(ctx context.Context, domain string) (*models.Certificate, error) {
	result, err := c.do(func() (interface{}, error) {
		data, err := c.rdb.Get(ctx, fmt.Sprintf(keyCertificate, domain)).Result()
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("certificate %s: %w", domain, ErrNotFound)
		}
		if err != nil {
			return nil, err
		}
		var cert models.Certificate
		if err := json.Unmarshal([]byte(data), &cert); err != nil {
			return nil, fmt.Errorf("certificate %s: %w", domain, ErrMalformed)
		}
		return &cert, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.Certificate), nil
}

// GetChallenge returns the key authorization for an ACME HTTP-01 token.
func (c *Client) GetChallenge(ctx context.Context, token string) (string, error) {
	result, err := c.do(func() (interface{}, error) {
		keyAuth, err := c.rdb.Get(ctx, fmt.Sprintf(keyChallenge, token)).Result()
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("challenge token: %w", ErrNotFound)
		}
		return keyAuth, err
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// do runs a store round-trip through the circuit breaker and normalizes
// transport failures to ErrUnavailable.
func (c *Client) do(op func() (interface{}, error)) (interface{}, error) {
	result, err := c.breaker.Execute(op)
	if err == nil || IsMiss(err) {
		return result, err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: circuit open", ErrUnavailable)
	}
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
}
