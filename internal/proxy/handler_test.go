package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"velox-proxy/internal/balancer"
	"velox-proxy/internal/models"
	"velox-proxy/internal/routing"
	"velox-proxy/internal/store"
)

type proxyFixture struct {
	handler *Handler
	writer  *redis.Client
	mr      *miniredis.Miniredis
}

func setupProxy(t *testing.T) *proxyFixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := store.NewClient(&store.Config{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	writer := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { writer.Close() })

	handler := NewHandler(routing.NewResolver(client), balancer.NewWithWorkerID(0))
	return &proxyFixture{handler: handler, writer: writer, mr: mr}
}

func (f *proxyFixture) seedRoute(t *testing.T, route models.Route, upstreams ...string) {
	t.Helper()
	ctx := context.Background()

	doc, err := json.Marshal(route)
	require.NoError(t, err)
	require.NoError(t, f.writer.Set(ctx, "routes:"+route.ID, doc, 0).Err())
	require.NoError(t, f.writer.SAdd(ctx, "routes:index:host:"+route.Host, route.ID).Err())
	if len(upstreams) > 0 {
		require.NoError(t, f.writer.RPush(ctx, "upstreams:"+route.ID, upstreams).Err())
	}
}

// echoBackend records the path and Host header it was called with.
type echoBackend struct {
	server *httptest.Server
	path   string
	host   string
}

func newEchoBackend(t *testing.T) *echoBackend {
	t.Helper()
	b := &echoBackend{}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.path = r.URL.Path
		b.host = r.Host
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("backend ok"))
	}))
	t.Cleanup(b.server.Close)
	return b
}

// addr returns the backend as an "address:port" upstream entry.
func (b *echoBackend) addr(t *testing.T) string {
	t.Helper()
	u, err := url.Parse(b.server.URL)
	require.NoError(t, err)
	return u.Host
}

func doRequest(f *proxyFixture, host, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	req.Host = host
	req.RemoteAddr = "192.168.1.10:54321"
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHandler_ProxiesToBackend(t *testing.T) {
	f := setupProxy(t)
	backend := newEchoBackend(t)

	f.seedRoute(t, models.Route{
		ID: "web", Host: "app.example.com", Path: "/", Enabled: true,
	}, backend.addr(t))

	rec := doRequest(f, "app.example.com", "/users/42")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "backend ok", rec.Body.String())
	assert.Equal(t, "/users/42", backend.path)
	assert.Equal(t, backend.addr(t), backend.host)
}

func TestHandler_StripPathRewrite(t *testing.T) {
	f := setupProxy(t)
	backend := newEchoBackend(t)

	f.seedRoute(t, models.Route{
		ID: "api", Host: "app.example.com", Path: "/api", StripPath: true, Enabled: true,
	}, backend.addr(t))

	rec := doRequest(f, "app.example.com", "/api/users")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/users", backend.path)
}

func TestHandler_PreserveHost(t *testing.T) {
	f := setupProxy(t)
	backend := newEchoBackend(t)

	f.seedRoute(t, models.Route{
		ID: "web", Host: "app.example.com", Path: "/", PreserveHost: true, Enabled: true,
	}, backend.addr(t))

	rec := doRequest(f, "app.example.com", "/")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "app.example.com", backend.host)
}

func TestHandler_HostPortStripped(t *testing.T) {
	f := setupProxy(t)
	backend := newEchoBackend(t)

	f.seedRoute(t, models.Route{
		ID: "web", Host: "app.example.com", Path: "/", Enabled: true,
	}, backend.addr(t))

	rec := doRequest(f, "app.example.com:8080", "/")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_IPv6HostLiteral(t *testing.T) {
	f := setupProxy(t)
	backend := newEchoBackend(t)

	f.seedRoute(t, models.Route{
		ID: "web", Host: "::1", Path: "/", Enabled: true,
	}, backend.addr(t))

	rec := doRequest(f, "[::1]:8080", "/")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_NoRoute(t *testing.T) {
	f := setupProxy(t)

	rec := doRequest(f, "unknown.example.com", "/")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_StoreDown(t *testing.T) {
	f := setupProxy(t)
	f.mr.Close()

	rec := doRequest(f, "app.example.com", "/")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandler_EmptyPool(t *testing.T) {
	f := setupProxy(t)

	f.seedRoute(t, models.Route{
		ID: "web", Host: "app.example.com", Path: "/", Enabled: true,
	}, "10.0.0.5:8080")
	require.NoError(t, f.writer.Set(context.Background(),
		"upstreams:health:web:10.0.0.5:8080", "unhealthy", 0).Err())

	rec := doRequest(f, "app.example.com", "/")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandler_UnreachableBackend(t *testing.T) {
	f := setupProxy(t)

	// Reserve a port and close it so nothing is listening there.
	dead := httptest.NewServer(http.NotFoundHandler())
	u, err := url.Parse(dead.URL)
	require.NoError(t, err)
	dead.Close()

	f.seedRoute(t, models.Route{
		ID: "web", Host: "app.example.com", Path: "/", Enabled: true,
	}, u.Host)

	rec := doRequest(f, "app.example.com", "/")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandler_RoundRobinAcrossRequests(t *testing.T) {
	f := setupProxy(t)
	first := newEchoBackend(t)
	second := newEchoBackend(t)

	counts := map[string]int{}
	firstAddr, secondAddr := first.addr(t), second.addr(t)

	f.seedRoute(t, models.Route{
		ID: "web", Host: "app.example.com", Path: "/", Enabled: true,
	}, firstAddr, secondAddr)

	for i := 0; i < 4; i++ {
		rec := doRequest(f, "app.example.com", "/"+strconv.Itoa(i))
		require.Equal(t, http.StatusOK, rec.Code)
		if first.path == "/"+strconv.Itoa(i) {
			counts[firstAddr]++
		} else {
			counts[secondAddr]++
		}
	}

	assert.Equal(t, 2, counts[firstAddr])
	assert.Equal(t, 2, counts[secondAddr])
}
