package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"velox-proxy/internal/acme"
	"velox-proxy/internal/balancer"
	"velox-proxy/internal/certs"
	"velox-proxy/internal/common/logging"
	"velox-proxy/internal/config"
	"velox-proxy/internal/middleware"
	"velox-proxy/internal/proxy"
	"velox-proxy/internal/routing"
	"velox-proxy/internal/server"
	"velox-proxy/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logging.InitGlobalLogger(cfg.LogLevel)
	defer logging.MustSync()

	client, err := store.NewClient(&store.Config{
		Address:  cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDBNumber(),
		PoolSize: cfg.RedisPoolSizeNumber(),
	})
	if err != nil {
		log.Fatalf("Failed to connect to config store: %v", err)
	}
	defer client.Close()

	selector := balancer.New()
	if cfg.WorkerID != "" {
		selector = balancer.NewWithWorkerID(cfg.WorkerIDNumber())
	}
	proxyHandler := proxy.NewHandler(routing.NewResolver(client), selector)
	certSelector := certs.NewSelector(client)

	router := mux.NewRouter()

	// Challenge probes bypass routing entirely and must match first.
	router.Handle(acme.ChallengePath, acme.NewResponder(client)).Methods("GET")

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Everything else is proxied according to the store's routing state.
	router.PathPrefix("/").Handler(proxyHandler)

	handler := middleware.RequestID(middleware.Logging(router))

	httpSrv := server.New(handler, cfg.Port)
	logging.Info("http listener starting", logging.String("port", cfg.Port))
	httpErr := httpSrv.Start()

	var httpsSrv *server.Server
	var httpsErr <-chan error
	if cfg.HTTPSPort != "" {
		httpsSrv = server.NewTLS(handler, cfg.HTTPSPort, certSelector.GetCertificate)
		logging.Info("https listener starting", logging.String("port", cfg.HTTPSPort))
		httpsErr = httpsSrv.Start()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logging.Info("shutdown signal received")
	case err := <-httpErr:
		logging.Error("http listener exited", err)
	case err := <-httpsErr:
		logging.Error("https listener exited", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		logging.Error("http shutdown failed", err)
	}
	if httpsSrv != nil {
		if err := httpsSrv.Shutdown(ctx); err != nil {
			logging.Error("https shutdown failed", err)
		}
	}

	logging.Info("proxy exited")
}
