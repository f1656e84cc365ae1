// Package server wraps the HTTP and HTTPS listeners. The HTTPS listener has
// no static certificate; every handshake resolves its certificate through
// the SNI callback.
package server

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"velox-proxy/internal/common/logging"
)

// Server is one listener with graceful shutdown.
type Server struct {
	srv *http.Server
	tls bool
}

// New creates a plain HTTP listener on the given port.
func New(handler http.Handler, port string) *Server {
	return &Server{srv: newHTTPServer(handler, port)}
}

// NewTLS creates an HTTPS listener whose certificate is chosen per handshake
// by getCertificate. Handshakes for which no certificate is installed fail
// at the TLS layer; the listener itself stays up.
func NewTLS(handler http.Handler, port string, getCertificate func(*tls.ClientHelloInfo) (*tls.Certificate, error)) *Server {
	srv := newHTTPServer(handler, port)
	srv.TLSConfig = &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: getCertificate,
	}
	return &Server{srv: srv, tls: true}
}

func newHTTPServer(handler http.Handler, port string) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// Start begins serving in a background goroutine. Listener failures other
// than a clean shutdown are reported on the returned channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.tls {
			// Certificate material comes from GetCertificate, not files.
			err = s.srv.ListenAndServeTLS("", "")
		} else {
			err = s.srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logging.Error("listener failed", err, logging.String("addr", s.srv.Addr))
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully drains the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
