// Package certs selects the TLS certificate to present for a handshake.
// Only the raw SNI value exists at this point; no HTTP data has been read.
package certs

import (
	"context"
	"crypto/tls"
	"os"

	"velox-proxy/internal/common/logging"
	"velox-proxy/internal/hostname"
	"velox-proxy/internal/metrics"
	"velox-proxy/internal/models"
	"velox-proxy/internal/store"
)

// Store is the slice of the config store the selector needs.
type Store interface {
	GetCertificate(ctx context.Context, domain string) (*models.Certificate, error)
}

// Selector looks up certificate records by server name and converts them to
// the form the handshake needs. Records are re-fetched per handshake; a
// renewed certificate in the store is picked up by the next connection.
type Selector struct {
	store  Store
	logger logging.Logger
}

// NewSelector creates a certificate selector backed by the config store.
func NewSelector(s Store) *Selector {
	return &Selector{store: s, logger: logging.GetGlobalLogger()}
}

// GetCertificate implements tls.Config.GetCertificate. The server name is
// normalized first; when no record exists under the normalized name and the
// raw name differs, the raw name is retried. Any miss, parse, or load
// failure returns (nil, nil): no certificate is installed and the handshake
// is left to the transport's default behavior. Failures here are logged,
// never fatal to the process.
func (s *Selector) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	ctx := hello.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	serverName := hello.ServerName

	record, err := s.lookup(ctx, serverName)
	if err != nil {
		if !store.IsMiss(err) {
			s.logger.Error("certificate lookup failed", err,
				logging.String("server_name", serverName))
			metrics.CertificateLookups.WithLabelValues(metrics.ResultUnavailable).Inc()
			return nil, nil
		}
		s.logger.Debug("no certificate record for server name",
			logging.String("server_name", serverName))
		metrics.CertificateLookups.WithLabelValues(metrics.ResultNotFound).Inc()
		return nil, nil
	}

	certPEM, keyPEM, err := s.material(record)
	if err != nil {
		s.logger.Error("certificate material load failed", err,
			logging.String("server_name", serverName),
			logging.String("domain", record.Domain))
		metrics.CertificateLookups.WithLabelValues(metrics.ResultError).Inc()
		return nil, nil
	}

	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		s.logger.Error("certificate conversion failed", err,
			logging.String("server_name", serverName),
			logging.String("domain", record.Domain))
		metrics.CertificateLookups.WithLabelValues(metrics.ResultError).Inc()
		return nil, nil
	}

	metrics.CertificateLookups.WithLabelValues(metrics.ResultOK).Inc()
	return &pair, nil
}

// lookup tries the normalized server name first, then the raw one.
func (s *Selector) lookup(ctx context.Context, serverName string) (*models.Certificate, error) {
	normalized := hostname.Normalize(serverName)

	record, err := s.store.GetCertificate(ctx, normalized)
	if err == nil {
		return record, nil
	}
	if store.IsMiss(err) && normalized != serverName {
		return s.store.GetCertificate(ctx, serverName)
	}
	return nil, err
}

// material returns the PEM payloads for a record, preferring inline PEM over
// file paths.
func (s *Selector) material(record *models.Certificate) ([]byte, []byte, error) {
	if record.CertPEM != "" && record.KeyPEM != "" {
		return []byte(record.CertPEM), []byte(record.KeyPEM), nil
	}

	certPEM, err := os.ReadFile(record.CertPath)
	if err != nil {
		return nil, nil, err
	}
	keyPEM, err := os.ReadFile(record.KeyPath)
	if err != nil {
		return nil, nil, err
	}
	return certPEM, keyPEM, nil
}
