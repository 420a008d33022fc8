// Package tlsconfig builds client TLS configurations for the database
// tools from PEM files on disk.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// Files names the PEM material for a client connection. Every field is
// optional.
type Files struct {
	// CAFile holds one or more certificates trusted in addition to the
	// system roots.
	CAFile string
	// CertFile and KeyFile are a client certificate pair for mutual TLS.
	// Both must be set together.
	CertFile string
	KeyFile  string
}

// Empty reports whether no file is configured.
func (f Files) Empty() bool {
	return f.CAFile == "" && f.CertFile == "" && f.KeyFile == ""
}

// Load returns a client TLS configuration for serverName. It returns nil,
// nil when no file is configured.
func Load(f Files, serverName string) (*tls.Config, error) {
	if f.Empty() {
		return nil, nil
	}

	cfg := &tls.Config{
		ServerName: serverName,
		MinVersion: tls.VersionTLS12,
	}

	if f.CAFile != "" {
		pemData, err := os.ReadFile(f.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, fmt.Errorf("no certificates found in CA file %s", f.CAFile)
		}
		cfg.RootCAs = pool
	}

	if f.CertFile != "" || f.KeyFile != "" {
		if f.CertFile == "" || f.KeyFile == "" {
			return nil, fmt.Errorf("client certificate and key must be set together")
		}
		if _, err := os.Stat(f.CertFile); err != nil {
			return nil, fmt.Errorf("certificate file not found: %w", err)
		}
		if _, err := os.Stat(f.KeyFile); err != nil {
			return nil, fmt.Errorf("key file not found: %w", err)
		}
		cert, err := tls.LoadX509KeyPair(f.CertFile, f.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}
