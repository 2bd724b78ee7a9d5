package server

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"github.com/nimburion/adapter-registry/pkg/config"
)

// managementTLSConfig builds the mutual TLS configuration of the management
// server: clients must present a certificate signed by the configured CA.
func managementTLSConfig(cfg config.ManagementConfig) (*tls.Config, error) {
	var missing []error
	for name, path := range map[string]string{
		"tls_cert_file": cfg.TLSCertFile,
		"tls_key_file":  cfg.TLSKeyFile,
		"tls_ca_file":   cfg.TLSCAFile,
	} {
		if path == "" {
			missing = append(missing, fmt.Errorf("management.%s is required for mTLS", name))
		}
	}
	if err := errors.Join(missing...); err != nil {
		return nil, err
	}

	serverCert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load management certificate: %w", err)
	}

	caPEM, err := os.ReadFile(cfg.TLSCAFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read management client CA: %w", err)
	}
	clientCAs := x509.NewCertPool()
	if !clientCAs.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("no certificate found in %s", cfg.TLSCAFile)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{serverCert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    clientCAs,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
