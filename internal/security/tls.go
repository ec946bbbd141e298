// Package security builds client TLS settings for the network extensions.
package security

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// TLSConfig holds TLS configuration
type TLSConfig struct {
	Enabled            bool   `yaml:"enabled" env:"ENABLED"`
	CertFile           string `yaml:"cert_file,omitempty" env:"CERT_FILE"`
	KeyFile            string `yaml:"key_file,omitempty" env:"KEY_FILE"`
	CAFile             string `yaml:"ca_file,omitempty" env:"CA_FILE"`
	ServerName         string `yaml:"server_name,omitempty" env:"SERVER_NAME"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify,omitempty" env:"INSECURE_SKIP_VERIFY"`
}

// Validate checks that certificate and key are given together.
func (c TLSConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return errors.New("cert_file and key_file must be set together")
	}
	return nil
}

// LoadTLSConfig builds a client tls.Config. It returns nil when TLS is
// disabled.
func LoadTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	if cfg.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load certificate and key: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if cfg.CAFile != "" {
		pool, err := loadCAPool(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}

// ReadCA returns the PEM bytes of the CA file, or nil when none is set.
func ReadCA(cfg TLSConfig) ([]byte, error) {
	if !cfg.Enabled || cfg.CAFile == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(cfg.CAFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}
	return pem, nil
}

func loadCAPool(path string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate %s", path)
	}
	return pool, nil
}
