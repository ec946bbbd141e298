package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeCert writes a self-signed certificate and its key.
func writeCert(t *testing.T, dir string) (certFile, keyFile string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "edjournal-test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate() error = %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalECPrivateKey() error = %v", err)
	}

	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func TestLoadTLSConfig_Disabled(t *testing.T) {
	cfg, err := LoadTLSConfig(TLSConfig{CAFile: "/does/not/exist"})
	if err != nil {
		t.Fatalf("LoadTLSConfig() error = %v", err)
	}
	if cfg != nil {
		t.Error("expected nil config when TLS is disabled")
	}
}

func TestLoadTLSConfig_Defaults(t *testing.T) {
	cfg, err := LoadTLSConfig(TLSConfig{Enabled: true, ServerName: "kafka.local"})
	if err != nil {
		t.Fatalf("LoadTLSConfig() error = %v", err)
	}
	if cfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %x, want TLS 1.2", cfg.MinVersion)
	}
	if cfg.ServerName != "kafka.local" {
		t.Errorf("ServerName = %q", cfg.ServerName)
	}
	if cfg.RootCAs != nil || len(cfg.Certificates) != 0 {
		t.Error("expected system roots and no client certificate")
	}
}

func TestLoadTLSConfig_Files(t *testing.T) {
	certFile, keyFile := writeCert(t, t.TempDir())

	cfg, err := LoadTLSConfig(TLSConfig{
		Enabled:  true,
		CertFile: certFile,
		KeyFile:  keyFile,
		CAFile:   certFile,
	})
	if err != nil {
		t.Fatalf("LoadTLSConfig() error = %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Errorf("Certificates = %d, want 1", len(cfg.Certificates))
	}
	if cfg.RootCAs == nil {
		t.Error("expected RootCAs from CA file")
	}
}

func TestLoadTLSConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.pem")
	if err := os.WriteFile(garbage, []byte("not a certificate"), 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		cfg  TLSConfig
	}{
		{"cert without key", TLSConfig{Enabled: true, CertFile: garbage}},
		{"missing CA", TLSConfig{Enabled: true, CAFile: filepath.Join(dir, "missing.pem")}},
		{"unparseable CA", TLSConfig{Enabled: true, CAFile: garbage}},
		{"unparseable pair", TLSConfig{Enabled: true, CertFile: garbage, KeyFile: garbage}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadTLSConfig(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestReadCA(t *testing.T) {
	certFile, _ := writeCert(t, t.TempDir())

	pem, err := ReadCA(TLSConfig{Enabled: true, CAFile: certFile})
	if err != nil {
		t.Fatalf("ReadCA() error = %v", err)
	}
	if len(pem) == 0 {
		t.Error("expected CA bytes")
	}

	pem, err = ReadCA(TLSConfig{CAFile: certFile})
	if err != nil || pem != nil {
		t.Errorf("ReadCA() on disabled TLS = %v, %v", pem, err)
	}
}
