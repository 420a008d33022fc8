package tlsconfig

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeSelfSigned writes an ECDSA P-256 certificate for localhost and
// 127.0.0.1 plus its key to dir and returns both paths.
func writeSelfSigned(t *testing.T, dir string) (certFile, keyFile string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		t.Fatalf("serial: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "localhost"},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER}), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func TestLoad_NothingConfigured(t *testing.T) {
	t.Parallel()

	cfg, err := Load(Files{}, "db.example.com")
	if err != nil || cfg != nil {
		t.Fatalf("got %v, %v; want nil, nil", cfg, err)
	}
}

func TestLoad_TrustsCAFile(t *testing.T) {
	t.Parallel()

	certFile, keyFile := writeSelfSigned(t, t.TempDir())
	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		t.Fatal(err)
	}

	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	server.TLS = &tls.Config{Certificates: []tls.Certificate{pair}}
	server.StartTLS()
	defer server.Close()

	cfg, err := Load(Files{CAFile: certFile}, "localhost")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MinVersion != tls.VersionTLS12 || cfg.ServerName != "localhost" {
		t.Errorf("config: got min %x server %q", cfg.MinVersion, cfg.ServerName)
	}

	client := &http.Client{Transport: &http.Transport{TLSClientConfig: cfg}}
	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("handshake with trusted CA failed: %v", err)
	}
	resp.Body.Close()
}

func TestLoad_ClientCertificate(t *testing.T) {
	t.Parallel()

	certFile, keyFile := writeSelfSigned(t, t.TempDir())

	cfg, err := Load(Files{CertFile: certFile, KeyFile: keyFile}, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Errorf("certificates: got %d", len(cfg.Certificates))
	}
	if cfg.RootCAs != nil {
		t.Error("RootCAs should stay nil without a CA file")
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	certFile, _ := writeSelfSigned(t, dir)
	junk := filepath.Join(dir, "junk.pem")
	if err := os.WriteFile(junk, []byte("not a certificate"), 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		files Files
		want  string
	}{
		{"missing CA file", Files{CAFile: filepath.Join(dir, "nope.pem")}, "failed to read CA file"},
		{"CA file without certificates", Files{CAFile: junk}, "no certificates found"},
		{"cert without key", Files{CertFile: certFile}, "must be set together"},
		{"missing key file", Files{CertFile: certFile, KeyFile: filepath.Join(dir, "nope.key")}, "key file not found"},
		{"key is not a key", Files{CertFile: certFile, KeyFile: junk}, "failed to load TLS key pair"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Load(tt.files, "")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error: got %v, want containing %q", err, tt.want)
			}
		})
	}
}
