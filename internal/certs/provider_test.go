package certs

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func generatePEMPair(t *testing.T, notBefore, notAfter time.Time) (certPEM, keyPEM []byte) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test issuer"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return certPEM, keyPEM
}

func writeTemp(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestNewProviderValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewProvider("", "key.pem", zap.NewNop()); err == nil {
		t.Error("expected error for empty certificate path")
	}
	if _, err := NewProvider("cert.pem", "", zap.NewNop()); err == nil {
		t.Error("expected error for empty key path")
	}
}

func TestResolveValidCredential(t *testing.T) {
	t.Parallel()

	now := time.Now()
	certPEM, keyPEM := generatePEMPair(t, now.Add(-time.Hour), now.Add(365*24*time.Hour))

	dir := t.TempDir()
	certPath := writeTemp(t, dir, "cert.pem", certPEM)
	keyPath := writeTemp(t, dir, "key.pem", keyPEM)

	provider, err := NewProvider(certPath, keyPath, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	handle, err := provider.Resolve()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handle.Certificate == nil || handle.PrivateKey == nil {
		t.Fatal("expected both certificate and key to be resolved")
	}
	if got := handle.Certificate.Subject.CommonName; got != "test issuer" {
		t.Errorf("expected subject 'test issuer', got %q", got)
	}
}

func TestResolveExpiredCertificate(t *testing.T) {
	t.Parallel()

	now := time.Now()
	certPEM, keyPEM := generatePEMPair(t, now.Add(-48*time.Hour), now.Add(-time.Hour))

	dir := t.TempDir()
	provider, err := NewProvider(
		writeTemp(t, dir, "cert.pem", certPEM),
		writeTemp(t, dir, "key.pem", keyPEM),
		zap.NewNop(),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := provider.Resolve(); err == nil || !strings.Contains(err.Error(), "expired") {
		t.Errorf("expected expiry error, got %v", err)
	}
}

func TestResolveNotYetValidCertificate(t *testing.T) {
	t.Parallel()

	now := time.Now()
	certPEM, keyPEM := generatePEMPair(t, now.Add(24*time.Hour), now.Add(48*time.Hour))

	dir := t.TempDir()
	provider, err := NewProvider(
		writeTemp(t, dir, "cert.pem", certPEM),
		writeTemp(t, dir, "key.pem", keyPEM),
		zap.NewNop(),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := provider.Resolve(); err == nil || !strings.Contains(err.Error(), "not valid until") {
		t.Errorf("expected not-yet-valid error, got %v", err)
	}
}

func TestResolveNearExpiryStillSucceeds(t *testing.T) {
	t.Parallel()

	now := time.Now()
	certPEM, keyPEM := generatePEMPair(t, now.Add(-time.Hour), now.Add(10*24*time.Hour))

	dir := t.TempDir()
	provider, err := NewProvider(
		writeTemp(t, dir, "cert.pem", certPEM),
		writeTemp(t, dir, "key.pem", keyPEM),
		zap.NewNop(),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := provider.Resolve(); err != nil {
		t.Errorf("expected near-expiry credential to resolve, got %v", err)
	}
}

func TestParseCertificatePEMRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := ParseCertificatePEM([]byte("not pem at all")); err == nil {
		t.Error("expected error for non-PEM input")
	}
}
