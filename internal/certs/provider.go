// Package certs resolves the issuer's stored signing credential into a usable
// certificate and key handle and validates its validity window.
package certs

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

// expiryWarningWindow is how early an upcoming expiry gets flagged.
const expiryWarningWindow = 30 * 24 * time.Hour

// Handle is a resolved certificate and private key ready for signing.
type Handle struct {
	Certificate *x509.Certificate
	PrivateKey  *rsa.PrivateKey
}

// Provider loads PEM-encoded credentials from disk and checks their validity
// window on every resolution.
type Provider struct {
	certPath string
	keyPath  string
	logger   *zap.Logger
	now      func() time.Time
}

func NewProvider(certPath, keyPath string, logger *zap.Logger) (*Provider, error) {
	if certPath == "" {
		return nil, fmt.Errorf("certificate path is required")
	}
	if keyPath == "" {
		return nil, fmt.Errorf("private key path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Provider{
		certPath: certPath,
		keyPath:  keyPath,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Resolve loads and validates the credential. Expired or not-yet-valid
// certificates are rejected; certificates within 30 days of expiry are
// accepted with a warning.
func (p *Provider) Resolve() (*Handle, error) {
	certPEM, err := os.ReadFile(p.certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}
	keyPEM, err := os.ReadFile(p.keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	return p.resolvePEM(certPEM, keyPEM)
}

func (p *Provider) resolvePEM(certPEM, keyPEM []byte) (*Handle, error) {
	cert, err := ParseCertificatePEM(certPEM)
	if err != nil {
		return nil, err
	}
	key, err := ParsePrivateKeyPEM(keyPEM)
	if err != nil {
		return nil, err
	}

	if err := p.checkValidityWindow(cert); err != nil {
		return nil, err
	}

	return &Handle{Certificate: cert, PrivateKey: key}, nil
}

func (p *Provider) checkValidityWindow(cert *x509.Certificate) error {
	now := p.now()

	if now.Before(cert.NotBefore) {
		return fmt.Errorf("certificate is not valid until %s", cert.NotBefore.Format(time.RFC3339))
	}
	if now.After(cert.NotAfter) {
		return fmt.Errorf("certificate expired on %s", cert.NotAfter.Format(time.RFC3339))
	}

	if remaining := cert.NotAfter.Sub(now); remaining < expiryWarningWindow {
		p.logger.Warn("signing certificate expires soon",
			zap.String("subject", cert.Subject.CommonName),
			zap.Time("notAfter", cert.NotAfter),
			zap.Duration("remaining", remaining),
		)
	}

	return nil
}

// ParseCertificatePEM decodes the first CERTIFICATE block in the input.
func ParseCertificatePEM(data []byte) (*x509.Certificate, error) {
	for block, rest := pem.Decode(data); block != nil; block, rest = pem.Decode(rest) {
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		return cert, nil
	}
	return nil, fmt.Errorf("no CERTIFICATE block found in PEM data")
}

// ParsePrivateKeyPEM decodes an RSA private key in PKCS#1 or PKCS#8 form.
func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in key data")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, expected RSA", parsed)
	}
	return key, nil
}
