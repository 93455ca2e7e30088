package remote

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// TrustStore holds server certificates the user accepted despite failed
// verification. Accepted certificates are matched by fingerprint, so a
// self-signed certificate works for whatever host name it was served on.
type TrustStore struct {
	path string

	mu       sync.RWMutex
	accepted map[string]*x509.Certificate
	roots    *x509.CertPool
}

// NewTrustStore loads the PEM bundle at path; a missing file is empty.
func NewTrustStore(path string) (*TrustStore, error) {
	roots, err := x509.SystemCertPool()
	if err != nil {
		roots = x509.NewCertPool()
	}
	t := &TrustStore{path: path, accepted: make(map[string]*x509.Certificate), roots: roots}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read trusted certificates: %w", err)
	}

	for block, rest := pem.Decode(data); block != nil; block, rest = pem.Decode(rest) {
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse trusted certificate: %w", err)
		}
		t.accepted[Fingerprint(cert)] = cert
	}
	return t, nil
}

// Fingerprint is the hex SHA-256 of the DER certificate.
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:])
}

// Accept trusts cert from now on and persists it.
func (t *TrustStore) Accept(cert *x509.Certificate) error {
	if cert == nil {
		return errors.New("no certificate to accept")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	fp := Fingerprint(cert)
	if _, ok := t.accepted[fp]; ok {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(t.path), 0o700); err != nil {
		return fmt.Errorf("save trusted certificate: %w", err)
	}
	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("save trusted certificate: %w", err)
	}
	if err := pem.Encode(f, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}); err != nil {
		f.Close()
		return fmt.Errorf("save trusted certificate: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("save trusted certificate: %w", err)
	}

	t.accepted[fp] = cert
	return nil
}

// IsAccepted reports whether cert was accepted earlier.
func (t *TrustStore) IsAccepted(cert *x509.Certificate) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.accepted[Fingerprint(cert)]
	return ok
}

// VerifyConnection checks the peer chain against the system roots and
// falls back to the accepted set. Install it with InsecureSkipVerify so
// it replaces the default verification.
func (t *TrustStore) VerifyConnection(cs tls.ConnectionState) error {
	if len(cs.PeerCertificates) == 0 {
		return errors.New("server presented no certificate")
	}
	leaf := cs.PeerCertificates[0]

	opts := x509.VerifyOptions{
		DNSName:       cs.ServerName,
		Roots:         t.roots,
		Intermediates: x509.NewCertPool(),
	}
	for _, c := range cs.PeerCertificates[1:] {
		opts.Intermediates.AddCert(c)
	}

	_, err := leaf.Verify(opts)
	if err == nil || t.IsAccepted(leaf) {
		return nil
	}
	return &UntrustedCertError{Cert: leaf, Err: err}
}

// TLSConfig returns a client config that verifies through the store.
func (t *TrustStore) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: true, // verification happens in VerifyConnection
		VerifyConnection:   t.VerifyConnection,
	}
}
