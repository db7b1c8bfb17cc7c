package cert

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
)

// VerifyTLSConfig checks if the provided certificate files are valid and match
func VerifyTLSConfig(certFile, keyFile, caCertFile string) error {
	if _, err := os.Stat(certFile); err != nil {
		return errors.Wrapf(err, "certificate file not found: %s", certFile)
	}
	if _, err := os.Stat(keyFile); err != nil {
		return errors.Wrapf(err, "key file not found: %s", keyFile)
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return errors.Wrap(err, "failed to load certificate key pair")
	}
	if len(cert.Certificate) == 0 {
		return errors.New("no certificate found in file")
	}
	x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return errors.Wrap(err, "failed to parse certificate")
	}

	now := time.Now()
	if now.After(x509Cert.NotAfter) {
		return fmt.Errorf("certificate expired at %s", x509Cert.NotAfter)
	}
	if now.Before(x509Cert.NotBefore) {
		return fmt.Errorf("certificate not valid until %s", x509Cert.NotBefore)
	}

	pool, err := loadCAPool(caCertFile)
	if err != nil {
		return err
	}

	// hostname is not checked here, only the chain
	opts := x509.VerifyOptions{
		Roots:     pool,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
	if _, err := x509Cert.Verify(opts); err != nil {
		return errors.Wrap(err, "certificate verification against CA failed")
	}

	return nil
}

// LoadClientTLSConfig builds the client side TLS config used to reach the message bus.
// certFile and keyFile are optional; without them only the server is authenticated.
func LoadClientTLSConfig(caCertFile, certFile, keyFile string) (*tls.Config, error) {
	pool, err := loadCAPool(caCertFile)
	if err != nil {
		return nil, err
	}

	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		RootCAs:    pool,
	}

	if certFile == "" && keyFile == "" {
		return cfg, nil
	}
	if certFile == "" || keyFile == "" {
		return nil, errors.New("client certificate and key must be configured together")
	}

	if err := VerifyTLSConfig(certFile, keyFile, caCertFile); err != nil {
		return nil, err
	}
	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load client certificate key pair")
	}
	cfg.Certificates = []tls.Certificate{pair}

	return cfg, nil
}

func loadCAPool(caCertFile string) (*x509.CertPool, error) {
	caBytes, err := os.ReadFile(caCertFile)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read CA certificate %s", caCertFile)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, errors.New("failed to parse CA certificate")
	}
	return pool, nil
}
