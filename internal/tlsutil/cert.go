// Package tlsutil provides the certificate used when the dashboard is
// served over HTTPS.
package tlsutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/prasenjit/stub-console/internal/config"
)

const (
	certFileName = "dashboard.crt"
	keyFileName  = "dashboard.key"

	validFor = 365 * 24 * time.Hour
	// Generated certificates are replaced this long before they expire
	renewBefore = 7 * 24 * time.Hour
)

// ErrNoCertificate is returned when no certificate is available and
// generation is disabled
var ErrNoCertificate = errors.New("no TLS certificate found and auto-generation is disabled")

// ServerConfig returns a TLS configuration for the dashboard.
//
// Explicit cert/key files win. Otherwise a certificate from the store path
// is used, generating a self-signed one when it is missing or about to
// expire and auto-generation is enabled.
func ServerConfig(cfg config.TLSConfig, log zerolog.Logger) (*tls.Config, error) {
	cert, err := certificate(cfg, log, time.Now())
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func certificate(cfg config.TLSConfig, log zerolog.Logger, now time.Time) (*tls.Certificate, error) {
	if cfg.CertFile != "" || cfg.KeyFile != "" {
		if cfg.CertFile == "" || cfg.KeyFile == "" {
			return nil, errors.New("both certFile and keyFile must be set")
		}
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load certificate from %s and %s: %w", cfg.CertFile, cfg.KeyFile, err)
		}
		log.Info().Str("cert", cfg.CertFile).Msg("loaded TLS certificate")
		return &cert, nil
	}

	certPath, keyPath := StorePaths(cfg.StorePath)
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err == nil && !expiring(&cert, now) {
		log.Debug().Str("cert", certPath).Msg("using stored TLS certificate")
		return &cert, nil
	}

	if !cfg.AutoGenerate {
		if err == nil {
			return &cert, nil
		}
		return nil, ErrNoCertificate
	}

	certPEM, keyPEM, err := selfSigned(now, hostAddresses())
	if err != nil {
		return nil, err
	}
	if err := save(cfg.StorePath, certPEM, keyPEM); err != nil {
		return nil, err
	}

	generated, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse generated certificate: %w", err)
	}
	log.Info().Str("cert", certPath).Msg("generated self-signed TLS certificate")
	return &generated, nil
}

// StorePaths returns where generated certificates are kept
func StorePaths(storePath string) (certPath, keyPath string) {
	return filepath.Join(storePath, certFileName), filepath.Join(storePath, keyFileName)
}

func expiring(cert *tls.Certificate, now time.Time) bool {
	leaf := cert.Leaf
	if leaf == nil && len(cert.Certificate) > 0 {
		parsed, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return true
		}
		leaf = parsed
	}
	if leaf == nil {
		return true
	}
	return now.Add(renewBefore).After(leaf.NotAfter)
}

// selfSigned creates an ECDSA P-256 certificate for localhost and the
// given addresses
func selfSigned(now time.Time, ips []net.IP) (certPEM, keyPEM []byte, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Stub Console"},
			CommonName:   "Stub Console Dashboard",
		},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validFor),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           append([]net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback}, ips...),
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM, nil
}

func save(storePath string, certPEM, keyPEM []byte) error {
	if err := os.MkdirAll(storePath, 0700); err != nil {
		return fmt.Errorf("failed to create certificate store directory: %w", err)
	}
	certPath, keyPath := StorePaths(storePath)
	if err := os.WriteFile(certPath, certPEM, 0644); err != nil {
		return fmt.Errorf("failed to save certificate: %w", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		return fmt.Errorf("failed to save private key: %w", err)
	}
	return nil
}

// hostAddresses lists non-loopback interface addresses
func hostAddresses() []net.IP {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	var ips []net.IP
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			ips = append(ips, ipnet.IP)
		}
	}
	return ips
}
