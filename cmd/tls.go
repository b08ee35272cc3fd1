package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"os"
	"time"

	"bazaar/pkg/config"
)

// serve starts srv over HTTP or HTTPS depending on cfg.TLS.
func serve(srv *http.Server, cfg config.Config) error {
	if !cfg.TLS.EnableTLS {
		return srv.ListenAndServe()
	}

	tlsConfig, certFile, keyFile, err := buildTLSConfig(cfg.TLS, cfg.Env)
	if err != nil {
		return fmt.Errorf("TLS setup: %w", err)
	}
	srv.TLSConfig = tlsConfig

	if certFile != "" && keyFile != "" {
		return srv.ListenAndServeTLS(certFile, keyFile)
	}
	return srv.ListenAndServeTLS("", "")
}

// buildTLSConfig prefers file paths, then inline PEM (TLS_CERT/TLS_KEY), then
// a self-signed certificate outside production.
func buildTLSConfig(s config.TLSSettings, env string) (*tls.Config, string, string, error) {
	if s.CertPath != "" && s.KeyPath != "" {
		cert, err := tls.LoadX509KeyPair(s.CertPath, s.KeyPath)
		if err != nil {
			return nil, "", "", err
		}
		return serverTLS(cert), s.CertPath, s.KeyPath, nil
	}

	certPEM := os.Getenv("TLS_CERT")
	keyPEM := os.Getenv("TLS_KEY")
	if certPEM != "" && keyPEM != "" {
		cert, err := tls.X509KeyPair([]byte(certPEM), []byte(keyPEM))
		if err != nil {
			return nil, "", "", err
		}
		return serverTLS(cert), "", "", nil
	}

	if env != "production" && s.AllowSelfSigned {
		cert, err := generateSelfSignedCert()
		if err != nil {
			return nil, "", "", err
		}
		return serverTLS(cert), "", "", nil
	}

	return nil, "", "", fmt.Errorf("no TLS certificates available")
}

// selfSignedHosts are the names a development certificate is valid for.
var selfSignedHosts = []string{"localhost", "127.0.0.1", "::1"}

func serverTLS(cert tls.Certificate) *tls.Config {
	return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
}

// generateSelfSignedCert issues a short-lived P-256 certificate for local
// development of the Bazaar API.
func generateSelfSignedCert() (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate serial: %w", err)
	}

	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:         "bazaar.localhost",
			Organization:       []string{"Bazaar"},
			OrganizationalUnit: []string{"development"},
		},
		NotBefore:   now.Add(-5 * time.Minute),
		NotAfter:    now.Add(30 * 24 * time.Hour),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	for _, h := range selfSignedHosts {
		if ip := net.ParseIP(h); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("create certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return tls.Certificate{}, err
	}

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}, nil
}
