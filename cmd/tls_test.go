package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bazaar/pkg/config"
)

func TestBuildTLSConfig_SelfSignedInDevelopment(t *testing.T) {
	t.Setenv("TLS_CERT", "")
	t.Setenv("TLS_KEY", "")

	tlsConfig, certFile, keyFile, err := buildTLSConfig(config.TLSSettings{EnableTLS: true, AllowSelfSigned: true}, "development")
	require.NoError(t, err)
	require.Len(t, tlsConfig.Certificates, 1)
	require.Empty(t, certFile)
	require.Empty(t, keyFile)
}

func TestBuildTLSConfig_NoCertificatesInProduction(t *testing.T) {
	t.Setenv("TLS_CERT", "")
	t.Setenv("TLS_KEY", "")

	_, _, _, err := buildTLSConfig(config.TLSSettings{EnableTLS: true, AllowSelfSigned: true}, "production")
	require.Error(t, err)
}

func TestGenerateSelfSignedCert_NamesProject(t *testing.T) {
	cert, err := generateSelfSignedCert()
	require.NoError(t, err)
	require.NotNil(t, cert.Leaf)

	require.Equal(t, []string{"Bazaar"}, cert.Leaf.Subject.Organization)
	require.NoError(t, cert.Leaf.VerifyHostname("localhost"))
	require.NoError(t, cert.Leaf.VerifyHostname("127.0.0.1"))
	require.True(t, cert.Leaf.NotAfter.Before(time.Now().Add(31*24*time.Hour)))
}
