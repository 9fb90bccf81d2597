package testinfra

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// certLifetime is how long generated certificates stay valid.
const certLifetime = time.Hour

// CertBundle is a throwaway CA with one server and one client certificate,
// all PEM encoded.
type CertBundle struct {
	CACert, CAKey         []byte
	ServerCert, ServerKey []byte
	ClientCert, ClientKey []byte
}

// CertPaths locates a bundle written to disk.
type CertPaths struct {
	CACert     string
	ServerCert string
	ServerKey  string
	ClientCert string
	ClientKey  string
}

type issued struct {
	cert *x509.Certificate
	key  *ecdsa.PrivateKey
	der  []byte
}

// issue creates a P-256 key and a certificate for tmpl. A nil parent makes
// the certificate self-signed.
func issue(what string, tmpl *x509.Certificate, parent *issued) (*issued, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate %s key: %w", what, err)
	}

	tmpl.NotBefore = time.Now().Add(-5 * time.Minute)
	tmpl.NotAfter = time.Now().Add(certLifetime)

	signer, signerKey := tmpl, key
	if parent != nil {
		signer, signerKey = parent.cert, parent.key
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, signer, &key.PublicKey, signerKey)
	if err != nil {
		return nil, fmt.Errorf("create %s certificate: %w", what, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse %s certificate: %w", what, err)
	}
	return &issued{cert: cert, key: key, der: der}, nil
}

// GenerateCertBundle creates a CA, a server certificate valid for hosts and a
// client certificate whose common name is clientUser, the database role the
// server maps certificate logins to.
func GenerateCertBundle(clientUser string, hosts ...string) (*CertBundle, error) {
	ca, err := issue("CA", &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "sqlpool-test-ca"},
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}, nil)
	if err != nil {
		return nil, err
	}

	serverTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "sqlpool-test-server"},
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			serverTmpl.IPAddresses = append(serverTmpl.IPAddresses, ip)
		} else {
			serverTmpl.DNSNames = append(serverTmpl.DNSNames, h)
		}
	}
	server, err := issue("server", serverTmpl, ca)
	if err != nil {
		return nil, err
	}

	client, err := issue("client", &x509.Certificate{
		SerialNumber: big.NewInt(3),
		Subject:      pkix.Name{CommonName: clientUser},
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}, ca)
	if err != nil {
		return nil, err
	}

	b := &CertBundle{}
	for _, item := range []struct {
		src       *issued
		cert, key *[]byte
	}{
		{ca, &b.CACert, &b.CAKey},
		{server, &b.ServerCert, &b.ServerKey},
		{client, &b.ClientCert, &b.ClientKey},
	} {
		keyDER, err := x509.MarshalECPrivateKey(item.src.key)
		if err != nil {
			return nil, fmt.Errorf("encode key of %s: %w", item.src.cert.Subject.CommonName, err)
		}
		*item.cert = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: item.src.der})
		*item.key = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	}
	return b, nil
}

// WriteToDir writes the bundle into dir with owner-only permissions, which
// both PostgreSQL and libpq-style clients insist on for keys.
func (b *CertBundle) WriteToDir(dir string) (*CertPaths, error) {
	paths := &CertPaths{
		CACert:     filepath.Join(dir, "ca.crt"),
		ServerCert: filepath.Join(dir, "server.crt"),
		ServerKey:  filepath.Join(dir, "server.key"),
		ClientCert: filepath.Join(dir, "client.crt"),
		ClientKey:  filepath.Join(dir, "client.key"),
	}

	for _, f := range []struct {
		path string
		data []byte
	}{
		{paths.CACert, b.CACert},
		{paths.ServerCert, b.ServerCert},
		{paths.ServerKey, b.ServerKey},
		{paths.ClientCert, b.ClientCert},
		{paths.ClientKey, b.ClientKey},
	} {
		if err := os.WriteFile(f.path, f.data, 0600); err != nil {
			return nil, fmt.Errorf("write %s: %w", filepath.Base(f.path), err)
		}
	}
	return paths, nil
}
