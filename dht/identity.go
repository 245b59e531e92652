// Copyright (c) 2025 Shell Reserve developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package dht

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"time"
)

// Identity is a bootstrap node's durable overlay identity: an X.509
// certificate and its private key, used the way a DHT transport
// authenticates a long-lived node across restarts.
type Identity struct {
	Cert       *x509.Certificate
	CertDER    []byte
	PrivateKey *ecdsa.PrivateKey
}

// LoadOrCreateIdentity reads `<path>.crt`/`<path>.pem` if present, or
// generates and persists a fresh identity otherwise. Bootstrap nodes call
// this at startup; user nodes use RandomNodeID-backed ephemeral identities
// unless the host application supplies a blob explicitly (§4.3).
func LoadOrCreateIdentity(path string) (*Identity, error) {
	certPath := path + ".crt"
	keyPath := path + ".pem"

	certPEM, certErr := os.ReadFile(certPath)
	keyPEM, keyErr := os.ReadFile(keyPath)
	if certErr == nil && keyErr == nil {
		return parseIdentity(certPEM, keyPEM)
	}

	id, err := generateIdentity()
	if err != nil {
		return nil, err
	}
	if err := id.persist(certPath, keyPath); err != nil {
		return nil, err
	}
	return id, nil
}

func generateIdentity() (*Identity, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("dht: generate identity key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("dht: generate serial: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "qio-bootstrap-node"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().AddDate(100, 0, 0), // effectively permanent
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		return nil, fmt.Errorf("dht: create self-signed certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("dht: parse generated certificate: %w", err)
	}
	return &Identity{Cert: cert, CertDER: der, PrivateKey: priv}, nil
}

func parseIdentity(certPEM, keyPEM []byte) (*Identity, error) {
	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil {
		return nil, fmt.Errorf("dht: no PEM block in certificate file")
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("dht: parse certificate: %w", err)
	}

	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, fmt.Errorf("dht: no PEM block in key file")
	}
	priv, err := x509.ParseECPrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("dht: parse private key: %w", err)
	}
	return &Identity{Cert: cert, CertDER: certBlock.Bytes, PrivateKey: priv}, nil
}

func (id *Identity) persist(certPath, keyPath string) error {
	certOut := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: id.CertDER})
	if err := os.WriteFile(certPath, certOut, 0o600); err != nil {
		return fmt.Errorf("dht: write certificate: %w", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(id.PrivateKey)
	if err != nil {
		return fmt.Errorf("dht: marshal private key: %w", err)
	}
	keyOut := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(keyPath, keyOut, 0o600); err != nil {
		return fmt.Errorf("dht: write private key: %w", err)
	}
	return nil
}
