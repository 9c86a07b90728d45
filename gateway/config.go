package gateway

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
)

// Config carries the merchant identity and key material for one gateway
// integration. It is constructed once at startup and passed by reference
// into the client and the reconciliation engine; there is no process-wide
// merchant state.
type Config struct {
	MerchantID       string
	BaseURL          string
	ReturnURL        string
	Language         string
	PrivateKey       *rsa.PrivateKey
	GatewayPublicKey *rsa.PublicKey

	// HTTPClient overrides the default 10s-timeout client when set.
	HTTPClient *http.Client
}

func (c Config) validate() error {
	if c.MerchantID == "" {
		return errors.New("gateway config: merchant id is required")
	}
	if c.BaseURL == "" {
		return errors.New("gateway config: base url is required")
	}
	if c.PrivateKey == nil {
		return errors.New("gateway config: merchant private key is required")
	}
	if c.GatewayPublicKey == nil {
		return errors.New("gateway config: gateway public key is required")
	}
	return nil
}

// LoadPrivateKey reads an RSA private key from a PEM file (PKCS#1 or
// PKCS#8).
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key %s: %w", path, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key %s is not RSA", path)
	}
	return key, nil
}

// LoadPublicKey reads an RSA public key from a PEM file (PKIX or PKCS#1).
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key %s: %w", path, err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key %s is not RSA", path)
	}
	return key, nil
}

func readPEM(path string) (*pem.Block, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", path)
	}
	return block, nil
}
