package signer

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/go-jose/go-jose/v4"
)

// ParseRSAPrivateKey returns the first RSA private key found in pemBytes.
func ParseRSAPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	var (
		block *pem.Block
		rest  = pemBytes
		key   any
	)
	for key == nil {
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch block.Type {
		case "RSA PRIVATE KEY":
			k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parse pkcs1: %w", err)
			}
			key = k
		case "PRIVATE KEY":
			kAny, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parse pkcs8: %w", err)
			}
			key = kAny
		}
	}
	if key == nil {
		return nil, fmt.Errorf("no supported private key found in pem")
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	if rsaKey.N.BitLen() < 2048 {
		return nil, fmt.Errorf("key size too small: %d bits (need >= 2048)", rsaKey.N.BitLen())
	}
	return rsaKey, nil
}

// New creates an RS256 JWT signer from PEM key material. The kid header is
// only set when kid is not empty.
func New(pemBytes []byte, kid string) (jose.Signer, error) {
	rsaKey, err := ParseRSAPrivateKey(pemBytes)
	if err != nil {
		return nil, err
	}

	opts := (&jose.SignerOptions{}).WithType("JWT")
	if kid != "" {
		opts = opts.WithHeader("kid", kid)
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: rsaKey}, opts)
	if err != nil {
		return nil, fmt.Errorf("new signer: %w", err)
	}

	return signer, nil
}
