package security

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"time"
)

// Claims of tokens issued by NewTestTokenProvider.
const (
	TestIssuer   = "bizbank-test"
	TestAudience = "bizbank-api-test"
)

// NewTestTokenProvider returns a TokenProvider over a fresh P-256 key. Tests only.
func NewTestTokenProvider() (*TokenProvider, error) {
	signer, err := GenerateSigner()
	if err != nil {
		return nil, err
	}
	return NewTokenProvider(signer, signer.Public(), TestIssuer, TestAudience, 15*time.Minute), nil
}

// EncodePEM returns the key pair of signer as PKCS#8 and PKIX PEM, the forms JWT_PRIVATE_KEY and
// JWT_PUBLIC_KEY accept.
func EncodePEM(signer crypto.Signer) (privatePEM, publicPEM string, err error) {
	privDER, err := x509.MarshalPKCS8PrivateKey(signer)
	if err != nil {
		return "", "", err
	}
	pubDER, err := x509.MarshalPKIXPublicKey(signer.Public())
	if err != nil {
		return "", "", err
	}
	privatePEM = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}))
	publicPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	return privatePEM, publicPEM, nil
}
