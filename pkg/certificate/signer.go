package certificate

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNotFound is returned when no signed certificate has been published
	// for the given canonical record.
	ErrNotFound = errors.New("signed certificate not found")

	// ErrMismatch is returned when a token's claims do not match the
	// expected canonical record.
	ErrMismatch = errors.New("certificate does not match canonical record")
)

// Claims is the JWT claim set carrying a certificate.
type Claims struct {
	jwt.RegisteredClaims
	Certificate Certificate `json:"certificate"`
}

// Signer signs canonical certificates into EdDSA JWTs and verifies them.
type Signer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
}

// NewSigner builds a Signer from a hex-encoded Ed25519 seed.
func NewSigner(seedHex string) (*Signer, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("certificate signing key must be hex encoded: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("certificate signing key seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	privateKey := ed25519.NewKeyFromSeed(seed)
	return &Signer{
		privateKey: privateKey,
		publicKey:  privateKey.Public().(ed25519.PublicKey),
	}, nil
}

// Sign produces the signed form of the canonical record. The JWT expiration
// mirrors the certificate's own expiration.
func (s *Signer) Sign(cert Certificate) (Signed, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cert.Hub,
			Subject:   cert.Owner,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.UnixMilli(cert.Expiration)),
		},
		Certificate: cert,
	}

	token := jwt.NewWithClaims(&jwt.SigningMethodEd25519{}, claims)
	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return Signed{}, fmt.Errorf("failed to sign certificate: %w", err)
	}
	return Signed{Certificate: cert, Token: signed}, nil
}

// Verify checks the token signature and that its embedded certificate equals
// the one carried alongside it.
func (s *Signer) Verify(signed Signed) error {
	token, err := jwt.ParseWithClaims(
		signed.Token,
		&Claims{},
		func(_ *jwt.Token) (any, error) { return s.publicKey, nil },
		jwt.WithValidMethods([]string{"EdDSA"}),
	)
	if err != nil {
		return fmt.Errorf("failed to parse certificate token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return errors.New("invalid certificate token")
	}
	if claims.Certificate != signed.Certificate {
		return ErrMismatch
	}
	return nil
}

// Authority signs certificates and keeps the published commitments so
// callers can fetch the signed form out-of-band after the orchestrator
// generated it.
type Authority struct {
	signer *Signer

	mu        sync.Mutex
	published map[string]Signed
}

// NewAuthority builds an Authority around the given signer.
func NewAuthority(signer *Signer) *Authority {
	return &Authority{
		signer:    signer,
		published: make(map[string]Signed),
	}
}

// Publish signs the canonical record and records the commitment.
func (a *Authority) Publish(cert Certificate) error {
	signed, err := a.signer.Sign(cert)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.published[cert.Fingerprint()] = signed
	return nil
}

// Obtain returns the published signed form for the canonical record.
func (a *Authority) Obtain(cert Certificate) (Signed, error) {
	a.mu.Lock()
	signed, ok := a.published[cert.Fingerprint()]
	a.mu.Unlock()
	if !ok {
		return Signed{}, ErrNotFound
	}
	if err := a.signer.Verify(signed); err != nil {
		return Signed{}, err
	}
	return signed, nil
}

// Verify checks a signed certificate against the authority's public key.
func (a *Authority) Verify(signed Signed) error {
	return a.signer.Verify(signed)
}
