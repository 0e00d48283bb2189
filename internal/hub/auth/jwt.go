package auth

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/contracthub-dev/contracthub/internal/hub/types"
)

// Claims is the claim set of a hub API token. The subject is the caller
// principal.
type Claims struct {
	jwt.RegisteredClaims
}

type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// JWTManager signs and validates hub API tokens.
type JWTManager struct {
	privateKey    ed25519.PrivateKey
	publicKey     ed25519.PublicKey
	issuer        string
	tokenDuration time.Duration
}

// NewJWTManager builds a manager from a hex-encoded Ed25519 seed.
func NewJWTManager(seedHex, issuer string) (*JWTManager, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("API signing key must be hex encoded: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("API signing key seed must be %d bytes for Ed25519, got %d", ed25519.SeedSize, len(seed))
	}

	privateKey := ed25519.NewKeyFromSeed(seed)
	return &JWTManager{
		privateKey:    privateKey,
		publicKey:     privateKey.Public().(ed25519.PublicKey),
		issuer:        issuer,
		tokenDuration: 30 * time.Minute,
	}, nil
}

// GenerateTokenResponse issues a token for the given principal. Local mode
// uses it to mint caller credentials without an external identity provider.
func (j *JWTManager) GenerateTokenResponse(_ context.Context, principal types.Principal) (*TokenResponse, error) {
	if principal.Anonymous() {
		return nil, fmt.Errorf("cannot issue a token for the anonymous principal")
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   string(principal),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.tokenDuration)),
		},
	}

	token := jwt.NewWithClaims(&jwt.SigningMethodEd25519{}, claims)
	tokenString, err := token.SignedString(j.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &TokenResponse{
		Token:     tokenString,
		ExpiresAt: claims.ExpiresAt.Unix(),
	}, nil
}

type jwtSession struct {
	claims *Claims
}

func (s *jwtSession) Caller() types.Principal {
	return types.Principal(s.claims.Subject)
}

func (j *JWTManager) Authenticate(ctx context.Context, reqHeaders func(name string) string, _ url.Values) (Session, error) {
	const bearerPrefix = "Bearer "
	authHeader := reqHeaders("Authorization")
	if len(authHeader) < len(bearerPrefix) || !strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return nil, nil
	}
	token := authHeader[len(bearerPrefix):]

	claims, err := j.ValidateToken(ctx, token)
	if err != nil {
		return nil, huma.Error401Unauthorized("Invalid or expired hub API token", err)
	}
	return &jwtSession{claims: claims}, nil
}

// ValidateToken validates a hub API token and returns its claims.
func (j *JWTManager) ValidateToken(_ context.Context, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(_ *jwt.Token) (any, error) { return j.publicKey, nil },
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return claims, nil
}
