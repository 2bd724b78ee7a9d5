package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nimburion/adapter-registry/pkg/observability/logger"
)

// JWTValidator validates JWT tokens and extracts claims.
type JWTValidator interface {
	Validate(ctx context.Context, token string) (*Claims, error)
}

// Claims represents the extracted claims from a validated JWT token.
type Claims struct {
	Subject   string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
}

// HMACValidator validates HS256 tokens signed with a shared secret.
// Issuer and audience are checked only when configured.
type HMACValidator struct {
	secret   []byte
	issuer   string
	audience string
	logger   logger.Logger
}

// NewHMACValidator creates a validator for HS256 tokens.
func NewHMACValidator(secret []byte, issuer, audience string, log logger.Logger) (*HMACValidator, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret is required")
	}
	return &HMACValidator{secret: secret, issuer: issuer, audience: audience, logger: log}, nil
}

// Validate checks signature, expiration, issuer and audience and returns the claims.
func (v *HMACValidator) Validate(_ context.Context, tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	registered := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, registered, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if registered.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	claims := &Claims{
		Subject:  registered.Subject,
		Issuer:   registered.Issuer,
		Audience: slices.Clone([]string(registered.Audience)),
	}
	if registered.ExpiresAt != nil {
		claims.ExpiresAt = registered.ExpiresAt.Time
	}

	v.logger.Debug("token validated successfully", "subject", claims.Subject, "issuer", claims.Issuer)
	return claims, nil
}
