// Package auth implements the request authorizer guarding the registry API.
package auth

import (
	"context"
	"regexp"
	"strings"

	"github.com/nimburion/adapter-registry/pkg/observability/logger"
)

// Effect is the outcome of an authorization decision.
type Effect string

// Authorization effects.
const (
	// Allow grants access to the principal.
	Allow Effect = "Allow"
	// Deny rejects a credential that is present but not acceptable (403).
	Deny Effect = "Deny"
	// Unauthenticated reports a missing credential (401).
	Unauthenticated Effect = "Unauthenticated"
)

// Decision is the result of authorizing one request.
type Decision struct {
	Effect      Effect
	PrincipalID string
}

var uipToken = regexp.MustCompile(`^UIP ([a-zA-Z0-9-_]+)$`)

const bearerPrefix = "Bearer "

// Authorizer decides access from the Authorization header value. "UIP <id>"
// tokens name the principal directly; "Bearer <jwt>" tokens are accepted only
// when a JWTValidator is configured and yield the token subject.
type Authorizer struct {
	jwt    JWTValidator
	logger logger.Logger
}

// NewAuthorizer creates an authorizer. validator may be nil to disable bearer tokens.
func NewAuthorizer(validator JWTValidator, log logger.Logger) *Authorizer {
	return &Authorizer{jwt: validator, logger: log}
}

// Authorize evaluates the raw Authorization header value.
func (a *Authorizer) Authorize(ctx context.Context, token string) Decision {
	if token == "" {
		return Decision{Effect: Unauthenticated}
	}

	if match := uipToken.FindStringSubmatch(token); match != nil {
		return Decision{Effect: Allow, PrincipalID: match[1]}
	}

	if a.jwt != nil && strings.HasPrefix(token, bearerPrefix) {
		claims, err := a.jwt.Validate(ctx, strings.TrimPrefix(token, bearerPrefix))
		if err != nil {
			a.logger.WithContext(ctx).Warn("bearer token rejected", "error", err)
			return Decision{Effect: Deny}
		}
		return Decision{Effect: Allow, PrincipalID: claims.Subject}
	}

	return Decision{Effect: Deny}
}

type principalKey struct{}

// ContextWithPrincipal stores the authorized principal ID in ctx.
func ContextWithPrincipal(ctx context.Context, principalID string) context.Context {
	return context.WithValue(ctx, principalKey{}, principalID)
}

// PrincipalFromContext returns the principal ID stored by ContextWithPrincipal.
func PrincipalFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(principalKey{}).(string)
	return id, ok && id != ""
}
