// Package auth verifies the bearer tokens presented on websocket
// connection requests. The hub never issues tokens; the external API
// that owns user accounts signs them with a shared HMAC secret.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/taskpulse/taskpulse/internal/config"
	"github.com/taskpulse/taskpulse/internal/platform/logger"
)

// TokenVerifier validates a bearer token and returns the user identity
// it asserts.
type TokenVerifier interface {
	// Verify parses and validates the token, returning the user ID from
	// its claims. Returns ErrExpiredToken or ErrInvalidToken on failure.
	Verify(ctx context.Context, tokenString string) (string, error)
}

// hmacVerifier validates tokens signed with HMAC-SHA256.
type hmacVerifier struct {
	signingKey []byte
	timeFunc   func() time.Time // Injectable for testing
	clockSkew  time.Duration
}

// tokenClaims is the claim set accepted on incoming tokens. The issuer
// puts the user identity in user_id; sub is accepted as a fallback.
type tokenClaims struct {
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// Ensure hmacVerifier implements TokenVerifier
var _ TokenVerifier = (*hmacVerifier)(nil)

// NewTokenVerifier creates a TokenVerifier using HMAC-SHA256 with the
// configured shared secret.
func NewTokenVerifier(cfg config.AuthConfig) (TokenVerifier, error) {
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 characters")
	}

	return &hmacVerifier{
		signingKey: []byte(cfg.JWTSecret),
		timeFunc:   time.Now,
		clockSkew:  2 * time.Minute, // Tolerate minor clock drift between issuer and verifier
	}, nil
}

// Verify parses and validates the token string, returning the user ID
// asserted by its claims.
func (v *hmacVerifier) Verify(ctx context.Context, tokenString string) (string, error) {
	log := logger.FromContext(ctx)

	if tokenString == "" {
		return "", ErrMissingToken
	}

	now := v.timeFunc()
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(v.clockSkew),
		jwt.WithTimeFunc(func() time.Time {
			return now
		}),
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		&tokenClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return v.signingKey, nil
		},
		parserOpts...)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			log.Debug("token validation failed: token expired", "error", err)
			return "", ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenMalformed):
			log.Debug("token validation failed: malformed token", "error", err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			log.Debug("token validation failed: invalid signature", "error", err)
		default:
			log.Debug("token validation failed",
				"error", err,
				"error_type", fmt.Sprintf("%T", err))
		}
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid {
		log.Debug("token validation failed: invalid claims")
		return "", ErrInvalidToken
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		log.Debug("token validation failed: no user identity in claims")
		return "", ErrInvalidToken
	}

	return userID, nil
}
