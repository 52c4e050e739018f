package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt"

	"github.com/RemyAde/kopa-backend/internal/eligibility"
)

const tokenCookieKey = "token"

const (
	userIdClaim    = "sub"
	usernameClaim  = "username"
	stateCodeClaim = "state_code"
	verifiedClaim  = "verified"
	bannedClaim    = "banned"
)

// Identity is the verified caller extracted from a session token. Tokens are
// issued by the identity service; this server only verifies them.
type Identity struct {
	UserId    string
	Username  string
	StateCode string
	Verified  bool
	Banned    bool
}

// Signals maps the identity onto the inputs of an eligibility decision.
func (i Identity) Signals() eligibility.Signals {
	return eligibility.Signals{
		Banned:              i.Banned,
		Verified:            i.Verified,
		RegisteredStateCode: statePrefix(i.StateCode),
	}
}

type contextKey string

const identityKey contextKey = "identity"

func WithIdentity(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, identityKey, ident)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	ident, ok := ctx.Value(identityKey).(Identity)
	return ident, ok
}

// sessionToken returns the raw token from the request cookie, falling back to
// the token query parameter for websocket clients that cannot send cookies.
func sessionToken(r *http.Request) (string, error) {
	if c, err := r.Cookie(tokenCookieKey); err == nil && c.Value != "" {
		return c.Value, nil
	}

	if token := r.URL.Query().Get(tokenCookieKey); token != "" {
		return token, nil
	}

	return "", fmt.Errorf("no session token")
}

func (s *KopaApp) extractIdentityFromToken(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return Identity{}, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, fmt.Errorf("invalid token claims")
	}

	userId, ok := claims[userIdClaim].(string)
	if !ok || userId == "" {
		return Identity{}, fmt.Errorf("invalid user id claim")
	}

	ident := Identity{UserId: userId}
	if username, ok := claims[usernameClaim].(string); ok {
		ident.Username = username
	}
	if stateCode, ok := claims[stateCodeClaim].(string); ok {
		ident.StateCode = stateCode
	}
	if verified, ok := claims[verifiedClaim].(bool); ok {
		ident.Verified = verified
	}
	if banned, ok := claims[bannedClaim].(bool); ok {
		ident.Banned = banned
	}

	return ident, nil
}
