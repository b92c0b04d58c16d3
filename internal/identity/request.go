package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"duit/internal/core"

	"github.com/golang-jwt/jwt/v5"
)

// DeviceTokenHeader carries the anonymous device token on HTTP requests.
const DeviceTokenHeader = "X-Device-Token"

var (
	ErrNoIdentity   = errors.New("no identity on request")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// RequestResolver maps an incoming HTTP request to an owner. A valid bearer
// token from the auth provider wins over the device token header; the core
// only ever consumes the resulting account id, never credential material.
type RequestResolver struct {
	jwtSecret []byte
}

func NewRequestResolver(jwtSecret []byte) *RequestResolver {
	return &RequestResolver{jwtSecret: jwtSecret}
}

// FromRequest resolves the request's owner. Returns ErrNoIdentity when the
// request carries neither a bearer token nor a device token, and
// ErrInvalidToken when a bearer token is present but does not verify.
func (rr *RequestResolver) FromRequest(r *http.Request) (core.Owner, error) {
	if raw := bearerToken(r); raw != "" {
		if len(rr.jwtSecret) == 0 {
			// Without a configured secret every HMAC signature would
			// verify against the empty key, so bearer auth is disabled.
			return core.Owner{}, fmt.Errorf("%w: bearer auth not configured", ErrInvalidToken)
		}
		accountID, err := rr.accountID(raw)
		if err != nil {
			return core.Owner{}, err
		}
		return core.AccountOwner(accountID), nil
	}

	if token := strings.TrimSpace(r.Header.Get(DeviceTokenHeader)); token != "" {
		return core.AnonymousOwner(token), nil
	}

	return core.Owner{}, ErrNoIdentity
}

// DeviceToken returns the device token header even when the request also
// authenticates as an account. Migration needs both identifiers at once.
func (rr *RequestResolver) DeviceToken(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(DeviceTokenHeader))
}

func (rr *RequestResolver) accountID(raw string) (string, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return rr.jwtSecret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return ""
}
