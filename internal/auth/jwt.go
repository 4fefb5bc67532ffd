// Package auth turns bearer tokens into caller identities.
package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dharsanguruparan/SignDrop/internal/apperr"
	"github.com/dharsanguruparan/SignDrop/internal/model"
)

const issuer = "signdrop"

// Claims carries the standard claims plus the caller's role. The subject is
// the user id.
type Claims struct {
	jwt.RegisteredClaims
	Role model.Role `json:"role"`
}

// Issuer signs and parses HS256 bearer tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an Issuer. Tokens live for ttl.
func NewIssuer(secret []byte, ttl time.Duration) *Issuer {
	return &Issuer{secret: secret, ttl: ttl, now: time.Now}
}

// Issue returns a signed token for identity.
func (i *Issuer) Issue(identity model.Identity) (string, error) {
	if identity.ID == "" || !identity.Role.Valid() {
		return "", apperr.Validation("token needs a subject and a valid role")
	}
	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Role: identity.Role,
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse validates token and returns the identity it carries. Every failure
// is an apperr.ErrUnauthenticated.
func (i *Issuer) Parse(token string) (model.Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return model.Identity{}, apperr.Unauthenticated("invalid token: %v", err)
	}
	if !parsed.Valid {
		return model.Identity{}, apperr.Unauthenticated("invalid token")
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return model.Identity{}, apperr.Unauthenticated("token lacks subject or role")
	}
	return model.Identity{ID: claims.Subject, Role: claims.Role}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
