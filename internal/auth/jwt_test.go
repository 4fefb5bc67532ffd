package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/SignDrop/internal/apperr"
	"github.com/dharsanguruparan/SignDrop/internal/model"
)

var secret = []byte("jwt-test-secret-0123456789")

func TestIssueParseRoundTrip(t *testing.T) {
	iss := NewIssuer(secret, time.Hour)
	token, err := iss.Issue(model.Identity{ID: "u1", Role: model.RoleManager})
	require.NoError(t, err)

	id, err := iss.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, model.Identity{ID: "u1", Role: model.RoleManager}, id)
}

func TestIssueRejectsInvalidIdentity(t *testing.T) {
	iss := NewIssuer(secret, time.Hour)
	_, err := iss.Issue(model.Identity{ID: "", Role: model.RoleUser})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = iss.Issue(model.Identity{ID: "u1", Role: "root"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestParseFailures(t *testing.T) {
	iss := NewIssuer(secret, time.Hour)
	token, err := iss.Issue(model.Identity{ID: "u1", Role: model.RoleUser})
	require.NoError(t, err)

	other := NewIssuer([]byte("another-secret-0123456789"), time.Hour)
	_, err = other.Parse(token)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated, "wrong secret")

	_, err = iss.Parse("not.a.token")
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	expired := NewIssuer(secret, time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, err := expired.Issue(model.Identity{ID: "u1", Role: model.RoleUser})
	require.NoError(t, err)
	_, err = iss.Parse(old)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated, "expired")
}

func TestParseRejectsOtherAlgorithms(t *testing.T) {
	iss := NewIssuer(secret, time.Hour)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer, Subject: "u1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Role:             model.RoleAdmin,
	}
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(secret)
	require.NoError(t, err)
	_, err = iss.Parse(hs512)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = iss.Parse(none)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

func TestParseRejectsUnknownRole(t *testing.T) {
	iss := NewIssuer(secret, time.Hour)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer, Subject: "u1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Role:             "superuser",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	_, err = iss.Parse(token)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

func TestBearerToken(t *testing.T) {
	tok, ok := BearerToken("Bearer abc.def")
	assert.True(t, ok)
	assert.Equal(t, "abc.def", tok)

	tok, ok = BearerToken("bearer   xyz ")
	assert.True(t, ok)
	assert.Equal(t, "xyz", tok)

	for _, h := range []string{"", "Bearer", "Bearer ", "Basic abc", "Bearerabc"} {
		_, ok := BearerToken(h)
		assert.False(t, ok, h)
	}
}
