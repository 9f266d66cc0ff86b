package auth

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/identity/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock(at *time.Time) func() time.Time {
	return func() time.Time { return *at }
}

func TestSignAndVerify_Success(t *testing.T) {
	t.Parallel()

	now := t0
	s := NewSigner([]byte("super-secret"), "identity", 15*time.Minute, fixedClock(&now))

	tok, exp, err := s.Sign("user-123")
	require.NoError(t, err)
	assert.Equal(t, t0.Add(15*time.Minute), exp)

	gotUserID, err := s.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-123", gotUserID)
}

func TestSign_ClaimsShape(t *testing.T) {
	t.Parallel()

	now := t0
	s := NewSigner([]byte("k"), "identity", time.Minute, fixedClock(&now))
	a, _, err := s.Sign("u1")
	require.NoError(t, err)
	b, _, err := s.Sign("u1")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "jti must make every token unique")

	claims := &Claims{}
	_, _, err = jwt.NewParser().ParseUnverified(a, claims)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "identity", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, t0.Unix(), claims.IssuedAt.Unix())
}

func TestVerify_ExpiryBoundary(t *testing.T) {
	t.Parallel()

	now := t0
	s := NewSigner([]byte("secret"), "identity", time.Minute, fixedClock(&now))
	tok, exp, err := s.Sign("u1")
	require.NoError(t, err)

	now = exp.Add(-time.Nanosecond)
	_, err = s.Verify(tok)
	assert.NoError(t, err, "just before exp")

	now = exp
	_, err = s.Verify(tok)
	assert.ErrorIs(t, err, common.ErrInvalidToken, "exactly at exp")

	now = exp.Add(time.Second)
	_, err = s.Verify(tok)
	assert.ErrorIs(t, err, common.ErrInvalidToken, "after exp")
}

func TestVerify_Rejects(t *testing.T) {
	t.Parallel()

	now := t0
	secret := []byte("right-secret")
	s := NewSigner(secret, "identity", time.Hour, fixedClock(&now))

	good, _, err := s.Sign("u2")
	require.NoError(t, err)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u2",
			Issuer:    "identity",
			ExpiresAt: jwt.NewNumericDate(t0.Add(time.Hour)),
		},
		UserID: "u2",
	}

	noneTok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	hs512Tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(secret)
	require.NoError(t, err)

	otherIssuer := claims
	otherIssuer.Issuer = "someone-else"
	otherIssuerTok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, otherIssuer).SignedString(secret)
	require.NoError(t, err)

	noExp := claims
	noExp.ExpiresAt = nil
	noExpTok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, noExp).SignedString(secret)
	require.NoError(t, err)

	mismatch := claims
	mismatch.UserID = "someone"
	mismatchTok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mismatch).SignedString(secret)
	require.NoError(t, err)

	wrongSecret := NewSigner([]byte("wrong-secret"), "identity", time.Hour, fixedClock(&now))

	tests := []struct {
		name  string
		token string
		s     *Signer
	}{
		{name: "malformed", token: "not.a.jwt", s: s},
		{name: "empty", token: "", s: s},
		{name: "wrong secret", token: good, s: wrongSecret},
		{name: "alg none", token: noneTok, s: s},
		{name: "alg HS512", token: hs512Tok, s: s},
		{name: "wrong issuer", token: otherIssuerTok, s: s},
		{name: "missing exp", token: noExpTok, s: s},
		{name: "subject and user_id differ", token: mismatchTok, s: s},
		{name: "tampered payload", token: good[:len(good)-2] + "xx", s: s},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.s.Verify(tt.token)
			assert.ErrorIs(t, err, common.ErrInvalidToken)
		})
	}
}
