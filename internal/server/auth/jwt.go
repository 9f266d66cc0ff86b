package auth

import (
	"time"

	"github.com/dmitrijs2005/identity/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the access token claims. UserID duplicates the subject for
// consumers that read the custom claim.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// Signer issues and verifies HS256 access tokens. The accepted algorithm
// is pinned: tokens signed any other way, including "none", are rejected.
type Signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewSigner(secret []byte, issuer string, ttl time.Duration, now func() time.Time) *Signer {
	if now == nil {
		now = time.Now
	}
	return &Signer{secret: secret, issuer: issuer, ttl: ttl, now: now}
}

// Sign returns a token for userID and its expiry instant.
func (s *Signer) Sign(userID string) (string, time.Time, error) {
	issued := s.now()
	exp := issued.Add(s.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UserID: userID,
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, exp.Truncate(jwt.TimePrecision), nil
}

// Verify returns the user id carried by a valid token. Every failure,
// including an expiry equal to the current instant, is common.ErrInvalidToken.
func (s *Signer) Verify(tokenString string) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return "", common.ErrInvalidToken
	}

	userID := claims.Subject
	if userID == "" {
		userID = claims.UserID
	}
	if userID == "" || (claims.UserID != "" && claims.UserID != userID) {
		return "", common.ErrInvalidToken
	}

	return userID, nil
}
