package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidStorefrontToken = errors.New("invalid storefront token")

// StorefrontClaims identify the logged-in shopper. Subject is the
// storefront user id.
type StorefrontClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type StorefrontTokenVerifier struct {
	secret []byte
	issuer string
}

func NewStorefrontTokenVerifier(secret, issuer string) *StorefrontTokenVerifier {
	return &StorefrontTokenVerifier{secret: []byte(secret), issuer: issuer}
}

func (v *StorefrontTokenVerifier) Sign(userID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := StorefrontClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func (v *StorefrontTokenVerifier) Parse(raw string) (*StorefrontClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	claims := &StorefrontClaims{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStorefrontToken, err)
	}
	if !token.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidStorefrontToken
	}
	return claims, nil
}
