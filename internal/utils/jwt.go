package utils

import (
	"errors" // Claim validation errors
	"time"   // Token lifetimes

	"github.com/golang-jwt/jwt/v5" // JWT library
)

// TokenIssuer is stamped on every token and required when parsing
const TokenIssuer = "vps-billing"

// DefaultTokenTTL is the lifetime of tokens issued without an explicit TTL
const DefaultTokenTTL = 24 * time.Hour

// ErrMissingSubject is returned for tokens without a user id
var ErrMissingSubject = errors.New("token has no user id")

// Claims carried by API bearer tokens
type Claims struct {
	UserID               uint   `json:"user_id"` // Billing account the token acts for
	Role                 string `json:"role"`    // Role at issue time, re-checked against the DB for admin routes
	jwt.RegisteredClaims        // exp, iat, iss
}

// GenerateJWT signs an HS256 token for userID valid for ttl
func GenerateJWT(userID uint, role, secret string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	issued := time.Now()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
		},
	}).SignedString([]byte(secret))
}

// ParseJWT verifies signature, algorithm, issuer and expiry and returns the claims
func ParseJWT(tokenStr, secret string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), // Reject alg switching
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if claims.UserID == 0 {
		return nil, ErrMissingSubject // Zero is never a valid account
	}
	return claims, nil
}
