// Package admin provides operator authentication for the management surface.
// There is a single env-configured operator account; staff never log in, they
// punch with PINs.
package admin

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims represents the JWT claims structure
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenService handles JWT token generation and validation
type TokenService struct {
	secret      string
	tokenExpiry time.Duration
	issuer      string
}

// TokenServiceConfig holds configuration for TokenService
type TokenServiceConfig struct {
	Secret      string
	TokenExpiry time.Duration
	Issuer      string
}

// NewTokenService creates a new TokenService instance
func NewTokenService(cfg TokenServiceConfig) *TokenService {
	expiry := cfg.TokenExpiry
	if expiry <= 0 {
		expiry = 8 * time.Hour
	}
	return &TokenService{
		secret:      cfg.Secret,
		tokenExpiry: expiry,
		issuer:      cfg.Issuer,
	}
}

// GenerateToken generates an access token for the operator
func (s *TokenService) GenerateToken(username string) (string, error) {
	now := time.Now()

	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenExpiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.secret))
}

// ValidateToken validates an access token and returns the claims
func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

// GetTokenExpiry returns the access token expiry duration
func (s *TokenService) GetTokenExpiry() time.Duration {
	return s.tokenExpiry
}
