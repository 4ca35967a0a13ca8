// Package auth issues and validates the bearer tokens that guard the API.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/invoiceflow/backend/internal/infrastructure/config"
)

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrInvalidIssuer    = errors.New("invalid token issuer")
	ErrMissingSubject   = errors.New("missing subject in claims")
	ErrMissingSecret    = errors.New("auth secret is not configured")
)

// DefaultTokenTTL is the lifetime of tokens minted without an explicit TTL
const DefaultTokenTTL = 24 * time.Hour

// Claims are the claims carried by API tokens. Subject names the caller,
// usually a service or operator.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTService signs and validates HS256 tokens for a single issuer
type JWTService struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewJWTService creates a token service from the auth configuration
func NewJWTService(cfg config.AuthConfig) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	return &JWTService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		now:    time.Now,
	}, nil
}

// Issuer returns the issuer stamped on and required from tokens
func (s *JWTService) Issuer() string {
	return s.issuer
}

// GenerateToken mints a token for subject valid for ttl
func (s *JWTService) GenerateToken(subject string, ttl time.Duration) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, ErrMissingSubject
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := s.now()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken parses tokenString and checks signature, algorithm, time
// window and issuer
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotYetValid
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, ErrInvalidIssuer
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}
