package service

import (
	"errors"
	"fmt"
	"time"

	"idportal/internal/apperr"
	"idportal/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carried by access tokens.
type Claims struct {
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenProvider signs and verifies HS256 access tokens.
type TokenProvider struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenProvider(secret string, ttl time.Duration) *TokenProvider {
	return &TokenProvider{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (p *TokenProvider) TTL() time.Duration { return p.ttl }

func (p *TokenProvider) Generate(id model.Identity) (string, time.Time, error) {
	now := p.now()
	expiresAt := now.Add(p.ttl)
	claims := Claims{
		Email: id.Email,
		Role:  id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse verifies a token and returns the identity it carries. Only the three
// bearer roles are accepted.
func (p *TokenProvider) Parse(tokenString string) (model.Identity, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return p.secret, nil
	}, jwt.WithTimeFunc(p.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.Identity{}, apperr.Unauthenticated("session expired, sign in again")
		}
		return model.Identity{}, apperr.Unauthenticated("invalid token")
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return model.Identity{}, apperr.Unauthenticated("invalid token subject")
	}
	switch claims.Role {
	case model.RoleAdmin, model.RoleHR, model.RoleVendor:
	default:
		return model.Identity{}, apperr.Unauthenticated("invalid token role")
	}
	return model.Identity{ID: id, Email: claims.Email, Role: claims.Role}, nil
}
