// Package auth issues and validates the moderator access tokens used by
// the admin surface. Tokens are HS256 JWTs whose JTIs live in Redis so a
// compromised token can be revoked before it expires.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	issuer         = "document-archive-platform"
	adminTokenTTL  = 8 * time.Hour
	redisKeyPrefix = "admin_token:"
)

type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService signs and checks admin tokens.
type TokenService struct {
	secret []byte
	rdb    *redis.Client
}

// NewTokenService requires a secret of at least 32 bytes.
func NewTokenService(secret string, rdb *redis.Client) (*TokenService, error) {
	if len(secret) < 32 {
		return nil, errors.New("admin jwt secret must be at least 32 characters")
	}
	return &TokenService{secret: []byte(secret), rdb: rdb}, nil
}

// IssueAdminToken mints a moderator token and registers its JTI for
// revocation checks.
func (t *TokenService) IssueAdminToken(ctx context.Context, email string) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(adminTokenTTL)
	jti := uuid.NewString()

	claims := Claims{
		Email: email,
		Role:  "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := t.rdb.Set(ctx, redisKeyPrefix+jti, email, adminTokenTTL).Err(); err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ValidateAdminToken parses and verifies a token, then checks its JTI is
// still registered.
func (t *TokenService) ValidateAdminToken(ctx context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Prevent algorithm confusion attacks
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Role != "admin" {
		return nil, errors.New("insufficient role")
	}

	exists, err := t.rdb.Exists(ctx, redisKeyPrefix+claims.ID).Result()
	if err != nil || exists != 1 {
		return nil, errors.New("token revoked or expired")
	}
	return claims, nil
}

// RevokeToken drops a JTI so the token stops validating immediately.
func (t *TokenService) RevokeToken(ctx context.Context, jti string) error {
	return t.rdb.Del(ctx, redisKeyPrefix+jti).Err()
}
