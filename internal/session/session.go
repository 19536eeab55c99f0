// Package session consumes the identity of the current user: it validates
// the bearer token and derives the role from the fixed username mapping.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nikydiazc/tareas-service/internal/task"
)

var ErrUnauthorized = errors.New("unauthorized")

const tokenBlacklistPrefix = "session:token:blacklist:"

type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// RoleFor maps a username to its role. Fixed by the deployment, not a
// general RBAC system: the two well-known accounts get their dedicated
// roles, everyone else fulfills tasks.
func RoleFor(username string) task.Role {
	switch username {
	case "crear_tarea":
		return task.RoleCreator
	case "administrador":
		return task.RoleAdmin
	default:
		return task.RoleFulfiller
	}
}

func BuildClaims(username string, ttl time.Duration) Claims {
	now := time.Now()
	return Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
}

func SignToken(claims Claims, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func ParseToken(tokenString string, secret []byte) (Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil {
		return Claims{}, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Claims{}, jwt.ErrSignatureInvalid
	}
	if claims.Username == "" && claims.Subject != "" {
		claims.Username = claims.Subject
	}
	return *claims, nil
}

// Provider authorizes bearer tokens. When a redis client is configured,
// revoked token ids are rejected through the blacklist.
type Provider struct {
	secret []byte
	redis  *redis.Client
}

func NewProvider(secret []byte, redisClient *redis.Client) *Provider {
	return &Provider{secret: secret, redis: redisClient}
}

func (p *Provider) Authorize(ctx context.Context, token string) (string, task.Role, error) {
	claims, err := ParseToken(token, p.secret)
	if err != nil {
		return "", "", ErrUnauthorized
	}
	if claims.Username == "" || claims.ID == "" {
		return "", "", ErrUnauthorized
	}

	if p.redis != nil {
		exists, redisErr := p.redis.Exists(ctx, tokenBlacklistPrefix+claims.ID).Result()
		if redisErr != nil {
			return "", "", redisErr
		}
		if exists > 0 {
			return "", "", ErrUnauthorized
		}
	}

	return claims.Username, RoleFor(claims.Username), nil
}

// Revoke blacklists a token id until the token would have expired anyway.
func (p *Provider) Revoke(ctx context.Context, claims Claims) error {
	if p.redis == nil {
		return nil
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	return p.redis.Set(ctx, tokenBlacklistPrefix+claims.ID, "1", ttl).Err()
}
