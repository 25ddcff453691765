package auth

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Identity is the caller behind a validated token.
type Identity struct {
	UserID string
	// Claims is the token's claim set as JSON, forwarded to the database
	// for row-level security.
	Claims []byte
}

type AuthModule struct {
	JWTSecret string
	leeway    time.Duration
}

func NewAuthModule(JWTSecret string) *AuthModule {
	return &AuthModule{JWTSecret: JWTSecret, leeway: 30 * time.Second}
}

// GenerateJWT issues an HS256 token for userID, in the shape the auth
// provider issues them (sub, role, exp, iat).
func (a *AuthModule) GenerateJWT(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": "authenticated",
		"exp":  now.Add(ttl).Unix(),
		"iat":  now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.JWTSecret))
}

// ValidateTokenJWT checks signature and expiry of a bearer token. The
// "Bearer " prefix is optional.
func (a *AuthModule) ValidateTokenJWT(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return Identity{}, ErrInvalidToken
	}

	claims := jwt.MapClaims{}
	parsedToken, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(a.JWTSecret), nil
	}, jwt.WithLeeway(a.leeway), jwt.WithExpirationRequired())
	if err != nil {
		return Identity{}, errors.Join(ErrInvalidToken, err)
	}
	if !parsedToken.Valid {
		return Identity{}, ErrInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Identity{}, errors.Join(ErrInvalidToken, errors.New("missing sub claim"))
	}

	raw, err := json.Marshal(claims)
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: sub, Claims: raw}, nil
}
