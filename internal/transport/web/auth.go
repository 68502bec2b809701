package web

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/avstrong/staytrust/internal/actor"
)

var (
	ErrNoSecret     = errors.New("jwt secret is required")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims carry the caller's identity. Subject is the participant id.
type Claims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for a. Used by tooling and tests; the
// platform's identity service issues production tokens.
func IssueToken(secret []byte, a actor.Actor, ttl time.Duration) (string, error) {
	now := time.Now()

	//nolint:exhaustruct
	claims := Claims{
		Name: a.Name,
		Role: string(a.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

func parseToken(secret []byte, raw string) (actor.Actor, error) {
	//nolint:exhaustruct
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return actor.Actor{}, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return actor.Actor{}, ErrInvalidToken
	}

	role := actor.ParseRole(claims.Role)
	if claims.Subject == "" || role == "" || role == actor.RoleSystem {
		return actor.Actor{}, ErrInvalidToken
	}

	return actor.Actor{ID: claims.Subject, Name: claims.Name, Role: role}, nil
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "

	if !strings.HasPrefix(header, prefix) {
		return "", false
	}

	raw := strings.TrimSpace(strings.TrimPrefix(header, prefix))

	return raw, raw != ""
}

func (s *Server) authMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				s.writeMessage(w, http.StatusUnauthorized, "missing bearer token")

				return
			}

			a, err := parseToken(s.conf.JWTSecret, raw)
			if err != nil {
				s.writeMessage(w, http.StatusUnauthorized, "invalid bearer token")

				return
			}

			next.ServeHTTP(w, r.WithContext(actor.NewContext(r.Context(), a)))
		})
	}
}

func (s *Server) requireOperator() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a, _ := actor.FromContext(r.Context()); !a.IsAdmin() {
				s.writeMessage(w, http.StatusForbidden, "operator role required")

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func currentActor(r *http.Request) actor.Actor {
	a, _ := actor.FromContext(r.Context())

	return a
}
