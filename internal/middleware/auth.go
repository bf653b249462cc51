// Package middleware provides HTTP middleware for authentication, authorization,
// rate limiting and access logs.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Rafael-Renck/sistema-preco/internal/ctxkeys"
)

// Claims are the fields the pricing API reads from a portal token.
type Claims struct {
	UserID subject `json:"userId"`
	Role   string  `json:"role"`
	jwt.RegisteredClaims
}

// subject is a user id that the portal issues either as a string or as the
// integer primary key.
type subject string

func (s *subject) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			*s = subject(strconv.FormatInt(i, 10))
			return nil
		}
	}
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		*s = ""
		return nil
	}
	*s = subject(strings.TrimSpace(str))
	return nil
}

var signingMethods = []string{
	jwt.SigningMethodHS256.Alg(),
	jwt.SigningMethodHS384.Alg(),
	jwt.SigningMethodHS512.Alg(),
}

// Auth validates the Bearer token and injects the user's ID and role into
// the request context.
func Auth(jwtSecret string) func(http.Handler) http.Handler {
	secret := []byte(jwtSecret)
	parser := jwt.NewParser(
		jwt.WithValidMethods(signingMethods),
		jwt.WithLeeway(30*time.Second),
	)
	keyFunc := func(*jwt.Token) (interface{}, error) { return secret, nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, raw, found := strings.Cut(r.Header.Get("Authorization"), " ")
			if !found || scheme != "Bearer" || strings.TrimSpace(raw) == "" {
				writeError(w, http.StatusUnauthorized, "Authorization header required. Use: Bearer <token>")
				return
			}

			var claims Claims
			_, err := parser.ParseWithClaims(strings.TrimSpace(raw), &claims, keyFunc)
			switch {
			case errors.Is(err, jwt.ErrTokenExpired):
				writeError(w, http.StatusUnauthorized, "Token expired")
				return
			case err != nil:
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			if claims.UserID == "" {
				writeError(w, http.StatusUnauthorized, "Invalid token: missing user ID")
				return
			}

			ctx := context.WithValue(r.Context(), ctxkeys.UserID, string(claims.UserID))
			ctx = context.WithValue(ctx, ctxkeys.UserRole, strings.ToLower(claims.Role))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireMinRole rejects users below minRole (adm > consulta). Must be used
// after Auth.
func RequireMinRole(minRole string) func(http.Handler) http.Handler {
	minLevel := ctxkeys.RoleLevel[minRole]

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ctxkeys.RoleLevel[ctxkeys.RoleFrom(r.Context())] < minLevel {
				writeError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
