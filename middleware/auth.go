package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Nexora-Open-Source/catalog-bulk-backend/utils"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// Claims are the admin token claims
type Claims struct {
	Role  string   `json:"role,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// HasRole reports whether the token grants role
func (c *Claims) HasRole(role string) bool {
	if c.Role == role {
		return true
	}
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type claimsKey struct{}

// ClaimsFromContext returns the verified claims stored by AdminAuth
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok
}

// AuthConfig configures AdminAuth
type AuthConfig struct {
	// Secret is the HS256 signing key. An empty secret disables authentication; config
	// validation only allows that in development.
	Secret       string
	RequiredRole string
	Issuer       string
}

// AdminAuth enforces a bearer HS256 JWT carrying the required role
func AdminAuth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if cfg.Secret == "" {
			Logger.Warn("Admin authentication disabled: no JWT secret configured (development only)")
			return next
		}

		opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
		if cfg.Issuer != "" {
			opts = append(opts, jwt.WithIssuer(cfg.Issuer))
		}
		parser := jwt.NewParser(opts...)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := utils.RequestID(r)

			token, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				RespondUnauthorized(w, errors.New("missing or malformed authorization header"), requestID)
				return
			}

			claims := &Claims{}
			_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
				return []byte(cfg.Secret), nil
			})
			if err != nil {
				Logger.WithFields(logrus.Fields{
					"path":       r.URL.Path,
					"request_id": requestID,
					"error":      err.Error(),
				}).Warn("Rejected admin token")
				RespondUnauthorized(w, errors.New("invalid token"), requestID)
				return
			}

			if cfg.RequiredRole != "" && !claims.HasRole(cfg.RequiredRole) {
				RespondForbidden(w, fmt.Errorf("role %q required", cfg.RequiredRole), requestID)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}
}

func extractBearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
