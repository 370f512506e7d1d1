package tracking

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// authMiddleware validates the bearer token on API requests when auth is
// enabled. Token issuance belongs to the account system, which is
// external; this layer only verifies.
func (s *Service) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			s.writeErrorResponse(w, http.StatusUnauthorized, "Missing bearer token", nil)
			return
		}

		tokenString := strings.TrimPrefix(header, "Bearer ")
		if err := s.validateToken(tokenString); err != nil {
			s.writeErrorResponse(w, http.StatusUnauthorized, "Invalid token", err)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// validateToken parses and verifies an HS256 JWT against the configured
// secret and issuer
func (s *Service) validateToken(tokenString string) error {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Auth.SecretKey), nil
	})
	if err != nil {
		return fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return fmt.Errorf("invalid token claims")
	}

	if issuer := s.config.Auth.Issuer; issuer != "" && claims.Issuer != issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}

	return nil
}
