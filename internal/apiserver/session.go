package apiserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// sessionTTL bounds how long a dashboard session token is valid before the
// operator must re-present the bearer token.
const sessionTTL = 1 * time.Hour

type sessionClaims struct {
	jwt.RegisteredClaims
}

// handleSession issues a short-lived JWT for dashboard clients, so the
// long-lived operator token never has to be embedded in a browser session.
// Requires the same bearer auth as every other operator endpoint.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
			Subject:   "operator-dashboard",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": signed, "expires_at": claims.ExpiresAt.Format(time.RFC3339)})
}

// verifySession validates a dashboard session JWT previously issued by
// handleSession.
func (s *Server) verifySession(raw string) bool {
	token, err := jwt.ParseWithClaims(raw, &sessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	})
	return err == nil && token.Valid
}
