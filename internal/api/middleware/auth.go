package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/provisioner/internal/api/response"
	"golang.org/x/crypto/bcrypt"
)

// AdminAuth guards administrative routes with a single bearer token whose
// bcrypt hash is configured at startup.
type AdminAuth struct {
	tokenHash []byte
}

// NewAdminAuth creates the middleware. It returns an error if tokenHash is
// not a bcrypt hash.
func NewAdminAuth(tokenHash string) (*AdminAuth, error) {
	if _, err := bcrypt.Cost([]byte(tokenHash)); err != nil {
		return nil, errors.New("admin token hash is not a valid bcrypt hash")
	}
	return &AdminAuth{tokenHash: []byte(tokenHash)}, nil
}

// Authenticate rejects requests whose bearer token does not match.
func (a *AdminAuth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		if bcrypt.CompareHashAndPassword(a.tokenHash, []byte(token)) != nil {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid admin token", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
