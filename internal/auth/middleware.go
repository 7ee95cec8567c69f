package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"ridematch/internal/models"
	"ridematch/pkg/logger"
)

type contextKey struct{}

// Middleware requires a valid bearer token for an existing user and stores
// the user id in the request context.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			unauthorized(w, "missing bearer token")
			return
		}

		user, err := s.GetUserFromToken(r.Context(), token)
		switch {
		case errors.Is(err, models.ErrNotFound):
			unauthorized(w, "user no longer exists")
			return
		case errors.Is(err, models.ErrUnauthorized):
			unauthorized(w, "invalid token")
			return
		case err != nil:
			logger.Error().Err(err).Msg("failed to resolve token user")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"detail":"internal server error"}`))
			return
		}

		ctx := context.WithValue(r.Context(), contextKey{}, user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserIDFromContext returns the authenticated user id set by Middleware.
func UserIDFromContext(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(contextKey{}).(int)
	return id, ok
}

func unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"detail":"` + detail + `"}`))
}
