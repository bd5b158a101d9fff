package auth

import (
	"context"
	"net/http"
	"strings"

	apperrors "github.com/taskvault/backend/internal/errors"
	"github.com/taskvault/backend/internal/models"
)

type contextKey string

const userContextKey contextKey = "user"

// WithUser stores the authenticated user in ctx.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the user stored by Middleware.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userContextKey).(*models.User)
	return user, ok && user != nil
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Middleware authenticates requests with a bearer access token and stores
// the resolved user in the request context.
func Middleware(authService *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := apperrors.GetRequestID(r.Context())

			token, ok := BearerToken(r)
			if !ok {
				unauthorized(w, requestID, apperrors.Unauthorized("Not authenticated"))
				return
			}

			user, err := authService.ResolveCurrentUser(r.Context(), token)
			if err != nil {
				mapped := mapError(err)
				if appErr, ok := apperrors.As(mapped); ok && appErr.HTTPStatus == http.StatusUnauthorized {
					unauthorized(w, requestID, apperrors.Unauthorized("Could not validate credentials"))
					return
				}
				apperrors.WriteError(w, requestID, mapped)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func unauthorized(w http.ResponseWriter, requestID string, err error) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	apperrors.WriteError(w, requestID, err)
}
