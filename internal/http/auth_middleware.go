package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/uww-saigusa/messageboard/internal/domain"
)

type authContextKey string

const contextKeyUser authContextKey = "board-auth-user"

// authFailedMessage is the single body every rejected bearer token receives.
const authFailedMessage = "authentication failed"

type contextSetter interface {
	SetContext(context.Context)
}

// authenticate resolves the bearer token and returns a request carrying the user.
// On failure it writes the 401 response and returns false.
func (r *Router) authenticate(w http.ResponseWriter, req *http.Request) (*http.Request, bool) {
	token, err := bearerToken(req.Header.Get("Authorization"))
	if err != nil {
		r.unauthorized(w, req, "header", err)
		return req, false
	}
	user, err := r.auth.Authorize(req.Context(), token)
	if err != nil {
		r.writeServiceError(w, req, err)
		return req, false
	}
	ctx := context.WithValue(req.Context(), contextKeyUser, user)
	if setter, ok := w.(contextSetter); ok {
		setter.SetContext(ctx)
	}
	return req.WithContext(ctx), true
}

func (r *Router) unauthorized(w http.ResponseWriter, req *http.Request, stage string, cause error) {
	r.logger.Warn("authentication rejected", "stage", stage, "error", cause, "path", req.URL.Path)
	r.recordAuthFailure(stage)
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, authFailedMessage)
}

// userFromContext extracts the authenticated user.
func userFromContext(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(contextKeyUser).(*domain.User)
	return user, ok && user != nil
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}
