// Package auth verifies bearer tokens and puts the authenticated user on
// the request context.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/monahq/mona/models"
)

// ContextKey is used to store user information in the request context.
type ContextKey string

const (
	// UserIDKey is the context key for the authenticated user id.
	UserIDKey ContextKey = "user_id"
	// AuthHeaderName is the name of the authentication header.
	AuthHeaderName = "Authorization"
)

var ErrNoUser = errors.New("no authenticated user in context")

// GetUserID returns the authenticated user id from the context.
func GetUserID(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(UserIDKey).(string)
	if !ok || userID == "" {
		return "", ErrNoUser
	}

	return userID, nil
}

// WithUserID returns a context carrying the user id. Tests and internal
// callers use it to act on behalf of a user.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// Middleware validates HS256 bearer tokens. The subject claim is the
// user id; an email claim, when present, provisions the user row on
// first sight.
type Middleware struct {
	secret []byte
	users  models.UserRepository
	logger *zap.Logger
}

func NewMiddleware(secret string, users models.UserRepository, logger *zap.Logger) *Middleware {
	return &Middleware{secret: []byte(secret), users: users, logger: logger}
}

func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(AuthHeaderName)
		if header == "" {
			http.Error(w, "missing authorization header", http.StatusUnauthorized)

			return
		}

		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			http.Error(w, "invalid authorization header", http.StatusUnauthorized)

			return
		}

		claims := jwt.MapClaims{}

		_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}

			return m.secret, nil
		})
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)

			return
		}

		userID, err := claims.GetSubject()
		if err != nil || userID == "" {
			http.Error(w, "token has no subject", http.StatusUnauthorized)

			return
		}

		if err := m.ensureUser(r.Context(), userID, claims); err != nil {
			m.logger.Error("failed to provision user", zap.Error(err),
				zap.String("user_id", userID))
			http.Error(w, "internal error", http.StatusInternalServerError)

			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

func (m *Middleware) ensureUser(ctx context.Context, userID string, claims jwt.MapClaims) error {
	_, err := m.users.GetByID(ctx, userID)
	if err == nil {
		return nil
	}

	if !errors.Is(err, models.ErrNotFound) {
		return err
	}

	email, _ := claims["email"].(string)

	return m.users.Create(ctx, &models.User{ID: userID, Email: email})
}
