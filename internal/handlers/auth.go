package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/intakedesk/apiserver/internal/services"
	"github.com/intakedesk/apiserver/internal/store"
	"github.com/intakedesk/apiserver/types"
)

const sessionTTL = 24 * time.Hour

// AuthHandler serves account registration and session tokens.
type AuthHandler struct {
	users  *services.UserService
	secret string
}

func NewAuthHandler(users *services.UserService, jwtSecret string) *AuthHandler {
	return &AuthHandler{users: users, secret: jwtSecret}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, users *services.UserService, jwtSecret string) {
	h := NewAuthHandler(users, jwtSecret)

	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.With(RequireAuth(jwtSecret)).Get("/me", h.Me)
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

// RequireAuth rejects requests without a valid session token and puts the
// token's user id in the request context.
func RequireAuth(jwtSecret string) func(http.Handler) http.Handler {
	secret := []byte(jwtSecret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			userID, err := verifyToken(raw, secret)
			if err != nil {
				slog.DebugContext(r.Context(), "token rejected", "error", err)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			ctx := context.WithValue(r.Context(), contextUserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoadCaller resolves the authenticated user to a caller with the role
// currently stored for it. It must run after RequireAuth.
func LoadCaller(users *services.UserService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := userIDFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			caller, err := users.Caller(r.Context(), userID)
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if err != nil {
				writeAppError(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), contextCallerKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	user, err := h.users.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	h.respondWithSession(w, r, http.StatusCreated, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if errors.Is(err, services.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	h.respondWithSession(w, r, http.StatusOK, user)
}

// Me returns the account behind the session token.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) respondWithSession(w http.ResponseWriter, r *http.Request, status int, user types.User) {
	token, err := IssueToken(user.ID, h.secret, sessionTTL)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, status, AuthResponse{Token: token, User: user})
}
