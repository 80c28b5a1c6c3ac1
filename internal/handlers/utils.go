package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/intakedesk/apiserver/internal/apperrors"
	"github.com/intakedesk/apiserver/internal/policy"
)

type contextKey string

const (
	contextUserIDKey contextKey = "user_id"
	contextCallerKey contextKey = "caller"
)

const kindUnauthorized = "Unauthorized"

// ErrorResponse is the structured error payload.
type ErrorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func userIDFromContext(ctx context.Context) (int, bool) {
	userID, ok := ctx.Value(contextUserIDKey).(int)
	return userID, ok && userID > 0
}

func callerFromContext(ctx context.Context) (policy.Caller, bool) {
	caller, ok := ctx.Value(contextCallerKey).(policy.Caller)
	return caller, ok
}

func parseID(r *http.Request, param string) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, param))
	if err != nil || id < 1 {
		return 0, apperrors.Validation(param, "invalid "+param)
	}
	return id, nil
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperrors.New(apperrors.KindValidation, "invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// writeError writes an error that did not come from the core, such as a
// missing token.
func writeError(w http.ResponseWriter, status int, message string) {
	kind := kindUnauthorized
	if status != http.StatusUnauthorized {
		kind = string(kindForStatus(status))
	}
	writeJSON(w, status, ErrorResponse{Kind: kind, Message: message})
}

// writeAppError maps an error kind to its HTTP status and writes it.
// Internal errors are logged and reported without their cause.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Kind == apperrors.KindInternal {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Kind:    string(apperrors.KindInternal),
			Message: "internal error",
		})
		return
	}
	writeJSON(w, statusForKind(appErr.Kind), ErrorResponse{
		Kind:    string(appErr.Kind),
		Message: appErr.Message,
		Details: appErr.Details,
	})
}

func statusForKind(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindMissingFields, apperrors.KindIncompleteDocument:
		return http.StatusUnprocessableEntity
	case apperrors.KindNotVerified, apperrors.KindInvalidTransition, apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindForbidden:
		return http.StatusForbidden
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindStorageFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func kindForStatus(status int) apperrors.Kind {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return apperrors.KindValidation
	case http.StatusForbidden:
		return apperrors.KindForbidden
	case http.StatusNotFound:
		return apperrors.KindNotFound
	case http.StatusConflict:
		return apperrors.KindConflict
	default:
		return apperrors.KindInternal
	}
}
