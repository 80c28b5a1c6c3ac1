package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/intakedesk/apiserver/internal/policy"
	"github.com/intakedesk/apiserver/internal/services"
	"github.com/intakedesk/apiserver/types"
)

// AdminHandler serves the review dashboard and admin transitions.
type AdminHandler struct {
	profiles  *services.ProfileService
	directory *services.DirectoryService
}

func NewAdminHandler(profiles *services.ProfileService, directory *services.DirectoryService) *AdminHandler {
	return &AdminHandler{profiles: profiles, directory: directory}
}

// AdminRouter registers admin routes behind the admin role check.
func AdminRouter(r chi.Router, h *AdminHandler, authMiddleware ...func(http.Handler) http.Handler) {
	r.Use(authMiddleware...)
	r.Use(requireAdmin)

	r.Get("/profiles", h.ListProfiles)
	r.Route("/profiles/{profileID}", func(r chi.Router) {
		r.Post("/decision", h.Decide)
		r.Post("/status", h.SetStatus)
		r.Get("/actions", h.ListActions)
	})
}

type DecisionRequest struct {
	Decision types.Decision `json:"decision"`
	Notes    string         `json:"notes"`
}

type StatusRequest struct {
	Status types.Status `json:"status"`
	Notes  string       `json:"notes"`
}

type AdminActionListResponse struct {
	Items []types.AdminAction `json:"items"`
}

func (h *AdminHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	dashboard, err := h.directory.ListForAdmin(r.Context(), caller, r.URL.Query().Get("status"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func (h *AdminHandler) Decide(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := profileTarget(w, r)
	if !ok {
		return
	}

	var req DecisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	decision := types.Decision(strings.ToLower(strings.TrimSpace(string(req.Decision))))
	profile, err := h.profiles.Decide(r.Context(), caller, id, decision, strings.TrimSpace(req.Notes))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// SetStatus reopens a profile to pending or draft.
func (h *AdminHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := profileTarget(w, r)
	if !ok {
		return
	}

	var req StatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	target := types.Status(strings.ToLower(strings.TrimSpace(string(req.Status))))
	profile, err := h.profiles.Reopen(r.Context(), caller, id, target, strings.TrimSpace(req.Notes))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *AdminHandler) ListActions(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := profileTarget(w, r)
	if !ok {
		return
	}

	actions, err := h.profiles.ListActions(r.Context(), caller, id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AdminActionListResponse{Items: actions})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if err := policy.AuthorizeAdmin(caller); err != nil {
			writeAppError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}
