package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/intakedesk/apiserver/internal/apperrors"
	"github.com/intakedesk/apiserver/internal/policy"
	"github.com/intakedesk/apiserver/internal/services"
	"github.com/intakedesk/apiserver/internal/validation"
	"github.com/intakedesk/apiserver/types"
)

// ProfileHandler serves the owner-facing profile endpoints.
type ProfileHandler struct {
	profiles       *services.ProfileService
	directory      *services.DirectoryService
	maxUploadBytes int64
}

func NewProfileHandler(profiles *services.ProfileService, directory *services.DirectoryService, maxUploadBytes int64) *ProfileHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &ProfileHandler{
		profiles:       profiles,
		directory:      directory,
		maxUploadBytes: maxUploadBytes,
	}
}

// ProfileRouter registers profile routes. Every route needs a caller, so
// authMiddleware must resolve one.
func ProfileRouter(r chi.Router, h *ProfileHandler, authMiddleware ...func(http.Handler) http.Handler) {
	r.Use(authMiddleware...)

	r.Get("/", h.ListProfiles)
	r.Post("/", h.CreateProfile)
	r.Route("/{profileID}", func(r chi.Router) {
		r.Get("/", h.GetProfile)
		r.Patch("/", h.UpdateProfile)
		r.Delete("/", h.DeleteProfile)
		r.Post("/verify", h.VerifyProfile)
		r.Post("/submit", h.SubmitProfile)
		r.Post("/documents", h.UpdateDocuments)
	})
}

// ValidateRouter registers the stateless field validation endpoint.
func ValidateRouter(r chi.Router) {
	r.Post("/", ValidateField)
}

type CreateProfileRequest struct {
	Type types.ProfileType `json:"type"`
}

type UpdateProfileRequest struct {
	GeneralInfo map[string]string `json:"general_info"`
}

type ProfileListResponse struct {
	Items []types.Profile `json:"items"`
}

type ValidateRequest struct {
	Field string            `json:"field"`
	Value string            `json:"value"`
	Type  types.ProfileType `json:"type"`
}

func (h *ProfileHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	items, err := h.directory.ListForUser(r.Context(), caller)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ProfileListResponse{Items: items})
}

func (h *ProfileHandler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	profile, err := h.profiles.Create(r.Context(), caller, types.ProfileType(strings.ToLower(string(req.Type))))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, profile)
}

func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := profileTarget(w, r)
	if !ok {
		return
	}

	profile, err := h.profiles.Get(r.Context(), caller, id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := profileTarget(w, r)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	if len(req.GeneralInfo) == 0 {
		writeAppError(w, r, apperrors.Validation("general_info", "general_info must contain at least one field"))
		return
	}

	profile, err := h.profiles.UpdateGeneralInfo(r.Context(), caller, id, req.GeneralInfo)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *ProfileHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := profileTarget(w, r)
	if !ok {
		return
	}

	if err := h.profiles.Delete(r.Context(), caller, id); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProfileHandler) VerifyProfile(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := profileTarget(w, r)
	if !ok {
		return
	}

	profile, err := h.profiles.Verify(r.Context(), caller, id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *ProfileHandler) SubmitProfile(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := profileTarget(w, r)
	if !ok {
		return
	}

	profile, err := h.profiles.Submit(r.Context(), caller, id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// ValidateField checks one value without touching any profile.
func ValidateField(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Field) == "" {
		writeAppError(w, r, apperrors.Validation("field", "field is required"))
		return
	}
	writeJSON(w, http.StatusOK, validation.ValidateField(req.Field, req.Value, req.Type))
}

// profileTarget resolves the caller and the profile id of the request.
func profileTarget(w http.ResponseWriter, r *http.Request) (caller policy.Caller, id int, ok bool) {
	caller, ok = callerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return caller, 0, false
	}
	id, err := parseID(r, "profileID")
	if err != nil {
		writeAppError(w, r, err)
		return caller, 0, false
	}
	return caller, id, true
}
