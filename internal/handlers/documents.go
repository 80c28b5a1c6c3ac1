package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/intakedesk/apiserver/internal/apperrors"
	"github.com/intakedesk/apiserver/internal/documents"
	"github.com/intakedesk/apiserver/types"
)

const (
	defaultMaxUploadBytes = 20 << 20
	maxMultipartMemory    = 32 << 20
	formFieldFiles        = "files"
	formFieldCategory     = "category"
	formFieldRemove       = "remove"
)

// DocumentsResponse is returned by document edits. On partial failure
// Error describes what did not persist.
type DocumentsResponse struct {
	Profile types.Profile          `json:"profile"`
	Result  documents.CommitResult `json:"result"`
	Error   *ErrorResponse         `json:"error,omitempty"`
}

// DocumentRouter registers routes addressing a single document.
func DocumentRouter(r chi.Router, h *ProfileHandler, authMiddleware ...func(http.Handler) http.Handler) {
	r.Use(authMiddleware...)

	r.Route("/{documentID}", func(r chi.Router) {
		r.Delete("/", h.DeleteDocument)
		r.Get("/content", h.DownloadDocument)
	})
}

// UpdateDocuments stages every uploaded file, marks the listed ids for
// removal and commits them as one batch.
func (h *ProfileHandler) UpdateDocuments(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := profileTarget(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeAppError(w, r, apperrors.New(apperrors.KindValidation, "invalid multipart form"))
		return
	}

	files, err := parseDocumentFiles(r.MultipartForm, h.maxUploadBytes)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	removeIDs, err := parseRemoveIDs(r.MultipartForm.Value[formFieldRemove])
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if len(files) == 0 && len(removeIDs) == 0 {
		writeAppError(w, r, apperrors.Validation(formFieldFiles, "nothing to add or remove"))
		return
	}

	profile, result, err := h.profiles.ApplyDocuments(r.Context(), caller, id, files, removeIDs)
	if err != nil {
		writePartial(w, r, profile, result, err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentsResponse{Profile: profile, Result: result})
}

func (h *ProfileHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	docID, err := parseID(r, "documentID")
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	profile, err := h.profiles.RemoveDocument(r.Context(), caller, docID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *ProfileHandler) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	docID, err := parseID(r, "documentID")
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	doc, body, err := h.profiles.OpenDocument(r.Context(), caller, docID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	defer body.Close()

	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if doc.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(doc.Size, 10))
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Name))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

// writePartial answers 207 when some steps of a commit persisted and the
// mapped error status otherwise.
func writePartial(w http.ResponseWriter, r *http.Request, profile types.Profile, result documents.CommitResult, err error) {
	var appErr *apperrors.Error
	partial := len(result.Added) > 0 || len(result.Removed) > 0
	if !partial || !errors.As(err, &appErr) || appErr.Kind != apperrors.KindStorageFailure {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusMultiStatus, DocumentsResponse{
		Profile: profile,
		Result:  result,
		Error: &ErrorResponse{
			Kind:    string(appErr.Kind),
			Message: appErr.Message,
		},
	})
}

func parseDocumentFiles(form *multipart.Form, limit int64) ([]documents.File, error) {
	if form == nil {
		return nil, apperrors.New(apperrors.KindValidation, "missing form data")
	}

	headers := form.File[formFieldFiles]
	categories := form.Value[formFieldCategory]
	if len(categories) > 1 && len(categories) != len(headers) {
		return nil, apperrors.Validation(formFieldCategory, "give one category for all files or one per file")
	}

	files := make([]documents.File, 0, len(headers))
	for i, header := range headers {
		category := ""
		switch {
		case len(categories) == 1:
			category = categories[0]
		case len(categories) > 1:
			category = categories[i]
		}

		file, err := header.Open()
		if err != nil {
			return nil, apperrors.Newf(apperrors.KindValidation, "failed to read %s", header.Filename)
		}
		data, err := readFileLimited(file, limit)
		_ = file.Close()
		if err != nil {
			return nil, apperrors.Validation(formFieldFiles, err.Error())
		}

		files = append(files, documents.File{
			Name:        header.Filename,
			Category:    strings.TrimSpace(category),
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return files, nil
}

// parseRemoveIDs accepts repeated values and comma separated lists.
func parseRemoveIDs(values []string) ([]int, error) {
	var ids []int
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.Atoi(part)
			if err != nil || id < 1 {
				return nil, apperrors.Validation(formFieldRemove, "invalid document id "+part)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("uploaded file too large")
	}
	return data, nil
}
