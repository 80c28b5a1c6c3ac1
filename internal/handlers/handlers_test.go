package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"github.com/intakedesk/apiserver/internal/services"
	"github.com/intakedesk/apiserver/internal/storage"
	"github.com/intakedesk/apiserver/internal/store/memstore"
	"github.com/intakedesk/apiserver/types"
)

const testSecret = "handler-test-secret"

type profileBody struct {
	ID          int               `json:"id"`
	Status      types.Status      `json:"status"`
	Verified    bool              `json:"verified"`
	Progress    int               `json:"progress"`
	GeneralInfo map[string]string `json:"general_info"`
	Documents   []types.Document  `json:"documents"`
}

type HandlerSuite struct {
	suite.Suite

	router     *chi.Mux
	ownerToken string
	otherToken string
	adminToken string
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	mem := memstore.New()
	users := services.NewUserService(mem.Users())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	profiles := services.NewProfileService(
		mem.Profiles(),
		mem.Documents(),
		mem.AdminActions(),
		storage.NewStorage(storage.NewMemoryStorage("docs"), ""),
		services.WithLogger(logger),
	)
	directory := services.NewDirectoryService(mem.Profiles())

	s.ownerToken = s.seedUser(users, "owner@example.com", types.RoleUser)
	s.otherToken = s.seedUser(users, "other@example.com", types.RoleUser)
	s.adminToken = s.seedUser(users, "admin@example.com", types.RoleAdmin)

	auth := []func(http.Handler) http.Handler{RequireAuth(testSecret), LoadCaller(users)}
	profileHandler := NewProfileHandler(profiles, directory, 1<<20)

	r := chi.NewRouter()
	r.Get("/healthz", Healthz)
	r.Route("/auth", func(r chi.Router) { AuthRouter(r, users, testSecret) })
	r.Route("/validate", ValidateRouter)
	r.Route("/profiles", func(r chi.Router) { ProfileRouter(r, profileHandler, auth...) })
	r.Route("/documents", func(r chi.Router) { DocumentRouter(r, profileHandler, auth...) })
	r.Route("/admin", func(r chi.Router) { AdminRouter(r, NewAdminHandler(profiles, directory), auth...) })
	s.router = r
}

func (s *HandlerSuite) seedUser(users *services.UserService, email string, role types.Role) string {
	user, err := users.Create(s.T().Context(), types.User{Email: email, Name: "Test", Role: role, PasswordHash: "x"})
	s.Require().NoError(err)
	token, err := IssueToken(user.ID, testSecret, time.Hour)
	s.Require().NoError(err)
	return token
}

func (s *HandlerSuite) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder, dst any) {
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func (s *HandlerSuite) errorKind(rec *httptest.ResponseRecorder) string {
	var body ErrorResponse
	s.decode(rec, &body)
	return body.Kind
}

func (s *HandlerSuite) createProfile(token string, profileType types.ProfileType) profileBody {
	rec := s.do(http.MethodPost, "/profiles/", token, CreateProfileRequest{Type: profileType})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var p profileBody
	s.decode(rec, &p)
	return p
}

func (s *HandlerSuite) upload(token string, profileID int, files map[string]string, removeIDs ...int) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for category, name := range files {
		part, err := mw.CreateFormFile(formFieldFiles, name)
		s.Require().NoError(err)
		_, err = part.Write([]byte("content of " + name))
		s.Require().NoError(err)
		s.Require().NoError(mw.WriteField(formFieldCategory, category))
	}
	for _, id := range removeIDs {
		s.Require().NoError(mw.WriteField(formFieldRemove, fmt.Sprint(id)))
	}
	s.Require().NoError(mw.Close())

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/profiles/%d/documents", profileID), &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) TestHealthz() {
	rec := s.do(http.MethodGet, "/healthz", "", nil)
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"status":"ok"}`, rec.Body.String())
}

func (s *HandlerSuite) TestRegisterLoginMe() {
	rec := s.do(http.MethodPost, "/auth/register", "", RegisterRequest{Email: "new@example.com", Name: "New", Password: "longenough"})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var registered AuthResponse
	s.decode(rec, &registered)
	s.NotEmpty(registered.Token)
	s.Equal(types.RoleUser, registered.User.Role)
	s.NotContains(rec.Body.String(), "password")

	rec = s.do(http.MethodPost, "/auth/register", "", RegisterRequest{Email: "NEW@example.com", Name: "Dup", Password: "longenough"})
	s.Equal(http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, "/auth/register", "", RegisterRequest{Email: "bad-email", Name: "X", Password: "longenough"})
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/auth/register", "", RegisterRequest{Email: "short@example.com", Name: "X", Password: "short"})
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/auth/login", "", LoginRequest{Email: "new@example.com", Password: "longenough"})
	s.Require().Equal(http.StatusOK, rec.Code)
	var loggedIn AuthResponse
	s.decode(rec, &loggedIn)

	rec = s.do(http.MethodPost, "/auth/login", "", LoginRequest{Email: "new@example.com", Password: "wrong-password"})
	s.Equal(http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/auth/me", loggedIn.Token, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "new@example.com")
}

func (s *HandlerSuite) TestUnauthenticated() {
	rec := s.do(http.MethodGet, "/profiles/", "", nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("Unauthorized", s.errorKind(rec))

	rec = s.do(http.MethodGet, "/profiles/", "not-a-jwt", nil)
	s.Equal(http.StatusUnauthorized, rec.Code)

	token, err := IssueToken(4242, testSecret, time.Hour)
	s.Require().NoError(err)
	rec = s.do(http.MethodGet, "/profiles/", token, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *HandlerSuite) TestValidateEndpoint() {
	rec := s.do(http.MethodPost, "/validate/", "", ValidateRequest{Field: "ein", Value: "1-23456789", Type: types.ProfileTypeBusiness})
	s.Require().Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"valid":false,"reason":"Please enter EIN in format: XX-XXXXXXX"}`, rec.Body.String())

	rec = s.do(http.MethodPost, "/validate/", "", ValidateRequest{Field: "phone", Value: "(555) 123-4567"})
	s.JSONEq(`{"valid":true}`, rec.Body.String())

	rec = s.do(http.MethodPost, "/validate/", "", ValidateRequest{Value: "x"})
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestProfileWorkflow() {
	p := s.createProfile(s.ownerToken, types.ProfileTypePersonal)
	s.Equal(types.StatusDraft, p.Status)
	s.Equal(0, p.Progress)

	rec := s.do(http.MethodPost, fmt.Sprintf("/profiles/%d/verify", p.ID), s.ownerToken, nil)
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
	s.Equal("MissingFieldsError", s.errorKind(rec))

	rec = s.do(http.MethodPatch, fmt.Sprintf("/profiles/%d", p.ID), s.ownerToken, UpdateProfileRequest{GeneralInfo: map[string]string{
		types.FieldName:    "John Smith",
		types.FieldAddress: "123 Main St, Springfield",
		types.FieldPhone:   "(555) 123-4567",
		types.FieldEmail:   "john@example.com",
	}})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.decode(rec, &p)
	s.Equal(100, p.Progress)
	s.Equal("John Smith", p.GeneralInfo[types.FieldName])

	rec = s.do(http.MethodPost, fmt.Sprintf("/profiles/%d/submit", p.ID), s.ownerToken, nil)
	s.Equal(http.StatusConflict, rec.Code)
	s.Equal("NotVerifiedError", s.errorKind(rec))

	rec = s.do(http.MethodPost, fmt.Sprintf("/profiles/%d/verify", p.ID), s.ownerToken, nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.upload(s.ownerToken, p.ID, map[string]string{"SSN": "ssn.pdf", "Driver's License": "dl.png"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var docs DocumentsResponse
	s.decode(rec, &docs)
	s.Len(docs.Result.Added, 2)
	s.Len(docs.Profile.Documents, 2)

	rec = s.do(http.MethodPost, fmt.Sprintf("/profiles/%d/submit", p.ID), s.ownerToken, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.decode(rec, &p)
	s.Equal(types.StatusPending, p.Status)

	rec = s.do(http.MethodPatch, fmt.Sprintf("/profiles/%d", p.ID), s.ownerToken, UpdateProfileRequest{GeneralInfo: map[string]string{types.FieldPhone: "1"}})
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodGet, fmt.Sprintf("/profiles/%d", p.ID), s.otherToken, nil)
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, fmt.Sprintf("/admin/profiles/%d/decision", p.ID), s.ownerToken, DecisionRequest{Decision: types.DecisionApprove})
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodGet, "/admin/profiles?status=pending", s.adminToken, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var dashboard struct {
		Items []profileBody        `json:"items"`
		Stats types.DirectoryStats `json:"stats"`
	}
	s.decode(rec, &dashboard)
	s.Require().Len(dashboard.Items, 1)
	s.Equal(1, dashboard.Stats.Pending)

	rec = s.do(http.MethodPost, fmt.Sprintf("/admin/profiles/%d/decision", p.ID), s.adminToken, DecisionRequest{Decision: " Approve ", Notes: "ok"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.decode(rec, &p)
	s.Equal(types.StatusVerified, p.Status)

	rec = s.do(http.MethodPost, fmt.Sprintf("/admin/profiles/%d/decision", p.ID), s.adminToken, DecisionRequest{Decision: types.DecisionApprove})
	s.Equal(http.StatusConflict, rec.Code)
	s.Equal("InvalidTransitionError", s.errorKind(rec))

	rec = s.do(http.MethodPost, fmt.Sprintf("/admin/profiles/%d/status", p.ID), s.adminToken, StatusRequest{Status: types.StatusPending})
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, fmt.Sprintf("/admin/profiles/%d/actions", p.ID), s.adminToken, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var actions AdminActionListResponse
	s.decode(rec, &actions)
	s.Require().Len(actions.Items, 2)
	s.Equal(types.ActionApproved, actions.Items[0].Action)
	s.Equal(types.ActionReopened, actions.Items[1].Action)
}

func (s *HandlerSuite) TestApproveWithoutDocuments() {
	p := s.createProfile(s.ownerToken, types.ProfileTypeBusiness)
	rec := s.do(http.MethodPatch, fmt.Sprintf("/profiles/%d", p.ID), s.ownerToken, UpdateProfileRequest{GeneralInfo: map[string]string{
		types.FieldBusinessName: "Acme LLC",
		types.FieldAddress:      "1 Industrial Way, Springfield",
		types.FieldPhone:        "5551234567",
		types.FieldEmail:        "ops@acme.test",
		types.FieldEIN:          "12-3456789",
	}})
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, fmt.Sprintf("/profiles/%d/verify", p.ID), s.ownerToken, nil).Code)
	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, fmt.Sprintf("/profiles/%d/submit", p.ID), s.ownerToken, nil).Code)

	rec = s.do(http.MethodPost, fmt.Sprintf("/admin/profiles/%d/decision", p.ID), s.adminToken, DecisionRequest{Decision: types.DecisionApprove})
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
	var body ErrorResponse
	s.decode(rec, &body)
	s.Equal("IncompleteDocumentsError", body.Kind)
	s.Equal([]any{"EIN", "Driver's License", "Business License"}, body.Details)
}

func (s *HandlerSuite) TestDocumentRoutes() {
	p := s.createProfile(s.ownerToken, types.ProfileTypePersonal)

	rec := s.upload(s.ownerToken, p.ID, map[string]string{"SSN": "ssn.txt"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var docs DocumentsResponse
	s.decode(rec, &docs)
	s.Require().Len(docs.Result.Added, 1)
	docID := docs.Result.Added[0].ID

	rec = s.do(http.MethodGet, fmt.Sprintf("/documents/%d/content", docID), s.adminToken, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("content of ssn.txt", rec.Body.String())
	s.True(strings.HasPrefix(rec.Header().Get("Content-Type"), "application/octet-stream") ||
		strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	s.Contains(rec.Header().Get("Content-Disposition"), "ssn.txt")

	rec = s.do(http.MethodGet, fmt.Sprintf("/documents/%d/content", docID), s.otherToken, nil)
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.upload(s.ownerToken, p.ID, nil, 9999)
	s.Equal(http.StatusNotFound, rec.Code)

	rec = s.upload(s.ownerToken, p.ID, nil)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodDelete, fmt.Sprintf("/documents/%d", docID), s.ownerToken, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.decode(rec, &p)
	s.Empty(p.Documents)

	rec = s.do(http.MethodDelete, fmt.Sprintf("/documents/%d", docID), s.ownerToken, nil)
	s.Equal(http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodDelete, "/documents/abc", s.ownerToken, nil)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestListAndDeleteProfiles() {
	first := s.createProfile(s.ownerToken, types.ProfileTypePersonal)
	s.createProfile(s.ownerToken, types.ProfileTypeBusiness)
	s.createProfile(s.otherToken, types.ProfileTypePersonal)

	rec := s.do(http.MethodGet, "/profiles/", s.ownerToken, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var list struct {
		Items []profileBody `json:"items"`
	}
	s.decode(rec, &list)
	s.Len(list.Items, 2)

	rec = s.do(http.MethodPost, "/profiles/", s.ownerToken, CreateProfileRequest{Type: "nonprofit"})
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("ValidationError", s.errorKind(rec))

	rec = s.do(http.MethodDelete, fmt.Sprintf("/profiles/%d", first.ID), s.otherToken, nil)
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodDelete, fmt.Sprintf("/profiles/%d", first.ID), s.ownerToken, nil)
	s.Equal(http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, fmt.Sprintf("/profiles/%d", first.ID), s.ownerToken, nil)
	s.Equal(http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/admin/profiles?status=bogus", s.adminToken, nil)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func TestParseRemoveIDs(t *testing.T) {
	ids, err := parseRemoveIDs([]string{"1, 2", "3", ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fmt.Sprint(ids) != "[1 2 3]" {
		t.Fatalf("unexpected ids: %v", ids)
	}
	if _, err := parseRemoveIDs([]string{"x"}); err == nil {
		t.Fatal("expected error for non-numeric id")
	}
}
