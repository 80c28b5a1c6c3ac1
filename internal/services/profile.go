package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/intakedesk/apiserver/internal/apperrors"
	"github.com/intakedesk/apiserver/internal/documents"
	"github.com/intakedesk/apiserver/internal/events"
	"github.com/intakedesk/apiserver/internal/lifecycle"
	"github.com/intakedesk/apiserver/internal/metrics"
	"github.com/intakedesk/apiserver/internal/policy"
	"github.com/intakedesk/apiserver/internal/storage"
	"github.com/intakedesk/apiserver/internal/store"
	"github.com/intakedesk/apiserver/types"
)

// ProfileRepository defines persistence operations for profiles.
type ProfileRepository interface {
	Get(ctx context.Context, id int) (types.Profile, error)
	List(ctx context.Context, filter store.ProfileFilter) ([]types.Profile, error)
	CountByStatus(ctx context.Context) (map[types.Status]int, error)
	Create(ctx context.Context, profile types.Profile) (types.Profile, error)
	Update(ctx context.Context, profile types.Profile) (types.Profile, error)
	Delete(ctx context.Context, id int) error
}

// DocumentRepository defines persistence operations for document records.
type DocumentRepository interface {
	GetDocument(ctx context.Context, id int) (types.Document, error)
	ListByProfile(ctx context.Context, profileID int) ([]types.Document, error)
	CreateDocument(ctx context.Context, doc types.Document) (types.Document, error)
	DeleteDocument(ctx context.Context, id int) error
}

// AuditLog is the append-only admin action log.
type AuditLog interface {
	InsertAuditLog(ctx context.Context, action types.AdminAction) (types.AdminAction, error)
	ListByProfile(ctx context.Context, profileID int) ([]types.AdminAction, error)
}

// BlobStore stores document files and reads them back.
type BlobStore interface {
	documents.BlobStore
	OpenFile(ctx context.Context, locator string) (io.ReadCloser, error)
}

// ProfileService runs profile operations: it authorizes the caller, applies
// the lifecycle step and persists the result.
type ProfileService struct {
	profiles    ProfileRepository
	docs        DocumentRepository
	audit       AuditLog
	blobs       BlobStore
	logger      *slog.Logger
	metrics     *metrics.Metrics
	events      *events.Publisher
	now         func() time.Time
	concurrency int
}

// ProfileOption configures a ProfileService.
type ProfileOption func(*ProfileService)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) ProfileOption {
	return func(s *ProfileService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records transitions and document changes on m.
func WithMetrics(m *metrics.Metrics) ProfileOption {
	return func(s *ProfileService) {
		s.metrics = m
	}
}

// WithEvents publishes lifecycle events through p.
func WithEvents(p *events.Publisher) ProfileOption {
	return func(s *ProfileService) {
		s.events = p
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ProfileOption {
	return func(s *ProfileService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCommitConcurrency bounds parallel store calls during a document commit.
func WithCommitConcurrency(n int) ProfileOption {
	return func(s *ProfileService) {
		s.concurrency = n
	}
}

func NewProfileService(
	profiles ProfileRepository,
	docs DocumentRepository,
	audit AuditLog,
	blobs BlobStore,
	opts ...ProfileOption,
) *ProfileService {
	s := &ProfileService{
		profiles: profiles,
		docs:     docs,
		audit:    audit,
		blobs:    blobs,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ProfileService) clock() time.Time {
	return s.now().UTC()
}

// fail counts a refused operation and passes err through.
func (s *ProfileService) fail(err error) error {
	if err != nil {
		s.metrics.ObserveRejection(string(apperrors.KindOf(err)))
	}
	return err
}

func storeErr(err error, what string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.NotFound(what)
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Wrap(err, apperrors.KindInternal, "failed to access "+what)
}

func (s *ProfileService) load(ctx context.Context, id int) (types.Profile, error) {
	p, err := s.profiles.Get(ctx, id)
	if err != nil {
		return types.Profile{}, storeErr(err, "profile")
	}
	return p, nil
}

func (s *ProfileService) save(ctx context.Context, p types.Profile) (types.Profile, error) {
	docs := p.Documents
	saved, err := s.profiles.Update(ctx, p)
	if err != nil {
		return types.Profile{}, storeErr(err, "profile")
	}
	saved.Documents = docs
	return saved, nil
}

// Create starts a draft profile of type t owned by the caller.
func (s *ProfileService) Create(ctx context.Context, caller policy.Caller, t types.ProfileType) (types.Profile, error) {
	p, err := lifecycle.New(caller.UserID, t, s.clock())
	if err != nil {
		return types.Profile{}, s.fail(err)
	}
	created, err := s.profiles.Create(ctx, p)
	if err != nil {
		return types.Profile{}, storeErr(err, "profile")
	}
	s.metrics.IncProfilesCreated()
	s.logger.InfoContext(ctx, "profile created", "profile_id", created.ID, "owner_id", caller.UserID, "type", t)
	return created, nil
}

// Get returns a profile the caller may read.
func (s *ProfileService) Get(ctx context.Context, caller policy.Caller, id int) (types.Profile, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return types.Profile{}, s.fail(err)
	}
	if err := policy.AuthorizeRead(caller, p); err != nil {
		return types.Profile{}, s.fail(err)
	}
	return p, nil
}

// UpdateGeneralInfo merges fields into the profile's answers.
func (s *ProfileService) UpdateGeneralInfo(ctx context.Context, caller policy.Caller, id int, fields map[string]string) (types.Profile, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return types.Profile{}, s.fail(err)
	}
	if err := policy.AuthorizeMutateGeneralInfo(caller, p); err != nil {
		return types.Profile{}, s.fail(err)
	}
	if err := lifecycle.UpdateGeneralInfo(&p, fields, s.clock()); err != nil {
		return types.Profile{}, s.fail(err)
	}
	return s.save(ctx, p)
}

// Verify confirms that every required field is answered and sets the
// verified flag. The profile stays a draft until submitted.
func (s *ProfileService) Verify(ctx context.Context, caller policy.Caller, id int) (types.Profile, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return types.Profile{}, s.fail(err)
	}
	if err := policy.AuthorizeMutateGeneralInfo(caller, p); err != nil {
		return types.Profile{}, s.fail(err)
	}
	if err := lifecycle.MarkVerified(&p, s.clock()); err != nil {
		return types.Profile{}, s.fail(err)
	}
	saved, err := s.save(ctx, p)
	if err != nil {
		return types.Profile{}, err
	}
	s.logger.InfoContext(ctx, "profile verified", "profile_id", id, "owner_id", caller.UserID)
	return saved, nil
}

// Submit moves the caller's verified draft to pending review.
func (s *ProfileService) Submit(ctx context.Context, caller policy.Caller, id int) (types.Profile, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return types.Profile{}, s.fail(err)
	}
	if err := policy.AuthorizeSubmit(caller, p); err != nil {
		return types.Profile{}, s.fail(err)
	}
	from := p.Status
	if err := lifecycle.Submit(&p, s.clock()); err != nil {
		return types.Profile{}, s.fail(err)
	}
	saved, err := s.save(ctx, p)
	if err != nil {
		return types.Profile{}, err
	}
	s.transitioned(ctx, events.ProfileSubmitted, saved, caller.UserID, from, "")
	return saved, nil
}

// Decide applies an admin approval or rejection and appends the audit record.
func (s *ProfileService) Decide(ctx context.Context, caller policy.Caller, id int, decision types.Decision, notes string) (types.Profile, error) {
	target, err := lifecycle.DecisionTarget(decision)
	if err != nil {
		return types.Profile{}, s.fail(err)
	}
	p, err := s.load(ctx, id)
	if err != nil {
		return types.Profile{}, s.fail(err)
	}
	if err := policy.AuthorizeTransition(caller, p, target); err != nil {
		return types.Profile{}, s.fail(err)
	}
	before := p
	action, err := lifecycle.Decide(&p, decision, caller.UserID, notes, s.clock())
	if err != nil {
		return types.Profile{}, s.fail(err)
	}
	saved, err := s.record(ctx, before, p, action)
	if err != nil {
		return types.Profile{}, err
	}

	kind := events.ProfileApproved
	if decision == types.DecisionReject {
		kind = events.ProfileRejected
	}
	s.transitioned(ctx, kind, saved, caller.UserID, action.FromStatus, notes)
	return saved, nil
}

// Reopen is the admin override back to pending or draft.
func (s *ProfileService) Reopen(ctx context.Context, caller policy.Caller, id int, target types.Status, notes string) (types.Profile, error) {
	if err := lifecycle.ValidateReopenTarget(target); err != nil {
		return types.Profile{}, s.fail(err)
	}
	p, err := s.load(ctx, id)
	if err != nil {
		return types.Profile{}, s.fail(err)
	}
	if err := policy.AuthorizeTransition(caller, p, target); err != nil {
		return types.Profile{}, s.fail(err)
	}
	before := p
	action, err := lifecycle.Reopen(&p, target, caller.UserID, notes, s.clock())
	if err != nil {
		return types.Profile{}, s.fail(err)
	}
	saved, err := s.record(ctx, before, p, action)
	if err != nil {
		return types.Profile{}, err
	}
	s.transitioned(ctx, events.ProfileReopened, saved, caller.UserID, action.FromStatus, notes)
	return saved, nil
}

// record persists an admin transition and its audit entry. When the audit
// insert fails the profile is written back as before, so the decision can
// be retried and is logged exactly once. Concurrent decisions on one
// profile are last-write-wins on the status column.
func (s *ProfileService) record(ctx context.Context, before, p types.Profile, action types.AdminAction) (types.Profile, error) {
	saved, err := s.save(ctx, p)
	if err != nil {
		return types.Profile{}, err
	}
	if _, err := s.audit.InsertAuditLog(ctx, action); err != nil {
		s.logger.ErrorContext(ctx, "audit log insert failed",
			"profile_id", p.ID, "admin_id", action.AdminID, "action", action.Action, "error", err)
		if _, rbErr := s.save(ctx, before); rbErr != nil {
			s.logger.ErrorContext(ctx, "restore profile after audit failure",
				"profile_id", p.ID, "status", before.Status, "error", rbErr)
		}
		return types.Profile{}, apperrors.Wrap(err, apperrors.KindInternal, "failed to record admin action")
	}
	return saved, nil
}

func (s *ProfileService) transitioned(ctx context.Context, kind events.Type, p types.Profile, actorID int, from types.Status, notes string) {
	s.metrics.ObserveTransition(string(from), string(p.Status))
	s.logger.InfoContext(ctx, "profile status changed",
		"profile_id", p.ID, "actor_id", actorID, "from", from, "to", p.Status)
	s.events.Publish(ctx, events.Event{
		Type:       kind,
		ProfileID:  p.ID,
		OwnerID:    p.OwnerID,
		ActorID:    actorID,
		FromStatus: from,
		ToStatus:   p.Status,
		Notes:      notes,
		OccurredAt: p.UpdatedAt,
	})
}

// Delete removes a profile and its documents. Blob deletion is best
// effort; records cascade with the profile. Admin actions are kept.
func (s *ProfileService) Delete(ctx context.Context, caller policy.Caller, id int) error {
	p, err := s.load(ctx, id)
	if err != nil {
		return s.fail(err)
	}
	if err := policy.AuthorizeDelete(caller, p); err != nil {
		return s.fail(err)
	}
	for _, doc := range p.Documents {
		if doc.Locator == "" {
			continue
		}
		if err := s.blobs.DeleteFile(ctx, doc.Locator); err != nil {
			s.logger.WarnContext(ctx, "document blob delete failed",
				"profile_id", id, "document_id", doc.ID, "error", err)
		}
	}
	if err := s.profiles.Delete(ctx, id); err != nil {
		return storeErr(err, "profile")
	}
	s.logger.InfoContext(ctx, "profile deleted", "profile_id", id, "actor_id", caller.UserID)
	s.events.Publish(ctx, events.Event{
		Type:       events.ProfileDeleted,
		ProfileID:  id,
		OwnerID:    p.OwnerID,
		ActorID:    caller.UserID,
		FromStatus: p.Status,
		OccurredAt: s.clock(),
	})
	return nil
}

// ApplyDocuments stages files and marks removals on one batch, then
// commits it. On partial failure the returned profile reflects what did
// persist and the error is a StorageFailure whose details list the failed
// steps.
func (s *ProfileService) ApplyDocuments(
	ctx context.Context,
	caller policy.Caller,
	id int,
	files []documents.File,
	removeIDs []int,
) (types.Profile, documents.CommitResult, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return types.Profile{}, documents.CommitResult{}, s.fail(err)
	}
	if err := policy.AuthorizeMutateDocuments(caller, p); err != nil {
		return types.Profile{}, documents.CommitResult{}, s.fail(err)
	}

	batch := documents.NewBatch(p,
		documents.WithConcurrency(s.concurrency),
		documents.WithClock(s.clock),
	)
	for _, docID := range removeIDs {
		if err := batch.MarkForRemoval(docID); err != nil {
			return types.Profile{}, documents.CommitResult{}, s.fail(err)
		}
	}
	for _, f := range files {
		batch.Stage(f)
	}
	if batch.Empty() {
		return p, documents.CommitResult{Added: []types.Document{}, Removed: []int{}, Failed: []documents.Failure{}}, nil
	}

	result, commitErr := batch.Commit(ctx, s.docs, s.blobs)
	s.metrics.ObserveDocumentChanges(documents.OpAdd, "ok", len(result.Added))
	s.metrics.ObserveDocumentChanges(documents.OpRemove, "ok", len(result.Removed))
	for _, f := range result.Failed {
		s.metrics.ObserveDocumentChanges(f.Op, "failed", 1)
		s.logger.WarnContext(ctx, "document change failed",
			"profile_id", id, "actor_id", caller.UserID, "op", f.Op, "name", f.Name, "reason", f.Reason)
	}
	s.logger.InfoContext(ctx, "documents committed",
		"profile_id", id, "added", len(result.Added), "removed", len(result.Removed), "failed", len(result.Failed))

	docs, err := s.docs.ListByProfile(ctx, id)
	if err != nil {
		return types.Profile{}, result, storeErr(err, "documents")
	}
	p.Documents = docs
	if commitErr != nil {
		return p, result, s.fail(commitErr)
	}
	return p, result, nil
}

// RemoveDocument deletes one committed document.
func (s *ProfileService) RemoveDocument(ctx context.Context, caller policy.Caller, docID int) (types.Profile, error) {
	doc, err := s.docs.GetDocument(ctx, docID)
	if err != nil {
		return types.Profile{}, s.fail(storeErr(err, "document"))
	}
	p, _, err := s.ApplyDocuments(ctx, caller, doc.ProfileID, nil, []int{docID})
	return p, err
}

// OpenDocument returns a document the caller may read and a reader over
// its file. The caller closes the reader.
func (s *ProfileService) OpenDocument(ctx context.Context, caller policy.Caller, docID int) (types.Document, io.ReadCloser, error) {
	doc, err := s.docs.GetDocument(ctx, docID)
	if err != nil {
		return types.Document{}, nil, s.fail(storeErr(err, "document"))
	}
	p, err := s.load(ctx, doc.ProfileID)
	if err != nil {
		return types.Document{}, nil, s.fail(err)
	}
	if err := policy.AuthorizeRead(caller, p); err != nil {
		return types.Document{}, nil, s.fail(err)
	}
	rc, err := s.blobs.OpenFile(ctx, doc.Locator)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return types.Document{}, nil, apperrors.NotFound("document file")
		}
		return types.Document{}, nil, apperrors.Wrap(err, apperrors.KindStorageFailure, "failed to read document file")
	}
	return doc, rc, nil
}

// ListActions returns the audit log of a profile, oldest first. Admin only.
func (s *ProfileService) ListActions(ctx context.Context, caller policy.Caller, id int) ([]types.AdminAction, error) {
	if err := policy.AuthorizeAdmin(caller); err != nil {
		return nil, s.fail(err)
	}
	if _, err := s.load(ctx, id); err != nil {
		return nil, s.fail(err)
	}
	actions, err := s.audit.ListByProfile(ctx, id)
	if err != nil {
		return nil, storeErr(err, "admin actions")
	}
	return actions, nil
}
