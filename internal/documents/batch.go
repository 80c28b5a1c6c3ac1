// Package documents tracks the documents attached to a profile: which
// categories a profile type requires, and a staging batch that collects
// additions and removals before committing them to the record and blob
// stores.
package documents

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/intakedesk/apiserver/internal/apperrors"
	"github.com/intakedesk/apiserver/types"
)

const (
	stagedIDPrefix     = "new-"
	defaultConcurrency = 4

	OpAdd    = "add"
	OpRemove = "remove"
)

// RecordStore persists document records.
type RecordStore interface {
	CreateDocument(ctx context.Context, doc types.Document) (types.Document, error)
	DeleteDocument(ctx context.Context, id int) error
}

// BlobStore persists file contents and hands back opaque locators.
type BlobStore interface {
	PutFile(ctx context.Context, pathHint string, data []byte, contentType string) (string, error)
	DeleteFile(ctx context.Context, locator string) error
}

// File is an uploaded file waiting to be attached.
type File struct {
	Name        string
	Category    string
	ContentType string
	Data        []byte
}

// Staged is a file held in the batch, not yet persisted.
type Staged struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Category string    `json:"category"`
	Size     int64     `json:"size"`
	StagedAt time.Time `json:"staged_at"`

	file File
}

// Failure describes one commit step that did not complete.
type Failure struct {
	Op         string `json:"op"`
	StagedID   string `json:"staged_id,omitempty"`
	DocumentID int    `json:"document_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Reason     string `json:"reason"`
}

// CommitResult separates the steps that succeeded from those that failed.
// Successful additions are kept even when other steps fail.
type CommitResult struct {
	Added   []types.Document `json:"added"`
	Removed []int            `json:"removed"`
	Failed  []Failure        `json:"failed"`
}

// OK reports whether every step succeeded.
func (r CommitResult) OK() bool {
	return len(r.Failed) == 0
}

// Batch collects staged additions and marked removals for one profile.
// It is not safe for concurrent use; one request owns a batch.
type Batch struct {
	profileID   int
	committed   map[int]types.Document
	staged      []Staged
	removals    []int
	concurrency int
	now         func() time.Time
}

// Option configures a Batch.
type Option func(*Batch)

// WithConcurrency bounds how many store calls Commit runs at once.
func WithConcurrency(n int) Option {
	return func(b *Batch) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithClock overrides the time source used for staging and upload stamps.
func WithClock(now func() time.Time) Option {
	return func(b *Batch) {
		b.now = now
	}
}

// NewBatch starts an empty batch against the committed documents of p.
func NewBatch(p types.Profile, opts ...Option) *Batch {
	b := &Batch{
		profileID:   p.ID,
		committed:   make(map[int]types.Document, len(p.Documents)),
		concurrency: defaultConcurrency,
		now:         time.Now,
	}
	for _, doc := range p.Documents {
		b.committed[doc.ID] = doc
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Stage adds f to the pending set and returns its temporary id.
func (b *Batch) Stage(f File) string {
	id := stagedIDPrefix + uuid.NewString()
	b.staged = append(b.staged, Staged{
		ID:       id,
		Name:     f.Name,
		Category: f.Category,
		Size:     int64(len(f.Data)),
		StagedAt: b.now(),
		file:     f,
	})
	return id
}

// Unstage drops a staged file. It reports false when id is not staged.
func (b *Batch) Unstage(id string) bool {
	for i, s := range b.staged {
		if s.ID == id {
			b.staged = append(b.staged[:i], b.staged[i+1:]...)
			return true
		}
	}
	return false
}

// MarkForRemoval schedules a committed document for deletion on Commit.
func (b *Batch) MarkForRemoval(docID int) error {
	if _, ok := b.committed[docID]; !ok {
		return apperrors.NotFound("document")
	}
	for _, id := range b.removals {
		if id == docID {
			return nil
		}
	}
	b.removals = append(b.removals, docID)
	return nil
}

// Staged returns the files waiting to be committed.
func (b *Batch) Staged() []Staged {
	return append([]Staged(nil), b.staged...)
}

// Removals returns the document ids marked for removal.
func (b *Batch) Removals() []int {
	return append([]int(nil), b.removals...)
}

// Empty reports whether there is nothing to commit.
func (b *Batch) Empty() bool {
	return len(b.staged) == 0 && len(b.removals) == 0
}

// Preview returns the documents the profile would have after a fully
// successful commit, with staged files shown without ids or locators.
func (b *Batch) Preview() []types.Document {
	removed := make(map[int]bool, len(b.removals))
	for _, id := range b.removals {
		removed[id] = true
	}
	var docs []types.Document
	for _, s := range b.staged {
		docs = append(docs, types.Document{
			ProfileID: b.profileID,
			Category:  s.Category,
			Name:      s.Name,
			Size:      s.Size,
		})
	}
	var kept []types.Document
	for id, doc := range b.committed {
		if !removed[id] {
			kept = append(kept, doc)
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].UploadedAt.Equal(kept[j].UploadedAt) {
			return kept[i].ID > kept[j].ID
		}
		return kept[i].UploadedAt.After(kept[j].UploadedAt)
	})
	return append(docs, kept...)
}

// Commit executes every marked removal and persists every staged file.
// Each step is an independent store call; a failed step does not undo the
// others. Steps that succeeded are cleared from the batch, failed ones stay
// so calling Commit again retries only those. When any step fails the
// returned error is a StorageFailure carrying the result.
func (b *Batch) Commit(ctx context.Context, records RecordStore, blobs BlobStore) (CommitResult, error) {
	removed := make([]bool, len(b.removals))
	removeErrs := make([]error, len(b.removals))
	added := make([]*types.Document, len(b.staged))
	addErrs := make([]error, len(b.staged))

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(b.concurrency)

	for i, docID := range b.removals {
		doc := b.committed[docID]
		g.Go(func() error {
			err := removeDocument(ctx, records, blobs, doc)
			mu.Lock()
			removed[i] = err == nil
			removeErrs[i] = err
			mu.Unlock()
			return nil
		})
	}
	for i, s := range b.staged {
		g.Go(func() error {
			doc, err := b.addDocument(ctx, records, blobs, s)
			mu.Lock()
			if err == nil {
				added[i] = &doc
			}
			addErrs[i] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	result := CommitResult{
		Added:   []types.Document{},
		Removed: []int{},
		Failed:  []Failure{},
	}

	var keepRemovals []int
	for i, docID := range b.removals {
		if removed[i] {
			result.Removed = append(result.Removed, docID)
			delete(b.committed, docID)
			continue
		}
		keepRemovals = append(keepRemovals, docID)
		result.Failed = append(result.Failed, Failure{
			Op:         OpRemove,
			DocumentID: docID,
			Name:       b.committed[docID].Name,
			Reason:     removeErrs[i].Error(),
		})
	}

	var keepStaged []Staged
	for i, s := range b.staged {
		if doc := added[i]; doc != nil {
			result.Added = append(result.Added, *doc)
			b.committed[doc.ID] = *doc
			continue
		}
		keepStaged = append(keepStaged, s)
		result.Failed = append(result.Failed, Failure{
			Op:       OpAdd,
			StagedID: s.ID,
			Name:     s.Name,
			Reason:   addErrs[i].Error(),
		})
	}

	b.removals = keepRemovals
	b.staged = keepStaged

	if !result.OK() {
		return result, apperrors.Newf(apperrors.KindStorageFailure,
			"%d of %d document changes failed", len(result.Failed),
			len(result.Failed)+len(result.Added)+len(result.Removed)).WithDetails(result)
	}
	return result, nil
}

func (b *Batch) addDocument(ctx context.Context, records RecordStore, blobs BlobStore, s Staged) (types.Document, error) {
	contentType := s.file.ContentType
	if strings.TrimSpace(contentType) == "" {
		contentType = http.DetectContentType(s.file.Data)
	}

	locator, err := blobs.PutFile(ctx, b.pathHint(s.Name), s.file.Data, contentType)
	if err != nil {
		return types.Document{}, fmt.Errorf("upload %s: %w", s.Name, err)
	}

	doc, err := records.CreateDocument(ctx, types.Document{
		ProfileID:   b.profileID,
		Category:    s.Category,
		Name:        s.Name,
		ContentType: contentType,
		Size:        s.Size,
		Locator:     locator,
		UploadedAt:  b.now(),
	})
	if err != nil {
		// The blob has no record pointing at it; drop it so a retry starts clean.
		_ = blobs.DeleteFile(ctx, locator)
		return types.Document{}, fmt.Errorf("save %s: %w", s.Name, err)
	}
	return doc, nil
}

func removeDocument(ctx context.Context, records RecordStore, blobs BlobStore, doc types.Document) error {
	// Blob first: a failed record delete leaves the record in place, and
	// blob deletes are idempotent, so a retry converges.
	if doc.Locator != "" {
		if err := blobs.DeleteFile(ctx, doc.Locator); err != nil {
			return fmt.Errorf("delete file for document %d: %w", doc.ID, err)
		}
	}
	if err := records.DeleteDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete document %d: %w", doc.ID, err)
	}
	return nil
}

func (b *Batch) pathHint(name string) string {
	return fmt.Sprintf("%d/%s%s", b.profileID, uuid.NewString(), strings.ToLower(path.Ext(name)))
}
