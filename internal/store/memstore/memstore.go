// Package memstore is an in-memory record store with the same contract as
// the PostgreSQL repositories. Reads reflect prior writes immediately.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/intakedesk/apiserver/internal/store"
	"github.com/intakedesk/apiserver/types"
)

// Store holds users, profiles, documents and admin actions.
type Store struct {
	mu        sync.RWMutex
	nextID    int
	users     map[int]types.User
	profiles  map[int]types.Profile
	documents map[int]types.Document
	actions   []types.AdminAction
}

func New() *Store {
	return &Store{
		users:     make(map[int]types.User),
		profiles:  make(map[int]types.Profile),
		documents: make(map[int]types.Document),
	}
}

func (s *Store) id() int {
	s.nextID++
	return s.nextID
}

// Users returns a view implementing the user repository.
func (s *Store) Users() *Users { return &Users{s: s} }

// Profiles returns a view implementing the profile repository.
func (s *Store) Profiles() *Profiles { return &Profiles{s: s} }

// Documents returns a view implementing the document repository.
func (s *Store) Documents() *Documents { return &Documents{s: s} }

// AdminActions returns a view implementing the audit log.
func (s *Store) AdminActions() *AdminActions { return &AdminActions{s: s} }

type Users struct{ s *Store }

func (u *Users) GetByID(_ context.Context, id int) (types.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	user, ok := u.s.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (u *Users) GetByEmail(_ context.Context, email string) (types.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	for _, user := range u.s.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (u *Users) Create(_ context.Context, user types.User) (types.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, existing := range u.s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return types.User{}, store.ErrConflict
		}
	}
	now := time.Now()
	user.ID = u.s.id()
	user.CreatedAt = now
	user.UpdatedAt = now
	u.s.users[user.ID] = user
	return user, nil
}

func (u *Users) SetRole(_ context.Context, email string, role types.Role) (types.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for id, user := range u.s.users {
		if strings.EqualFold(user.Email, email) {
			user.Role = role
			user.UpdatedAt = time.Now()
			u.s.users[id] = user
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

type Profiles struct{ s *Store }

func cloneProfile(p types.Profile) types.Profile {
	if p.Info != nil {
		p.Info = p.Info.Clone()
	}
	p.Documents = nil
	return p
}

// documentsFor must be called with the lock held.
func (s *Store) documentsFor(profileID int) []types.Document {
	docs := make([]types.Document, 0)
	for _, doc := range s.documents {
		if doc.ProfileID == profileID {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].UploadedAt.Equal(docs[j].UploadedAt) {
			return docs[i].ID > docs[j].ID
		}
		return docs[i].UploadedAt.After(docs[j].UploadedAt)
	})
	return docs
}

func (p *Profiles) Get(_ context.Context, id int) (types.Profile, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	profile, ok := p.s.profiles[id]
	if !ok {
		return types.Profile{}, store.ErrNotFound
	}
	profile = cloneProfile(profile)
	profile.Documents = p.s.documentsFor(id)
	return profile, nil
}

func (p *Profiles) List(_ context.Context, filter store.ProfileFilter) ([]types.Profile, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	out := make([]types.Profile, 0)
	for _, profile := range p.s.profiles {
		if !filter.Match(profile) {
			continue
		}
		profile = cloneProfile(profile)
		profile.Documents = p.s.documentsFor(profile.ID)
		out = append(out, profile)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (p *Profiles) CountByStatus(_ context.Context) (map[types.Status]int, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	counts := make(map[types.Status]int)
	for _, profile := range p.s.profiles {
		counts[profile.Status]++
	}
	return counts, nil
}

func (p *Profiles) Create(_ context.Context, profile types.Profile) (types.Profile, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now()
	}
	profile.UpdatedAt = profile.CreatedAt
	profile.ID = p.s.id()
	p.s.profiles[profile.ID] = cloneProfile(profile)
	return profile, nil
}

func (p *Profiles) Update(_ context.Context, profile types.Profile) (types.Profile, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	existing, ok := p.s.profiles[profile.ID]
	if !ok {
		return types.Profile{}, store.ErrNotFound
	}
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = time.Now()
	}
	updated := cloneProfile(profile)
	updated.OwnerID = existing.OwnerID
	updated.Type = existing.Type
	updated.CreatedAt = existing.CreatedAt
	p.s.profiles[profile.ID] = updated
	return profile, nil
}

func (p *Profiles) Delete(_ context.Context, id int) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if _, ok := p.s.profiles[id]; !ok {
		return store.ErrNotFound
	}
	delete(p.s.profiles, id)
	for docID, doc := range p.s.documents {
		if doc.ProfileID == id {
			delete(p.s.documents, docID)
		}
	}
	return nil
}

type Documents struct{ s *Store }

func (d *Documents) GetDocument(_ context.Context, id int) (types.Document, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()
	doc, ok := d.s.documents[id]
	if !ok {
		return types.Document{}, store.ErrNotFound
	}
	return doc, nil
}

func (d *Documents) ListByProfile(_ context.Context, profileID int) ([]types.Document, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()
	return d.s.documentsFor(profileID), nil
}

func (d *Documents) CreateDocument(_ context.Context, doc types.Document) (types.Document, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	if _, ok := d.s.profiles[doc.ProfileID]; !ok {
		return types.Document{}, store.ErrNotFound
	}
	doc.ID = d.s.id()
	d.s.documents[doc.ID] = doc
	return doc, nil
}

func (d *Documents) DeleteDocument(_ context.Context, id int) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	if _, ok := d.s.documents[id]; !ok {
		return store.ErrNotFound
	}
	delete(d.s.documents, id)
	return nil
}

type AdminActions struct{ s *Store }

func (a *AdminActions) InsertAuditLog(_ context.Context, action types.AdminAction) (types.AdminAction, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now()
	}
	action.ID = a.s.id()
	a.s.actions = append(a.s.actions, action)
	return action, nil
}

func (a *AdminActions) ListByProfile(_ context.Context, profileID int) ([]types.AdminAction, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	out := make([]types.AdminAction, 0)
	for _, action := range a.s.actions {
		if action.ProfileID == profileID {
			out = append(out, action)
		}
	}
	return out, nil
}
