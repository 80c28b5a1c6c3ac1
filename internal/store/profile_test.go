package store

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intakedesk/apiserver/types"
)

var (
	profileCols  = []string{"id", "user_id", "type", "status", "general_info", "verified", "verified_at", "verified_by", "created_at", "updated_at"}
	documentCols = []string{"id", "profile_id", "category", "name", "content_type", "size", "locator", "uploaded_at"}
	stamp        = time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

func TestProfileRepositoryGet(t *testing.T) {
	db, mock := newMock(t)
	repo := NewProfileRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM profiles WHERE id = $1`)).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(profileCols).
			AddRow(5, 1, "business", "verified", []byte(`{"businessName":"Acme","ein":"12-3456789"}`), true, stamp, 99, stamp, stamp))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM documents WHERE profile_id = $1`)).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(documentCols).
			AddRow(8, 5, "EIN", "ein.pdf", "application/pdf", 1024, "mem://docs/5/a.pdf", stamp))

	p, err := repo.Get(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, types.ProfileTypeBusiness, p.Type)
	assert.Equal(t, types.StatusVerified, p.Status)
	assert.Equal(t, 1, p.OwnerID)
	ein, _ := p.Info.Get(types.FieldEIN)
	assert.Equal(t, "12-3456789", ein)
	require.NotNil(t, p.VerifiedBy)
	assert.Equal(t, 99, *p.VerifiedBy)
	require.Len(t, p.Documents, 1)
	assert.Equal(t, int64(1024), p.Documents[0].Size)
}

func TestProfileRepositoryGetNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewProfileRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM profiles WHERE id = $1`)).
		WithArgs(7).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), 7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProfileRepositoryGetRejectsForeignFields(t *testing.T) {
	db, mock := newMock(t)
	repo := NewProfileRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM profiles WHERE id = $1`)).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(profileCols).
			AddRow(5, 1, "personal", "draft", []byte(`{"ein":"1"}`), false, nil, nil, stamp, stamp))

	_, err := repo.Get(context.Background(), 5)
	assert.Error(t, err)
}

func TestProfileRepositoryList(t *testing.T) {
	db, mock := newMock(t)
	repo := NewProfileRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM profiles WHERE status = $1 AND user_id = $2 ORDER BY created_at DESC, id DESC`)).
		WithArgs(types.StatusPending, 3).
		WillReturnRows(sqlmock.NewRows(profileCols).
			AddRow(2, 3, "personal", "pending", []byte(`{"name":"Ann"}`), true, nil, nil, stamp, stamp).
			AddRow(1, 3, "personal", "pending", []byte(`{}`), true, nil, nil, stamp, stamp))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM documents WHERE profile_id = ANY($1)`)).
		WithArgs(pq.Array([]int64{2, 1})).
		WillReturnRows(sqlmock.NewRows(documentCols).
			AddRow(4, 1, "SSN", "ssn.pdf", "application/pdf", 10, "mem://docs/1/x.pdf", stamp))

	profiles, err := repo.List(context.Background(), ProfileFilter{Status: types.StatusPending, OwnerID: 3})
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, 2, profiles[0].ID)
	assert.Empty(t, profiles[0].Documents)
	require.Len(t, profiles[1].Documents, 1)
	assert.Equal(t, 4, profiles[1].Documents[0].ID)
}

func TestProfileRepositoryListEmptySkipsDocuments(t *testing.T) {
	db, mock := newMock(t)
	repo := NewProfileRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM profiles ORDER BY created_at DESC, id DESC`)).
		WillReturnRows(sqlmock.NewRows(profileCols))

	profiles, err := repo.List(context.Background(), ProfileFilter{})
	require.NoError(t, err)
	assert.Empty(t, profiles)
}

func TestProfileRepositoryCountByStatus(t *testing.T) {
	db, mock := newMock(t)
	repo := NewProfileRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status, COUNT(1) FROM profiles GROUP BY status`)).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("draft", 4).
			AddRow("pending", 2))

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[types.Status]int{types.StatusDraft: 4, types.StatusPending: 2}, counts)
}

func TestProfileRepositoryCreate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewProfileRepository(db)

	info := types.NewGeneralInfo(types.ProfileTypePersonal)
	require.NoError(t, info.Set(types.FieldName, "Ann Lee"))

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO profiles`)).
		WithArgs(1, types.ProfileTypePersonal, types.StatusDraft, []byte(`{"name":"Ann Lee"}`), false, nil, nil, stamp, stamp).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))

	p, err := repo.Create(context.Background(), types.Profile{
		OwnerID:   1,
		Type:      types.ProfileTypePersonal,
		Status:    types.StatusDraft,
		Info:      info,
		CreatedAt: stamp,
	})
	require.NoError(t, err)
	assert.Equal(t, 12, p.ID)
	assert.Equal(t, stamp, p.UpdatedAt)
}

func TestProfileRepositoryUpdate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewProfileRepository(db)

	by := 9
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE profiles`)).
		WithArgs(types.StatusVerified, []byte(`{}`), true, stamp, 9, stamp, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE profiles`)).
		WithArgs(types.StatusDraft, []byte(`{}`), false, nil, nil, stamp, 4).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.Update(context.Background(), types.Profile{
		ID:         3,
		Type:       types.ProfileTypePersonal,
		Status:     types.StatusVerified,
		Verified:   true,
		VerifiedAt: &stamp,
		VerifiedBy: &by,
		UpdatedAt:  stamp,
	})
	require.NoError(t, err)

	_, err = repo.Update(context.Background(), types.Profile{ID: 4, Status: types.StatusDraft, UpdatedAt: stamp})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProfileRepositoryDelete(t *testing.T) {
	db, mock := newMock(t)
	repo := NewProfileRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM profiles WHERE id = $1`)).
		WithArgs(3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM profiles WHERE id = $1`)).
		WithArgs(3).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), 3))
	assert.ErrorIs(t, repo.Delete(context.Background(), 3), ErrNotFound)
}
