package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intakedesk/apiserver/types"
)

func TestDocumentRepositoryGetDocument(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDocumentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM documents WHERE id = $1`)).
		WithArgs(8).
		WillReturnRows(sqlmock.NewRows(documentCols).
			AddRow(8, 5, "SSN", "ssn.pdf", "application/pdf", 10, "mem://docs/5/a.pdf", stamp))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM documents WHERE id = $1`)).
		WithArgs(9).
		WillReturnError(sql.ErrNoRows)

	doc, err := repo.GetDocument(context.Background(), 8)
	require.NoError(t, err)
	assert.Equal(t, 5, doc.ProfileID)
	assert.Equal(t, "mem://docs/5/a.pdf", doc.Locator)

	_, err = repo.GetDocument(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocumentRepositoryCreateDocument(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDocumentRepository(db)

	doc := types.Document{
		ProfileID:   5,
		Category:    "SSN",
		Name:        "ssn.pdf",
		ContentType: "application/pdf",
		Size:        10,
		Locator:     "mem://docs/5/a.pdf",
		UploadedAt:  stamp,
	}
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO documents`)).
		WithArgs(5, "SSN", "ssn.pdf", "application/pdf", int64(10), "mem://docs/5/a.pdf", stamp).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(31))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO documents`)).
		WillReturnError(errors.New("connection reset"))

	created, err := repo.CreateDocument(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, 31, created.ID)

	_, err = repo.CreateDocument(context.Background(), doc)
	assert.Error(t, err)
}

func TestDocumentRepositoryDeleteDocument(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDocumentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM documents WHERE id = $1`)).
		WithArgs(31).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM documents WHERE id = $1`)).
		WithArgs(31).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.DeleteDocument(context.Background(), 31))
	assert.ErrorIs(t, repo.DeleteDocument(context.Background(), 31), ErrNotFound)
}
