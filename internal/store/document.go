package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/intakedesk/apiserver/types"
)

const documentColumns = `id, profile_id, category, name, content_type, size, locator, uploaded_at`

// DocumentRepository handles persistence for profile documents.
type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func scanDocument(row rowScanner) (types.Document, error) {
	var doc types.Document
	err := row.Scan(
		&doc.ID,
		&doc.ProfileID,
		&doc.Category,
		&doc.Name,
		&doc.ContentType,
		&doc.Size,
		&doc.Locator,
		&doc.UploadedAt,
	)
	return doc, err
}

func (r *DocumentRepository) GetDocument(ctx context.Context, id int) (types.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Document{}, ErrNotFound
		}
		return types.Document{}, err
	}
	return doc, nil
}

// ListByProfile returns a profile's documents, newest upload first.
func (r *DocumentRepository) ListByProfile(ctx context.Context, profileID int) ([]types.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE profile_id = $1 ORDER BY uploaded_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]types.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *DocumentRepository) listByProfiles(ctx context.Context, profileIDs []int64) (map[int][]types.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE profile_id = ANY($1) ORDER BY uploaded_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(profileIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byProfile := make(map[int][]types.Document, len(profileIDs))
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		byProfile[doc.ProfileID] = append(byProfile[doc.ProfileID], doc)
	}
	return byProfile, rows.Err()
}

func (r *DocumentRepository) CreateDocument(ctx context.Context, doc types.Document) (types.Document, error) {
	const query = `
		INSERT INTO documents (profile_id, category, name, content_type, size, locator, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		doc.ProfileID,
		doc.Category,
		doc.Name,
		doc.ContentType,
		doc.Size,
		doc.Locator,
		doc.UploadedAt,
	).Scan(&doc.ID); err != nil {
		return types.Document{}, err
	}
	return doc, nil
}

func (r *DocumentRepository) DeleteDocument(ctx context.Context, id int) error {
	const query = `DELETE FROM documents WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
