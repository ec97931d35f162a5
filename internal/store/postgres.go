package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"draftwise/api/internal/metrics"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

const documentColumns = `id, owner_id, title, content, version, word_count, reading_time, grade_level, language, writing_goal, updated_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var item Document
	err := row.Scan(
		&item.ID,
		&item.OwnerID,
		&item.Title,
		&item.Content,
		&item.Version,
		&item.WordCount,
		&item.ReadingTime,
		&item.GradeLevel,
		&item.Language,
		&item.WritingGoal,
		&item.UpdatedBy,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

// CreateDocument inserts item at version 1 and records that version in the
// history table.
func (s *PostgresStore) CreateDocument(ctx context.Context, item Document) (Document, error) {
	if item.Language == "" {
		item.Language = "en"
	}
	m := metrics.Compute(item.Content)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Document{}, fmt.Errorf("begin create document: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	created, err := scanDocument(tx.QueryRowContext(ctx, `
		INSERT INTO documents (id, owner_id, title, content, version, word_count, reading_time, grade_level, language, writing_goal, updated_by)
		VALUES ($1, $2, $3, $4, 1, $5, $6, $7, $8, $9, $2)
		RETURNING `+documentColumns,
		item.ID, item.OwnerID, item.Title, item.Content, m.WordCount, m.ReadingTime, m.GradeLevel, item.Language, item.WritingGoal,
	))
	if err != nil {
		return Document{}, fmt.Errorf("insert document: %w", err)
	}
	if err := insertVersion(ctx, tx, created.ID, created.Version, created.Content, created.WordCount, created.OwnerID); err != nil {
		return Document{}, err
	}
	if err := tx.Commit(); err != nil {
		return Document{}, fmt.Errorf("commit create document: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	item, err := scanDocument(s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1`, documentID))
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("%w: document %s", ErrNotFound, documentID)
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	return item, nil
}

// ListDocuments returns documents most recently updated first. An empty
// ownerID lists every document.
func (s *PostgresStore) ListDocuments(ctx context.Context, ownerID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE ($1 = '' OR owner_id = $1)
		ORDER BY updated_at DESC, id ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		item, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

type SaveInput struct {
	DocumentID  string
	Content     string
	BaseVersion int64
	Metrics     metrics.Metrics
	SavedBy     string
}

// SaveContent writes new content on top of BaseVersion. The row is locked for
// the duration of the check so two writers cannot both pass it; a mismatch
// returns *ConflictError carrying the stored document.
func (s *PostgresStore) SaveContent(ctx context.Context, in SaveInput) (Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Document{}, fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanDocument(tx.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1 FOR UPDATE`, in.DocumentID))
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("%w: document %s", ErrNotFound, in.DocumentID)
	}
	if err != nil {
		return Document{}, fmt.Errorf("lock document: %w", err)
	}
	if current.Version != in.BaseVersion {
		return Document{}, &ConflictError{BaseVersion: in.BaseVersion, Current: current}
	}

	saved, err := scanDocument(tx.QueryRowContext(ctx, `
		UPDATE documents
		SET content=$2, version=version+1, word_count=$3, reading_time=$4, grade_level=$5, updated_by=$6, updated_at=NOW()
		WHERE id=$1
		RETURNING `+documentColumns,
		in.DocumentID, in.Content, in.Metrics.WordCount, in.Metrics.ReadingTime, in.Metrics.GradeLevel, in.SavedBy,
	))
	if err != nil {
		return Document{}, fmt.Errorf("update document content: %w", err)
	}
	if err := insertVersion(ctx, tx, saved.ID, saved.Version, saved.Content, saved.WordCount, in.SavedBy); err != nil {
		return Document{}, err
	}
	if err := tx.Commit(); err != nil {
		return Document{}, fmt.Errorf("commit save: %w", err)
	}
	return saved, nil
}

func insertVersion(ctx context.Context, tx *sql.Tx, documentID string, version int64, content string, wordCount int, savedBy string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO document_versions (document_id, version, content, word_count, saved_by)
		VALUES ($1, $2, $3, $4, $5)
	`, documentID, version, content, wordCount, savedBy)
	if err != nil {
		return fmt.Errorf("insert document version: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListVersions(ctx context.Context, documentID string, limit int) ([]DocumentVersion, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, version, content, word_count, saved_by, created_at
		FROM document_versions
		WHERE document_id=$1
		ORDER BY version DESC
		LIMIT $2
	`, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	items := make([]DocumentVersion, 0)
	for rows.Next() {
		var item DocumentVersion
		if err := rows.Scan(&item.DocumentID, &item.Version, &item.Content, &item.WordCount, &item.SavedBy, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetVersion(ctx context.Context, documentID string, version int64) (DocumentVersion, error) {
	var item DocumentVersion
	err := s.db.QueryRowContext(ctx, `
		SELECT document_id, version, content, word_count, saved_by, created_at
		FROM document_versions
		WHERE document_id=$1 AND version=$2
	`, documentID, version).Scan(&item.DocumentID, &item.Version, &item.Content, &item.WordCount, &item.SavedBy, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return DocumentVersion{}, fmt.Errorf("%w: version %d of %s", ErrNotFound, version, documentID)
	}
	if err != nil {
		return DocumentVersion{}, fmt.Errorf("get version: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, documentID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id=$1`, documentID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: document %s", ErrNotFound, documentID)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
