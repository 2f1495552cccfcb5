package sqlite

import (
	"collabnotes-server/core"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const schema = `CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);`

type documentStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewDocumentStore(dataSourceName string) (core.DocumentStore, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer; one connection avoids "database is locked"
	// between debounced flushes and keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create documents table: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"driver":      driverName,
		"cgo_enabled": CGOEnabled,
	}).Debug("SQLite store ready")
	return &documentStore{db: db, now: time.Now}, nil
}

func (s *documentStore) Close() error {
	return s.db.Close()
}

func (s *documentStore) List(ctx context.Context) ([]*core.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, content, created_at, updated_at FROM documents ORDER BY updated_at DESC, id ASC")
	if err != nil {
		logrus.WithError(err).Error("Failed to list documents")
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			logrus.WithError(cerr).Warn("Failed to close document rows")
		}
	}()

	docs := make([]*core.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *documentStore) Get(ctx context.Context, id string) (*core.Document, error) {
	return s.get(ctx, s.db, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *documentStore) get(ctx context.Context, q queryRower, id string) (*core.Document, error) {
	log := logrus.WithField("document_id", id)
	log.Debug("Retrieving document by ID")

	row := q.QueryRowContext(ctx,
		"SELECT id, title, content, created_at, updated_at FROM documents WHERE id = ?", id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		log.Debug("Document with specified ID not found")
		return nil, fmt.Errorf("document %s: %w", id, core.ErrDocumentNotFound)
	}
	if err != nil {
		log.WithError(err).Error("Failed to retrieve document")
		return nil, err
	}
	return doc, nil
}

func (s *documentStore) Create(ctx context.Context, title, id string) (*core.Document, error) {
	if id == "" {
		return nil, fmt.Errorf("document id is required")
	}
	doc := core.NewDocument(id, title, s.now())
	log := logrus.WithField("document_id", id)

	result, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO documents (id, title, content, created_at, updated_at) VALUES (?, ?, '', ?, ?)",
		id, title, doc.CreatedAt.UnixMilli(), doc.UpdatedAt.UnixMilli())
	if err != nil {
		log.WithError(err).Error("Failed to create document")
		return nil, err
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if inserted == 0 {
		return nil, fmt.Errorf("document %s: %w", id, core.ErrDocumentExists)
	}

	log.Info("Document created successfully")
	return doc, nil
}

func (s *documentStore) Patch(ctx context.Context, id string, patch core.DocumentPatch) (*core.Document, error) {
	log := logrus.WithField("document_id", id)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		"UPDATE documents SET title = COALESCE(?, title), content = COALESCE(?, content), updated_at = ? WHERE id = ?",
		nullString(patch.Title), nullString(patch.Content), s.now().UnixMilli(), id)
	if err != nil {
		log.WithError(err).Error("Failed to patch document")
		return nil, err
	}
	updated, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if updated == 0 {
		return nil, fmt.Errorf("document %s: %w", id, core.ErrDocumentNotFound)
	}

	doc, err := s.get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return doc, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*core.Document, error) {
	var doc core.Document
	var createdAt, updatedAt int64
	if err := row.Scan(&doc.ID, &doc.Title, &doc.Content, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	doc.CreatedAt = time.UnixMilli(createdAt)
	doc.UpdatedAt = time.UnixMilli(updatedAt)
	return &doc, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
