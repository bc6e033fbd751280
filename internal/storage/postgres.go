package storage

import (
	"context"
	_ "embed"
	"encoding/json"
	stderrors "errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cvcoach/internal/document"
	"cvcoach/internal/errors"
	"cvcoach/internal/suggestions"
)

//go:embed schema.sql
var schemaSQL string

// PostgresDocuments stores saved documents as JSONB rows.
type PostgresDocuments struct {
	pool *pgxpool.Pool
}

// ConnectPostgres opens a pool to databaseURL and verifies it.
func ConnectPostgres(ctx context.Context, databaseURL string, maxConns int32) (*PostgresDocuments, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "invalid database URL", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.NewNetworkError(errors.ErrCodeStorageFailed, "failed to connect to database", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.NewNetworkError(errors.ErrCodeStorageFailed, "failed to ping database", err)
	}
	return &PostgresDocuments{pool: pool}, nil
}

// Close closes the connection pool.
func (p *PostgresDocuments) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Ping reports whether the database is reachable.
func (p *PostgresDocuments) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Migrate creates the tables used by PostgresDocuments.
func (p *PostgresDocuments) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return errors.NewIOError(errors.ErrCodeStorageFailed, "failed to apply schema", err)
	}
	return nil
}

// SaveDocument inserts or replaces doc. Documents without an ID, or with
// an ID that is not a UUID, get a new one.
func (p *PostgresDocuments) SaveDocument(ctx context.Context, doc document.Document) (document.Document, error) {
	doc = doc.Clone()
	if _, err := uuid.Parse(doc.ID); err != nil {
		doc.ID = uuid.NewString()
	}

	content, err := json.Marshal(doc)
	if err != nil {
		return document.Document{}, errors.NewInternalError(errors.ErrCodeStorageFailed, "failed to marshal document", err)
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO cv_documents (id, content)
		 VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET content = $2, updated_at = NOW()`,
		doc.ID, content,
	)
	if err != nil {
		return document.Document{}, errors.NewIOError(errors.ErrCodeStorageFailed, "failed to save document", err).
			WithContext("document_id", doc.ID)
	}
	return doc, nil
}

// LoadDocument returns the document stored under id.
func (p *PostgresDocuments) LoadDocument(ctx context.Context, id string) (document.Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return document.Document{}, suggestions.ErrDocumentNotFound(id)
	}

	var content []byte
	err := p.pool.QueryRow(ctx, `SELECT content FROM cv_documents WHERE id = $1`, id).Scan(&content)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return document.Document{}, suggestions.ErrDocumentNotFound(id)
	}
	if err != nil {
		return document.Document{}, errors.NewIOError(errors.ErrCodeStorageFailed, "failed to load document", err).
			WithContext("document_id", id)
	}

	var doc document.Document
	if err := json.Unmarshal(content, &doc); err != nil {
		return document.Document{}, errors.NewInternalError(errors.ErrCodeStorageFailed, "failed to unmarshal document", err)
	}
	doc.ID = id
	return doc, nil
}
