package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edugen-studio/internal/models"
)

const downloadJournalSchema = `CREATE TABLE IF NOT EXISTS download_journal (
	id UUID PRIMARY KEY,
	record_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	size_bytes BIGINT NOT NULL DEFAULT 0,
	downloaded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_download_journal_downloaded_at ON download_journal (downloaded_at DESC)`

// DownloadRepository persists the download journal.
type DownloadRepository struct {
	db *sqlx.DB
}

// NewDownloadRepository constructs the repository.
func NewDownloadRepository(db *sqlx.DB) *DownloadRepository {
	return &DownloadRepository{db: db}
}

// EnsureSchema creates the journal table when missing.
func (r *DownloadRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, downloadJournalSchema); err != nil {
		return fmt.Errorf("ensure download journal schema: %w", err)
	}
	return nil
}

// Record stores one completed download.
func (r *DownloadRepository) Record(ctx context.Context, entry *models.JournalEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.DownloadedAt.IsZero() {
		entry.DownloadedAt = time.Now().UTC()
	}
	const query = `INSERT INTO download_journal (id, record_id, filename, size_bytes, downloaded_at)
	VALUES (:id, :record_id, :filename, :size_bytes, :downloaded_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("record download: %w", err)
	}
	return nil
}

// List returns the latest downloads, newest first.
func (r *DownloadRepository) List(ctx context.Context, limit int) ([]models.JournalEntry, error) {
	const query = `SELECT id, record_id, filename, size_bytes, downloaded_at
	FROM download_journal ORDER BY downloaded_at DESC LIMIT $1`
	entries := []models.JournalEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("list downloads: %w", err)
	}
	return entries, nil
}
