package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/edugen-studio/internal/models"
	"github.com/noah-isme/edugen-studio/pkg/jobs"
)

// JournalWriter records downloads in the background so a slow journal
// database never delays a download. Listing goes straight to the store.
type JournalWriter struct {
	store  DownloadJournal
	queue  *jobs.Queue[models.JournalEntry]
	logger *zap.Logger
}

// NewJournalWriter wraps store with a retrying write queue. Call Start before use and Stop on shutdown.
func NewJournalWriter(store DownloadJournal, retries int, retryDelay time.Duration, logger *zap.Logger) *JournalWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &JournalWriter{store: store, logger: logger}
	w.queue = jobs.NewQueue[models.JournalEntry]("download_journal", w.write, jobs.QueueConfig{
		Workers:    1,
		BufferSize: 256,
		MaxRetries: retries,
		RetryDelay: retryDelay,
		Logger:     logger,
	})
	return w
}

// Start launches the background writer.
func (w *JournalWriter) Start(ctx context.Context) {
	w.queue.Start(ctx)
}

// Stop flushes queued entries and stops the writer.
func (w *JournalWriter) Stop() {
	w.queue.Stop()
}

// Record queues entry for writing.
func (w *JournalWriter) Record(_ context.Context, entry *models.JournalEntry) error {
	return w.queue.Enqueue(*entry)
}

// List reads the journal from the store.
func (w *JournalWriter) List(ctx context.Context, limit int) ([]models.JournalEntry, error) {
	return w.store.List(ctx, limit)
}

func (w *JournalWriter) write(ctx context.Context, entry models.JournalEntry) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return w.store.Record(ctx, &entry)
}
