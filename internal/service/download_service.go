package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/edugen-studio/internal/models"
	appErrors "github.com/noah-isme/edugen-studio/pkg/errors"
	"github.com/noah-isme/edugen-studio/pkg/storage"
)

const fallbackFilenameFormat = "content_%s.pdf"

// ResolveFilename picks the download filename from a Content-Disposition value,
// falling back to content_<id>.pdf. The result is always a bare file name.
func ResolveFilename(disposition, id string) string {
	fallback := fmt.Sprintf(fallbackFilenameFormat, id)
	disposition = strings.TrimSpace(disposition)
	if disposition == "" {
		return fallback
	}

	var name string
	if _, params, err := mime.ParseMediaType(disposition); err == nil {
		name = params["filename"]
	}
	if name == "" {
		// Servers do send unquoted names with spaces; read them the lenient way.
		if idx := strings.Index(strings.ToLower(disposition), "filename="); idx >= 0 {
			name = disposition[idx+len("filename="):]
			if end := strings.IndexByte(name, ';'); end >= 0 {
				name = name[:end]
			}
		}
	}

	name = strings.Trim(strings.TrimSpace(name), `"'`)
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "" || name == "." || name == "/" || name == ".." {
		return fallback
	}
	return name
}

// DocumentSource opens documents on the backend.
type DocumentSource interface {
	Download(ctx context.Context, id string) (*models.DownloadDescriptor, error)
}

// DownloadSink delivers a spooled document to the user. Returning an empty
// location with a nil error is a valid no-op delivery.
type DownloadSink interface {
	Deliver(ctx context.Context, filename string, file *os.File, size int64) (location string, err error)
}

// DownloadJournal records completed downloads.
type DownloadJournal interface {
	Record(ctx context.Context, entry *models.JournalEntry) error
	List(ctx context.Context, limit int) ([]models.JournalEntry, error)
}

// TempSpool hands out temporary files and removes them by name.
type TempSpool interface {
	CreateTemp(pattern string) (*os.File, error)
	Delete(name string) error
}

// DownloadService fetches documents and hands them to a sink through a scoped temporary file.
type DownloadService struct {
	source  DocumentSource
	spool   TempSpool
	journal DownloadJournal
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewDownloadService wires a download service. journal may be nil.
func NewDownloadService(source DocumentSource, spool TempSpool, journal DownloadJournal, metrics *MetricsService, logger *zap.Logger) *DownloadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DownloadService{
		source:  source,
		spool:   spool,
		journal: journal,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Download fetches the document for id and delivers it through sink.
// The temporary file is released exactly once, whatever the sink does.
func (s *DownloadService) Download(ctx context.Context, id string, sink DownloadSink) (*models.DownloadResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "record id is required")
	}
	if sink == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download sink not configured")
	}

	desc, err := s.source.Download(ctx, id)
	if err != nil {
		return nil, err
	}
	defer desc.Body.Close() //nolint:errcheck

	handle, size, err := s.acquire(desc.Body)
	if err != nil {
		s.logger.Warn("failed to spool document", zap.String("record_id", id), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrDownload.Code, appErrors.ErrDownload.Status, appErrors.ErrDownload.Message)
	}

	location, err := s.deliver(ctx, handle, sink, desc.Filename, size)
	if err != nil {
		s.logger.Warn("failed to deliver document", zap.String("record_id", id), zap.String("filename", desc.Filename), zap.Error(err))
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrDownload.Code, appErrors.ErrDownload.Status, appErrors.ErrDownload.Message)
	}

	result := &models.DownloadResult{
		RecordID:     id,
		Filename:     desc.Filename,
		SizeBytes:    size,
		Location:     location,
		DownloadedAt: s.now().UTC(),
	}
	s.metrics.RecordDownload(size)
	s.recordJournal(ctx, result)
	return result, nil
}

// Journal lists recorded downloads, newest first. Without a journal it returns an empty list.
func (s *DownloadService) Journal(ctx context.Context, limit int) ([]models.JournalEntry, error) {
	if s.journal == nil {
		return []models.JournalEntry{}, nil
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	start := time.Now()
	entries, err := s.journal.List(ctx, limit)
	s.metrics.ObserveDBQuery("journal_list", time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list downloads")
	}
	return entries, nil
}

func (s *DownloadService) deliver(ctx context.Context, handle *tempHandle, sink DownloadSink, filename string, size int64) (string, error) {
	defer handle.Release()
	return sink.Deliver(ctx, filename, handle.file, size)
}

func (s *DownloadService) acquire(body io.Reader) (*tempHandle, int64, error) {
	file, err := s.spool.CreateTemp("download-*.part")
	if err != nil {
		return nil, 0, err
	}
	handle := &tempHandle{file: file, spool: s.spool, logger: s.logger}

	size, err := io.Copy(file, body)
	if err != nil {
		handle.Release()
		return nil, 0, err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		handle.Release()
		return nil, 0, err
	}
	return handle, size, nil
}

func (s *DownloadService) recordJournal(ctx context.Context, result *models.DownloadResult) {
	if s.journal == nil {
		return
	}
	entry := &models.JournalEntry{
		ID:           uuid.NewString(),
		RecordID:     result.RecordID,
		Filename:     result.Filename,
		SizeBytes:    result.SizeBytes,
		DownloadedAt: result.DownloadedAt,
	}
	start := time.Now()
	err := s.journal.Record(ctx, entry)
	s.metrics.ObserveDBQuery("journal_record", time.Since(start))
	if err != nil {
		s.logger.Warn("failed to record download", zap.String("record_id", result.RecordID), zap.Error(err))
	}
}

// tempHandle is the temporary reference to a spooled download.
type tempHandle struct {
	file   *os.File
	spool  TempSpool
	logger *zap.Logger
	once   sync.Once
}

// Release closes and removes the file. Later calls do nothing.
func (h *tempHandle) Release() {
	h.once.Do(func() {
		name := filepath.Base(h.file.Name())
		_ = h.file.Close()
		if err := h.spool.Delete(name); err != nil {
			h.logger.Warn("failed to remove temporary download", zap.String("file", name), zap.Error(err))
		}
	})
}

// FileSink saves downloads into a directory, never overwriting earlier files.
type FileSink struct {
	store *storage.LocalStorage
}

// NewFileSink returns a sink writing into store.
func NewFileSink(store *storage.LocalStorage) *FileSink {
	return &FileSink{store: store}
}

// Deliver copies file into the sink directory and returns its path.
func (f *FileSink) Deliver(_ context.Context, filename string, file *os.File, _ int64) (string, error) {
	name := f.store.UniqueName(filename)
	if _, err := f.store.SaveStream(name, file); err != nil {
		return "", err
	}
	return f.store.Path(name), nil
}
