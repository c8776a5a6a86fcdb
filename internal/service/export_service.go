package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/edugen-studio/internal/models"
	appErrors "github.com/noah-isme/edugen-studio/pkg/errors"
	"github.com/noah-isme/edugen-studio/pkg/export"
	"github.com/noah-isme/edugen-studio/pkg/storage"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(doc export.Document) ([]byte, error)
}

var csvHeaders = []string{"Content type", "Item", "Prompt", "Details", "Answer"}

// ExportService renders the current review into a local file and signs a link to it.
type ExportService struct {
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(storage fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		storage: storage,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
	}
}

// Export stores review in the requested format and returns a signed URL for it.
func (s *ExportService) Export(ctx context.Context, review *models.Review, format models.ExportFormat) (*models.ExportResult, error) {
	if review == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no review available")
	}
	s.sweep()

	var (
		payload []byte
		err     error
	)
	switch format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(buildReviewDataset(review))
	case models.ExportFormatPDF, "":
		format = models.ExportFormatPDF
		payload, err = s.pdf.Render(buildReviewDocument(review))
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	id := uuid.NewString()
	filename := buildExportFilename(review, format)
	relPath, err := s.storage.Save(id+"/"+filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(id, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export")
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Info("review exported", zap.String("export_id", id), zap.String("format", string(format)), zap.Int("bytes", len(payload)))
	return &models.ExportResult{
		ID:           id,
		Format:       format,
		Filename:     filename,
		RelativePath: relPath,
		URL:          fmt.Sprintf("%s/export/%s", prefix, token),
		ExpiresAt:    expiresAt,
	}, nil
}

// Resolve validates a signed token and returns the stored path it points to.
func (s *ExportService) Resolve(token string) (string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export link is invalid or expired")
	}
	return relPath, nil
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export not found")
	}
	return file, nil
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) sweep() {
	removed, err := s.Cleanup(0)
	if err != nil {
		s.logger.Warn("export cleanup failed", zap.Error(err))
		return
	}
	if len(removed) > 0 {
		s.logger.Debug("expired exports removed", zap.Int("count", len(removed)))
	}
}

func buildExportFilename(review *models.Review, format models.ExportFormat) string {
	subject := "content"
	if review.Request != nil {
		subject = sanitizeFilename(review.Request.Subject)
	}
	timestamp := review.GeneratedAt.UTC().Format("20060102_150405")
	return fmt.Sprintf("%s_%s.%s", subject, timestamp, format)
}

func sanitizeFilename(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "content"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func buildReviewDocument(review *models.Review) export.Document {
	doc := export.Document{Title: "Educational content"}
	if review.Request != nil {
		doc.Title = fmt.Sprintf("Educational content: %s", review.Request.Subject)
		doc.Subtitle = fmt.Sprintf("Level: %s - Difficulty %d/%d", review.Request.GradeLevel, review.Request.Difficulty, models.MaxDifficulty)
	}
	if review.Empty {
		doc.Sections = append(doc.Sections, export.Section{Heading: review.Message})
		return doc
	}
	for _, view := range review.Views {
		section := export.Section{Heading: view.Title}
		if view.Failed() {
			section.Notice = view.Error.Message
		} else {
			collector := &exportCollector{tag: view.Tag}
			view.Block.Accept(collector)
			section.Entries = collector.entries
		}
		doc.Sections = append(doc.Sections, section)
	}
	return doc
}

func buildReviewDataset(review *models.Review) export.Dataset {
	rows := make([]map[string]string, 0)
	for _, view := range review.Views {
		if view.Failed() {
			rows = append(rows, map[string]string{
				"Content type": view.Title,
				"Details":      view.Error.Message,
			})
			continue
		}
		collector := &exportCollector{tag: view.Tag}
		view.Block.Accept(collector)
		for _, row := range collector.rows {
			row["Content type"] = view.Title
			rows = append(rows, row)
		}
	}
	return export.Dataset{Headers: csvHeaders, Rows: rows}
}

// exportCollector flattens one block into PDF entries and CSV rows.
type exportCollector struct {
	tag     models.ContentType
	entries []export.Entry
	rows    []map[string]string
}

func (c *exportCollector) add(heading string, lines []string, row map[string]string) {
	c.entries = append(c.entries, export.Entry{Heading: heading, Lines: lines})
	row["Item"] = strconv.Itoa(len(c.rows) + 1)
	c.rows = append(c.rows, row)
}

func (c *exportCollector) VisitQCM(b *models.QCMBlock) {
	for i, q := range b.Questions {
		lines := make([]string, 0, len(q.Options))
		answer := ""
		for j, option := range q.Options {
			marker := ""
			if q.IsCorrect(j) {
				marker = " (correct)"
				answer = option
			}
			lines = append(lines, fmt.Sprintf("%c. %s%s", 'A'+rune(j%26), option, marker))
		}
		c.add(fmt.Sprintf("Question %d: %s", i+1, q.Question), lines, map[string]string{
			"Prompt":  q.Question,
			"Details": strings.Join(q.Options, " | "),
			"Answer":  answer,
		})
	}
}

func (c *exportCollector) VisitExercises(b *models.ExercisesBlock) {
	for i, ex := range b.Exercises {
		c.add(fmt.Sprintf("Exercise %d", i+1), []string{ex.Statement, "Solution: " + ex.Solution}, map[string]string{
			"Prompt": ex.Statement,
			"Answer": ex.Solution,
		})
	}
}

func (c *exportCollector) VisitFillInTheBlanks(b *models.FillInTheBlanksBlock) {
	for i, text := range b.Texts {
		c.add(fmt.Sprintf("Text %d", i+1), []string{text.Text, "Answers: " + strings.Join(text.Answers, ", ")}, map[string]string{
			"Prompt": text.Text,
			"Answer": strings.Join(text.Answers, ", "),
		})
	}
}

func (c *exportCollector) VisitSummary(b *models.SummaryBlock) {
	for i, sheet := range b.Summaries {
		c.add(fmt.Sprintf("Sheet %d", i+1), []string{sheet.Content}, map[string]string{
			"Details": sheet.Content,
		})
	}
}

func (c *exportCollector) VisitConceptMap(b *models.ConceptMapBlock) {
	for i, m := range b.Maps {
		c.add(fmt.Sprintf("Map %d", i+1), []string{m.Description}, map[string]string{
			"Details": m.Description,
		})
	}
}

func (c *exportCollector) VisitRaw(b *models.RawBlock) {
	c.add("", strings.Split(b.Dump, "\n"), map[string]string{
		"Details": b.Dump,
	})
}
