package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/edugen-studio/internal/models"
	appErrors "github.com/noah-isme/edugen-studio/pkg/errors"
	"github.com/noah-isme/edugen-studio/pkg/export"
	"github.com/noah-isme/edugen-studio/pkg/storage"
)

func newExportServiceForTest(t *testing.T) *ExportService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	cfg := ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}
	return NewExportService(store, signer, cfg, zap.NewNop(), export.NewCSVExporter(), export.NewPDFExporter())
}

func reviewForExport(t *testing.T) *models.Review {
	t.Helper()
	bundle, err := NormalizeBundle([]byte(`{
		"qcm": "[{\"question\":\"Capital of France?\",\"options\":[\"Lyon\",\"Paris\"],\"correctAnswer\":1}]",
		"exercises": "[{\"statement\": broken",
		"summary": [{"content": "Paris has been the capital since 987."}]
	}`))
	require.NoError(t, err)
	review := RenderBundle(bundle)
	review.Request = &models.GenerationRequest{Subject: "French cities", GradeLevel: models.GradePrimary, Difficulty: 2, Quantity: 1}
	review.GeneratedAt = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	return &review
}

func TestExportServiceCSV(t *testing.T) {
	svc := newExportServiceForTest(t)

	result, err := svc.Export(context.Background(), reviewForExport(t), models.ExportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, models.ExportFormatCSV, result.Format)
	assert.Equal(t, "French_cities_20240506_070809.csv", result.Filename)
	assert.True(t, strings.HasPrefix(result.URL, "/api/v1/export/"))

	token := strings.TrimPrefix(result.URL, "/api/v1/export/")
	relPath, err := svc.Resolve(token)
	require.NoError(t, err)
	assert.Equal(t, result.RelativePath, relPath)

	file, err := svc.Open(relPath)
	require.NoError(t, err)
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 4)
	assert.Equal(t, csvHeaders, records[0])
	assert.Equal(t, []string{"QCM", "1", "Capital of France?", "Lyon | Paris", "Paris"}, records[1])
	assert.Equal(t, "Exercises", records[2][0])
	assert.Contains(t, records[2][3], "unable to display this content")
	assert.Equal(t, []string{"Summary sheets", "1", "", "Paris has been the capital since 987.", ""}, records[3])
}

func TestExportServicePDF(t *testing.T) {
	svc := newExportServiceForTest(t)

	result, err := svc.Export(context.Background(), reviewForExport(t), "")
	require.NoError(t, err)
	assert.Equal(t, models.ExportFormatPDF, result.Format)

	file, err := svc.Open(result.RelativePath)
	require.NoError(t, err)
	defer file.Close()
	data, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))
}

func TestExportServiceRejectsUnknownFormat(t *testing.T) {
	svc := newExportServiceForTest(t)
	_, err := svc.Export(context.Background(), reviewForExport(t), "docx")
	require.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Export(context.Background(), nil, models.ExportFormatPDF)
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestExportServiceResolveRejectsTamperedToken(t *testing.T) {
	svc := newExportServiceForTest(t)
	_, err := svc.Resolve("not-a-token")
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestExportServiceUnknownBlockIsDumped(t *testing.T) {
	review := RenderBundle(models.ContentBundle{
		Order:  []models.ContentType{"flashcards"},
		Blocks: map[models.ContentType]json.RawMessage{"flashcards": json.RawMessage(`{"front":"a"}`)},
	})
	dataset := buildReviewDataset(&review)
	require.Len(t, dataset.Rows, 1)
	assert.Equal(t, "flashcards", dataset.Rows[0]["Content type"])
	assert.Contains(t, dataset.Rows[0]["Details"], `"front": "a"`)
}
