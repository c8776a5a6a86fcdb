package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/edugen-studio/internal/models"
	"github.com/noah-isme/edugen-studio/pkg/config"
	appErrors "github.com/noah-isme/edugen-studio/pkg/errors"
	"github.com/noah-isme/edugen-studio/pkg/middleware/requestid"
)

func newBackendClientForTest(t *testing.T, handler http.HandlerFunc) *BackendClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewBackendClient(config.BackendConfig{
		BaseURL:           server.URL + "/",
		RequestTimeout:    time.Second,
		GenerationTimeout: time.Second,
	}, server.Client(), NewMetricsService(), zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestNewBackendClientRejectsBadURL(t *testing.T) {
	_, err := NewBackendClient(config.BackendConfig{BaseURL: "localhost:5000"}, nil, nil, nil)
	require.Error(t, err)
}

func TestBackendClientGenerate(t *testing.T) {
	var received map[string]any
	client := newBackendClientForTest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "req-1", r.Header.Get(requestid.HeaderKey))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"qcm":"[]"}`))
	})

	ctx := requestid.WithContext(context.Background(), "req-1")
	body, err := client.Generate(ctx, models.GenerationRequest{
		Subject:      "Fractions",
		GradeLevel:   models.GradePrimary,
		ContentTypes: models.NewContentTypeSet(models.ContentQCM),
		Difficulty:   3,
		Quantity:     2,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"qcm":"[]"}`, string(body))

	assert.Equal(t, "Fractions", received["subject"])
	assert.Equal(t, "primary", received["gradeLevel"])
	assert.Equal(t, map[string]any{
		"qcm": true, "exercises": false, "fillInTheBlanks": false, "summary": false, "conceptMap": false,
	}, received["contentTypes"])
}

func TestBackendClientErrorStatusCarriesBackendMessage(t *testing.T) {
	client := newBackendClientForTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": "model overloaded"}`))
	})

	_, err := client.Generate(context.Background(), models.GenerationRequest{})
	require.ErrorIs(t, err, appErrors.ErrNetwork)
	appErr := appErrors.FromError(err)
	assert.Equal(t, "model overloaded", appErr.Message)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
}

func TestBackendClientErrorStatusWithoutEnvelope(t *testing.T) {
	client := newBackendClientForTest(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := client.History(context.Background())
	require.ErrorIs(t, err, appErrors.ErrNetwork)
	assert.Equal(t, "backend responded with status 502", appErrors.FromError(err).Message)
}

func TestBackendClientTimeout(t *testing.T) {
	release := make(chan struct{})
	client := newBackendClientForTest(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	client.generationTimeout = 50 * time.Millisecond

	_, err := client.Generate(context.Background(), models.GenerationRequest{})
	require.ErrorIs(t, err, appErrors.ErrTimeout)
}

func TestBackendClientUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client, err := NewBackendClient(config.BackendConfig{BaseURL: url}, nil, nil, nil)
	require.NoError(t, err)
	_, err = client.History(context.Background())
	require.ErrorIs(t, err, appErrors.ErrNetwork)
	require.Error(t, client.Ping(context.Background()))
}

func TestBackendClientHistorySnakeCase(t *testing.T) {
	client := newBackendClientForTest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/history", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"id": 7, "subject": "Volcanoes", "grade_level": "upperSecondary",
			 "content_types": {"qcm": true, "summary": true, "exercises": false},
			 "created_at": "2024-03-04T10:11:12.123456"},
			{"id": "abc", "subject": "Rivers", "gradeLevel": "primary",
			 "contentTypes": ["conceptMap"], "createdAt": "2024-03-01T08:00:00Z"}
		]`))
	})

	records, err := client.History(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "7", records[0].ID)
	assert.Equal(t, "upperSecondary", records[0].GradeLevel)
	assert.Equal(t, []models.ContentType{models.ContentQCM, models.ContentSummary}, records[0].ContentTypes)
	assert.Equal(t, time.Date(2024, 3, 4, 10, 11, 12, 123456000, time.UTC), records[0].CreatedAt)

	assert.Equal(t, "abc", records[1].ID)
	assert.Equal(t, []models.ContentType{models.ContentConceptMap}, records[1].ContentTypes)
}

func TestBackendClientHistoryMalformed(t *testing.T) {
	client := newBackendClientForTest(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"records": []}`))
	})

	_, err := client.History(context.Background())
	require.ErrorIs(t, err, appErrors.ErrResponseFormat)
}

func TestBackendClientSave(t *testing.T) {
	var payload map[string]json.RawMessage
	client := newBackendClientForTest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/save", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		_, _ = w.Write([]byte(`{"message": "saved", "id": 3}`))
	})

	bundle := models.NewContentBundle()
	bundle.Set(models.ContentExercises, json.RawMessage(`"[{\"statement\":\"s\"}]"`))
	req := models.GenerationRequest{Subject: "Maths", ContentTypes: models.NewContentTypeSet(models.ContentExercises), Quantity: 1}

	require.NoError(t, client.Save(context.Background(), bundle, req))
	assert.JSONEq(t, `{"exercises":"[{\"statement\":\"s\"}]"}`, string(payload["content"]))
	assert.Contains(t, string(payload["formData"]), `"subject":"Maths"`)
}

func TestBackendClientDownload(t *testing.T) {
	client := newBackendClientForTest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/download-pdf/42", r.URL.Path)
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="photosynthesis.pdf"`)
		_, _ = w.Write([]byte("%PDF-1.4 body"))
	})

	desc, err := client.Download(context.Background(), "42")
	require.NoError(t, err)
	defer desc.Body.Close()

	assert.Equal(t, "photosynthesis.pdf", desc.Filename)
	assert.Equal(t, "application/pdf", desc.ContentType)
	data, err := io.ReadAll(desc.Body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 body", string(data))
}

func TestBackendClientDownloadMissingRecord(t *testing.T) {
	client := newBackendClientForTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "Contenu non trouvé"}`))
	})

	_, err := client.Download(context.Background(), "999")
	require.ErrorIs(t, err, appErrors.ErrNetwork)
	assert.Equal(t, "Contenu non trouvé", appErrors.FromError(err).Message)
}
