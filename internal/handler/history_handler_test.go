package handler

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/edugen-studio/internal/models"
	"github.com/noah-isme/edugen-studio/internal/service"
	appErrors "github.com/noah-isme/edugen-studio/pkg/errors"
	"github.com/noah-isme/edugen-studio/pkg/storage"
)

type historyServiceMock struct {
	view    models.HistoryView
	current models.HistoryView
}

func (m historyServiceMock) Fetch(context.Context) models.HistoryView {
	return m.view
}

func (m historyServiceMock) Current() models.HistoryView {
	return m.current
}

type documentSourceMock struct {
	err error
}

func (m documentSourceMock) Download(_ context.Context, id string) (*models.DownloadDescriptor, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.DownloadDescriptor{
		RecordID: id,
		Filename: "fiche révision.pdf",
		Body:     io.NopCloser(strings.NewReader("%PDF-1.4")),
	}, nil
}

type gatedHistorySource struct {
	entered chan struct{}
	gate    chan struct{}
}

func (s *gatedHistorySource) History(context.Context) ([]models.HistoryRecord, error) {
	s.entered <- struct{}{}
	<-s.gate
	return []models.HistoryRecord{{ID: "1", Subject: "Volcanoes"}}, nil
}

func newDownloadServiceForTest(t *testing.T, source service.DocumentSource) *service.DownloadService {
	t.Helper()
	spool, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return service.NewDownloadService(source, spool, nil, nil, zap.NewNop())
}

func TestHistoryHandlerList(t *testing.T) {
	view := models.HistoryView{State: models.HistoryError, Records: []models.HistoryRecord{}, Message: "Erreur lors de la récupération de l'historique"}
	handler := NewHistoryHandler(historyServiceMock{view: view}, nil)

	c, w := newGinContext(http.MethodGet, "/history", nil)
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.Contains(t, string(env.Data), `"state":"error"`)
	assert.Contains(t, string(env.Data), "Erreur lors de la récupération de l'historique")
	assert.EqualValues(t, 0, env.Meta["count"])
}

func TestHistoryHandlerStateReportsLoading(t *testing.T) {
	source := &gatedHistorySource{entered: make(chan struct{}, 1), gate: make(chan struct{})}
	history := service.NewHistoryService(source, zap.NewNop())
	handler := NewHistoryHandler(history, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c, _ := newGinContext(http.MethodGet, "/history", nil)
		handler.List(c)
	}()
	<-source.entered

	c, w := newGinContext(http.MethodGet, "/history/state", nil)
	handler.State(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decodeEnvelope(t, w).Data), `"state":"loading"`)

	close(source.gate)
	<-done

	c, w = newGinContext(http.MethodGet, "/history/state", nil)
	handler.State(c)
	env := decodeEnvelope(t, w)
	assert.Contains(t, string(env.Data), `"state":"success"`)
	assert.EqualValues(t, 1, env.Meta["count"])
}

func TestHistoryHandlerDownloadStreamsAttachment(t *testing.T) {
	handler := NewHistoryHandler(nil, newDownloadServiceForTest(t, documentSourceMock{}))

	c, w := newGinContext(http.MethodGet, "/history/7/download", nil)
	c.Params = gin.Params{{Key: "id", Value: "7"}}
	handler.Download(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF-1.4", w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "filename*=utf-8''fiche%20r%C3%A9vision.pdf")
}

func TestHistoryHandlerDownloadFailure(t *testing.T) {
	source := documentSourceMock{err: appErrors.Clone(appErrors.ErrNetwork, "Contenu non trouvé")}
	handler := NewHistoryHandler(nil, newDownloadServiceForTest(t, source))

	c, w := newGinContext(http.MethodGet, "/history/404/download", nil)
	c.Params = gin.Params{{Key: "id", Value: "404"}}
	handler.Download(c)

	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "Contenu non trouvé", decodeEnvelope(t, w).Error.Message)
}

func TestHistoryHandlerJournal(t *testing.T) {
	handler := NewHistoryHandler(nil, newDownloadServiceForTest(t, documentSourceMock{}))

	c, w := newGinContext(http.MethodGet, "/downloads?limit=abc", nil)
	handler.Journal(c)
	require.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodGet, "/downloads?limit=5", nil)
	handler.Journal(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", string(decodeEnvelope(t, w).Data))
}
