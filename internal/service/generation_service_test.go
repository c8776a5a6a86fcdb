package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/edugen-studio/internal/models"
	appErrors "github.com/noah-isme/edugen-studio/pkg/errors"
)

type memoryWorkspaceRepo struct {
	mu  sync.Mutex
	raw []byte
}

func (r *memoryWorkspaceRepo) Load(context.Context) (*models.Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.raw == nil {
		return nil, appErrors.ErrCacheMiss
	}
	var ws models.Workspace
	if err := json.Unmarshal(r.raw, &ws); err != nil {
		return nil, err
	}
	return &ws, nil
}

func (r *memoryWorkspaceRepo) Save(_ context.Context, ws *models.Workspace, _ time.Duration) error {
	raw, err := json.Marshal(ws)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.raw = raw
	r.mu.Unlock()
	return nil
}

func (r *memoryWorkspaceRepo) Delete(context.Context) error {
	r.mu.Lock()
	r.raw = nil
	r.mu.Unlock()
	return nil
}

type generationBackendStub struct {
	mu       sync.Mutex
	body     string
	err      error
	calls    int
	started  chan struct{}
	release  chan struct{}
	saved    *models.ContentBundle
	savedReq *models.GenerationRequest
}

func (b *generationBackendStub) Generate(ctx context.Context, req models.GenerationRequest) ([]byte, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	if b.started != nil {
		b.started <- struct{}{}
	}
	if b.release != nil {
		<-b.release
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.err != nil {
		return nil, b.err
	}
	return []byte(b.body), nil
}

func (b *generationBackendStub) Save(_ context.Context, bundle models.ContentBundle, req models.GenerationRequest) error {
	b.saved = &bundle
	b.savedReq = &req
	return b.err
}

func newGenerationServiceForTest(backend GenerationBackend) *GenerationService {
	forms := NewFormService(validator.New(), zap.NewNop())
	workspace := NewWorkspaceService(&memoryWorkspaceRepo{}, NewMetricsService(), time.Hour, zap.NewNop())
	return NewGenerationService(forms, workspace, backend, NewMetricsService(), zap.NewNop())
}

func fillForm(t *testing.T, svc *GenerationService, quantity int, tags ...models.ContentType) {
	t.Helper()
	_, err := svc.ReplaceForm(context.Background(), models.FormInput{
		Subject:      "Photosynthesis",
		GradeLevel:   models.GradeUpperSecondary,
		ContentTypes: models.NewContentTypeSet(tags...),
		Difficulty:   4,
		Quantity:     quantity,
	})
	require.NoError(t, err)
}

func TestGenerationServiceGenerateRendersReview(t *testing.T) {
	backend := &generationBackendStub{body: `{"qcm":"[{\"question\":\"Q\",\"options\":[\"a\",\"b\"],\"correctAnswer\":0}]","summary":[{"content":"chlorophyll"}]}`}
	svc := newGenerationServiceForTest(backend)
	fillForm(t, svc, 2, models.ContentQCM, models.ContentSummary)

	review, form, err := svc.Generate(context.Background())
	require.NoError(t, err)
	require.Len(t, review.Views, 2)
	assert.Equal(t, models.ContentQCM, review.Views[0].Tag)
	assert.Equal(t, "Photosynthesis", review.Request.Subject)
	assert.False(t, form.Submitting)
	assert.False(t, form.QuotaWarning)

	stored, err := svc.Review(context.Background())
	require.NoError(t, err)
	assert.Equal(t, review.Views, stored.Views)
	assert.False(t, svc.Busy())
}

func TestGenerationServiceQuotaBlocksBackend(t *testing.T) {
	backend := &generationBackendStub{body: `{}`}
	svc := newGenerationServiceForTest(backend)
	fillForm(t, svc, 3, models.ContentQCM, models.ContentExercises)

	review, form, err := svc.Generate(context.Background())
	require.ErrorIs(t, err, appErrors.ErrQuotaExceeded)
	assert.Nil(t, review)
	assert.True(t, form.QuotaWarning)
	assert.Equal(t, 0, backend.calls)

	stored, err := svc.Form(context.Background())
	require.NoError(t, err)
	assert.True(t, stored.QuotaWarning)
}

func TestGenerationServiceValidationStoresFieldErrors(t *testing.T) {
	backend := &generationBackendStub{body: `{}`}
	svc := newGenerationServiceForTest(backend)

	_, form, err := svc.Generate(context.Background())
	require.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Len(t, form.Errors, 3)
	assert.Equal(t, 0, backend.calls)

	form, err = svc.ApplyFieldChange(context.Background(), FieldChange{Field: "subject", Value: json.RawMessage(`"Tides"`)})
	require.NoError(t, err)
	assert.Len(t, form.Errors, 2)
	assert.NotContains(t, form.Errors, "subject")
}

func TestGenerationServiceEmptyBundle(t *testing.T) {
	svc := newGenerationServiceForTest(&generationBackendStub{body: `{}`})
	fillForm(t, svc, 1, models.ContentConceptMap)

	review, _, err := svc.Generate(context.Background())
	require.NoError(t, err)
	assert.True(t, review.Empty)
	assert.Equal(t, "No content generated.", review.Message)
}

func TestGenerationServiceFailureKeepsPreviousReview(t *testing.T) {
	backend := &generationBackendStub{body: `{"exercises":[{"statement":"s","solution":"x"}]}`}
	svc := newGenerationServiceForTest(backend)
	fillForm(t, svc, 1, models.ContentExercises)

	first, _, err := svc.Generate(context.Background())
	require.NoError(t, err)

	backend.body = `not json at all`
	_, _, err = svc.Generate(context.Background())
	require.ErrorIs(t, err, appErrors.ErrResponseFormat)

	backend.err = appErrors.Clone(appErrors.ErrNetwork, "model overloaded")
	_, _, err = svc.Generate(context.Background())
	require.ErrorIs(t, err, appErrors.ErrNetwork)

	current, err := svc.Review(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Views, current.Views)
}

func TestGenerationServiceRefusesConcurrentGenerate(t *testing.T) {
	backend := &generationBackendStub{
		body:    `{"summary":[{"content":"c"}]}`,
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	svc := newGenerationServiceForTest(backend)
	fillForm(t, svc, 1, models.ContentSummary)

	done := make(chan error, 1)
	go func() {
		_, _, err := svc.Generate(context.Background())
		done <- err
	}()
	<-backend.started

	assert.True(t, svc.Busy())
	form, err := svc.Form(context.Background())
	require.NoError(t, err)
	assert.True(t, form.Submitting)

	_, _, err = svc.Generate(context.Background())
	require.ErrorIs(t, err, appErrors.ErrGenerationInProgress)

	close(backend.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, backend.calls)
	assert.False(t, svc.Busy())
}

func TestGenerationServiceDiscardFencesLateResponse(t *testing.T) {
	backend := &generationBackendStub{
		body:    `{"summary":[{"content":"late"}]}`,
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	svc := newGenerationServiceForTest(backend)
	fillForm(t, svc, 1, models.ContentSummary)

	done := make(chan *models.Review, 1)
	go func() {
		review, _, err := svc.Generate(context.Background())
		assert.NoError(t, err)
		done <- review
	}()
	<-backend.started

	require.NoError(t, svc.Discard(context.Background()))
	close(backend.release)
	assert.Nil(t, <-done)

	_, err := svc.Review(context.Background())
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestGenerationServiceCallerCancelDoesNotAbortGeneration(t *testing.T) {
	backend := &generationBackendStub{
		body:    `{"summary":[{"content":"still here"}]}`,
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	svc := newGenerationServiceForTest(backend)
	fillForm(t, svc, 1, models.ContentSummary)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := svc.Generate(ctx)
		done <- err
	}()
	<-backend.started

	cancel()
	close(backend.release)
	require.NoError(t, <-done)

	review, err := svc.Review(context.Background())
	require.NoError(t, err)
	view, ok := review.View(models.ContentSummary)
	require.True(t, ok)
	assert.Equal(t, "still here", view.Block.(*models.SummaryBlock).Summaries[0].Content)
}

func TestGenerationServiceResetDropsFormAndLateReview(t *testing.T) {
	backend := &generationBackendStub{
		body:    `{"summary":[{"content":"late"}]}`,
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	svc := newGenerationServiceForTest(backend)
	fillForm(t, svc, 1, models.ContentSummary)

	done := make(chan error, 1)
	go func() {
		_, _, err := svc.Generate(context.Background())
		done <- err
	}()
	<-backend.started

	form, err := svc.Reset(context.Background())
	require.NoError(t, err)
	assert.Empty(t, form.Input.Subject)
	assert.True(t, form.Submitting)

	close(backend.release)
	require.NoError(t, <-done)

	_, err = svc.Review(context.Background())
	require.ErrorIs(t, err, appErrors.ErrNotFound)
	form, err = svc.Form(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.DefaultQuantity, form.Input.Quantity)
	assert.False(t, form.Submitting)
}

func TestGenerationServiceSave(t *testing.T) {
	backend := &generationBackendStub{body: `{"qcm":"[{\"question\":\"Q\"}]"}`}
	svc := newGenerationServiceForTest(backend)

	err := svc.Save(context.Background())
	require.ErrorIs(t, err, appErrors.ErrNotFound)

	fillForm(t, svc, 1, models.ContentQCM)
	_, _, err = svc.Generate(context.Background())
	require.NoError(t, err)

	require.NoError(t, svc.Save(context.Background()))
	require.NotNil(t, backend.saved)
	assert.JSONEq(t, `"[{\"question\":\"Q\"}]"`, string(backend.saved.Blocks[models.ContentQCM]))
	assert.Equal(t, "Photosynthesis", backend.savedReq.Subject)
}
