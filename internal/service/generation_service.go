package service

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/noah-isme/edugen-studio/internal/models"
	appErrors "github.com/noah-isme/edugen-studio/pkg/errors"
)

// GenerationBackend is the part of the backend the generation flow needs.
type GenerationBackend interface {
	Generate(ctx context.Context, req models.GenerationRequest) ([]byte, error)
	Save(ctx context.Context, bundle models.ContentBundle, req models.GenerationRequest) error
}

// GenerationService runs the form → request → backend → bundle → review pipeline
// against the workspace. At most one generation runs at a time.
type GenerationService struct {
	forms     *FormService
	workspace *WorkspaceService
	backend   GenerationBackend
	metrics   *MetricsService
	logger    *zap.Logger

	inFlight *semaphore.Weighted
	running  atomic.Bool
	now      func() time.Time
}

// NewGenerationService wires the generation pipeline.
func NewGenerationService(forms *FormService, workspace *WorkspaceService, backend GenerationBackend, metrics *MetricsService, logger *zap.Logger) *GenerationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationService{
		forms:     forms,
		workspace: workspace,
		backend:   backend,
		metrics:   metrics,
		logger:    logger,
		inFlight:  semaphore.NewWeighted(1),
		now:       time.Now,
	}
}

// Form returns the current form state.
func (s *GenerationService) Form(ctx context.Context) (models.FormState, error) {
	ws, err := s.workspace.Get(ctx)
	if err != nil {
		return models.FormState{}, err
	}
	return s.withSubmitting(ws.Form), nil
}

// ApplyFieldChange edits one form field.
func (s *GenerationService) ApplyFieldChange(ctx context.Context, change FieldChange) (models.FormState, error) {
	var applyErr error
	ws, err := s.workspace.Update(ctx, func(ws *models.Workspace) error {
		next, err := s.forms.ApplyFieldChange(ws.Form, change)
		if err != nil {
			applyErr = err
			return nil
		}
		ws.Form = next
		return nil
	})
	if err != nil {
		return models.FormState{}, err
	}
	return s.withSubmitting(ws.Form), applyErr
}

// ReplaceForm swaps the whole form input.
func (s *GenerationService) ReplaceForm(ctx context.Context, input models.FormInput) (models.FormState, error) {
	ws, err := s.workspace.Update(ctx, func(ws *models.Workspace) error {
		ws.Form = s.forms.Replace(ws.Form, input)
		return nil
	})
	if err != nil {
		return models.FormState{}, err
	}
	return s.withSubmitting(ws.Form), nil
}

// Generate submits the form and, when accepted, replaces the review with the
// rendered response. Failures leave any earlier review untouched. The caller
// going away does not cancel the generation; only the backend client's own
// deadline applies.
func (s *GenerationService) Generate(ctx context.Context) (*models.Review, models.FormState, error) {
	ctx = context.WithoutCancel(defaultCtx(ctx))
	if !s.inFlight.TryAcquire(1) {
		s.metrics.RecordGeneration("busy")
		return nil, models.FormState{}, appErrors.ErrGenerationInProgress
	}
	defer s.inFlight.Release(1)
	s.running.Store(true)
	defer s.running.Store(false)

	var (
		req   *models.GenerationRequest
		token uint64
	)
	ws, err := s.workspace.Update(ctx, func(ws *models.Workspace) error {
		next, built, err := s.forms.Submit(ws.Form)
		ws.Form = next
		if err != nil {
			return err
		}
		ws.GenerationToken++
		token = ws.GenerationToken
		req = built
		return nil
	})
	if err != nil {
		outcome := "rejected"
		if appErrors.HasCode(err, appErrors.ErrQuotaExceeded.Code) {
			outcome = "quota"
		}
		s.metrics.RecordGeneration(outcome)
		if ws != nil {
			return nil, settled(ws.Form), err
		}
		return nil, models.FormState{}, err
	}

	s.logger.Info("generation submitted",
		zap.String("subject", req.Subject),
		zap.String("grade_level", string(req.GradeLevel)),
		zap.Int("total_items", req.ContentTypes.Count()*req.Quantity),
		zap.Uint64("token", token),
	)

	body, err := s.backend.Generate(ctx, *req)
	if err != nil {
		s.metrics.RecordGeneration("backend_error")
		return nil, settled(ws.Form), err
	}
	bundle, err := NormalizeBundle(body)
	if err != nil {
		s.metrics.RecordGeneration("format_error")
		s.logger.Warn("generation response rejected", zap.Int("body_bytes", len(body)), zap.Error(err))
		return nil, settled(ws.Form), err
	}

	review := RenderBundle(bundle)
	review.Request = req
	review.GeneratedAt = s.now().UTC()
	for _, view := range review.Views {
		if view.Failed() {
			s.metrics.RecordBlockFailure(view.Tag)
		}
	}

	stale := false
	ws, err = s.workspace.Update(ctx, func(ws *models.Workspace) error {
		if ws.GenerationToken != token {
			stale = true
			return nil
		}
		ws.Bundle = &bundle
		ws.Request = req
		ws.GeneratedAt = review.GeneratedAt
		ws.Review = &review
		return nil
	})
	if err != nil {
		return nil, models.FormState{}, err
	}
	if stale {
		s.logger.Warn("discarding stale generation response", zap.Uint64("token", token), zap.Uint64("latest", ws.GenerationToken))
		s.metrics.RecordGeneration("stale")
		return ws.Review, settled(ws.Form), nil
	}

	s.metrics.RecordGeneration("ok")
	return &review, settled(ws.Form), nil
}

// Review returns the current review or NOT_FOUND when nothing was generated.
func (s *GenerationService) Review(ctx context.Context) (*models.Review, error) {
	ws, err := s.workspace.Get(ctx)
	if err != nil {
		return nil, err
	}
	if ws.Review == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no review available")
	}
	return ws.Review, nil
}

// Save stores the current review on the backend, sending the bundle as received.
func (s *GenerationService) Save(ctx context.Context) error {
	ws, err := s.workspace.Get(ctx)
	if err != nil {
		return err
	}
	if ws.Bundle == nil || ws.Request == nil {
		return appErrors.Clone(appErrors.ErrNotFound, "no review available")
	}
	if err := s.backend.Save(ctx, *ws.Bundle, *ws.Request); err != nil {
		return err
	}
	s.logger.Info("review saved", zap.String("subject", ws.Request.Subject), zap.Int("blocks", ws.Bundle.Len()))
	return nil
}

// Discard drops the review. Any generation still in flight is fenced off and
// its response ignored.
func (s *GenerationService) Discard(ctx context.Context) error {
	_, err := s.workspace.Update(ctx, func(ws *models.Workspace) error {
		ws.GenerationToken++
		ws.Bundle = nil
		ws.Request = nil
		ws.Review = nil
		ws.GeneratedAt = time.Time{}
		return nil
	})
	return err
}

// Reset starts the studio over by dropping the stored form and review. A
// generation still in flight lands on a fresh workspace and is discarded.
func (s *GenerationService) Reset(ctx context.Context) (models.FormState, error) {
	if err := s.workspace.Reset(ctx); err != nil {
		return models.FormState{}, err
	}
	s.logger.Info("workspace reset")
	return s.Form(ctx)
}

// Busy reports whether a generation is running.
func (s *GenerationService) Busy() bool {
	return s.running.Load()
}

func (s *GenerationService) withSubmitting(state models.FormState) models.FormState {
	state.Submitting = s.running.Load()
	return state
}

// settled is the form as it stands once a submission has finished.
func settled(state models.FormState) models.FormState {
	state.Submitting = false
	return state
}
