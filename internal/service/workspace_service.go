package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/edugen-studio/internal/models"
	appErrors "github.com/noah-isme/edugen-studio/pkg/errors"
)

// WorkspaceRepository abstracts persistence for the studio workspace.
type WorkspaceRepository interface {
	Load(ctx context.Context) (*models.Workspace, error)
	Save(ctx context.Context, ws *models.Workspace, ttl time.Duration) error
	Delete(ctx context.Context) error
}

// WorkspaceService serialises access to the workspace and rebuilds its derived review.
type WorkspaceService struct {
	repo    WorkspaceRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	mu      sync.Mutex
}

// NewWorkspaceService constructs a workspace service.
func NewWorkspaceService(repo WorkspaceRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger) *WorkspaceService {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkspaceService{repo: repo, metrics: metrics, ttl: ttl, logger: logger}
}

// Get returns the current workspace, or a fresh one when none is stored.
func (s *WorkspaceService) Get(ctx context.Context) (*models.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Update loads the workspace, applies fn and stores the result. The workspace
// is stored even when fn fails so partial state such as field errors survives;
// fn's error is returned.
func (s *WorkspaceService) Update(ctx context.Context, fn func(ws *models.Workspace) error) (*models.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	fnErr := fn(ws)
	ws.UpdatedAt = time.Now().UTC()

	start := time.Now()
	saveErr := s.repo.Save(ctx, ws, s.ttl)
	s.metrics.ObserveWorkspaceWrite("save", time.Since(start))
	if saveErr != nil {
		s.logger.Warn("workspace save failed", zap.Error(saveErr))
		return nil, appErrors.Wrap(saveErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store workspace")
	}
	return ws, fnErr
}

// Reset drops the stored workspace entirely.
func (s *WorkspaceService) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()
	err := s.repo.Delete(ctx)
	s.metrics.ObserveWorkspaceWrite("delete", time.Since(start))
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset workspace")
	}
	return nil
}

func (s *WorkspaceService) load(ctx context.Context) (*models.Workspace, error) {
	start := time.Now()
	ws, err := s.repo.Load(ctx)
	duration := time.Since(start)
	if err != nil {
		s.metrics.RecordWorkspaceLoad(false, duration)
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return models.NewWorkspace(), nil
		}
		s.logger.Warn("workspace load failed", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workspace")
	}
	s.metrics.RecordWorkspaceLoad(true, duration)

	if ws.Form.Errors == nil {
		ws.Form.Errors = map[string]string{}
	}
	if ws.Form.Input.ContentTypes == nil {
		ws.Form.Input.ContentTypes = models.ContentTypeSet{}
	}
	if ws.Bundle != nil {
		review := RenderBundle(*ws.Bundle)
		review.Request = ws.Request
		review.GeneratedAt = ws.GeneratedAt
		ws.Review = &review
	}
	return ws, nil
}
