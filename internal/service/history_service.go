package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/edugen-studio/internal/models"
	appErrors "github.com/noah-isme/edugen-studio/pkg/errors"
)

// EmptyHistoryMessage is shown when the backend has no past generations.
const EmptyHistoryMessage = "No history available."

// HistorySource lists past generations.
type HistorySource interface {
	History(ctx context.Context) ([]models.HistoryRecord, error)
}

// HistoryService owns the history view. Each fetch takes a token; only the
// latest fetch may publish its result.
type HistoryService struct {
	source HistorySource
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	view   models.HistoryView
	latest uint64
}

// NewHistoryService constructs a history service in the idle state.
func NewHistoryService(source HistorySource, logger *zap.Logger) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryService{
		source: source,
		logger: logger,
		now:    time.Now,
		view:   models.HistoryView{State: models.HistoryIdle, Records: []models.HistoryRecord{}},
	}
}

// Fetch loads the history and returns the resulting view. Records keep the backend's order.
// A fetch overtaken by a newer one returns the view as it stands without publishing.
// Cancelling ctx does not abandon the fetch.
func (s *HistoryService) Fetch(ctx context.Context) models.HistoryView {
	ctx = context.WithoutCancel(defaultCtx(ctx))
	s.mu.Lock()
	s.latest++
	token := s.latest
	s.view = models.HistoryView{State: models.HistoryLoading, Records: s.view.Records, FetchedAt: s.view.FetchedAt}
	s.mu.Unlock()

	records, err := s.source.History(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if token != s.latest {
		s.logger.Warn("discarding stale history response", zap.Uint64("token", token), zap.Uint64("latest", s.latest))
		return s.snapshot()
	}

	fetchedAt := s.now().UTC()
	if err != nil {
		appErr := appErrors.FromError(err)
		s.view = models.HistoryView{
			State:     models.HistoryError,
			Records:   []models.HistoryRecord{},
			Message:   appErr.Message,
			Error:     appErr,
			FetchedAt: &fetchedAt,
		}
		return s.snapshot()
	}

	if records == nil {
		records = []models.HistoryRecord{}
	}
	s.view = models.HistoryView{State: models.HistorySuccess, Records: records, FetchedAt: &fetchedAt}
	if len(records) == 0 {
		s.view.Message = EmptyHistoryMessage
	}
	return s.snapshot()
}

// Current returns the view without fetching, including the loading state.
func (s *HistoryService) Current() models.HistoryView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *HistoryService) snapshot() models.HistoryView {
	out := s.view
	out.Records = append([]models.HistoryRecord(nil), s.view.Records...)
	if out.Records == nil {
		out.Records = []models.HistoryRecord{}
	}
	return out
}
