package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/campus-systems/enroll-api/internal/models"
	appErrors "github.com/campus-systems/enroll-api/pkg/errors"
)

type statsRepository interface {
	Statistics(ctx context.Context) (*models.Statistics, error)
}

// StatsService serves the teacher dashboard aggregate, cached briefly
// since the numbers only need to be roughly current.
type StatsService struct {
	repo   statsRepository
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewStatsService constructs StatsService.
func NewStatsService(repo statsRepository, cache *CacheService, ttl time.Duration, logger *zap.Logger) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsService{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// Statistics returns platform-wide counts.
func (s *StatsService) Statistics(ctx context.Context) (*models.Statistics, error) {
	const key = "stats"

	var cached models.Statistics
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	stats, err := s.repo.Statistics(ctx)
	if err != nil {
		var typed *appErrors.Error
		if errors.As(err, &typed) {
			return nil, typed
		}
		s.logger.Error("failed to load statistics", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load statistics")
	}

	_ = s.cache.Set(ctx, key, stats, s.ttl)
	return stats, nil
}
