package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/identity-sync/internal/observability"
	"github.com/spec-kit/identity-sync/internal/persistence"
	"github.com/spec-kit/identity-sync/internal/repository"
	syncengine "github.com/spec-kit/identity-sync/internal/sync"
)

// ErrPassInProgress is returned when a pass is already running in this
// process.
var ErrPassInProgress = errors.New("a reconciliation pass is already in progress")

// ErrPassLocked is returned when another replica holds the shared pass lock.
var ErrPassLocked = errors.New("another instance holds the pass lock")

// SyncService coordinates pass execution: one pass at a time per process,
// one pass at a time per fleet via the Redis lock, with metrics and audit
// recording around the engine.
type SyncService struct {
	engine  *syncengine.Engine
	metrics *observability.Metrics
	passes  repository.PassRepository
	locks   *persistence.Redis
	logger  *zap.Logger
	running atomic.Bool
}

// NewSyncService creates a sync service. The pass repository may be nil when
// audit persistence is disabled.
func NewSyncService(engine *syncengine.Engine, metrics *observability.Metrics, passes repository.PassRepository, locks *persistence.Redis, logger *zap.Logger) *SyncService {
	return &SyncService{
		engine:  engine,
		metrics: metrics,
		passes:  passes,
		locks:   locks,
		logger:  logger,
	}
}

// Running reports whether a pass is currently executing in this process.
func (s *SyncService) Running() bool {
	return s.running.Load()
}

// RunPass executes one reconciliation pass end to end.
func (s *SyncService) RunPass(ctx context.Context) (*syncengine.Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrPassInProgress
	}
	defer s.running.Store(false)

	lockToken := uuid.NewString()
	acquired, err := s.locks.AcquirePassLock(ctx, lockToken)
	if err != nil {
		s.logger.Warn("pass lock check failed, proceeding without it", zap.Error(err))
	} else if !acquired {
		return nil, ErrPassLocked
	} else {
		defer s.locks.ReleasePassLock(ctx, lockToken)
	}

	started := time.Now()
	res, err := s.engine.Run(ctx)
	if err != nil {
		s.metrics.RecordFailedPass(err)
		return nil, err
	}

	stats := res.Stats()
	s.metrics.RecordPass(stats)
	if payload, marshalErr := json.Marshal(stats); marshalErr == nil {
		if cacheErr := s.locks.CacheLastPass(ctx, payload); cacheErr != nil {
			s.logger.Warn("could not cache pass summary", zap.Error(cacheErr))
		}
	}
	if s.passes != nil {
		if err := s.passes.RecordPass(ctx, repository.FromStats(stats, started)); err != nil {
			s.logger.Warn("could not persist pass summary",
				zap.String("pass_id", res.PassID), zap.Error(err))
		}
	}
	return res, nil
}

// LastPass returns the most recent pass summary cached in Redis, which may
// have been produced by another replica. The second return reports whether a
// summary was found.
func (s *SyncService) LastPass(ctx context.Context) (*observability.PassStats, bool) {
	payload, err := s.locks.LastPass(ctx)
	if err != nil {
		s.logger.Warn("could not read cached pass summary", zap.Error(err))
		return nil, false
	}
	if len(payload) == 0 {
		return nil, false
	}
	var stats observability.PassStats
	if err := json.Unmarshal(payload, &stats); err != nil {
		return nil, false
	}
	return &stats, true
}
