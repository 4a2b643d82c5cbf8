package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/whiteboard-api/internal/service"
	appErrors "github.com/noah-isme/whiteboard-api/pkg/errors"
)

// Scheduler drives periodic materialization runs on a cron expression
// evaluated in the whiteboard's timezone. Overlapping ticks are shed by the
// materializer's run lock, so a slow run never stacks a second one behind it.
type Scheduler struct {
	cron   *cron.Cron
	batch  *service.BatchService
	logger *zap.Logger
}

// New builds a scheduler around the batch service.
func New(batch *service.BatchService, loc *time.Location, logger *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		batch:  batch,
		logger: logger,
	}
}

// Start registers the cron spec and begins ticking.
func (s *Scheduler) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, s.tick)
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("batch scheduler started", zap.String("cron", spec))
	return nil
}

// Stop halts the cron loop and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("batch scheduler stopped")
}

func (s *Scheduler) tick() {
	result, err := s.batch.Run(context.Background(), service.RunOptions{})
	if err != nil {
		if errors.Is(err, appErrors.ErrRunInProgress) {
			s.logger.Info("scheduled run skipped, previous run still in progress")
			return
		}
		s.logger.Error("scheduled materialization failed", zap.Error(err))
		return
	}
	if result.Skipped {
		s.logger.Debug("scheduled run skipped", zap.String("reason", result.SkipReason))
	}
}
