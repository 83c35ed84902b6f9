package expiry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Scheduler struct {
	sweeper  *Sweeper
	interval time.Duration
	log      *zap.Logger
	stopCh   chan struct{}
}

func NewScheduler(sweeper *Sweeper, interval time.Duration, log *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		sweeper:  sweeper,
		interval: interval,
		log:      log,
		stopCh:   make(chan struct{}),
	}
}

// Start запускает фоновую зачистку резервов
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("starting reservation expiry scheduler", zap.Duration("interval", s.interval))
	go s.run(ctx)
}

func (s *Scheduler) Stop() {
	s.log.Info("stopping reservation expiry scheduler")
	close(s.stopCh)
}

func (s *Scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Выполняем сразу при старте
	if err := s.sweeper.SweepExpired(ctx); err != nil {
		s.log.Error("initial reservation sweep failed", zap.Error(err))
	}

	for {
		select {
		case <-ticker.C:
			if err := s.sweeper.SweepExpired(ctx); err != nil {
				s.log.Error("reservation sweep failed", zap.Error(err))
			}
		case <-s.stopCh:
			s.log.Info("reservation sweep stopped")
			return
		case <-ctx.Done():
			s.log.Info("reservation sweep cancelled")
			return
		}
	}
}

// RunOnceNow выполняет зачистку немедленно (для тестирования)
func (s *Scheduler) RunOnceNow(ctx context.Context) error {
	return s.sweeper.SweepExpired(ctx)
}
