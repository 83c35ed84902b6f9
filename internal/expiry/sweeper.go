package expiry

import (
	"context"
	"time"

	"commerce-core/internal/repository"

	"go.uber.org/zap"
)

const sweepBatchSize = 500

// Sweeper помечает протухшие ACTIVE-резервы как EXPIRED.
// Корректность от него не зависит: чтения и так фильтруют по expires_at,
// sweeper нужен, чтобы таблица не зарастала висячими ACTIVE.
type Sweeper struct {
	repo *repository.Repository
	log  *zap.Logger
	now  func() time.Time
}

func NewSweeper(repo *repository.Repository, log *zap.Logger) *Sweeper {
	return &Sweeper{
		repo: repo,
		log:  log,
		now:  time.Now,
	}
}

func (s *Sweeper) SweepExpired(ctx context.Context) error {
	for {
		n, err := s.repo.Reservations.ExpireDue(ctx, s.now(), sweepBatchSize)
		if err != nil {
			s.log.Error("failed to expire reservations", zap.Error(err))
			return err
		}
		if n > 0 {
			s.log.Info("expired reservations", zap.Int64("count", n))
		}
		if n < sweepBatchSize {
			return nil
		}
	}
}
