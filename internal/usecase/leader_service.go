package usecase

import (
	"context"
	"log/slog"
	"time"

	"flash-sale/internal/domain"
)

// LeaderService runs a scheduler only while this node holds leadership, so
// singleton tasks such as hot-key warm-up run once across replicas.
type LeaderService struct {
	leaderManager domain.LeaderElectionManager
	scheduler     domain.Scheduler
	nodeID        string
	retryDelay    time.Duration
	logger        *slog.Logger
}

func NewLeaderService(leaderManager domain.LeaderElectionManager, scheduler domain.Scheduler, nodeID string, logger *slog.Logger) *LeaderService {
	return &LeaderService{
		leaderManager: leaderManager,
		scheduler:     scheduler,
		nodeID:        nodeID,
		retryDelay:    5 * time.Second,
		logger:        logger.With("component", "leader-service", "node_id", nodeID),
	}
}

// Start campaigns until ctx is cancelled. Every time leadership is won the
// scheduler runs, and it is stopped again when leadership is lost.
func (s *LeaderService) Start(ctx context.Context) error {
	s.logger.Info("leader service starting")

	for {
		if ctx.Err() != nil {
			s.logger.Info("leader service shutting down")
			return ctx.Err()
		}

		s.logger.Debug("campaigning for leadership")
		lostLeadershipCh, err := s.leaderManager.Campaign(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			s.logger.Warn("error during leadership campaign, retrying", "error", err, "retry_in", s.retryDelay)
			select {
			case <-time.After(s.retryDelay):
			case <-ctx.Done():
			}
			continue
		}

		s.logger.Info("became the leader, starting the scheduler")
		s.runWhileLeader(ctx, lostLeadershipCh)

		resignCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := s.leaderManager.Resign(resignCtx); err != nil {
			s.logger.Warn("failed to resign leadership", "error", err)
		}
		cancel()
	}
}

func (s *LeaderService) runWhileLeader(ctx context.Context, lost <-chan struct{}) {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := s.scheduler.Start(runCtx); err != nil && runCtx.Err() == nil {
			s.logger.Error("scheduler stopped with error", "error", err)
		}
	}()

	select {
	case <-lost:
		s.logger.Warn("leadership lost, stopping the scheduler")
	case <-ctx.Done():
	case <-done:
	}
	cancel()
	<-done
}
