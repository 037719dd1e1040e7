package domain

import "context"

// LeaderElectionManager elects one process among replicas to run the
// singleton background tasks.
type LeaderElectionManager interface {
	// Campaign blocks until this process is leader. The returned channel is
	// closed when leadership is lost.
	Campaign(ctx context.Context) (<-chan struct{}, error)
	Resign(ctx context.Context) error
	IsLeader() bool
}
