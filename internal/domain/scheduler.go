package domain

import "context"

// Scheduler runs periodic background tasks until ctx is cancelled.
type Scheduler interface {
	Start(ctx context.Context) error
}
