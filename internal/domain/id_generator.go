package domain

import "context"

// IDGenerator produces unique, time-ordered identifiers per sequence name.
type IDGenerator interface {
	NextID(ctx context.Context, sequence string) (int64, error)
}
