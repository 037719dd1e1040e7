package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flash-sale/internal/logging"
)

func TestCronScheduler_RunsTask(t *testing.T) {
	s := NewCronScheduler(logging.NewNop())
	var runs atomic.Int64
	require.NoError(t, s.AddTask("tick", "@every 1s", func(context.Context) error {
		runs.Add(1)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestCronScheduler_RejectsBadSpec(t *testing.T) {
	s := NewCronScheduler(logging.NewNop())
	assert.Error(t, s.AddTask("bad", "every now and then", func(context.Context) error { return nil }))
}

func TestCronScheduler_ReplaceAndRemove(t *testing.T) {
	s := NewCronScheduler(logging.NewNop())
	noop := func(context.Context) error { return nil }
	require.NoError(t, s.AddTask("sweep", "@every 30s", noop))
	require.NoError(t, s.AddTask("sweep", "@every 10s", noop))
	assert.Len(t, s.cron.Entries(), 1)

	s.RemoveTask("sweep")
	assert.Empty(t, s.cron.Entries())
}
