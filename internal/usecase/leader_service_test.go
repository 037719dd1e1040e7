package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flash-sale/internal/logging"
)

type fakeElection struct {
	mu        sync.Mutex
	campaigns int
	resigns   int
	fail      int
	lost      chan struct{}
	leader    bool
}

func (e *fakeElection) Campaign(ctx context.Context) (<-chan struct{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.campaigns++
	if e.fail > 0 {
		e.fail--
		return nil, errors.New("etcd unavailable")
	}
	e.lost = make(chan struct{})
	e.leader = true
	return e.lost, nil
}

func (e *fakeElection) Resign(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resigns++
	e.leader = false
	return nil
}

func (e *fakeElection) IsLeader() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.leader
}

func (e *fakeElection) loseLeadership() {
	e.mu.Lock()
	defer e.mu.Unlock()
	close(e.lost)
}

func (e *fakeElection) counts() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.campaigns, e.resigns
}

type fakeScheduler struct {
	mu      sync.Mutex
	running int
	starts  int
}

func (s *fakeScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.running++
	s.starts++
	s.mu.Unlock()
	<-ctx.Done()
	s.mu.Lock()
	s.running--
	s.mu.Unlock()
	return nil
}

func (s *fakeScheduler) state() (running, starts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running, s.starts
}

func TestLeaderService_RunsSchedulerOnlyWhileLeader(t *testing.T) {
	election := &fakeElection{fail: 1}
	sched := &fakeScheduler{}
	svc := NewLeaderService(election, sched, "node-1", logging.NewNop())
	svc.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	require.Eventually(t, func() bool {
		running, _ := sched.state()
		return running == 1
	}, time.Second, time.Millisecond)
	assert.True(t, election.IsLeader())

	// Losing leadership stops the scheduler and the node campaigns again.
	election.loseLeadership()
	require.Eventually(t, func() bool {
		_, starts := sched.state()
		campaigns, resigns := election.counts()
		return starts == 2 && campaigns == 3 && resigns == 1
	}, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	running, _ := sched.state()
	assert.Zero(t, running)
	_, resigns := election.counts()
	assert.Equal(t, 2, resigns)
}
