package etcd

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"flash-sale/internal/domain"
)

const (
	LeaderElectionPrefix = "/flash-sale/leader/"
)

type etcdLeaderElectionManager struct {
	client   *clientv3.Client
	session  *concurrency.Session
	election *concurrency.Election
	isLeader bool
	mutex    sync.RWMutex
	role     string
	nodeID   string // The ID of the current node
	ttl      time.Duration
	logger   *slog.Logger
}

// NewEtcdLeaderElectionManager creates a manager for leader election using etcd.
// Replicas campaigning for the same role compete for one leadership.
func NewEtcdLeaderElectionManager(client *clientv3.Client, role, nodeID string, ttl time.Duration, logger *slog.Logger) domain.LeaderElectionManager {
	return &etcdLeaderElectionManager{
		client: client,
		role:   role,
		nodeID: nodeID,
		ttl:    ttl,
		logger: logger.With("component", "leader-election", "role", role),
	}
}

func (m *etcdLeaderElectionManager) Campaign(ctx context.Context) (<-chan struct{}, error) {
	// Create a new session with a lease. If this node fails, the lease will expire.
	session, err := concurrency.NewSession(m.client, concurrency.WithTTL(sessionTTL(m.ttl)))
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd session: %w", err)
	}
	election := concurrency.NewElection(session, LeaderElectionPrefix+m.role)

	// Campaign blocks until this node becomes the leader or the context is canceled.
	if err := election.Campaign(ctx, m.nodeID); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("campaign for %s failed: %w", m.role, err)
	}

	m.mutex.Lock()
	m.session = session
	m.election = election
	m.isLeader = true
	m.mutex.Unlock()
	m.logger.Info("successfully campaigned and became the leader", "node_id", m.nodeID)

	// The returned channel is closed if the session expires, meaning leadership is lost.
	return session.Done(), nil
}

func (m *etcdLeaderElectionManager) Resign(ctx context.Context) error {
	m.mutex.Lock()
	election, session := m.election, m.session
	m.isLeader = false
	m.election, m.session = nil, nil
	m.mutex.Unlock()

	if election == nil {
		return nil
	}
	m.logger.Info("resigning leadership", "node_id", m.nodeID)
	err := election.Resign(ctx)
	if cerr := session.Close(); err == nil {
		err = cerr
	}
	return err
}

func (m *etcdLeaderElectionManager) IsLeader() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.isLeader
}
