package etcd

import (
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"

	"flash-sale/internal/config"
)

func NewClient(cfg config.EtcdConfig) (*clientv3.Client, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd %v: %w", cfg.Endpoints, err)
	}
	return cli, nil
}
