package etcd

import (
	"GeoCMS/backend/go/pkg/logger"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const keyPrefix = "/geocms/services"

// ServiceDiscovery 基于 etcd 租约实现服务注册与发现。
type ServiceDiscovery struct {
	cli *clientv3.Client
	log *logger.Logger
}

// Option 配置 etcd 客户端。
type Option func(*clientv3.Config)

// WithAuth 设置 etcd 的用户名和密码。
func WithAuth(username, password string) Option {
	return func(c *clientv3.Config) {
		c.Username = username
		c.Password = password
	}
}

// NewServiceDiscovery 创建一个新的 ServiceDiscovery。
func NewServiceDiscovery(endpoints []string, opts ...Option) (*ServiceDiscovery, error) {
	if len(endpoints) == 0 {
		return nil, errors.New("未配置 etcd endpoints")
	}
	cfg := clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cli, err := clientv3.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("连接 etcd 失败: %w", err)
	}
	return &ServiceDiscovery{cli: cli, log: logger.New("discovery", "", "")}, nil
}

// ServiceKey 返回服务实例在 etcd 中的键。
func ServiceKey(serviceName, addr string) string {
	return path.Join(keyPrefix, serviceName, addr)
}

// Register 以 ttl 秒的租约注册服务实例，并在后台续约。
// ctx 结束后停止续约并删除注册键。
func (s *ServiceDiscovery) Register(ctx context.Context, serviceName, addr string, ttl int64) error {
	leaseResp, err := s.cli.Grant(ctx, ttl)
	if err != nil {
		return fmt.Errorf("申请 etcd 租约失败: %w", err)
	}

	key := ServiceKey(serviceName, addr)
	if _, err = s.cli.Put(ctx, key, addr, clientv3.WithLease(leaseResp.ID)); err != nil {
		return fmt.Errorf("注册服务 '%s' 失败: %w", serviceName, err)
	}

	keepAliveCh, err := s.cli.KeepAlive(ctx, leaseResp.ID)
	if err != nil {
		return fmt.Errorf("etcd 租约续约失败: %w", err)
	}

	s.log.WithPayload(map[string]interface{}{"key": key, "ttl": ttl}).Info("服务已注册到 etcd")
	go func() {
		for {
			select {
			case <-ctx.Done():
				s.revoke(key, leaseResp.ID)
				return
			case _, ok := <-keepAliveCh:
				if !ok {
					s.log.WithField("key", key).Warn("etcd 租约已失效")
					s.revoke(key, leaseResp.ID)
					return
				}
			}
		}
	}()
	return nil
}

func (s *ServiceDiscovery) revoke(key string, lease clientv3.LeaseID) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := s.cli.Delete(ctx, key); err != nil {
		s.log.WithErr(err).Warn("删除 etcd 注册键失败")
	}
	_, _ = s.cli.Revoke(ctx, lease)
}

// Discover 返回服务所有已注册实例的地址。
func (s *ServiceDiscovery) Discover(ctx context.Context, serviceName string) ([]string, error) {
	resp, err := s.cli.Get(ctx, path.Join(keyPrefix, serviceName)+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("发现服务 '%s' 失败: %w", serviceName, err)
	}

	addrs := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		addrs = append(addrs, string(kv.Value))
	}
	return addrs, nil
}

// Close 关闭 etcd 客户端。
func (s *ServiceDiscovery) Close() error {
	return s.cli.Close()
}
