package minio

import (
	"GeoCMS/backend/go/internal/config"
	"GeoCMS/backend/go/pkg/logger"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	client  *minio.Client
	once    sync.Once
	initErr error
)

// GetClient 使用单例模式初始化并返回一个 MinIO 客户端实例。
func GetClient(ctx context.Context, cfg *config.MinIOConfig) (*minio.Client, error) {
	once.Do(func() {
		client, initErr = Open(ctx, cfg)
	})
	return client, initErr
}

// Open 创建一个新的 MinIO 客户端并通过列出存储桶验证连通性。
func Open(ctx context.Context, cfg *config.MinIOConfig) (*minio.Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("未配置 MinIO endpoint")
	}
	c, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("无法创建 MinIO 客户端: %w", err)
	}

	if _, err := c.ListBuckets(ctx); err != nil {
		return nil, fmt.Errorf("MinIO 初始化健康检查失败: %w", err)
	}

	logger.New("minio", "", "").WithField("endpoint", cfg.Endpoint).Info("成功连接到 MinIO")
	return c, nil
}

// HealthCheck 检查 MinIO 连接的健康状况。
func HealthCheck(ctx context.Context) error {
	if client == nil {
		return errors.New("MinIO 客户端未初始化")
	}
	if _, err := client.ListBuckets(ctx); err != nil {
		return fmt.Errorf("MinIO 健康检查失败: %w", err)
	}
	return nil
}
