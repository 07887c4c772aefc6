package store

import (
	"GeoCMS/backend/go/internal/models"
	"GeoCMS/backend/go/pkg/logger"
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"
)

// MinioArchiver 把生成的内容块以 JSON 对象的形式上传到 MinIO。
// 对象路径为 <run_id>/<content_ref>.json。
type MinioArchiver struct {
	client *minio.Client
	bucket string
	logger *logger.Logger
}

// NewMinioArchiver 创建一个新的 MinioArchiver，并确保存储桶存在。
func NewMinioArchiver(ctx context.Context, client *minio.Client, bucket string) (*MinioArchiver, error) {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("检查存储桶 '%s' 失败: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建存储桶 '%s' 失败: %w", bucket, err)
		}
	}
	return &MinioArchiver{
		client: client,
		bucket: bucket,
		logger: logger.New("content_archiver", "", ""),
	}, nil
}

// ObjectName 返回内容块在存储桶中的对象名。
func ObjectName(block *models.ContentBlock) string {
	return path.Join(block.RunID, block.ID+".json")
}

// Archive 上传内容块并返回对象名。
func (a *MinioArchiver) Archive(ctx context.Context, block *models.ContentBlock) (string, error) {
	objectName := ObjectName(block)
	body := []byte(block.Body)
	_, err := a.client.PutObject(ctx, a.bucket, objectName, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"run-id":    block.RunID,
			"page-type": block.PageType,
		},
	})
	if err != nil {
		return "", fmt.Errorf("上传内容块 '%s' 到 MinIO 失败: %w", block.ID, err)
	}
	a.logger.WithField("run_id", block.RunID).Info(fmt.Sprintf("内容块已上传到 MinIO: %s/%s", a.bucket, objectName))
	return objectName, nil
}
