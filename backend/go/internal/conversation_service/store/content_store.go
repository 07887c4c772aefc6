package store

import (
	"GeoCMS/backend/go/internal/models"
	"GeoCMS/backend/go/pkg/logger"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ContentArchiver 把已保存的内容块复制到外部存储。
type ContentArchiver interface {
	Archive(ctx context.Context, block *models.ContentBlock) (string, error)
}

// ContentStore 保存生成的内容块，内容块 ID 即 content_ref。
type ContentStore struct {
	db       *gorm.DB
	archiver ContentArchiver
	log      *logger.Logger
}

// NewContentStore 创建一个新的 ContentStore。archiver 可以为 nil。
func NewContentStore(db *gorm.DB, archiver ContentArchiver) *ContentStore {
	return &ContentStore{db: db, archiver: archiver, log: logger.New("content_store", "", "")}
}

// Save 持久化一段内容并返回其 content_ref。归档失败只记录日志。
func (s *ContentStore) Save(ctx context.Context, runID, pageType string, format models.ContentFormat, body interface{}) (*models.ContentBlock, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("内容无法序列化: %w", err)
	}
	block := &models.ContentBlock{
		ID:        uuid.NewString(),
		RunID:     runID,
		PageType:  pageType,
		Format:    format,
		Body:      datatypes.JSON(raw),
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(block).Error; err != nil {
		return nil, fmt.Errorf("保存内容块失败: %w", err)
	}
	if s.archiver != nil {
		object, err := s.archiver.Archive(ctx, block)
		if err != nil {
			s.log.WithErr(err).WithField("run_id", runID).WithField("content_ref", block.ID).Warn("内容归档失败")
		} else {
			s.log.WithField("run_id", runID).WithField("object", object).Debug("内容已归档")
		}
	}
	return block, nil
}

// Get 按 content_ref 读取内容块。
func (s *ContentStore) Get(ctx context.Context, ref string) (*models.ContentBlock, error) {
	var block models.ContentBlock
	err := s.db.WithContext(ctx).Where("id = ?", ref).First(&block).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrContentNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("查询内容块 %s 失败: %w", ref, err)
	}
	return &block, nil
}

// ListByRun 返回会话下的全部内容块。
func (s *ContentStore) ListByRun(ctx context.Context, runID string) ([]models.ContentBlock, error) {
	var blocks []models.ContentBlock
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("created_at ASC").Find(&blocks).Error; err != nil {
		return nil, fmt.Errorf("查询会话 %s 的内容块失败: %w", runID, err)
	}
	return blocks, nil
}
