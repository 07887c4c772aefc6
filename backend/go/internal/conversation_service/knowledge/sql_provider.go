package knowledge

import (
	"GeoCMS/backend/go/internal/models"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLProvider 从 knowledge_entries 表中读取知识。
type SQLProvider struct {
	db *gorm.DB
}

// NewSQLProvider 创建一个 SQLProvider。
func NewSQLProvider(db *gorm.DB) *SQLProvider {
	return &SQLProvider{db: db}
}

// Lookup 实现 Provider。
func (p *SQLProvider) Lookup(ctx context.Context, topic string) (interface{}, bool, error) {
	var entry models.KnowledgeEntry
	err := p.db.WithContext(ctx).Where("topic = ?", topic).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("查询知识主题 '%s' 失败: %w", topic, err)
	}
	var content interface{}
	if len(entry.Content) > 0 {
		if err := json.Unmarshal(entry.Content, &content); err != nil {
			return nil, false, fmt.Errorf("知识主题 '%s' 的内容无法解析: %w", topic, err)
		}
	}
	return content, true, nil
}

// Put 写入或覆盖一个知识主题。
func (p *SQLProvider) Put(ctx context.Context, topic, description string, content interface{}) error {
	raw, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("知识内容无法序列化: %w", err)
	}
	entry := models.KnowledgeEntry{
		Topic:       topic,
		Description: description,
		Content:     datatypes.JSON(raw),
		UpdatedAt:   time.Now(),
	}
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "topic"}},
		DoUpdates: clause.AssignmentColumns([]string{"description", "content", "updated_at"}),
	}).Create(&entry).Error
}
