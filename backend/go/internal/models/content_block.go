package models

import (
	"time"

	"gorm.io/datatypes"
)

// ContentFormat 表示生成内容的形态。
type ContentFormat string

const (
	ContentFormatStructured ContentFormat = "structured"
	ContentFormatMarkdown   ContentFormat = "markdown"
)

// ContentBlock 是一段已生成并持久化的页面内容，ID 即 content_ref。
type ContentBlock struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	RunID     string         `gorm:"size:36;index;not null" json:"run_id"`
	PageType  string         `gorm:"size:64" json:"page_type"`
	Format    ContentFormat  `gorm:"size:16" json:"format"`
	Body      datatypes.JSON `json:"body"`
	CreatedAt time.Time      `json:"created_at"`
}

// TableName 指定表名。
func (ContentBlock) TableName() string {
	return "content_blocks"
}

// KnowledgeEntry 是知识库中的一个主题条目。
type KnowledgeEntry struct {
	Topic       string         `gorm:"primaryKey;size:128" json:"topic"`
	Description string         `gorm:"type:text" json:"description"`
	Content     datatypes.JSON `json:"content"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TableName 指定表名。
func (KnowledgeEntry) TableName() string {
	return "knowledge_entries"
}
