package models

import "time"

// RunStatus 定义了会话运行的生命周期状态。
type RunStatus string

const (
	RunStatusActive    RunStatus = "active"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ConversationRun 代表一次多轮的建站内容会话。
type ConversationRun struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	UserIntent string    `gorm:"type:text;not null" json:"user_intent"`
	State      SlotState `gorm:"type:json" json:"state"`
	Status     RunStatus `gorm:"size:16;index;not null" json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName 指定表名。
func (ConversationRun) TableName() string {
	return "planner_runs"
}

// IsActive 判断会话是否仍可修改。
func (r *ConversationRun) IsActive() bool {
	return r.Status == RunStatusActive
}
