package models

import (
	"time"

	"gorm.io/datatypes"
)

// TaskType 是任务的类型。可以扩展。
type TaskType string

const (
	TaskTypeAskSlot         TaskType = "ask_slot"
	TaskTypeGenerateContent TaskType = "generate_content"
	TaskTypeVerify          TaskType = "verify"
)

// TaskStatus 定义了任务的几种可能状态
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// IsTerminal 判断状态是否为终态。终态不可回退。
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Task 是会话中一个工作单元的审计记录。
type Task struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	RunID     string         `gorm:"size:36;index;not null" json:"run_id"`
	TaskType  TaskType       `gorm:"size:32;not null" json:"task_type"`
	TaskData  datatypes.JSON `json:"task_data"`
	Result    datatypes.JSON `json:"result,omitempty"`
	Status    TaskStatus     `gorm:"size:16;index;not null" json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TableName 指定表名。
func (Task) TableName() string {
	return "planner_tasks"
}
