package models

import "time"

// TaskEventKind 定义了任务事件的种类。
type TaskEventKind string

const (
	TaskEventCreated   TaskEventKind = "CREATED"
	TaskEventCompleted TaskEventKind = "COMPLETED"
	TaskEventFailed    TaskEventKind = "FAILED"
)

// TaskEvent 定义了发送到 Kafka 的任务生命周期事件。
type TaskEvent struct {
	TaskID    string        `json:"task_id"`
	RunID     string        `json:"run_id"`
	TaskType  TaskType      `json:"task_type"`
	Kind      TaskEventKind `json:"kind"`
	Status    TaskStatus    `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Payload   interface{}   `json:"payload,omitempty"`
}
