package kafka

import (
	"GeoCMS/backend/go/internal/models"
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// MessageWriter 是 kafka.Writer 中发布消息所需的部分。
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// TaskPublisher 把任务生命周期事件发送到 Kafka。消息以 task_id 为 key，
// 同一任务的事件落在同一分区并保持顺序。
type TaskPublisher struct {
	writer MessageWriter
}

// NewTaskPublisher 创建一个新的 TaskPublisher 实例。
func NewTaskPublisher(writer MessageWriter) *TaskPublisher {
	return &TaskPublisher{writer: writer}
}

// PublishTaskEvent 将 TaskEvent 序列化为 JSON 并发送到 Kafka。
func (p *TaskPublisher) PublishTaskEvent(ctx context.Context, event *models.TaskEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化任务事件失败: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.TaskID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(event.Kind)},
			{Key: "run_id", Value: []byte(event.RunID)},
		},
	})
	if err != nil {
		return fmt.Errorf("发送任务事件到 Kafka 失败: %w", err)
	}
	return nil
}
