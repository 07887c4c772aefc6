package kafka

import (
	"GeoCMS/backend/go/internal/config"
	"GeoCMS/backend/go/internal/models"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestTaskPublisher_PublishTaskEvent(t *testing.T) {
	w := &recordingWriter{}
	p := NewTaskPublisher(w)

	event := &models.TaskEvent{
		TaskID:    "task-1",
		RunID:     "run-1",
		TaskType:  models.TaskTypeGenerateContent,
		Kind:      models.TaskEventCompleted,
		Status:    models.TaskStatusCompleted,
		Timestamp: time.Now(),
	}
	require.NoError(t, p.PublishTaskEvent(context.Background(), event))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "task-1", string(msg.Key))
	var decoded models.TaskEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.Equal(t, models.TaskEventCompleted, decoded.Kind)
	assert.Equal(t, "kind", msg.Headers[0].Key)
	assert.Equal(t, "COMPLETED", string(msg.Headers[0].Value))
}

func TestTaskPublisher_WriteError(t *testing.T) {
	p := NewTaskPublisher(&recordingWriter{err: errors.New("broker down")})
	err := p.PublishTaskEvent(context.Background(), &models.TaskEvent{TaskID: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(&config.KafkaConfig{TaskTopic: "events"})
	assert.Error(t, err)
	_, err = NewClient(&config.KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
}
