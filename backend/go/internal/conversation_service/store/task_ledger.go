package store

import (
	"GeoCMS/backend/go/internal/models"
	"GeoCMS/backend/go/pkg/logger"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TaskEventPublisher 接收任务生命周期事件，例如发送到 Kafka。
type TaskEventPublisher interface {
	PublishTaskEvent(ctx context.Context, event *models.TaskEvent) error
}

// TaskLedger 记录会话中的任务。任务只能从 pending 进入 completed 或 failed，终态之后不可修改。
type TaskLedger struct {
	db        *gorm.DB
	publisher TaskEventPublisher
	log       *logger.Logger

	clockMu     sync.Mutex
	lastCreated time.Time
}

// NewTaskLedger 创建一个新的 TaskLedger。publisher 可以为 nil。
func NewTaskLedger(db *gorm.DB, publisher TaskEventPublisher) *TaskLedger {
	return &TaskLedger{
		db:        db,
		publisher: publisher,
		log:       logger.New("task_ledger", "", ""),
	}
}

// nextTimestamp 返回严格递增的创建时间，保证同一进程内按创建顺序列出任务。
func (l *TaskLedger) nextTimestamp() time.Time {
	l.clockMu.Lock()
	defer l.clockMu.Unlock()
	now := time.Now()
	if !now.After(l.lastCreated) {
		now = l.lastCreated.Add(time.Millisecond)
	}
	l.lastCreated = now
	return now
}

// Create 新建一个 pending 任务。
func (l *TaskLedger) Create(ctx context.Context, runID string, taskType models.TaskType, data interface{}) (*models.Task, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("任务数据无法序列化: %w", err)
	}
	now := l.nextTimestamp()
	task := &models.Task{
		ID:        uuid.NewString(),
		RunID:     runID,
		TaskType:  taskType,
		TaskData:  datatypes.JSON(raw),
		Status:    models.TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := l.db.WithContext(ctx).Create(task).Error; err != nil {
		return nil, fmt.Errorf("创建任务失败: %w", err)
	}
	l.publish(ctx, task, models.TaskEventCreated, data)
	return task, nil
}

// Get 读取一个任务。
func (l *TaskLedger) Get(ctx context.Context, taskID string) (*models.Task, error) {
	var task models.Task
	err := l.db.WithContext(ctx).Where("id = ?", taskID).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("查询任务 %s 失败: %w", taskID, err)
	}
	return &task, nil
}

// ListByRun 按创建顺序返回会话的全部任务。
func (l *TaskLedger) ListByRun(ctx context.Context, runID string) ([]models.Task, error) {
	var tasks []models.Task
	if err := l.db.WithContext(ctx).Where("run_id = ?", runID).Order("created_at ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("查询会话 %s 的任务失败: %w", runID, err)
	}
	return tasks, nil
}

// CountByStatus 返回各状态的任务数量，没有记录的状态为 0。
func (l *TaskLedger) CountByStatus(ctx context.Context) (map[models.TaskStatus]int64, error) {
	var rows []struct {
		Status models.TaskStatus
		Count  int64
	}
	if err := l.db.WithContext(ctx).Model(&models.Task{}).
		Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("统计任务状态失败: %w", err)
	}
	out := map[models.TaskStatus]int64{
		models.TaskStatusPending:   0,
		models.TaskStatusCompleted: 0,
		models.TaskStatusFailed:    0,
	}
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

// Complete 将 pending 任务标记为 completed 并写入结果。
func (l *TaskLedger) Complete(ctx context.Context, taskID string, result interface{}) (*models.Task, error) {
	return l.finish(ctx, taskID, models.TaskStatusCompleted, result)
}

// Fail 将 pending 任务标记为 failed，结果为 {"error": message}。
func (l *TaskLedger) Fail(ctx context.Context, taskID, message string) (*models.Task, error) {
	return l.finish(ctx, taskID, models.TaskStatusFailed, map[string]interface{}{"error": message})
}

func (l *TaskLedger) finish(ctx context.Context, taskID string, status models.TaskStatus, result interface{}) (*models.Task, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("任务结果无法序列化: %w", err)
	}
	// 条件更新保证只有 pending 任务可以进入终态。
	res := l.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ? AND status = ?", taskID, models.TaskStatusPending).
		Updates(map[string]interface{}{
			"status":     status,
			"result":     datatypes.JSON(raw),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("更新任务 %s 失败: %w", taskID, res.Error)
	}
	task, err := l.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return task, fmt.Errorf("%w: %s (%s)", ErrTaskFinalized, taskID, task.Status)
	}

	kind := models.TaskEventCompleted
	if status == models.TaskStatusFailed {
		kind = models.TaskEventFailed
	}
	l.publish(ctx, task, kind, result)
	return task, nil
}

func (l *TaskLedger) publish(ctx context.Context, task *models.Task, kind models.TaskEventKind, payload interface{}) {
	if l.publisher == nil {
		return
	}
	event := &models.TaskEvent{
		TaskID:    task.ID,
		RunID:     task.RunID,
		TaskType:  task.TaskType,
		Kind:      kind,
		Status:    task.Status,
		Timestamp: time.Now(),
		Payload:   payload,
	}
	if err := l.publisher.PublishTaskEvent(ctx, event); err != nil {
		l.log.WithErr(err).WithPayload(map[string]interface{}{
			"task_id": task.ID,
			"run_id":  task.RunID,
			"kind":    kind,
		}).Warn("任务事件发送失败")
	}
}
