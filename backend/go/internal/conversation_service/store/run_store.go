package store

import (
	"GeoCMS/backend/go/internal/conversation_service/policy"
	"GeoCMS/backend/go/internal/models"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RunStore 负责会话运行记录的持久化。槽位状态以保持顺序的 JSON 存储。
type RunStore struct {
	db       *gorm.DB
	policies *policy.Holder
}

// NewRunStore 创建一个新的 RunStore。
func NewRunStore(db *gorm.DB, policies *policy.Holder) *RunStore {
	return &RunStore{db: db, policies: policies}
}

// Create 新建一个 active 会话。初始状态中所有槽位为 null，initial 中的值覆盖默认值。
func (s *RunStore) Create(ctx context.Context, userIntent string, initial *models.SlotState) (*models.ConversationRun, error) {
	now := time.Now()
	run := &models.ConversationRun{
		ID:         uuid.NewString(),
		UserIntent: userIntent,
		State:      *s.policies.Current().DefaultState(initial),
		Status:     models.RunStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("创建会话失败: %w", err)
	}
	return run, nil
}

// Get 读取会话。旧记录缺少当前策略中的槽位时在返回值中补为 null。
func (s *RunStore) Get(ctx context.Context, runID string) (*models.ConversationRun, error) {
	return s.get(s.db.WithContext(ctx), runID)
}

func (s *RunStore) get(tx *gorm.DB, runID string) (*models.ConversationRun, error) {
	var run models.ConversationRun
	err := tx.Where("id = ?", runID).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("查询会话 %s 失败: %w", runID, err)
	}
	s.policies.Current().Backfill(&run.State)
	return &run, nil
}

// List 按创建时间倒序返回最近的会话。
func (s *RunStore) List(ctx context.Context, limit int) ([]models.ConversationRun, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []models.ConversationRun
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("查询会话列表失败: %w", err)
	}
	return runs, nil
}

// RunFilter 是分页查询会话的条件。Status 为空时不过滤。
type RunFilter struct {
	Status models.RunStatus
	Limit  int
	Offset int
}

// ListFiltered 按创建时间倒序分页返回会话，以及满足过滤条件的总数。
func (s *RunStore) ListFiltered(ctx context.Context, f RunFilter) ([]models.ConversationRun, int64, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	query := s.db.WithContext(ctx).Model(&models.ConversationRun{})
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计会话数量失败: %w", err)
	}
	var runs []models.ConversationRun
	if err := query.Order("created_at DESC").Offset(f.Offset).Limit(f.Limit).Find(&runs).Error; err != nil {
		return nil, 0, fmt.Errorf("查询会话列表失败: %w", err)
	}
	return runs, total, nil
}

// CountByStatus 返回各状态的会话数量，没有记录的状态为 0。
func (s *RunStore) CountByStatus(ctx context.Context) (map[models.RunStatus]int64, error) {
	var rows []struct {
		Status models.RunStatus
		Count  int64
	}
	if err := s.db.WithContext(ctx).Model(&models.ConversationRun{}).
		Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("统计会话状态失败: %w", err)
	}
	out := map[models.RunStatus]int64{
		models.RunStatusActive:    0,
		models.RunStatusCompleted: 0,
		models.RunStatusFailed:    0,
	}
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

// mutate 在事务中读取 active 会话，执行 fn 修改状态后写回。
func (s *RunStore) mutate(ctx context.Context, runID string, fn func(run *models.ConversationRun) error) (*models.ConversationRun, error) {
	var out *models.ConversationRun
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		run, err := s.get(tx, runID)
		if err != nil {
			return err
		}
		if !run.IsActive() {
			return fmt.Errorf("%w: %s (%s)", ErrRunNotActive, runID, run.Status)
		}
		if err := fn(run); err != nil {
			return err
		}
		run.UpdatedAt = time.Now()
		if err := tx.Model(&models.ConversationRun{}).Where("id = ?", runID).Updates(map[string]interface{}{
			"state":      run.State,
			"status":     run.Status,
			"updated_at": run.UpdatedAt,
		}).Error; err != nil {
			return fmt.Errorf("更新会话 %s 失败: %w", runID, err)
		}
		out = run
		return nil
	})
	return out, err
}

// UpdateSlot 覆盖写入一个槽位的值并返回新的状态。重复写入相同的值结果不变。
func (s *RunStore) UpdateSlot(ctx context.Context, runID, slot string, value interface{}) (*models.SlotState, error) {
	run, err := s.mutate(ctx, runID, func(run *models.ConversationRun) error {
		run.State.Set(slot, value)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &run.State, nil
}

// UpdateKnowledgeContext 把解析到的知识写入状态的 knowledge_context 字段。
func (s *RunStore) UpdateKnowledgeContext(ctx context.Context, runID string, knowledge map[string]interface{}) error {
	normalized, err := models.DecodeValue(knowledge)
	if err != nil {
		return fmt.Errorf("知识上下文无法序列化: %w", err)
	}
	_, err = s.mutate(ctx, runID, func(run *models.ConversationRun) error {
		run.State.Set(models.StateKeyKnowledgeContext, normalized)
		return nil
	})
	return err
}

// KnowledgeContext 返回会话状态中保存的知识上下文。
func (s *RunStore) KnowledgeContext(ctx context.Context, runID string) (map[string]interface{}, error) {
	run, err := s.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	kc, _ := run.State.Get(models.StateKeyKnowledgeContext)
	if m, ok := kc.(map[string]interface{}); ok {
		return m, nil
	}
	return map[string]interface{}{}, nil
}

// Complete 将会话标记为 completed。已完成的会话再次完成时直接返回。
func (s *RunStore) Complete(ctx context.Context, runID string) (*models.ConversationRun, error) {
	run, err := s.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status == models.RunStatusCompleted {
		return run, nil
	}
	return s.mutate(ctx, runID, func(run *models.ConversationRun) error {
		run.Status = models.RunStatusCompleted
		return nil
	})
}

// Fail 将会话标记为 failed，并把原因写入状态的 error 字段。
func (s *RunStore) Fail(ctx context.Context, runID, reason string) (*models.ConversationRun, error) {
	run, err := s.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status == models.RunStatusFailed {
		return run, nil
	}
	return s.mutate(ctx, runID, func(run *models.ConversationRun) error {
		run.Status = models.RunStatusFailed
		if reason != "" {
			run.State.Set(models.StateKeyError, reason)
		}
		return nil
	})
}

// Progress 返回必填槽位的填写进度。
func (s *RunStore) Progress(ctx context.Context, runID string) (float64, error) {
	run, err := s.Get(ctx, runID)
	if err != nil {
		return 0, err
	}
	return s.policies.Current().Progress(&run.State), nil
}
