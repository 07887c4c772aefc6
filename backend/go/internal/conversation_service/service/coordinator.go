package service

import (
	"GeoCMS/backend/go/internal/conversation_service/policy"
	"GeoCMS/backend/go/internal/conversation_service/store"
	"GeoCMS/backend/go/internal/models"
	"GeoCMS/backend/go/pkg/logger"
	"GeoCMS/backend/go/pkg/metrics"
	"GeoCMS/backend/go/pkg/runlock"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const serviceName = "conversation_service"

// Dependencies 汇总 Coordinator 需要的组件。
type Dependencies struct {
	Runs     *store.RunStore
	Tasks    *store.TaskLedger
	Contents *store.ContentStore
	Policies *policy.Holder
	Engine   *DecisionEngine
	Executor *WorkflowExecutor
	Locker   runlock.Locker
	Metrics  *metrics.Metrics
}

// Coordinator 是会话编排的统一入口。
// 同一会话上的操作通过 Locker 串行执行；所有错误以 error 返回，不向外抛出 panic。
type Coordinator struct {
	runs     *store.RunStore
	tasks    *store.TaskLedger
	contents *store.ContentStore
	policies *policy.Holder
	engine   *DecisionEngine
	executor *WorkflowExecutor
	locker   runlock.Locker
	metrics  *metrics.Metrics
}

// NewCoordinator 创建 Coordinator。Locker 为空时使用进程内锁。
func NewCoordinator(deps Dependencies) *Coordinator {
	locker := deps.Locker
	if locker == nil {
		locker = runlock.NewLocalLocker()
	}
	return &Coordinator{
		runs:     deps.Runs,
		tasks:    deps.Tasks,
		contents: deps.Contents,
		policies: deps.Policies,
		engine:   deps.Engine,
		executor: deps.Executor,
		locker:   locker,
		metrics:  deps.Metrics,
	}
}

// StartResult 是 StartConversation 的返回值。
type StartResult struct {
	Status     string `json:"status"`
	RunID      string `json:"run_id"`
	NextAction Action `json:"next_action"`
}

// TaskView 是状态查询中的任务视图。
type TaskView struct {
	ID        string          `json:"id"`
	RunID     string          `json:"run_id"`
	Type      models.TaskType `json:"type"`
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data"`
	Result    json.RawMessage `json:"result"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func toTaskView(t *models.Task) TaskView {
	view := TaskView{
		ID:        t.ID,
		RunID:     t.RunID,
		Type:      t.TaskType,
		Status:    string(t.Status),
		Data:      json.RawMessage(t.TaskData),
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
	if len(t.Result) > 0 {
		view.Result = json.RawMessage(t.Result)
	}
	return view
}

// ConversationStatus 是会话的只读快照。
type ConversationStatus struct {
	RunID        string            `json:"run_id"`
	UserIntent   string            `json:"user_intent"`
	Status       models.RunStatus  `json:"status"`
	CurrentState *models.SlotState `json:"current_state"`
	Progress     float64           `json:"progress"`
	Tasks        []TaskView        `json:"tasks"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// CompletionResult 是完成或失败会话的返回值。
type CompletionResult struct {
	Status      string           `json:"status"`
	RunID       string           `json:"run_id"`
	FinalStatus models.RunStatus `json:"final_status"`
}

// RunSummary 是会话列表中的一项。
type RunSummary struct {
	RunID      string           `json:"run_id"`
	UserIntent string           `json:"user_intent"`
	Status     models.RunStatus `json:"status"`
	Progress   float64          `json:"progress"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

func (c *Coordinator) toRunSummary(r *models.ConversationRun) RunSummary {
	return RunSummary{
		RunID:      r.ID,
		UserIntent: r.UserIntent,
		Status:     r.Status,
		Progress:   c.policies.Current().Progress(&r.State),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

// StartConversation 创建新会话并返回第一个动作。
func (c *Coordinator) StartConversation(ctx context.Context, userIntent string, initial *models.SlotState) (res *StartResult, err error) {
	defer c.recoverPanic("start_conversation", "", &err)

	if strings.TrimSpace(userIntent) == "" {
		return nil, fmt.Errorf("%w: user_intent is required", ErrInvalidInput)
	}
	if initial != nil {
		p := c.policies.Current()
		for _, key := range initial.Keys() {
			if !p.HasSlot(key) {
				return nil, fmt.Errorf("%w: %q", ErrInvalidSlot, key)
			}
		}
	}

	run, err := c.runs.Create(ctx, userIntent, initial)
	if err != nil {
		return nil, err
	}
	c.metrics.RunStarted()
	log := logger.New(serviceName, "", run.ID)
	log.WithField("user_intent", userIntent).Info("会话已创建")

	unlock, err := c.lock(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	action, err := c.engine.Analyze(ctx, run.ID, userIntent)
	if err != nil {
		return nil, err
	}
	return &StartResult{Status: "conversation_started", RunID: run.ID, NextAction: action}, nil
}

// ProcessUserInput 处理一轮用户输入。slotName 非空时把输入记为该槽位的值，否则只重新分析。
func (c *Coordinator) ProcessUserInput(ctx context.Context, runID, userInput, slotName string) (action Action, err error) {
	defer c.recoverPanic("process_user_input", runID, &err)

	unlock, err := c.lock(ctx, runID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	log := logger.New(serviceName, "", runID)
	if slotName != "" {
		action, err = c.engine.ProcessSlotInput(ctx, runID, slotName, userInput)
	} else {
		action, err = c.engine.Analyze(ctx, runID, userInput)
	}
	if err != nil {
		log.WithErr(err).WithField("slot_name", slotName).Warn("处理用户输入失败")
		return nil, err
	}
	log.WithPayload(map[string]interface{}{"slot_name": slotName, "action": action.Kind()}).Info("已处理用户输入")
	return action, nil
}

// NextAction 返回当前的下一步动作，不记录任何输入。
func (c *Coordinator) NextAction(ctx context.Context, runID string) (action Action, err error) {
	defer c.recoverPanic("next_action", runID, &err)

	unlock, err := c.lock(ctx, runID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return c.engine.Analyze(ctx, runID, "")
}

// ExecuteContentGeneration 为给定的任务数据生成内容。
func (c *Coordinator) ExecuteContentGeneration(ctx context.Context, runID string, taskData map[string]interface{}) (res *GenerationResult, err error) {
	defer c.recoverPanic("execute_content_generation", runID, &err)

	unlock, err := c.lock(ctx, runID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return c.executor.Generate(ctx, runID, taskData)
}

// ExecuteContentVerification 校验会话中的一个内容块。
func (c *Coordinator) ExecuteContentVerification(ctx context.Context, runID, contentRef string) (res *VerificationResult, err error) {
	defer c.recoverPanic("execute_content_verification", runID, &err)

	unlock, err := c.lock(ctx, runID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return c.executor.Verify(ctx, runID, contentRef)
}

// ExecuteWorkflow 执行命名工作流。
func (c *Coordinator) ExecuteWorkflow(ctx context.Context, runID, workflow string) (res *WorkflowResult, err error) {
	defer c.recoverPanic("execute_workflow", runID, &err)

	unlock, err := c.lock(ctx, runID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	res, err = c.executor.Execute(ctx, runID, workflow)
	if err != nil {
		return nil, err
	}
	logger.New(serviceName, "", runID).
		WithPayload(map[string]interface{}{"workflow": res.Workflow, "ready": res.Ready, "steps": len(res.Results)}).
		Info("工作流执行完成")
	return res, nil
}

// GetConversationStatus 返回会话的只读快照。
func (c *Coordinator) GetConversationStatus(ctx context.Context, runID string) (status *ConversationStatus, err error) {
	defer c.recoverPanic("get_conversation_status", runID, &err)

	run, err := c.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	tasks, err := c.tasks.ListByRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	views := make([]TaskView, 0, len(tasks))
	for i := range tasks {
		views = append(views, toTaskView(&tasks[i]))
	}

	return &ConversationStatus{
		RunID:        run.ID,
		UserIntent:   run.UserIntent,
		Status:       run.Status,
		CurrentState: &run.State,
		Progress:     c.policies.Current().Progress(&run.State),
		Tasks:        views,
		CreatedAt:    run.CreatedAt,
		UpdatedAt:    run.UpdatedAt,
	}, nil
}

// ListConversations 返回最近的会话。
func (c *Coordinator) ListConversations(ctx context.Context, limit int) (out []RunSummary, err error) {
	defer c.recoverPanic("list_conversations", "", &err)

	runs, err := c.runs.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	out = make([]RunSummary, 0, len(runs))
	for i := range runs {
		out = append(out, c.toRunSummary(&runs[i]))
	}
	return out, nil
}

// CompleteConversation 将会话标记为 completed。
func (c *Coordinator) CompleteConversation(ctx context.Context, runID string) (res *CompletionResult, err error) {
	defer c.recoverPanic("complete_conversation", runID, &err)

	unlock, err := c.lock(ctx, runID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	run, err := c.runs.Complete(ctx, runID)
	if err != nil {
		return nil, err
	}
	logger.New(serviceName, "", runID).Info("会话已完成")
	return &CompletionResult{Status: "conversation_completed", RunID: runID, FinalStatus: run.Status}, nil
}

// FailConversation 将会话标记为 failed 并记录原因。
func (c *Coordinator) FailConversation(ctx context.Context, runID, reason string) (res *CompletionResult, err error) {
	defer c.recoverPanic("fail_conversation", runID, &err)

	unlock, err := c.lock(ctx, runID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	run, err := c.runs.Fail(ctx, runID, reason)
	if err != nil {
		return nil, err
	}
	logger.New(serviceName, "", runID).WithField("reason", reason).Warn("会话已标记为失败")
	return &CompletionResult{Status: "conversation_failed", RunID: runID, FinalStatus: run.Status}, nil
}

// ReloadPolicy 重新加载策略文件。新文件无效时保留旧策略。
func (c *Coordinator) ReloadPolicy() (err error) {
	defer c.recoverPanic("reload_policy", "", &err)

	p, err := c.policies.Reload()
	if err != nil {
		logger.New(serviceName, "", "").WithErr(err).Error("策略重新加载失败，继续使用旧策略")
		return err
	}
	logger.New(serviceName, "", "").WithField("slots", len(p.Slots())).Info("策略已重新加载")
	return nil
}

func (c *Coordinator) lock(ctx context.Context, runID string) (func(), error) {
	unlock, err := c.locker.Lock(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("获取会话锁失败: %w", err)
	}
	return unlock, nil
}

func (c *Coordinator) recoverPanic(op, runID string, err *error) {
	if r := recover(); r != nil {
		logger.New(serviceName, "", runID).
			WithPayload(map[string]interface{}{"operation": op, "panic": fmt.Sprint(r)}).
			Error("操作发生 panic")
		*err = fmt.Errorf("%w: %s: %v", ErrInternal, op, r)
	}
}
