package service

import (
	"GeoCMS/backend/go/internal/conversation_service/store"
	"GeoCMS/backend/go/internal/conversation_service/verifier"
	"GeoCMS/backend/go/internal/conversation_service/writer"
	"GeoCMS/backend/go/internal/models"
	"GeoCMS/backend/go/pkg/logger"
	"GeoCMS/backend/go/pkg/metrics"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// 支持的工作流。
const (
	WorkflowStandard         = "standard"
	WorkflowWithVerification = "with_verification"
)

const (
	statusContentGenerated = "content_generated"
	statusContentVerified  = "content_verified"
	defaultPageType        = "general"
	defaultCallTimeout     = 60 * time.Second
)

// GenerationResult 是一次内容生成的结果。
type GenerationResult struct {
	Status        string                 `json:"status"`
	TaskID        string                 `json:"task_id"`
	ContentRef    string                 `json:"content_ref"`
	PageType      string                 `json:"page_type"`
	Content       map[string]interface{} `json:"content"`
	KnowledgeUsed []string               `json:"knowledge_used"`
}

// VerificationResult 是一次内容校验的结果。
type VerificationResult struct {
	Status       string           `json:"status"`
	TaskID       string           `json:"task_id"`
	ContentRef   string           `json:"content_ref"`
	Verification *verifier.Result `json:"verification_result"`
}

// StepResult 是工作流中的一步。失败的步骤只有 Error。
type StepResult struct {
	Step         string              `json:"step"`
	Generation   *GenerationResult   `json:"generation,omitempty"`
	Verification *VerificationResult `json:"verification,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// WorkflowResult 是一次工作流执行的结果。会话尚未就绪时 Results 为空，NextAction 给出原因。
type WorkflowResult struct {
	Workflow   string       `json:"workflow"`
	Ready      bool         `json:"ready"`
	NextAction Action       `json:"next_action,omitempty"`
	Results    []StepResult `json:"results"`
}

// WorkflowExecutor 按工作流依次执行规划、生成和可选的校验。
type WorkflowExecutor struct {
	engine    *DecisionEngine
	runs      *store.RunStore
	tasks     *store.TaskLedger
	contents  *store.ContentStore
	generator writer.Generator
	verifier  verifier.Verifier
	timeout   time.Duration
	metrics   *metrics.Metrics
}

// NewWorkflowExecutor 创建工作流执行器。timeout 约束每次生成或校验调用。
func NewWorkflowExecutor(engine *DecisionEngine, runs *store.RunStore, tasks *store.TaskLedger, contents *store.ContentStore,
	generator writer.Generator, v verifier.Verifier, timeout time.Duration, m *metrics.Metrics) *WorkflowExecutor {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &WorkflowExecutor{
		engine:    engine,
		runs:      runs,
		tasks:     tasks,
		contents:  contents,
		generator: generator,
		verifier:  v,
		timeout:   timeout,
		metrics:   m,
	}
}

// Execute 执行指定的工作流。
// standard：就绪时只为规划中的第一个任务生成内容。
// with_verification：在 standard 之后为每个成功生成的内容追加一个 verify 任务。
func (w *WorkflowExecutor) Execute(ctx context.Context, runID, workflow string) (*WorkflowResult, error) {
	if workflow == "" {
		workflow = WorkflowStandard
	}
	if workflow != WorkflowStandard && workflow != WorkflowWithVerification {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflow)
	}

	result := &WorkflowResult{Workflow: workflow, Results: []StepResult{}}
	action, err := w.engine.Analyze(ctx, runID, "")
	if err != nil {
		w.metrics.RecordWorkflow(workflow, "error")
		return nil, err
	}
	plan, ok := action.(*Plan)
	if !ok {
		result.NextAction = action
		w.metrics.RecordWorkflow(workflow, "not_ready")
		return result, nil
	}
	result.Ready = true

	if len(plan.Tasks) > 0 {
		first := plan.Tasks[0]
		gen, err := w.Generate(ctx, runID, map[string]interface{}{
			"type":               first.Type,
			"page_type":          first.PageType,
			"knowledge_required": first.KnowledgeRequired,
		})
		if err != nil {
			if !errors.Is(err, ErrGenerationFailed) {
				w.metrics.RecordWorkflow(workflow, "error")
				return nil, err
			}
			result.Results = append(result.Results, StepResult{Step: "generate", Error: err.Error()})
		} else {
			result.Results = append(result.Results, StepResult{Step: "generate", Generation: gen})
		}
	}

	if workflow == WorkflowWithVerification {
		// 只校验本次成功生成的内容。
		for _, step := range append([]StepResult(nil), result.Results...) {
			if step.Generation == nil {
				continue
			}
			ver, err := w.Verify(ctx, runID, step.Generation.ContentRef)
			if err != nil {
				if !errors.Is(err, ErrVerificationFailed) {
					w.metrics.RecordWorkflow(workflow, "error")
					return nil, err
				}
				result.Results = append(result.Results, StepResult{Step: "verify", Error: err.Error()})
				continue
			}
			result.Results = append(result.Results, StepResult{Step: "verify", Verification: ver})
		}
	}

	status := "ok"
	for _, step := range result.Results {
		if step.Error != "" {
			status = "partial"
		}
	}
	w.metrics.RecordWorkflow(workflow, status)
	return result, nil
}

// Generate 为一个任务描述生成内容：创建 generate_content 任务，调用生成器，保存内容，
// 最后以 {content_ref, page_type} 完成任务。生成失败或超时时任务标记为 failed，会话保持 active。
func (w *WorkflowExecutor) Generate(ctx context.Context, runID string, taskData map[string]interface{}) (*GenerationResult, error) {
	run, err := w.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !run.IsActive() {
		return nil, fmt.Errorf("%w: %s (%s)", ErrRunNotActive, runID, run.Status)
	}
	knowledgeContext, err := w.runs.KnowledgeContext(ctx, runID)
	if err != nil {
		return nil, err
	}

	if taskData == nil {
		taskData = map[string]interface{}{}
	}
	pageType, _ := taskData["page_type"].(string)
	if pageType == "" {
		pageType = defaultPageType
		taskData["page_type"] = pageType
	}

	task, err := w.tasks.Create(ctx, runID, models.TaskTypeGenerateContent, taskData)
	if err != nil {
		return nil, err
	}
	w.metrics.RecordTask(string(models.TaskTypeGenerateContent), string(models.TaskStatusPending))
	log := logger.New("conversation_service", task.ID, runID)

	req := &writer.Request{
		RunID:            runID,
		UserIntent:       run.UserIntent,
		PageType:         pageType,
		TaskData:         taskData,
		KnowledgeContext: knowledgeContext,
		Slots:            run.State.ToMap(),
	}

	genCtx, cancel := context.WithTimeout(ctx, w.timeout)
	start := time.Now()
	content, err := w.generator.Generate(genCtx, req)
	cancel()
	if err == nil && content == nil {
		err = errors.New("生成器未返回内容")
	}
	if err != nil {
		w.metrics.RecordGenerate(pageType, "failed", time.Since(start))
		log.WithErr(err).WithField("page_type", pageType).Error("内容生成失败")
		w.failTask(ctx, task, err)
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	w.metrics.RecordGenerate(pageType, "ok", time.Since(start))

	block, err := w.contents.Save(ctx, runID, pageType, content.Format, content.Body)
	if err != nil {
		w.failTask(ctx, task, err)
		return nil, err
	}

	if _, err := w.tasks.Complete(context.WithoutCancel(ctx), task.ID, map[string]interface{}{
		"content_ref": block.ID,
		"page_type":   pageType,
	}); err != nil {
		w.failTask(ctx, task, err)
		return nil, err
	}
	w.metrics.RecordTask(string(models.TaskTypeGenerateContent), string(models.TaskStatusCompleted))
	log.WithPayload(map[string]interface{}{"content_ref": block.ID, "page_type": pageType}).Info("内容生成完成")

	return &GenerationResult{
		Status:        statusContentGenerated,
		TaskID:        task.ID,
		ContentRef:    block.ID,
		PageType:      pageType,
		Content:       content.Body,
		KnowledgeUsed: req.KnowledgeTopics(),
	}, nil
}

// Verify 校验一个已保存的内容块，并以校验结果完成一个 verify 任务。
func (w *WorkflowExecutor) Verify(ctx context.Context, runID, contentRef string) (*VerificationResult, error) {
	run, err := w.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !run.IsActive() {
		return nil, fmt.Errorf("%w: %s (%s)", ErrRunNotActive, runID, run.Status)
	}
	block, err := w.contents.Get(ctx, contentRef)
	if err != nil {
		return nil, err
	}
	if block.RunID != runID {
		return nil, fmt.Errorf("%w: %s", ErrContentNotFound, contentRef)
	}

	content := &writer.Content{Format: block.Format}
	if err := json.Unmarshal(block.Body, &content.Body); err != nil {
		return nil, fmt.Errorf("内容块 %s 无法解析: %w", contentRef, err)
	}
	knowledgeContext, err := w.runs.KnowledgeContext(ctx, runID)
	if err != nil {
		return nil, err
	}

	task, err := w.tasks.Create(ctx, runID, models.TaskTypeVerify, map[string]interface{}{
		"content_ref": contentRef,
		"page_type":   block.PageType,
	})
	if err != nil {
		return nil, err
	}
	w.metrics.RecordTask(string(models.TaskTypeVerify), string(models.TaskStatusPending))

	verCtx, cancel := context.WithTimeout(ctx, w.timeout)
	res, err := w.verifier.Verify(verCtx, content, knowledgeContext)
	cancel()
	if err == nil && res == nil {
		err = errors.New("校验器未返回结果")
	}
	if err != nil {
		logger.New("conversation_service", task.ID, runID).WithErr(err).Error("内容校验失败")
		w.failTask(ctx, task, err)
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	if _, err := w.tasks.Complete(context.WithoutCancel(ctx), task.ID, res); err != nil {
		w.failTask(ctx, task, err)
		return nil, err
	}
	w.metrics.RecordTask(string(models.TaskTypeVerify), string(models.TaskStatusCompleted))

	return &VerificationResult{
		Status:       statusContentVerified,
		TaskID:       task.ID,
		ContentRef:   contentRef,
		Verification: res,
	}, nil
}

// failTask 把任务标记为 failed。调用方的 ctx 可能已经超时，这里不受其取消影响。
func (w *WorkflowExecutor) failTask(ctx context.Context, task *models.Task, cause error) {
	if _, err := w.tasks.Fail(context.WithoutCancel(ctx), task.ID, cause.Error()); err != nil {
		logger.New("conversation_service", task.ID, task.RunID).WithErr(err).Error("标记任务失败时出错")
		return
	}
	w.metrics.RecordTask(string(task.TaskType), string(models.TaskStatusFailed))
}
