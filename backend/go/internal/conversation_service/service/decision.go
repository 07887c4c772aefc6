package service

import (
	"GeoCMS/backend/go/internal/conversation_service/knowledge"
	"GeoCMS/backend/go/internal/conversation_service/policy"
	"GeoCMS/backend/go/internal/conversation_service/store"
	"GeoCMS/backend/go/internal/models"
	"GeoCMS/backend/go/pkg/logger"
	"GeoCMS/backend/go/pkg/metrics"
	"context"
	"fmt"
)

const missingKnowledgeMessage = "需要补充以下知识后才能生成内容"

// DecisionEngine 根据会话状态决定下一步：询问槽位、报告缺失知识或给出规划。
// 状态依次为 CollectingSlots、AwaitingKnowledge、Ready。
type DecisionEngine struct {
	runs      *store.RunStore
	tasks     *store.TaskLedger
	policies  *policy.Holder
	knowledge knowledge.Provider
	metrics   *metrics.Metrics
}

// NewDecisionEngine 创建决策引擎。m 可以为 nil。
func NewDecisionEngine(runs *store.RunStore, tasks *store.TaskLedger, policies *policy.Holder, provider knowledge.Provider, m *metrics.Metrics) *DecisionEngine {
	return &DecisionEngine{
		runs:      runs,
		tasks:     tasks,
		policies:  policies,
		knowledge: provider,
		metrics:   m,
	}
}

// Analyze 分析会话的下一步动作。会话不存在时返回错误且不修改任何状态。
// 进入 Ready 时把解析到的知识写入会话状态的 knowledge_context。
func (e *DecisionEngine) Analyze(ctx context.Context, runID, userInput string) (Action, error) {
	run, err := e.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	p := e.policies.Current()

	if missing := p.MissingRequired(&run.State); len(missing) > 0 {
		next := missing[0]
		e.metrics.RecordAction(string(ActionAskSlot))
		return &AskSlot{
			SlotName:     next.Name,
			Prompt:       p.PromptFor(next),
			Options:      next.Options,
			Progress:     p.Progress(&run.State),
			CurrentState: run.State.Clone(),
		}, nil
	}

	requirements := p.KnowledgeTopics(&run.State)
	resolved, gaps, err := e.resolveKnowledge(ctx, runID, requirements)
	if err != nil {
		return nil, err
	}
	if len(gaps) > 0 {
		available := make([]string, 0, len(resolved))
		for _, req := range requirements {
			if _, ok := resolved[req.Topic]; ok {
				available = append(available, req.Topic)
			}
		}
		e.metrics.RecordAction(string(ActionMissingKnowledge))
		return &MissingKnowledge{
			MissingKnowledge:   gaps,
			AvailableKnowledge: available,
			Message:            missingKnowledgeMessage,
		}, nil
	}

	normalized, err := models.DecodeValue(resolved)
	if err != nil {
		return nil, fmt.Errorf("知识上下文无法序列化: %w", err)
	}
	knowledgeContext, _ := normalized.(map[string]interface{})
	if run.IsActive() {
		if err := e.runs.UpdateKnowledgeContext(ctx, runID, knowledgeContext); err != nil {
			return nil, err
		}
	}

	e.metrics.RecordAction(string(ActionPlan))
	return &Plan{
		Tasks:            p.TasksFor(&run.State),
		KnowledgeContext: knowledgeContext,
		NextSteps:        p.NextSteps(),
	}, nil
}

// resolveKnowledge 查询每个知识主题。提供者出错时降级为全部缺失。
func (e *DecisionEngine) resolveKnowledge(ctx context.Context, runID string, requirements []policy.KnowledgeRequirement) (map[string]interface{}, []KnowledgeGap, error) {
	resolved := make(map[string]interface{}, len(requirements))
	var gaps []KnowledgeGap
	for _, req := range requirements {
		content, found, err := e.knowledge.Lookup(ctx, req.Topic)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, ctxErr
			}
			logger.New("conversation_service", "", runID).
				WithErr(err).
				WithField("topic", req.Topic).
				Warn("知识提供者查询失败，按全部缺失处理")
			return map[string]interface{}{}, allGaps(requirements), nil
		}
		if !found {
			gaps = append(gaps, KnowledgeGap{Topic: req.Topic, Description: req.Description})
			continue
		}
		resolved[req.Topic] = content
	}
	return resolved, gaps, nil
}

func allGaps(requirements []policy.KnowledgeRequirement) []KnowledgeGap {
	gaps := make([]KnowledgeGap, 0, len(requirements))
	for _, req := range requirements {
		gaps = append(gaps, KnowledgeGap{Topic: req.Topic, Description: req.Description})
	}
	return gaps
}

// ProcessSlotInput 记录用户对一个槽位的回答，然后重新分析下一步。
// 先创建并完成 ask_slot 任务，再写入槽位；第二步失败时审计记录仍然保留。
func (e *DecisionEngine) ProcessSlotInput(ctx context.Context, runID, slotName, userInput string) (Action, error) {
	run, err := e.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !run.IsActive() {
		return nil, fmt.Errorf("%w: %s (%s)", ErrRunNotActive, runID, run.Status)
	}
	if !e.policies.Current().HasSlot(slotName) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSlot, slotName)
	}

	task, err := e.tasks.Create(ctx, runID, models.TaskTypeAskSlot, map[string]interface{}{
		"slot_name":  slotName,
		"user_input": userInput,
	})
	if err != nil {
		return nil, err
	}
	e.metrics.RecordTask(string(models.TaskTypeAskSlot), string(models.TaskStatusPending))
	if _, err := e.tasks.Complete(ctx, task.ID, map[string]interface{}{"slot_value": userInput}); err != nil {
		return nil, err
	}
	e.metrics.RecordTask(string(models.TaskTypeAskSlot), string(models.TaskStatusCompleted))

	if _, err := e.runs.UpdateSlot(ctx, runID, slotName, userInput); err != nil {
		return nil, err
	}
	return e.Analyze(ctx, runID, userInput)
}
