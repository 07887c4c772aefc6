package service

import (
	"GeoCMS/backend/go/internal/conversation_service/policy"
	"GeoCMS/backend/go/internal/models"
	"encoding/json"
)

// ActionKind 标识决策结果的类型。
type ActionKind string

const (
	ActionAskSlot          ActionKind = "ask_slot"
	ActionMissingKnowledge ActionKind = "missing_knowledge"
	ActionPlan             ActionKind = "plan"
)

// Action 是决策引擎的输出，只有 AskSlot、MissingKnowledge 和 Plan 三种实现。
type Action interface {
	Kind() ActionKind
	isAction()
}

// AskSlot 要求用户补充一个槽位。
type AskSlot struct {
	SlotName     string            `json:"slot_name"`
	Prompt       string            `json:"prompt"`
	Options      []string          `json:"options,omitempty"`
	Progress     float64           `json:"progress"`
	CurrentState *models.SlotState `json:"current_state"`
}

// KnowledgeGap 描述一个缺失的知识主题。
type KnowledgeGap struct {
	Topic       string `json:"topic"`
	Description string `json:"description"`
}

// MissingKnowledge 表示槽位已齐全，但仍有知识主题无法解析。
type MissingKnowledge struct {
	MissingKnowledge   []KnowledgeGap `json:"missing_knowledge"`
	AvailableKnowledge []string       `json:"available_knowledge"`
	Message            string         `json:"message"`
}

// Plan 是可以开始生成内容时的任务规划。
type Plan struct {
	Tasks            []policy.TaskRule      `json:"tasks"`
	KnowledgeContext map[string]interface{} `json:"knowledge_context"`
	NextSteps        []string               `json:"next_steps"`
}

func (*AskSlot) Kind() ActionKind          { return ActionAskSlot }
func (*MissingKnowledge) Kind() ActionKind { return ActionMissingKnowledge }
func (*Plan) Kind() ActionKind             { return ActionPlan }

func (*AskSlot) isAction()          {}
func (*MissingKnowledge) isAction() {}
func (*Plan) isAction()             {}

// MarshalJSON 在输出中加入 "action" 字段。
func (a *AskSlot) MarshalJSON() ([]byte, error) {
	type alias AskSlot
	return json.Marshal(struct {
		Action ActionKind `json:"action"`
		*alias
	}{ActionAskSlot, (*alias)(a)})
}

// MarshalJSON 在输出中加入 "action" 字段。
func (m *MissingKnowledge) MarshalJSON() ([]byte, error) {
	type alias MissingKnowledge
	return json.Marshal(struct {
		Action ActionKind `json:"action"`
		*alias
	}{ActionMissingKnowledge, (*alias)(m)})
}

// MarshalJSON 在输出中加入 "action" 字段。
func (p *Plan) MarshalJSON() ([]byte, error) {
	type alias Plan
	return json.Marshal(struct {
		Action ActionKind `json:"action"`
		*alias
	}{ActionPlan, (*alias)(p)})
}
