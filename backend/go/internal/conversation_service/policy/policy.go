// Package policy 定义了会话规划所依赖的槽位、知识需求与任务生成规则。
// Policy 在构造后不可变，重新加载配置时整体替换（见 Holder）。
package policy

import (
	"GeoCMS/backend/go/internal/models"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

const (
	// DefaultPriority 是未声明优先级的槽位所使用的优先级。
	DefaultPriority = 999
	// DefaultDiscriminant 是用来选择知识需求和任务规则的槽位。
	DefaultDiscriminant = "site_type"
	// DefaultFallbackPrompt 在槽位没有配置提示语时使用，{slot} 会被替换为槽位名。
	DefaultFallbackPrompt = "请提供{slot}"
)

// ErrInvalidPolicy 表示策略文件内容不合法。
var ErrInvalidPolicy = errors.New("invalid planner policy")

// SlotDefinition 描述一个需要向用户收集的信息槽位。
type SlotDefinition struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Prompt      string   `json:"prompt,omitempty"`
	Required    bool     `json:"required"`
	Priority    int      `json:"priority"`
	Options     []string `json:"options,omitempty"`
}

// KnowledgeRequirement 把判别槽位的取值映射到一个必须可解析的知识主题。
// RequiredFor 中的每一项都是 glob 模式，例如 "企业*"。
type KnowledgeRequirement struct {
	Topic       string   `json:"topic"`
	Description string   `json:"description"`
	RequiredFor []string `json:"required_for"`

	matchers []glob.Glob
}

// Matches 判断判别值是否命中该需求。
func (r KnowledgeRequirement) Matches(value string) bool {
	for _, m := range r.matchers {
		if m.Match(value) {
			return true
		}
	}
	return false
}

// TaskRule 是规划阶段生成的一个任务描述。
type TaskRule struct {
	Type              string   `json:"type" yaml:"type"`
	PageType          string   `json:"page_type" yaml:"page_type"`
	KnowledgeRequired []string `json:"knowledge_required" yaml:"knowledge_required"`
}

// Policy 是不可变的规划策略。
type Policy struct {
	discriminant   string
	fallbackPrompt string
	slots          []SlotDefinition
	slotIndex      map[string]int
	requirements   []KnowledgeRequirement
	rules          []ruleSet
	defaultTasks   []TaskRule
	nextSteps      []string
}

type ruleSet struct {
	key   string
	tasks []TaskRule
}

// New 校验文档并构造 Policy。
func New(doc Document) (*Policy, error) {
	p := &Policy{
		discriminant:   doc.DiscriminantSlot,
		fallbackPrompt: doc.FallbackPrompt,
		slotIndex:      make(map[string]int, len(doc.SlotDefinitions)),
		nextSteps:      append([]string(nil), doc.NextSteps...),
	}
	if p.discriminant == "" {
		p.discriminant = DefaultDiscriminant
	}
	if p.fallbackPrompt == "" {
		p.fallbackPrompt = DefaultFallbackPrompt
	}

	for _, def := range doc.SlotDefinitions {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: 槽位名称不能为空", ErrInvalidPolicy)
		}
		if IsReservedKey(name) {
			return nil, fmt.Errorf("%w: 槽位名称 '%s' 是保留字段", ErrInvalidPolicy, name)
		}
		if _, dup := p.slotIndex[name]; dup {
			return nil, fmt.Errorf("%w: 槽位 '%s' 重复定义", ErrInvalidPolicy, name)
		}
		def.Name = name
		def.Options = append([]string(nil), def.Options...)
		p.slotIndex[name] = len(p.slots)
		p.slots = append(p.slots, def)
	}

	for _, req := range doc.KnowledgeRequirements {
		if req.Topic == "" {
			return nil, fmt.Errorf("%w: 知识主题不能为空", ErrInvalidPolicy)
		}
		compiled := KnowledgeRequirement{
			Topic:       req.Topic,
			Description: req.Description,
			RequiredFor: append([]string(nil), req.RequiredFor...),
		}
		for _, pattern := range req.RequiredFor {
			g, err := glob.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("%w: 知识主题 '%s' 的模式 '%s' 无法编译: %v", ErrInvalidPolicy, req.Topic, pattern, err)
			}
			compiled.matchers = append(compiled.matchers, g)
		}
		p.requirements = append(p.requirements, compiled)
	}

	for _, rs := range doc.TaskGenerationRules {
		tasks, err := normalizeTasks(rs.Tasks)
		if err != nil {
			return nil, fmt.Errorf("%w: 任务规则 '%s': %v", ErrInvalidPolicy, rs.Key, err)
		}
		p.rules = append(p.rules, ruleSet{key: rs.Key, tasks: tasks})
	}

	defaults, err := normalizeTasks(doc.DefaultTasks)
	if err != nil {
		return nil, fmt.Errorf("%w: 默认任务: %v", ErrInvalidPolicy, err)
	}
	if len(defaults) == 0 {
		defaults = []TaskRule{{Type: string(models.TaskTypeGenerateContent), PageType: "homepage"}}
	}
	p.defaultTasks = defaults
	if len(p.nextSteps) == 0 {
		p.nextSteps = []string{"执行内容生成任务", "验证生成的内容", "完成建站流程"}
	}
	return p, nil
}

func normalizeTasks(in []TaskRule) ([]TaskRule, error) {
	out := make([]TaskRule, 0, len(in))
	for _, t := range in {
		if t.Type == "" {
			t.Type = string(models.TaskTypeGenerateContent)
		}
		if t.PageType == "" {
			return nil, errors.New("page_type 不能为空")
		}
		t.KnowledgeRequired = append([]string(nil), t.KnowledgeRequired...)
		out = append(out, t)
	}
	return out, nil
}

// IsReservedKey 判断键是否为状态中保留的非槽位字段。
func IsReservedKey(name string) bool {
	return name == models.StateKeyKnowledgeContext || name == models.StateKeyError
}

// Discriminant 返回用于选择规则的槽位名。
func (p *Policy) Discriminant() string {
	return p.discriminant
}

// Slots 按定义顺序返回所有槽位定义的副本。
func (p *Policy) Slots() []SlotDefinition {
	out := make([]SlotDefinition, len(p.slots))
	copy(out, p.slots)
	return out
}

// Slot 按名称查找槽位定义。
func (p *Policy) Slot(name string) (SlotDefinition, bool) {
	i, ok := p.slotIndex[name]
	if !ok {
		return SlotDefinition{}, false
	}
	return p.slots[i], true
}

// HasSlot 判断槽位是否由当前策略定义。
func (p *Policy) HasSlot(name string) bool {
	_, ok := p.slotIndex[name]
	return ok
}

// RequiredSlots 按定义顺序返回必填槽位。
func (p *Policy) RequiredSlots() []SlotDefinition {
	var out []SlotDefinition
	for _, s := range p.slots {
		if s.Required {
			out = append(out, s)
		}
	}
	return out
}

// MissingRequired 返回尚未填写的必填槽位，按优先级升序，同优先级保持定义顺序。
// 结果的第一个元素就是下一个要问的问题。
func (p *Policy) MissingRequired(state *models.SlotState) []SlotDefinition {
	var missing []SlotDefinition
	for _, s := range p.slots {
		if s.Required && !state.IsFilled(s.Name) {
			missing = append(missing, s)
		}
	}
	sort.SliceStable(missing, func(i, j int) bool {
		return missing[i].Priority < missing[j].Priority
	})
	return missing
}

// IsSatisfied 判断所有必填槽位都已填写。
func (p *Policy) IsSatisfied(state *models.SlotState) bool {
	return len(p.MissingRequired(state)) == 0
}

// Progress 返回已填写必填槽位的比例；没有必填槽位时为 1。
func (p *Policy) Progress(state *models.SlotState) float64 {
	required := p.RequiredSlots()
	if len(required) == 0 {
		return 1.0
	}
	filled := 0
	for _, s := range required {
		if state.IsFilled(s.Name) {
			filled++
		}
	}
	return float64(filled) / float64(len(required))
}

// PromptFor 返回槽位的提问文本，未配置时使用兜底文本。
func (p *Policy) PromptFor(def SlotDefinition) string {
	if def.Prompt != "" {
		return def.Prompt
	}
	return strings.ReplaceAll(p.fallbackPrompt, "{slot}", def.Name)
}

// DefaultState 构造新会话的初始状态：所有槽位为 null，知识上下文为空对象，
// 然后按顺序应用 overrides。
func (p *Policy) DefaultState(overrides *models.SlotState) *models.SlotState {
	state := models.NewSlotState()
	for _, s := range p.slots {
		state.Set(s.Name, nil)
	}
	state.Set(models.StateKeyKnowledgeContext, map[string]any{})
	for _, key := range overrides.Keys() {
		v, _ := overrides.Get(key)
		state.Set(key, v)
	}
	return state
}

// Backfill 为旧状态补上新策略中出现的槽位（值为 null），返回是否有改动。
func (p *Policy) Backfill(state *models.SlotState) bool {
	changed := false
	for _, s := range p.slots {
		if !state.Has(s.Name) {
			state.Set(s.Name, nil)
			changed = true
		}
	}
	if !state.Has(models.StateKeyKnowledgeContext) {
		state.Set(models.StateKeyKnowledgeContext, map[string]any{})
		changed = true
	}
	return changed
}

// KnowledgeTopics 返回当前状态隐含的全部知识需求：
// 先是按判别值命中的需求，再是对应任务规则里声明的主题，按出现顺序去重。
func (p *Policy) KnowledgeTopics(state *models.SlotState) []KnowledgeRequirement {
	value := state.GetString(p.discriminant)
	seen := make(map[string]bool)
	var out []KnowledgeRequirement
	for _, req := range p.requirements {
		if value != "" && req.Matches(value) && !seen[req.Topic] {
			seen[req.Topic] = true
			out = append(out, req)
		}
	}
	for _, task := range p.TasksFor(state) {
		for _, topic := range task.KnowledgeRequired {
			if seen[topic] {
				continue
			}
			seen[topic] = true
			req, ok := p.Requirement(topic)
			if !ok {
				req = KnowledgeRequirement{Topic: topic}
			}
			out = append(out, req)
		}
	}
	return out
}

// Requirement 按主题查找知识需求定义。
func (p *Policy) Requirement(topic string) (KnowledgeRequirement, bool) {
	for _, req := range p.requirements {
		if req.Topic == topic {
			return req, true
		}
	}
	return KnowledgeRequirement{}, false
}

// TasksFor 返回判别值对应的任务规则；没有命中时返回默认任务。
func (p *Policy) TasksFor(state *models.SlotState) []TaskRule {
	value := state.GetString(p.discriminant)
	for _, rs := range p.rules {
		if rs.key == value {
			return cloneTasks(rs.tasks)
		}
	}
	return cloneTasks(p.defaultTasks)
}

// NextSteps 返回规划结果附带的后续步骤说明。
func (p *Policy) NextSteps() []string {
	return append([]string(nil), p.nextSteps...)
}

func cloneTasks(in []TaskRule) []TaskRule {
	out := make([]TaskRule, len(in))
	for i, t := range in {
		t.KnowledgeRequired = append([]string(nil), t.KnowledgeRequired...)
		out[i] = t
	}
	return out
}
