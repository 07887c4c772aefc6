package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Document 是策略文件的结构。映射类字段按文件中的书写顺序解码，
// 槽位的定义顺序决定同优先级时的提问顺序。JSON 文件同样可以解析。
type Document struct {
	DiscriminantSlot      string                `yaml:"discriminant_slot"`
	FallbackPrompt        string                `yaml:"fallback_prompt"`
	SlotDefinitions       SlotDefinitions       `yaml:"slot_definitions"`
	KnowledgeRequirements KnowledgeRequirements `yaml:"knowledge_requirements"`
	TaskGenerationRules   TaskRuleSets          `yaml:"task_generation_rules"`
	DefaultTasks          []TaskRule            `yaml:"default_tasks"`
	NextSteps             []string              `yaml:"next_steps"`
}

// SlotDefinitions 从 name -> 定义 的有序映射解码。
type SlotDefinitions []SlotDefinition

// UnmarshalYAML 实现 yaml.Unmarshaler。
func (s *SlotDefinitions) UnmarshalYAML(node *yaml.Node) error {
	return eachPair(node, "slot_definitions", func(key string, value *yaml.Node) error {
		var raw struct {
			Description string   `yaml:"description"`
			Prompt      string   `yaml:"prompt"`
			Required    bool     `yaml:"required"`
			Priority    *int     `yaml:"priority"`
			Options     []string `yaml:"options"`
		}
		if err := value.Decode(&raw); err != nil {
			return fmt.Errorf("槽位 '%s': %w", key, err)
		}
		def := SlotDefinition{
			Name:        key,
			Description: raw.Description,
			Prompt:      raw.Prompt,
			Required:    raw.Required,
			Priority:    DefaultPriority,
			Options:     raw.Options,
		}
		if raw.Priority != nil {
			def.Priority = *raw.Priority
		}
		*s = append(*s, def)
		return nil
	})
}

// KnowledgeRequirements 从 topic -> 定义 的有序映射解码。
type KnowledgeRequirements []KnowledgeRequirement

// UnmarshalYAML 实现 yaml.Unmarshaler。
func (k *KnowledgeRequirements) UnmarshalYAML(node *yaml.Node) error {
	return eachPair(node, "knowledge_requirements", func(key string, value *yaml.Node) error {
		var raw struct {
			Description string   `yaml:"description"`
			RequiredFor []string `yaml:"required_for"`
		}
		if err := value.Decode(&raw); err != nil {
			return fmt.Errorf("知识主题 '%s': %w", key, err)
		}
		*k = append(*k, KnowledgeRequirement{
			Topic:       key,
			Description: raw.Description,
			RequiredFor: raw.RequiredFor,
		})
		return nil
	})
}

// TaskRuleSet 是某个判别值对应的任务列表。
type TaskRuleSet struct {
	Key   string
	Tasks []TaskRule
}

// TaskRuleSets 从 判别值 -> 任务列表 的有序映射解码。
type TaskRuleSets []TaskRuleSet

// UnmarshalYAML 实现 yaml.Unmarshaler。
func (t *TaskRuleSets) UnmarshalYAML(node *yaml.Node) error {
	return eachPair(node, "task_generation_rules", func(key string, value *yaml.Node) error {
		var tasks []TaskRule
		if err := value.Decode(&tasks); err != nil {
			return fmt.Errorf("任务规则 '%s': %w", key, err)
		}
		*t = append(*t, TaskRuleSet{Key: key, Tasks: tasks})
		return nil
	})
}

func eachPair(node *yaml.Node, field string, fn func(key string, value *yaml.Node) error) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("第 %d 行: %s 必须是映射", node.Line, field)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if err := fn(node.Content[i].Value, node.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// Parse 解析策略文件内容（YAML 或 JSON）并构造 Policy。
func Parse(data []byte) (*Policy, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	return New(doc)
}

// LoadFile 从路径读取并解析策略文件。
func LoadFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取策略文件 '%s': %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("策略文件 '%s': %w", path, err)
	}
	return p, nil
}
