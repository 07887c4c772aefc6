// Package writer 根据规划任务生成页面内容。
package writer

import (
	"GeoCMS/backend/go/internal/models"
	"context"
	"fmt"
	"sort"
)

// Request 是一次内容生成的输入。
type Request struct {
	RunID            string
	UserIntent       string
	PageType         string
	TaskData         map[string]interface{}
	KnowledgeContext map[string]interface{}
	Slots            map[string]interface{}
}

// Prompt 返回该任务的基础提示词。
func (r *Request) Prompt() string {
	pageType := r.PageType
	if pageType == "" {
		pageType = "general"
	}
	return fmt.Sprintf("生成%s页面内容", pageType)
}

// KnowledgeTopics 按字典序返回知识上下文中的主题。
func (r *Request) KnowledgeTopics() []string {
	return sortedKeys(r.KnowledgeContext)
}

// Content 是生成结果。Body 可直接序列化为 JSON 落库。
type Content struct {
	Format models.ContentFormat   `json:"format"`
	Body   map[string]interface{} `json:"body"`
}

// Title 返回内容标题，没有时为空串。
func (c *Content) Title() string {
	if c == nil {
		return ""
	}
	s, _ := c.Body["title"].(string)
	return s
}

// Generator 是内容生成器的统一接口。
type Generator interface {
	Generate(ctx context.Context, req *Request) (*Content, error)
}

// knowledgeName 取知识条目中的 name 字段。
func knowledgeName(knowledge map[string]interface{}, topic string) string {
	entry, ok := knowledge[topic].(map[string]interface{})
	if !ok {
		return ""
	}
	name, _ := entry["name"].(string)
	return name
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
