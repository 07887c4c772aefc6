package writer

import (
	"GeoCMS/backend/go/internal/llm"
	"GeoCMS/backend/go/internal/models"
	"GeoCMS/backend/go/pkg/circuitbreaker"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

const systemPrompt = "你是一名专业的网站内容编辑，使用简体中文撰写结构清晰的 Markdown 页面内容。"

var (
	htmlTagRe  = regexp.MustCompile(`(?i)</?(html|body|div|p|h[1-6]|ul|ol|li|section|article|span|strong|em|br)\b[^>]*>`)
	mdHeadline = regexp.MustCompile(`(?m)^#\s+(.+)$`)
)

// LLMWriter 通过大模型生成 Markdown 页面内容。
type LLMWriter struct {
	client      llm.LLM
	breaker     *circuitbreaker.Breaker
	temperature float32
	maxTokens   int
}

// LLMWriterOption 配置 LLMWriter。
type LLMWriterOption func(*LLMWriter)

// WithBreaker 为模型调用加上熔断保护。
func WithBreaker(b *circuitbreaker.Breaker) LLMWriterOption {
	return func(w *LLMWriter) { w.breaker = b }
}

// WithSampling 设置采样参数，非正数保持默认值。
func WithSampling(temperature float32, maxTokens int) LLMWriterOption {
	return func(w *LLMWriter) {
		if temperature > 0 {
			w.temperature = temperature
		}
		if maxTokens > 0 {
			w.maxTokens = maxTokens
		}
	}
}

// NewLLMWriter 创建 LLMWriter。
func NewLLMWriter(client llm.LLM, opts ...LLMWriterOption) *LLMWriter {
	w := &LLMWriter{client: client, temperature: 0.7, maxTokens: 2000}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Generate 实现 Generator。
func (w *LLMWriter) Generate(ctx context.Context, req *Request) (*Content, error) {
	genReq := &models.GenerateContentRequest{
		Messages: []models.Message{
			{Role: models.SpeakerSystem, Text: systemPrompt},
			{Role: models.SpeakerUser, Text: BuildPrompt(req)},
		},
		Temperature: w.temperature,
		MaxTokens:   w.maxTokens,
	}

	var resp *models.GenerateContentResponse
	call := func(ctx context.Context) error {
		var err error
		resp, err = w.client.GenerateContent(ctx, genReq)
		return err
	}

	var err error
	if w.breaker != nil {
		err = w.breaker.Do(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("llm generation failed: %w", err)
	}

	markdown, err := normalizeMarkdown(resp.Text)
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"title":             extractTitle(markdown, req),
		"markdown":          markdown,
		"page_type":         req.PageType,
		"knowledge_sources": req.KnowledgeTopics(),
	}
	if resp.ModelVersion != "" {
		body["model"] = resp.ModelVersion
	}
	return &Content{Format: models.ContentFormatMarkdown, Body: body}, nil
}

// BuildPrompt 根据任务和知识上下文构建写作提示词。
func BuildPrompt(req *Request) string {
	var sb strings.Builder
	sb.WriteString("请根据以下要求生成内容：\n\n")
	fmt.Fprintf(&sb, "主题：%s\n", req.Prompt())
	fmt.Fprintf(&sb, "内容类型：%s\n", req.PageType)
	if req.UserIntent != "" {
		fmt.Fprintf(&sb, "用户需求：%s\n", req.UserIntent)
	}
	sb.WriteString("\n")

	if len(req.Slots) > 0 {
		sb.WriteString("已收集的信息：\n")
		for _, key := range sortedKeys(req.Slots) {
			if v := req.Slots[key]; v != nil && key != models.StateKeyKnowledgeContext && key != models.StateKeyError {
				fmt.Fprintf(&sb, "- %s: %v\n", key, v)
			}
		}
		sb.WriteString("\n")
	}

	if len(req.KnowledgeContext) > 0 {
		sb.WriteString("相关背景信息：\n")
		for _, topic := range req.KnowledgeTopics() {
			raw, err := json.Marshal(req.KnowledgeContext[topic])
			if err != nil {
				continue
			}
			fmt.Fprintf(&sb, "- %s: %s\n", topic, raw)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("请按照以下结构生成内容：\n")
	sb.WriteString("1. 一个吸引人的标题\n")
	sb.WriteString("2. 3-5个主要章节标题\n")
	sb.WriteString("3. 每个章节包含详细的段落内容\n")
	sb.WriteString("\n请确保内容准确、有用且易于理解，并充分利用提供的背景信息。")
	return sb.String()
}

// normalizeMarkdown 把看起来是 HTML 的输出转换为 Markdown。
func normalizeMarkdown(text string) (string, error) {
	text = strings.TrimSpace(text)
	if !htmlTagRe.MatchString(text) {
		return text, nil
	}
	md, err := htmltomarkdown.ConvertString(text)
	if err != nil {
		return "", fmt.Errorf("failed to convert html output: %w", err)
	}
	return strings.TrimSpace(md), nil
}

func extractTitle(markdown string, req *Request) string {
	if m := mdHeadline.FindStringSubmatch(markdown); m != nil {
		return strings.TrimSpace(m[1])
	}
	return req.Prompt()
}
