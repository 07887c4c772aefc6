package llm

import (
	"GeoCMS/backend/go/internal/config"
	"GeoCMS/backend/go/internal/models"
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyResponse 表示模型没有返回任何文本。
var ErrEmptyResponse = errors.New("llm returned empty response")

// LLM 定义了所有大型语言模型客户端必须实现的通用接口。
type LLM interface {
	GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error)
}

// NewClient 是一个工厂函数，根据提供的配置创建并返回一个实现了 LLM 接口的客户端。
// provider 为 "mock" 时不需要模型客户端，调用方应直接使用模板生成器。
func NewClient(cfg config.LLMConfig) (LLM, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		if cfg.OpenAI.Model == "" {
			return nil, fmt.Errorf("no model configured for openai provider")
		}
		return NewOpenAI(cfg.OpenAI.Model, cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	case "ollama":
		if cfg.Ollama.Model == "" {
			return nil, fmt.Errorf("no model configured for ollama provider")
		}
		return NewOllama(cfg.Ollama.Model, cfg.Ollama.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// joinPrompt 把消息拼接成单个提示词，供只接受纯文本提示的后端使用。
func joinPrompt(req *models.GenerateContentRequest) (system, prompt string) {
	var sys, parts []string
	for _, m := range req.Messages {
		if m.Role == models.SpeakerSystem {
			sys = append(sys, m.Text)
			continue
		}
		parts = append(parts, m.Text)
	}
	return strings.Join(sys, "\n"), strings.Join(parts, "\n\n")
}
