package models

// SpeakerRole 定义了对话中的角色。
type SpeakerRole string

const (
	SpeakerSystem    SpeakerRole = "system"
	SpeakerUser      SpeakerRole = "user"
	SpeakerAssistant SpeakerRole = "assistant"
)

// Message 是发送给 LLM 的一条消息。
type Message struct {
	Role SpeakerRole `json:"role"`
	Text string      `json:"text"`
}

// GenerateContentRequest 是一次文本生成请求。
type GenerateContentRequest struct {
	Messages    []Message `json:"messages"`
	Temperature float32   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// GenerateContentResponse 是一次文本生成的结果。
type GenerateContentResponse struct {
	Text         string `json:"text"`
	ResponseID   string `json:"response_id,omitempty"`
	ModelVersion string `json:"model_version,omitempty"`
}
