package service

import (
	"GeoCMS/backend/go/internal/conversation_service/store"
	"errors"
)

var (
	// ErrInvalidInput 表示请求参数不合法，例如 user_intent 为空。
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidSlot 表示槽位名不在当前策略中。
	ErrInvalidSlot = errors.New("invalid slot")
	// ErrUnknownWorkflow 表示工作流名称未知。
	ErrUnknownWorkflow = errors.New("unknown workflow type")
	// ErrGenerationFailed 表示内容生成失败或超时，对应任务已标记为 failed。
	ErrGenerationFailed = errors.New("content generation failed")
	// ErrVerificationFailed 表示内容校验调用失败，对应任务已标记为 failed。
	ErrVerificationFailed = errors.New("content verification failed")
	// ErrInternal 表示内部错误，例如处理过程中发生 panic。
	ErrInternal = errors.New("internal error")
)

// 以下错误由存储层定义，这里重新导出，方便上层统一判断。
var (
	ErrRunNotFound     = store.ErrRunNotFound
	ErrRunNotActive    = store.ErrRunNotActive
	ErrTaskNotFound    = store.ErrTaskNotFound
	ErrTaskFinalized   = store.ErrTaskFinalized
	ErrContentNotFound = store.ErrContentNotFound
)
