package store

import "errors"

var (
	// ErrRunNotFound 表示会话不存在。
	ErrRunNotFound = errors.New("run not found")
	// ErrRunNotActive 表示会话已结束，不能再修改。
	ErrRunNotActive = errors.New("run is not active")
	// ErrTaskNotFound 表示任务不存在。
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskFinalized 表示任务已处于终态，不能再次转换。
	ErrTaskFinalized = errors.New("task already finalized")
	// ErrContentNotFound 表示内容块不存在。
	ErrContentNotFound = errors.New("content block not found")
)
