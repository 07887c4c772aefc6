package policy

import (
	"errors"
	"sync"
)

// Holder 持有当前生效的 Policy。重新加载时先在锁外构造新实例，再在写锁下替换，
// 读者要么看到旧策略，要么看到新策略。
type Holder struct {
	mu      sync.RWMutex
	current *Policy
	path    string
}

// NewHolder 创建一个 Holder。path 为空时不支持 Reload。
func NewHolder(p *Policy, path string) *Holder {
	return &Holder{current: p, path: path}
}

// Current 返回当前生效的策略。
func (h *Holder) Current() *Policy {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Swap 替换当前策略并返回旧策略。
func (h *Holder) Swap(p *Policy) *Policy {
	h.mu.Lock()
	defer h.mu.Unlock()
	old := h.current
	h.current = p
	return old
}

// Reload 重新读取策略文件。文件无效时保留旧策略并返回错误。
func (h *Holder) Reload() (*Policy, error) {
	if h.path == "" {
		return nil, errors.New("策略未从文件加载，无法重新加载")
	}
	p, err := LoadFile(h.path)
	if err != nil {
		return nil, err
	}
	h.Swap(p)
	return p, nil
}
