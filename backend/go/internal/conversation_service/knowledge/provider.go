// Package knowledge 提供规划阶段使用的知识查询。
package knowledge

import (
	"context"
	"sync"
)

// Provider 按主题查询知识。found 为 false 表示主题不存在；err 表示查询本身失败。
type Provider interface {
	Lookup(ctx context.Context, topic string) (content interface{}, found bool, err error)
}

// StaticProvider 是基于内存 map 的 Provider，用于开发环境和测试。
type StaticProvider struct {
	mu      sync.RWMutex
	entries map[string]interface{}
}

// NewStaticProvider 创建一个 StaticProvider。
func NewStaticProvider(entries map[string]interface{}) *StaticProvider {
	copied := make(map[string]interface{}, len(entries))
	for k, v := range entries {
		copied[k] = v
	}
	return &StaticProvider{entries: copied}
}

// Lookup 实现 Provider。
func (p *StaticProvider) Lookup(ctx context.Context, topic string) (interface{}, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.entries[topic]
	return v, ok, nil
}

// Set 写入或覆盖一个主题。
func (p *StaticProvider) Set(topic string, content interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[topic] = content
}
