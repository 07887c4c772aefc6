package knowledge

import (
	"GeoCMS/backend/go/pkg/util"
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// CachedProvider 为另一个 Provider 加上 LRU 缓存，并合并同一主题的并发查询。
// 只缓存命中的结果，未命中和错误每次都会重新查询。
type CachedProvider struct {
	next  Provider
	cache *util.LRUCache[string, interface{}]
	group singleflight.Group
}

// NewCachedProvider 创建一个 CachedProvider。
func NewCachedProvider(next Provider, capacity int, ttl time.Duration) (*CachedProvider, error) {
	cache, err := util.NewLRU[string, interface{}](util.CacheConfig{Capacity: capacity, TTL: ttl})
	if err != nil {
		return nil, err
	}
	return &CachedProvider{next: next, cache: cache}, nil
}

type lookupResult struct {
	content interface{}
	found   bool
}

// Lookup 实现 Provider。
func (p *CachedProvider) Lookup(ctx context.Context, topic string) (interface{}, bool, error) {
	if v, ok := p.cache.Get(topic); ok {
		return v, true, nil
	}
	v, err, _ := p.group.Do(topic, func() (interface{}, error) {
		content, found, err := p.next.Lookup(ctx, topic)
		if err != nil {
			return nil, err
		}
		if found {
			p.cache.Put(topic, content)
		}
		return lookupResult{content: content, found: found}, nil
	})
	if err != nil {
		return nil, false, err
	}
	res := v.(lookupResult)
	return res.content, res.found, nil
}

// Invalidate 清除一个主题的缓存，知识更新后调用。
func (p *CachedProvider) Invalidate(topic string) {
	p.cache.Delete(topic)
}

// Purge 清空缓存。
func (p *CachedProvider) Purge() {
	p.cache.Purge()
}
