package dbcache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"geofence-editor/internal/metrics"
)

// LRU：进程内引用缓存，按要素 id 记录导入来源与副本
// 背景：带来源标记的新增需要能被后续的按来源替换与恢复找回；单实例部署时无需外部依赖。
// 约束：容量满时淘汰最久未访问的条目；过期条目在读取时惰性删除。
type LRU struct {
	mu   sync.Mutex
	cap  int
	ttl  time.Duration
	lst  *list.List
	dict map[string]*list.Element
	now  func() time.Time
}

type item struct {
	k   string
	v   Entry
	exp time.Time
}

// NewLRU：capacity<=0 时取 4096；ttlSec<=0 时条目不过期
func NewLRU(capacity int, ttlSec int) *LRU {
	if capacity <= 0 {
		capacity = 4096
	}
	return &LRU{
		cap:  capacity,
		ttl:  time.Duration(ttlSec) * time.Second,
		lst:  list.New(),
		dict: make(map[string]*list.Element),
		now:  time.Now,
	}
}

func (c *LRU) Record(_ context.Context, e Entry) error {
	if e.Feature == nil {
		return ErrNoFeature
	}
	k := e.Key()
	if k == "" {
		return ErrNoID
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	it := item{k: k, v: e, exp: c.expiry()}
	if el, ok := c.dict[k]; ok {
		el.Value = it
		c.lst.MoveToFront(el)
		return nil
	}
	c.dict[k] = c.lst.PushFront(it)
	for c.lst.Len() > c.cap {
		back := c.lst.Back()
		if back == nil {
			break
		}
		delete(c.dict, back.Value.(item).k)
		c.lst.Remove(back)
	}
	return nil
}

func (c *LRU) Lookup(_ context.Context, key string) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.dict[key]; ok {
		it := el.Value.(item)
		if it.exp.IsZero() || c.now().Before(it.exp) {
			c.lst.MoveToFront(el)
			metrics.CacheHitsTotal.WithLabelValues("lru").Inc()
			return it.v, true, nil
		}
		c.lst.Remove(el)
		delete(c.dict, key)
	}
	metrics.CacheMissesTotal.WithLabelValues("lru").Inc()
	return Entry{}, false, nil
}

func (c *LRU) Forget(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.dict[key]; ok {
		c.lst.Remove(el)
		delete(c.dict, key)
	}
	return nil
}

// BySource：按最近访问顺序列出来源为 source 的未过期条目
func (c *LRU) BySource(_ context.Context, source string) ([]Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	var out []Entry
	for el := c.lst.Front(); el != nil; el = el.Next() {
		it := el.Value.(item)
		if !it.exp.IsZero() && !now.Before(it.exp) {
			continue
		}
		if it.v.Source == source {
			out = append(out, it.v)
		}
	}
	return out, nil
}

func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lst.Len()
}

func (c *LRU) expiry() time.Time {
	if c.ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(c.ttl)
}
