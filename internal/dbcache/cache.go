// 包 dbcache：带来源标记要素的引用缓存；进程内 LRU 与 Redis 两种实现
package dbcache

import (
	"context"
	"errors"

	"geofence-editor/internal/logger"
	"geofence-editor/internal/shapes"

	"github.com/paulmach/orb/geojson"
)

var (
	ErrNoFeature = errors.New("dbcache: nil feature")
	ErrNoID      = errors.New("dbcache: feature has no id")
)

// Entry：一条引用记录
type Entry struct {
	Source  string           `json:"source"`
	Kind    string           `json:"kind"`
	Feature *geojson.Feature `json:"feature"`
}

// Key：缓存键，类型与注册表键组合，不同类型的同名要素互不覆盖
func (e Entry) Key() string {
	if e.Feature == nil {
		return ""
	}
	return KeyOf(e.Kind, shapes.Key(e.Feature.ID))
}

// KeyOf：kind 为空时直接使用 id
func KeyOf(kind, id string) string {
	if kind == "" || id == "" {
		return id
	}
	return kind + ":" + id
}

// Recorder：HTTP 适配层在带来源新增后写入，导入恢复与查询时读回；存储核心不做 I/O
type Recorder interface {
	Record(ctx context.Context, e Entry) error
	Lookup(ctx context.Context, key string) (Entry, bool, error)
	Forget(ctx context.Context, key string) error
	BySource(ctx context.Context, source string) ([]Entry, error)
}

// Layered：LRU 在前、Redis 在后；Redis 命中时回填 LRU
// 约束：Redis 写入失败只记录日志，不影响进程内记录
type Layered struct {
	Front *LRU
	Back  Recorder
}

func (l *Layered) Record(ctx context.Context, e Entry) error {
	if err := l.Front.Record(ctx, e); err != nil {
		return err
	}
	if l.Back != nil {
		if err := l.Back.Record(ctx, e); err != nil {
			logger.L().Warn("dbcache_back_record_error", "id", e.Key(), "err", err)
		}
	}
	return nil
}

func (l *Layered) Lookup(ctx context.Context, key string) (Entry, bool, error) {
	if e, ok, _ := l.Front.Lookup(ctx, key); ok {
		return e, true, nil
	}
	if l.Back == nil {
		return Entry{}, false, nil
	}
	e, ok, err := l.Back.Lookup(ctx, key)
	if err != nil || !ok {
		return Entry{}, false, err
	}
	_ = l.Front.Record(ctx, e)
	return e, true, nil
}

func (l *Layered) Forget(ctx context.Context, key string) error {
	_ = l.Front.Forget(ctx, key)
	if l.Back != nil {
		return l.Back.Forget(ctx, key)
	}
	return nil
}

// BySource：优先读 Redis（多实例共享）；Redis 不可用时退回 LRU
func (l *Layered) BySource(ctx context.Context, source string) ([]Entry, error) {
	if l.Back != nil {
		es, err := l.Back.BySource(ctx, source)
		if err == nil {
			return es, nil
		}
		logger.L().Warn("dbcache_back_list_error", "source", source, "err", err)
	}
	return l.Front.BySource(ctx, source)
}

// Collection：把条目还原为要素集合，顺序与条目一致
func Collection(es []Entry) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, e := range es {
		if e.Feature != nil {
			fc.Append(e.Feature)
		}
	}
	return fc
}

// RecordAll：写入一批要素，返回成功条数；单条失败不中断
func RecordAll(ctx context.Context, r Recorder, source string, features []*geojson.Feature) int {
	if r == nil {
		return 0
	}
	n := 0
	for _, f := range features {
		if f == nil || f.Geometry == nil {
			continue
		}
		k, ok := shapes.KindOf(f.Geometry)
		if !ok {
			continue
		}
		if err := r.Record(ctx, Entry{Source: source, Kind: k.String(), Feature: f}); err != nil {
			logger.L().Debug("dbcache_record_skip", "source", source, "err", err)
			continue
		}
		n++
	}
	return n
}
