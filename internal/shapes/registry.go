package shapes

import (
	"fmt"

	"github.com/paulmach/orb/geojson"
)

// layer：单一几何类型的要素表，显式记录插入顺序
type layer struct {
	order  []string
	items  map[string]*geojson.Feature
	source map[string]string
}

func newLayer() *layer {
	return &layer{items: make(map[string]*geojson.Feature), source: make(map[string]string)}
}

func (l *layer) get(id string) (*geojson.Feature, bool) {
	f, ok := l.items[id]
	return f, ok
}

// set：覆盖已有键时保持原插入位置
func (l *layer) set(id string, f *geojson.Feature) {
	if _, ok := l.items[id]; !ok {
		l.order = append(l.order, id)
	}
	l.items[id] = f
}

func (l *layer) delete(id string) bool {
	if _, ok := l.items[id]; !ok {
		return false
	}
	delete(l.items, id)
	delete(l.source, id)
	for i, k := range l.order {
		if k == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return true
}

func (l *layer) clear() {
	l.order = nil
	l.items = make(map[string]*geojson.Feature)
	l.source = make(map[string]string)
}

func (l *layer) len() int { return len(l.items) }

// keys：返回插入顺序的键副本，遍历期间可安全删除
func (l *layer) keys() []string {
	return append([]string(nil), l.order...)
}

// Registry：按类型分表的要素注册表；纯数据，不做校验
type Registry struct {
	layers [kindCount]*layer
}

func NewRegistry() *Registry {
	r := &Registry{}
	for _, k := range Kinds {
		r.layers[k] = newLayer()
	}
	return r
}

func (r *Registry) of(k Kind) *layer {
	if k < 0 || k >= kindCount {
		panic(fmt.Sprintf("shapes: kind out of range %d", int(k)))
	}
	return r.layers[k]
}

// Len：指定类型的要素数量
func (r *Registry) Len(k Kind) int { return r.of(k).len() }

// Total：全部类型的要素总数
func (r *Registry) Total() int {
	n := 0
	for _, k := range Kinds {
		n += r.layers[k].len()
	}
	return n
}

// features：按固定类型顺序与表内插入顺序展开要素；kinds 为空表示全部类型
// 约束：返回的是注册表内部对象，仅供包内投影使用
func (r *Registry) features(kinds ...Kind) []*geojson.Feature {
	want := [kindCount]bool{}
	if len(kinds) == 0 {
		for i := range want {
			want[i] = true
		}
	}
	for _, k := range kinds {
		want[k] = true
	}
	var out []*geojson.Feature
	for _, k := range Kinds {
		if !want[k] {
			continue
		}
		l := r.layers[k]
		for _, id := range l.order {
			out = append(out, l.items[id])
		}
	}
	return out
}
