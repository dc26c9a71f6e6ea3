package shapes

import (
	"strconv"
	"strings"
	"sync"

	"geofence-editor/internal/logger"
	"geofence-editor/internal/metrics"

	"github.com/paulmach/orb/geojson"
)

// Observer：每次变更完成后收到最新的要素集合投影
type Observer func(fc *geojson.FeatureCollection)

// Store：形状/路线图存储，渲染适配层与导入适配层共享同一实例
// 背景：全部写操作经变更接口进入；单次调用持有一把粗粒度锁直到链路修复完成，保证指针互指不被并发打断。
// 约束：观察者在解锁后回调，可在回调中读取存储；回调内不应再次写入。
type Store struct {
	mu  sync.Mutex
	reg *Registry

	firstPoint  string
	lastPoint   string
	activeRoute string

	combineMode   bool
	combined      map[string]bool
	combinedOrder []string

	observers map[int]Observer
	nextObs   int
}

func New() *Store {
	return &Store{
		reg:         NewRegistry(),
		activeRoute: defaultRouteID,
		combined:    make(map[string]bool),
		observers:   make(map[int]Observer),
	}
}

// Subscribe：注册观察者，返回取消函数
func (s *Store) Subscribe(fn Observer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// mutate：串行执行一次变更，fn 返回是否发生修改；修改后统一投影并通知观察者
func (s *Store) mutate(op, kind string, fn func() bool) {
	s.mu.Lock()
	changed := fn()
	var fc *geojson.FeatureCollection
	var obs []Observer
	if changed {
		for _, kk := range Kinds {
			metrics.ShapeFeatures.WithLabelValues(kk.String()).Set(float64(s.reg.Len(kk)))
		}
		if len(s.observers) > 0 {
			fc = s.project()
			for _, o := range s.observers {
				obs = append(obs, o)
			}
		}
	}
	s.mu.Unlock()
	metrics.ShapeMutationsTotal.WithLabelValues(op, kind).Inc()
	if !changed {
		logger.L().Debug("shape_noop", "op", op, "kind", kind)
		return
	}
	logger.L().Debug("shape_mutation", "op", op, "kind", kind)
	for _, o := range obs {
		o(fc)
	}
}

// GetFirst：返回路线起点的副本，未设置或已失效时返回 nil
func (s *Store) GetFirst() *geojson.Feature {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pointCopy(s.firstPoint)
}

// GetLast：返回路线终点的副本
func (s *Store) GetLast() *geojson.Feature {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pointCopy(s.lastPoint)
}

func (s *Store) pointCopy(id string) *geojson.Feature {
	if id == "" {
		return nil
	}
	f, ok := s.reg.of(KindPoint).get(id)
	if !ok {
		return nil
	}
	return cloneFeature(f)
}

// FirstPointID / LastPointID：返回起止点键，空串表示未设置
func (s *Store) FirstPointID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstPoint
}

func (s *Store) LastPointID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPoint
}

// ActiveRouteID：当前正在编辑的路线 id
func (s *Store) ActiveRouteID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeRoute
}

// Get：按类型与 id 读取要素副本
func (s *Store) Get(k Kind, id any) (*geojson.Feature, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.reg.of(k).get(Key(id))
	if !ok {
		return nil, false
	}
	return cloneFeature(f), true
}

// Len：指定类型的要素数量
func (s *Store) Len(k Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.Len(k)
}

// Total：全部类型的要素总数
func (s *Store) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.Total()
}

// IDs：指定类型按插入顺序的键
func (s *Store) IDs(k Kind) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.of(k).keys()
}

// NewPointID：返回不小于 seed 且未被点表占用的最小整数 id
func (s *Store) NewPointID(seed int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newPointID(seed)
}

func (s *Store) newPointID(seed int) int {
	pts := s.reg.of(KindPoint)
	id := seed
	for {
		if _, ok := pts.get(strconv.Itoa(id)); !ok {
			return id
		}
		id++
	}
}

// GetGeojson：要素集合投影；kinds 为空表示全部类型
func (s *Store) GetGeojson(kinds ...Kind) *geojson.FeatureCollection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.project(kinds...)
}

// project：对各类型表做一次纯折叠，输出副本；持锁调用
func (s *Store) project(kinds ...Kind) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range s.reg.features(kinds...) {
		fc.Append(cloneFeature(f))
	}
	return fc
}

// GetSource：来源为 source 的要素投影（登记来源或 id 后缀匹配）；source 为空时等同 GetGeojson
func (s *Store) GetSource(source string) *geojson.FeatureCollection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if source == "" {
		return s.project()
	}
	fc := geojson.NewFeatureCollection()
	for _, k := range Kinds {
		l := s.reg.of(k)
		for _, id := range l.order {
			if l.source[id] == source || strings.HasSuffix(id, source) {
				fc.Append(cloneFeature(l.items[id]))
			}
		}
	}
	return fc
}
