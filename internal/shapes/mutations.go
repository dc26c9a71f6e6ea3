package shapes

import (
	"strings"

	"geofence-editor/internal/logger"

	"github.com/oklog/ulid/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Add：按几何类型合并要素到注册表，返回实际写入的数量
// 背景：用于绘制完成与导入；要素自带 id 优先，否则按 name + type + source 合成。
// 约束：不重建点链路，导入的点需自带 forward/backward；缺失几何或不支持的类型逐个跳过，不中断批次。
func (s *Store) Add(features []*geojson.Feature, source string) int {
	n := 0
	s.mutate("add", "batch", func() bool {
		for _, f := range features {
			if s.insert(f, source) {
				n++
			}
		}
		return n > 0
	})
	return n
}

// insert：写入单个要素的副本；持锁调用
func (s *Store) insert(f *geojson.Feature, source string) bool {
	if f == nil || f.Geometry == nil {
		return false
	}
	k, ok := KindOf(f.Geometry)
	if !ok {
		logger.L().Debug("shape_skip_unsupported", "type", f.Geometry.GeoJSONType())
		return false
	}
	c := cloneFeature(f)
	id := FeatureID(c, source)
	if id == "" {
		id = ulid.Make().String()
	}
	if Key(c.ID) == "" {
		c.ID = id
	}
	l := s.reg.of(k)
	l.set(id, c)
	if source != "" {
		l.source[id] = source
	}
	return true
}

// SetFromCollection：按来源整体替换
// 背景：实现“替换来自实例 X 的全部导入”语义；id 携带 source 后缀或登记来源为 source 的要素被丢弃，其余来源保留。
// 约束：source 为空时视为替换全部；替换结束后清理端点缺失的链路连线，并校正起止点。
func (s *Store) SetFromCollection(fc *geojson.FeatureCollection, source string) int {
	n := 0
	s.mutate("set_from_collection", "batch", func() bool {
		dropped := 0
		for _, k := range Kinds {
			l := s.reg.of(k)
			for _, id := range l.keys() {
				if source == "" || l.source[id] == source || strings.HasSuffix(id, source) {
					l.delete(id)
					dropped++
				}
			}
		}
		if fc != nil {
			for _, f := range fc.Features {
				if s.insert(f, source) {
					n++
				}
			}
		}
		pruned := s.pruneEdges()
		s.resolveEnds()
		logger.L().Debug("shape_collection_replaced", "source", source, "dropped", dropped, "inserted", n, "pruned_edges", pruned)
		return dropped > 0 || n > 0
	})
	return n
}

// Update：原地替换要素
// 背景：拖拽手势回传新位置；点的拓扑不变，仅重算两条相邻连线坐标。多点顶点 id（parent___index）写回父要素坐标数组。
// 约束：id 不存在时为空操作；几何类型与 k 不一致时迁移到新类型表，点或链路连线迁出时按删除处理以修复链路；链路连线保留 start/end，坐标随端点。
func (s *Store) Update(k Kind, id any, f *geojson.Feature) {
	key := Key(id)
	s.mutate("update", k.String(), func() bool {
		if f == nil || f.Geometry == nil || key == "" {
			return false
		}
		fk, ok := KindOf(f.Geometry)
		if !ok {
			return false
		}
		l := s.reg.of(k)
		switch {
		case k == KindPoint && fk == KindPoint:
			return s.updatePoint(key, f)
		case k == KindMultiPoint && fk == KindPoint:
			if _, exists := l.get(key); !exists {
				return s.updateVertex(key, pointOf(f))
			}
		case k == KindGeometryCollection && fk != KindGeometryCollection:
			if _, exists := l.get(key); !exists {
				return s.updateMember(key, f.Geometry)
			}
		}
		old, exists := l.get(key)
		if !exists {
			return false
		}
		if fk != k {
			newKey := Key(f.ID)
			if newKey == "" {
				newKey = key
			}
			switch k {
			case KindPoint:
				s.removePoint(key)
			case KindLineString:
				s.removeEdge(key)
			default:
				l.delete(key)
			}
			c := cloneFeature(f)
			c.ID = newKey
			s.reg.of(fk).set(newKey, c)
			return true
		}
		c := cloneFeature(f)
		c.ID = old.ID
		if k == KindLineString {
			s.pinEdge(old, c)
		}
		l.set(key, c)
		return true
	})
}

// pinEdge：链路连线保留 start/end，坐标固定为两端点当前位置
func (s *Store) pinEdge(old, c *geojson.Feature) {
	st, hasSt := link(old, PropStart)
	en, hasEn := link(old, PropEnd)
	if !hasSt && !hasEn {
		return
	}
	c.Properties[PropStart] = old.Properties[PropStart]
	c.Properties[PropEnd] = old.Properties[PropEnd]
	pts := s.reg.of(KindPoint)
	sp, ok1 := pts.get(st)
	ep, ok2 := pts.get(en)
	if ok1 && ok2 {
		c.Geometry = orb.LineString{pointOf(sp), pointOf(ep)}
	}
}

// updatePoint：点拖拽，保留原链路指针并刷新相邻连线
func (s *Store) updatePoint(key string, f *geojson.Feature) bool {
	pts := s.reg.of(KindPoint)
	c := cloneFeature(f)
	old, ok := pts.get(key)
	if !ok {
		return false
	}
	c.ID = old.ID
	for _, prop := range []string{PropForward, PropBackward} {
		if v, ok := old.Properties[prop]; ok {
			c.Properties[prop] = v
		} else {
			delete(c.Properties, prop)
		}
	}
	pts.set(key, c)
	s.refreshEdges(key)
	return true
}

// updateVertex：多点顶点写回父要素
func (s *Store) updateVertex(key string, p orb.Point) bool {
	parent, idx, ok := splitIndexed(key, vertexSep)
	if !ok {
		return false
	}
	f, ok := s.reg.of(KindMultiPoint).get(parent)
	if !ok {
		return false
	}
	mp, ok := f.Geometry.(orb.MultiPoint)
	if !ok || idx >= len(mp) {
		return false
	}
	mp[idx] = p
	return true
}

// updateMember：几何集合子几何写回父要素
func (s *Store) updateMember(key string, g orb.Geometry) bool {
	parent, idx, ok := splitIndexed(key, memberSep)
	if !ok {
		return false
	}
	f, ok := s.reg.of(KindGeometryCollection).get(parent)
	if !ok {
		return false
	}
	col, ok := f.Geometry.(orb.Collection)
	if !ok || idx >= len(col) {
		return false
	}
	col[idx] = normalizeGeometry(g)
	return true
}

// UpdateProperty：设置单个属性
func (s *Store) UpdateProperty(k Kind, id any, prop string, value any) {
	key := Key(id)
	s.mutate("update_property", k.String(), func() bool {
		f, ok := s.reg.of(k).get(key)
		if !ok {
			return false
		}
		if f.Properties == nil {
			f.Properties = geojson.Properties{}
		}
		f.Properties[prop] = value
		return true
	})
}

// Remove：删除要素；id 为 nil 时清空整张类型表
// 背景：点删除会把前驱与后继直接相连；多点顶点 id 从父要素坐标数组中剔除，后续顶点下标随之前移。
// 约束：id 不存在时为空操作。
func (s *Store) Remove(k Kind, id any) {
	s.mutate("remove", k.String(), func() bool {
		if id == nil {
			return s.clearKind(k)
		}
		key := Key(id)
		l := s.reg.of(k)
		switch k {
		case KindPoint:
			return s.removePoint(key)
		case KindLineString:
			return s.removeEdge(key)
		case KindMultiPoint:
			if _, ok := l.get(key); !ok {
				return s.removeVertex(key)
			}
		case KindGeometryCollection:
			if _, ok := l.get(key); !ok {
				return s.removeMember(key)
			}
		case KindMultiLineString, KindPolygon, KindMultiPolygon:
		default:
			panic("shapes: unhandled kind " + k.String())
		}
		s.unselect(key)
		return l.delete(key)
	})
}

// Clear：清空整张类型表；清空 LineString 时同时断开全部点的 forward/backward
func (s *Store) Clear(k Kind) { s.Remove(k, nil) }

func (s *Store) clearKind(k Kind) bool {
	l := s.reg.of(k)
	if l.len() == 0 {
		return false
	}
	if k == KindLineString {
		for _, p := range s.reg.of(KindPoint).items {
			clearLink(p, PropForward)
			clearLink(p, PropBackward)
		}
	}
	l.clear()
	if k == KindPoint {
		s.pruneEdges()
		s.firstPoint, s.lastPoint = "", ""
	}
	if k == KindLineString {
		s.resolveEnds()
	}
	return true
}

func (s *Store) removeVertex(key string) bool {
	parent, idx, ok := splitIndexed(key, vertexSep)
	if !ok {
		return false
	}
	f, ok := s.reg.of(KindMultiPoint).get(parent)
	if !ok {
		return false
	}
	mp, ok := f.Geometry.(orb.MultiPoint)
	if !ok || idx >= len(mp) {
		return false
	}
	f.Geometry = append(mp[:idx:idx], mp[idx+1:]...)
	return true
}

func (s *Store) removeMember(key string) bool {
	parent, idx, ok := splitIndexed(key, memberSep)
	if !ok {
		return false
	}
	f, ok := s.reg.of(KindGeometryCollection).get(parent)
	if !ok {
		return false
	}
	col, ok := f.Geometry.(orb.Collection)
	if !ok || idx >= len(col) {
		return false
	}
	f.Geometry = append(col[:idx:idx], col[idx+1:]...)
	return true
}

// Members：把几何集合展开为独立要素，id 为 parent_index；供渲染层逐个分派
func Members(f *geojson.Feature) []*geojson.Feature {
	if f == nil {
		return nil
	}
	col, ok := f.Geometry.(orb.Collection)
	if !ok {
		return nil
	}
	out := make([]*geojson.Feature, 0, len(col))
	for i, g := range col {
		if g == nil {
			continue
		}
		if _, ok := KindOf(g); !ok {
			continue
		}
		m := geojson.NewFeature(normalizeGeometry(g))
		m.ID = MemberID(f.ID, i)
		if f.Properties != nil {
			m.Properties = f.Properties.Clone()
		}
		out = append(out, m)
	}
	return out
}
