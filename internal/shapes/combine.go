package shapes

import (
	"github.com/oklog/ulid/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// SetCombineMode：进入或退出合并模式；退出时清空选择
func (s *Store) SetCombineMode(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.combineMode = on
	if !on {
		s.clearSelection()
	}
}

// CombineMode：是否处于合并模式
func (s *Store) CombineMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.combineMode
}

// ToggleCombined：切换多边形的选中状态，返回切换后的状态
// 约束：仅合并模式下生效；只接受 Polygon 与 MultiPolygon 表中的 id
func (s *Store) ToggleCombined(id any) bool {
	key := Key(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.combineMode {
		return false
	}
	_, isPoly := s.reg.of(KindPolygon).get(key)
	_, isMulti := s.reg.of(KindMultiPolygon).get(key)
	if !isPoly && !isMulti {
		return false
	}
	if _, seen := s.combined[key]; !seen {
		s.combinedOrder = append(s.combinedOrder, key)
	}
	s.combined[key] = !s.combined[key]
	return s.combined[key]
}

// Selected：当前选中的多边形 id，按首次选中顺序
func (s *Store) Selected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, k := range s.combinedOrder {
		if s.combined[k] {
			out = append(out, k)
		}
	}
	return out
}

func (s *Store) clearSelection() {
	s.combined = make(map[string]bool)
	s.combinedOrder = nil
}

func (s *Store) unselect(key string) {
	if _, ok := s.combined[key]; !ok {
		return
	}
	delete(s.combined, key)
	for i, k := range s.combinedOrder {
		if k == key {
			s.combinedOrder = append(s.combinedOrder[:i], s.combinedOrder[i+1:]...)
			break
		}
	}
}

// Combine：把选中的多边形打包为一个新的 MultiPolygon
// 背景：仅把各多边形的环收拢到同一要素，不做几何并集或融合；源要素被删除，新要素使用 ULID。
// 约束：结束后清空选择并退出合并模式；没有可合并的多边形时不产生新要素，返回 false。
func (s *Store) Combine() (string, bool) {
	var newID string
	s.mutate("combine", KindMultiPolygon.String(), func() bool {
		polys := s.reg.of(KindPolygon)
		multis := s.reg.of(KindMultiPolygon)
		var mp orb.MultiPolygon
		props := geojson.Properties{}
		for _, key := range s.combinedOrder {
			if !s.combined[key] {
				continue
			}
			if f, ok := polys.get(key); ok {
				if p, ok := f.Geometry.(orb.Polygon); ok {
					mp = append(mp, p)
				}
				mergeProps(props, f.Properties)
				polys.delete(key)
			} else if f, ok := multis.get(key); ok {
				if m, ok := f.Geometry.(orb.MultiPolygon); ok {
					mp = append(mp, m...)
				}
				mergeProps(props, f.Properties)
				multis.delete(key)
			}
		}
		hadSelection := len(s.combinedOrder) > 0 || s.combineMode
		s.clearSelection()
		s.combineMode = false
		if len(mp) == 0 {
			return hadSelection
		}
		newID = ulid.Make().String()
		f := geojson.NewFeature(mp)
		f.ID = newID
		f.Properties = props
		multis.set(newID, f)
		return true
	})
	return newID, newID != ""
}

// mergeProps：合并来源属性，名称与类型不继承
func mergeProps(dst, src geojson.Properties) {
	for k, v := range src {
		if k == PropName || k == PropType {
			continue
		}
		dst[k] = v
	}
}
