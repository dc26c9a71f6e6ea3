package shapes

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ActiveRoute：切换当前编辑的路线
// 背景：当前点链按 forward 顺序折叠回以旧路线 id 命名的 MultiPoint；目标 MultiPoint 展开为闭合点链（id 0、10、20…）并生成连线。
// 约束：newID 为空时使用默认路线 id；与当前路线相同时为空操作。非链路的 LineString 保留。
func (s *Store) ActiveRoute(newID string) {
	if newID == "" {
		newID = defaultRouteID
	}
	s.mutate("active_route", KindMultiPoint.String(), func() bool {
		if s.activeRoute == newID {
			return false
		}
		pts := s.reg.of(KindPoint)
		mps := s.reg.of(KindMultiPoint)
		if pts.len() > 0 {
			mps.set(s.activeRoute, s.foldChain())
		}

		pts.clear()
		s.pruneEdges()
		s.firstPoint, s.lastPoint = "", ""

		if src, ok := mps.get(newID); ok {
			feats := explode(src)
			n := len(feats)
			for _, f := range feats {
				pts.set(Key(f.ID), f)
			}
			if n > 1 {
				lines := s.reg.of(KindLineString)
				for i, f := range feats {
					e := newEdge(feats[(i+n-1)%n], f)
					lines.set(Key(e.ID), e)
				}
			}
			if n > 0 {
				s.firstPoint = Key(feats[0].ID)
				s.lastPoint = Key(feats[n-1].ID)
			}
			mps.delete(newID)
		}
		s.activeRoute = newID
		return true
	})
}

// foldChain：把当前点链折叠为 MultiPoint；持锁调用
func (s *Store) foldChain() *geojson.Feature {
	pts := s.reg.of(KindPoint)
	order := s.chainOrder()
	coords := make(orb.MultiPoint, 0, len(order))
	for _, k := range order {
		coords = append(coords, pointOf(pts.items[k]))
	}
	var props geojson.Properties
	if old, ok := s.reg.of(KindMultiPoint).get(s.activeRoute); ok && old.Properties != nil {
		props = old.Properties.Clone()
	} else {
		props = pts.items[order[0]].Properties.Clone()
		delete(props, PropForward)
		delete(props, PropBackward)
		delete(props, PropMultiPoint)
	}
	f := geojson.NewFeature(coords)
	f.ID = s.activeRoute
	f.Properties = props
	return f
}

// chainOrder：自起点沿 forward 行走得到的点序，未连通的点按插入顺序追加
func (s *Store) chainOrder() []string {
	pts := s.reg.of(KindPoint)
	seen := make(map[string]bool, pts.len())
	out := make([]string, 0, pts.len())
	for cur := s.firstPoint; cur != "" && !seen[cur]; {
		f, ok := pts.get(cur)
		if !ok {
			break
		}
		seen[cur] = true
		out = append(out, cur)
		cur, _ = link(f, PropForward)
	}
	for _, k := range pts.order {
		if !seen[k] {
			out = append(out, k)
		}
	}
	return out
}

// explode：把 MultiPoint 展开为闭合点链
func explode(src *geojson.Feature) []*geojson.Feature {
	coords, _ := src.Geometry.(orb.MultiPoint)
	n := len(coords)
	feats := make([]*geojson.Feature, n)
	for i, c := range coords {
		f := geojson.NewFeature(c)
		f.ID = i * pointIDInterval
		if src.Properties != nil {
			f.Properties = src.Properties.Clone()
		}
		f.Properties[PropMultiPoint] = src.ID
		delete(f.Properties, PropForward)
		delete(f.Properties, PropBackward)
		feats[i] = f
	}
	if n > 1 {
		for i, f := range feats {
			setLink(f, PropForward, feats[(i+1)%n].ID)
			setLink(f, PropBackward, feats[(i+n-1)%n].ID)
		}
	}
	return feats
}
