package shapes

import (
	"math"
	"strconv"

	"github.com/oklog/ulid/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// 路线图维护：点以 forward/backward 构成环形双向链表，相邻点之间各有一条 LineString。
// 每次插入或删除只修复变更点相邻的一到两条连线，不遍历整条链。

// edgesTouching：起点或终点为 id 的链路连线键
func (s *Store) edgesTouching(id string) []string {
	l := s.reg.of(KindLineString)
	var out []string
	for _, k := range l.order {
		f := l.items[k]
		st, _ := link(f, PropStart)
		en, _ := link(f, PropEnd)
		if st == id || en == id {
			out = append(out, k)
		}
	}
	return out
}

// edgeBetween：查找 start→end 的连线，优先使用派生 id
func (s *Store) edgeBetween(start, end string) (string, *geojson.Feature, bool) {
	l := s.reg.of(KindLineString)
	id := start + edgeSep + end
	if f, ok := l.get(id); ok {
		st, hasSt := link(f, PropStart)
		en, hasEn := link(f, PropEnd)
		if (!hasSt || st == start) && (!hasEn || en == end) {
			return id, f, true
		}
	}
	for _, k := range l.order {
		f := l.items[k]
		st, _ := link(f, PropStart)
		en, _ := link(f, PropEnd)
		if st == start && en == end {
			return k, f, true
		}
	}
	return "", nil, false
}

// neighbor：解析点的前驱或后继；指针悬空或指向自身时视为不存在
func (s *Store) neighbor(p *geojson.Feature, self, prop string) (string, *geojson.Feature) {
	k, ok := link(p, prop)
	if !ok || k == self {
		return "", nil
	}
	f, ok := s.reg.of(KindPoint).get(k)
	if !ok {
		return "", nil
	}
	return k, f
}

// removePoint：删除点并拼接前驱与后继
// 约束：前驱 S 与后继 E 均存在时新建 S__E；仅一侧存在时清除其指向被删点的指针；S 与 E 相同（两点环）时剩余点变为孤立点。
func (s *Store) removePoint(id string) bool {
	pts := s.reg.of(KindPoint)
	lines := s.reg.of(KindLineString)
	p, ok := pts.get(id)
	if !ok {
		return false
	}
	prevKey, prev := s.neighbor(p, id, PropBackward)
	nextKey, next := s.neighbor(p, id, PropForward)

	for _, e := range s.edgesTouching(id) {
		lines.delete(e)
	}
	switch {
	case prev != nil && next != nil && prevKey != nextKey:
		setLink(prev, PropForward, next.ID)
		setLink(next, PropBackward, prev.ID)
		e := newEdge(prev, next)
		lines.set(Key(e.ID), e)
	case prev != nil && next != nil:
		clearLink(prev, PropForward)
		clearLink(prev, PropBackward)
	default:
		if prev != nil {
			if k, _ := link(prev, PropForward); k == id {
				clearLink(prev, PropForward)
			}
		}
		if next != nil {
			if k, _ := link(next, PropBackward); k == id {
				clearLink(next, PropBackward)
			}
		}
	}

	if s.firstPoint == id {
		s.firstPoint = firstNonEmpty(nextKey, prevKey)
	}
	if s.lastPoint == id {
		s.lastPoint = firstNonEmpty(prevKey, nextKey)
	}
	pts.delete(id)
	s.resolveEnds()
	return true
}

// removeEdge：删除连线；若为互指点对之间的链路连线，同时断开两端指针
func (s *Store) removeEdge(id string) bool {
	lines := s.reg.of(KindLineString)
	e, ok := lines.get(id)
	if !ok {
		return false
	}
	pts := s.reg.of(KindPoint)
	st, hasSt := link(e, PropStart)
	en, hasEn := link(e, PropEnd)
	if hasSt && hasEn {
		sp, ok1 := pts.get(st)
		ep, ok2 := pts.get(en)
		if ok1 && ok2 {
			if k, _ := link(sp, PropForward); k == en {
				clearLink(sp, PropForward)
			}
			if k, _ := link(ep, PropBackward); k == st {
				clearLink(ep, PropBackward)
			}
		}
	}
	return lines.delete(id)
}

// refreshEdges：点移动后重算相邻两条连线坐标，拓扑不变
func (s *Store) refreshEdges(id string) {
	p, ok := s.reg.of(KindPoint).get(id)
	if !ok {
		return
	}
	if k, prev := s.neighbor(p, id, PropBackward); prev != nil {
		if _, e, ok := s.edgeBetween(k, id); ok {
			e.Geometry = orb.LineString{pointOf(prev), pointOf(p)}
		}
	}
	if k, next := s.neighbor(p, id, PropForward); next != nil {
		if _, e, ok := s.edgeBetween(id, k); ok {
			e.Geometry = orb.LineString{pointOf(p), pointOf(next)}
		}
	}
}

// pruneEdges：删除端点已不存在的链路连线，返回删除数量
func (s *Store) pruneEdges() int {
	pts := s.reg.of(KindPoint)
	lines := s.reg.of(KindLineString)
	n := 0
	for _, k := range lines.keys() {
		f := lines.items[k]
		st, hasSt := link(f, PropStart)
		en, hasEn := link(f, PropEnd)
		if !hasSt && !hasEn {
			continue
		}
		_, okS := pts.get(st)
		_, okE := pts.get(en)
		if !okS || !okE {
			lines.delete(k)
			n++
		}
	}
	return n
}

// resolveEnds：起止点失效时置空
func (s *Store) resolveEnds() {
	pts := s.reg.of(KindPoint)
	if _, ok := pts.get(s.firstPoint); !ok {
		s.firstPoint = ""
	}
	if _, ok := pts.get(s.lastPoint); !ok {
		s.lastPoint = ""
	}
}

// SplitLine：在连线中点（或 at 指定位置）插入新点，原连线替换为两段
// 背景：对应渲染层的“顶点插入”手势；新点继承起点的属性。
// 约束：连线或任一端点不存在时为空操作；两端均为整数 id 时新 id 取两端均值向上取整后的首个空闲整数，否则使用 ULID。
func (s *Store) SplitLine(edgeID string, at *orb.Point) (any, bool) {
	var newID any
	s.mutate("split_line", KindLineString.String(), func() bool {
		pts := s.reg.of(KindPoint)
		lines := s.reg.of(KindLineString)
		e, ok := lines.get(edgeID)
		if !ok {
			return false
		}
		sk, hasS := link(e, PropStart)
		ek, hasE := link(e, PropEnd)
		if !hasS || !hasE {
			if sk, ek, ok = SplitEdgeID(edgeID); !ok {
				return false
			}
		}
		if sk == ek {
			return false
		}
		sp, ok1 := pts.get(sk)
		ep, ok2 := pts.get(ek)
		if !ok1 || !ok2 {
			return false
		}
		a, b := pointOf(sp), pointOf(ep)
		mid := orb.Point{(a[0] + b[0]) / 2, (a[1] + b[1]) / 2}
		if at != nil {
			mid = *at
		}
		si, err1 := strconv.Atoi(sk)
		ei, err2 := strconv.Atoi(ek)
		if err1 == nil && err2 == nil {
			newID = s.newPointID(int(math.Ceil(float64(si+ei) / 2)))
		} else {
			newID = ulid.Make().String()
		}

		c := geojson.NewFeature(mid)
		c.ID = newID
		if sp.Properties != nil {
			c.Properties = sp.Properties.Clone()
		}
		setLink(c, PropBackward, sp.ID)
		setLink(c, PropForward, ep.ID)
		pts.set(Key(newID), c)

		setLink(sp, PropForward, newID)
		setLink(ep, PropBackward, newID)
		lines.delete(edgeID)
		for _, ne := range []*geojson.Feature{newEdge(sp, c), newEdge(c, ep)} {
			lines.set(Key(ne.ID), ne)
		}
		return true
	})
	return newID, newID != nil
}

// AppendPoint：绘制路线点；新点接在终点之后
// 背景：首个点成为起点；此后新点插入终点与其后继之间，闭环时即替换 last__first 为 last__new 与 new__first，新点成为终点。
// 约束：终点没有后继时，若起点没有前驱则与起点闭合，否则作为开放链尾部追加；新 id 为点数乘以 10 起的首个空闲整数。
func (s *Store) AppendPoint(p orb.Point, props geojson.Properties) any {
	var id int
	s.mutate("append_point", KindPoint.String(), func() bool {
		pts := s.reg.of(KindPoint)
		lines := s.reg.of(KindLineString)
		id = s.newPointID(pts.len() * pointIDInterval)
		key := strconv.Itoa(id)

		f := geojson.NewFeature(p)
		f.ID = id
		if props != nil {
			f.Properties = props.Clone()
		}
		clearLink(f, PropForward)
		clearLink(f, PropBackward)

		first, _ := pts.get(s.firstPoint)
		prev, _ := pts.get(s.lastPoint)
		if prev == nil {
			prev = first
		}
		pts.set(key, f)
		if prev == nil {
			s.firstPoint, s.lastPoint = key, key
			return true
		}
		prevKey := Key(prev.ID)
		_, succ := s.neighbor(prev, prevKey, PropForward)
		if succ == nil && first != nil {
			if _, back := s.neighbor(first, Key(first.ID), PropBackward); back == nil {
				succ = first
			}
		}
		if succ != nil {
			if ek, _, ok := s.edgeBetween(prevKey, Key(succ.ID)); ok {
				lines.delete(ek)
			}
			setLink(f, PropForward, succ.ID)
			setLink(succ, PropBackward, id)
			ne := newEdge(f, succ)
			lines.set(Key(ne.ID), ne)
		}
		setLink(prev, PropForward, id)
		setLink(f, PropBackward, prev.ID)
		ne := newEdge(prev, f)
		lines.set(Key(ne.ID), ne)

		if first == nil {
			s.firstPoint = prevKey
		}
		s.lastPoint = key
		return true
	})
	return id
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
