package shapes

import (
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// SplitMultiPolygons：把每个 MultiPolygon 拆为独立 Polygon，其余要素原样保留
// 约束：仅含一个多边形时沿用原名称，否则名称追加 _<index>；拆出的要素不带 id，由导入方合成
func SplitMultiPolygons(fc *geojson.FeatureCollection) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	if fc == nil {
		return out
	}
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		mp, ok := f.Geometry.(orb.MultiPolygon)
		if !ok {
			out.Append(f)
			continue
		}
		name := propString(f.Properties, PropName)
		for i, p := range mp {
			nf := geojson.NewFeature(p.Clone())
			if f.Properties != nil {
				nf.Properties = f.Properties.Clone()
			}
			if len(mp) == 1 {
				nf.Properties[PropName] = name
			} else {
				nf.Properties[PropName] = name + "_" + strconv.Itoa(i)
			}
			out.Append(nf)
		}
	}
	return out
}

// CombineByProperty：按属性值分组，把同名多边形打包为一个 MultiPolygon
// 约束：与合并模式一致，只收拢多边形不做并集；缺少该属性或非多边形要素被丢弃；属性后者覆盖前者
func CombineByProperty(fc *geojson.FeatureCollection, key string) *geojson.FeatureCollection {
	if key == "" {
		key = PropName
	}
	out := geojson.NewFeatureCollection()
	if fc == nil {
		return out
	}
	groups := make(map[string]*geojson.Feature)
	var order []string
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		name := propString(f.Properties, key)
		if name == "" {
			continue
		}
		var polys orb.MultiPolygon
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			polys = orb.MultiPolygon{g.Clone()}
		case orb.MultiPolygon:
			polys = g.Clone()
		default:
			continue
		}
		existing, ok := groups[name]
		if !ok {
			nf := geojson.NewFeature(polys)
			nf.ID = f.ID
			if f.Properties != nil {
				nf.Properties = f.Properties.Clone()
			}
			groups[name] = nf
			order = append(order, name)
			continue
		}
		existing.Geometry = append(existing.Geometry.(orb.MultiPolygon), polys...)
		for k, v := range f.Properties {
			existing.Properties[k] = v
		}
	}
	var total orb.Bound
	for i, name := range order {
		f := groups[name]
		if m := f.Geometry.(orb.MultiPolygon); len(m) == 1 {
			f.Geometry = m[0]
		}
		b := f.Geometry.Bound()
		f.BBox = geojson.NewBBox(b)
		if i == 0 {
			total = b
		} else {
			total = total.Union(b)
		}
		out.Append(f)
	}
	if len(order) > 0 {
		out.BBox = geojson.NewBBox(total)
	}
	return out
}

// Bound：集合全部几何的外包框；空集合返回 false
func Bound(fc *geojson.FeatureCollection) (orb.Bound, bool) {
	var b orb.Bound
	found := false
	if fc == nil {
		return b, false
	}
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		if !found {
			b = f.Geometry.Bound()
			found = true
			continue
		}
		b = b.Union(f.Geometry.Bound())
	}
	return b, found
}
