// 包 shapes：地图编辑器的形状/路线图存储；按几何类型分表保存要素，并维护巡逻路线点的双向链接与连线
package shapes

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
)

// Kind：受支持的七种 GeoJSON 几何类型，每种对应注册表中的一张表
type Kind int

const (
	KindPoint Kind = iota
	KindMultiPoint
	KindLineString
	KindMultiLineString
	KindPolygon
	KindMultiPolygon
	KindGeometryCollection

	kindCount
)

// Kinds：投影输出时的固定类型顺序
var Kinds = [kindCount]Kind{
	KindPoint,
	KindMultiPoint,
	KindLineString,
	KindMultiLineString,
	KindPolygon,
	KindMultiPolygon,
	KindGeometryCollection,
}

// String：返回 GeoJSON 的 type 名称
func (k Kind) String() string {
	switch k {
	case KindPoint:
		return "Point"
	case KindMultiPoint:
		return "MultiPoint"
	case KindLineString:
		return "LineString"
	case KindMultiLineString:
		return "MultiLineString"
	case KindPolygon:
		return "Polygon"
	case KindMultiPolygon:
		return "MultiPolygon"
	case KindGeometryCollection:
		return "GeometryCollection"
	default:
		panic(fmt.Sprintf("shapes: unknown kind %d", int(k)))
	}
}

// ParseKind：按 GeoJSON type 名称解析（大小写不敏感）
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if strings.EqualFold(k.String(), s) {
			return k, true
		}
	}
	return 0, false
}

// KindOf：返回几何对应的类型；nil 或不支持的几何返回 false
// 约束：orb.Ring 与 orb.Bound 在 GeoJSON 中均编码为 Polygon，需先经 normalizeGeometry 转换
func KindOf(g orb.Geometry) (Kind, bool) {
	switch g.(type) {
	case orb.Point:
		return KindPoint, true
	case orb.MultiPoint:
		return KindMultiPoint, true
	case orb.LineString:
		return KindLineString, true
	case orb.MultiLineString:
		return KindMultiLineString, true
	case orb.Polygon, orb.Ring, orb.Bound:
		return KindPolygon, true
	case orb.MultiPolygon:
		return KindMultiPolygon, true
	case orb.Collection:
		return KindGeometryCollection, true
	}
	return 0, false
}

func normalizeGeometry(g orb.Geometry) orb.Geometry {
	switch v := g.(type) {
	case orb.Ring:
		return orb.Polygon{v.Clone()}
	case orb.Bound:
		return v.ToPolygon()
	}
	return orb.Clone(g)
}
